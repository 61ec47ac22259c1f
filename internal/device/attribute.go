package device

import (
	"context"
	"fmt"
	"sync"
)

// Getter reads an attribute's current value from its owning device.
type Getter func(owner Device) any

// Setter writes value to the owning device and returns the setter's
// result, usually the previous value.
type Setter func(owner Device, value any) (any, error)

// Subscriber is notified with the new value after every notifying Set.
//
// Alert runs inside the attribute's critical section. It must not call
// Set on the same attribute and must not block on I/O. Subscribers are
// compared with ==, so use pointer types.
type Subscriber interface {
	Alert(ctx context.Context, value any)
}

// Attribute is an observable named value slot on one device instance.
//
// Each device constructs its own attributes, so subscribers and the
// owner binding are never shared between instances of a class.
//
// Thread Safety:
//   - At most one Set (setter plus notification) runs per attribute.
//   - Get, Subscribe and Unsubscribe may be called from any goroutine,
//     including from inside Alert.
type Attribute struct {
	name   string
	getter Getter
	setter Setter

	// setMu serialises setter invocation and notification.
	setMu sync.Mutex

	mu          sync.RWMutex
	owner       Device
	subscribers []Subscriber
}

// NewAttribute creates an unbound attribute. A nil setter makes the
// attribute read-only.
func NewAttribute(name string, get Getter, set Setter) *Attribute {
	return &Attribute{name: name, getter: get, setter: set}
}

// Name returns the attribute name.
func (a *Attribute) Name() string {
	return a.name
}

// Bind attaches the attribute to its owning device. Only the first call
// has an effect; later calls are no-ops.
func (a *Attribute) Bind(owner Device) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.owner == nil {
		a.owner = owner
	}
}

// Owner returns the bound device, or nil before Bind.
func (a *Attribute) Owner() Device {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.owner
}

// Updatable reports whether the attribute has a setter.
func (a *Attribute) Updatable() bool {
	return a.setter != nil
}

// Get returns the current value. It never notifies.
func (a *Attribute) Get() (any, error) {
	owner := a.Owner()
	if owner == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnboundAttribute, a.name)
	}
	return a.getter(owner), nil
}

// Set runs the setter and then alerts every subscriber, in subscription
// order, with value.
//
// Parameters:
//   - ctx: Passed through to subscribers; carries origin and cascade depth
//   - value: The new value
//
// Returns:
//   - any: The setter's result
//   - error: ErrUnboundAttribute, ErrAttributeNotUpdatable or the setter's error
func (a *Attribute) Set(ctx context.Context, value any) (any, error) {
	return a.set(ctx, value, true)
}

// SetSilent runs the setter without alerting subscribers.
func (a *Attribute) SetSilent(ctx context.Context, value any) (any, error) {
	return a.set(ctx, value, false)
}

func (a *Attribute) set(ctx context.Context, value any, notify bool) (any, error) {
	if a.setter == nil {
		return nil, fmt.Errorf("%w: %s", ErrAttributeNotUpdatable, a.name)
	}
	owner := a.Owner()
	if owner == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnboundAttribute, a.name)
	}

	a.setMu.Lock()
	defer a.setMu.Unlock()

	result, err := a.setter(owner, value)
	if err != nil {
		return nil, fmt.Errorf("setting %s: %w", a.name, err)
	}

	if notify {
		for _, s := range a.snapshot() {
			s.Alert(ctx, value)
		}
	}
	return result, nil
}

// Subscribe adds s. Subscribing an existing subscriber is a no-op.
func (a *Attribute) Subscribe(s Subscriber) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, existing := range a.subscribers {
		if existing == s {
			return
		}
	}
	a.subscribers = append(a.subscribers, s)
}

// Unsubscribe removes s. Removing a non-subscriber is a no-op.
func (a *Attribute) Unsubscribe(s Subscriber) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, existing := range a.subscribers {
		if existing == s {
			a.subscribers = append(a.subscribers[:i:i], a.subscribers[i+1:]...)
			return
		}
	}
}

// SubscriberCount returns the number of current subscribers.
func (a *Attribute) SubscriberCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.subscribers)
}

// snapshot copies the subscriber list so Alert can (un)subscribe freely.
func (a *Attribute) snapshot() []Subscriber {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Subscriber, len(a.subscribers))
	copy(out, a.subscribers)
	return out
}
