package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Identity attribute names present on every device.
const (
	AttrUUID = "uuid"
	AttrName = "name"
)

// Action is a named operation a device exposes, such as "toggle".
type Action func(ctx context.Context) error

// Device is a named, uniquely identified entity with a fixed set of
// attributes and actions determined by its class.
type Device interface {
	ID() string
	Name() string
	Class() string

	// Attribute returns the named attribute of this instance.
	Attribute(name string) (*Attribute, bool)

	// Action returns the named action of this instance.
	Action(name string) (Action, bool)

	// Attributes lists the declared attribute names, sorted.
	Attributes() []string

	// Actions lists the declared action names, sorted.
	Actions() []string
}

// Base carries identity and the attribute/action tables shared by all
// device implementations. Concrete types embed *Base, add their own
// attributes in their constructor and finish with Bind(self).
//
// The uuid and name identity fields are attributes themselves, so
// identity changes are observable like any other value.
type Base struct {
	class string

	mu       sync.RWMutex
	id       string
	name     string
	locked   bool
	nameHook func(newName string) error

	attrs   map[string]*Attribute
	actions map[string]Action
}

// NewBase creates the shared part of a device of the given class with
// its uuid and name attributes. The id and name start empty and are
// set through those attributes before registration.
func NewBase(class string) *Base {
	b := &Base{
		class:   class,
		attrs:   make(map[string]*Attribute),
		actions: make(map[string]Action),
	}

	b.AddAttribute(NewAttribute(AttrUUID,
		func(owner Device) any { return owner.ID() },
		func(_ Device, v any) (any, error) { return b.setID(v) },
	))
	b.AddAttribute(NewAttribute(AttrName,
		func(owner Device) any { return owner.Name() },
		func(_ Device, v any) (any, error) { return b.setName(v) },
	))
	return b
}

// AddAttribute declares an attribute. It must be called before Bind.
func (b *Base) AddAttribute(a *Attribute) {
	b.attrs[a.Name()] = a
}

// AddAction declares an action. It must be called before the device is
// registered.
func (b *Base) AddAction(name string, fn Action) {
	b.actions[name] = fn
}

// Bind binds every attribute to owner, which is normally the concrete
// type embedding this Base. Binding is idempotent.
func (b *Base) Bind(owner Device) {
	for _, a := range b.attrs {
		a.Bind(owner)
	}
}

// ID returns the device id.
func (b *Base) ID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.id
}

// Name returns the device name.
func (b *Base) Name() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.name
}

// Class returns the device class.
func (b *Base) Class() string {
	return b.class
}

// Attribute implements Device.
func (b *Base) Attribute(name string) (*Attribute, bool) {
	a, ok := b.attrs[name]
	return a, ok
}

// Action implements Device.
func (b *Base) Action(name string) (Action, bool) {
	fn, ok := b.actions[name]
	return fn, ok
}

// Attributes implements Device.
func (b *Base) Attributes() []string {
	return sortedKeys(b.attrs)
}

// Actions implements Device.
func (b *Base) Actions() []string {
	return sortedKeys(b.actions)
}

func (b *Base) setID(v any) (any, error) {
	id, ok := v.(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("%w: uuid must be a non-empty string, got %T", ErrInvalidValue, v)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.locked && id != b.id {
		return nil, ErrIdentityLocked
	}
	prev := b.id
	b.id = id
	return prev, nil
}

func (b *Base) setName(v any) (any, error) {
	name, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("%w: name must be a string, got %T", ErrInvalidValue, v)
	}

	b.mu.RLock()
	hook := b.nameHook
	b.mu.RUnlock()
	if hook != nil {
		if err := hook(name); err != nil {
			return nil, err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.name
	b.name = name
	return prev, nil
}

// lockIdentity freezes the id and installs a check for name changes.
// The registry calls it on registration.
func (b *Base) lockIdentity(nameHook func(string) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.locked = true
	b.nameHook = nameHook
}

// identityLocker is implemented by every type embedding *Base.
type identityLocker interface {
	lockIdentity(nameHook func(string) error)
}

// Identify sets the id and name of a freshly constructed device through
// its identity attributes, without notifying subscribers.
func Identify(ctx context.Context, d Device, id, name string) error {
	for attr, value := range map[string]string{AttrUUID: id, AttrName: name} {
		a, ok := d.Attribute(attr)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownAttribute, attr)
		}
		if _, err := a.SetSilent(ctx, value); err != nil {
			return err
		}
	}
	return nil
}

// Update sets the named attribute with notification. An unknown name
// and a read-only attribute both report ErrAttributeNotUpdatable.
func Update(ctx context.Context, d Device, attr string, value any) (any, error) {
	a, ok := d.Attribute(attr)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no attribute %q", ErrAttributeNotUpdatable, d.Class(), attr)
	}
	return a.Set(ctx, value)
}

// Read returns the named attribute's value.
func Read(d Device, attr string) (any, error) {
	a, ok := d.Attribute(attr)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no attribute %q", ErrUnknownAttribute, d.Class(), attr)
	}
	return a.Get()
}

// Invoke runs the named action.
func Invoke(ctx context.Context, d Device, action string) error {
	fn, ok := d.Action(action)
	if !ok {
		return fmt.Errorf("%w: %s has no action %q", ErrUnknownAction, d.Class(), action)
	}
	return fn(ctx)
}

// Snapshot reads every attribute of d. Attributes whose getter cannot
// run are omitted.
func Snapshot(d Device) map[string]any {
	out := make(map[string]any)
	for _, name := range d.Attributes() {
		if v, err := Read(d, name); err == nil {
			out[name] = v
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
