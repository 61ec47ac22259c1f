package automation

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/idiotic-core/internal/device"
)

// Scheduler accepts routines fired by triggers. *Engine implements it.
type Scheduler interface {
	Schedule(ctx context.Context, r *Routine) error
}

// Trigger watches one attribute and fires its routine when the predicate
// goes from false to true. Repeated true values do not fire again until
// a false value re-arms the trigger.
//
// A Trigger subscribes itself on creation. Detach removes it.
type Trigger struct {
	attr      *device.Attribute
	pred      Predicate
	routine   *Routine
	scheduler Scheduler
	logger    Logger

	mu     sync.Mutex
	active bool
}

// NewTrigger validates pred, links routine back to the new trigger and
// subscribes it to attr.
//
// Returns:
//   - *Trigger: The armed trigger, inactive
//   - error: ErrNotOrderable or ErrUnknownPredicate for an unusable predicate
func NewTrigger(attr *device.Attribute, pred Predicate, routine *Routine, scheduler Scheduler, logger Logger) (*Trigger, error) {
	if attr == nil || routine == nil || scheduler == nil {
		return nil, fmt.Errorf("%w: trigger needs an attribute, a routine and a scheduler", ErrInvalidRule)
	}
	if err := pred.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = noopLogger{}
	}

	t := &Trigger{
		attr:      attr,
		pred:      pred,
		routine:   routine,
		scheduler: scheduler,
		logger:    logger,
	}
	routine.trigger = t
	attr.Subscribe(t)
	return t, nil
}

// Alert implements device.Subscriber.
func (t *Trigger) Alert(ctx context.Context, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	result, err := t.pred.Eval(value)
	if err != nil {
		t.logger.Warn("trigger evaluation failed",
			"routine", t.routine.Name(), "attr", t.attr.Name(), "value", value, "error", err)
		return
	}
	if result == t.active {
		return
	}

	if result {
		if err := t.scheduler.Schedule(ctx, t.routine); err != nil {
			t.logger.Warn("routine not scheduled",
				"routine", t.routine.Name(), "attr", t.attr.Name(), "error", err)
		}
	}
	t.active = result
}

// Prime sets the trigger's state from the attribute's current value
// without firing, so a condition that already holds when the rule is
// armed waits for the next rising edge. An unreadable or unevaluable
// value leaves the trigger inactive.
func (t *Trigger) Prime() {
	v, err := t.attr.Get()
	if err != nil {
		return
	}
	result, err := t.pred.Eval(v)
	if err != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = result
}

// Active reports the last evaluated predicate result.
func (t *Trigger) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Attribute returns the watched attribute.
func (t *Trigger) Attribute() *device.Attribute {
	return t.attr
}

// Predicate returns the trigger's condition.
func (t *Trigger) Predicate() Predicate {
	return t.pred
}

// Routine returns the routine this trigger fires.
func (t *Trigger) Routine() *Routine {
	return t.routine
}

// Detach unsubscribes the trigger. A detached trigger never fires again.
func (t *Trigger) Detach() {
	t.attr.Unsubscribe(t)
}
