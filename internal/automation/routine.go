package automation

import (
	"context"
	"errors"
	"fmt"
)

// Action is one step of an Event.
type Action func(ctx context.Context) error

// Policy decides what an Event does when an action fails.
type Policy int

const (
	// PolicyAbort stops at the first failing action and returns its error.
	PolicyAbort Policy = iota

	// PolicyContinue runs every action and returns all errors joined.
	PolicyContinue
)

// ParsePolicy maps "abort" (or "") and "continue" to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "abort":
		return PolicyAbort, nil
	case "continue":
		return PolicyContinue, nil
	}
	return PolicyAbort, fmt.Errorf("%w: unknown on_error policy %q", ErrInvalidRule, s)
}

func (p Policy) String() string {
	if p == PolicyContinue {
		return "continue"
	}
	return "abort"
}

// Event is an ordered list of actions.
type Event struct {
	actions []Action
	policy  Policy
}

// NewEvent creates an event that runs actions in order under policy.
func NewEvent(policy Policy, actions ...Action) *Event {
	return &Event{actions: actions, policy: policy}
}

// Len returns the number of actions.
func (e *Event) Len() int {
	return len(e.actions)
}

// Invoke runs the actions in order.
func (e *Event) Invoke(ctx context.Context) error {
	var errs []error
	for i, act := range e.actions {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := act(ctx); err != nil {
			err = fmt.Errorf("action %d: %w", i+1, err)
			if e.policy == PolicyAbort {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Routine is a named unit of work fired by a Trigger.
type Routine struct {
	name    string
	event   *Event
	trigger *Trigger
}

// NewRoutine creates a routine running event.
func NewRoutine(name string, event *Event) *Routine {
	if event == nil {
		event = NewEvent(PolicyAbort)
	}
	return &Routine{name: name, event: event}
}

// Name returns the routine name.
func (r *Routine) Name() string {
	return r.name
}

// Trigger returns the trigger that fires this routine, or nil when the
// routine has not been attached yet.
func (r *Routine) Trigger() *Trigger {
	return r.trigger
}

// Invoke runs the routine's event.
func (r *Routine) Invoke(ctx context.Context) error {
	return r.event.Invoke(ctx)
}
