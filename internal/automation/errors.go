package automation

import "errors"

// Domain errors for the automation package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, automation.ErrNotOrderable) {
//	    // reject the rule at load time
//	}
var (
	// ErrNotOrderable is returned by NewTrigger when an ordering predicate
	// is given a comparison value that is neither a number nor a string.
	ErrNotOrderable = errors.New("automation: comparison value is not orderable")

	// ErrNotComparable is returned at evaluation time when the alerted
	// value cannot be ordered against the comparison value.
	ErrNotComparable = errors.New("automation: value not comparable")

	// ErrUnknownPredicate is returned for an unrecognised predicate name.
	ErrUnknownPredicate = errors.New("automation: unknown predicate")

	// ErrCascadeDepthExceeded is returned when scheduling a routine would
	// exceed the configured cascade depth.
	ErrCascadeDepthExceeded = errors.New("automation: cascade depth exceeded")

	// ErrQueueFull is returned when the pending-work list is at its limit.
	ErrQueueFull = errors.New("automation: pending work queue full")

	// ErrInvalidRule is returned when a site file rule is incomplete.
	ErrInvalidRule = errors.New("automation: invalid rule")
)
