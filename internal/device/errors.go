package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrUnknownDevice) {
//	    // reply with an error entry, keep the connection
//	}
var (
	// ErrUnboundAttribute is returned when an attribute is read or written
	// before it has been bound to its owning device.
	ErrUnboundAttribute = errors.New("device: attribute not bound to a device")

	// ErrAttributeNotUpdatable is returned when a named attribute has no
	// setter or does not exist on the device.
	ErrAttributeNotUpdatable = errors.New("device: attribute not updatable")

	// ErrUnknownAttribute is returned when reading an attribute the device
	// does not declare.
	ErrUnknownAttribute = errors.New("device: unknown attribute")

	// ErrUnknownAction is returned when invoking an action the device
	// does not declare.
	ErrUnknownAction = errors.New("device: unknown action")

	// ErrUnknownDevice is returned when identity resolution finds no match.
	ErrUnknownDevice = errors.New("device: unknown device")

	// ErrDuplicateIdentity is returned when an id, or a (class, name)
	// pair, is already held by a different device instance.
	ErrDuplicateIdentity = errors.New("device: duplicate identity")

	// ErrUnknownClass is returned when no factory is registered for a class.
	ErrUnknownClass = errors.New("device: unknown class")

	// ErrIdentityLocked is returned when changing the id of a device that
	// is already reachable through the registry.
	ErrIdentityLocked = errors.New("device: identity locked after registration")

	// ErrInvalidValue is returned by setters that reject a value's type.
	ErrInvalidValue = errors.New("device: invalid value")

	// ErrInvalidRef is returned for a reference carrying neither an id
	// nor a class and name.
	ErrInvalidRef = errors.New("device: reference needs id or class and name")
)
