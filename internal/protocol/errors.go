package protocol

import "errors"

// Domain errors for the protocol package.
var (
	// ErrMalformedMessage is returned for frames that do not decode to an
	// object or carry none of hello, set and get.
	ErrMalformedMessage = errors.New("protocol: malformed message")

	// ErrNoScope is returned for a set entry with no device address and no
	// hello on the session.
	ErrNoScope = errors.New("protocol: no device to apply set to")
)
