package protocol

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Encoding identifies a frame's wire format.
type Encoding int

const (
	// JSON is used for WebSocket text frames and MQTT payloads.
	JSON Encoding = iota

	// CBOR is used for WebSocket binary frames.
	CBOR
)

func (e Encoding) String() string {
	if e == CBOR {
		return "cbor"
	}
	return "json"
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Nested maps decode with string keys, matching what encoding/json
	// produces for the same message.
	decOpts := cbor.DecOptions{
		DupMapKey:      cbor.DupMapKeyQuiet,
		IndefLength:    cbor.IndefLengthAllowed,
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Decode parses a frame into a generic object.
func Decode(enc Encoding, data []byte) (map[string]any, error) {
	var m map[string]any
	var err error
	switch enc {
	case CBOR:
		err = decMode.Unmarshal(data, &m)
	default:
		err = json.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, enc, err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: %s: not an object", ErrMalformedMessage, enc)
	}
	return m, nil
}

// Encode marshals v in the given encoding. CBOR honours json struct tags.
func Encode(enc Encoding, v any) ([]byte, error) {
	if enc == CBOR {
		return encMode.Marshal(v)
	}
	return json.Marshal(v)
}
