package protocol

import (
	"fmt"
	"sort"

	"github.com/nerrad567/idiotic-core/internal/device"
)

// Request is a parsed inbound message. A single frame may combine a
// hello with sets and gets; they are applied in that order.
type Request struct {
	Hello *Hello
	Sets  []SetEntry
	Gets  []GetEntry
}

// Hello announces which device a connection speaks for.
type Hello struct {
	Class string
	UUID  string
}

// SetEntry writes one attribute. A zero Ref means the session's device.
type SetEntry struct {
	Ref   device.Ref
	Attr  string
	Value any
}

// GetEntry reads one attribute.
type GetEntry struct {
	Ref  device.Ref
	Attr string
}

// Reply answers one request.
type Reply struct {
	OK      bool         `json:"ok"`
	Hello   *HelloAck    `json:"hello,omitempty"`
	Applied int          `json:"applied,omitempty"`
	Values  []Value      `json:"values,omitempty"`
	Errors  []EntryError `json:"errors,omitempty"`
}

// HelloAck confirms the identity bound to the session.
type HelloAck struct {
	ID      string `json:"id"`
	Class   string `json:"class"`
	Name    string `json:"name"`
	Created bool   `json:"created"`
}

// Value is one answered get.
type Value struct {
	ID    string `json:"id"`
	Class string `json:"class"`
	Name  string `json:"name"`
	Attr  string `json:"attr"`
	Value any    `json:"value"`
}

// EntryError reports one failed entry. Sibling entries still apply.
type EntryError struct {
	Op    string `json:"op"`
	Ref   string `json:"ref,omitempty"`
	Attr  string `json:"attr,omitempty"`
	Error string `json:"error"`
}

// ParseRequest interprets a decoded frame.
//
// Accepted shapes:
//
//	{"hello": true, "class": "TempSensor", "uuid": "62:01:94:31:6A:EA"}
//	{"uuid": "62:01:94:31:6A:EA", "set": {"temp": 31}}
//	{"set": [{"id": "...", "attr": "temp", "value": 31},
//	         {"class": "HueLight", "name": "Living Room 2", "attr": "brightness", "value": 0}]}
//	{"get": [{"id": "...", "attr": "temp"}]}
//
// Attributes of the map form of set are applied in name order.
func ParseRequest(m map[string]any) (*Request, error) {
	req := &Request{}

	_, hasHello := m["hello"]
	setRaw, hasSet := m["set"]
	getRaw, hasGet := m["get"]
	if !hasHello && !hasSet && !hasGet {
		return nil, fmt.Errorf("%w: need hello, set or get", ErrMalformedMessage)
	}

	if hasHello {
		req.Hello = &Hello{Class: str(m["class"]), UUID: refFrom(m).ID}
	}

	if hasSet {
		sets, err := parseSets(setRaw, refFrom(m))
		if err != nil {
			return nil, err
		}
		req.Sets = sets
	}

	if hasGet {
		gets, err := parseGets(getRaw)
		if err != nil {
			return nil, err
		}
		req.Gets = gets
	}
	return req, nil
}

func parseSets(raw any, scope device.Ref) ([]SetEntry, error) {
	switch v := raw.(type) {
	case map[string]any:
		attrs := make([]string, 0, len(v))
		for attr := range v {
			attrs = append(attrs, attr)
		}
		sort.Strings(attrs)

		out := make([]SetEntry, 0, len(attrs))
		for _, attr := range attrs {
			out = append(out, SetEntry{Ref: scope, Attr: attr, Value: v[attr]})
		}
		return out, nil

	case []any:
		out := make([]SetEntry, 0, len(v))
		for i, item := range v {
			e, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: set[%d] is not an object", ErrMalformedMessage, i)
			}
			out = append(out, SetEntry{Ref: refFrom(e), Attr: str(e["attr"]), Value: e["value"]})
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: set must be an object or a list", ErrMalformedMessage)
}

func parseGets(raw any) ([]GetEntry, error) {
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case map[string]any:
		items = []any{v}
	default:
		return nil, fmt.Errorf("%w: get must be a list", ErrMalformedMessage)
	}

	out := make([]GetEntry, 0, len(items))
	for i, item := range items {
		e, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: get[%d] is not an object", ErrMalformedMessage, i)
		}
		out = append(out, GetEntry{Ref: refFrom(e), Attr: str(e["attr"])})
	}
	return out, nil
}

// refFrom reads "uuid" or "id", and "class" and "name", from m.
func refFrom(m map[string]any) device.Ref {
	id := str(m["uuid"])
	if id == "" {
		id = str(m["id"])
	}
	return device.Ref{ID: id, Class: str(m["class"]), Name: str(m["name"])}
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// ChangeMessage is the frame pushed to a device when one of its
// attributes is written by someone else.
func ChangeMessage(c device.Change) map[string]any {
	return map[string]any{
		"uuid":  c.DeviceID,
		"class": c.Class,
		"set":   map[string]any{c.Attribute: c.Value},
	}
}
