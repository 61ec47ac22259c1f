package device

import (
	"context"
	"sync"
	"testing"
)

// recorder is a Subscriber that records alerted values.
type recorder struct {
	name string
	log  *[]string
	mu   sync.Mutex
	got  []any
}

func (r *recorder) Alert(_ context.Context, v any) {
	r.mu.Lock()
	r.got = append(r.got, v)
	r.mu.Unlock()
	if r.log != nil {
		*r.log = append(*r.log, r.name)
	}
}

func (r *recorder) values() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.got...)
}

// fakeConn records pushed changes.
type fakeConn struct {
	addr   string
	mu     sync.Mutex
	pushed []Change
}

func (c *fakeConn) Push(ch Change) error {
	c.mu.Lock()
	c.pushed = append(c.pushed, ch)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) RemoteAddr() string { return c.addr }

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pushed)
}

var sensorSpec = ClassSpec{
	Name: "TempSensor",
	Attributes: []AttributeSpec{
		{Name: "temperature", Default: 0.0},
		{Name: "firmware", Default: "1.0", ReadOnly: true},
	},
}

var lightSpec = ClassSpec{
	Name: "HueLight",
	Attributes: []AttributeSpec{
		{Name: "brightness", Default: 0},
	},
	Actions: []ActionSpec{
		{Name: "off", Set: []AssignSpec{{Attribute: "brightness", Value: 0}}},
		{Name: "full", Set: []AssignSpec{{Attribute: "brightness", Value: 254}}},
	},
}

// newDevice builds and identifies a Generic device.
func newDevice(t *testing.T, spec ClassSpec, id, name string) *Generic {
	t.Helper()
	g := NewGeneric(spec)
	if err := Identify(context.Background(), g, id, name); err != nil {
		t.Fatalf("Identify() error = %v", err)
	}
	return g
}

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c := NewCatalog()
	for _, spec := range []ClassSpec{sensorSpec, lightSpec} {
		if err := c.RegisterSpec(spec); err != nil {
			t.Fatalf("RegisterSpec(%s) error = %v", spec.Name, err)
		}
	}
	return c
}
