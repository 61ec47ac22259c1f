package protocol

import (
	"context"
	"sync"
	"testing"

	"github.com/nerrad567/idiotic-core/internal/device"
)

type fakeConn struct {
	addr string

	mu     sync.Mutex
	pushed []device.Change
}

func (c *fakeConn) Push(ch device.Change) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pushed = append(c.pushed, ch)
	return nil
}

func (c *fakeConn) RemoteAddr() string { return c.addr }

type fakeDrainer struct{ calls int }

func (d *fakeDrainer) Drain(context.Context) int {
	d.calls++
	return 0
}

type fakeObserver struct {
	connected    []string
	disconnected []string
	created      []bool
}

func (o *fakeObserver) DeviceConnected(_ context.Context, d device.Device, _ string, created bool) {
	o.connected = append(o.connected, d.ID())
	o.created = append(o.created, created)
}

func (o *fakeObserver) DeviceDisconnected(_ context.Context, d device.Device, _ string) {
	o.disconnected = append(o.disconnected, d.ID())
}

const sensorID = "62:01:94:31:6A:EA"

func newTestRegistry(t *testing.T) *device.Registry {
	t.Helper()
	catalog := device.NewCatalog()
	specs := []device.ClassSpec{
		{Name: "TempSensor", Attributes: []device.AttributeSpec{
			{Name: "temp", Default: 0.0},
			{Name: "firmware", Default: "1.0", ReadOnly: true},
		}},
		{Name: "HueLight", Attributes: []device.AttributeSpec{{Name: "brightness", Default: 0}}},
	}
	for _, s := range specs {
		if err := catalog.RegisterSpec(s); err != nil {
			t.Fatalf("RegisterSpec(%s) error = %v", s.Name, err)
		}
	}
	reg := device.NewRegistry(catalog)

	light, err := catalog.New(context.Background(), "HueLight", "hue-2", "Living Room 2")
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(light); err != nil {
		t.Fatal(err)
	}
	return reg
}
