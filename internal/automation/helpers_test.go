package automation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/idiotic-core/internal/device"
)

// fakeScheduler records scheduled routine names.
type fakeScheduler struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (s *fakeScheduler) Schedule(_ context.Context, r *Routine) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, r.Name())
	return nil
}

func (s *fakeScheduler) fired() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...)
}

// recordingLogger counts warnings and errors.
type recordingLogger struct {
	mu     sync.Mutex
	warns  []string
	errors []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) warnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warns)
}

type broadcast struct {
	channel string
	payload any
}

type fakeHub struct {
	mu   sync.Mutex
	sent []broadcast
}

func (h *fakeHub) Broadcast(channel string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, broadcast{channel, payload})
}

type metricPoint struct {
	routine string
	depth   int
	err     error
}

type fakeMetrics struct {
	points []metricPoint
}

func (m *fakeMetrics) WriteRoutineExecution(routine string, depth int, _ time.Duration, err error) {
	m.points = append(m.points, metricPoint{routine, depth, err})
}

type fakePublisher struct {
	topics []string
}

func (p *fakePublisher) PublishEvent(topic string, _ []byte) error {
	p.topics = append(p.topics, topic)
	return nil
}

var sensorClass = device.ClassSpec{
	Name:       "TempSensor",
	Attributes: []device.AttributeSpec{{Name: "temp", Default: 0.0}},
}

var lightClass = device.ClassSpec{
	Name:       "HueLight",
	Attributes: []device.AttributeSpec{{Name: "brightness", Default: 0}},
	Actions: []device.ActionSpec{
		{Name: "full", Set: []device.AssignSpec{{Attribute: "brightness", Value: 254}}},
	},
}

// newRegistry returns a registry knowing the sensor and light classes.
func newRegistry(t *testing.T) *device.Registry {
	t.Helper()
	catalog := device.NewCatalog()
	for _, spec := range []device.ClassSpec{sensorClass, lightClass} {
		if err := catalog.RegisterSpec(spec); err != nil {
			t.Fatalf("RegisterSpec(%s) error = %v", spec.Name, err)
		}
	}
	return device.NewRegistry(catalog)
}

// addDeviceT creates and registers a device.
func addDeviceT(t *testing.T, reg *device.Registry, class, id, name string) device.Device {
	t.Helper()
	d, err := reg.Catalog().New(context.Background(), class, id, name)
	if err != nil {
		t.Fatalf("New(%s) error = %v", class, err)
	}
	if err := reg.Register(d); err != nil {
		t.Fatalf("Register(%s) error = %v", id, err)
	}
	return d
}

func attrT(t *testing.T, d device.Device, name string) *device.Attribute {
	t.Helper()
	a, ok := d.Attribute(name)
	if !ok {
		t.Fatalf("%s has no attribute %q", d.Class(), name)
	}
	return a
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
