package device

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Change describes one notified attribute write.
type Change struct {
	DeviceID  string    `json:"id"`
	Class     string    `json:"class"`
	Name      string    `json:"name"`
	Attribute string    `json:"attr"`
	Value     any       `json:"value"`
	At        time.Time `json:"at"`

	// Origin is the connection the write came from, nil for local writes.
	Origin Conn `json:"-"`
}

// Sink consumes changes on the feed goroutine.
type Sink interface {
	HandleChange(c Change)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(c Change)

// HandleChange implements Sink.
func (f SinkFunc) HandleChange(c Change) { f(c) }

// Feed fans attribute changes out to sinks such as the observer hub,
// device connections and MQTT, off the attribute's critical section.
//
// Publishing never blocks: when the buffer is full the change is
// dropped and counted.
type Feed struct {
	ch      chan Change
	logger  Logger
	dropped atomic.Uint64

	mu    sync.RWMutex
	sinks []Sink
}

// NewFeed creates a feed buffering up to size changes.
func NewFeed(size int) *Feed {
	if size < 1 {
		size = 1
	}
	return &Feed{ch: make(chan Change, size), logger: noopLogger{}}
}

// SetLogger sets the logger for dropped changes and sink panics.
func (f *Feed) SetLogger(logger Logger) {
	f.logger = logger
}

// AddSink registers a sink. Sinks receive changes in registration order.
func (f *Feed) AddSink(s Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, s)
}

// Watch subscribes the feed to every attribute of d.
func (f *Feed) Watch(d Device) {
	for _, name := range d.Attributes() {
		if a, ok := d.Attribute(name); ok {
			a.Subscribe(&tap{feed: f, dev: d, attr: name})
		}
	}
}

// Publish queues c for the sinks.
func (f *Feed) Publish(c Change) {
	select {
	case f.ch <- c:
	default:
		n := f.dropped.Add(1)
		f.logger.Warn("change feed full, dropping change",
			"id", c.DeviceID, "attr", c.Attribute, "dropped_total", n)
	}
}

// Dropped returns how many changes were discarded because the buffer was full.
func (f *Feed) Dropped() uint64 {
	return f.dropped.Load()
}

// Run delivers queued changes until ctx is done.
func (f *Feed) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-f.ch:
			f.dispatch(c)
		}
	}
}

func (f *Feed) dispatch(c Change) {
	f.mu.RLock()
	sinks := f.sinks
	f.mu.RUnlock()

	for _, s := range sinks {
		f.deliver(s, c)
	}
}

func (f *Feed) deliver(s Sink, c Change) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("change sink panic recovered", "id", c.DeviceID, "attr", c.Attribute, "panic", r)
		}
	}()
	s.HandleChange(c)
}

// tap is the feed's subscriber on one attribute.
type tap struct {
	feed *Feed
	dev  Device
	attr string
}

func (t *tap) Alert(ctx context.Context, value any) {
	t.feed.Publish(Change{
		DeviceID:  t.dev.ID(),
		Class:     t.dev.Class(),
		Name:      t.dev.Name(),
		Attribute: t.attr,
		Value:     value,
		At:        time.Now().UTC(),
		Origin:    OriginFrom(ctx),
	})
}

type originKey struct{}

// WithOrigin marks ctx as carrying a write that arrived on conn, so the
// change is not echoed back to the same connection.
func WithOrigin(ctx context.Context, conn Conn) context.Context {
	return context.WithValue(ctx, originKey{}, conn)
}

// OriginFrom returns the connection stored by WithOrigin, or nil.
func OriginFrom(ctx context.Context) Conn {
	c, _ := ctx.Value(originKey{}).(Conn)
	return c
}

// ConnectionSink pushes changes to the connection of the changed device,
// skipping the connection the change came from.
func ConnectionSink(r *Registry) Sink {
	return SinkFunc(func(c Change) {
		conn, ok := r.Connection(c.DeviceID)
		if !ok || conn == c.Origin {
			return
		}
		if err := conn.Push(c); err != nil {
			r.logger.Warn("pushing change to device failed",
				"id", c.DeviceID, "attr", c.Attribute, "remote", conn.RemoteAddr(), "error", err)
		}
	})
}
