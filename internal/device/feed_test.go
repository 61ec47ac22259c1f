package device

import (
	"context"
	"sync"
	"testing"
	"time"
)

// collectingSink gathers changes and signals each arrival.
type collectingSink struct {
	mu      sync.Mutex
	changes []Change
	arrived chan struct{}
}

func newCollectingSink() *collectingSink {
	return &collectingSink{arrived: make(chan struct{}, 64)}
}

func (s *collectingSink) HandleChange(c Change) {
	s.mu.Lock()
	s.changes = append(s.changes, c)
	s.mu.Unlock()
	s.arrived <- struct{}{}
}

func (s *collectingSink) wait(t *testing.T, n int) []Change {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.arrived:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for change %d of %d", i+1, n)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Change(nil), s.changes...)
}

func TestFeed_DeliversRegisteredDeviceChanges(t *testing.T) {
	feed := NewFeed(16)
	sink := newCollectingSink()
	feed.AddSink(sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go feed.Run(ctx)

	r := NewRegistry(nil)
	r.SetFeed(feed)
	d := newDevice(t, sensorSpec, "62:01:94:31:6A:EA", "sensor")
	if err := r.Register(d); err != nil {
		t.Fatal(err)
	}

	if _, err := Update(ctx, d, "temperature", 31.5); err != nil {
		t.Fatal(err)
	}

	got := sink.wait(t, 1)[0]
	if got.DeviceID != "62:01:94:31:6A:EA" || got.Class != "TempSensor" ||
		got.Attribute != "temperature" || got.Value != 31.5 {
		t.Errorf("change = %+v", got)
	}
	if got.Origin != nil {
		t.Errorf("local write has origin %v", got.Origin)
	}
}

func TestFeed_WatchesDevicesRegisteredBeforeSetFeed(t *testing.T) {
	feed := NewFeed(16)
	sink := newCollectingSink()
	feed.AddSink(sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go feed.Run(ctx)

	r := NewRegistry(nil)
	d := newDevice(t, lightSpec, "hue-2", "Living Room 2")
	if err := r.Register(d); err != nil {
		t.Fatal(err)
	}
	r.SetFeed(feed)
	r.SetFeed(feed)

	if _, err := Update(ctx, d, "brightness", 254); err != nil {
		t.Fatal(err)
	}

	got := sink.wait(t, 1)[0]
	if got.DeviceID != "hue-2" || got.Attribute != "brightness" || got.Value != 254 {
		t.Errorf("change = %+v", got)
	}
	select {
	case <-sink.arrived:
		t.Error("change delivered twice after setting the same feed again")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFeed_DropsWhenFull(t *testing.T) {
	feed := NewFeed(1)

	feed.Publish(Change{DeviceID: "a"})
	feed.Publish(Change{DeviceID: "b"})
	feed.Publish(Change{DeviceID: "c"})

	if feed.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2", feed.Dropped())
	}
}

func TestFeed_SinkPanicDoesNotStopDelivery(t *testing.T) {
	feed := NewFeed(4)
	sink := newCollectingSink()
	feed.AddSink(SinkFunc(func(Change) { panic("bad sink") }))
	feed.AddSink(sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go feed.Run(ctx)

	feed.Publish(Change{DeviceID: "a"})
	feed.Publish(Change{DeviceID: "b"})

	if got := sink.wait(t, 2); got[1].DeviceID != "b" {
		t.Errorf("changes = %+v", got)
	}
}

func TestConnectionSink_SkipsOrigin(t *testing.T) {
	r := NewRegistry(testCatalog(t))
	ctx := context.Background()
	conn := &fakeConn{addr: "peer"}

	if _, _, err := r.RegisterConnection(ctx, "HueLight", "l1", conn); err != nil {
		t.Fatal(err)
	}
	sink := ConnectionSink(r)

	sink.HandleChange(Change{DeviceID: "l1", Attribute: "brightness", Value: 254})
	sink.HandleChange(Change{DeviceID: "l1", Attribute: "brightness", Value: 0, Origin: conn})
	sink.HandleChange(Change{DeviceID: "unconnected", Attribute: "brightness", Value: 1})

	if conn.count() != 1 {
		t.Errorf("pushed %d changes, want 1 (origin echo and unconnected skipped)", conn.count())
	}
}

func TestOrigin(t *testing.T) {
	ctx := context.Background()
	if OriginFrom(ctx) != nil {
		t.Error("empty context has an origin")
	}
	conn := &fakeConn{}
	if OriginFrom(WithOrigin(ctx, conn)) != Conn(conn) {
		t.Error("origin not carried")
	}
}
