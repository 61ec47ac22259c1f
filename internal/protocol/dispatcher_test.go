package protocol

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/idiotic-core/internal/device"
)

func TestDispatcher_HelloAndSet(t *testing.T) {
	reg := newTestRegistry(t)
	drainer := &fakeDrainer{}
	obs := &fakeObserver{}
	d := NewDispatcher(reg, drainer, nil)
	d.AddObserver(obs)

	conn := &fakeConn{addr: "10.0.0.5:4000"}
	s := NewSession(conn)
	ctx := context.Background()

	reply := d.Handle(ctx, s, &Request{Hello: &Hello{Class: "TempSensor", UUID: sensorID}})
	if !reply.OK || reply.Hello == nil || !reply.Hello.Created || reply.Hello.Name != sensorID {
		t.Fatalf("hello reply = %+v", reply)
	}
	if got, ok := reg.Connection(sensorID); !ok || got != conn {
		t.Error("connection not registered")
	}
	if len(obs.connected) != 1 || !obs.created[0] {
		t.Errorf("observer = %+v", obs)
	}

	reply = d.Handle(ctx, s, &Request{Sets: []SetEntry{{Attr: "temp", Value: 31.0}}})
	if !reply.OK || reply.Applied != 1 {
		t.Fatalf("set reply = %+v", reply)
	}
	if drainer.calls != 1 {
		t.Errorf("Drain calls = %d, want 1", drainer.calls)
	}

	sensor, _ := reg.Resolve(sensorID)
	if v, _ := device.Read(sensor, "temp"); v != 31.0 {
		t.Errorf("temp = %v, want 31", v)
	}

	// A second hello from the same device is not a creation.
	reply = d.Handle(ctx, NewSession(conn), &Request{Hello: &Hello{Class: "TempSensor", UUID: sensorID}})
	if reply.Hello == nil || reply.Hello.Created {
		t.Errorf("reconnect hello = %+v", reply.Hello)
	}
}

func TestDispatcher_SetOriginNotEchoed(t *testing.T) {
	reg := newTestRegistry(t)
	feed := device.NewFeed(8)
	reg.SetFeed(feed)
	feed.AddSink(device.ConnectionSink(reg))

	d := NewDispatcher(reg, nil, nil)
	conn := &fakeConn{addr: "a"}
	s := NewSession(conn)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d.Handle(ctx, s, &Request{Hello: &Hello{Class: "TempSensor", UUID: sensorID}})
	d.Handle(ctx, s, &Request{Sets: []SetEntry{{Attr: "temp", Value: 20.0}}})

	// Written by someone else: must be pushed to the device.
	sensor, _ := reg.Resolve(sensorID)
	if _, err := device.Update(ctx, sensor, "temp", 21.0); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	feed.AddSink(device.SinkFunc(func(c device.Change) {
		if c.Value == 21.0 {
			close(done)
		}
	}))
	go feed.Run(ctx)
	<-done
	cancel()

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.pushed) != 1 || conn.pushed[0].Value != 21.0 {
		t.Errorf("pushed = %+v, want only the 21.0 change", conn.pushed)
	}
}

func TestDispatcher_PerEntryErrors(t *testing.T) {
	reg := newTestRegistry(t)
	d := NewDispatcher(reg, nil, nil)
	s := NewSession(nil)
	ctx := context.Background()

	reply := d.Handle(ctx, s, &Request{Sets: []SetEntry{
		{Ref: device.Ref{ID: "ghost"}, Attr: "x", Value: 1},
		{Ref: device.Ref{ID: "hue-2"}, Attr: "brightness", Value: 100},
		{Ref: device.Ref{ID: "hue-2"}, Attr: "colour", Value: "red"},
		{Attr: "brightness", Value: 1},
		{Ref: device.Ref{ID: "hue-2"}, Attr: "uuid", Value: "other"},
	}})

	if reply.OK || reply.Applied != 1 || len(reply.Errors) != 4 {
		t.Fatalf("reply = %+v, want 1 applied and 4 errors", reply)
	}
	light, _ := reg.Resolve("hue-2")
	if v, _ := device.Read(light, "brightness"); v != 100 {
		t.Errorf("brightness = %v, want 100", v)
	}
	if reply.Errors[0].Ref != "ghost" || reply.Errors[0].Op != "set" {
		t.Errorf("Errors[0] = %+v", reply.Errors[0])
	}
}

func TestDispatcher_Get(t *testing.T) {
	reg := newTestRegistry(t)
	d := NewDispatcher(reg, nil, nil)

	reply := d.Handle(context.Background(), NewSession(nil), &Request{Gets: []GetEntry{
		{Ref: device.Ref{Class: "HueLight", Name: "Living Room 2"}, Attr: "brightness"},
		{Ref: device.Ref{ID: "hue-2"}, Attr: "missing"},
	}})

	if len(reply.Values) != 1 || len(reply.Errors) != 1 {
		t.Fatalf("reply = %+v", reply)
	}
	v := reply.Values[0]
	if v.ID != "hue-2" || v.Class != "HueLight" || v.Name != "Living Room 2" || v.Attr != "brightness" || v.Value != 0 {
		t.Errorf("value = %+v", v)
	}
}

func TestDispatcher_HelloUnknownClass(t *testing.T) {
	reg := newTestRegistry(t)
	d := NewDispatcher(reg, nil, nil)
	s := NewSession(&fakeConn{})

	reply := d.Handle(context.Background(), s, &Request{Hello: &Hello{Class: "Toaster", UUID: "t1"}})
	if reply.OK || len(reply.Errors) != 1 || reply.Hello != nil {
		t.Errorf("reply = %+v", reply)
	}
	if s.Device() != nil {
		t.Error("session bound after a failed hello")
	}
}

func TestDispatcher_Disconnect(t *testing.T) {
	reg := newTestRegistry(t)
	obs := &fakeObserver{}
	d := NewDispatcher(reg, nil, nil)
	d.AddObserver(obs)

	conn := &fakeConn{}
	s := NewSession(conn)
	ctx := context.Background()
	d.Handle(ctx, s, &Request{Hello: &Hello{Class: "TempSensor", UUID: sensorID}})
	d.Disconnect(ctx, s)

	if _, ok := reg.Connection(sensorID); ok {
		t.Error("connection still registered")
	}
	if len(obs.disconnected) != 1 {
		t.Errorf("disconnected = %v", obs.disconnected)
	}
	if _, err := reg.Resolve(sensorID); err != nil {
		t.Error("device removed on disconnect")
	}

	d.Disconnect(ctx, NewSession(conn))
	if len(obs.disconnected) != 1 {
		t.Error("disconnect without hello notified observers")
	}
}

func TestDispatcher_HandleFrameMirrorsEncoding(t *testing.T) {
	reg := newTestRegistry(t)
	d := NewDispatcher(reg, nil, nil)
	ctx := context.Background()

	frame, _ := Encode(CBOR, map[string]any{
		"get": []any{map[string]any{"id": "hue-2", "attr": "brightness"}},
	})
	out, err := d.HandleFrame(ctx, NewSession(nil), CBOR, frame)
	if err != nil {
		t.Fatalf("HandleFrame() error = %v", err)
	}
	m, err := Decode(CBOR, out)
	if err != nil {
		t.Fatalf("reply is not CBOR: %v", err)
	}
	if m["ok"] != true {
		t.Errorf("reply = %v", m)
	}

	out, err = d.HandleFrame(ctx, NewSession(nil), JSON, []byte(`{"nothing": 1}`))
	if !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("HandleFrame() error = %v, want ErrMalformedMessage", err)
	}
	m, decErr := Decode(JSON, out)
	if decErr != nil || m["ok"] != false {
		t.Errorf("error reply = %s", out)
	}
}

func TestDispatcher_DrainsAfterSetsEvenWhenCancelled(t *testing.T) {
	reg := newTestRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var seen []any
	d := NewDispatcher(reg, drainFunc(func(context.Context) int {
		sensor, err := reg.Resolve(sensorID)
		if err != nil {
			t.Errorf("Resolve() error = %v", err)
			return 0
		}
		v, _ := device.Read(sensor, "temp")
		seen = append(seen, v)
		return 0
	}), nil)

	s := NewSession(&fakeConn{addr: "a"})
	reply := d.Handle(ctx, s, &Request{
		Hello: &Hello{Class: "TempSensor", UUID: sensorID},
		Sets:  []SetEntry{{Attr: "temp", Value: 32.0}},
	})
	if !reply.OK {
		t.Fatalf("reply = %+v", reply)
	}
	if len(seen) != 1 || seen[0] != 32.0 {
		t.Errorf("drain saw %v, want [32]", seen)
	}
}
