package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/idiotic-core/internal/device"
)

// Logger defines the logging interface used by the protocol package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Drainer runs routines scheduled by applied sets. *automation.Engine
// implements it.
type Drainer interface {
	Drain(ctx context.Context) int
}

// Observer is told when devices connect and disconnect.
type Observer interface {
	DeviceConnected(ctx context.Context, d device.Device, remoteAddr string, created bool)
	DeviceDisconnected(ctx context.Context, d device.Device, remoteAddr string)
}

// Session is the protocol state of one transport connection.
type Session struct {
	conn device.Conn

	mu  sync.RWMutex
	dev device.Device
}

// NewSession starts a session for conn. conn may be nil for
// connectionless sources such as MQTT.
func NewSession(conn device.Conn) *Session {
	return &Session{conn: conn}
}

// Device returns the device bound by hello, or nil.
func (s *Session) Device() device.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dev
}

func (s *Session) bind(d device.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dev = d
}

func (s *Session) remoteAddr() string {
	if s.conn == nil {
		return ""
	}
	return s.conn.RemoteAddr()
}

// Dispatcher applies protocol requests to the registry.
//
// Sets are written with the session's connection as origin so the
// change is not echoed back to the device that sent it. After the sets
// of a request are applied the engine is drained. Routines fired by the
// request have either run before the reply is built or been handed to
// a drain already in progress on another goroutine, which runs them
// even if this request's context is cancelled.
type Dispatcher struct {
	registry  *device.Registry
	engine    Drainer
	logger    Logger
	observers []Observer
}

// NewDispatcher creates a dispatcher. engine may be nil.
func NewDispatcher(registry *device.Registry, engine Drainer, logger Logger) *Dispatcher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Dispatcher{registry: registry, engine: engine, logger: logger}
}

// AddObserver registers o for connection events. It must be called
// before the dispatcher serves requests.
func (d *Dispatcher) AddObserver(o Observer) {
	d.observers = append(d.observers, o)
}

// HandleFrame decodes one frame, handles it and encodes the reply in the
// frame's encoding. A malformed frame still gets an encoded error reply
// alongside the error.
func (d *Dispatcher) HandleFrame(ctx context.Context, s *Session, enc Encoding, data []byte) ([]byte, error) {
	var reply *Reply
	m, err := Decode(enc, data)
	if err == nil {
		var req *Request
		if req, err = ParseRequest(m); err == nil {
			reply = d.Handle(ctx, s, req)
		}
	}
	if err != nil {
		d.logger.Warn("invalid message", "remote", s.remoteAddr(), "encoding", enc.String(), "error", err)
		reply = &Reply{Errors: []EntryError{{Op: "decode", Error: err.Error()}}}
	}

	out, encErr := Encode(enc, reply)
	if encErr != nil {
		return nil, fmt.Errorf("encoding reply: %w", encErr)
	}
	return out, err
}

// Handle applies req on behalf of s.
func (d *Dispatcher) Handle(ctx context.Context, s *Session, req *Request) *Reply {
	reply := &Reply{}

	if req.Hello != nil {
		ack, err := d.hello(ctx, s, *req.Hello)
		if err != nil {
			reply.Errors = append(reply.Errors, EntryError{Op: "hello", Ref: req.Hello.UUID, Error: err.Error()})
		}
		reply.Hello = ack
	}

	if len(req.Sets) > 0 {
		setCtx := device.WithOrigin(ctx, s.conn)
		for _, e := range req.Sets {
			if err := d.set(setCtx, s, e); err != nil {
				d.logSetFailure(e, err)
				reply.Errors = append(reply.Errors, EntryError{Op: "set", Ref: refString(s, e.Ref), Attr: e.Attr, Error: err.Error()})
				continue
			}
			reply.Applied++
		}
		if d.engine != nil {
			d.engine.Drain(ctx)
		}
	}

	for _, e := range req.Gets {
		v, err := d.get(s, e)
		if err != nil {
			reply.Errors = append(reply.Errors, EntryError{Op: "get", Ref: refString(s, e.Ref), Attr: e.Attr, Error: err.Error()})
			continue
		}
		reply.Values = append(reply.Values, v)
	}

	reply.OK = len(reply.Errors) == 0
	return reply
}

func (d *Dispatcher) hello(ctx context.Context, s *Session, h Hello) (*HelloAck, error) {
	dev, created, err := d.registry.RegisterConnection(ctx, h.Class, h.UUID, s.conn)
	if err != nil {
		return nil, err
	}

	if prev := s.Device(); prev != nil && prev != dev && s.conn != nil {
		d.registry.DetachConnection(prev.ID(), s.conn)
	}
	s.bind(dev)

	d.logger.Info("device connected", "id", dev.ID(), "class", dev.Class(), "name", dev.Name(),
		"remote", s.remoteAddr(), "created", created)
	for _, o := range d.observers {
		o.DeviceConnected(ctx, dev, s.remoteAddr(), created)
	}

	return &HelloAck{ID: dev.ID(), Class: dev.Class(), Name: dev.Name(), Created: created}, nil
}

// Disconnect releases the session's device connection.
func (d *Dispatcher) Disconnect(ctx context.Context, s *Session) {
	dev := s.Device()
	if dev == nil {
		return
	}
	if s.conn != nil {
		d.registry.DetachConnection(dev.ID(), s.conn)
	}
	d.logger.Info("device disconnected", "id", dev.ID(), "class", dev.Class(), "remote", s.remoteAddr())
	for _, o := range d.observers {
		o.DeviceDisconnected(ctx, dev, s.remoteAddr())
	}
}

func (d *Dispatcher) resolve(s *Session, ref device.Ref) (device.Device, error) {
	if ref.IsZero() {
		if dev := s.Device(); dev != nil {
			return dev, nil
		}
		return nil, ErrNoScope
	}
	return d.registry.ResolveRef(ref)
}

func (d *Dispatcher) set(ctx context.Context, s *Session, e SetEntry) error {
	if e.Attr == "" {
		return fmt.Errorf("%w: set entry without attr", ErrMalformedMessage)
	}
	dev, err := d.resolve(s, e.Ref)
	if err != nil {
		return err
	}
	_, err = device.Update(ctx, dev, e.Attr, e.Value)
	return err
}

func (d *Dispatcher) get(s *Session, e GetEntry) (Value, error) {
	if e.Attr == "" {
		return Value{}, fmt.Errorf("%w: get entry without attr", ErrMalformedMessage)
	}
	dev, err := d.resolve(s, e.Ref)
	if err != nil {
		return Value{}, err
	}
	v, err := device.Read(dev, e.Attr)
	if err != nil {
		return Value{}, err
	}
	return Value{ID: dev.ID(), Class: dev.Class(), Name: dev.Name(), Attr: e.Attr, Value: v}, nil
}

func refString(s *Session, ref device.Ref) string {
	if ref.IsZero() {
		if dev := s.Device(); dev != nil {
			return dev.ID()
		}
		return ""
	}
	return ref.String()
}

// logSetFailure logs request mistakes at info and everything else,
// such as a setter rejecting a value, as a warning.
func (d *Dispatcher) logSetFailure(e SetEntry, err error) {
	if isClientError(err) {
		d.logger.Info("set rejected", "ref", e.Ref.String(), "attr", e.Attr, "error", err)
		return
	}
	d.logger.Warn("set failed", "ref", e.Ref.String(), "attr", e.Attr, "error", err)
}

func isClientError(err error) bool {
	return errors.Is(err, ErrMalformedMessage) ||
		errors.Is(err, ErrNoScope) ||
		errors.Is(err, device.ErrUnknownDevice) ||
		errors.Is(err, device.ErrUnknownAttribute) ||
		errors.Is(err, device.ErrAttributeNotUpdatable) ||
		errors.Is(err, device.ErrInvalidRef)
}
