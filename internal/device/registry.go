package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the device package.
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

// Conn is a transport connection that belongs to a device.
type Conn interface {
	// Push forwards an attribute change to the remote device. It must
	// not block; a full outbound queue is reported as an error.
	Push(c Change) error

	// RemoteAddr identifies the peer for logs and the device catalogue.
	RemoteAddr() string
}

// Ref addresses a device either by id or by class and name.
type Ref struct {
	ID    string `json:"id,omitempty" yaml:"id" cbor:"id,omitempty"`
	Class string `json:"class,omitempty" yaml:"class" cbor:"class,omitempty"`
	Name  string `json:"name,omitempty" yaml:"name" cbor:"name,omitempty"`
}

// IsZero reports whether r carries no usable addressing mode.
func (r Ref) IsZero() bool {
	return r.ID == "" && (r.Class == "" || r.Name == "")
}

func (r Ref) String() string {
	if r.ID != "" {
		return r.ID
	}
	return r.Class + "/" + r.Name
}

type nameKey struct{ class, name string }

// Registry is the catalogue of live device instances, indexed by id and
// by (class, name). Both indices resolve to the same instance.
//
// Once registered, a device's id cannot change and cannot be taken by
// another instance. Renaming a device moves its (class, name) entry.
//
// All public methods are thread-safe. Lookups take a read lock.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]Device
	byName map[nameKey]Device
	conns  map[string]Conn

	catalog *Catalog
	feed    *Feed
	logger  Logger
}

// NewRegistry creates a registry that instantiates unknown devices from
// catalog when they connect.
func NewRegistry(catalog *Catalog) *Registry {
	if catalog == nil {
		catalog = NewCatalog()
	}
	return &Registry{
		byID:    make(map[string]Device),
		byName:  make(map[nameKey]Device),
		conns:   make(map[string]Conn),
		catalog: catalog,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetFeed makes every registered device, and every device registered
// afterwards, publish its attribute changes to feed. Setting the same
// feed again is a no-op.
func (r *Registry) SetFeed(feed *Feed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if feed == r.feed {
		return
	}
	r.feed = feed
	if feed == nil {
		return
	}
	for _, d := range r.byID {
		feed.Watch(d)
	}
}

// Catalog returns the class catalogue.
func (r *Registry) Catalog() *Catalog {
	return r.catalog
}

// Register adds d under both indices.
//
// Registering the same instance again is a no-op. An id or (class, name)
// held by a different instance fails with ErrDuplicateIdentity.
func (r *Registry) Register(d Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(d)
}

func (r *Registry) registerLocked(d Device) error {
	id := d.ID()
	if id == "" {
		return fmt.Errorf("%w: device of class %s has no id", ErrInvalidRef, d.Class())
	}

	if existing, ok := r.byID[id]; ok {
		if existing == d {
			return nil
		}
		return fmt.Errorf("%w: id %q", ErrDuplicateIdentity, id)
	}

	key := nameKey{d.Class(), d.Name()}
	if key.name != "" {
		if existing, ok := r.byName[key]; ok && existing != d {
			return fmt.Errorf("%w: %s %q", ErrDuplicateIdentity, key.class, key.name)
		}
	}

	r.byID[id] = d
	if key.name != "" {
		r.byName[key] = d
	}

	if l, ok := d.(identityLocker); ok {
		l.lockIdentity(func(newName string) error { return r.rename(d, newName) })
	}
	if r.feed != nil {
		r.feed.Watch(d)
	}

	r.logger.Debug("device registered", "id", id, "class", key.class, "name", key.name)
	return nil
}

// rename moves d's (class, name) entry. It runs inside the name
// attribute's setter, before the new name is stored.
func (r *Registry) rename(d Device, newName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	newKey := nameKey{d.Class(), newName}
	if existing, ok := r.byName[newKey]; ok && existing != d && newName != "" {
		return fmt.Errorf("%w: %s %q", ErrDuplicateIdentity, newKey.class, newName)
	}

	oldKey := nameKey{d.Class(), d.Name()}
	if r.byName[oldKey] == d {
		delete(r.byName, oldKey)
	}
	if newName != "" {
		r.byName[newKey] = d
	}
	return nil
}

// Resolve returns the device with id.
func (r *Registry) Resolve(id string) (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %q", ErrUnknownDevice, id)
	}
	return d, nil
}

// ResolveByName returns the device of class called name.
func (r *Registry) ResolveByName(class, name string) (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[nameKey{class, name}]
	if !ok {
		return nil, fmt.Errorf("%w: %s %q", ErrUnknownDevice, class, name)
	}
	return d, nil
}

// ResolveRef resolves ref by id when present, otherwise by class and name.
func (r *Registry) ResolveRef(ref Ref) (Device, error) {
	switch {
	case ref.ID != "":
		return r.Resolve(ref.ID)
	case ref.Class != "" && ref.Name != "":
		return r.ResolveByName(ref.Class, ref.Name)
	default:
		return nil, ErrInvalidRef
	}
}

// Devices returns every registered device ordered by id.
func (r *Registry) Devices() []Device {
	r.mu.RLock()
	out := make([]Device, 0, len(r.byID))
	for _, d := range r.byID {
		out = append(out, d)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// RegisterConnection associates conn with the device (class, id),
// creating and registering the device from the catalogue if it is not
// yet known. A later connection for the same id replaces the earlier one.
//
// Returns:
//   - Device: The device now owning conn
//   - bool: true when the device was created by this call
//   - error: ErrUnknownClass, or ErrDuplicateIdentity when id belongs to another class
func (r *Registry) RegisterConnection(ctx context.Context, class, id string, conn Conn) (Device, bool, error) {
	if id == "" || class == "" {
		return nil, false, fmt.Errorf("%w: hello needs class and uuid", ErrInvalidRef)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	d, known := r.byID[id]
	created := false
	switch {
	case known && d.Class() != class:
		return nil, false, fmt.Errorf("%w: id %q is a %s, not a %s", ErrDuplicateIdentity, id, d.Class(), class)
	case !known:
		var err error
		if d, err = r.catalog.New(ctx, class, id, ""); err != nil {
			return nil, false, err
		}
		if err := r.registerLocked(d); err != nil {
			return nil, false, err
		}
		created = true
	}

	if conn != nil {
		if prev, ok := r.conns[id]; ok && prev != conn {
			r.logger.Info("device connection replaced", "id", id, "previous", prev.RemoteAddr(), "current", conn.RemoteAddr())
		}
		r.conns[id] = conn
	}
	return d, created, nil
}

// DetachConnection forgets conn for id. It does nothing if id is now
// served by a different connection.
func (r *Registry) DetachConnection(id string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[id] == conn {
		delete(r.conns, id)
	}
}

// Connection returns the connection currently serving id.
func (r *Registry) Connection(id string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}
