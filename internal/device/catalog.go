package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Factory constructs a bound but unidentified device.
type Factory func() Device

// Catalog maps class names to factories. The registry uses it to create
// devices that say hello before anything else has referenced them.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog creates an empty catalogue.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Register adds a factory for class. Registering a class twice fails.
func (c *Catalog) Register(class string, f Factory) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.factories[class]; exists {
		return fmt.Errorf("device: class %q already registered", class)
	}
	c.factories[class] = f
	return nil
}

// RegisterSpec validates spec and registers a Generic factory for it.
func (c *Catalog) RegisterSpec(spec ClassSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	return c.Register(spec.Name, func() Device { return NewGeneric(spec) })
}

// New builds a device of class with the given identity. The name
// defaults to the id.
func (c *Catalog) New(ctx context.Context, class, id, name string) (Device, error) {
	c.mu.RLock()
	f, ok := c.factories[class]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}

	if name == "" {
		name = id
	}
	d := f()
	if err := Identify(ctx, d, id, name); err != nil {
		return nil, fmt.Errorf("identifying %s %s: %w", class, id, err)
	}
	return d, nil
}

// Has reports whether class is registered.
func (c *Catalog) Has(class string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.factories[class]
	return ok
}

// Classes lists registered class names, sorted.
func (c *Catalog) Classes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.factories))
	for k := range c.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
