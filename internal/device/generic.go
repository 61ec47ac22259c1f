package device

import (
	"context"
	"fmt"
	"sync"
)

// ClassSpec declares a device class whose attributes hold plain values.
// Site files list these under "classes".
type ClassSpec struct {
	Name       string          `yaml:"name"`
	Attributes []AttributeSpec `yaml:"attributes"`
	Actions    []ActionSpec    `yaml:"actions"`
}

// AttributeSpec declares one attribute of a generic class.
type AttributeSpec struct {
	Name     string `yaml:"name"`
	Default  any    `yaml:"default"`
	ReadOnly bool   `yaml:"read_only"`
}

// ActionSpec declares an action that writes fixed values to attributes
// of the same device, in listed order.
type ActionSpec struct {
	Name string       `yaml:"name"`
	Set  []AssignSpec `yaml:"set"`
}

// AssignSpec is one attribute write performed by an action.
type AssignSpec struct {
	Attribute string `yaml:"attribute"`
	Value     any    `yaml:"value"`
}

// Validate checks the spec for empty or duplicate names and actions that
// target undeclared or read-only attributes.
func (s ClassSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("class name is required")
	}

	writable := map[string]bool{AttrName: true, AttrUUID: false}
	for _, a := range s.Attributes {
		if a.Name == "" {
			return fmt.Errorf("class %s: attribute name is required", s.Name)
		}
		if _, dup := writable[a.Name]; dup {
			return fmt.Errorf("class %s: attribute %q declared twice or reserved", s.Name, a.Name)
		}
		writable[a.Name] = !a.ReadOnly
	}

	seen := make(map[string]bool)
	for _, act := range s.Actions {
		if act.Name == "" || seen[act.Name] {
			return fmt.Errorf("class %s: action name %q empty or duplicated", s.Name, act.Name)
		}
		seen[act.Name] = true
		for _, as := range act.Set {
			if !writable[as.Attribute] {
				return fmt.Errorf("class %s: action %s writes %q which is missing or read-only",
					s.Name, act.Name, as.Attribute)
			}
		}
	}
	return nil
}

// Generic is a device of a YAML-declared class. Each attribute stores
// the last value written to it.
type Generic struct {
	*Base

	mu     sync.RWMutex
	values map[string]any
}

// NewGeneric builds an unidentified device of class spec. Call Identify
// before registering it.
func NewGeneric(spec ClassSpec) *Generic {
	g := &Generic{
		Base:   NewBase(spec.Name),
		values: make(map[string]any, len(spec.Attributes)),
	}

	for _, as := range spec.Attributes {
		name := as.Name
		g.values[name] = as.Default

		var setter Setter
		if !as.ReadOnly {
			setter = func(_ Device, v any) (any, error) { return g.store(name, v), nil }
		}
		g.AddAttribute(NewAttribute(name,
			func(Device) any { return g.load(name) },
			setter,
		))
	}

	for _, act := range spec.Actions {
		writes := act.Set
		g.AddAction(act.Name, func(ctx context.Context) error {
			for _, w := range writes {
				if _, err := Update(ctx, g, w.Attribute, w.Value); err != nil {
					return err
				}
			}
			return nil
		})
	}

	g.Bind(g)
	return g
}

func (g *Generic) load(name string) any {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.values[name]
}

func (g *Generic) store(name string, v any) any {
	g.mu.Lock()
	defer g.mu.Unlock()
	prev := g.values[name]
	g.values[name] = v
	return prev
}
