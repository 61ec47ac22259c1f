package automation

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/nerrad567/idiotic-core/internal/device"
)

// Site is the parsed site file: device classes, statically declared
// devices and automation rules.
type Site struct {
	Classes []device.ClassSpec `yaml:"classes"`
	Devices []DeviceSpec       `yaml:"devices"`
	Rules   []RuleSpec         `yaml:"rules"`
}

// DeviceSpec declares a device that exists before it ever connects.
// An empty ID gets a generated UUID.
type DeviceSpec struct {
	Class  string         `yaml:"class"`
	ID     string         `yaml:"id"`
	Name   string         `yaml:"name"`
	Values map[string]any `yaml:"values"`
}

// RuleSpec wires one trigger to one routine.
type RuleSpec struct {
	Name    string        `yaml:"name"`
	When    ConditionSpec `yaml:"when"`
	Do      []StepSpec    `yaml:"do"`
	OnError string        `yaml:"on_error"`
}

// ConditionSpec names the watched attribute and its predicate.
type ConditionSpec struct {
	Device    device.Ref `yaml:"device"`
	Attribute string     `yaml:"attribute"`
	Predicate string     `yaml:"predicate"`
	Value     any        `yaml:"value"`
}

// StepSpec is one routine action. Exactly one field is set.
type StepSpec struct {
	Set  *SetStep  `yaml:"set"`
	Call *CallStep `yaml:"call"`
}

// SetStep writes a value to a device attribute.
type SetStep struct {
	Device    device.Ref `yaml:"device"`
	Attribute string     `yaml:"attribute"`
	Value     any        `yaml:"value"`
}

// CallStep invokes a device action.
type CallStep struct {
	Device device.Ref `yaml:"device"`
	Action string     `yaml:"action"`
}

// LoadSite reads and validates a site file.
func LoadSite(path string) (*Site, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading site file: %w", err)
	}
	return ParseSite(data)
}

// ParseSite decodes and validates site file contents.
func ParseSite(data []byte) (*Site, error) {
	var s Site
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing site file: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the site file structure. Device and attribute names
// are checked later by Apply against the live registry.
func (s *Site) Validate() error {
	var errs []error

	classes := make(map[string]bool)
	for _, c := range s.Classes {
		if err := c.Validate(); err != nil {
			errs = append(errs, err)
		}
		if classes[c.Name] {
			errs = append(errs, fmt.Errorf("duplicate class %q", c.Name))
		}
		classes[c.Name] = true
	}
	for i, d := range s.Devices {
		if d.Class == "" {
			errs = append(errs, fmt.Errorf("devices[%d]: class is required", i))
		}
	}

	names := make(map[string]bool)
	for i := range s.Rules {
		r := &s.Rules[i]
		if r.Name == "" {
			r.Name = fmt.Sprintf("rule-%d", i+1)
		}
		if names[r.Name] {
			errs = append(errs, fmt.Errorf("%w: duplicate rule name %q", ErrInvalidRule, r.Name))
		}
		names[r.Name] = true

		if err := r.validate(); err != nil {
			errs = append(errs, fmt.Errorf("rule %s: %w", r.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (r RuleSpec) validate() error {
	if r.When.Device.IsZero() {
		return fmt.Errorf("%w: when.device needs an id or a class and name", ErrInvalidRule)
	}
	if r.When.Attribute == "" {
		return fmt.Errorf("%w: when.attribute is required", ErrInvalidRule)
	}
	if _, err := ParsePredicate(r.When.Predicate, r.When.Value); err != nil {
		return err
	}
	if _, err := ParsePolicy(r.OnError); err != nil {
		return err
	}
	if len(r.Do) == 0 {
		return fmt.Errorf("%w: no actions", ErrInvalidRule)
	}
	for i, step := range r.Do {
		switch {
		case step.Set != nil && step.Call == nil:
			if step.Set.Device.IsZero() || step.Set.Attribute == "" {
				return fmt.Errorf("%w: do[%d].set needs a device and an attribute", ErrInvalidRule, i)
			}
		case step.Call != nil && step.Set == nil:
			if step.Call.Device.IsZero() || step.Call.Action == "" {
				return fmt.Errorf("%w: do[%d].call needs a device and an action", ErrInvalidRule, i)
			}
		default:
			return fmt.Errorf("%w: do[%d] must have exactly one of set or call", ErrInvalidRule, i)
		}
	}
	return nil
}

// Apply registers the site's classes and devices with reg and arms one
// trigger per rule on engine.
//
// Each trigger is primed with the watched attribute's current value, so
// rules fire on the first real transition after startup.
//
// A rule whose watched device is not registered yet is given the device
// when its reference carries both id and class, the same way a hello
// would create it.
//
// Returns:
//   - []*Trigger: One armed trigger per rule, in file order
//   - error: The first class, device or rule that could not be applied
func (s *Site) Apply(ctx context.Context, reg *device.Registry, engine *Engine, logger Logger) ([]*Trigger, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	if err := s.RegisterClasses(reg.Catalog()); err != nil {
		return nil, err
	}

	for _, ds := range s.Devices {
		if err := addDevice(ctx, reg, ds); err != nil {
			return nil, err
		}
	}

	triggers := make([]*Trigger, 0, len(s.Rules))
	for _, rs := range s.Rules {
		t, err := s.arm(ctx, rs, reg, engine, logger)
		if err != nil {
			for _, armed := range triggers {
				armed.Detach()
			}
			return nil, fmt.Errorf("rule %s: %w", rs.Name, err)
		}
		triggers = append(triggers, t)
		logger.Info("rule armed", "rule", rs.Name, "device", rs.When.Device.String(),
			"attr", rs.When.Attribute, "predicate", t.Predicate().String())
	}
	return triggers, nil
}

// RegisterClasses adds the site's classes to catalog, skipping any the
// catalog already knows. Apply calls it; callers restoring devices from
// storage call it first so restored devices can be instantiated.
func (s *Site) RegisterClasses(catalog *device.Catalog) error {
	for _, c := range s.Classes {
		if catalog.Has(c.Name) {
			continue
		}
		if err := catalog.RegisterSpec(c); err != nil {
			return fmt.Errorf("registering class %s: %w", c.Name, err)
		}
	}
	return nil
}

// DeviceRefs returns the identities the site file declares, for
// device.Restore to keep free. Devices without an id get a generated
// one in Apply, so their Ref carries only class and name.
func (s *Site) DeviceRefs() []device.Ref {
	refs := make([]device.Ref, 0, len(s.Devices))
	for _, d := range s.Devices {
		refs = append(refs, device.Ref{ID: d.ID, Class: d.Class, Name: d.Name})
	}
	return refs
}

// addDevice registers a declared device. A device already in the
// registry under the same id keeps its identity and only takes the
// declared values.
func addDevice(ctx context.Context, reg *device.Registry, ds DeviceSpec) error {
	id := ds.ID
	if id == "" {
		id = uuid.New().String()
	}

	d, err := reg.Resolve(id)
	existing := err == nil
	switch {
	case existing && d.Class() != ds.Class:
		return fmt.Errorf("declaring device %s: %w: registered as %s", id, device.ErrDuplicateIdentity, d.Class())
	case !existing:
		if d, err = reg.Catalog().New(ctx, ds.Class, id, ds.Name); err != nil {
			return fmt.Errorf("declaring device %s: %w", id, err)
		}
	}
	for attr, v := range ds.Values {
		a, ok := d.Attribute(attr)
		if !ok {
			return fmt.Errorf("declaring device %s: %w: %s", id, device.ErrUnknownAttribute, attr)
		}
		if _, err := a.SetSilent(ctx, v); err != nil {
			return fmt.Errorf("declaring device %s: %w", id, err)
		}
	}
	if existing {
		return nil
	}
	if err := reg.Register(d); err != nil {
		return fmt.Errorf("declaring device %s: %w", id, err)
	}
	return nil
}

func (s *Site) arm(ctx context.Context, rs RuleSpec, reg *device.Registry, engine *Engine, logger Logger) (*Trigger, error) {
	d, err := watchedDevice(ctx, reg, rs.When.Device)
	if err != nil {
		return nil, err
	}
	attr, ok := d.Attribute(rs.When.Attribute)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no attribute %q", device.ErrUnknownAttribute, d.Class(), rs.When.Attribute)
	}

	pred, err := ParsePredicate(rs.When.Predicate, rs.When.Value)
	if err != nil {
		return nil, err
	}
	policy, err := ParsePolicy(rs.OnError)
	if err != nil {
		return nil, err
	}

	actions := make([]Action, 0, len(rs.Do))
	for _, step := range rs.Do {
		if step.Set != nil {
			actions = append(actions, SetAttribute(reg, step.Set.Device, step.Set.Attribute, step.Set.Value))
			continue
		}
		actions = append(actions, CallAction(reg, step.Call.Device, step.Call.Action))
	}

	routine := NewRoutine(rs.Name, NewEvent(policy, actions...))
	t, err := NewTrigger(attr, pred, routine, engine, logger)
	if err != nil {
		return nil, err
	}
	t.Prime()
	return t, nil
}

func watchedDevice(ctx context.Context, reg *device.Registry, ref device.Ref) (device.Device, error) {
	d, err := reg.ResolveRef(ref)
	if err == nil || !errors.Is(err, device.ErrUnknownDevice) || ref.ID == "" || ref.Class == "" {
		return d, err
	}
	d, _, err = reg.RegisterConnection(ctx, ref.Class, ref.ID, nil)
	if err != nil || ref.Name == "" || ref.Name == d.Name() {
		return d, err
	}
	if a, ok := d.Attribute(device.AttrName); ok {
		if _, err := a.SetSilent(ctx, ref.Name); err != nil {
			return nil, err
		}
	}
	return d, nil
}
