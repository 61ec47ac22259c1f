package device

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestGeneric_DeclaredNames(t *testing.T) {
	g := newDevice(t, lightSpec, "l1", "Living Room 2")

	if want := []string{"brightness", "name", "uuid"}; !reflect.DeepEqual(g.Attributes(), want) {
		t.Errorf("Attributes() = %v, want %v", g.Attributes(), want)
	}
	if want := []string{"full", "off"}; !reflect.DeepEqual(g.Actions(), want) {
		t.Errorf("Actions() = %v, want %v", g.Actions(), want)
	}
	if g.ID() != "l1" || g.Name() != "Living Room 2" || g.Class() != "HueLight" {
		t.Errorf("identity = (%q, %q, %q)", g.ID(), g.Name(), g.Class())
	}
}

func TestGeneric_OwnerBindingIsolation(t *testing.T) {
	a := newDevice(t, sensorSpec, "a", "A")
	b := newDevice(t, sensorSpec, "b", "B")

	attrA, _ := a.Attribute("temperature")
	attrB, _ := b.Attribute("temperature")
	if attrA == attrB {
		t.Fatal("instances share an attribute object")
	}

	rec := &recorder{}
	attrA.Subscribe(rec)

	if _, err := attrB.Set(context.Background(), 99.0); err != nil {
		t.Fatal(err)
	}
	if n := len(rec.values()); n != 0 {
		t.Errorf("subscriber on A alerted %d times by a write to B", n)
	}
	if attrA.Owner() != Device(a) || attrB.Owner() != Device(b) {
		t.Error("attributes bound to the wrong owner")
	}

	if v, _ := Read(a, "temperature"); v != 0.0 {
		t.Errorf("A temperature = %v, want default 0", v)
	}
}

func TestGeneric_Actions(t *testing.T) {
	g := newDevice(t, lightSpec, "l1", "lamp")
	ctx := context.Background()

	if err := Invoke(ctx, g, "full"); err != nil {
		t.Fatalf("Invoke(full) error = %v", err)
	}
	if v, _ := Read(g, "brightness"); v != 254 {
		t.Errorf("brightness = %v, want 254", v)
	}
	if err := Invoke(ctx, g, "explode"); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("Invoke(explode) error = %v, want ErrUnknownAction", err)
	}
}

func TestUpdateAndRead_UnknownAttribute(t *testing.T) {
	g := newDevice(t, sensorSpec, "s1", "sensor")

	if _, err := Update(context.Background(), g, "humidity", 1); !errors.Is(err, ErrAttributeNotUpdatable) {
		t.Errorf("Update() error = %v, want ErrAttributeNotUpdatable", err)
	}
	if _, err := Read(g, "humidity"); !errors.Is(err, ErrUnknownAttribute) {
		t.Errorf("Read() error = %v, want ErrUnknownAttribute", err)
	}
}

func TestSnapshot(t *testing.T) {
	g := newDevice(t, sensorSpec, "s1", "sensor")
	got := Snapshot(g)

	want := map[string]any{"uuid": "s1", "name": "sensor", "temperature": 0.0, "firmware": "1.0"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Snapshot() = %v, want %v", got, want)
	}
}

func TestIdentityAttributesAreObservable(t *testing.T) {
	g := newDevice(t, sensorSpec, "s1", "sensor")
	nameAttr, _ := g.Attribute(AttrName)
	rec := &recorder{}
	nameAttr.Subscribe(rec)

	if _, err := nameAttr.Set(context.Background(), "kitchen"); err != nil {
		t.Fatal(err)
	}
	if got := rec.values(); len(got) != 1 || got[0] != "kitchen" {
		t.Errorf("name subscriber got %v", got)
	}
	if g.Name() != "kitchen" {
		t.Errorf("Name() = %q", g.Name())
	}
}

func TestClassSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    ClassSpec
		wantErr bool
	}{
		{"valid", lightSpec, false},
		{"missing name", ClassSpec{}, true},
		{"empty attribute", ClassSpec{Name: "X", Attributes: []AttributeSpec{{}}}, true},
		{"duplicate attribute", ClassSpec{Name: "X", Attributes: []AttributeSpec{{Name: "a"}, {Name: "a"}}}, true},
		{"reserved attribute", ClassSpec{Name: "X", Attributes: []AttributeSpec{{Name: "uuid"}}}, true},
		{"action writes unknown", ClassSpec{Name: "X", Actions: []ActionSpec{{Name: "go", Set: []AssignSpec{{Attribute: "nope"}}}}}, true},
		{"action writes read-only", ClassSpec{
			Name:       "X",
			Attributes: []AttributeSpec{{Name: "fw", ReadOnly: true}},
			Actions:    []ActionSpec{{Name: "go", Set: []AssignSpec{{Attribute: "fw"}}}},
		}, true},
		{"action renames", ClassSpec{Name: "X", Actions: []ActionSpec{{Name: "go", Set: []AssignSpec{{Attribute: "name", Value: "y"}}}}}, false},
		{"duplicate action", ClassSpec{Name: "X", Actions: []ActionSpec{{Name: "a"}, {Name: "a"}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCatalog(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()

	if err := c.RegisterSpec(sensorSpec); err == nil {
		t.Error("registering a class twice should fail")
	}
	if want := []string{"HueLight", "TempSensor"}; !reflect.DeepEqual(c.Classes(), want) {
		t.Errorf("Classes() = %v, want %v", c.Classes(), want)
	}

	d, err := c.New(ctx, "TempSensor", "62:01:94:31:6A:EA", "")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if d.Name() != "62:01:94:31:6A:EA" {
		t.Errorf("default name = %q, want the id", d.Name())
	}

	if _, err := c.New(ctx, "Toaster", "t1", ""); !errors.Is(err, ErrUnknownClass) {
		t.Errorf("New(Toaster) error = %v, want ErrUnknownClass", err)
	}
}
