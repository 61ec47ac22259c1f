package automation

import (
	"fmt"
	"reflect"
	"strings"
)

// Kind selects a predicate from the built-in catalogue.
type Kind int

// Predicate kinds.
const (
	Equal Kind = iota + 1
	NotEqual
	Greater
	GreaterOrEqual
	Less
	LessOrEqual
	Truthy
	Falsy
	Custom
)

var kindNames = map[Kind]string{
	Equal:          "eq",
	NotEqual:       "ne",
	Greater:        "gt",
	GreaterOrEqual: "gte",
	Less:           "lt",
	LessOrEqual:    "lte",
	Truthy:         "true",
	Falsy:          "false",
	Custom:         "custom",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) ordering() bool {
	return k >= Greater && k <= LessOrEqual
}

// Predicate is a condition over an alerted value: a built-in kind with
// an optional comparison value, or a Custom function.
type Predicate struct {
	Kind  Kind
	Value any
	Func  func(value any) (bool, error)
}

// Eq and friends build catalogue predicates.
func Eq(v any) Predicate  { return Predicate{Kind: Equal, Value: v} }
func Ne(v any) Predicate  { return Predicate{Kind: NotEqual, Value: v} }
func Gt(v any) Predicate  { return Predicate{Kind: Greater, Value: v} }
func Gte(v any) Predicate { return Predicate{Kind: GreaterOrEqual, Value: v} }
func Lt(v any) Predicate  { return Predicate{Kind: Less, Value: v} }
func Lte(v any) Predicate { return Predicate{Kind: LessOrEqual, Value: v} }

// IsTrue holds for truthy values.
func IsTrue() Predicate { return Predicate{Kind: Truthy} }

// IsFalse holds for falsy values.
func IsFalse() Predicate { return Predicate{Kind: Falsy} }

// Func wraps an arbitrary condition.
func Func(fn func(value any) (bool, error)) Predicate {
	return Predicate{Kind: Custom, Func: fn}
}

// ParsePredicate maps a site-file predicate name to a Predicate. Both
// short names ("gt") and symbolic or check_ forms ("check_gt", ">") work.
func ParsePredicate(name string, value any) (Predicate, error) {
	n := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "check_")

	var k Kind
	switch n {
	case "eq", "equal", "==":
		k = Equal
	case "ne", "neq", "not_equal", "!=":
		k = NotEqual
	case "gt", "greater", ">":
		k = Greater
	case "gte", "ge", "greater_or_equal", ">=":
		k = GreaterOrEqual
	case "lt", "less", "<":
		k = Less
	case "lte", "le", "less_or_equal", "<=":
		k = LessOrEqual
	case "true", "truthy":
		k = Truthy
	case "false", "falsy":
		k = Falsy
	default:
		return Predicate{}, fmt.Errorf("%w: %q", ErrUnknownPredicate, name)
	}

	p := Predicate{Kind: k, Value: value}
	return p, p.validate()
}

// validate rejects predicates that could never evaluate.
func (p Predicate) validate() error {
	switch {
	case p.Kind == Custom:
		if p.Func == nil {
			return fmt.Errorf("%w: custom predicate without a function", ErrUnknownPredicate)
		}
	case p.Kind.ordering():
		if _, ok := toFloat(p.Value); ok {
			return nil
		}
		if _, ok := p.Value.(string); ok {
			return nil
		}
		return fmt.Errorf("%w: %s %v (%T)", ErrNotOrderable, p.Kind, p.Value, p.Value)
	case p.Kind < Equal || p.Kind > Custom:
		return fmt.Errorf("%w: %s", ErrUnknownPredicate, p.Kind)
	}
	return nil
}

// Eval applies the predicate to v.
func (p Predicate) Eval(v any) (bool, error) {
	switch p.Kind {
	case Equal:
		return equal(v, p.Value), nil
	case NotEqual:
		return !equal(v, p.Value), nil
	case Truthy:
		return truthy(v), nil
	case Falsy:
		return !truthy(v), nil
	case Custom:
		return p.Func(v)
	}

	c, err := compare(v, p.Value)
	if err != nil {
		return false, err
	}
	switch p.Kind {
	case Greater:
		return c > 0, nil
	case GreaterOrEqual:
		return c >= 0, nil
	case Less:
		return c < 0, nil
	case LessOrEqual:
		return c <= 0, nil
	}
	return false, fmt.Errorf("%w: %s", ErrUnknownPredicate, p.Kind)
}

func (p Predicate) String() string {
	switch p.Kind {
	case Truthy, Falsy, Custom:
		return p.Kind.String()
	}
	return fmt.Sprintf("%s %v", p.Kind, p.Value)
}

// compare orders a against b: numbers numerically, strings lexically.
func compare(a, b any) (int, error) {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1, nil
			case fa > fb:
				return 1, nil
			}
			return 0, nil
		}
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return strings.Compare(sa, sb), nil
		}
	}
	return 0, fmt.Errorf("%w: %v (%T) against %v (%T)", ErrNotComparable, a, a, b, b)
}

func equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.DeepEqual(a, b)
}

// toFloat normalises any Go numeric kind. Bools are not numbers.
func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// truthy: nil, false, numeric zero, "" and empty collections are false.
func truthy(v any) bool {
	if v == nil {
		return false
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}
