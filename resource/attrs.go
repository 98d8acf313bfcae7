package resource

import (
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Attrs is a set of named attribute values. Attrs are used both for the
// resolved inputs passed to a handler and for the outputs it produces.
type Attrs map[string]cty.Value

// An AttrError is returned when an attribute is missing or cannot be
// converted to the requested type.
type AttrError struct {
	Name   string
	Reason string
}

func (e AttrError) Error() string {
	return fmt.Sprintf("attribute %q: %s", e.Name, e.Reason)
}

// Names returns the attribute names in lexicographic order.
func (a Attrs) Names() []string {
	names := make([]string, 0, len(a))
	for n := range a {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Has returns true if the attribute is set to a non-null value.
func (a Attrs) Has(name string) bool {
	v, ok := a[name]
	return ok && !v.IsNull()
}

// Object returns the attributes as a cty object.
func (a Attrs) Object() cty.Value {
	if len(a) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(a)
}

func (a Attrs) get(name string, ty cty.Type) (cty.Value, error) {
	v, ok := a[name]
	if !ok || v.IsNull() {
		return cty.NilVal, AttrError{Name: name, Reason: "not set"}
	}
	if !v.IsWhollyKnown() {
		return cty.NilVal, AttrError{Name: name, Reason: "value is not known"}
	}
	conv, err := convert.Convert(v, ty)
	if err != nil {
		return cty.NilVal, AttrError{Name: name, Reason: err.Error()}
	}
	return conv, nil
}

// String returns a required string attribute. Numbers and booleans are
// converted to their string representation.
func (a Attrs) String(name string) (string, error) {
	v, err := a.get(name, cty.String)
	if err != nil {
		return "", err
	}
	return v.AsString(), nil
}

// OptionalString returns a string attribute, or def if it is not set.
func (a Attrs) OptionalString(name, def string) (string, error) {
	if !a.Has(name) {
		return def, nil
	}
	return a.String(name)
}

// Int returns a required integer attribute.
func (a Attrs) Int(name string) (int64, error) {
	v, err := a.get(name, cty.Number)
	if err != nil {
		return 0, err
	}
	i, acc := v.AsBigFloat().Int64()
	if acc != 0 {
		return 0, AttrError{Name: name, Reason: "not an integer"}
	}
	return i, nil
}

// OptionalInt returns an integer attribute, or def if it is not set.
func (a Attrs) OptionalInt(name string, def int64) (int64, error) {
	if !a.Has(name) {
		return def, nil
	}
	return a.Int(name)
}

// Bool returns a boolean attribute, or def if it is not set.
func (a Attrs) Bool(name string, def bool) (bool, error) {
	if !a.Has(name) {
		return def, nil
	}
	v, err := a.get(name, cty.Bool)
	if err != nil {
		return false, err
	}
	return v.True(), nil
}

// Strings returns a list of strings. A missing attribute returns an empty
// list. A single string is returned as a list with one element.
func (a Attrs) Strings(name string) ([]string, error) {
	if !a.Has(name) {
		return nil, nil
	}
	v := a[name]
	if v.Type() == cty.String {
		return []string{v.AsString()}, nil
	}
	list, err := a.get(name, cty.List(cty.String))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, list.LengthInt())
	for it := list.ElementIterator(); it.Next(); {
		_, ev := it.Element()
		if ev.IsNull() {
			return nil, AttrError{Name: name, Reason: "list contains null value"}
		}
		out = append(out, ev.AsString())
	}
	return out, nil
}

// StringMap returns a map of strings. A missing attribute returns an empty
// map.
func (a Attrs) StringMap(name string) (map[string]string, error) {
	if !a.Has(name) {
		return nil, nil
	}
	m, err := a.get(name, cty.Map(cty.String))
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, m.LengthInt())
	for it := m.ElementIterator(); it.Next(); {
		k, ev := it.Element()
		if ev.IsNull() {
			return nil, AttrError{Name: name, Reason: fmt.Sprintf("map value %q is null", k.AsString())}
		}
		out[k.AsString()] = ev.AsString()
	}
	return out, nil
}

// StringList creates a list value from a slice of strings.
func StringList(ss []string) cty.Value {
	if len(ss) == 0 {
		return cty.ListValEmpty(cty.String)
	}
	vals := make([]cty.Value, len(ss))
	for i, s := range ss {
		vals[i] = cty.StringVal(s)
	}
	return cty.ListVal(vals)
}

// StringMapVal creates a map value from a map of strings.
func StringMapVal(m map[string]string) cty.Value {
	if len(m) == 0 {
		return cty.MapValEmpty(cty.String)
	}
	vals := make(map[string]cty.Value, len(m))
	for k, v := range m {
		vals[k] = cty.StringVal(v)
	}
	return cty.MapVal(vals)
}
