package record

import (
	"fmt"
	"strings"
)

// Instance is one record value. All field access goes through the class
// descriptors.
type Instance struct {
	class  *Class
	values map[string]any
}

// FieldValue is one field of an instance in declaration order.
type FieldValue struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
	Set   bool   `json:"set"`
}

func newInstance(c *Class) *Instance {
	return &Instance{class: c, values: make(map[string]any, len(c.fields))}
}

// Class returns the instance's class.
func (i *Instance) Class() *Class {
	return i.class
}

// Get returns the stored value of a field.
func (i *Instance) Get(name string) (any, error) {
	if _, ok := i.class.index[name]; !ok {
		return nil, fmt.Errorf("%w: %s has no field %q", ErrNoField, i.class.name, name)
	}
	v, ok := i.values[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrNotSet, i.class.name, name)
	}
	return v, nil
}

// Set assigns a field through its descriptor.
func (i *Instance) Set(name string, value any) error {
	d, ok := i.class.Field(name)
	if !ok {
		return fmt.Errorf("%w: %s has no field %q", ErrNoField, i.class.name, name)
	}
	return d.Set(i.values, value)
}

// Delete always fails for declared fields.
func (i *Instance) Delete(name string) error {
	d, ok := i.class.Field(name)
	if !ok {
		return fmt.Errorf("%w: %s has no field %q", ErrNoField, i.class.name, name)
	}
	return d.Delete(i.values)
}

// Values returns a copy of the stored field values.
func (i *Instance) Values() map[string]any {
	out := make(map[string]any, len(i.values))
	for k, v := range i.values {
		out[k] = v
	}
	return out
}

// Fields returns every declared field with its value, in declaration order.
func (i *Instance) Fields() []FieldValue {
	out := make([]FieldValue, len(i.class.fields))
	for n, d := range i.class.fields {
		v, ok := i.values[d.Name()]
		out[n] = FieldValue{Name: d.Name(), Value: v, Set: ok}
	}
	return out
}

// String renders the instance, e.g. Stock(name="GOOG", shares=100, price=490.1).
// Unset fields are omitted.
func (i *Instance) String() string {
	var b strings.Builder
	b.WriteString(i.class.name)
	b.WriteByte('(')
	first := true
	for _, f := range i.Fields() {
		if !f.Set {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(f.Name)
		b.WriteByte('=')
		if s, ok := f.Value.(string); ok {
			fmt.Fprintf(&b, "%q", s)
		} else {
			fmt.Fprintf(&b, "%v", f.Value)
		}
	}
	b.WriteByte(')')
	return b.String()
}
