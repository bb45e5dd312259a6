// Package record builds record classes from named field descriptors and
// synthesizes their constructors.
//
// Classes are assembled in two phases. A Builder collects (name, descriptor)
// pairs in declaration order; Build binds each descriptor to its field name
// and, when the class has at least one field, creates a constructor closure
// whose parameters are the field names in that order.
package record

import (
	"errors"
	"fmt"
	"strings"

	"github.com/artpar/recordkit/core/descriptor"
)

// Construction errors.
var (
	ErrArguments      = errors.New("invalid arguments")
	ErrDuplicateField = errors.New("duplicate field")
	ErrInvalidName    = errors.New("invalid name")
	ErrNoField        = errors.New("no such field")
	ErrNotSet         = errors.New("field not set")
)

// Constructor creates an instance from positional and keyword arguments.
type Constructor func(args []any, kwargs map[string]any) (*Instance, error)

type fieldSpec struct {
	name string
	desc *descriptor.Descriptor
}

// Builder collects field declarations for one class.
type Builder struct {
	name   string
	fields []fieldSpec
}

// NewBuilder starts a class definition.
func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// Field appends a field. Order of calls is declaration order.
func (b *Builder) Field(name string, d *descriptor.Descriptor) *Builder {
	b.fields = append(b.fields, fieldSpec{name: name, desc: d})
	return b
}

// Build validates the declarations, binds every descriptor and synthesizes
// the constructor. Nothing is bound when Build fails.
func (b *Builder) Build() (*Class, error) {
	if !IsIdentifier(b.name) {
		return nil, fmt.Errorf("%w: class name %q is not a valid identifier", ErrInvalidName, b.name)
	}

	index := make(map[string]int, len(b.fields))
	seen := make(map[*descriptor.Descriptor]string, len(b.fields))
	for i, f := range b.fields {
		if !IsIdentifier(f.name) {
			return nil, fmt.Errorf("%w: %s field name %q is not a valid identifier", ErrInvalidName, b.name, f.name)
		}
		if _, dup := index[f.name]; dup {
			return nil, fmt.Errorf("%w: %s.%s", ErrDuplicateField, b.name, f.name)
		}
		if f.desc == nil {
			return nil, fmt.Errorf("%s.%s: nil descriptor", b.name, f.name)
		}
		if f.desc.Bound() {
			return nil, fmt.Errorf("%s.%s: %w to %q", b.name, f.name, descriptor.ErrAlreadyBound, f.desc.Name())
		}
		if other, reused := seen[f.desc]; reused {
			return nil, fmt.Errorf("%s.%s: %w: descriptor also used by %s", b.name, f.name, descriptor.ErrAlreadyBound, other)
		}
		index[f.name] = i
		seen[f.desc] = f.name
	}

	fields := make([]*descriptor.Descriptor, len(b.fields))
	for i, f := range b.fields {
		if err := f.desc.Bind(f.name); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", b.name, f.name, err)
		}
		fields[i] = f.desc
	}

	c := &Class{
		name:   b.name,
		fields: fields,
		index:  index,
	}
	if len(fields) > 0 {
		c.ctor = synthesize(c)
	}
	return c, nil
}

// Class is a record type: a name and an ordered set of bound descriptors.
type Class struct {
	name   string
	fields []*descriptor.Descriptor
	index  map[string]int
	ctor   Constructor
}

// Name returns the class name.
func (c *Class) Name() string {
	return c.name
}

// Fields returns the class descriptors in declaration order.
func (c *Class) Fields() []*descriptor.Descriptor {
	return append([]*descriptor.Descriptor(nil), c.fields...)
}

// Field returns the descriptor bound to name.
func (c *Class) Field(name string) (*descriptor.Descriptor, bool) {
	i, ok := c.index[name]
	if !ok {
		return nil, false
	}
	return c.fields[i], true
}

// Params returns the constructor parameter names, or nil when the class
// has no synthesized constructor.
func (c *Class) Params() []string {
	if c.ctor == nil {
		return nil
	}
	return c.fieldNames()
}

func (c *Class) fieldNames() []string {
	names := make([]string, len(c.fields))
	for i, d := range c.fields {
		names[i] = d.Name()
	}
	return names
}

// HasConstructor reports whether a constructor was synthesized.
func (c *Class) HasConstructor() bool {
	return c.ctor != nil
}

// Call constructs an instance. Without a synthesized constructor only an
// argument-free call succeeds, yielding an empty instance.
func (c *Class) Call(args []any, kwargs map[string]any) (*Instance, error) {
	if c.ctor == nil {
		if len(args) > 0 || len(kwargs) > 0 {
			return nil, fmt.Errorf("%w: %s() takes no arguments", ErrArguments, c.name)
		}
		return newInstance(c), nil
	}
	return c.ctor(args, kwargs)
}

// New constructs an instance from positional arguments.
func (c *Class) New(args ...any) (*Instance, error) {
	return c.Call(args, nil)
}

// NewNamed constructs an instance from keyword arguments.
func (c *Class) NewNamed(kwargs map[string]any) (*Instance, error) {
	return c.Call(nil, kwargs)
}

// String renders the class signature, e.g. "Stock(name, shares, price)".
func (c *Class) String() string {
	return c.name + "(" + strings.Join(c.fieldNames(), ", ") + ")"
}

// synthesize creates the constructor closure for c. Arguments are bound
// before any field is assigned; assignment then runs in declaration order
// and stops at the first failing field.
func synthesize(c *Class) Constructor {
	params := c.fieldNames()
	return func(args []any, kwargs map[string]any) (*Instance, error) {
		values, err := bindArguments(c.name, params, args, kwargs)
		if err != nil {
			return nil, err
		}
		if len(values) != len(c.fields) {
			return nil, fmt.Errorf("%w: %s() bound %d of %d fields", ErrArguments, c.name, len(values), len(c.fields))
		}

		inst := newInstance(c)
		for i, v := range values {
			if err := c.fields[i].Set(inst.values, v); err != nil {
				return nil, err
			}
		}
		return inst, nil
	}
}
