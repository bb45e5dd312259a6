// Package descriptor implements per-field validation and storage rules.
//
// A Descriptor owns an ordered list of Rules. Every assignment to the field
// runs the rules left to right; the first failure aborts the assignment and
// nothing is stored. A descriptor must be bound to its field name exactly
// once, by the record class that owns it, before it can store anything.
//
// Fields are never removable: Delete always fails.
package descriptor

import (
	"errors"
	"fmt"
)

// Validation and lifecycle errors.
var (
	// ErrType marks a value of the wrong type for its field.
	ErrType = errors.New("type mismatch")

	// ErrValue marks a value of the right type but out of range or over capacity.
	ErrValue = errors.New("value out of range")

	ErrCannotDelete = errors.New("can't delete")
	ErrUnbound      = errors.New("descriptor is not bound to a field")
	ErrAlreadyBound = errors.New("descriptor is already bound")
	ErrUnknownKind  = errors.New("unknown descriptor kind")
	ErrBadConfig    = errors.New("invalid descriptor configuration")
)

// ValidationError describes a value rejected by one of a descriptor's rules.
// It unwraps to ErrType or ErrValue for the built-in rules.
type ValidationError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Value   any    `json:"value,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Descriptor is a named validation+storage rule for one field.
type Descriptor struct {
	kind  string
	name  string
	rules []Rule
}

// New creates an unbound descriptor of the given kind that enforces rules
// in the order given.
func New(kind string, rules ...Rule) *Descriptor {
	return &Descriptor{
		kind:  kind,
		rules: append([]Rule(nil), rules...),
	}
}

// Kind returns the descriptor kind name (e.g. "PosInteger").
func (d *Descriptor) Kind() string {
	return d.kind
}

// Name returns the bound field name, or "" before Bind.
func (d *Descriptor) Name() string {
	return d.name
}

// Bound reports whether Bind has been called.
func (d *Descriptor) Bound() bool {
	return d.name != ""
}

// Rules returns a copy of the descriptor's rules in evaluation order.
func (d *Descriptor) Rules() []Rule {
	return append([]Rule(nil), d.rules...)
}

// Bind attaches the descriptor to a field name. It may succeed only once.
func (d *Descriptor) Bind(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty field name", ErrBadConfig)
	}
	if d.name != "" {
		return fmt.Errorf("%w to %q", ErrAlreadyBound, d.name)
	}
	d.name = name
	return nil
}

// Check runs every rule against value without storing it.
func (d *Descriptor) Check(value any) error {
	for _, r := range d.rules {
		if err := r.Check(value); err != nil {
			return d.annotate(r, value, err)
		}
	}
	return nil
}

// Set validates value and, if every rule passes, stores it in the instance
// field table under the bound name. The table must not be nil.
func (d *Descriptor) Set(table map[string]any, value any) error {
	if d.name == "" {
		return ErrUnbound
	}
	if err := d.Check(value); err != nil {
		return err
	}
	table[d.name] = value
	return nil
}

// Delete always fails: fields cannot be removed once declared.
func (d *Descriptor) Delete(table map[string]any) error {
	if d.name == "" {
		return ErrCannotDelete
	}
	return fmt.Errorf("%s: %w", d.name, ErrCannotDelete)
}

// annotate attaches the field name to a rule failure.
func (d *Descriptor) annotate(r Rule, value any, err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		out := *ve
		out.Field = d.name
		return &out
	}
	return &ValidationError{
		Field:   d.name,
		Rule:    r.Name(),
		Value:   value,
		Message: err.Error(),
		Err:     err,
	}
}

// String renders the descriptor for debugging, e.g. "shares PosInteger".
func (d *Descriptor) String() string {
	if d.name == "" {
		return d.kind
	}
	return d.name + " " + d.kind
}
