package descriptor

import (
	"fmt"
	"reflect"
	"unicode/utf8"
)

// Rule is one check in a descriptor's composition chain.
type Rule interface {
	// Name identifies the rule in validation errors.
	Name() string

	// Check returns nil when value passes the rule.
	Check(value any) error
}

// Type names a class of values accepted by a TypeRule.
type Type string

const (
	TypeText    Type = "text"
	TypeInteger Type = "integer"
	TypeFloat   Type = "float"
)

// TypeRule requires the value to be of the expected type.
type TypeRule struct {
	Expected Type
}

// Name returns the rule name.
func (r TypeRule) Name() string {
	return "type"
}

// Check fails with ErrType when value is not of the expected type.
// bool is not an integer.
func (r TypeRule) Check(value any) error {
	if r.matches(value) {
		return nil
	}
	return &ValidationError{
		Rule:    r.Name(),
		Value:   value,
		Message: fmt.Sprintf("expected %s, got %T", r.Expected, value),
		Err:     ErrType,
	}
}

func (r TypeRule) matches(value any) bool {
	switch r.Expected {
	case TypeText:
		_, ok := value.(string)
		return ok
	case TypeInteger:
		return isInteger(value)
	case TypeFloat:
		switch value.(type) {
		case float32, float64:
			return true
		}
	}
	return false
}

// SizeRule bounds the length of a value. Strings are measured in runes.
type SizeRule struct {
	MaxLen int
}

// Name returns the rule name.
func (r SizeRule) Name() string {
	return "size"
}

// Check fails with ErrValue when the value is longer than MaxLen and with
// ErrType when the value has no length.
func (r SizeRule) Check(value any) error {
	n, ok := length(value)
	if !ok {
		return &ValidationError{
			Rule:    r.Name(),
			Value:   value,
			Message: fmt.Sprintf("value of type %T has no length", value),
			Err:     ErrType,
		}
	}
	if n > r.MaxLen {
		return &ValidationError{
			Rule:    r.Name(),
			Value:   value,
			Message: fmt.Sprintf("too big: length %d exceeds maxlen %d", n, r.MaxLen),
			Err:     ErrValue,
		}
	}
	return nil
}

// PositiveRule requires a numeric value >= 0.
type PositiveRule struct{}

// Name returns the rule name.
func (r PositiveRule) Name() string {
	return "positive"
}

// Check fails with ErrValue for negative numbers and ErrType for non-numbers.
func (r PositiveRule) Check(value any) error {
	negative, ok := isNegative(value)
	if !ok {
		return &ValidationError{
			Rule:    r.Name(),
			Value:   value,
			Message: fmt.Sprintf("expected a number, got %T", value),
			Err:     ErrType,
		}
	}
	if negative {
		return &ValidationError{
			Rule:    r.Name(),
			Value:   value,
			Message: "expected >= 0",
			Err:     ErrValue,
		}
	}
	return nil
}

func isInteger(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, uintptr:
		return true
	}
	return false
}

// isNegative reports the sign of a numeric value; ok is false for non-numbers.
func isNegative(v any) (negative bool, ok bool) {
	switch n := v.(type) {
	case int:
		return n < 0, true
	case int8:
		return n < 0, true
	case int16:
		return n < 0, true
	case int32:
		return n < 0, true
	case int64:
		return n < 0, true
	case uint, uint8, uint16, uint32, uint64, uintptr:
		return false, true
	case float32:
		return n < 0, true
	case float64:
		return n < 0, true
	default:
		return false, false
	}
}

func length(v any) (int, bool) {
	if s, ok := v.(string); ok {
		return utf8.RuneCountInString(s), true
	}
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Chan:
		return rv.Len(), true
	}
	return 0, false
}
