package descriptor

import (
	"errors"
	"strings"
	"testing"
)

func bound(t *testing.T, d *Descriptor, name string) *Descriptor {
	t.Helper()
	if err := d.Bind(name); err != nil {
		t.Fatalf("Bind(%q) error = %v", name, err)
	}
	return d
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{
		Field:   "shares",
		Rule:    "positive",
		Value:   -1,
		Message: "expected >= 0",
		Err:     ErrValue,
	}

	if got, want := err.Error(), "shares: expected >= 0"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrValue) {
		t.Error("errors.Is(err, ErrValue) = false, want true")
	}

	noField := &ValidationError{Message: "expected text"}
	if got := noField.Error(); got != "expected text" {
		t.Errorf("Error() without field = %q, want %q", got, "expected text")
	}
}

func TestDescriptor_Bind(t *testing.T) {
	d := New(KindString, TypeRule{Expected: TypeText})

	if d.Bound() {
		t.Error("Bound() = true before Bind")
	}
	if err := d.Bind("name"); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if d.Name() != "name" {
		t.Errorf("Name() = %q, want %q", d.Name(), "name")
	}

	err := d.Bind("other")
	if !errors.Is(err, ErrAlreadyBound) {
		t.Errorf("second Bind() error = %v, want ErrAlreadyBound", err)
	}
	if d.Name() != "name" {
		t.Errorf("Name() after rebind = %q, want %q", d.Name(), "name")
	}

	if err := New(KindString).Bind(""); !errors.Is(err, ErrBadConfig) {
		t.Errorf("Bind(\"\") error = %v, want ErrBadConfig", err)
	}
}

func TestDescriptor_SetStoresValidValues(t *testing.T) {
	c := DefaultCatalog()

	tests := []struct {
		kind  string
		cfg   map[string]string
		value any
	}{
		{KindDescriptor, nil, struct{}{}},
		{KindString, nil, "GOOG"},
		{KindInteger, nil, -5},
		{KindInteger, nil, uint8(7)},
		{KindFloat, nil, 490.1},
		{KindFloat, nil, float32(1.5)},
		{KindPositive, nil, 0},
		{KindPositive, nil, 3.25},
		{KindSized, map[string]string{"maxlen": "3"}, []int{1, 2, 3}},
		{KindPosInteger, nil, int64(100)},
		{KindPosFloat, nil, 0.0},
		{KindSizedString, map[string]string{"maxlen": "10"}, "abcdefghij"},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			d, err := c.New(tt.kind, tt.cfg)
			if err != nil {
				t.Fatalf("New(%q) error = %v", tt.kind, err)
			}
			bound(t, d, "f")

			table := map[string]any{}
			if err := d.Set(table, tt.value); err != nil {
				t.Fatalf("Set(%v) error = %v", tt.value, err)
			}
			if _, ok := table["f"]; !ok {
				t.Error("value not stored under bound name")
			}
		})
	}
}

func TestDescriptor_SetRejects(t *testing.T) {
	c := DefaultCatalog()

	tests := []struct {
		name    string
		kind    string
		cfg     map[string]string
		value   any
		wantErr error
		wantMsg string
	}{
		{"string gets int", KindString, nil, 42, ErrType, "expected text"},
		{"integer gets float", KindInteger, nil, 1.5, ErrType, "expected integer"},
		{"integer gets bool", KindInteger, nil, true, ErrType, "expected integer"},
		{"integer gets numeric text", KindInteger, nil, "100", ErrType, "expected integer"},
		{"float gets int", KindFloat, nil, 1, ErrType, "expected float"},
		{"positive gets negative", KindPositive, nil, -1, ErrValue, "expected >= 0"},
		{"positive gets text", KindPositive, nil, "x", ErrType, "expected a number"},
		{"pos integer gets negative", KindPosInteger, nil, -100, ErrValue, "expected >= 0"},
		{"pos integer gets float", KindPosInteger, nil, -1.0, ErrType, "expected integer"},
		{"pos float gets negative", KindPosFloat, nil, -0.5, ErrValue, "expected >= 0"},
		{"sized string too long", KindSizedString, map[string]string{"maxlen": "10"}, "abcdefghijk", ErrValue, "too big"},
		{"sized string gets int", KindSizedString, map[string]string{"maxlen": "10"}, 5, ErrType, "expected text"},
		{"sized gets int", KindSized, map[string]string{"maxlen": "1"}, 5, ErrType, "no length"},
		{"sized slice too long", KindSized, map[string]string{"maxlen": "1"}, []string{"a", "b"}, ErrValue, "too big"},
		{"sized nil", KindSized, map[string]string{"maxlen": "1"}, nil, ErrType, "no length"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := c.New(tt.kind, tt.cfg)
			if err != nil {
				t.Fatalf("New(%q) error = %v", tt.kind, err)
			}
			bound(t, d, "f")

			table := map[string]any{}
			err = d.Set(table, tt.value)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Set(%v) error = %v, want %v", tt.value, err, tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantMsg)
			}
			if _, stored := table["f"]; stored {
				t.Error("rejected value was stored")
			}

			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error %T is not *ValidationError", err)
			}
			if ve.Field != "f" {
				t.Errorf("ValidationError.Field = %q, want %q", ve.Field, "f")
			}
		})
	}
}

func TestDescriptor_SizeBoundary(t *testing.T) {
	d, err := DefaultCatalog().New(KindSizedString, map[string]string{"maxlen": "10"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	bound(t, d, "name")

	table := map[string]any{}
	if err := d.Set(table, strings.Repeat("x", 10)); err != nil {
		t.Errorf("Set(len 10) error = %v", err)
	}
	if err := d.Set(table, strings.Repeat("x", 11)); !errors.Is(err, ErrValue) {
		t.Errorf("Set(len 11) error = %v, want ErrValue", err)
	}
	// Runes, not bytes.
	if err := d.Set(table, strings.Repeat("é", 10)); err != nil {
		t.Errorf("Set(10 runes) error = %v", err)
	}
	if table["name"] != strings.Repeat("é", 10) {
		t.Errorf("stored %q, want last accepted value", table["name"])
	}
}

func TestDescriptor_RuleOrder(t *testing.T) {
	// Type is checked before sign, so a negative float on PosInteger is a type error.
	d := bound(t, New(KindPosInteger, TypeRule{Expected: TypeInteger}, PositiveRule{}), "n")

	err := d.Check(-2.5)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Check() error = %v, want *ValidationError", err)
	}
	if ve.Rule != "type" {
		t.Errorf("failing rule = %q, want %q", ve.Rule, "type")
	}
}

func TestDescriptor_SetUnbound(t *testing.T) {
	d := New(KindString, TypeRule{Expected: TypeText})
	if err := d.Set(map[string]any{}, "x"); !errors.Is(err, ErrUnbound) {
		t.Errorf("Set() on unbound error = %v, want ErrUnbound", err)
	}
}

func TestDescriptor_Delete(t *testing.T) {
	for _, kind := range DefaultCatalog().Kinds() {
		t.Run(kind, func(t *testing.T) {
			cfg := map[string]string(nil)
			if kind == KindSized || kind == KindSizedString {
				cfg = map[string]string{"maxlen": "5"}
			}
			d, err := DefaultCatalog().New(kind, cfg)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			bound(t, d, "f")

			table := map[string]any{"f": "x"}
			if err := d.Delete(table); !errors.Is(err, ErrCannotDelete) {
				t.Errorf("Delete() error = %v, want ErrCannotDelete", err)
			}
			if _, ok := table["f"]; !ok {
				t.Error("Delete() removed the value")
			}
		})
	}
}

type evenRule struct{}

func (evenRule) Name() string { return "even" }

func (evenRule) Check(v any) error {
	if n, ok := v.(int); ok && n%2 != 0 {
		return errors.New("must be even")
	}
	return nil
}

func TestDescriptor_CustomRuleWrapped(t *testing.T) {
	d := bound(t, New("Even", TypeRule{Expected: TypeInteger}, evenRule{}), "n")

	err := d.Check(3)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Check() error = %v, want *ValidationError", err)
	}
	if ve.Rule != "even" || ve.Field != "n" {
		t.Errorf("ValidationError = %+v, want rule even on field n", ve)
	}
	if got := err.Error(); got != "n: must be even" {
		t.Errorf("Error() = %q", got)
	}
}

func TestDescriptor_String(t *testing.T) {
	d := New(KindPosInteger)
	if d.String() != "PosInteger" {
		t.Errorf("String() = %q, want %q", d.String(), "PosInteger")
	}
	bound(t, d, "shares")
	if d.String() != "shares PosInteger" {
		t.Errorf("String() = %q, want %q", d.String(), "shares PosInteger")
	}
}
