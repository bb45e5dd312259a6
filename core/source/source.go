// Package source translates declarative structure files into ordered
// structure definitions.
//
// A translator only reshapes data: structure and field order is preserved
// exactly and configuration values are passed through as raw text. Turning
// kinds and configuration into descriptors is the importer's job.
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/artpar/recordkit/core/record"
)

// Translation errors.
var (
	ErrMissingName       = errors.New("structure has no name")
	ErrMissingField      = errors.New("field has no name")
	ErrMissingType       = errors.New("field has no type")
	ErrInvalidName       = errors.New("invalid name")
	ErrInvalidValue      = errors.New("invalid configuration value")
	ErrUnsupportedFormat = errors.New("unsupported source format")
)

// KeyType is the field attribute naming the descriptor kind.
const KeyType = "type"

// FieldDecl is one declared field.
type FieldDecl struct {
	Name   string            `json:"name" yaml:"name"`
	Kind   string            `json:"kind" yaml:"kind"`
	Config map[string]string `json:"config,omitempty" yaml:"config,omitempty"`
}

// Structure is one declared record class.
type Structure struct {
	Name   string      `json:"name" yaml:"name"`
	Fields []FieldDecl `json:"fields" yaml:"fields"`
}

// Translator converts one source format into structure definitions.
type Translator interface {
	// Format returns the format name, e.g. "xml".
	Format() string

	// Extensions returns the file extensions handled, with leading dot.
	Extensions() []string

	// Translate reads a whole document.
	Translate(r io.Reader) ([]Structure, error)
}

// Registry maps file extensions to translators.
type Registry struct {
	mu    sync.RWMutex
	byExt map[string]Translator
}

// NewRegistry creates an empty translator registry.
func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]Translator)}
}

// DefaultRegistry returns a registry with the XML, YAML, TOML and HCL
// translators.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, t := range []Translator{XML{}, YAML{}, TOML{}, HCL{}} {
		// Built-in extensions never collide.
		_ = r.Register(t)
	}
	return r
}

// Register adds a translator for all of its extensions.
func (r *Registry) Register(t Translator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	exts := t.Extensions()
	for _, ext := range exts {
		if existing, ok := r.byExt[normalizeExt(ext)]; ok {
			return fmt.Errorf("extension %q already handled by %s", ext, existing.Format())
		}
	}
	for _, ext := range exts {
		r.byExt[normalizeExt(ext)] = t
	}
	return nil
}

// ForExtension returns the translator for ext (".xml" or "xml").
func (r *Registry) ForExtension(ext string) (Translator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byExt[normalizeExt(ext)]
	return t, ok
}

// ForPath returns the translator for a file path's extension.
func (r *Registry) ForPath(path string) (Translator, error) {
	ext := filepath.Ext(path)
	t, ok := r.ForExtension(ext)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
	}
	return t, nil
}

// Extensions returns the registered extensions, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// TranslateFile reads and translates path with the translator for its
// extension. Errors are prefixed with the path.
func (r *Registry) TranslateFile(path string) ([]Structure, error) {
	t, err := r.ForPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	defer f.Close()

	structs, err := t.Translate(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return structs, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// checkStructure enforces the rules shared by every format.
func checkStructure(s Structure) error {
	if s.Name == "" {
		return ErrMissingName
	}
	if !record.IsIdentifier(s.Name) {
		return fmt.Errorf("%w: structure name %q is not a valid identifier", ErrInvalidName, s.Name)
	}
	for i, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("%s field #%d: %w", s.Name, i+1, ErrMissingField)
		}
		if !record.IsIdentifier(f.Name) {
			return fmt.Errorf("%w: %s field name %q is not a valid identifier", ErrInvalidName, s.Name, f.Name)
		}
		if f.Kind == "" {
			return fmt.Errorf("%s.%s: %w", s.Name, f.Name, ErrMissingType)
		}
	}
	return nil
}
