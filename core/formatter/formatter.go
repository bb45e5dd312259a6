// Package formatter provides a pluggable output formatting system.
// Formatters render imported modules, their record classes and constructed
// instances as table, json or yaml output.
package formatter

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/artpar/recordkit/core/importer"
	"github.com/artpar/recordkit/core/record"
)

// Formatter converts modules and instances to a specific output format.
type Formatter interface {
	// Name returns the formatter name (e.g., "table", "json", "yaml").
	Name() string

	// Description returns a human-readable description.
	Description() string

	// FormatModules formats a summary line per module.
	FormatModules(w io.Writer, mods []*importer.Module, opts FormatOptions) error

	// FormatModule formats one module with every class it defines.
	FormatModule(w io.Writer, mod *importer.Module, opts FormatOptions) error

	// FormatInstance formats a constructed record.
	FormatInstance(w io.Writer, inst *record.Instance, opts FormatOptions) error

	// FormatError formats an error.
	FormatError(w io.Writer, err error) error
}

// FormatOptions configures formatting behavior.
type FormatOptions struct {
	// NoHeader disables header row for tabular formats.
	NoHeader bool

	// Compact minimizes whitespace (for json).
	Compact bool

	// MaxWidth truncates long values (0 = no limit).
	MaxWidth int
}

// Registry maps output format names, and their aliases, to formatters.
// An empty name selects the fallback format.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]Formatter
	aliases  map[string]string
	fallback string
}

// NewRegistry returns an empty registry whose fallback is "table".
func NewRegistry() *Registry {
	return &Registry{
		byName:   map[string]Formatter{},
		aliases:  map[string]string{},
		fallback: "table",
	}
}

// Register adds f under its name and any extra aliases. Names are
// case-insensitive and must not collide with a registered name or alias.
func (r *Registry) Register(f Formatter, aliases ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := append([]string{f.Name()}, aliases...)
	for _, k := range keys {
		if r.taken(strings.ToLower(k)) {
			return fmt.Errorf("formatter name %q already registered", k)
		}
	}
	r.byName[strings.ToLower(f.Name())] = f
	for _, a := range aliases {
		r.aliases[strings.ToLower(a)] = strings.ToLower(f.Name())
	}
	return nil
}

func (r *Registry) taken(key string) bool {
	_, named := r.byName[key]
	_, aliased := r.aliases[key]
	return named || aliased
}

// Get resolves name or alias to a formatter.
func (r *Registry) Get(name string) (Formatter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = r.fallback
	}
	if target, ok := r.aliases[key]; ok {
		key = target
	}
	f, ok := r.byName[key]
	return f, ok
}

// Lookup is Get with an error that lists the available formats.
func (r *Registry) Lookup(name string) (Formatter, error) {
	if f, ok := r.Get(name); ok {
		return f, nil
	}
	return nil, fmt.Errorf("unknown output format %q (available: %s)", name, strings.Join(r.List(), ", "))
}

// List returns the registered format names in order, without aliases.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name := range r.byName {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DefaultRegistry holds the built-in formatters.
var DefaultRegistry = NewRegistry()

// Register adds f to DefaultRegistry.
func Register(f Formatter, aliases ...string) error {
	return DefaultRegistry.Register(f, aliases...)
}

// Get resolves name in DefaultRegistry.
func Get(name string) (Formatter, bool) {
	return DefaultRegistry.Get(name)
}

// Lookup resolves name in DefaultRegistry or reports the available formats.
func Lookup(name string) (Formatter, error) {
	return DefaultRegistry.Lookup(name)
}

// List returns the format names in DefaultRegistry.
func List() []string {
	return DefaultRegistry.List()
}
