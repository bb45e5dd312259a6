package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/artpar/recordkit/core/descriptor"
	"github.com/artpar/recordkit/core/record"
	"github.com/artpar/recordkit/core/source"
	"github.com/artpar/recordkit/ports"
)

// Handle identifies a located module source.
type Handle struct {
	Name   string
	Path   string
	Format string
}

// Resolver locates module sources and materializes them. Resolvers are
// tried in registration order; the first to locate a name loads it.
type Resolver interface {
	// Locate reports whether the resolver can load name. A nil paths uses
	// the resolver's own search path.
	Locate(name string, paths []string) (Handle, bool, error)

	// Materialize populates mod from the located source.
	Materialize(ctx context.Context, h Handle, mod *Module) error
}

// StageError tags a pipeline failure with the stage it happened in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// PathResolver finds declarative source files named after the last
// component of a module name in a list of directories.
type PathResolver struct {
	paths       []string
	fallback    func() []string
	exts        []string
	translators *source.Registry
	catalog     *descriptor.Catalog
}

// PathOption configures a PathResolver.
type PathOption func(*PathResolver)

// WithExtensions sets the file extensions tried in each directory, in order.
func WithExtensions(exts ...string) PathOption {
	return func(p *PathResolver) {
		p.exts = nil
		for _, ext := range exts {
			if ext == "" {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			p.exts = append(p.exts, ext)
		}
	}
}

// WithTranslators sets the translator registry.
func WithTranslators(r *source.Registry) PathOption {
	return func(p *PathResolver) {
		p.translators = r
	}
}

// WithCatalog sets the descriptor catalog used to build fields.
func WithCatalog(c *descriptor.Catalog) PathOption {
	return func(p *PathResolver) {
		p.catalog = c
	}
}

// withFallback supplies the search path used when paths is nil.
func withFallback(fn func() []string) PathOption {
	return func(p *PathResolver) {
		p.fallback = fn
	}
}

// NewPathResolver creates a resolver over paths. A nil paths defers to the
// fallback path (the registry default when installed through a Registry,
// ProcessPath otherwise). Only ".xml" is searched unless WithExtensions is given.
func NewPathResolver(paths []string, opts ...PathOption) *PathResolver {
	p := &PathResolver{
		exts:        []string{".xml"},
		translators: source.DefaultRegistry(),
		catalog:     descriptor.DefaultCatalog(),
		fallback:    ProcessPath,
	}
	if paths != nil {
		p.paths = append([]string{}, paths...)
	}
	for _, opt := range opts {
		opt(p)
	}
	if len(p.exts) == 0 {
		p.exts = []string{".xml"}
	}
	return p
}

// Paths returns the effective search path.
func (p *PathResolver) Paths() []string {
	if p.paths != nil {
		return append([]string(nil), p.paths...)
	}
	return p.fallback()
}

// Extensions returns the searched extensions in order.
func (p *PathResolver) Extensions() []string {
	return append([]string(nil), p.exts...)
}

// Locate searches each directory for <last component><ext>, directories
// in order and extensions in order within each directory. The first
// regular file found wins; unreadable entries are skipped. A last
// component that is not an identifier is never looked up.
func (p *PathResolver) Locate(name string, paths []string) (Handle, bool, error) {
	base := lastComponent(name)
	if !record.IsIdentifier(base) {
		return Handle{}, false, nil
	}
	if paths == nil {
		paths = p.Paths()
	}

	for _, dir := range paths {
		for _, ext := range p.exts {
			candidate := filepath.Join(dir, base+ext)
			info, err := os.Stat(candidate)
			if err != nil || info.IsDir() {
				continue
			}
			format := strings.TrimPrefix(ext, ".")
			if t, ok := p.translators.ForExtension(ext); ok {
				format = t.Format()
			}
			return Handle{Name: name, Path: candidate, Format: format}, true, nil
		}
	}
	return Handle{}, false, nil
}

// Materialize translates the located file and installs one class per
// structure on mod.
func (p *PathResolver) Materialize(ctx context.Context, h Handle, mod *Module) error {
	structs, err := p.translators.TranslateFile(h.Path)
	if err != nil {
		return &StageError{Stage: ports.StageTranslate, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	classes, err := BuildClasses(structs, p.catalog)
	if err != nil {
		return &StageError{Stage: ports.StageMaterialize, Err: fmt.Errorf("%s: %w", h.Path, err)}
	}
	for _, c := range classes {
		if err := mod.AddClass(c); err != nil {
			return &StageError{Stage: ports.StageMaterialize, Err: err}
		}
	}
	return nil
}

// Validate translates path and builds its classes without registering
// anything.
func (p *PathResolver) Validate(ctx context.Context, path string) ([]*record.Class, error) {
	structs, err := p.translators.TranslateFile(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	classes, err := BuildClasses(structs, p.catalog)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return classes, nil
}

// BuildClasses creates one record class per structure, resolving each
// field's kind and configuration through catalog.
func BuildClasses(structs []source.Structure, catalog *descriptor.Catalog) ([]*record.Class, error) {
	seen := make(map[string]bool, len(structs))
	classes := make([]*record.Class, 0, len(structs))

	for _, s := range structs {
		if seen[s.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateStructure, s.Name)
		}
		seen[s.Name] = true

		b := record.NewBuilder(s.Name)
		for _, f := range s.Fields {
			if !catalog.Has(f.Kind) {
				return nil, fmt.Errorf("%s.%s: %w %q (known kinds: %s)",
					s.Name, f.Name, descriptor.ErrUnknownKind, f.Kind, strings.Join(catalog.Kinds(), ", "))
			}
			d, err := catalog.New(f.Kind, f.Config)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", s.Name, f.Name, err)
			}
			b.Field(f.Name, d)
		}

		c, err := b.Build()
		if err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, nil
}

// lastComponent returns the text after the final dot of a dotted name.
func lastComponent(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}
