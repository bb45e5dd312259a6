// Package importer resolves logical module names to declarative source
// files and materializes them into modules of record classes.
//
// A Registry holds an ordered chain of resolvers and a cache of loaded
// modules. Importing a name that is already cached returns the cached
// module without touching the file system; otherwise resolvers are asked
// in registration order and the first one that locates the name loads it.
// A failed load leaves nothing behind, so a later import retries cleanly.
package importer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/artpar/recordkit/core/events"
	"github.com/artpar/recordkit/core/record"
	"github.com/artpar/recordkit/ports"
)

// Import errors.
var (
	ErrNotFound           = errors.New("module not found")
	ErrDuplicateStructure = errors.New("duplicate structure")
	ErrInvalidModuleName  = errors.New("invalid module name")
)

// NotFoundError is returned when no resolver can locate a module.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no module named %q", e.Name)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// Registry is the resolver chain plus the module cache.
type Registry struct {
	mu sync.RWMutex

	// resolvers in registration order
	resolvers []Resolver

	// cached modules by logical name
	modules map[string]*Module

	// placeholders of in-flight imports
	loading map[string]*Module

	defaultPath []string

	group    singleflight.Group
	logger   zerolog.Logger
	recorder ports.ImportRecorder
	ids      ports.IDGenerator
	clock    ports.Clock
	bus      *events.Bus
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithRecorder sets the import metrics recorder.
func WithRecorder(rec ports.ImportRecorder) Option {
	return func(r *Registry) {
		r.recorder = rec
	}
}

// WithIDGenerator sets the module ID generator.
func WithIDGenerator(ids ports.IDGenerator) Option {
	return func(r *Registry) {
		r.ids = ids
	}
}

// WithClock sets the clock used for load timestamps.
func WithClock(c ports.Clock) Option {
	return func(r *Registry) {
		r.clock = c
	}
}

// WithDefaultPath sets the search path of resolvers installed without one.
func WithDefaultPath(paths []string) Option {
	return func(r *Registry) {
		r.defaultPath = append([]string{}, paths...)
	}
}

// WithEventBus publishes module lifecycle events on bus.
func WithEventBus(bus *events.Bus) Option {
	return func(r *Registry) {
		r.bus = bus
	}
}

type uuidGenerator struct{}

func (uuidGenerator) New() string { return uuid.NewString() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// NewRegistry creates an empty registry. The default search path is
// ProcessPath unless WithDefaultPath is given.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		modules:  make(map[string]*Module),
		loading:  make(map[string]*Module),
		logger:   zerolog.Nop(),
		recorder: ports.NopRecorder{},
		ids:      uuidGenerator{},
		clock:    systemClock{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.defaultPath == nil {
		r.defaultPath = ProcessPath()
	}
	return r
}

// Install appends a path resolver to the chain and returns it. A nil paths
// follows the registry default path, including later SetDefaultPath calls.
// Installing twice adds two resolvers.
func (r *Registry) Install(paths []string, opts ...PathOption) *PathResolver {
	opts = append([]PathOption{withFallback(r.DefaultPath)}, opts...)
	p := NewPathResolver(paths, opts...)
	r.Add(p)
	return p
}

// Add appends a resolver to the chain.
func (r *Registry) Add(res Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolvers = append(r.resolvers, res)
}

// Resolvers returns the resolver chain in order.
func (r *Registry) Resolvers() []Resolver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Resolver(nil), r.resolvers...)
}

// DefaultPath returns the default search path.
func (r *Registry) DefaultPath() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.defaultPath...)
}

// SetDefaultPath replaces the default search path. Cached modules are kept.
func (r *Registry) SetDefaultPath(paths []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultPath = append([]string{}, paths...)
}

// Lookup returns a cached module.
func (r *Registry) Lookup(name string) (*Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	return m, ok
}

// Modules returns the cached modules sorted by name.
func (r *Registry) Modules() []*Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mods := make([]*Module, 0, len(r.modules))
	for _, m := range r.modules {
		mods = append(mods, m)
	}
	sort.Slice(mods, func(i, j int) bool { return mods[i].Name < mods[j].Name })
	return mods
}

// Pending returns the names of modules being materialized, sorted.
func (r *Registry) Pending() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.loading))
	for name := range r.loading {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Import returns the module for name, loading it on first use. Concurrent
// imports of one name share a single load. An import issued while the same
// module is being materialized, from within that materialization, receives
// the partially built module.
func (r *Registry) Import(ctx context.Context, name string) (*Module, error) {
	if err := checkModuleName(name); err != nil {
		return nil, err
	}
	if mod := pendingIn(ctx, name); mod != nil {
		return mod, nil
	}
	if mod, ok := r.Lookup(name); ok {
		r.recorder.CacheHit(name)
		r.logger.Debug().Str("module", name).Msg("module cache hit")
		return mod, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The shared load outlives any single caller: a caller whose context
	// ends stops waiting, the others still receive the module.
	shared := context.WithoutCancel(ctx)
	ch := r.group.DoChan(name, func() (any, error) {
		return r.load(shared, name)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Module), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// checkModuleName accepts dotted names whose every component is an
// identifier, so a name can never reach outside a search directory.
func checkModuleName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidModuleName)
	}
	for _, part := range strings.Split(name, ".") {
		if !record.IsIdentifier(part) {
			return fmt.Errorf("%w: %q", ErrInvalidModuleName, name)
		}
	}
	return nil
}

func (r *Registry) load(ctx context.Context, name string) (*Module, error) {
	if mod, ok := r.Lookup(name); ok {
		return mod, nil
	}

	for _, res := range r.Resolvers() {
		h, found, err := res.Locate(name, nil)
		if err != nil {
			r.fail(ctx, name, "", &StageError{Stage: ports.StageLocate, Err: err})
			return nil, fmt.Errorf("importing %s: %w", name, err)
		}
		if !found {
			continue
		}
		return r.materialize(ctx, res, h)
	}

	r.recorder.Declined(name)
	r.publish(ctx, events.Event{Name: events.ModuleDeclined, Module: name})
	return nil, &NotFoundError{Name: name}
}

func (r *Registry) materialize(ctx context.Context, res Resolver, h Handle) (*Module, error) {
	mod := newModule(r.ids.New(), h.Name)
	mod.Origin = h.Path
	mod.Format = h.Format
	mod.Loader = res
	mod.setState(StateLocated)

	r.mu.Lock()
	r.loading[h.Name] = mod
	r.mu.Unlock()

	r.publish(ctx, events.Event{Name: events.ModuleLocated, Module: h.Name, Origin: h.Path})

	start := r.clock.Now()
	if err := res.Materialize(withPending(ctx, mod), h, mod); err != nil {
		r.rollback(h.Name)
		r.fail(ctx, h.Name, h.Path, err)
		return nil, fmt.Errorf("importing %s: %w", h.Name, err)
	}

	mod.LoadedAt = r.clock.Now()
	mod.setState(StateMaterialized)

	r.mu.Lock()
	delete(r.loading, h.Name)
	r.modules[h.Name] = mod
	mod.setState(StateCached)
	r.mu.Unlock()

	classes := mod.ClassNames()
	r.recorder.Materialized(h.Name, h.Format, len(classes), mod.LoadedAt.Sub(start))
	r.logger.Info().
		Str("module", h.Name).
		Str("origin", h.Path).
		Str("format", h.Format).
		Strs("classes", classes).
		Msg("module materialized")
	r.publish(ctx, events.Event{Name: events.ModuleMaterialized, Module: h.Name, Origin: h.Path, Classes: classes})

	return mod, nil
}

func (r *Registry) rollback(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.loading, name)
}

func (r *Registry) fail(ctx context.Context, name, origin string, err error) {
	stage := ports.StageMaterialize
	var se *StageError
	if errors.As(err, &se) {
		stage = se.Stage
	}

	r.recorder.Failed(name, stage)
	r.logger.Warn().
		Err(err).
		Str("module", name).
		Str("stage", stage).
		Msg("module import failed")
	r.publish(ctx, events.Event{Name: events.ModuleFailed, Module: name, Origin: origin, Error: err.Error()})
}

func (r *Registry) publish(ctx context.Context, e events.Event) {
	if r.bus == nil || !r.bus.HasSubscribers(e.Name) {
		return
	}
	e.At = r.clock.Now()
	r.bus.Publish(ctx, e)
}

type pendingKey struct{}

type pendingChain struct {
	mod    *Module
	parent *pendingChain
}

func withPending(ctx context.Context, mod *Module) context.Context {
	parent, _ := ctx.Value(pendingKey{}).(*pendingChain)
	return context.WithValue(ctx, pendingKey{}, &pendingChain{mod: mod, parent: parent})
}

func pendingIn(ctx context.Context, name string) *Module {
	for c, _ := ctx.Value(pendingKey{}).(*pendingChain); c != nil; c = c.parent {
		if c.mod.Name == name {
			return c.mod
		}
	}
	return nil
}
