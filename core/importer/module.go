package importer

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/artpar/recordkit/core/record"
)

// State is a module's position in the import pipeline.
type State int32

const (
	StateUnresolved State = iota
	StateLocated
	StateMaterialized
	StateCached
)

func (s State) String() string {
	switch s {
	case StateLocated:
		return "located"
	case StateMaterialized:
		return "materialized"
	case StateCached:
		return "cached"
	default:
		return "unresolved"
	}
}

// Module is an imported namespace of record classes. Its metadata is
// fixed once the module is cached.
type Module struct {
	ID       string
	Name     string
	Origin   string
	Format   string
	Loader   Resolver
	LoadedAt time.Time

	mu      sync.RWMutex
	classes []*record.Class
	byName  map[string]*record.Class
	state   atomic.Int32
}

func newModule(id, name string) *Module {
	return &Module{
		ID:     id,
		Name:   name,
		byName: make(map[string]*record.Class),
	}
}

// State returns the current pipeline state.
func (m *Module) State() State {
	return State(m.state.Load())
}

func (m *Module) setState(s State) {
	m.state.Store(int32(s))
}

// AddClass installs a class under its own name.
func (m *Module) AddClass(c *record.Class) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byName[c.Name()]; exists {
		return fmt.Errorf("%w: %s.%s", ErrDuplicateStructure, m.Name, c.Name())
	}
	m.byName[c.Name()] = c
	m.classes = append(m.classes, c)
	return nil
}

// Class returns the named class.
func (m *Module) Class(name string) (*record.Class, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byName[name]
	return c, ok
}

// Classes returns the module classes in source order.
func (m *Module) Classes() []*record.Class {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*record.Class(nil), m.classes...)
}

// ClassNames returns the class names in source order.
func (m *Module) ClassNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.classes))
	for i, c := range m.classes {
		names[i] = c.Name()
	}
	return names
}
