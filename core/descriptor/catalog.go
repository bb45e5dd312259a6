package descriptor

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Built-in descriptor kinds.
const (
	KindDescriptor  = "Descriptor"
	KindString      = "String"
	KindInteger     = "Integer"
	KindFloat       = "Float"
	KindPositive    = "Positive"
	KindSized       = "Sized"
	KindPosInteger  = "PosInteger"
	KindPosFloat    = "PosFloat"
	KindSizedString = "SizedString"
)

// KeyMaxLen is the configuration key of size-bounded kinds.
const KeyMaxLen = "maxlen"

// Constructor builds a fresh, unbound descriptor from raw configuration text.
type Constructor func(cfg map[string]string) (*Descriptor, error)

// Catalog maps kind names to descriptor constructors.
type Catalog struct {
	mu    sync.RWMutex
	kinds map[string]Constructor
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{kinds: make(map[string]Constructor)}
}

// DefaultCatalog returns a new catalog holding the built-in kinds.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	c.kinds[KindDescriptor] = plain(KindDescriptor)
	c.kinds[KindString] = plain(KindString, TypeRule{Expected: TypeText})
	c.kinds[KindInteger] = plain(KindInteger, TypeRule{Expected: TypeInteger})
	c.kinds[KindFloat] = plain(KindFloat, TypeRule{Expected: TypeFloat})
	c.kinds[KindPositive] = plain(KindPositive, PositiveRule{})
	c.kinds[KindSized] = sized(KindSized)
	c.kinds[KindPosInteger] = plain(KindPosInteger, TypeRule{Expected: TypeInteger}, PositiveRule{})
	c.kinds[KindPosFloat] = plain(KindPosFloat, TypeRule{Expected: TypeFloat}, PositiveRule{})
	c.kinds[KindSizedString] = sized(KindSizedString, TypeRule{Expected: TypeText})
	return c
}

// Register adds a custom kind. Kind names are unique within a catalog.
func (c *Catalog) Register(kind string, ctor Constructor) error {
	if kind == "" {
		return fmt.Errorf("%w: empty kind name", ErrBadConfig)
	}
	if ctor == nil {
		return fmt.Errorf("%w: nil constructor for %q", ErrBadConfig, kind)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.kinds[kind]; exists {
		return fmt.Errorf("descriptor kind %q already registered", kind)
	}
	c.kinds[kind] = ctor
	return nil
}

// Has reports whether kind is registered.
func (c *Catalog) Has(kind string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.kinds[kind]
	return ok
}

// New instantiates a descriptor of the given kind with raw configuration.
func (c *Catalog) New(kind string, cfg map[string]string) (*Descriptor, error) {
	c.mu.RLock()
	ctor, ok := c.kinds[kind]
	c.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return ctor(cfg)
}

// Kinds returns the registered kind names, sorted.
func (c *Catalog) Kinds() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	kinds := make([]string, 0, len(c.kinds))
	for k := range c.kinds {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// plain builds a constructor for kinds that take no configuration.
func plain(kind string, rules ...Rule) Constructor {
	return func(cfg map[string]string) (*Descriptor, error) {
		if err := allowKeys(kind, cfg); err != nil {
			return nil, err
		}
		return New(kind, rules...), nil
	}
}

// sized builds a constructor for kinds that require maxlen. The size check
// runs after the prefix rules.
func sized(kind string, prefix ...Rule) Constructor {
	return func(cfg map[string]string) (*Descriptor, error) {
		if err := allowKeys(kind, cfg, KeyMaxLen); err != nil {
			return nil, err
		}
		raw, ok := cfg[KeyMaxLen]
		if !ok {
			return nil, fmt.Errorf("%w: %s requires %q", ErrBadConfig, kind, KeyMaxLen)
		}
		maxLen, err := parseMaxLen(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %s: %v", ErrBadConfig, kind, KeyMaxLen, err)
		}

		rules := make([]Rule, 0, len(prefix)+1)
		rules = append(rules, prefix...)
		rules = append(rules, SizeRule{MaxLen: maxLen})
		return New(kind, rules...), nil
	}
}

func allowKeys(kind string, cfg map[string]string, allowed ...string) error {
	var unknown []string
	for key := range cfg {
		ok := false
		for _, a := range allowed {
			if key == a {
				ok = true
				break
			}
		}
		if !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("%w: %s does not accept %s", ErrBadConfig, kind, strings.Join(unknown, ", "))
}

func parseMaxLen(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", raw)
	}
	if n < 0 {
		return 0, fmt.Errorf("%d is negative", n)
	}
	return n, nil
}
