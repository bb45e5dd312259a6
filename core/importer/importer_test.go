package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/recordkit/adapters/clock"
	"github.com/artpar/recordkit/adapters/idgen"
	"github.com/artpar/recordkit/core/descriptor"
	"github.com/artpar/recordkit/core/events"
	"github.com/artpar/recordkit/core/record"
	"github.com/artpar/recordkit/core/source"
	"github.com/artpar/recordkit/ports"
)

const stockXML = `<?xml version="1.0" encoding="us-ascii"?>
<structures>
  <structure name="Stock">
    <field type="SizedString" maxlen="10">name</field>
    <field type="PosInteger">shares</field>
    <field type="PosFloat">price</field>
  </structure>
  <structure name="Point">
    <field type="Integer">x</field>
    <field type="Integer">y</field>
  </structure>
</structures>
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

type fakeRecorder struct {
	mu           sync.Mutex
	hits         []string
	declined     []string
	materialized []string
	failed       map[string]string
	took         time.Duration
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{failed: make(map[string]string)}
}

func (f *fakeRecorder) CacheHit(m string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits = append(f.hits, m)
}

func (f *fakeRecorder) Declined(m string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declined = append(f.declined, m)
}

func (f *fakeRecorder) Materialized(m, format string, classes int, took time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.materialized = append(f.materialized, m)
	f.took = took
}

func (f *fakeRecorder) Failed(m, stage string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[m] = stage
}

var _ ports.ImportRecorder = (*fakeRecorder)(nil)

func newTestRegistry(t *testing.T, dirs ...string) (*Registry, *fakeRecorder) {
	t.Helper()
	rec := newFakeRecorder()
	r := NewRegistry(
		WithLogger(zerolog.Nop()),
		WithRecorder(rec),
		WithDefaultPath(dirs),
	)
	r.Install(nil)
	return r, rec
}

func TestImport_StockExample(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "stock.xml", stockXML)
	r, _ := newTestRegistry(t, dir)

	mod, err := r.Import(context.Background(), "stock")
	require.NoError(t, err)

	assert.Equal(t, "stock", mod.Name)
	assert.Equal(t, filepath.Join(dir, "stock.xml"), mod.Origin)
	assert.Equal(t, "xml", mod.Format)
	assert.Equal(t, StateCached, mod.State())
	assert.Equal(t, []string{"Stock", "Point"}, mod.ClassNames())

	stock, ok := mod.Class("Stock")
	require.True(t, ok)
	assert.Equal(t, []string{"name", "shares", "price"}, stock.Params())

	s, err := stock.New("GOOG", 100, 490.1)
	require.NoError(t, err)
	assert.Equal(t, `Stock(name="GOOG", shares=100, price=490.1)`, s.String())

	_, err = stock.New("GOOG", -100, 490.1)
	assert.ErrorIs(t, err, descriptor.ErrValue)

	require.NoError(t, s.Set("shares", 75))
	v, err := s.Get("shares")
	require.NoError(t, err)
	assert.Equal(t, 75, v)

	assert.ErrorIs(t, s.Delete("shares"), descriptor.ErrCannotDelete)
}

func TestImport_CachedIdentity(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "stock.xml", stockXML)
	r, rec := newTestRegistry(t, dir)

	first, err := r.Import(context.Background(), "stock")
	require.NoError(t, err)
	firstStock, _ := first.Class("Stock")

	// The cached module is served without touching the file again.
	require.NoError(t, os.Remove(path))

	second, err := r.Import(context.Background(), "stock")
	require.NoError(t, err)
	secondStock, _ := second.Class("Stock")

	assert.Same(t, first, second)
	assert.Same(t, firstStock, secondStock)
	assert.Equal(t, []string{"stock"}, rec.hits)
	assert.Equal(t, []string{"stock"}, rec.materialized)
}

func TestImport_NotFound(t *testing.T) {
	r, rec := newTestRegistry(t, t.TempDir())

	_, err := r.Import(context.Background(), "nosuchmodule")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "nosuchmodule", nf.Name)
	assert.Equal(t, []string{"nosuchmodule"}, rec.declined)

	_, ok := r.Lookup("nosuchmodule")
	assert.False(t, ok)
}

func TestImport_NoResolvers(t *testing.T) {
	r := NewRegistry(WithDefaultPath(nil))
	_, err := r.Import(context.Background(), "stock")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestImport_InvalidNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	writeFile(t, filepath.Join(dir, "sub"), "stock.xml", stockXML)
	writeFile(t, dir, "stock.xml", stockXML)
	r, _ := newTestRegistry(t, dir)

	for _, name := range []string{"", "pkg.", ".stock", "a..stock", "a./sub/stock", "sub/stock", "../stock", "9lives", "stock-data"} {
		t.Run(name, func(t *testing.T) {
			_, err := r.Import(context.Background(), name)
			assert.ErrorIs(t, err, ErrInvalidModuleName)
		})
	}
	assert.Empty(t, r.Modules())
}

func TestLocate_RejectsPathLikeNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	writeFile(t, filepath.Join(dir, "sub"), "stock.xml", stockXML)

	_, found, err := NewPathResolver([]string{dir}).Locate("a./sub/stock", nil)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestImport_DottedName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "stock.xml", stockXML)
	r, _ := newTestRegistry(t, dir)

	mod, err := r.Import(context.Background(), "market.data.stock")
	require.NoError(t, err)
	assert.Equal(t, "market.data.stock", mod.Name)
	assert.Equal(t, filepath.Join(dir, "stock.xml"), mod.Origin)
}

func TestLocate_SearchOrder(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	writeFile(t, second, "stock.xml", stockXML)

	p := NewPathResolver([]string{first, second})
	h, found, err := p.Locate("stock", nil)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, filepath.Join(second, "stock.xml"), h.Path)

	writeFile(t, first, "stock.xml", stockXML)
	h, _, _ = p.Locate("stock", nil)
	assert.Equal(t, filepath.Join(first, "stock.xml"), h.Path, "first directory wins")

	// An explicit path list overrides the resolver's own.
	h, _, _ = p.Locate("stock", []string{second})
	assert.Equal(t, filepath.Join(second, "stock.xml"), h.Path)
}

func TestLocate_Extensions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "stock.xml", stockXML)
	writeFile(t, dir, "stock.yaml", "structures: []\n")

	xmlOnly := NewPathResolver([]string{dir})
	h, found, _ := xmlOnly.Locate("stock", nil)
	require.True(t, found)
	assert.Equal(t, "xml", h.Format)

	yamlFirst := NewPathResolver([]string{dir}, WithExtensions("yaml", ".xml"))
	assert.Equal(t, []string{".yaml", ".xml"}, yamlFirst.Extensions())
	h, found, _ = yamlFirst.Locate("stock", nil)
	require.True(t, found)
	assert.Equal(t, "yaml", h.Format)
	assert.Equal(t, filepath.Join(dir, "stock.yaml"), h.Path)
}

func TestLocate_SkipsDirectories(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(first, "stock.xml"), 0o755))
	writeFile(t, second, "stock.xml", stockXML)

	h, found, err := NewPathResolver([]string{first, second}).Locate("stock", nil)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, filepath.Join(second, "stock.xml"), h.Path)
}

func TestLocate_TrailingDot(t *testing.T) {
	_, found, err := NewPathResolver([]string{t.TempDir()}).Locate("pkg.", nil)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestImport_RollbackOnFailure(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
		stage   string
	}{
		{
			name:    "unknown kind",
			content: `<s><structure name="A"><field type="Email">x</field></structure></s>`,
			wantErr: descriptor.ErrUnknownKind,
			stage:   ports.StageMaterialize,
		},
		{
			name:    "bad maxlen",
			content: `<s><structure name="A"><field type="SizedString" maxlen="ten">x</field></structure></s>`,
			wantErr: descriptor.ErrBadConfig,
			stage:   ports.StageMaterialize,
		},
		{
			name:    "duplicate field",
			content: `<s><structure name="A"><field type="String">x</field><field type="Integer">x</field></structure></s>`,
			wantErr: record.ErrDuplicateField,
			stage:   ports.StageMaterialize,
		},
		{
			name:    "duplicate structure",
			content: `<s><structure name="A"/><structure name="A"/></s>`,
			wantErr: ErrDuplicateStructure,
			stage:   ports.StageMaterialize,
		},
		{
			name:    "malformed xml",
			content: `<s><structure name="A">`,
			stage:   ports.StageTranslate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, "broken.xml", tt.content)
			r, rec := newTestRegistry(t, dir)

			_, err := r.Import(context.Background(), "broken")
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, tt.stage, rec.failed["broken"])

			_, ok := r.Lookup("broken")
			assert.False(t, ok, "failed module must not be cached")
			assert.Empty(t, r.Pending(), "placeholder must be removed")

			// A retry after fixing the source starts clean.
			writeFile(t, dir, "broken.xml", stockXML)
			mod, err := r.Import(context.Background(), "broken")
			require.NoError(t, err)
			assert.Equal(t, []string{"Stock", "Point"}, mod.ClassNames())
		})
	}
}

type stubResolver struct {
	name         string
	materialized atomic.Int32
	build        func(ctx context.Context, mod *Module) error
}

func (s *stubResolver) Locate(name string, _ []string) (Handle, bool, error) {
	if name != s.name {
		return Handle{}, false, nil
	}
	return Handle{Name: name, Path: "stub:" + name, Format: "stub"}, true, nil
}

func (s *stubResolver) Materialize(ctx context.Context, _ Handle, mod *Module) error {
	s.materialized.Add(1)
	if s.build != nil {
		return s.build(ctx, mod)
	}
	return nil
}

func TestImport_ResolverChainOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "stock.xml", stockXML)

	r := NewRegistry(WithDefaultPath([]string{dir}))
	stub := &stubResolver{name: "stock"}
	r.Add(stub)
	r.Install(nil)

	mod, err := r.Import(context.Background(), "stock")
	require.NoError(t, err)
	assert.Equal(t, "stub", mod.Format)
	assert.Same(t, Resolver(stub), mod.Loader)

	// Later resolvers still serve names the first declines.
	writeFile(t, dir, "point.xml", stockXML)
	mod, err = r.Import(context.Background(), "point")
	require.NoError(t, err)
	assert.Equal(t, "xml", mod.Format)
	assert.Len(t, r.Resolvers(), 2)
}

func TestImport_SelfReference(t *testing.T) {
	r := NewRegistry(WithDefaultPath(nil))

	var inner *Module
	stub := &stubResolver{name: "self"}
	stub.build = func(ctx context.Context, mod *Module) error {
		got, err := r.Import(ctx, "self")
		if err != nil {
			return err
		}
		inner = got
		assert.Equal(t, StateLocated, got.State())
		return nil
	}
	r.Add(stub)

	done := make(chan struct{})
	var mod *Module
	var err error
	go func() {
		mod, err = r.Import(context.Background(), "self")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("self-referential import deadlocked")
	}
	require.NoError(t, err)
	assert.Same(t, mod, inner)
}

func TestImport_Concurrent(t *testing.T) {
	release := make(chan struct{})
	stub := &stubResolver{name: "shared"}
	stub.build = func(ctx context.Context, mod *Module) error {
		<-release
		return nil
	}

	r := NewRegistry(WithDefaultPath(nil))
	r.Add(stub)

	const n = 16
	results := make([]*Module, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := r.Import(context.Background(), "shared")
			assert.NoError(t, err)
			results[i] = m
		}(i)
	}

	require.Eventually(t, func() bool {
		return len(r.Pending()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), stub.materialized.Load())
	for _, m := range results {
		assert.Same(t, results[0], m)
	}
}

func TestImport_CanceledContext(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "stock.xml", stockXML)
	r, _ := newTestRegistry(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Import(ctx, "stock")
	assert.ErrorIs(t, err, context.Canceled)
	_, ok := r.Lookup("stock")
	assert.False(t, ok)
}

func TestImport_CallerCancelDoesNotFailOthers(t *testing.T) {
	release := make(chan struct{})
	stub := &stubResolver{name: "shared"}
	stub.build = func(ctx context.Context, mod *Module) error {
		<-release
		return ctx.Err()
	}

	r := NewRegistry(WithDefaultPath(nil))
	r.Add(stub)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.Import(ctx, "shared")
		firstErr <- err
	}()
	require.Eventually(t, func() bool {
		return len(r.Pending()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	type result struct {
		mod *Module
		err error
	}
	second := make(chan result, 1)
	go func() {
		m, err := r.Import(context.Background(), "shared")
		second <- result{m, err}
	}()

	cancel()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("canceled caller kept waiting for the shared load")
	}

	close(release)
	select {
	case res := <-second:
		require.NoError(t, res.err)
		assert.Equal(t, "shared", res.mod.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never received the module")
	}

	_, ok := r.Lookup("shared")
	assert.True(t, ok)
	assert.Equal(t, int32(1), stub.materialized.Load())
}

func TestImport_MetadataAndEvents(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "stock.xml", stockXML)

	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	bus := events.NewBus(zerolog.Nop())
	history := events.NewHistory(10)
	history.Attach(bus)
	rec := newFakeRecorder()

	r := NewRegistry(
		WithDefaultPath([]string{dir}),
		WithRecorder(rec),
		WithIDGenerator(idgen.NewSequential("mod_")),
		WithClock(clock.NewTicking(start, time.Second)),
		WithEventBus(bus),
	)
	r.Install(nil)

	mod, err := r.Import(context.Background(), "stock")
	require.NoError(t, err)
	assert.Equal(t, "mod_1", mod.ID)
	assert.True(t, mod.LoadedAt.After(start))
	assert.Equal(t, time.Second, rec.took)

	_, err = r.Import(context.Background(), "missing")
	require.Error(t, err)

	var names []string
	for _, e := range history.Recent() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{events.ModuleLocated, events.ModuleMaterialized, events.ModuleDeclined}, names)
	assert.Equal(t, []string{"Stock", "Point"}, history.Recent()[1].Classes)
}

func TestRegistry_DefaultPathFollowsUpdates(t *testing.T) {
	before, after := t.TempDir(), t.TempDir()
	writeFile(t, after, "stock.xml", stockXML)

	r, _ := newTestRegistry(t, before)
	_, err := r.Import(context.Background(), "stock")
	require.ErrorIs(t, err, ErrNotFound)

	r.SetDefaultPath([]string{after})
	assert.Equal(t, []string{after}, r.DefaultPath())

	_, err = r.Import(context.Background(), "stock")
	require.NoError(t, err)
}

func TestRegistry_InstallIsNotIdempotent(t *testing.T) {
	r := NewRegistry(WithDefaultPath(nil))
	a := r.Install([]string{"/a"})
	b := r.Install([]string{"/a"})

	assert.NotSame(t, a, b)
	assert.Len(t, r.Resolvers(), 2)
	assert.Equal(t, []string{"/a"}, a.Paths())
}

func TestRegistry_Modules(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "stock.xml", stockXML)
	writeFile(t, dir, "alpha.xml", stockXML)
	r, _ := newTestRegistry(t, dir)

	for _, name := range []string{"stock", "alpha"} {
		_, err := r.Import(context.Background(), name)
		require.NoError(t, err)
	}

	mods := r.Modules()
	require.Len(t, mods, 2)
	assert.Equal(t, "alpha", mods[0].Name)
	assert.Equal(t, "stock", mods[1].Name)
	assert.NotEqual(t, mods[0].ID, mods[1].ID)
}

func TestPathResolver_Validate(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "stock.xml", stockXML)
	bad := writeFile(t, dir, "bad.xml", `<s><structure name="A"><field type="Nope">x</field></structure></s>`)

	p := NewPathResolver([]string{dir})
	classes, err := p.Validate(context.Background(), good)
	require.NoError(t, err)
	require.Len(t, classes, 2)
	assert.Equal(t, "Stock", classes[0].Name())

	_, err = p.Validate(context.Background(), bad)
	assert.ErrorIs(t, err, descriptor.ErrUnknownKind)
	assert.Contains(t, err.Error(), "A.x")
}

func TestPathResolver_CustomCatalog(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ticker.xml", `<s><structure name="Quote"><field type="Ticker">symbol</field></structure></s>`)

	cat := descriptor.DefaultCatalog()
	require.NoError(t, cat.Register("Ticker", func(cfg map[string]string) (*descriptor.Descriptor, error) {
		return descriptor.New("Ticker",
			descriptor.TypeRule{Expected: descriptor.TypeText},
			descriptor.SizeRule{MaxLen: 5}), nil
	}))

	r := NewRegistry(WithDefaultPath([]string{dir}))
	r.Install(nil, WithCatalog(cat))

	mod, err := r.Import(context.Background(), "ticker")
	require.NoError(t, err)
	quote, _ := mod.Class("Quote")

	_, err = quote.New("GOOGLE")
	assert.ErrorIs(t, err, descriptor.ErrValue)
	_, err = quote.New("GOOG")
	assert.NoError(t, err)
}

func TestBuildClasses_UnknownKindListsKnown(t *testing.T) {
	structs := []source.Structure{{
		Name:   "Quote",
		Fields: []source.FieldDecl{{Name: "symbol", Kind: "Ticker"}},
	}}

	_, err := BuildClasses(structs, descriptor.DefaultCatalog())
	require.ErrorIs(t, err, descriptor.ErrUnknownKind)
	assert.Contains(t, err.Error(), `Quote.symbol: unknown`)
	assert.Contains(t, err.Error(), "known kinds: Descriptor, Float, Integer")
}

func TestImport_EventsOnlyForSubscribers(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "stock.xml", stockXML)

	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	c := clock.NewTicking(start, time.Second)
	bus := events.NewBus(zerolog.Nop())
	var got []string
	bus.Subscribe(events.ModuleMaterialized, func(_ context.Context, e events.Event) error {
		got = append(got, e.Name+":"+e.Module)
		return nil
	})

	r := NewRegistry(WithDefaultPath([]string{dir}), WithClock(c), WithEventBus(bus))
	r.Install(nil)

	_, err := r.Import(context.Background(), "stock")
	require.NoError(t, err)
	_, err = r.Import(context.Background(), "missing")
	require.Error(t, err)

	assert.Equal(t, []string{"module.materialized:stock"}, got)
}

func TestProcessPath(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	t.Setenv(EnvPath, a+string(os.PathListSeparator)+string(os.PathListSeparator)+b)

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, []string{a, b, wd}, ProcessPath())

	t.Setenv(EnvPath, "")
	assert.Equal(t, []string{wd}, ProcessPath())
}

func TestModule_AddClassDuplicate(t *testing.T) {
	m := newModule("id", "m")
	c1, err := record.NewBuilder("A").Build()
	require.NoError(t, err)
	c2, err := record.NewBuilder("A").Build()
	require.NoError(t, err)

	require.NoError(t, m.AddClass(c1))
	assert.True(t, errors.Is(m.AddClass(c2), ErrDuplicateStructure))
	assert.Len(t, m.Classes(), 1)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "unresolved", StateUnresolved.String())
	assert.Equal(t, "located", StateLocated.String())
	assert.Equal(t, "materialized", StateMaterialized.String())
	assert.Equal(t, "cached", StateCached.String())
}
