package syncengine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"bistrosync/internal/app/client/kv"
	"bistrosync/internal/app/client/remote"
	"bistrosync/internal/app/client/remote/remotetest"
	"bistrosync/internal/app/client/state"
	"bistrosync/internal/app/client/store"
	domain "bistrosync/internal/domain/sync"
)

var errBoom = errors.New("boom")

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// fakeMode источник режима с ручным переключением и событиями online
type fakeMode struct {
	mu     sync.Mutex
	mode   domain.Mode
	events chan struct{}
}

func newFakeMode(mode domain.Mode) *fakeMode {
	return &fakeMode{mode: mode, events: make(chan struct{}, 1)}
}

func (f *fakeMode) Mode() domain.Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

func (f *fakeMode) set(mode domain.Mode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mode = mode
}

func (f *fakeMode) OnlineEvents() (<-chan struct{}, func()) {
	return f.events, func() {}
}

type fakeTenant struct {
	tenant  string
	session bool
}

func (f fakeTenant) TenantID() string { return f.tenant }
func (f fakeTenant) HasSession() bool { return f.session }

// countingStores считает все обращения к хранилищам
type countingStores struct {
	inner StoreProvider
	calls atomic.Int64
}

func (c *countingStores) Store(entity domain.Entity) (store.RecordStore, error) {
	c.calls.Add(1)
	s, err := c.inner.Store(entity)
	if err != nil {
		return nil, err
	}
	return &countingStore{RecordStore: s, parent: c}, nil
}

type countingStore struct {
	store.RecordStore
	parent *countingStores
	writes atomic.Int64
}

func (c *countingStore) FindAll(ctx context.Context) ([]domain.Record, error) {
	c.parent.calls.Add(1)
	return c.RecordStore.FindAll(ctx)
}

func (c *countingStore) Create(ctx context.Context, rec domain.Record) (domain.Record, error) {
	c.parent.calls.Add(1)
	c.writes.Add(1)
	return c.RecordStore.Create(ctx, rec)
}

// writeCounter считает записи в хранилища по сущностям
type writeCounter struct {
	inner  StoreProvider
	mu     sync.Mutex
	writes map[domain.Entity]int
}

func newWriteCounter(inner StoreProvider) *writeCounter {
	return &writeCounter{inner: inner, writes: map[domain.Entity]int{}}
}

func (w *writeCounter) Store(entity domain.Entity) (store.RecordStore, error) {
	s, err := w.inner.Store(entity)
	if err != nil {
		return nil, err
	}
	return &countedWrites{MemoryStore: s.(*store.MemoryStore), entity: entity, parent: w}, nil
}

func (w *writeCounter) count(entity domain.Entity) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes[entity]
}

func (w *writeCounter) add(entity domain.Entity) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes[entity]++
}

type countedWrites struct {
	*store.MemoryStore
	entity domain.Entity
	parent *writeCounter
}

func (c *countedWrites) Create(ctx context.Context, rec domain.Record) (domain.Record, error) {
	c.parent.add(c.entity)
	return c.MemoryStore.Create(ctx, rec)
}

func (c *countedWrites) Update(ctx context.Context, id string, patch domain.Record) (domain.Record, error) {
	c.parent.add(c.entity)
	return c.MemoryStore.Update(ctx, id, patch)
}

// failingStores не отдает хранилище указанной сущности
type failingStores struct {
	inner  StoreProvider
	broken domain.Entity
}

func (f failingStores) Store(entity domain.Entity) (store.RecordStore, error) {
	if entity == f.broken {
		return nil, errBoom
	}
	return f.inner.Store(entity)
}

func newStores(t *testing.T) *store.Dispatcher {
	t.Helper()
	d, err := store.NewDispatcher(context.Background(), store.Options{Backend: store.BackendMemory}, slog.Default())
	require.NoError(t, err)
	return d
}

func mustStore(t *testing.T, p StoreProvider, entity domain.Entity) store.RecordStore {
	t.Helper()
	s, err := p.Store(entity)
	require.NoError(t, err)
	return s
}

func seed(t *testing.T, p StoreProvider, entity domain.Entity, recs ...domain.Record) []domain.Record {
	t.Helper()
	s := mustStore(t, p, entity)
	out := make([]domain.Record, 0, len(recs))
	for _, r := range recs {
		created, err := s.Create(context.Background(), r)
		require.NoError(t, err)
		out = append(out, created)
	}
	return out
}

func all(t *testing.T, p StoreProvider, entity domain.Entity) []domain.Record {
	t.Helper()
	recs, err := mustStore(t, p, entity).FindAll(context.Background())
	require.NoError(t, err)
	return recs
}

// harness движок поверх тестового сервиса синхронизации
type harness struct {
	engine    *Engine
	server    *remotetest.Server
	stores    StoreProvider
	snapshots *state.SnapshotStore
	registry  *state.Registry
	mode      *fakeMode
	remote    Remote
}

type harnessOption func(h *harnessConfig)

type harnessConfig struct {
	stores StoreProvider
	tenant fakeTenant
	mode   domain.Mode
	wrap   func(Remote) Remote
}

func withStores(p StoreProvider) harnessOption {
	return func(h *harnessConfig) { h.stores = p }
}

func withTenant(tenant string, session bool) harnessOption {
	return func(h *harnessConfig) { h.tenant = fakeTenant{tenant: tenant, session: session} }
}

func withMode(mode domain.Mode) harnessOption {
	return func(h *harnessConfig) { h.mode = mode }
}

func withRemote(wrap func(Remote) Remote) harnessOption {
	return func(h *harnessConfig) { h.wrap = wrap }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	cfg := harnessConfig{
		tenant: fakeTenant{tenant: "tenant-1", session: true},
		mode:   domain.ModeHybrid,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.stores == nil {
		cfg.stores = newStores(t)
	}

	slots, err := kv.New(afero.NewMemMapFs(), "/state")
	require.NoError(t, err)

	srv := remotetest.New(t)
	var client Remote = remote.New(srv.BaseURL(), 5*time.Second, nil, slog.Default())
	if cfg.wrap != nil {
		client = cfg.wrap(client)
	}

	snapshots := state.NewSnapshotStore(slots, slog.Default())
	registry := state.NewRegistry(slots, slog.Default())
	mode := newFakeMode(cfg.mode)

	engine := New(cfg.stores, snapshots, registry, client, mode, cfg.tenant, Options{
		Interval: time.Hour,
		Now:      clock,
	}, slog.Default())

	return &harness{
		engine:    engine,
		server:    srv,
		stores:    cfg.stores,
		snapshots: snapshots,
		registry:  registry,
		mode:      mode,
		remote:    client,
	}
}

// hookRemote перехватывает отдельные вызовы протокола
type hookRemote struct {
	Remote
	beforePull func()
	pullErr    error
	listErr    error
	pulls      atomic.Int64
}

func (h *hookRemote) Pull(ctx context.Context, req domain.PullRequest) (*domain.PullResponse, error) {
	h.pulls.Add(1)
	if h.beforePull != nil {
		h.beforePull()
	}
	if h.pullErr != nil {
		return nil, h.pullErr
	}
	return h.Remote.Pull(ctx, req)
}

func (h *hookRemote) ListConflicts(ctx context.Context) ([]domain.Conflict, error) {
	if h.listErr != nil {
		return nil, h.listErr
	}
	return h.Remote.ListConflicts(ctx)
}
