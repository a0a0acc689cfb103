package syncengine

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bistrosync/internal/app/client/remote/remotetest"
	domain "bistrosync/internal/domain/sync"
)

func TestSyncNowFullCycle(t *testing.T) {
	h := newHarness(t)
	seed(t, h.stores, domain.EntityProduct,
		domain.Record{"name": "Espresso"},
		domain.Record{"name": "Latte"},
	)
	h.server.QueuePull(domain.PullResponse{
		Changes: []domain.Changeset{{
			Entity:    domain.EntityCategory,
			Operation: domain.OpCreate,
			LocalID:   "40",
			CloudID:   "cat-40",
			Data:      domain.Record{"id": 40, "name": "Hot drinks"},
		}},
		SyncedAt:   "2024-05-01T12:00:01.000Z",
		NextCursor: "cursor-1",
	})

	require.NoError(t, h.engine.SyncNow(context.Background()))

	pushes := h.server.Pushes()
	require.Len(t, pushes, 1)
	assert.Equal(t, "tenant-1", pushes[0].TenantID)
	assert.Equal(t, h.registry.DeviceID(), pushes[0].DeviceID)
	require.Len(t, pushes[0].Changes, 2)
	for _, ch := range pushes[0].Changes {
		assert.Equal(t, domain.OpCreate, ch.Operation)
	}

	pulls := h.server.Pulls()
	require.Len(t, pulls, 1)
	assert.Equal(t, domain.Entities, pulls[0].Entities)
	assert.Equal(t, DefaultPullLimit, pulls[0].Limit)
	assert.Empty(t, pulls[0].Cursor)

	cursor, ok := h.registry.Cursor()
	require.True(t, ok)
	assert.Equal(t, "cursor-1", cursor)

	categories := all(t, h.stores, domain.EntityCategory)
	require.Len(t, categories, 1)
	assert.Equal(t, "Hot drinks", categories[0]["name"])

	st := h.engine.Status()
	assert.False(t, st.Syncing)
	assert.Empty(t, st.LastError)
	assert.Equal(t, fixedNow, st.LastSyncAt)
	assert.Zero(t, st.PendingChanges)
	assert.Equal(t, 2, h.snapshots.Read().Count())
}

func TestSyncNowSkipsPushWithoutChanges(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.engine.SyncNow(context.Background()))

	assert.Empty(t, h.server.Pushes())
	assert.Len(t, h.server.Pulls(), 1)
}

func TestSyncNowNoopInLocalMode(t *testing.T) {
	counting := &countingStores{inner: newStores(t)}
	h := newHarness(t, withStores(counting), withMode(domain.ModeLocal))

	require.NoError(t, h.engine.SyncNow(context.Background()))

	assert.Zero(t, counting.calls.Load())
	assert.Empty(t, h.server.Pushes())
	assert.Empty(t, h.server.Pulls())
	assert.True(t, h.engine.Status().LastSyncAt.IsZero())
}

func TestSyncNowNoopWithoutTenant(t *testing.T) {
	counting := &countingStores{inner: newStores(t)}
	h := newHarness(t, withStores(counting), withTenant("", false))

	require.NoError(t, h.engine.SyncNow(context.Background()))

	assert.Zero(t, counting.calls.Load())
	assert.Empty(t, h.server.Pulls())
}

func TestCursorFollowsLatestPull(t *testing.T) {
	h := newHarness(t)
	h.server.QueuePull(
		domain.PullResponse{SyncedAt: "2024-05-01T12:00:01.000Z", NextCursor: "c-1"},
		domain.PullResponse{SyncedAt: "2024-05-01T12:00:02.000Z"},
		domain.PullResponse{SyncedAt: "2024-05-01T12:00:03.000Z", NextCursor: "c-3"},
	)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, h.engine.SyncNow(ctx))
	}

	pulls := h.server.Pulls()
	require.Len(t, pulls, 3)
	assert.Equal(t, "", pulls[0].Cursor)
	assert.Equal(t, "c-1", pulls[1].Cursor)
	assert.Equal(t, "2024-05-01T12:00:02.000Z", pulls[2].Cursor)

	cursor, _ := h.registry.Cursor()
	assert.Equal(t, "c-3", cursor)
}

func TestPushConflictsVisibleBeforePull(t *testing.T) {
	conflict := domain.Conflict{
		ID:            "conf-7",
		Entity:        domain.EntityProduct,
		CloudID:       "p-7",
		LocalID:       "7",
		Strategy:      domain.StrategyManual,
		ServerVersion: 2,
		ClientVersion: 1,
	}

	var seenAtPull []domain.Conflict
	var hook *hookRemote
	h := newHarness(t, withRemote(func(r Remote) Remote {
		hook = &hookRemote{Remote: r}
		return hook
	}))
	hook.beforePull = func() { seenAtPull = h.engine.Status().Conflicts }

	seed(t, h.stores, domain.EntityProduct, domain.Record{"name": "Mocha"})
	h.server.SetPushConflicts(conflict)
	h.server.SetConflicts(conflict)

	require.NoError(t, h.engine.SyncNow(context.Background()))

	require.Len(t, seenAtPull, 1)
	assert.Equal(t, "conf-7", seenAtPull[0].ID)
	assert.Equal(t, domain.LocalID("7"), seenAtPull[0].LocalID)

	st := h.engine.Status()
	require.Len(t, st.Conflicts, 1)
	assert.Equal(t, "conf-7", st.Conflicts[0].ID)
}

func TestPullFailureRecordsErrorAndKeepsCursor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.registry.SetCursor("c-0"))
	seed(t, h.stores, domain.EntityOrder, domain.Record{"total": 9.5})

	h.server.Fail(remotetest.OpPull, http.StatusServiceUnavailable)

	err := h.engine.SyncNow(ctx)
	require.Error(t, err)

	st := h.engine.Status()
	assert.False(t, st.Syncing)
	assert.Contains(t, st.LastError, "503")
	assert.True(t, st.LastSyncAt.IsZero())
	assert.Equal(t, 1, st.PendingChanges)

	cursor, _ := h.registry.Cursor()
	assert.Equal(t, "c-0", cursor)
	assert.Len(t, h.server.Pushes(), 1)

	// отправленная запись уже в снимке, повтор только забирает изменения
	h.server.Fail(remotetest.OpPull, 0)
	require.NoError(t, h.engine.SyncNow(ctx))

	assert.Len(t, h.server.Pushes(), 1)
	pulls := h.server.Pulls()
	require.Len(t, pulls, 1)
	assert.Equal(t, "c-0", pulls[0].Cursor)
	assert.Empty(t, h.engine.Status().LastError)
}

func TestServerUnavailable(t *testing.T) {
	h := newHarness(t)
	h.server.Close()

	err := h.engine.SyncNow(context.Background())
	require.Error(t, err)

	st := h.engine.Status()
	assert.False(t, st.Syncing)
	assert.Contains(t, st.LastError, "unavailable")
}

func TestConflictRefreshFailureKeepsPreviousList(t *testing.T) {
	var hook *hookRemote
	h := newHarness(t, withRemote(func(r Remote) Remote {
		hook = &hookRemote{Remote: r}
		return hook
	}))
	ctx := context.Background()

	h.server.SetConflicts(domain.Conflict{ID: "conf-1", Entity: domain.EntityOrder, Strategy: domain.StrategyManual})
	require.NoError(t, h.engine.SyncNow(ctx))
	require.Len(t, h.engine.Status().Conflicts, 1)

	hook.listErr = errBoom
	require.NoError(t, h.engine.SyncNow(ctx))

	st := h.engine.Status()
	require.Len(t, st.Conflicts, 1)
	assert.Equal(t, "conf-1", st.Conflicts[0].ID)
	assert.Empty(t, st.LastError)
}

func TestConflictRefreshClearsWithoutSession(t *testing.T) {
	h := newHarness(t, withTenant("tenant-1", false))
	h.server.SetConflicts(domain.Conflict{ID: "conf-1", Entity: domain.EntityOrder})

	require.NoError(t, h.engine.SyncNow(context.Background()))
	assert.Empty(t, h.engine.Status().Conflicts)
}

func TestSyncNowSingleFlight(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once

	var hook *hookRemote
	h := newHarness(t, withRemote(func(r Remote) Remote {
		hook = &hookRemote{Remote: r}
		return hook
	}))
	hook.beforePull = func() {
		once.Do(func() { close(entered) })
		<-release
	}

	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- h.engine.SyncNow(ctx) }()

	<-entered
	assert.True(t, h.engine.Status().Syncing)

	// параллельный вызов сливается с идущим циклом
	require.NoError(t, h.engine.SyncNow(ctx))

	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, int64(1), hook.pulls.Load())
	assert.False(t, h.engine.Status().Syncing)
}

func TestSubscribeSeesSyncingTransitions(t *testing.T) {
	var hook *hookRemote
	h := newHarness(t, withRemote(func(r Remote) Remote {
		hook = &hookRemote{Remote: r}
		return hook
	}))

	updates, unsubscribe := h.engine.Subscribe()
	defer unsubscribe()

	initial := <-updates
	assert.False(t, initial.Syncing)

	var during Status
	hook.beforePull = func() { during = <-updates }

	require.NoError(t, h.engine.SyncNow(context.Background()))

	assert.True(t, during.Syncing)

	final := <-updates
	assert.False(t, final.Syncing)
	assert.Equal(t, fixedNow, final.LastSyncAt)
}

func TestStartRunsInitialSyncAndReactsToOnline(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.engine.Start(ctx)
	h.engine.Start(ctx)

	assert.Eventually(t, func() bool { return len(h.server.Pulls()) == 1 }, 2*time.Second, 10*time.Millisecond)

	h.mode.events <- struct{}{}
	assert.Eventually(t, func() bool { return len(h.server.Pulls()) == 2 }, 2*time.Second, 10*time.Millisecond)

	h.engine.Stop()
	h.engine.Stop()
}

func TestStartInLocalModeSkipsInitialSync(t *testing.T) {
	h := newHarness(t, withMode(domain.ModeLocal))

	h.engine.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	h.engine.Stop()

	assert.Empty(t, h.server.Pulls())
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, withMode(domain.ModeLocal))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestResolveConflictKeepRemote(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.server.SetConflicts(
		domain.Conflict{ID: "conf-1", Entity: domain.EntityProduct, CloudID: "p-1", Strategy: domain.StrategyManual},
		domain.Conflict{ID: "conf-2", Entity: domain.EntityOrder, CloudID: "o-2", Strategy: domain.StrategyManual},
	)
	require.NoError(t, h.engine.SyncNow(ctx))
	require.Len(t, h.engine.Conflicts(), 2)
	pullsBefore := len(h.server.Pulls())

	require.NoError(t, h.engine.ResolveConflict(ctx, "conf-1", domain.StrategyServerWins, json.RawMessage(`{"ignored":true}`)))

	resolutions := h.server.Resolutions()
	require.Len(t, resolutions, 1)
	assert.Equal(t, domain.StrategyServerWins, resolutions[0].Strategy)
	assert.Empty(t, resolutions[0].MergedData)

	conflicts := h.engine.Conflicts()
	require.Len(t, conflicts, 1)
	assert.Equal(t, "conf-2", conflicts[0].ID)

	assert.Equal(t, pullsBefore+1, len(h.server.Pulls()), "после разрешения выполняется полный цикл")
}

func TestResolveConflictMergeForwardsPayload(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.server.SetConflicts(domain.Conflict{ID: "conf-1", Entity: domain.EntityProduct})

	payload := json.RawMessage(`{"name":"Merged","price":4.2}`)
	require.NoError(t, h.engine.ResolveConflict(ctx, "conf-1", domain.StrategyMerge, payload))

	resolutions := h.server.Resolutions()
	require.Len(t, resolutions, 1)
	assert.JSONEq(t, string(payload), string(resolutions[0].MergedData))
}

func TestResolveConflictValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.engine.ResolveConflict(ctx, "conf-1", domain.StrategyMerge, nil)
	assert.ErrorIs(t, err, ErrPayloadRequired)

	err = h.engine.ResolveConflict(ctx, "conf-1", domain.StrategyManual, json.RawMessage(`{broken`))
	assert.ErrorIs(t, err, ErrPayloadRequired)

	err = h.engine.ResolveConflict(ctx, "conf-1", "KEEP_BOTH", nil)
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	err = h.engine.ResolveConflict(ctx, "", domain.StrategyClientWins, nil)
	assert.ErrorIs(t, err, ErrEmptyConflictID)

	assert.Empty(t, h.server.Resolutions())
}

func TestResolveUnknownConflictFails(t *testing.T) {
	h := newHarness(t)

	err := h.engine.ResolveConflict(context.Background(), "missing", domain.StrategyClientWins, nil)
	require.Error(t, err)
	assert.Empty(t, h.server.Pulls(), "после неудачного разрешения цикла нет")
}
