// Package syncengine собирает локальные изменения, обменивается ими с облаком и применяет удаленные изменения.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/slog"

	domain "bistrosync/internal/domain/sync"
)

// DefaultInterval период автоматической синхронизации
const DefaultInterval = 5 * time.Minute

// DefaultPullLimit размер страницы pull
const DefaultPullLimit = 500

// Remote протокол облачного сервиса, нужный движку
type Remote interface {
	Push(ctx context.Context, req domain.PushRequest) (*domain.PushResponse, error)
	Pull(ctx context.Context, req domain.PullRequest) (*domain.PullResponse, error)
	ListConflicts(ctx context.Context) ([]domain.Conflict, error)
	ResolveConflict(ctx context.Context, req domain.ResolveConflictRequest) (*domain.ResolveConflictResponse, error)
}

// ModeSource текущий режим работы и события перехода в online
type ModeSource interface {
	Mode() domain.Mode
	OnlineEvents() (<-chan struct{}, func())
}

// TenantSource контекст арендатора и облачной сессии
type TenantSource interface {
	TenantID() string
	HasSession() bool
}

// SnapshotStore хранилище снимка
type SnapshotStore interface {
	Read() domain.Snapshot
	Write(snap domain.Snapshot) error
}

// CursorRegistry идентификатор устройства и курсор pull
type CursorRegistry interface {
	DeviceID() string
	Cursor() (string, bool)
	SetCursor(cursor string) error
}

// Status наблюдаемое состояние синхронизации
type Status struct {
	Syncing        bool
	LastError      string
	LastSyncAt     time.Time
	PendingChanges int
	Conflicts      []domain.Conflict
}

// Options настройки движка
type Options struct {
	Interval  time.Duration
	PullLimit int
	Entities  []domain.Entity
	Now       func() time.Time
}

// Engine оркестратор синхронизации. Одновременно выполняется не больше одного цикла.
type Engine struct {
	collector *Collector
	applier   *Applier
	snapshots SnapshotStore
	registry  CursorRegistry
	remote    Remote
	mode      ModeSource
	tenant    TenantSource
	log       *slog.Logger

	interval  time.Duration
	pullLimit int
	entities  []domain.Entity
	now       func() time.Time

	mu          sync.Mutex
	status      Status
	subscribers map[int]chan Status
	nextSub     int

	lifeMu  sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New создает движок синхронизации
func New(
	stores StoreProvider,
	snapshots SnapshotStore,
	registry CursorRegistry,
	remote Remote,
	mode ModeSource,
	tenant TenantSource,
	opts Options,
	log *slog.Logger,
) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.PullLimit <= 0 {
		opts.PullLimit = DefaultPullLimit
	}
	if len(opts.Entities) == 0 {
		opts.Entities = domain.Entities
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	log = log.With(slog.String("component", "sync_engine"))

	return &Engine{
		collector:   NewCollector(stores, opts.Entities, opts.Now, log),
		applier:     NewApplier(stores, log),
		snapshots:   snapshots,
		registry:    registry,
		remote:      remote,
		mode:        mode,
		tenant:      tenant,
		log:         log,
		interval:    opts.Interval,
		pullLimit:   opts.PullLimit,
		entities:    opts.Entities,
		now:         opts.Now,
		subscribers: make(map[int]chan Status),
	}
}

// Status возвращает копию текущего состояния
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotStatus()
}

func (e *Engine) snapshotStatus() Status {
	st := e.status
	st.Conflicts = append([]domain.Conflict(nil), e.status.Conflicts...)
	return st
}

// Subscribe возвращает канал с последним состоянием после каждого изменения
func (e *Engine) Subscribe() (<-chan Status, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := make(chan Status, 1)
	id := e.nextSub
	e.nextSub++
	e.subscribers[id] = ch
	ch <- e.snapshotStatus()

	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if _, ok := e.subscribers[id]; ok {
			delete(e.subscribers, id)
			close(ch)
		}
	}
}

// update меняет состояние под мьютексом и рассылает его подписчикам
func (e *Engine) update(fn func(st *Status)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn(&e.status)
	e.publishLocked()
}

func (e *Engine) publishLocked() {
	st := e.snapshotStatus()
	for _, ch := range e.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}

// tryBegin переводит движок в syncing, если цикл еще не идет
func (e *Engine) tryBegin() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status.Syncing {
		return false
	}
	e.status.Syncing = true
	e.status.LastError = ""
	e.publishLocked()
	return true
}

// SyncNow выполняет один цикл синхронизации. Если цикл уже идет, режим local
// или нет арендатора, вызов ничего не делает. Ошибка цикла также сохраняется в Status.LastError.
func (e *Engine) SyncNow(ctx context.Context) error {
	if e.mode.Mode() == domain.ModeLocal {
		e.log.Debug("Режим local, синхронизация пропущена")
		return nil
	}
	tenantID := e.tenant.TenantID()
	if tenantID == "" {
		e.log.Debug("Нет арендатора, синхронизация пропущена")
		return nil
	}
	if !e.tryBegin() {
		e.log.Debug("Синхронизация уже выполняется")
		return nil
	}

	start := e.now()
	var cycleErr error
	defer func() {
		e.update(func(st *Status) {
			st.Syncing = false
			if cycleErr != nil {
				st.LastError = cycleErr.Error()
			}
		})
	}()

	e.log.Info("Начало синхронизации", "tenant_id", tenantID)

	cycleErr = e.runCycle(ctx, tenantID)
	if cycleErr != nil {
		e.log.Error("Ошибка синхронизации", "error", cycleErr)
		return cycleErr
	}

	finished := e.now()
	e.update(func(st *Status) {
		st.LastSyncAt = finished
		st.PendingChanges = 0
	})
	e.log.Info("Синхронизация завершена", "duration", finished.Sub(start))
	return nil
}

func (e *Engine) runCycle(ctx context.Context, tenantID string) error {
	prev := e.snapshots.Read()

	changes, next, err := e.collector.Collect(ctx, prev)
	if err != nil {
		return fmt.Errorf("ошибка сбора локальных изменений: %w", err)
	}
	if err := e.snapshots.Write(next); err != nil {
		e.log.Warn("Снимок не сохранен", "error", err)
	}

	e.update(func(st *Status) { st.PendingChanges = len(changes) })

	if len(changes) > 0 {
		cursor, _ := e.registry.Cursor()
		resp, err := e.remote.Push(ctx, domain.PushRequest{
			TenantID:     tenantID,
			DeviceID:     e.registry.DeviceID(),
			LastSyncedAt: cursor,
			Changes:      changes,
		})
		if err != nil {
			return err
		}

		conflicts := resp.Conflicts
		e.update(func(st *Status) { st.Conflicts = conflicts })
		e.log.Info("Изменения отправлены",
			"changes", len(changes),
			"accepted", resp.Accepted,
			"rejected", resp.Rejected,
			"conflicts", len(conflicts),
		)
	}

	if err := e.pull(ctx); err != nil {
		return err
	}

	e.refreshConflicts(ctx)
	return nil
}

func (e *Engine) pull(ctx context.Context) error {
	cursor, _ := e.registry.Cursor()

	resp, err := e.remote.Pull(ctx, domain.PullRequest{
		Entities: e.entities,
		Cursor:   cursor,
		Limit:    e.pullLimit,
	})
	if err != nil {
		return err
	}

	applied, err := e.applier.ApplyChanges(ctx, resp.Changes)
	if err != nil {
		return err
	}
	removed, err := e.applier.ApplyDeletions(ctx, resp.Deletions)
	if err != nil {
		return err
	}

	nextCursor := resp.NextCursor
	if nextCursor == "" {
		nextCursor = resp.SyncedAt
	}
	if nextCursor != "" {
		if err := e.registry.SetCursor(nextCursor); err != nil {
			return err
		}
	}

	e.log.Info("Изменения получены",
		"changes", len(resp.Changes),
		"deletions", len(resp.Deletions),
		"written", applied,
		"removed", removed,
		"has_more", resp.HasMore,
	)
	return nil
}

// refreshConflicts обновляет список конфликтов; при ошибке прежний список сохраняется
func (e *Engine) refreshConflicts(ctx context.Context) {
	if e.mode.Mode() == domain.ModeLocal || !e.tenant.HasSession() {
		e.update(func(st *Status) { st.Conflicts = nil })
		return
	}

	conflicts, err := e.remote.ListConflicts(ctx)
	if err != nil {
		e.log.Warn("Не удалось обновить список конфликтов", "error", err)
		return
	}
	e.update(func(st *Status) { st.Conflicts = conflicts })
}

// Start запускает таймер и подписку на события online. Повторный вызов ничего не делает.
func (e *Engine) Start(ctx context.Context) {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	if e.running {
		return
	}
	e.running = true

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	events, unsubscribe := e.mode.OnlineEvents()

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.runTimer(ctx)
	}()
	go func() {
		defer e.wg.Done()
		defer unsubscribe()
		e.runOnlineEvents(ctx, events)
	}()

	e.log.Info("Автосинхронизация запущена", "interval", e.interval)
}

// Stop останавливает фоновые задачи и ждет их завершения
func (e *Engine) Stop() {
	e.lifeMu.Lock()
	if !e.running {
		e.lifeMu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	e.lifeMu.Unlock()

	cancel()
	e.wg.Wait()
	e.log.Info("Автосинхронизация остановлена")
}

// Run запускает движок и блокируется до отмены контекста
func (e *Engine) Run(ctx context.Context) error {
	e.Start(ctx)
	<-ctx.Done()
	e.Stop()
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

func (e *Engine) runTimer(ctx context.Context) {
	if e.mode.Mode() != domain.ModeLocal {
		e.trigger(ctx, "start")
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.trigger(ctx, "timer")
		}
	}
}

func (e *Engine) runOnlineEvents(ctx context.Context, events <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			e.trigger(ctx, "online")
		}
	}
}

func (e *Engine) trigger(ctx context.Context, reason string) {
	e.log.Debug("Запуск синхронизации", "reason", reason)
	_ = e.SyncNow(ctx)
}
