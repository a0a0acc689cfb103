// Package client собирает компоненты синхронизации кассы в одно приложение.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"

	"bistrosync/internal/app/client/config"
	"bistrosync/internal/app/client/kv"
	"bistrosync/internal/app/client/mode"
	"bistrosync/internal/app/client/remote"
	"bistrosync/internal/app/client/session"
	"bistrosync/internal/app/client/state"
	"bistrosync/internal/app/client/store"
	"bistrosync/internal/app/client/syncengine"
	domain "bistrosync/internal/domain/sync"
)

type App struct {
	config   *config.Config
	log      *slog.Logger
	session  *session.Store
	registry *state.Registry
	remote   *remote.Client
	stores   *store.Dispatcher
	mode     *mode.Service
	engine   *syncengine.Engine
}

// Status сводное состояние для оператора
type Status struct {
	Sync     syncengine.Status
	Mode     domain.Mode
	Backend  store.Backend
	TenantID string
	DeviceID string
}

// New собирает приложение поверх файловой системы ОС
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	return NewWithFs(ctx, cfg, afero.NewOsFs(), log)
}

// NewWithFs собирает приложение; слоты состояния хранятся в fs
func NewWithFs(ctx context.Context, cfg *config.Config, fs afero.Fs, log *slog.Logger) (*App, error) {
	slots, err := kv.New(fs, cfg.StateDir())
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации хранилища состояния: %w", err)
	}

	backend := store.Backend(cfg.StorageBackend)
	if backend != store.BackendMemory {
		if err := fs.MkdirAll(filepath.Dir(cfg.DataPath), 0700); err != nil {
			log.Warn("Не удалось создать каталог базы", "path", cfg.DataPath, "error", err)
		}
	}

	stores, err := store.NewDispatcher(ctx, store.Options{
		Backend:  backend,
		Path:     cfg.DataPath,
		Entities: domain.Entities,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации хранилища записей: %w", err)
	}

	sess := session.New(slots, session.Override{TenantID: cfg.TenantID, Token: cfg.APIToken}, log)
	registry := state.NewRegistry(slots, log)
	remoteClient := remote.New(cfg.APIBaseURL(), cfg.Timeout(), sess, log)
	modeService := mode.New(remoteClient, sess, cfg.ModeCheckInterval(), log)

	engine := syncengine.New(
		stores,
		state.NewSnapshotStore(slots, log),
		registry,
		remoteClient,
		modeService,
		sess,
		syncengine.Options{
			Interval:  cfg.Interval(),
			PullLimit: cfg.PullLimit,
			Entities:  domain.Entities,
		},
		log,
	)

	return &App{
		config:   cfg,
		log:      log,
		session:  sess,
		registry: registry,
		remote:   remoteClient,
		stores:   stores,
		mode:     modeService,
		engine:   engine,
	}, nil
}

// Run запускает сервис режима и автосинхронизацию до отмены контекста или сигнала завершения
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.mode.Refresh(ctx)

	a.log.Info("Клиент запущен",
		"server", a.config.APIBaseURL(),
		"env", a.config.Env,
		"mode", a.mode.Mode(),
		"backend", a.stores.Backend(),
		"device_id", a.registry.DeviceID(),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.mode.Run(ctx)
	})
	g.Go(func() error {
		return a.engine.Run(ctx)
	})

	err := g.Wait()
	a.log.Info("Клиент завершил работу")
	return err
}

// SyncNow проверяет облако и выполняет один цикл синхронизации
func (a *App) SyncNow(ctx context.Context) error {
	a.mode.Refresh(ctx)
	return a.engine.SyncNow(ctx)
}

// ResolveConflict разрешает конфликт и синхронизируется
func (a *App) ResolveConflict(ctx context.Context, conflictID string, strategy domain.Strategy, mergedData json.RawMessage) error {
	a.mode.Refresh(ctx)
	return a.engine.ResolveConflict(ctx, conflictID, strategy, mergedData)
}

// Conflicts перечитывает список конфликтов с сервера
func (a *App) Conflicts(ctx context.Context) []domain.Conflict {
	a.mode.Refresh(ctx)
	return a.engine.RefreshConflicts(ctx)
}

// Status сводное состояние приложения
func (a *App) Status() Status {
	return Status{
		Sync:     a.engine.Status(),
		Mode:     a.mode.Mode(),
		Backend:  a.stores.Backend(),
		TenantID: a.session.TenantID(),
		DeviceID: a.registry.DeviceID(),
	}
}

// Mode текущий режим работы
func (a *App) Mode() domain.Mode {
	return a.mode.Mode()
}

// Probe проверяет облако с ограничением по времени
func (a *App) Probe(ctx context.Context) domain.Mode {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return a.mode.Refresh(ctx)
}

// SetSession сохраняет облачную сессию арендатора
func (a *App) SetSession(tenantID, token string) error {
	return a.session.Set(tenantID, token)
}

// ClearSession удаляет облачную сессию
func (a *App) ClearSession() error {
	return a.session.Clear()
}

// Stores хранилища записей кассы
func (a *App) Stores() *store.Dispatcher {
	return a.stores
}

// Close освобождает хранилище записей
func (a *App) Close() error {
	return a.stores.Close()
}
