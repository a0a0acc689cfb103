package store

import (
	"context"
	"fmt"

	"golang.org/x/exp/slog"

	domain "bistrosync/internal/domain/sync"
	"bistrosync/internal/infrastructure/migration"
)

// Options параметры выбора backend
type Options struct {
	Backend  Backend
	Path     string
	Entities []domain.Entity
	// Migrations фабрика мигратора; nil означает migration.DefaultEngine
	Migrations migration.MigrationEngine
}

// Dispatcher маршрутизирует сущности в хранилища выбранного при старте backend
type Dispatcher struct {
	backend Backend
	stores  map[domain.Entity]RecordStore
	db      *SQLite
	log     *slog.Logger
}

// NewDispatcher выбирает backend один раз. В режиме auto при недоступной
// встроенной базе используется хранилище в памяти.
func NewDispatcher(ctx context.Context, opts Options, log *slog.Logger) (*Dispatcher, error) {
	log = log.With(slog.String("component", "store_dispatcher"))

	entities := opts.Entities
	if len(entities) == 0 {
		entities = domain.Entities
	}

	backend := opts.Backend
	if backend == "" {
		backend = BackendAuto
	}

	d := &Dispatcher{
		stores: make(map[domain.Entity]RecordStore, len(entities)),
		log:    log,
	}

	switch backend {
	case BackendMemory:
		d.useMemory(entities)
	case BackendSQLite:
		db, err := OpenSQLite(ctx, opts.Path, opts.Migrations, log)
		if err != nil {
			return nil, err
		}
		d.useSQLite(db, entities)
	case BackendAuto:
		db, err := OpenSQLite(ctx, opts.Path, opts.Migrations, log)
		if err != nil {
			log.Warn("Встроенная база недоступна, используем хранилище в памяти",
				"path", opts.Path,
				"error", err,
			)
			d.useMemory(entities)
			break
		}
		d.useSQLite(db, entities)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}

	log.Info("Хранилище записей выбрано", "backend", d.backend, "entities", len(d.stores))
	return d, nil
}

func (d *Dispatcher) useMemory(entities []domain.Entity) {
	d.backend = BackendMemory
	for _, e := range entities {
		d.stores[e] = NewMemoryStore(e)
	}
}

func (d *Dispatcher) useSQLite(db *SQLite, entities []domain.Entity) {
	d.backend = BackendSQLite
	d.db = db
	for _, e := range entities {
		d.stores[e] = db.Store(e)
	}
}

// Store возвращает хранилище сущности
func (d *Dispatcher) Store(entity domain.Entity) (RecordStore, error) {
	s, ok := d.stores[entity]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}
	return s, nil
}

// Backend возвращает выбранную реализацию
func (d *Dispatcher) Backend() Backend {
	return d.backend
}

// Close освобождает ресурсы backend
func (d *Dispatcher) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}
