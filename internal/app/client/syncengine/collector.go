package syncengine

import (
	"context"
	"sort"
	"time"

	"golang.org/x/exp/slog"

	"bistrosync/internal/app/client/store"
	domain "bistrosync/internal/domain/sync"
)

// StoreProvider отдает хранилище записей сущности
type StoreProvider interface {
	Store(entity domain.Entity) (store.RecordStore, error)
}

// Collector вычисляет локальные изменения сравнением текущих записей со снимком
type Collector struct {
	stores   StoreProvider
	entities []domain.Entity
	now      func() time.Time
	log      *slog.Logger
}

// NewCollector создает сборщик изменений
func NewCollector(stores StoreProvider, entities []domain.Entity, now func() time.Time, log *slog.Logger) *Collector {
	if now == nil {
		now = time.Now
	}
	return &Collector{
		stores:   stores,
		entities: entities,
		now:      now,
		log:      log.With(slog.String("component", "collector")),
	}
}

// Collect возвращает изменения относительно prev и новый снимок.
// Сущность, которую не удалось прочитать, переносится из prev без изменений.
func (c *Collector) Collect(ctx context.Context, prev domain.Snapshot) ([]domain.Changeset, domain.Snapshot, error) {
	if prev == nil {
		prev = domain.Snapshot{}
	}

	var changes []domain.Changeset
	next := make(domain.Snapshot, len(c.entities))

	for _, entity := range c.entities {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		previous := prev[entity]

		records, err := c.readEntity(ctx, entity)
		if err != nil {
			c.log.Warn("Не удалось прочитать записи, сущность пропущена",
				"entity", entity,
				"error", err,
			)
			if previous != nil {
				next[entity] = previous
			}
			continue
		}

		current := make(map[string]string, len(records))
		for _, rec := range records {
			key, ok := domain.RecordKey(entity, rec)
			if !ok {
				c.log.Debug("Запись без ключа пропущена", "entity", entity)
				continue
			}
			if _, dup := current[key]; dup {
				c.log.Warn("Повторный ключ записи пропущен", "entity", entity, "key", key)
				continue
			}

			serialized, err := domain.Canonical(rec)
			if err != nil {
				c.log.Warn("Не удалось сериализовать запись", "entity", entity, "key", key, "error", err)
				// запись жива: прежнее значение остается в снимке, удаление не порождается
				if old, seen := previous[key]; seen {
					current[key] = old
				}
				continue
			}
			current[key] = serialized

			old, seen := previous[key]
			switch {
			case !seen:
				changes = append(changes, c.toChange(entity, domain.OpCreate, key, rec))
			case old != serialized:
				changes = append(changes, c.toChange(entity, domain.OpUpdate, key, rec))
			}
		}

		var removed []string
		for key := range previous {
			if _, ok := current[key]; !ok {
				removed = append(removed, key)
			}
		}
		sort.Strings(removed)
		for _, key := range removed {
			changes = append(changes, c.toChange(entity, domain.OpDelete, key, reconstruct(key, previous[key])))
		}

		next[entity] = current
	}

	return changes, next, nil
}

func (c *Collector) readEntity(ctx context.Context, entity domain.Entity) ([]domain.Record, error) {
	s, err := c.stores.Store(entity)
	if err != nil {
		return nil, err
	}
	return s.FindAll(ctx)
}

// toChange оборачивает запись в changeset с полями синхронизации
func (c *Collector) toChange(entity domain.Entity, op domain.Operation, key string, rec domain.Record) domain.Changeset {
	localID := key
	if id, ok := domain.FormatScalar(rec["id"]); ok {
		localID = id
	}

	version := int64(1)
	if v, ok := asInt64(rec["version"]); ok {
		version = v
	}

	lastModified, ok := rec["lastModifiedAt"].(string)
	if !ok || lastModified == "" {
		lastModified = domain.FormatTimestamp(c.now())
	}

	data := rec.Clone()
	data["localId"] = domain.LocalID(localID)
	data["version"] = version
	data["isDirty"] = true
	data["isDeleted"] = op == domain.OpDelete
	data["lastModifiedAt"] = lastModified

	return domain.Changeset{
		Entity:    entity,
		Operation: op,
		LocalID:   domain.LocalID(localID),
		CloudID:   rec.CloudID(),
		Data:      data,
		Version:   version,
		Timestamp: lastModified,
	}
}

// reconstruct восстанавливает удаленную запись из снимка; при неудаче остается заглушка с id
func reconstruct(key, serialized string) domain.Record {
	rec, err := decodeRecord(serialized)
	if err != nil || rec == nil {
		return domain.Record{"id": key}
	}
	return rec
}
