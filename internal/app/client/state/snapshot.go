// Package state хранит служебное состояние синхронизации: снимок записей, курсор и идентификатор устройства.
package state

import (
	"encoding/json"
	"fmt"

	"golang.org/x/exp/slog"

	domain "bistrosync/internal/domain/sync"
)

// Ключи слотов локального хранилища
const (
	SnapshotKey = "sync_snapshot_state_v1"
	CursorKey   = "sync_cursor_state_v1"
	DeviceIDKey = "sync_device_id"
)

// Slots именованные слоты, в которые пишется состояние
type Slots interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

// SnapshotStore читает и заменяет снимок последнего сбора изменений
type SnapshotStore struct {
	slots Slots
	log   *slog.Logger
}

// NewSnapshotStore создает хранилище снимка
func NewSnapshotStore(slots Slots, log *slog.Logger) *SnapshotStore {
	return &SnapshotStore{
		slots: slots,
		log:   log.With(slog.String("component", "snapshot_store")),
	}
}

// Read возвращает сохраненный снимок. Отсутствующий или поврежденный снимок читается как пустой.
func (s *SnapshotStore) Read() domain.Snapshot {
	data, ok, err := s.slots.Get(SnapshotKey)
	if err != nil {
		s.log.Warn("Не удалось прочитать снимок, начинаем с пустого", "error", err)
		return domain.Snapshot{}
	}
	if !ok {
		return domain.Snapshot{}
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.log.Warn("Снимок поврежден, начинаем с пустого", "error", err)
		return domain.Snapshot{}
	}
	if snap == nil {
		return domain.Snapshot{}
	}
	for entity, records := range snap {
		if records == nil {
			delete(snap, entity)
		}
	}
	return snap
}

// Write полностью заменяет снимок. При ошибке записи слот очищается,
// чтобы следующий цикл не сравнивал с устаревшим снимком.
func (s *SnapshotStore) Write(snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("ошибка сериализации снимка: %w", err)
	}

	if err := s.slots.Set(SnapshotKey, data); err != nil {
		if derr := s.slots.Delete(SnapshotKey); derr != nil {
			s.log.Warn("Не удалось очистить слот снимка", "error", derr)
		}
		return fmt.Errorf("ошибка сохранения снимка: %w", err)
	}
	return nil
}
