package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	domain "bistrosync/internal/domain/sync"
)

// MemoryStore хранилище одной сущности в памяти процесса
type MemoryStore struct {
	entity  domain.Entity
	mu      sync.RWMutex
	seq     int64
	records map[int64]domain.Record
}

// NewMemoryStore создает пустое хранилище сущности
func NewMemoryStore(entity domain.Entity) *MemoryStore {
	return &MemoryStore{
		entity:  entity,
		records: make(map[int64]domain.Record),
	}
}

func (m *MemoryStore) FindAll(_ context.Context) ([]domain.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]int64, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]domain.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.records[id].Clone())
	}
	return out, nil
}

func (m *MemoryStore) Create(_ context.Context, rec domain.Record) (domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkKey(0, rec); err != nil {
		return nil, err
	}

	m.seq++
	stored := rec.Clone()
	stored["id"] = m.seq
	m.records[m.seq] = stored
	return stored.Clone(), nil
}

func (m *MemoryStore) FindByID(_ context.Context, id string) (domain.Record, error) {
	key, err := parseID(id)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[key]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", m.entity, id, ErrNotFound)
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) Update(_ context.Context, id string, patch domain.Record) (domain.Record, error) {
	key, err := parseID(id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", m.entity, id, ErrNotFound)
	}
	updated := merge(rec, patch)
	if err := m.checkKey(key, updated); err != nil {
		return nil, err
	}
	m.records[key] = updated
	return updated.Clone(), nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	key, err := parseID(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, key)
	return nil
}

func (m *MemoryStore) DeleteByKey(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, rec := range m.records {
		if k, ok := domain.RecordKey(m.entity, rec); ok && k == key {
			delete(m.records, id)
		}
	}
	return nil
}

// checkKey запрещает вторую запись связки с тем же натуральным ключом; self исключается из проверки
func (m *MemoryStore) checkKey(self int64, rec domain.Record) error {
	if !domain.UsesNaturalKey(m.entity) {
		return nil
	}
	key, ok := domain.NaturalKey(rec)
	if !ok {
		return nil
	}
	for id, other := range m.records {
		if id == self {
			continue
		}
		if k, ok := domain.NaturalKey(other); ok && k == key {
			return fmt.Errorf("%s %s: %w", m.entity, key, ErrDuplicateKey)
		}
	}
	return nil
}

// merge накладывает patch на копию записи; id не меняется
func merge(rec, patch domain.Record) domain.Record {
	out := rec.Clone()
	for k, v := range patch {
		if k == "id" {
			continue
		}
		out[k] = v
	}
	return out
}

func parseID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("id %q: %w", id, ErrNotFound)
	}
	return n, nil
}
