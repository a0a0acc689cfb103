// Package store описывает контракт локальных хранилищ записей и выбирает backend при старте.
package store

import (
	"context"
	"errors"

	domain "bistrosync/internal/domain/sync"
)

var (
	ErrUnknownEntity  = domain.ErrUnknownEntity
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateKey   = errors.New("duplicate record key")
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// RecordStore обязательные операции хранилища одной сущности
type RecordStore interface {
	// FindAll возвращает все текущие записи сущности
	FindAll(ctx context.Context) ([]domain.Record, error)
	// Create сохраняет запись и возвращает ее с присвоенным id
	Create(ctx context.Context, rec domain.Record) (domain.Record, error)
}

// Finder необязательный поиск по id
type Finder interface {
	FindByID(ctx context.Context, id string) (domain.Record, error)
}

// Updater необязательное частичное обновление по id
type Updater interface {
	Update(ctx context.Context, id string, patch domain.Record) (domain.Record, error)
}

// Deleter необязательное удаление по id
type Deleter interface {
	Delete(ctx context.Context, id string) error
}

// KeyDeleter необязательное удаление по ключу записи (натуральному для связок)
type KeyDeleter interface {
	DeleteByKey(ctx context.Context, key string) error
}

// Backend реализация хранилищ
type Backend string

const (
	BackendAuto   Backend = "auto"
	BackendSQLite Backend = "sqlite"
	BackendMemory Backend = "memory"
)
