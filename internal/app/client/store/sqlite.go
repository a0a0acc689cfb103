package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/exp/slog"

	domain "bistrosync/internal/domain/sync"
	"bistrosync/internal/infrastructure/migration"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLite встроенная база записей всех сущностей
type SQLite struct {
	db  *sql.DB
	log *slog.Logger
}

// OpenSQLite открывает базу по пути path и применяет миграции схемы
func OpenSQLite(ctx context.Context, path string, engine migration.MigrationEngine, log *slog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия базы данных: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка подключения к базе данных: %w", err)
	}

	if engine == nil {
		engine = migration.DefaultEngine
	}
	if err := migration.NewMigration(migrationsFS, "migrations", migration.SQLiteURL(path), engine).Up(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка инициализации таблиц: %w", err)
	}

	return &SQLite{
		db:  db,
		log: log.With(slog.String("component", "sqlite_store")),
	}, nil
}

// Store возвращает хранилище сущности
func (s *SQLite) Store(entity domain.Entity) *SQLiteStore {
	return &SQLiteStore{db: s.db, entity: entity}
}

// Close закрывает базу
func (s *SQLite) Close() error {
	return s.db.Close()
}

// SQLiteStore хранилище одной сущности в таблице records
type SQLiteStore struct {
	db     *sql.DB
	entity domain.Entity
}

func (s *SQLiteStore) FindAll(ctx context.Context) ([]domain.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, doc FROM records
		WHERE entity = ?
		ORDER BY id
	`, string(s.entity))
	if err != nil {
		return nil, fmt.Errorf("ошибка получения записей %s: %w", s.entity, err)
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		var id int64
		var doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("ошибка чтения записи %s: %w", s.entity, err)
		}
		rec, err := decodeDoc(id, doc)
		if err != nil {
			return nil, fmt.Errorf("ошибка парсинга записи %s/%d: %w", s.entity, id, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка получения записей %s: %w", s.entity, err)
	}
	return out, nil
}

func (s *SQLiteStore) Create(ctx context.Context, rec domain.Record) (domain.Record, error) {
	body := rec.Clone()
	delete(body, "id")

	doc, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации записи: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO records (entity, cloud_id, natural_key, doc, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, string(s.entity), nullable(body.CloudID()), s.naturalKey(body), string(doc), now, now)
	if err != nil {
		return nil, s.writeErr(fmt.Sprintf("ошибка сохранения записи %s", s.entity), err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("ошибка получения id записи: %w", err)
	}
	body["id"] = id
	return body, nil
}

func (s *SQLiteStore) FindByID(ctx context.Context, id string) (domain.Record, error) {
	return s.findByID(ctx, s.db, id)
}

func (s *SQLiteStore) Update(ctx context.Context, id string, patch domain.Record) (domain.Record, error) {
	rowID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback()

	current, err := s.findByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	updated := merge(current, patch)

	body := updated.Clone()
	delete(body, "id")
	doc, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации записи: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE records
		SET cloud_id = ?, natural_key = ?, doc = ?, updated_at = ?
		WHERE entity = ? AND id = ?
	`, nullable(body.CloudID()), s.naturalKey(body), string(doc), time.Now().UTC(), string(s.entity), rowID)
	if err != nil {
		return nil, s.writeErr(fmt.Sprintf("ошибка обновления записи %s/%s", s.entity, id), err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return updated, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	rowID, err := parseID(id)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM records WHERE entity = ? AND id = ?`, string(s.entity), rowID)
	if err != nil {
		return fmt.Errorf("ошибка удаления записи %s/%s: %w", s.entity, id, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteByKey(ctx context.Context, key string) error {
	if !domain.UsesNaturalKey(s.entity) {
		return s.Delete(ctx, key)
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE entity = ? AND natural_key = ?`, string(s.entity), key)
	if err != nil {
		return fmt.Errorf("ошибка удаления записи %s по ключу %s: %w", s.entity, key, err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) findByID(ctx context.Context, q queryer, id string) (domain.Record, error) {
	rowID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var doc string
	err = q.QueryRowContext(ctx, `
		SELECT doc FROM records
		WHERE entity = ? AND id = ?
	`, string(s.entity), rowID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", s.entity, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения записи %s/%s: %w", s.entity, id, err)
	}
	return decodeDoc(rowID, doc)
}

func (s *SQLiteStore) naturalKey(rec domain.Record) any {
	if !domain.UsesNaturalKey(s.entity) {
		return nil
	}
	key, ok := domain.NaturalKey(rec)
	if !ok {
		return nil
	}
	return key
}

// writeErr переводит нарушение уникального натурального ключа в ErrDuplicateKey
func (s *SQLiteStore) writeErr(msg string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("%s: %w", msg, ErrDuplicateKey)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func decodeDoc(id int64, doc string) (domain.Record, error) {
	dec := json.NewDecoder(strings.NewReader(doc))
	dec.UseNumber()

	rec := domain.Record{}
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	rec["id"] = id
	return rec, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
