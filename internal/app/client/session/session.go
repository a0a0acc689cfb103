// Package session хранит контекст арендатора и токен облачной сессии устройства.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/slog"
)

// Key слот с сохраненной сессией
const Key = "session"

var (
	ErrNoSession     = errors.New("no cloud session")
	ErrEmptyTenantID = errors.New("tenant id is empty")
)

// Slots хранилище слотов состояния
type Slots interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

// Session сохраненный контекст облачной сессии
type Session struct {
	TenantID  string    `json:"tenantId"`
	Token     string    `json:"token,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Override значения из конфигурации; они имеют приоритет над сохраненной сессией
type Override struct {
	TenantID string
	Token    string
}

// Store сессия устройства поверх слотов состояния
type Store struct {
	slots    Slots
	log      *slog.Logger
	override Override

	mu      sync.RWMutex
	current *Session
	loaded  bool
}

// New создает хранилище сессии
func New(slots Slots, override Override, log *slog.Logger) *Store {
	return &Store{
		slots:    slots,
		override: override,
		log:      log.With(slog.String("component", "session")),
	}
}

// Set сохраняет новую сессию арендатора
func (s *Store) Set(tenantID, token string) error {
	if tenantID == "" {
		return ErrEmptyTenantID
	}

	sess := &Session{TenantID: tenantID, Token: token, CreatedAt: time.Now().UTC()}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("ошибка сериализации сессии: %w", err)
	}
	if err := s.slots.Set(Key, data); err != nil {
		return fmt.Errorf("ошибка сохранения сессии: %w", err)
	}

	s.mu.Lock()
	s.current = sess
	s.loaded = true
	s.mu.Unlock()

	s.log.Info("Сессия сохранена", "tenant_id", tenantID)
	return nil
}

// Clear удаляет сохраненную сессию
func (s *Store) Clear() error {
	if err := s.slots.Delete(Key); err != nil {
		return fmt.Errorf("ошибка удаления сессии: %w", err)
	}

	s.mu.Lock()
	s.current = nil
	s.loaded = true
	s.mu.Unlock()

	s.log.Info("Сессия удалена")
	return nil
}

// Current возвращает сохраненную сессию с учетом значений из конфигурации
func (s *Store) Current() (Session, error) {
	sess := s.load()

	var out Session
	if sess != nil {
		out = *sess
	}
	if s.override.TenantID != "" {
		out.TenantID = s.override.TenantID
	}
	if s.override.Token != "" {
		out.Token = s.override.Token
	}
	if out.TenantID == "" && out.Token == "" {
		return Session{}, ErrNoSession
	}
	return out, nil
}

// TenantID идентификатор арендатора или пустая строка
func (s *Store) TenantID() string {
	sess, err := s.Current()
	if err != nil {
		return ""
	}
	return sess.TenantID
}

// Token bearer-токен сессии или пустая строка
func (s *Store) Token() string {
	sess, err := s.Current()
	if err != nil {
		return ""
	}
	return sess.Token
}

// HasSession есть ли действующая облачная сессия
func (s *Store) HasSession() bool {
	sess, err := s.Current()
	return err == nil && sess.TenantID != "" && sess.Token != ""
}

func (s *Store) load() *Session {
	s.mu.RLock()
	if s.loaded {
		defer s.mu.RUnlock()
		return s.current
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.current
	}

	data, ok, err := s.slots.Get(Key)
	if err != nil {
		s.log.Warn("Не удалось прочитать сессию", "error", err)
		return nil
	}
	s.loaded = true
	if !ok {
		return nil
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		s.log.Warn("Сохраненная сессия повреждена", "error", err)
		return nil
	}
	s.current = &sess
	return s.current
}
