// Package kv хранит небольшие именованные слоты состояния клиента в файлах каталога конфигурации.
package kv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// ErrInvalidKey ключ содержит недопустимые символы
var ErrInvalidKey = errors.New("invalid slot key")

// Store слоты key -> bytes поверх afero.Fs
type Store struct {
	fs  afero.Fs
	dir string
	mu  sync.Mutex
}

// New создает хранилище слотов в каталоге dir
func New(fs afero.Fs, dir string) (*Store, error) {
	if ok, _ := afero.DirExists(fs, dir); ok {
		return &Store{fs: fs, dir: dir}, nil
	}
	if err := fs.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("ошибка создания каталога состояния: %w", err)
	}
	return &Store{fs: fs, dir: dir}, nil
}

// Get читает слот. ok=false, если слот не записан.
func (s *Store) Get(key string) ([]byte, bool, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := afero.ReadFile(s.fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка чтения слота %s: %w", key, err)
	}
	return data, true, nil
}

// Set атомарно заменяет содержимое слота через временный файл
func (s *Store) Set(key string, value []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, value, 0600); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("ошибка записи слота %s: %w", key, err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("ошибка сохранения слота %s: %w", key, err)
	}
	return nil
}

// Delete удаляет слот. Отсутствующий слот не считается ошибкой.
func (s *Store) Delete(key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("ошибка удаления слота %s: %w", key, err)
	}
	return nil
}

func (s *Store) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.dir, key+".json"), nil
}
