package state

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"
)

// FallbackDeviceID используется, когда ни хранилище, ни hostname недоступны
const FallbackDeviceID = "unknown-device"

// Registry идентификатор устройства и курсор pull
type Registry struct {
	slots    Slots
	log      *slog.Logger
	hostname func() (string, error)

	mu       sync.Mutex
	deviceID string
}

type cursorState struct {
	Cursor    string    `json:"cursor"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewRegistry создает реестр устройства и курсора
func NewRegistry(slots Slots, log *slog.Logger) *Registry {
	return &Registry{
		slots:    slots,
		log:      log.With(slog.String("component", "registry")),
		hostname: os.Hostname,
	}
}

// DeviceID возвращает постоянный идентификатор устройства, создавая его при первом вызове.
// Если хранилище недоступно, возвращается запасной идентификатор без ошибки.
func (r *Registry) DeviceID() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.deviceID != "" {
		return r.deviceID
	}

	data, ok, err := r.slots.Get(DeviceIDKey)
	if err != nil {
		r.log.Warn("Хранилище недоступно, используем запасной идентификатор устройства", "error", err)
		return r.fallback()
	}
	if ok {
		var id string
		if err := json.Unmarshal(data, &id); err == nil && id != "" {
			r.deviceID = id
			return id
		}
		r.log.Warn("Идентификатор устройства поврежден, создаем новый")
	}

	id := uuid.NewString()
	encoded, _ := json.Marshal(id)
	if err := r.slots.Set(DeviceIDKey, encoded); err != nil {
		r.log.Warn("Не удалось сохранить идентификатор устройства", "error", err)
		return r.fallback()
	}

	r.log.Info("Создан идентификатор устройства", "device_id", id)
	r.deviceID = id
	return id
}

func (r *Registry) fallback() string {
	host, err := r.hostname()
	host = strings.TrimSpace(host)
	if err != nil || host == "" {
		return FallbackDeviceID
	}
	return "device-" + host
}

// Cursor возвращает сохраненный курсор pull
func (r *Registry) Cursor() (string, bool) {
	data, ok, err := r.slots.Get(CursorKey)
	if err != nil {
		r.log.Warn("Не удалось прочитать курсор", "error", err)
		return "", false
	}
	if !ok {
		return "", false
	}

	var st cursorState
	if err := json.Unmarshal(data, &st); err != nil || st.Cursor == "" {
		return "", false
	}
	return st.Cursor, true
}

// SetCursor сохраняет курсор pull
func (r *Registry) SetCursor(cursor string) error {
	data, err := json.Marshal(cursorState{Cursor: cursor, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("ошибка сериализации курсора: %w", err)
	}
	if err := r.slots.Set(CursorKey, data); err != nil {
		return fmt.Errorf("ошибка сохранения курсора: %w", err)
	}
	return nil
}
