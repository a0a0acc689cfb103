package sync

import "encoding/json"

// DTO протокола синхронизации

// PushRequest отправка локальных изменений
type PushRequest struct {
	TenantID     string      `json:"tenantId"`
	DeviceID     string      `json:"deviceId"`
	LastSyncedAt string      `json:"lastSyncedAt,omitempty"`
	Changes      []Changeset `json:"changes"`
}

// PushResponse результат приема изменений
type PushResponse struct {
	Success   bool       `json:"success"`
	Conflicts []Conflict `json:"conflicts"`
	Accepted  int        `json:"accepted"`
	Rejected  int        `json:"rejected"`
	SyncedAt  string     `json:"syncedAt"`
}

// PullRequest параметры запроса удаленных изменений
type PullRequest struct {
	Entities []Entity
	Cursor   string
	Limit    int
}

// PullResponse одна страница удаленных изменений
type PullResponse struct {
	Changes    []Changeset `json:"changes"`
	Deletions  []Deletion  `json:"deletions"`
	SyncedAt   string      `json:"syncedAt"`
	HasMore    bool        `json:"hasMore"`
	NextCursor string      `json:"nextCursor,omitempty"`
}

// StatusResponse состояние удаленного сервиса
type StatusResponse struct {
	Online     bool   `json:"online"`
	Mode       Mode   `json:"mode"`
	ServerTime string `json:"serverTime"`
}

// ResolveConflictRequest запрос на разрешение конфликта
type ResolveConflictRequest struct {
	ConflictID string          `json:"conflictId"`
	Strategy   Strategy        `json:"strategy"`
	MergedData json.RawMessage `json:"mergedData,omitempty"`
}

// ResolveConflictResponse результат разрешения конфликта
type ResolveConflictResponse struct {
	Success    bool   `json:"success"`
	ConflictID string `json:"conflictId"`
	SyncedAt   string `json:"syncedAt"`
}
