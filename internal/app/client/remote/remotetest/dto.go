package remotetest

import (
	domain "bistrosync/internal/domain/sync"
)

// Тела запросов push и resolve принимаются как есть: localId бывает и числом, и строкой,
// поэтому валидация схемы huma для них не подходит.

type pushInput struct {
	RawBody []byte
}

type pushOutput struct {
	Body domain.PushResponse
}

type pullInput struct {
	Entities string `query:"entities"`
	Cursor   string `query:"cursor"`
	Limit    int    `query:"limit"`
}

type pullOutput struct {
	Body domain.PullResponse
}

type statusInput struct{}

type statusOutput struct {
	Body domain.StatusResponse
}

type conflictsInput struct{}

type conflictsOutput struct {
	Body []domain.Conflict
}

type resolveInput struct {
	RawBody []byte
}

type resolveOutput struct {
	Body domain.ResolveConflictResponse
}
