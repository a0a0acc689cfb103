package syncengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	domain "bistrosync/internal/domain/sync"
)

var (
	ErrUnknownStrategy = errors.New("unknown conflict strategy")
	ErrPayloadRequired = errors.New("merged data is required for this strategy")
	ErrEmptyConflictID = errors.New("conflict id is empty")
)

// ResolveConflict отправляет решение по конфликту, обновляет список конфликтов
// и сразу запускает полный цикл, чтобы забрать результат решения.
func (e *Engine) ResolveConflict(ctx context.Context, conflictID string, strategy domain.Strategy, mergedData json.RawMessage) error {
	if conflictID == "" {
		return ErrEmptyConflictID
	}
	if !strategy.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
	if strategy.RequiresPayload() {
		if len(mergedData) == 0 || !json.Valid(mergedData) {
			return fmt.Errorf("%w: %s", ErrPayloadRequired, strategy)
		}
	} else {
		mergedData = nil
	}

	resp, err := e.remote.ResolveConflict(ctx, domain.ResolveConflictRequest{
		ConflictID: conflictID,
		Strategy:   strategy,
		MergedData: mergedData,
	})
	if err != nil {
		return fmt.Errorf("ошибка разрешения конфликта %s: %w", conflictID, err)
	}

	e.log.Info("Конфликт разрешен",
		"conflict_id", conflictID,
		"strategy", strategy,
		"success", resp.Success,
	)

	e.refreshConflicts(ctx)
	return e.SyncNow(ctx)
}

// Conflicts возвращает текущий список конфликтов
func (e *Engine) Conflicts() []domain.Conflict {
	return e.Status().Conflicts
}

// RefreshConflicts перечитывает конфликты с сервера вне цикла синхронизации
func (e *Engine) RefreshConflicts(ctx context.Context) []domain.Conflict {
	e.refreshConflicts(ctx)
	return e.Conflicts()
}
