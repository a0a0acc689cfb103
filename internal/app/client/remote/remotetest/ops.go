package remotetest

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// Идентификаторы операций, по которым тесты включают отказы
const (
	OpPush      = "sync-push"
	OpPull      = "sync-pull"
	OpStatus    = "sync-status"
	OpConflicts = "sync-conflicts"
	OpResolve   = "sync-resolve-conflict"
)

func pushOp() huma.Operation {
	return huma.Operation{
		OperationID: OpPush,
		Method:      http.MethodPost,
		Path:        "/api/sync/push",
		Summary:     "Принять локальные изменения",
		Tags:        []string{"sync"},
	}
}

func pullOp() huma.Operation {
	return huma.Operation{
		OperationID: OpPull,
		Method:      http.MethodGet,
		Path:        "/api/sync/pull",
		Summary:     "Отдать удаленные изменения после курсора",
		Tags:        []string{"sync"},
	}
}

func statusOp() huma.Operation {
	return huma.Operation{
		OperationID: OpStatus,
		Method:      http.MethodGet,
		Path:        "/api/sync/status",
		Summary:     "Состояние сервиса синхронизации",
		Tags:        []string{"sync"},
	}
}

func conflictsOp() huma.Operation {
	return huma.Operation{
		OperationID: OpConflicts,
		Method:      http.MethodGet,
		Path:        "/api/sync/conflicts",
		Summary:     "Неразрешенные конфликты",
		Tags:        []string{"sync"},
	}
}

func resolveOp() huma.Operation {
	return huma.Operation{
		OperationID: OpResolve,
		Method:      http.MethodPost,
		Path:        "/api/sync/resolve-conflict",
		Summary:     "Разрешить конфликт",
		Tags:        []string{"sync"},
	}
}
