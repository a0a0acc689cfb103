package remotetest

import (
	"time"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"
)

// requestLogger пишет в лог каждый запрос к тестовому сервису
func requestLogger(log *slog.Logger) func(huma.Context, func(huma.Context)) {
	log = log.With(slog.String("component", "sync_test_server"))

	return func(ctx huma.Context, next func(huma.Context)) {
		start := time.Now()
		method := ctx.Method()
		path := ctx.URL().Path

		next(ctx)

		log.Debug("HTTP request",
			slog.String("operation", ctx.Operation().OperationID),
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", ctx.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}
