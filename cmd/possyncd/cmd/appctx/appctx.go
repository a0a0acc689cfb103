// Package appctx передает собранное приложение командам через контекст cobra.
package appctx

import (
	"context"
	"errors"

	"bistrosync/internal/app/client"
)

var ErrNoApp = errors.New("приложение не инициализировано")

type appKey struct{}

type jsonKey struct{}

func With(ctx context.Context, app *client.App, jsonOutput bool) context.Context {
	ctx = context.WithValue(ctx, appKey{}, app)
	return context.WithValue(ctx, jsonKey{}, jsonOutput)
}

func From(ctx context.Context) (*client.App, error) {
	app, ok := ctx.Value(appKey{}).(*client.App)
	if !ok || app == nil {
		return nil, ErrNoApp
	}
	return app, nil
}

// JSON запрошен ли машиночитаемый вывод
func JSON(ctx context.Context) bool {
	v, _ := ctx.Value(jsonKey{}).(bool)
	return v
}
