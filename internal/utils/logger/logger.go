// Package logger настраивает slog под окружение приложения.
package logger

import (
	"io"
	"os"

	"golang.org/x/exp/slog"
	"gopkg.in/natefinch/lumberjack.v2"

	"bistrosync/internal/app/client/config"
	"bistrosync/internal/utils/logger/slogpretty"
)

// New создает логгер для окружения env: local пишет цветной текст, dev и prod пишут JSON
func New(env string) *slog.Logger {
	return newLogger(env, os.Stdout)
}

// NewWithFile дублирует вывод в файл path с ротацией. Пустой path равносилен New.
func NewWithFile(env, path string) *slog.Logger {
	if path == "" {
		return New(env)
	}

	rotated := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
	return newLogger(env, io.MultiWriter(os.Stdout, rotated))
}

func newLogger(env string, w io.Writer) *slog.Logger {
	switch env {
	case config.EnvLocal, "":
		return setupPretty(w)
	case config.EnvDev:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case config.EnvProd:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
}

func setupPrettySlog() *slog.Logger {
	return setupPretty(os.Stdout)
}

func setupPretty(w io.Writer) *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{Level: slog.LevelDebug},
	}
	return slog.New(opts.NewPrettyHandler(w))
}
