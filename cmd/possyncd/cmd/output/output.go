// Package output форматирует ответы команд для терминала.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"bistrosync/internal/app/client"
	domain "bistrosync/internal/domain/sync"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	headerColor  = color.New(color.FgBlue, color.Bold)
	labelColor   = color.New(color.FgWhite, color.Bold)
	dimColor     = color.New(color.FgHiBlack)
)

func Section(w io.Writer, title string) {
	_, _ = headerColor.Fprintf(w, "▸ %s\n", title)
}

func Success(w io.Writer, msg string) {
	_, _ = successColor.Fprintf(w, "✓ %s\n", msg)
}

func Warning(w io.Writer, msg string) {
	_, _ = warningColor.Fprintf(w, "⚠ %s\n", msg)
}

func Error(w io.Writer, msg string) {
	_, _ = errorColor.Fprintf(w, "✗ %s\n", msg)
}

func LabelValue(w io.Writer, label, value string) {
	_, _ = labelColor.Fprintf(w, "  %s: ", label)
	_, _ = fmt.Fprintln(w, value)
}

// JSON печатает v с отступами
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func modeColor(mode domain.Mode) *color.Color {
	switch mode {
	case domain.ModeHybrid:
		return successColor
	case domain.ModeCloud:
		return warningColor
	default:
		return dimColor
	}
}

// Status печатает сводное состояние приложения
func Status(w io.Writer, st client.Status) {
	Section(w, "Синхронизация")

	_, _ = labelColor.Fprintf(w, "  %s: ", "Режим")
	_, _ = modeColor(st.Mode).Fprintln(w, st.Mode)

	LabelValue(w, "Хранилище", string(st.Backend))
	LabelValue(w, "Устройство", st.DeviceID)
	tenant := st.TenantID
	if tenant == "" {
		tenant = "не задан"
	}
	LabelValue(w, "Арендатор", tenant)

	lastSync := "никогда"
	if !st.Sync.LastSyncAt.IsZero() {
		lastSync = st.Sync.LastSyncAt.Local().Format(time.DateTime)
	}
	LabelValue(w, "Последняя синхронизация", lastSync)
	LabelValue(w, "Ожидают отправки", fmt.Sprint(st.Sync.PendingChanges))
	LabelValue(w, "Конфликты", fmt.Sprint(len(st.Sync.Conflicts)))

	if st.Sync.LastError != "" {
		Error(w, st.Sync.LastError)
	}
}

// Conflicts печатает список конфликтов
func Conflicts(w io.Writer, conflicts []domain.Conflict) {
	if len(conflicts) == 0 {
		Success(w, "Конфликтов нет")
		return
	}

	Section(w, fmt.Sprintf("Конфликты (%d)", len(conflicts)))
	for _, c := range conflicts {
		_, _ = labelColor.Fprintf(w, "  %s", c.ID)
		_, _ = dimColor.Fprintf(w, "  %s cloud=%s local=%s\n", c.Entity, c.CloudID, c.LocalID)
		_, _ = fmt.Fprintf(w, "    стратегия %s, версия сервера %d, версия кассы %d\n",
			c.Strategy, c.ServerVersion, c.ClientVersion)
	}
}
