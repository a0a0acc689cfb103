// Package syncctl команды разовой синхронизации и работы с конфликтами.
package syncctl

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"bistrosync/cmd/possyncd/cmd/appctx"
	"bistrosync/cmd/possyncd/cmd/output"
	domain "bistrosync/internal/domain/sync"
)

var (
	strategy   string
	mergedData string
)

var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Выполнить один цикл синхронизации",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := appctx.From(cmd.Context())
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		start := time.Now()
		syncErr := app.SyncNow(cmd.Context())
		st := app.Status()

		if appctx.JSON(cmd.Context()) {
			if err := output.JSON(w, st); err != nil {
				return err
			}
			return syncErr
		}

		switch {
		case syncErr != nil:
			output.Error(w, "Синхронизация не выполнена")
		case st.Mode == domain.ModeLocal:
			output.Warning(w, "Облако недоступно, касса работает локально")
		case st.TenantID == "":
			output.Warning(w, "Арендатор не задан: possyncd session set --tenant ID --token TOKEN")
		default:
			output.Success(w, fmt.Sprintf("Синхронизация завершена за %v", time.Since(start).Round(time.Millisecond)))
		}
		output.Status(w, st)
		return syncErr
	},
}

var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Показать состояние синхронизации",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := appctx.From(cmd.Context())
		if err != nil {
			return err
		}

		app.Probe(cmd.Context())
		st := app.Status()

		if appctx.JSON(cmd.Context()) {
			return output.JSON(cmd.OutOrStdout(), st)
		}
		output.Status(cmd.OutOrStdout(), st)
		return nil
	},
}

var ConflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Показать неразрешенные конфликты",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := appctx.From(cmd.Context())
		if err != nil {
			return err
		}

		conflicts := app.Conflicts(cmd.Context())
		if appctx.JSON(cmd.Context()) {
			if conflicts == nil {
				conflicts = []domain.Conflict{}
			}
			return output.JSON(cmd.OutOrStdout(), conflicts)
		}
		if app.Mode() == domain.ModeLocal {
			output.Warning(cmd.OutOrStdout(), "Облако недоступно, список конфликтов пуст")
			return nil
		}
		output.Conflicts(cmd.OutOrStdout(), conflicts)
		return nil
	},
}

var ResolveCmd = &cobra.Command{
	Use:   "resolve <conflict-id>",
	Short: "Разрешить конфликт",
	Long: `Отправляет решение по конфликту и сразу синхронизирует кассу.

Стратегии: SERVER_WINS, CLIENT_WINS, LAST_WRITE_WINS, MERGE, MANUAL.
Для MERGE и MANUAL итоговая запись передается флагом --data в формате JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := appctx.From(cmd.Context())
		if err != nil {
			return err
		}

		var payload json.RawMessage
		if mergedData != "" {
			payload = json.RawMessage(mergedData)
		}

		s := domain.Strategy(strings.ToUpper(strategy))
		if err := app.ResolveConflict(cmd.Context(), args[0], s, payload); err != nil {
			return err
		}

		output.Success(cmd.OutOrStdout(), fmt.Sprintf("Конфликт %s разрешен (%s)", args[0], s))
		return nil
	},
}

func init() {
	ResolveCmd.Flags().StringVar(&strategy, "strategy", string(domain.StrategyServerWins), "стратегия разрешения")
	ResolveCmd.Flags().StringVar(&mergedData, "data", "", "итоговая запись в JSON для MERGE и MANUAL")
}
