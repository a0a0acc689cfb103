package cmd

import (
	"github.com/spf13/cobra"

	"bistrosync/cmd/possyncd/cmd/appctx"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Запустить фоновую синхронизацию",
	Long: `Команда run следит за доступностью облака и синхронизирует кассу
по таймеру и при восстановлении связи. Останавливается по SIGINT или SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := appctx.From(cmd.Context())
		if err != nil {
			return err
		}
		return app.Run(cmd.Context())
	},
}
