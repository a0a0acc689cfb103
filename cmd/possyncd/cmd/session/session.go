// Package session команды управления облачной сессией кассы.
package session

import (
	"fmt"

	"github.com/spf13/cobra"

	"bistrosync/cmd/possyncd/cmd/appctx"
	"bistrosync/cmd/possyncd/cmd/output"
)

var (
	tenantID string
	token    string
)

var SessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Управление облачной сессией",
}

var SetCmd = &cobra.Command{
	Use:   "set",
	Short: "Сохранить арендатора и токен",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := appctx.From(cmd.Context())
		if err != nil {
			return err
		}
		if err := app.SetSession(tenantID, token); err != nil {
			return err
		}
		output.Success(cmd.OutOrStdout(), fmt.Sprintf("Сессия арендатора %s сохранена", tenantID))
		return nil
	},
}

var ClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Удалить сохраненную сессию",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := appctx.From(cmd.Context())
		if err != nil {
			return err
		}
		if err := app.ClearSession(); err != nil {
			return err
		}
		output.Success(cmd.OutOrStdout(), "Сессия удалена")
		return nil
	},
}

func init() {
	SetCmd.Flags().StringVar(&tenantID, "tenant", "", "идентификатор арендатора")
	SetCmd.Flags().StringVar(&token, "token", "", "bearer-токен облачного сервиса")
	_ = SetCmd.MarkFlagRequired("tenant")
}
