package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"

	"bistrosync/cmd/possyncd/cmd/appctx"
	"bistrosync/cmd/possyncd/cmd/session"
	"bistrosync/cmd/possyncd/cmd/syncctl"
	"bistrosync/internal/app/client"
	"bistrosync/internal/app/client/config"
	"bistrosync/internal/utils/logger"
)

var (
	cfgFile    string
	debug      bool
	jsonOutput bool
	serverURL  string

	app *client.App
)

var rootCmd = &cobra.Command{
	Use:   "possyncd",
	Short: "possyncd - синхронизация кассы с облаком",
	Long: `possyncd синхронизирует локальные данные кассы (заказы, меню, столы, смены)
с облачным сервисом. Касса продолжает работать без сети, изменения
отправляются при появлении связи.`,
	PersistentPreRunE:  setupApp,
	PersistentPostRunE: closeApp,
	SilenceUsage:       true,
	SilenceErrors:      true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}

func setupApp(cmd *cobra.Command, _ []string) error {
	if cfgFile != "" {
		if err := godotenv.Load(cfgFile); err != nil {
			return fmt.Errorf("ошибка чтения файла конфигурации %s: %w", cfgFile, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	if serverURL != "" {
		cfg.ServerAddress = serverURL
	}
	if debug && cfg.IsProd() {
		cfg.Env = config.EnvDev
	}

	log := logger.NewWithFile(cfg.Env, cfg.LogFile)
	if !debug && !cfg.IsProd() && cmd.Name() != runCmd.Name() {
		// разовые команды пишут в терминал только предупреждения
		log = slog.New(quietHandler{log.Handler()})
	}

	app, err = client.New(cmd.Context(), cfg, log)
	if err != nil {
		return fmt.Errorf("ошибка инициализации приложения: %w", err)
	}

	cmd.SetContext(appctx.With(cmd.Context(), app, jsonOutput))
	return nil
}

func closeApp(_ *cobra.Command, _ []string) error {
	if app == nil {
		return nil
	}
	return app.Close()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "файл с переменными окружения (.env)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "включить отладочный вывод")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "вывод в формате JSON")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "адрес сервиса синхронизации")

	rootCmd.AddCommand(runCmd)

	rootCmd.AddCommand(syncctl.SyncCmd)
	rootCmd.AddCommand(syncctl.StatusCmd)
	rootCmd.AddCommand(syncctl.ConflictsCmd)
	rootCmd.AddCommand(syncctl.ResolveCmd)

	rootCmd.AddCommand(session.SessionCmd)
	session.SessionCmd.AddCommand(session.SetCmd)
	session.SessionCmd.AddCommand(session.ClearCmd)
}
