// Package config загружает настройки клиента синхронизации из окружения и .env.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

const (
	defaultServerAddress  = "localhost:8080"
	defaultAPIPrefix      = "/api"
	defaultLogLevel       = "info"
	defaultEnv            = EnvLocal
	defaultConfigDir      = ".possync"
	defaultDataFile       = "pos.db"
	defaultBackend        = "auto"
	defaultSyncInterval   = 300
	defaultModeCheck      = 30
	defaultPullLimit      = 500
	defaultRequestTimeout = 30
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Env            string `mapstructure:"app_env"`
	ServerAddress  string `mapstructure:"server_address"`
	APIPrefix      string `mapstructure:"api_prefix"`
	EnableTLS      bool   `mapstructure:"enable_tls"`
	LogLevel       string `mapstructure:"log_level"`
	LogFile        string `mapstructure:"log_file"`
	ConfigDir      string `mapstructure:"config_dir"`
	DataPath       string `mapstructure:"data_path"`
	StorageBackend string `mapstructure:"storage_backend"`
	SyncInterval   int    `mapstructure:"sync_interval_seconds"`
	ModeCheck      int    `mapstructure:"mode_check_seconds"`
	PullLimit      int    `mapstructure:"pull_limit"`
	RequestTimeout int    `mapstructure:"request_timeout_seconds"`
	TenantID       string `mapstructure:"tenant_id"`
	APIToken       string `mapstructure:"api_token"`
}

// MustLoad загружает конфигурацию клиента и паникует при ошибке
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("Ошибка конфигурации: %v", err))
	}
	return cfg
}

// Load читает .env (если есть) и переменные окружения, подставляет значения по умолчанию
func Load() (*Config, error) {
	loadDotEnv()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", defaultEnv)
	v.SetDefault("SERVER_ADDRESS", defaultServerAddress)
	v.SetDefault("API_PREFIX", defaultAPIPrefix)
	v.SetDefault("ENABLE_TLS", false)
	v.SetDefault("LOG_LEVEL", defaultLogLevel)
	v.SetDefault("CONFIG_DIR", defaultConfigDir)
	v.SetDefault("STORAGE_BACKEND", defaultBackend)
	v.SetDefault("SYNC_INTERVAL_SECONDS", defaultSyncInterval)
	v.SetDefault("MODE_CHECK_SECONDS", defaultModeCheck)
	v.SetDefault("PULL_LIMIT", defaultPullLimit)
	v.SetDefault("REQUEST_TIMEOUT_SECONDS", defaultRequestTimeout)

	configDir := v.GetString("CONFIG_DIR")
	if configDir == defaultConfigDir {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			homeDir = "."
		}
		configDir = filepath.Join(homeDir, configDir)
	}

	dataPath := v.GetString("DATA_PATH")
	if dataPath == "" {
		dataPath = filepath.Join(configDir, defaultDataFile)
	}

	cfg := &Config{
		Env:            v.GetString("APP_ENV"),
		ServerAddress:  v.GetString("SERVER_ADDRESS"),
		APIPrefix:      v.GetString("API_PREFIX"),
		EnableTLS:      v.GetBool("ENABLE_TLS"),
		LogLevel:       v.GetString("LOG_LEVEL"),
		LogFile:        v.GetString("LOG_FILE"),
		ConfigDir:      configDir,
		DataPath:       dataPath,
		StorageBackend: strings.ToLower(v.GetString("STORAGE_BACKEND")),
		SyncInterval:   v.GetInt("SYNC_INTERVAL_SECONDS"),
		ModeCheck:      v.GetInt("MODE_CHECK_SECONDS"),
		PullLimit:      v.GetInt("PULL_LIMIT"),
		RequestTimeout: v.GetInt("REQUEST_TIMEOUT_SECONDS"),
		TenantID:       v.GetString("TENANT_ID"),
		APIToken:       v.GetString("API_TOKEN"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv подхватывает .env из текущей или родительской директории
func loadDotEnv() {
	envPath := ".env"
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		envPath = "../.env"
	}
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			fmt.Fprintf(os.Stderr, "Ошибка загрузки .env файла: %v\n", err)
		}
	}
}

// Validate проверяет согласованность настроек
func (c *Config) Validate() error {
	if c.ServerAddress == "" {
		return fmt.Errorf("%w: server_address не может быть пустым", ErrInvalidConfig)
	}
	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		return fmt.Errorf("%w: неизвестное окружение %q", ErrInvalidConfig, c.Env)
	}
	switch c.StorageBackend {
	case "auto", "sqlite", "memory":
	default:
		return fmt.Errorf("%w: неизвестное хранилище %q", ErrInvalidConfig, c.StorageBackend)
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("%w: sync_interval_seconds должен быть положительным", ErrInvalidConfig)
	}
	if c.ModeCheck <= 0 {
		return fmt.Errorf("%w: mode_check_seconds должен быть положительным", ErrInvalidConfig)
	}
	if c.PullLimit <= 0 {
		return fmt.Errorf("%w: pull_limit должен быть положительным", ErrInvalidConfig)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request_timeout_seconds должен быть положительным", ErrInvalidConfig)
	}
	return nil
}

// APIBaseURL адрес API сервиса синхронизации вместе с префиксом
func (c *Config) APIBaseURL() string {
	addr := c.ServerAddress
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		scheme := "http://"
		if c.EnableTLS {
			scheme = "https://"
		}
		addr = scheme + addr
	}
	base := strings.TrimSuffix(addr, "/")
	prefix := strings.Trim(c.APIPrefix, "/")
	if prefix == "" {
		return base
	}
	return base + "/" + prefix
}

func (c *Config) Interval() time.Duration {
	return time.Duration(c.SyncInterval) * time.Second
}

func (c *Config) ModeCheckInterval() time.Duration {
	return time.Duration(c.ModeCheck) * time.Second
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// StateDir каталог слотов состояния синхронизации
func (c *Config) StateDir() string {
	return filepath.Join(c.ConfigDir, "state")
}

// IsProd проверяет, prod ли окружение
func (c *Config) IsProd() bool {
	return c.Env == EnvProd
}

// IsDev проверяет, dev ли окружение
func (c *Config) IsDev() bool {
	return c.Env == EnvDev
}

// IsLocal проверяет, local ли окружение
func (c *Config) IsLocal() bool {
	return c.Env == EnvLocal || c.Env == ""
}
