package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Keys shared by flags, environment variables and config files.
// Environment variables use the upper-case, underscore form (STORAGE_PATH).
const (
	KeyConfigFile      = "config"
	KeyPort            = "port"
	KeyStoragePath     = "storage-path"
	KeyBaseURL         = "base-url"
	KeyDatabaseURL     = "database-url"
	KeyServeRawUploads = "serve-raw-uploads"
	KeyLogLevel        = "log-level"
	KeyShutdownTimeout = "shutdown-timeout"
)

type Config struct {
	Port            string
	StoragePath     string
	BaseURL         string // empty: derive links from the request host
	DatabaseURL     string // empty: keep records in memory
	ServeRawUploads bool
	LogLevel        slog.Level
	ShutdownTimeout time.Duration
}

// New returns a viper instance with defaults and environment lookup wired up.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyPort, "3000")
	v.SetDefault(KeyStoragePath, "./uploads")
	v.SetDefault(KeyBaseURL, "")
	v.SetDefault(KeyDatabaseURL, "")
	v.SetDefault(KeyServeRawUploads, false)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyShutdownTimeout, 30*time.Second)

	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file and resolves every setting.
// Precedence: flags, environment, config file, defaults.
func Load(v *viper.Viper) (*Config, error) {
	if file := v.GetString(KeyConfigFile); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString(KeyLogLevel))); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", KeyLogLevel, err)
	}

	cfg := &Config{
		Port:            v.GetString(KeyPort),
		StoragePath:     v.GetString(KeyStoragePath),
		BaseURL:         strings.TrimSuffix(v.GetString(KeyBaseURL), "/"),
		DatabaseURL:     v.GetString(KeyDatabaseURL),
		ServeRawUploads: v.GetBool(KeyServeRawUploads),
		LogLevel:        level,
		ShutdownTimeout: v.GetDuration(KeyShutdownTimeout),
	}

	if cfg.Port == "" {
		return nil, fmt.Errorf("%s must not be empty", KeyPort)
	}
	if cfg.StoragePath == "" {
		return nil, fmt.Errorf("%s must not be empty", KeyStoragePath)
	}
	return cfg, nil
}
