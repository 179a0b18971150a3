package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

type Config struct {
	Primary  Primary        `koanf:"primary" validate:"required"`
	Server   ServerConfig   `koanf:"server" validate:"required"`
	Database DatabaseConfig `koanf:"database" validate:"required"`
	Storage  *StorageConfig `koanf:"storage"`
	Ingest   IngestConfig   `koanf:"ingest"`
	APM      *APMConfig     `koanf:"apm"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

type ServerConfig struct {
	Port               string   `koanf:"port" validate:"required"`
	ReadTimeout        int      `koanf:"read_timeout" validate:"required"`
	WriteTimeout       int      `koanf:"write_timeout" validate:"required"`
	IdleTimeout        int      `koanf:"idle_timeout" validate:"required"`
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`
}

type DatabaseConfig struct {
	Host            string `koanf:"host" validate:"required"`
	Port            int    `koanf:"port" validate:"required"`
	User            string `koanf:"user" validate:"required"`
	Password        string `koanf:"password"`
	Name            string `koanf:"name" validate:"required"`
	SSLMode         string `koanf:"ssl_mode" validate:"required"`
	MaxConns        int    `koanf:"max_conns"`
	MinConns        int    `koanf:"min_conns"`
	ConnMaxLifetime int    `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime int    `koanf:"conn_max_idle_time"`
}

// URL renders the pgx connection string.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// StorageConfig points at an S3-compatible blob store used for raw
// file retention. Leave unset to disable retention (reindex will then
// be unavailable for new uploads).
type StorageConfig struct {
	Endpoint  string `koanf:"endpoint" validate:"required"`
	Bucket    string `koanf:"bucket" validate:"required"`
	Region    string `koanf:"region"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	RetainRaw bool   `koanf:"retain_raw"`
}

type IngestConfig struct {
	BatchSize    int   `koanf:"batch_size"`
	MaxFileBytes int64 `koanf:"max_file_bytes"`
	MaxErrors    int   `koanf:"max_errors"` // errors shown per file in responses
}

type APMConfig struct {
	AppName    string `koanf:"app_name"`
	LicenseKey string `koanf:"license_key" validate:"required"`
}

// DefaultIngestConfig returns the ingest tuning used when env provides none.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		BatchSize:    1000,
		MaxFileBytes: 100 << 20,
		MaxErrors:    10,
	}
}

// LoadConfig loads the configuration from environment variables using koanf.
func LoadConfig() (mainConfig *Config, err error) {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	k := koanf.New(".")
	err = k.Load(env.Provider("WAFLENS_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "WAFLENS_"))
	}), nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not load initial env variables")
	}

	mainConfig = &Config{}
	err = k.Unmarshal("", mainConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not unmarshal mainconfig")
	}

	defaults := DefaultIngestConfig()
	if mainConfig.Ingest.BatchSize <= 0 {
		mainConfig.Ingest.BatchSize = defaults.BatchSize
	}
	if mainConfig.Ingest.MaxFileBytes <= 0 {
		mainConfig.Ingest.MaxFileBytes = defaults.MaxFileBytes
	}
	if mainConfig.Ingest.MaxErrors <= 0 {
		mainConfig.Ingest.MaxErrors = defaults.MaxErrors
	}
	if mainConfig.APM != nil && mainConfig.APM.AppName == "" {
		mainConfig.APM.AppName = "waflens-" + mainConfig.Primary.Env
	}

	validate := validator.New()
	err = validate.Struct(mainConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not validate the struct")
	}

	return
}
