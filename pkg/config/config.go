package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	xdgAppName = "tasklink"
	configFile = "config.yaml"
)

type Config struct {
	LogLevel string `yaml:"log_level" env:"TASKLINK_LOG_LEVEL" env-default:"INFO"`
	Address  string `yaml:"address" env:"TASKLINK_ADDRESS" env-default:":8080"`

	DBDriver string `yaml:"db_driver" env:"TASKLINK_DB_DRIVER" env-default:"sqlite"`
	DBDSN    string `yaml:"db_dsn" env:"TASKLINK_DB_DSN" env-default:"tasklink.db"`

	ClientSecretsFile string `yaml:"client_secrets_file" env:"TASKLINK_CLIENT_SECRETS" env-default:"credentials.json"`
	GmailKeyFile      string `yaml:"gmail_key_file" env:"TASKLINK_GMAIL_KEY"`
	NotifySender      string `yaml:"notify_sender" env:"TASKLINK_NOTIFY_SENDER"`

	SyncInterval       time.Duration `yaml:"sync_interval" env:"TASKLINK_SYNC_INTERVAL" env-default:"5m"`
	SyncConcurrency    int           `yaml:"sync_concurrency" env:"TASKLINK_SYNC_CONCURRENCY" env-default:"4"`
	InteractiveTimeout time.Duration `yaml:"interactive_timeout" env:"TASKLINK_INTERACTIVE_TIMEOUT" env-default:"60s"`
	PullBatchSize      int           `yaml:"pull_batch_size" env:"TASKLINK_PULL_BATCH_SIZE" env-default:"100"`
	SyncLeaseTTL       time.Duration `yaml:"sync_lease_ttl" env:"TASKLINK_SYNC_LEASE_TTL" env-default:"10m"`
	MemberJobAttempts  int           `yaml:"member_job_attempts" env:"TASKLINK_MEMBER_JOB_ATTEMPTS" env-default:"5"`
}

// NotifyEnabled reports whether assignment mail can be sent.
func (c Config) NotifyEnabled() bool {
	return c.GmailKeyFile != "" && c.NotifySender != ""
}

func GetConfigPath() (string, error) {
	xdgHome, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(xdgHome, ".config", xdgAppName, configFile), nil
}

// Load reads a .env file from the working directory when present, then the
// config file at path, then the environment. A missing config file falls back
// to environment and defaults. An empty path means GetConfigPath.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = p
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("cannot read config %q: %w", path, err)
		}
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return Config{}, fmt.Errorf("cannot read env: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	switch c.DBDriver {
	case "sqlite", "pgx":
	default:
		return fmt.Errorf("unsupported db_driver %q", c.DBDriver)
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("sync_interval must be positive, got %s", c.SyncInterval)
	}
	if c.SyncLeaseTTL <= c.InteractiveTimeout {
		return fmt.Errorf("sync_lease_ttl (%s) must exceed interactive_timeout (%s)", c.SyncLeaseTTL, c.InteractiveTimeout)
	}
	if (c.GmailKeyFile == "") != (c.NotifySender == "") {
		return errors.New("gmail_key_file and notify_sender must be set together")
	}
	return nil
}
