package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env                string   `envconfig:"ENV" default:"local"`
	HTTPHost           string   `envconfig:"HTTP_HOST" default:""`
	HTTPPort           string   `envconfig:"HTTP_PORT" default:"3200"`
	LogLevel           string   `envconfig:"LOG_LEVEL" default:"debug"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".ledgerpub/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"ledgerpub/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
}

// RulesetEnv selects where the ruleset document lives. "storage" keeps it as
// YAML next to the sessions.
type RulesetEnv struct {
	Backend     string `envconfig:"RULESET_BACKEND" default:"storage"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:".ledgerpub/ledgerpub.db"`
	PostgresDSN string `envconfig:"POSTGRES_DSN"`
}

type AuthEnv struct {
	WriteScope string        `envconfig:"WRITE_SCOPE" default:"ledger"`
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"720h"`
}

type Env struct {
	BaseEnv
	StorageEnv
	RulesetEnv
	AuthEnv
}

const namespace = "LEDGERPUB"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	if err := env.validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

func (e *Env) validate() error {
	switch e.StorageEnv.Type {
	case "local":
	case "s3":
		if e.S3Bucket == "" {
			return fmt.Errorf("%s_S3_BUCKET is required when STORAGE_TYPE=s3", namespace)
		}
	default:
		return fmt.Errorf("unsupported storage type: %q", e.StorageEnv.Type)
	}
	switch e.Backend {
	case "storage", "sqlite":
	case "postgres":
		if e.PostgresDSN == "" {
			return fmt.Errorf("%s_POSTGRES_DSN is required when RULESET_BACKEND=postgres", namespace)
		}
	default:
		return fmt.Errorf("unsupported ruleset backend: %q", e.Backend)
	}
	return nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return level
}
