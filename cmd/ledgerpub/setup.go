package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/kazz187/ledgerpub/internal/config"
	"github.com/kazz187/ledgerpub/internal/ruleset"
	rulesetrepo "github.com/kazz187/ledgerpub/internal/ruleset/repositoryimpl"
	"github.com/kazz187/ledgerpub/pkg/clog"
	"github.com/kazz187/ledgerpub/pkg/storage"
)

func setupLogger(w io.Writer, env *config.Env) {
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewHTTPTextHandler(w, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))
}

func setupStorage(ctx context.Context, env *config.Env) (storage.Storage, error) {
	switch env.StorageEnv.Type {
	case "s3":
		s, err := storage.NewS3Storage(ctx, env.S3Bucket, env.S3Prefix, env.S3Region)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 storage: %w", err)
		}
		return s, nil
	default:
		s, err := storage.NewLocalStorage(env.StorageEnv.BaseDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create local storage: %w", err)
		}
		return s, nil
	}
}

// setupRulesetRepository returns the configured repository and a func that
// releases it.
func setupRulesetRepository(ctx context.Context, env *config.Env, st storage.Storage) (ruleset.Repository, func() error, error) {
	noop := func() error { return nil }
	switch env.Backend {
	case "sqlite":
		db, err := rulesetrepo.OpenSQLite(env.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		return rulesetrepo.NewSQLRepository(db, rulesetrepo.SQLite), db.Close, nil
	case "postgres":
		db, err := rulesetrepo.OpenPostgres(ctx, env.PostgresDSN)
		if err != nil {
			return nil, noop, err
		}
		return rulesetrepo.NewSQLRepository(db, rulesetrepo.Postgres), db.Close, nil
	default:
		return rulesetrepo.NewYAMLRepository(st), noop, nil
	}
}
