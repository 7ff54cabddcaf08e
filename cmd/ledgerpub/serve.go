package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sourcegraph/conc/pool"

	server "github.com/kazz187/ledgerpub/internal"
	"github.com/kazz187/ledgerpub/internal/config"
	"github.com/kazz187/ledgerpub/internal/ruleset"
	"github.com/kazz187/ledgerpub/internal/session"
	sessionrepo "github.com/kazz187/ledgerpub/internal/session/repositoryimpl"
	"github.com/kazz187/ledgerpub/pkg/panicerr"
	"github.com/kazz187/ledgerpub/pkg/publisher"
)

const shutdownTimeout = 10 * time.Second

func runServe() error {
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}
	setupLogger(os.Stderr, env)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	st, err := setupStorage(ctx, env)
	if err != nil {
		return err
	}
	rulesetRepo, closeRepo, err := setupRulesetRepository(ctx, env, st)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeRepo(); err != nil {
			slog.Error("failed to close ruleset repository", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engine, err := publisher.NewEngine()
	if err != nil {
		return err
	}
	store := ruleset.NewStore(rulesetRepo, engine, engine, ruleset.WithMetrics(ruleset.NewMetrics(reg)))
	if err := store.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize ruleset: %w", err)
	}

	authz, err := session.NewAuthorizer(env.WriteScope)
	if err != nil {
		return err
	}
	sessions := session.NewService(sessionrepo.NewYAMLRepository(st))

	srv := server.NewServer(env, ruleset.NewServer(store), sessions, authz, reg)

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		return panicerr.Safe(func() error {
			if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		})()
	})
	p.Go(func(ctx context.Context) error {
		<-ctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})
	return p.Wait()
}
