package main

import (
	"context"
	"fmt"
	"io"

	"github.com/kazz187/ledgerpub/internal/config"
	"github.com/kazz187/ledgerpub/internal/ruleset"
	"github.com/kazz187/ledgerpub/pkg/cerr"
	"github.com/kazz187/ledgerpub/pkg/publisher"
)

func runIdentify(w io.Writer, rawURL, rulesetFile string) error {
	ctx := context.Background()
	engine, err := publisher.NewEngine()
	if err != nil {
		return err
	}

	var store *ruleset.Store
	if rulesetFile != "" {
		rules, err := loadRuleset(rulesetFile)
		if err != nil {
			return err
		}
		store = ruleset.NewStore(memoryRepository{}, engine, engine, ruleset.WithDefaultRuleset(rules))
	} else {
		env, err := config.LoadEnv()
		if err != nil {
			return err
		}
		st, err := setupStorage(ctx, env)
		if err != nil {
			return err
		}
		repo, closeRepo, err := setupRulesetRepository(ctx, env, st)
		if err != nil {
			return err
		}
		defer closeRepo()
		store = ruleset.NewStore(repo, engine, engine)
	}
	if err := store.Initialize(ctx); err != nil {
		return err
	}

	identity, err := store.Identify(ctx, rawURL)
	if cerr.IsCode(err, cerr.NotFound) {
		fmt.Fprintln(w, "no publisher")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(w, identity)
	return nil
}

// memoryRepository holds nothing, so the store always starts from its
// default ruleset.
type memoryRepository struct{}

func (memoryRepository) EnsureIndex(context.Context, ruleset.IndexSpec) error { return nil }

func (memoryRepository) FindOne(context.Context, int) (*ruleset.Document, error) {
	return nil, cerr.NewError(cerr.NotFound, "ruleset not found", nil)
}

func (memoryRepository) Upsert(context.Context, int, publisher.Ruleset) (*ruleset.Document, error) {
	return nil, cerr.NewError(cerr.Unimplemented, "read-only ruleset", nil)
}
