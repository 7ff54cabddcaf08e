package repositoryimpl

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/kazz187/ledgerpub/internal/ruleset"
	"github.com/kazz187/ledgerpub/pkg/cerr"
	"github.com/kazz187/ledgerpub/pkg/publisher"
	"github.com/kazz187/ledgerpub/pkg/storage"
)

const (
	rulesetsPrefix = "rulesets"
	indexesPath    = rulesetsPrefix + "/_indexes.yaml"
)

var _ ruleset.Repository = (*YAMLRepository)(nil)

// YAMLRepository stores each ruleset document as a YAML file keyed by its
// ruleset id. The storage layer makes every write atomic.
type YAMLRepository struct {
	storage storage.Storage
	now     func() time.Time
}

// NewYAMLRepository creates a new YAML-backed ruleset repository.
func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s, now: time.Now}
}

func path(rulesetID int) string {
	return fmt.Sprintf("%s/%d.yaml", rulesetsPrefix, rulesetID)
}

// EnsureIndex records the index layout next to the documents. Uniqueness of
// ruleset_id is inherent to the one-file-per-id layout.
func (r *YAMLRepository) EnsureIndex(ctx context.Context, spec ruleset.IndexSpec) error {
	exists, err := r.storage.Exists(ctx, indexesPath)
	if err != nil {
		return cerr.WrapStorageReadError("ruleset indexes", err)
	}
	if exists {
		return nil
	}
	data, err := yaml.Marshal(spec)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal ruleset indexes: %w", err))
	}
	if err := r.storage.Write(ctx, indexesPath, data); err != nil {
		return cerr.WrapStorageWriteError("ruleset indexes", err)
	}
	return nil
}

func (r *YAMLRepository) FindOne(ctx context.Context, rulesetID int) (*ruleset.Document, error) {
	data, err := r.storage.Read(ctx, path(rulesetID))
	if err != nil {
		return nil, cerr.WrapStorageReadError("ruleset", err)
	}
	var doc ruleset.Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal ruleset: %w", err))
	}
	return &doc, nil
}

func (r *YAMLRepository) Upsert(ctx context.Context, rulesetID int, rules publisher.Ruleset) (*ruleset.Document, error) {
	doc := &ruleset.Document{
		RulesetID: rulesetID,
		Rules:     rules,
		Type:      ruleset.DocumentType,
		Timestamp: r.now().UTC(),
		Revision:  ulid.Make().String(),
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal ruleset: %w", err))
	}
	if err := r.storage.Write(ctx, path(rulesetID), data); err != nil {
		return nil, cerr.WrapStorageWriteError("ruleset", err)
	}
	return doc, nil
}
