package ruleset

import (
	"context"

	"github.com/kazz187/ledgerpub/pkg/publisher"
)

// IndexSpec names the fields indexed on the ruleset collection.
type IndexSpec struct {
	Name   string   `yaml:"name"`
	Unique []string `yaml:"unique"`
	Others []string `yaml:"others"`
}

// Indexes is the index layout every repository must provide.
var Indexes = IndexSpec{
	Name:   "rulesets",
	Unique: []string{"ruleset_id"},
	Others: []string{"type", "timestamp"},
}

// Repository persists ruleset documents.
type Repository interface {
	// EnsureIndex creates the given indexes if they do not exist yet. It must
	// be called before Upsert.
	EnsureIndex(ctx context.Context, spec IndexSpec) error

	// FindOne returns the document with rulesetID, or a cerr.NotFound error.
	FindOne(ctx context.Context, rulesetID int) (*Document, error)

	// Upsert inserts or fully replaces the document with rulesetID. The
	// repository assigns Type, Timestamp and Revision.
	Upsert(ctx context.Context, rulesetID int, rules publisher.Ruleset) (*Document, error)
}

// Validator checks a ruleset against the ruleset schema.
type Validator interface {
	Validate(rules publisher.Ruleset) error
}

// Resolver derives a publisher identity from a URL.
type Resolver interface {
	Resolve(rules publisher.Ruleset, rawURL string) (identity string, found bool, err error)
}
