package ruleset

import (
	"time"

	"github.com/kazz187/ledgerpub/pkg/publisher"
)

const (
	// ID is the fixed key of the single persisted ruleset document.
	ID = 1
	// DocumentType tags ruleset documents in shared storage.
	DocumentType = "publisher/ruleset"
)

// Document is the persisted form of the ruleset.
type Document struct {
	RulesetID int               `yaml:"ruleset_id"`
	Rules     publisher.Ruleset `yaml:"rules"`
	Type      string            `yaml:"type"`
	Timestamp time.Time         `yaml:"timestamp"`
	Revision  string            `yaml:"revision"`
}

type Source string

const (
	SourceDefault   Source = "default"
	SourcePersisted Source = "persisted"
)

// Snapshot is an immutable view of the current ruleset. Callers must not
// modify Rules.
type Snapshot struct {
	Rules     publisher.Ruleset
	Revision  string
	UpdatedAt time.Time
	Source    Source
}
