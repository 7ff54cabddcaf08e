package ruleset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kazz187/ledgerpub/pkg/cerr"
	"github.com/kazz187/ledgerpub/pkg/panicerr"
	"github.com/kazz187/ledgerpub/pkg/publisher"
)

// ErrStartupValidation is returned by Initialize when the persisted or
// default ruleset does not pass validation. The process must not serve.
var ErrStartupValidation = errors.New("ruleset failed validation at startup")

// Store owns the process-wide current ruleset.
//
// Reads never lock: the current snapshot is swapped atomically. Replace calls
// are serialised so the in-memory order matches the order the repository
// acknowledged the writes.
type Store struct {
	repo      Repository
	validator Validator
	resolver  Resolver
	defaults  publisher.Ruleset
	metrics   *Metrics

	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
}

type Option func(*Store)

// WithDefaultRuleset overrides the ruleset used when nothing is persisted.
func WithDefaultRuleset(rules publisher.Ruleset) Option {
	return func(s *Store) {
		s.defaults = rules
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

func NewStore(repo Repository, validator Validator, resolver Resolver, opts ...Option) *Store {
	s := &Store{
		repo:      repo,
		validator: validator,
		resolver:  resolver,
		defaults:  publisher.DefaultRuleset(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize ensures the repository indexes, loads the persisted ruleset or
// falls back to the default, and validates the result.
func (s *Store) Initialize(ctx context.Context) error {
	if err := s.repo.EnsureIndex(ctx, Indexes); err != nil {
		return fmt.Errorf("failed to ensure ruleset indexes: %w", err)
	}

	snap := &Snapshot{Rules: s.defaults.Clone(), Source: SourceDefault}
	doc, err := s.repo.FindOne(ctx, ID)
	switch {
	case err == nil:
		snap = &Snapshot{
			Rules:     doc.Rules,
			Revision:  doc.Revision,
			UpdatedAt: doc.Timestamp,
			Source:    SourcePersisted,
		}
	case cerr.IsCode(err, cerr.NotFound):
	default:
		return fmt.Errorf("failed to load ruleset: %w", err)
	}

	if err := s.validator.Validate(snap.Rules); err != nil {
		return fmt.Errorf("%w (%s): %w", ErrStartupValidation, snap.Source, err)
	}
	s.current.Store(snap)
	s.metrics.current(snap)
	slog.InfoContext(ctx, "ruleset loaded",
		"source", snap.Source,
		"revision", snap.Revision,
		"rules", len(snap.Rules),
	)
	return nil
}

// Current returns the current snapshot. Initialize must have succeeded.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Replace validates rules, persists them and, once the write is
// acknowledged, makes them current. On any error the current ruleset is
// left untouched.
func (s *Store) Replace(ctx context.Context, rules publisher.Ruleset) (*Snapshot, error) {
	if err := s.validator.Validate(rules); err != nil {
		s.metrics.replaced(resultInvalid)
		return nil, validationError(err)
	}
	rules = rules.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.repo.Upsert(ctx, ID, rules)
	if err != nil {
		s.metrics.replaced(resultPersistErr)
		return nil, err
	}
	snap := &Snapshot{
		Rules:     rules,
		Revision:  doc.Revision,
		UpdatedAt: doc.Timestamp,
		Source:    SourcePersisted,
	}
	s.current.Store(snap)
	s.metrics.replaced(resultOK)
	s.metrics.current(snap)
	slog.InfoContext(ctx, "ruleset replaced", "revision", snap.Revision, "rules", len(snap.Rules))
	return snap, nil
}

type resolution struct {
	identity string
	found    bool
}

// Identify resolves rawURL against the current ruleset.
func (s *Store) Identify(ctx context.Context, rawURL string) (string, error) {
	if err := checkURL(rawURL); err != nil {
		s.metrics.identified(outcomeInvalidURL)
		return "", cerr.NewError(cerr.InvalidArgument, "url must be an absolute http or https URL", err)
	}
	snap := s.Current()
	if snap == nil {
		return "", cerr.NewError(cerr.Unavailable, "ruleset not loaded", nil)
	}
	rules := snap.Rules
	res, err := panicerr.SafeValue(func() (resolution, error) {
		identity, found, err := s.resolver.Resolve(rules, rawURL)
		return resolution{identity: identity, found: found}, err
	})()
	if err != nil {
		s.metrics.identified(outcomeUnprocessable)
		return "", cerr.NewError(cerr.UnprocessableEntity, err.Error(), err)
	}
	if !res.found {
		s.metrics.identified(outcomeNotFound)
		return "", cerr.NewError(cerr.NotFound, "no publisher identity for url", nil)
	}
	s.metrics.identified(outcomeFound)
	return res.identity, nil
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func validationError(err error) error {
	e := cerr.NewError(cerr.InvalidArgument, "invalid ruleset", err)
	var ve publisher.ValidationErrors
	if !errors.As(err, &ve) {
		e.AddDetailMessage(err.Error())
		return e
	}
	for _, v := range ve {
		e.AddDetailMessageWithCode(v.FieldPath+": "+v.Message, v.Tag)
	}
	return e
}
