package ruleset

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/ledgerpub/pkg/cerr"
	"github.com/kazz187/ledgerpub/pkg/publisher"
)

type fakeRepo struct {
	mu        sync.Mutex
	docs      map[int]*Document
	seq       int
	indexes   []IndexSpec
	upsertErr error
	findErr   error
	upserts   int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{docs: map[int]*Document{}}
}

func (r *fakeRepo) EnsureIndex(_ context.Context, spec IndexSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexes = append(r.indexes, spec)
	return nil
}

func (r *fakeRepo) FindOne(_ context.Context, rulesetID int) (*Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	doc, ok := r.docs[rulesetID]
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, "ruleset not found", nil)
	}
	cp := *doc
	cp.Rules = doc.Rules.Clone()
	return &cp, nil
}

func (r *fakeRepo) Upsert(_ context.Context, rulesetID int, rules publisher.Ruleset) (*Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
	if r.upsertErr != nil {
		return nil, r.upsertErr
	}
	r.seq++
	doc := &Document{
		RulesetID: rulesetID,
		Rules:     rules.Clone(),
		Type:      DocumentType,
		Timestamp: time.Unix(int64(r.seq), 0).UTC(),
		Revision:  fmt.Sprintf("rev-%d", r.seq),
	}
	r.docs[rulesetID] = doc
	return doc, nil
}

func (r *fakeRepo) stored() *Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.docs[ID]
}

type resolverFunc func(rules publisher.Ruleset, rawURL string) (string, bool, error)

func (f resolverFunc) Resolve(rules publisher.Ruleset, rawURL string) (string, bool, error) {
	return f(rules, rawURL)
}

var engine = publisher.MustNewEngine()

func newTestStore(t *testing.T, repo Repository, opts ...Option) *Store {
	t.Helper()
	s := NewStore(repo, engine, engine, opts...)
	require.NoError(t, s.Initialize(context.Background()))
	return s
}

func candidate(identity string) publisher.Ruleset {
	return publisher.Ruleset{
		{Condition: "hostname == 'news.example.com'", Consequent: nil},
		{Condition: "true", Consequent: publisher.Consequent(fmt.Sprintf("'%s'", identity))},
	}
}

func TestStore_InitializeFallsBackToDefault(t *testing.T) {
	repo := newFakeRepo()
	s := newTestStore(t, repo)

	snap := s.Current()
	require.NotNil(t, snap)
	assert.Equal(t, SourceDefault, snap.Source)
	assert.Equal(t, publisher.DefaultRuleset(), snap.Rules)
	assert.Empty(t, snap.Revision)
	assert.Equal(t, []IndexSpec{Indexes}, repo.indexes)
}

func TestStore_DefaultRulesetIsValid(t *testing.T) {
	require.NoError(t, engine.Validate(publisher.DefaultRuleset()))
}

func TestStore_InitializeLoadsPersisted(t *testing.T) {
	repo := newFakeRepo()
	_, err := repo.Upsert(context.Background(), ID, candidate("a"))
	require.NoError(t, err)

	s := newTestStore(t, repo)
	snap := s.Current()
	assert.Equal(t, SourcePersisted, snap.Source)
	assert.Equal(t, candidate("a"), snap.Rules)
	assert.Equal(t, "rev-1", snap.Revision)
}

func TestStore_InitializeRejectsInvalidPersisted(t *testing.T) {
	repo := newFakeRepo()
	repo.docs[ID] = &Document{RulesetID: ID, Rules: publisher.Ruleset{{Condition: "1 +"}}}

	s := NewStore(repo, engine, engine)
	err := s.Initialize(context.Background())
	require.ErrorIs(t, err, ErrStartupValidation)
	assert.Nil(t, s.Current())
}

func TestStore_InitializeRejectsInvalidDefault(t *testing.T) {
	s := NewStore(newFakeRepo(), engine, engine, WithDefaultRuleset(publisher.Ruleset{}))
	err := s.Initialize(context.Background())
	require.ErrorIs(t, err, ErrStartupValidation)
}

func TestStore_InitializeLoadError(t *testing.T) {
	repo := newFakeRepo()
	repo.findErr = errors.New("disk on fire")

	err := NewStore(repo, engine, engine).Initialize(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrStartupValidation)
}

func TestStore_CurrentIsIdempotent(t *testing.T) {
	s := newTestStore(t, newFakeRepo())
	assert.Same(t, s.Current(), s.Current())
	assert.Equal(t, s.Current().Rules, s.Current().Rules)
}

func TestStore_ReplaceThenRead(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	s := newTestStore(t, repo)

	snap, err := s.Replace(ctx, candidate("a"))
	require.NoError(t, err)
	assert.Equal(t, SourcePersisted, snap.Source)
	assert.Equal(t, "rev-1", snap.Revision)
	assert.Equal(t, candidate("a"), s.Current().Rules)

	// A restarted process sees the same rules.
	restarted := newTestStore(t, repo)
	assert.Equal(t, candidate("a"), restarted.Current().Rules)
	assert.Equal(t, snap.Revision, restarted.Current().Revision)
}

func TestStore_ReplaceDoesNotAliasCallerRules(t *testing.T) {
	s := newTestStore(t, newFakeRepo())
	rules := candidate("a")
	_, err := s.Replace(context.Background(), rules)
	require.NoError(t, err)

	*rules[1].Consequent = "'mutated'"
	rules[0].Condition = "false"
	assert.Equal(t, candidate("a"), s.Current().Rules)
}

func TestStore_ReplacePersistFailureKeepsCurrent(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	s := newTestStore(t, repo)
	_, err := s.Replace(ctx, candidate("a"))
	require.NoError(t, err)
	before := s.Current()

	repo.upsertErr = cerr.NewError(cerr.Internal, "server error", errors.New("write failed"))
	_, err = s.Replace(ctx, candidate("b"))
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.Internal))
	assert.Same(t, before, s.Current())
	assert.Equal(t, candidate("a"), repo.stored().Rules)
}

func TestStore_ReplaceRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		rules publisher.Ruleset
	}{
		{name: "empty", rules: publisher.Ruleset{}},
		{name: "nil", rules: nil},
		{name: "bad condition", rules: publisher.Ruleset{{Condition: "hostname ==", Consequent: publisher.Consequent("SLD")}}},
		{name: "non bool condition", rules: publisher.Ruleset{{Condition: "hostname", Consequent: publisher.Consequent("SLD")}}},
		{name: "non string consequent", rules: publisher.Ruleset{{Condition: "true", Consequent: publisher.Consequent("1")}}},
		{name: "unknown variable", rules: publisher.Ruleset{{Condition: "nope == 'x'", Consequent: nil}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			s := newTestStore(t, repo)
			before := s.Current()

			_, err := s.Replace(context.Background(), tt.rules)
			require.Error(t, err)
			assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))
			var ce *cerr.Error
			require.ErrorAs(t, err, &ce)
			assert.NotEmpty(t, ce.Details)
			assert.Zero(t, repo.upserts)
			assert.Same(t, before, s.Current())
		})
	}
}

func TestStore_ConcurrentReplace(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	s := newTestStore(t, repo)

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Replace(ctx, candidate(fmt.Sprintf("p%d", i)))
			assert.NoError(t, err)
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NotNil(t, s.Current())
		}()
	}
	wg.Wait()

	stored := repo.stored()
	assert.Equal(t, stored.Revision, s.Current().Revision)
	assert.Equal(t, stored.Rules, s.Current().Rules)
	assert.Equal(t, 16, repo.upserts)
}

func TestStore_Identify(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newFakeRepo())
	_, err := s.Replace(ctx, candidate("acme"))
	require.NoError(t, err)

	got, err := s.Identify(ctx, "https://shop.example.com/a?b=c")
	require.NoError(t, err)
	assert.Equal(t, "acme", got)

	_, err = s.Identify(ctx, "https://news.example.com/")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))

	for _, raw := range []string{"", "not a url", "ftp://example.com/", "https://", "://x"} {
		_, err = s.Identify(ctx, raw)
		assert.True(t, cerr.IsCode(err, cerr.InvalidArgument), raw)
	}
}

func TestStore_IdentifyResolverFailures(t *testing.T) {
	tests := []struct {
		name     string
		resolver resolverFunc
	}{
		{
			name: "error",
			resolver: func(publisher.Ruleset, string) (string, bool, error) {
				return "", false, errors.New("no such overload")
			},
		},
		{
			name: "panic",
			resolver: func(publisher.Ruleset, string) (string, bool, error) {
				panic("boom")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(newFakeRepo(), engine, tt.resolver)
			require.NoError(t, s.Initialize(context.Background()))

			_, err := s.Identify(context.Background(), "https://example.com/")
			assert.True(t, cerr.IsCode(err, cerr.UnprocessableEntity))
		})
	}
}

func TestStore_IdentifyBeforeInitialize(t *testing.T) {
	s := NewStore(newFakeRepo(), engine, engine)
	_, err := s.Identify(context.Background(), "https://example.com/")
	assert.True(t, cerr.IsCode(err, cerr.Unavailable))
}

func TestStore_Metrics(t *testing.T) {
	ctx := context.Background()
	m := NewMetrics(prometheus.NewRegistry())
	s := newTestStore(t, newFakeRepo(), WithMetrics(m))

	assert.Equal(t, float64(len(publisher.DefaultRuleset())), testutil.ToFloat64(m.rules))
	assert.Zero(t, testutil.ToFloat64(m.updated))

	_, err := s.Replace(ctx, candidate("a"))
	require.NoError(t, err)
	_, err = s.Replace(ctx, publisher.Ruleset{})
	require.Error(t, err)
	_, _ = s.Identify(ctx, "https://example.com/")
	_, _ = s.Identify(ctx, "ftp://example.com/")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.replaceTotal.WithLabelValues(resultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.replaceTotal.WithLabelValues(resultInvalid)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.identifyTotal.WithLabelValues(outcomeFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.identifyTotal.WithLabelValues(outcomeInvalidURL)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.rules))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.updated))
}
