package internal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/ledgerpub/internal/config"
	"github.com/kazz187/ledgerpub/internal/ruleset"
	rulesetrepo "github.com/kazz187/ledgerpub/internal/ruleset/repositoryimpl"
	"github.com/kazz187/ledgerpub/internal/session"
	sessionrepo "github.com/kazz187/ledgerpub/internal/session/repositoryimpl"
	"github.com/kazz187/ledgerpub/pkg/publisher"
	"github.com/kazz187/ledgerpub/pkg/storage"
)

type testServer struct {
	*httptest.Server
	store  *ruleset.Store
	writer string
	reader string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	engine := publisher.MustNewEngine()
	reg := prometheus.NewRegistry()
	store := ruleset.NewStore(rulesetrepo.NewYAMLRepository(st), engine, engine, ruleset.WithMetrics(ruleset.NewMetrics(reg)))
	require.NoError(t, store.Initialize(ctx))

	sessions := session.NewService(sessionrepo.NewYAMLRepository(st))
	authz, err := session.NewAuthorizer("ledger")
	require.NoError(t, err)
	writer, _, err := sessions.Issue(ctx, "ops", []string{"ledger"}, time.Hour)
	require.NoError(t, err)
	reader, _, err := sessions.Issue(ctx, "viewer", []string{"read"}, time.Hour)
	require.NoError(t, err)

	env := &config.Env{BaseEnv: config.BaseEnv{CORSAllowedOrigins: []string{"*"}}}
	srv := NewServer(env, ruleset.NewServer(store), sessions, authz, reg)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, store: store, writer: writer, reader: reader}
}

func (ts *testServer) do(t *testing.T, method, path, token, body string) (*http.Response, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, r)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

const candidateJSON = `[
	{"condition": "hostname.endsWith('example.com')", "consequent": "'acme'", "description": "acme"},
	{"condition": true, "consequent": null}
]`

func TestServer_ReadDefault(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodGet, "/v1/publisher/ruleset", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `"default"`, resp.Header.Get("ETag"))
	assert.Empty(t, resp.Header.Get("Last-Modified"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	var rules publisher.Ruleset
	require.NoError(t, json.Unmarshal([]byte(body), &rules))
	assert.Equal(t, publisher.DefaultRuleset(), rules)

	// Reads are idempotent.
	_, again := ts.do(t, http.MethodGet, "/v1/publisher/ruleset", "", "")
	assert.Equal(t, body, again)
}

func TestServer_ReplaceRequiresSession(t *testing.T) {
	ts := newTestServer(t)
	before := ts.store.Current()

	resp, body := ts.do(t, http.MethodPost, "/v1/publisher/ruleset", "", candidateJSON)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"code":"Unauthenticated","message":"missing bearer token"}`, body)

	resp, _ = ts.do(t, http.MethodPost, "/v1/publisher/ruleset", ts.reader, candidateJSON)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	assert.Same(t, before, ts.store.Current())
}

func TestServer_ReplaceThenRead(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, "/v1/publisher/ruleset", ts.writer, candidateJSON)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.JSONEq(t, `{}`, body)
	etag := resp.Header.Get("ETag")
	assert.NotEqual(t, `"default"`, etag)

	resp, body = ts.do(t, http.MethodGet, "/v1/publisher/ruleset", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, etag, resp.Header.Get("ETag"))
	assert.NotEmpty(t, resp.Header.Get("Last-Modified"))
	assert.JSONEq(t, `[
		{"condition": "hostname.endsWith('example.com')", "consequent": "'acme'", "description": "acme"},
		{"condition": "true", "consequent": null}
	]`, body)

	resp, body = ts.do(t, http.MethodGet, "/v1/publisher/identity?url=https%3A%2F%2Fwww.example.com%2Fa", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `"acme"`, body)

	resp, _ = ts.do(t, http.MethodGet, "/v1/publisher/identity?url=https%3A%2F%2Fother.org%2F", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ReplaceRejectsInvalid(t *testing.T) {
	ts := newTestServer(t)
	before := ts.store.Current()

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{`},
		{name: "object", body: `{"rules": []}`},
		{name: "null", body: `null`},
		{name: "empty", body: `[]`},
		{name: "unknown field", body: `[{"condition": "true", "consequent": null, "extra": 1}]`},
		{name: "bad expression", body: `[{"condition": "hostname ==", "consequent": null}]`},
		{name: "trailing data", body: `[{"condition": "true", "consequent": null}] []`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := ts.do(t, http.MethodPost, "/v1/publisher/ruleset", ts.writer, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
			assert.Contains(t, body, `"InvalidArgument"`)
		})
	}
	assert.Same(t, before, ts.store.Current())
}

func TestServer_ValidationDetails(t *testing.T) {
	ts := newTestServer(t)

	_, body := ts.do(t, http.MethodPost, "/v1/publisher/ruleset", ts.writer, `[{"condition": "1", "consequent": "SLD"}]`)
	var e struct {
		Code    string `json:"code"`
		Details []struct {
			Message string `json:"message"`
			RuleID  string `json:"ruleId"`
		} `json:"details"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &e))
	assert.Equal(t, "InvalidArgument", e.Code)
	require.Len(t, e.Details, 1)
	assert.True(t, strings.HasPrefix(e.Details[0].Message, "rules[0].condition: "), e.Details[0].Message)
	assert.Equal(t, "cel_bool", e.Details[0].RuleID)
}

func TestServer_Identify(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		query  string
		status int
		body   string
	}{
		{name: "registrable domain", query: "?url=https://www.example.com/page", status: http.StatusOK, body: `"example.com"`},
		{name: "multi label suffix", query: "?url=http://news.bbc.co.uk/", status: http.StatusOK, body: `"bbc.co.uk"`},
		{name: "ip has no publisher", query: "?url=http://127.0.0.1:8080/", status: http.StatusNotFound},
		{name: "missing url", query: "", status: http.StatusBadRequest},
		{name: "non http scheme", query: "?url=ftp://example.com/", status: http.StatusBadRequest},
		{name: "relative", query: "?url=/just/a/path", status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := ts.do(t, http.MethodGet, "/v1/publisher/identity"+tt.query, "", "")
			assert.Equal(t, tt.status, resp.StatusCode, body)
			if tt.body != "" {
				assert.JSONEq(t, tt.body, body)
			}
		})
	}
}

func TestServer_Ambient(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := ts.do(t, http.MethodGet, "/v1/nope", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"code":"NotFound","message":"not found"}`, body)

	ts.do(t, http.MethodGet, "/v1/publisher/identity?url=https://example.com/", "", "")
	resp, body = ts.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `ledgerpub_identify_total{outcome="found"} 1`)
	assert.Contains(t, body, "ledgerpub_ruleset_rules 4")
}
