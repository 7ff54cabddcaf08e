package ruleset

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/kazz187/ledgerpub/pkg/cerr"
	"github.com/kazz187/ledgerpub/pkg/publisher"
)

// maxBodyBytes bounds a candidate ruleset upload.
const maxBodyBytes = 1 << 20

// Server exposes the Store over HTTP. Handlers report through the cerr
// response receiver.
type Server struct {
	store *Store
}

func NewServer(store *Store) *Server {
	return &Server{store: store}
}

func etag(snap *Snapshot) string {
	if snap.Revision == "" {
		return strconv.Quote(string(SourceDefault))
	}
	return strconv.Quote(snap.Revision)
}

func (s *Server) GetRuleset(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Current()
	if snap == nil {
		cerr.SetNewJSONError(r.Context(), cerr.Unavailable, "ruleset not loaded", nil)
		return
	}
	w.Header().Set("ETag", etag(snap))
	if !snap.UpdatedAt.IsZero() {
		w.Header().Set("Last-Modified", snap.UpdatedAt.UTC().Format(http.TimeFormat))
	}
	cerr.SetJSONResponse(r.Context(), snap.Rules)
}

func (s *Server) ReplaceRuleset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rules, err := decodeRules(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	snap, err := s.store.Replace(ctx, rules)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	w.Header().Set("ETag", etag(snap))
	cerr.SetJSONResponse(ctx, struct{}{})
}

func decodeRules(body io.Reader) (publisher.Ruleset, error) {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	var rules publisher.Ruleset
	if err := dec.Decode(&rules); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("unexpected data after ruleset")
	}
	if rules == nil {
		return nil, errors.New("ruleset must be an array")
	}
	return rules, nil
}

func (s *Server) Identify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "url is required", nil)
		return
	}
	identity, err := s.store.Identify(ctx, rawURL)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, identity)
}
