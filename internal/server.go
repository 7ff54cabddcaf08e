package internal

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"connectrpc.com/grpchealth"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kazz187/ledgerpub/internal/config"
	"github.com/kazz187/ledgerpub/internal/ruleset"
	"github.com/kazz187/ledgerpub/internal/session"
	"github.com/kazz187/ledgerpub/pkg/cerr"
	"github.com/kazz187/ledgerpub/pkg/clog"
)

type Server struct {
	server        *http.Server
	env           *config.Env
	rulesetServer *ruleset.Server
	sessions      *session.Service
	authorizer    *session.Authorizer
	gatherer      prometheus.Gatherer
}

func NewServer(
	env *config.Env,
	rulesetServer *ruleset.Server,
	sessions *session.Service,
	authorizer *session.Authorizer,
	gatherer prometheus.Gatherer,
) *Server {
	return &Server{
		env:           env,
		rulesetServer: rulesetServer,
		sessions:      sessions,
		authorizer:    authorizer,
		gatherer:      gatherer,
	}
}

// Handler returns the full HTTP handler tree, without the h2c wrapper.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		r.Use(
			clog.SlogChiMiddleware(),
			cerr.NewJSONResponseChiMiddleware(),
		)
		r.Route("/publisher", func(r chi.Router) {
			r.Get("/ruleset", s.rulesetServer.GetRuleset)
			r.With(session.RequireScope(s.sessions, s.authorizer)).Post("/ruleset", s.rulesetServer.ReplaceRuleset)
			r.Get("/identity", s.rulesetServer.Identify)
		})
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			cerr.SetNewJSONError(r.Context(), cerr.NotFound, "not found", nil)
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
			cerr.SetNewJSONError(r.Context(), cerr.Unimplemented, "method not allowed", nil)
		})
	})

	mux := http.NewServeMux()
	mux.Handle("/health", &HealthChecker{})
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/v1/", r)
	mux.Handle(grpchealth.NewHandler(grpchealth.NewStaticChecker()))

	return cors.New(cors.Options{
		AllowedOrigins: s.env.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"ETag", "Last-Modified", clog.RequestIDHeader},
	}).Handler(mux)
}

// ListenAndServe starts the HTTP server. ctx becomes the base context of every
// request.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.Info("starting server", "addr", addr)

	s.server = &http.Server{
		Addr:        addr,
		Handler:     h2c.NewHandler(s.Handler(), &http2.Server{}),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type HealthChecker struct{}

func (hc *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
