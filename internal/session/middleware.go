package session

import (
	"context"
	"net/http"
	"strings"

	"github.com/kazz187/ledgerpub/pkg/cerr"
	"github.com/kazz187/ledgerpub/pkg/clog"
)

type ctxSessionKey struct{}

func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxSessionKey{}).(*Session)
	return s
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireScope rejects requests without an active session whose scopes the
// authorizer allows for the request path and method. Nothing reaches next
// unless the check passes.
func RequireScope(svc *Service, authz *Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sess, err := svc.Authenticate(ctx, bearerToken(r))
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="ledgerpub"`)
				cerr.WriteError(ctx, w, err)
				return
			}
			clog.AddAttribute(ctx, "subject", sess.Subject)

			ok, err := authz.Allowed(sess.Scopes, r.URL.Path, r.Method)
			if err != nil {
				cerr.WriteError(ctx, w, cerr.NewError(cerr.Internal, "server error", err))
				return
			}
			if !ok {
				cerr.WriteError(ctx, w, cerr.NewError(cerr.PermissionDenied, "missing required scope", nil))
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, ctxSessionKey{}, sess)))
		})
	}
}
