package session

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kazz187/ledgerpub/pkg/cerr"
)

// Service issues and authenticates sessions.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Issue creates a session and returns the bearer token. The token is not
// recoverable afterwards.
func (s *Service) Issue(ctx context.Context, subject string, scopes []string, ttl time.Duration) (string, *Session, error) {
	if subject == "" {
		return "", nil, cerr.NewError(cerr.InvalidArgument, "subject is required", nil)
	}
	if ttl <= 0 {
		return "", nil, cerr.NewError(cerr.InvalidArgument, "ttl must be positive", nil)
	}
	token, hash, err := NewToken()
	if err != nil {
		return "", nil, cerr.NewError(cerr.Internal, "server error", err)
	}
	now := s.now().UTC()
	sess := &Session{
		ID:        ulid.Make().String(),
		TokenHash: hash,
		Subject:   subject,
		Scopes:    scopes,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return "", nil, err
	}
	return token, sess, nil
}

// Authenticate returns the active session for token.
func (s *Service) Authenticate(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, cerr.NewError(cerr.Unauthenticated, "missing bearer token", nil)
	}
	sess, err := s.repo.Get(ctx, HashToken(token))
	if err != nil {
		if cerr.IsCode(err, cerr.NotFound) {
			return nil, cerr.NewError(cerr.Unauthenticated, "invalid session", nil)
		}
		return nil, err
	}
	if !sess.Active(s.now()) {
		return nil, cerr.NewError(cerr.Unauthenticated, "session expired", nil)
	}
	return sess, nil
}
