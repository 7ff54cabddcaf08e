package session

import "context"

type Repository interface {
	// Get returns the session whose token hashes to tokenHash, or a
	// cerr.NotFound error.
	Get(ctx context.Context, tokenHash string) (*Session, error)

	// Create stores a new session. It fails with cerr.AlreadyExists when the
	// token hash is already in use.
	Create(ctx context.Context, s *Session) error
}
