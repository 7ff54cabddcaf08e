package session

import (
	"slices"
	"time"
)

// Session is an issued bearer token. Only the token hash is stored.
type Session struct {
	ID        string    `yaml:"id"`
	TokenHash string    `yaml:"token_hash"`
	Subject   string    `yaml:"subject"`
	Scopes    []string  `yaml:"scopes"`
	CreatedAt time.Time `yaml:"created_at"`
	ExpiresAt time.Time `yaml:"expires_at"`
}

// Active reports whether the session is usable at now.
func (s *Session) Active(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

func (s *Session) HasScope(scope string) bool {
	return slices.Contains(s.Scopes, scope)
}
