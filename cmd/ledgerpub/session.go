package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/kazz187/ledgerpub/internal/config"
	"github.com/kazz187/ledgerpub/internal/session"
	sessionrepo "github.com/kazz187/ledgerpub/internal/session/repositoryimpl"
)

func runSessionIssue(w io.Writer, subject string, scopes []string, ttl time.Duration) error {
	ctx := context.Background()
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}
	if ttl == 0 {
		ttl = env.SessionTTL
	}
	st, err := setupStorage(ctx, env)
	if err != nil {
		return err
	}
	token, sess, err := session.NewService(sessionrepo.NewYAMLRepository(st)).Issue(ctx, subject, scopes, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "session %s for %s expires %s\n", sess.ID, sess.Subject, sess.ExpiresAt.Format(time.RFC3339))
	fmt.Fprintln(w, token)
	return nil
}
