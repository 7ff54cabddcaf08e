package repositoryimpl

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/ledgerpub/internal/session"
	"github.com/kazz187/ledgerpub/pkg/cerr"
	"github.com/kazz187/ledgerpub/pkg/storage"
)

const sessionsPrefix = "sessions"

var _ session.Repository = (*YAMLRepository)(nil)

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(tokenHash string) string {
	return fmt.Sprintf("%s/%s.yaml", sessionsPrefix, tokenHash)
}

func (r *YAMLRepository) Create(ctx context.Context, s *session.Session) error {
	exists, err := r.storage.Exists(ctx, path(s.TokenHash))
	if err != nil {
		return cerr.WrapStorageWriteError("session", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "session already exists", nil)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal session: %w", err))
	}
	if err := r.storage.Write(ctx, path(s.TokenHash), data); err != nil {
		return cerr.WrapStorageWriteError("session", err)
	}
	return nil
}

func (r *YAMLRepository) Get(ctx context.Context, tokenHash string) (*session.Session, error) {
	data, err := r.storage.Read(ctx, path(tokenHash))
	if err != nil {
		return nil, cerr.WrapStorageReadError("session", err)
	}
	var s session.Session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal session: %w", err))
	}
	return &s, nil
}
