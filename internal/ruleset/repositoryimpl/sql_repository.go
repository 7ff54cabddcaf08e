package repositoryimpl

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/kazz187/ledgerpub/internal/ruleset"
	"github.com/kazz187/ledgerpub/pkg/cerr"
	"github.com/kazz187/ledgerpub/pkg/publisher"
)

// Dialect captures the few differences between the supported SQL engines.
type Dialect struct {
	Name        string
	placeholder func(n int) string
}

var (
	SQLite = Dialect{
		Name:        "sqlite",
		placeholder: func(int) string { return "?" },
	}
	Postgres = Dialect{
		Name:        "postgres",
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	}
)

func (d Dialect) args(n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = d.placeholder(i + 1)
	}
	return strings.Join(ps, ", ")
}

// columns maps the logical document fields to table columns.
var columns = map[string]string{
	"ruleset_id": "ruleset_id",
	"type":       "doc_type",
	"timestamp":  "updated_at_ns",
}

var _ ruleset.Repository = (*SQLRepository)(nil)

// SQLRepository keeps ruleset documents in a single table, one row per
// ruleset id, with the rules stored as JSON.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewSQLRepository(db *sql.DB, dialect Dialect) *SQLRepository {
	return &SQLRepository{db: db, dialect: dialect, now: time.Now}
}

// OpenSQLite opens (creating if needed) the sqlite database at path.
func OpenSQLite(path string) (*sql.DB, error) {
	if path == "" {
		path = "ledgerpub.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite allows a single writer.
	db.SetMaxOpenConns(1)
	return db, nil
}

// OpenPostgres opens a pgx-backed connection pool and checks it is reachable.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func (r *SQLRepository) EnsureIndex(ctx context.Context, spec ruleset.IndexSpec) error {
	stmts := []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ruleset_id BIGINT NOT NULL,
		rules TEXT NOT NULL,
		doc_type TEXT NOT NULL,
		updated_at_ns BIGINT NOT NULL,
		revision TEXT NOT NULL
	)`, spec.Name)}
	for _, field := range spec.Unique {
		stmt, err := indexStmt(spec.Name, field, true)
		if err != nil {
			return err
		}
		stmts = append(stmts, stmt)
	}
	for _, field := range spec.Others {
		stmt, err := indexStmt(spec.Name, field, false)
		if err != nil {
			return err
		}
		stmts = append(stmts, stmt)
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("ensure %s indexes: %w", spec.Name, err))
		}
	}
	return nil
}

func indexStmt(table, field string, unique bool) (string, error) {
	col, ok := columns[field]
	if !ok {
		return "", cerr.NewError(cerr.Internal, "server error", fmt.Errorf("unknown index field %q", field))
	}
	kind := "INDEX"
	if unique {
		kind = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s IF NOT EXISTS idx_%s_%s ON %s (%s)", kind, table, col, table, col), nil
}

func (r *SQLRepository) FindOne(ctx context.Context, rulesetID int) (*ruleset.Document, error) {
	q := fmt.Sprintf(`SELECT rules, doc_type, updated_at_ns, revision FROM %s WHERE ruleset_id = %s`,
		ruleset.Indexes.Name, r.dialect.placeholder(1))
	var (
		raw  string
		doc  = ruleset.Document{RulesetID: rulesetID}
		nano int64
	)
	err := r.db.QueryRowContext(ctx, q, rulesetID).Scan(&raw, &doc.Type, &nano, &doc.Revision)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cerr.NewError(cerr.NotFound, "ruleset not found", err)
	}
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("select ruleset: %w", err))
	}
	if err := json.Unmarshal([]byte(raw), &doc.Rules); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("decode rules: %w", err))
	}
	doc.Timestamp = time.Unix(0, nano).UTC()
	return &doc, nil
}

func (r *SQLRepository) Upsert(ctx context.Context, rulesetID int, rules publisher.Ruleset) (*ruleset.Document, error) {
	payload, err := json.Marshal(rules)
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("encode rules: %w", err))
	}
	doc := &ruleset.Document{
		RulesetID: rulesetID,
		Rules:     rules,
		Type:      ruleset.DocumentType,
		Timestamp: r.now().UTC(),
		Revision:  ulid.Make().String(),
	}
	q := fmt.Sprintf(`INSERT INTO %s (ruleset_id, rules, doc_type, updated_at_ns, revision)
		VALUES (%s)
		ON CONFLICT (ruleset_id) DO UPDATE SET
			rules = excluded.rules,
			doc_type = excluded.doc_type,
			updated_at_ns = excluded.updated_at_ns,
			revision = excluded.revision`,
		ruleset.Indexes.Name, r.dialect.args(5))
	if _, err := r.db.ExecContext(ctx, q, rulesetID, string(payload), doc.Type, doc.Timestamp.UnixNano(), doc.Revision); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("upsert ruleset: %w", err))
	}
	return doc, nil
}
