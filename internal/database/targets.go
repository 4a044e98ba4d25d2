package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nao1215/gubacrawl/internal/config"
	"github.com/nao1215/gubacrawl/internal/model"
)

// ErrNoTargetIDs is returned when a source yields no usable target id.
var ErrNoTargetIDs = errors.New("target source returned no ids")

// TargetSource lists the target ids batch mode crawls.
type TargetSource interface {
	ListTargetIDs(ctx context.Context) ([]string, error)
	Close() error
}

// PostgresTargets reads target ids from PostgreSQL.
type PostgresTargets struct {
	pool  *pgxpool.Pool
	query string
}

// NewPostgresTargets connects to dsn. The query must return one column.
func NewPostgresTargets(ctx context.Context, dsn, query string) (*PostgresTargets, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &PostgresTargets{pool: pool, query: queryOrDefault(query)}, nil
}

// ListTargetIDs runs the query and returns the normalized ids.
func (p *PostgresTargets) ListTargetIDs(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, p.query)
	if err != nil {
		return nil, fmt.Errorf("failed to query target ids: %w", err)
	}
	defer rows.Close()

	var raw []string
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read target id: %w", err)
		}
		if len(values) > 0 && values[0] != nil {
			raw = append(raw, fmt.Sprint(values[0]))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read target ids: %w", err)
	}
	return normalizeIDs(raw)
}

// Close releases the pool.
func (p *PostgresTargets) Close() error {
	p.pool.Close()
	return nil
}

// SQLiteTargets reads target ids from a SQLite file.
type SQLiteTargets struct {
	db    *sql.DB
	query string
}

// OpenSQLiteTargets opens path read-only.
func OpenSQLiteTargets(path, query string) (*SQLiteTargets, error) {
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open target database: %w", err)
	}
	return &SQLiteTargets{db: db, query: queryOrDefault(query)}, nil
}

// ListTargetIDs runs the query and returns the normalized ids.
func (s *SQLiteTargets) ListTargetIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.query)
	if err != nil {
		return nil, fmt.Errorf("failed to query target ids: %w", err)
	}
	defer rows.Close()

	var raw []string
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to read target id: %w", err)
		}
		switch id := v.(type) {
		case nil:
		case []byte:
			raw = append(raw, string(id))
		default:
			raw = append(raw, fmt.Sprint(id))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read target ids: %w", err)
	}
	return normalizeIDs(raw)
}

// Close closes the database.
func (s *SQLiteTargets) Close() error {
	return s.db.Close()
}

// StaticTargets is a fixed list of ids, usually from the config file.
type StaticTargets []string

// ListTargetIDs returns the normalized list.
func (s StaticTargets) ListTargetIDs(_ context.Context) ([]string, error) {
	return normalizeIDs(s)
}

// Close does nothing.
func (StaticTargets) Close() error { return nil }

// NewTargetSource builds the source selected by cfg.Kind.
func NewTargetSource(ctx context.Context, cfg config.TargetSourceConfig) (TargetSource, error) {
	switch cfg.Kind {
	case config.TargetSourcePostgres:
		return NewPostgresTargets(ctx, cfg.DSN, cfg.Query)
	case config.TargetSourceSQLite:
		return OpenSQLiteTargets(cfg.DSN, cfg.Query)
	case config.TargetSourceStatic:
		return StaticTargets(cfg.Static), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownTargetSource, cfg.Kind)
	}
}

// normalizeIDs trims, validates and de-duplicates ids, keeping the first
// occurrence. Invalid ids are dropped.
func normalizeIDs(raw []string) ([]string, error) {
	seen := make(map[string]bool, len(raw))
	ids := make([]string, 0, len(raw))
	for _, r := range raw {
		id, err := model.NormalizeTargetID(r)
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, ErrNoTargetIDs
	}
	return ids, nil
}

func queryOrDefault(q string) string {
	if strings.TrimSpace(q) == "" {
		return config.DefaultTargetQuery
	}
	return q
}
