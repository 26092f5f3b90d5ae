package visited

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresConfig controls the connection pool behind a persistent set.
type PostgresConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Postgres is a cross-session visited set backed by a single-column table.
// Marking relies on the table's primary key, so concurrent markers agree on
// who was first.
type Postgres struct {
	pool  pgxIface
	table string
}

// NewPostgres connects a pool and ensures the tracking table exists.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("visited.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	store, err := NewPostgresWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := store.ensureTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresWithPool constructs a set from an existing pool (primarily for
// testing). The table is not created.
func NewPostgresWithPool(pool pgxIface, table string) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "visited_notes"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Postgres{pool: pool, table: table}, nil
}

func (p *Postgres) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			note_id TEXT PRIMARY KEY,
			marked_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`, p.table)
	if _, err := p.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure table %s: %w", p.table, err)
	}
	return nil
}

// Seen reports whether id was marked before.
func (p *Postgres) Seen(ctx context.Context, id string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE note_id = $1);`, p.table)
	var exists bool
	if err := p.pool.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check visited %s: %w", id, err)
	}
	return exists, nil
}

// Mark records id and reports whether it was new.
func (p *Postgres) Mark(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	query := fmt.Sprintf(`INSERT INTO %s (note_id) VALUES ($1) ON CONFLICT (note_id) DO NOTHING;`, p.table)
	tag, err := p.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("mark visited %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Close releases the underlying pool resources.
func (p *Postgres) Close() {
	if p == nil || p.pool == nil {
		return
	}
	p.pool.Close()
}
