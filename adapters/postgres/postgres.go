// Package postgres implements the document store on PostgreSQL. Records are
// JSONB documents; unique claims live in their own table whose primary key
// enforces them.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/smartyellow/services/core/document"
	"github.com/smartyellow/services/core/schema"
	"github.com/smartyellow/services/core/storage"
)

const ddl = `
CREATE TABLE IF NOT EXISTS documents (
  collection TEXT  NOT NULL,
  id         TEXT  NOT NULL,
  data       JSONB NOT NULL,
  PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_data ON documents USING GIN (data jsonb_path_ops);
CREATE TABLE IF NOT EXISTS claims (
  collection TEXT NOT NULL,
  claim      TEXT NOT NULL,
  id         TEXT NOT NULL,
  PRIMARY KEY (collection, claim)
);
CREATE INDEX IF NOT EXISTS idx_claims_owner ON claims (collection, id);
`

// uniqueViolation is the SQLSTATE of a unique constraint failure.
const uniqueViolation = "23505"

// Config configures the connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// Store implements storage.Store on a pgx pool.
type Store struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Open connects, verifies the connection and creates the tables.
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (*Store, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.ConnectTimeout > 0 {
		pc.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	s := &Store{pool: pool, logger: logger}
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info().
		Str("host", pc.ConnConfig.Host).
		Str("database", pc.ConnConfig.Database).
		Int32("max_conns", pc.MaxConns).
		Msg("connected to postgres")
	return s, nil
}

// Ping checks the database responds.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// Collection returns the named collection.
func (s *Store) Collection(name string) storage.Collection {
	return &collection{store: s, name: name}
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// withTransaction runs fn in a transaction, committing when it returns nil.
func (s *Store) withTransaction(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Warn().Err(err).Msg("transaction rollback failed")
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

var _ storage.Store = (*Store)(nil)

type collection struct {
	store *Store
	name  string
}

func (c *collection) Get(ctx context.Context, id string) (document.Values, error) {
	var data []byte
	err := c.store.pool.QueryRow(ctx,
		"SELECT data FROM documents WHERE collection = $1 AND id = $2", c.name, id,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", c.name, id, err)
	}
	return decode(data)
}

func (c *collection) Find(ctx context.Context, q storage.Query) (storage.Cursor, error) {
	m, err := storage.Compile(q)
	if err != nil {
		return nil, err
	}
	query, args, err := buildSelect(c.name, q)
	if err != nil {
		return nil, err
	}
	rows, err := c.store.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", c.name, err)
	}
	return &cursor{rows: rows, match: m, limit: q.Limit}, nil
}

func (c *collection) Delete(ctx context.Context, q storage.Query) (int64, error) {
	cur, err := c.Find(ctx, q)
	if err != nil {
		return 0, err
	}
	recs, err := storage.ToArray(ctx, cur)
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		id, _ := rec["id"].(string)
		ids = append(ids, id)
	}

	err = c.store.withTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM documents WHERE collection = $1 AND id = ANY($2)", c.name, ids); err != nil {
			return fmt.Errorf("delete from %s: %w", c.name, err)
		}
		if _, err := tx.Exec(ctx, "DELETE FROM claims WHERE collection = $1 AND id = ANY($2)", c.name, ids); err != nil {
			return fmt.Errorf("release claims in %s: %w", c.name, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

func (c *collection) Upsert(ctx context.Context, rec document.Values, claims []string) error {
	id, _ := rec["id"].(string)
	if id == "" {
		return fmt.Errorf("upsert into %s: record has no id", c.name)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	return c.store.withTransaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)
			ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data`,
			c.name, id, data)
		if err != nil {
			return fmt.Errorf("upsert %s/%s: %w", c.name, id, err)
		}

		if _, err := tx.Exec(ctx, "DELETE FROM claims WHERE collection = $1 AND id = $2", c.name, id); err != nil {
			return fmt.Errorf("release claims: %w", err)
		}
		for _, claim := range claims {
			_, err := tx.Exec(ctx, "INSERT INTO claims (collection, claim, id) VALUES ($1, $2, $3)", c.name, claim, id)
			if isUniqueViolation(err) {
				return fmt.Errorf("claim %q: %w", claim, storage.ErrConflict)
			}
			if err != nil {
				return fmt.Errorf("claim %q: %w", claim, err)
			}
		}
		return nil
	})
}

// buildSelect pushes equality and array containment down as JSONB
// containment, and the sort order as path extraction. The full query is
// evaluated again on every decoded row.
func buildSelect(collection string, q storage.Query) (string, []any, error) {
	var sb strings.Builder
	args := []any{collection}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	sb.WriteString("SELECT data FROM documents WHERE collection = $1")
	for _, c := range q.Where {
		var want any
		switch c.Op {
		case storage.OpEq:
			if _, ok := c.Value.(string); !ok {
				continue
			}
			want = c.Value
		case storage.OpContains:
			want = []any{c.Value}
		default:
			continue
		}
		doc, err := json.Marshal(nest(c.Path, want))
		if err != nil {
			return "", nil, fmt.Errorf("encode condition on %s: %w", c.Path, err)
		}
		sb.WriteString(" AND data @> " + arg(string(doc)) + "::jsonb")
	}

	if len(q.Sort) > 0 {
		order := make([]string, 0, len(q.Sort))
		for _, s := range q.Sort {
			dir := "ASC NULLS FIRST"
			if s.Desc {
				dir = "DESC NULLS LAST"
			}
			order = append(order, "data #> "+arg([]string(s.Path))+"::text[] "+dir)
		}
		sb.WriteString(" ORDER BY " + strings.Join(order, ", "))
	}

	return sb.String(), args, nil
}

// nest wraps v in objects along p, e.g. a.b -> {"a": {"b": v}}.
func nest(p schema.Path, v any) any {
	for i := len(p) - 1; i >= 0; i-- {
		v = map[string]any{p[i]: v}
	}
	return v
}

func decode(data []byte) (document.Values, error) {
	var rec document.Values
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// cursor decodes rows lazily and skips those the query rejects.
type cursor struct {
	rows  pgx.Rows
	match *storage.Matcher
	limit int
	seen  int
	cur   document.Values
	err   error
}

func (c *cursor) Next(ctx context.Context) bool {
	if c.err != nil || (c.limit > 0 && c.seen >= c.limit) {
		return false
	}
	for c.rows.Next() {
		if err := ctx.Err(); err != nil {
			c.err = err
			return false
		}
		var data []byte
		if err := c.rows.Scan(&data); err != nil {
			c.err = err
			return false
		}
		rec, err := decode(data)
		if err != nil {
			c.err = err
			return false
		}
		if c.match.Match(rec) {
			c.cur = rec
			c.seen++
			return true
		}
	}
	c.err = c.rows.Err()
	return false
}

func (c *cursor) Record() document.Values { return c.cur }
func (c *cursor) Err() error              { return c.err }

func (c *cursor) Close() error {
	c.rows.Close()
	return nil
}
