package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/smartyellow/services/core/document"
	"github.com/smartyellow/services/core/schema"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
  collection TEXT NOT NULL,
  id         TEXT NOT NULL,
  data       TEXT NOT NULL,
  PRIMARY KEY (collection, id)
);
CREATE TABLE IF NOT EXISTS claims (
  collection TEXT NOT NULL,
  claim      TEXT NOT NULL,
  id         TEXT NOT NULL,
  PRIMARY KEY (collection, claim)
);
CREATE INDEX IF NOT EXISTS idx_claims_owner ON claims (collection, id);
`

// SQLiteStore implements Store with SQLite. Records are kept as JSON text;
// unique claims live in their own table whose primary key enforces them.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// Each connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	s := NewSQLiteStoreFromDB(db)
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStoreFromDB wraps an existing connection. Call Migrate before use.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Migrate creates the tables if they do not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// Collection returns the named collection.
func (s *SQLiteStore) Collection(name string) Collection {
	return &sqliteCollection{db: s.db, name: name}
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

type sqliteCollection struct {
	db   *sql.DB
	name string
}

func (c *sqliteCollection) Get(ctx context.Context, id string) (document.Values, error) {
	var data string
	err := c.db.QueryRowContext(ctx,
		"SELECT data FROM documents WHERE collection = ? AND id = ?", c.name, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", c.name, id, err)
	}
	return decodeRecord(data)
}

func (c *sqliteCollection) Find(ctx context.Context, q Query) (Cursor, error) {
	m, err := Compile(q)
	if err != nil {
		return nil, err
	}

	query, args := buildSelect(c.name, q)
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", c.name, err)
	}
	return &rowsCursor{rows: rows, match: m, limit: q.Limit}, nil
}

func (c *sqliteCollection) Delete(ctx context.Context, q Query) (int64, error) {
	cur, err := c.Find(ctx, q)
	if err != nil {
		return 0, err
	}
	recs, err := ToArray(ctx, cur)
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range recs {
		id, _ := rec["id"].(string)
		if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE collection = ? AND id = ?", c.name, id); err != nil {
			return 0, fmt.Errorf("delete %s/%s: %w", c.name, id, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM claims WHERE collection = ? AND id = ?", c.name, id); err != nil {
			return 0, fmt.Errorf("release claims of %s/%s: %w", c.name, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int64(len(recs)), nil
}

func (c *sqliteCollection) Upsert(ctx context.Context, rec document.Values, claims []string) error {
	id, _ := rec["id"].(string)
	if id == "" {
		return fmt.Errorf("upsert into %s: record has no id", c.name)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data`,
		c.name, id, string(data))
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", c.name, id, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM claims WHERE collection = ? AND id = ?", c.name, id); err != nil {
		return fmt.Errorf("release claims: %w", err)
	}
	for _, claim := range claims {
		_, err := tx.ExecContext(ctx, "INSERT INTO claims (collection, claim, id) VALUES (?, ?, ?)", c.name, claim, id)
		if isConstraintErr(err) {
			return fmt.Errorf("claim %q: %w", claim, ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("claim %q: %w", claim, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// buildSelect pushes string equality and the sort order down to SQL. The
// full query is evaluated again on every decoded row.
func buildSelect(collection string, q Query) (string, []any) {
	var sb strings.Builder
	args := []any{collection}

	sb.WriteString("SELECT data FROM documents WHERE collection = ?")
	for _, c := range q.Where {
		if s, ok := c.Value.(string); ok && c.Op == OpEq {
			sb.WriteString(" AND json_extract(data, ?) = ?")
			args = append(args, jsonPath(c.Path), s)
		}
	}

	if len(q.Sort) > 0 {
		var order []string
		for _, s := range q.Sort {
			dir := "ASC"
			if s.Desc {
				dir = "DESC"
			}
			order = append(order, "json_extract(data, ?) "+dir)
			args = append(args, jsonPath(s.Path))
		}
		sb.WriteString(" ORDER BY " + strings.Join(order, ", "))
	}

	return sb.String(), args
}

func jsonPath(p schema.Path) string {
	var sb strings.Builder
	sb.WriteString("$")
	for _, seg := range p {
		sb.WriteString(`."`)
		sb.WriteString(strings.ReplaceAll(seg, `"`, `\"`))
		sb.WriteString(`"`)
	}
	return sb.String()
}

func decodeRecord(data string) (document.Values, error) {
	var rec document.Values
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

func isConstraintErr(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

// rowsCursor decodes rows lazily and skips those the query rejects.
type rowsCursor struct {
	rows  *sql.Rows
	match *Matcher
	limit int
	seen  int
	cur   document.Values
	err   error
}

func (c *rowsCursor) Next(ctx context.Context) bool {
	if c.err != nil || (c.limit > 0 && c.seen >= c.limit) {
		return false
	}
	for c.rows.Next() {
		if err := ctx.Err(); err != nil {
			c.err = err
			return false
		}
		var data string
		if err := c.rows.Scan(&data); err != nil {
			c.err = err
			return false
		}
		rec, err := decodeRecord(data)
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

func (c *rowsCursor) Record() document.Values { return c.cur }
func (c *rowsCursor) Err() error              { return c.err }
func (c *rowsCursor) Close() error            { return c.rows.Close() }
