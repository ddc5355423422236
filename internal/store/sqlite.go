package store

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

	"github.com/danmuck/heritagectl/internal/heritage"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const DefaultSQLitePath = "local/heritage.db"

const schema = `
CREATE TABLE IF NOT EXISTS contributions (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	kind        TEXT NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	region      TEXT NOT NULL,
	user        TEXT NOT NULL,
	date        TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	file        TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT '',
	ingredients TEXT NOT NULL DEFAULT '[]',
	session     TEXT NOT NULL DEFAULT '',
	region_key  TEXT NOT NULL DEFAULT '',
	user_key    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_contributions_kind ON contributions(kind);
CREATE INDEX IF NOT EXISTS idx_contributions_session ON contributions(session);
`

// region_key and user_key hold foldKey values; sqlite's lower() and NOCASE
// only fold ASCII.
const keyIndexes = `
CREATE INDEX IF NOT EXISTS idx_contributions_region_key ON contributions(region_key);
CREATE INDEX IF NOT EXISTS idx_contributions_user_key ON contributions(user_key);
`

const selectColumns = `id, kind, title, description, region, user, date, created_at, file, body, ingredients, session`

// SQLiteStore is the durable backend.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultSQLitePath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: create directory: %w", err)
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	// one writer at a time; sqlite serializes writes anyway
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	if err := migrateKeys(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	log.Debug().Str("path", path).Msg("sqlite_store_opened")
	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) Add(ctx context.Context, c heritage.Contribution) error {
	if err := heritage.Validate(c); err != nil {
		return err
	}
	ingredients, err := json.Marshal(nonNil(c.Ingredients))
	if err != nil {
		return fmt.Errorf("store: encode ingredients: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contributions (`+selectColumns+`, region_key, user_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, string(c.Kind), c.Title, c.Description, c.Region, c.User, c.Date,
		c.CreatedAt.UTC().Format(time.RFC3339Nano), c.File, c.Body, string(ingredients), c.Session,
		foldKey(c.Region), foldKey(c.User),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrDuplicate, c.ID)
		}
		return fmt.Errorf("store: insert contribution: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (heritage.Contribution, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM contributions WHERE id = ?`, id)
	c, err := scanContribution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return heritage.Contribution{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c, err
}

func (s *SQLiteStore) List(ctx context.Context, q Query) ([]heritage.Contribution, error) {
	var (
		where []string
		args  []any
	)
	if q.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(q.Kind))
	}
	if r := foldKey(q.Region); r != "" {
		where = append(where, "region_key = ?")
		args = append(args, r)
	}
	if u := foldKey(q.User); u != "" {
		where = append(where, "user_key = ?")
		args = append(args, u)
	}
	if q.Session != "" {
		where = append(where, "session = ?")
		args = append(args, q.Session)
	}

	query := `SELECT ` + selectColumns + ` FROM contributions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	query += " ORDER BY seq ASC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	return s.queryAll(ctx, query, args...)
}

func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]heritage.Contribution, error) {
	n = normalizeRecent(n)
	return s.queryAll(ctx, `
		SELECT `+selectColumns+` FROM (
			SELECT seq, `+selectColumns+` FROM contributions ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`, n)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM contributions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete contribution: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete contribution: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) Count(ctx context.Context) (map[heritage.Kind]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM contributions GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("store: count contributions: %w", err)
	}
	defer rows.Close()
	out := emptyCounts()
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("store: count contributions: %w", err)
		}
		out[heritage.Kind(kind)] = n
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) queryAll(ctx context.Context, query string, args ...any) ([]heritage.Contribution, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query contributions: %w", err)
	}
	defer rows.Close()
	out := make([]heritage.Contribution, 0)
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: query contributions: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContribution(sc scanner) (heritage.Contribution, error) {
	var (
		c           heritage.Contribution
		kind        string
		createdAt   string
		ingredients string
	)
	err := sc.Scan(&c.ID, &kind, &c.Title, &c.Description, &c.Region, &c.User, &c.Date,
		&createdAt, &c.File, &c.Body, &ingredients, &c.Session)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return heritage.Contribution{}, err
		}
		return heritage.Contribution{}, fmt.Errorf("store: scan contribution: %w", err)
	}
	c.Kind = heritage.Kind(kind)
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return heritage.Contribution{}, fmt.Errorf("store: decode created_at for %s: %w", c.ID, err)
	}
	c.CreatedAt = ts
	if err := json.Unmarshal([]byte(ingredients), &c.Ingredients); err != nil {
		return heritage.Contribution{}, fmt.Errorf("store: decode ingredients: %w", err)
	}
	if len(c.Ingredients) == 0 {
		c.Ingredients = nil
	}
	return c, nil
}

// migrateKeys adds the folded key columns to databases created before
// they existed and backfills them.
func migrateKeys(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `SELECT name FROM pragma_table_info('contributions')`)
	if err != nil {
		return fmt.Errorf("store: inspect schema: %w", err)
	}
	have := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("store: inspect schema: %w", err)
		}
		have[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("store: inspect schema: %w", err)
	}

	added := false
	for _, col := range []string{"region_key", "user_key"} {
		if have[col] {
			continue
		}
		if _, err := db.ExecContext(ctx, `ALTER TABLE contributions ADD COLUMN `+col+` TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("store: add column %s: %w", col, err)
		}
		added = true
	}
	if added {
		if err := backfillKeys(ctx, db); err != nil {
			return err
		}
		log.Info().Msg("sqlite_store_keys_backfilled")
	}
	if _, err := db.ExecContext(ctx, keyIndexes); err != nil {
		return fmt.Errorf("store: create key indexes: %w", err)
	}
	return nil
}

func backfillKeys(ctx context.Context, db *sql.DB) error {
	type keyRow struct{ id, region, user string }
	rows, err := db.QueryContext(ctx, `SELECT id, region, user FROM contributions`)
	if err != nil {
		return fmt.Errorf("store: backfill keys: %w", err)
	}
	var pending []keyRow
	for rows.Next() {
		var r keyRow
		if err := rows.Scan(&r.id, &r.region, &r.user); err != nil {
			rows.Close()
			return fmt.Errorf("store: backfill keys: %w", err)
		}
		pending = append(pending, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("store: backfill keys: %w", err)
	}
	for _, r := range pending {
		if _, err := db.ExecContext(ctx, `UPDATE contributions SET region_key = ?, user_key = ? WHERE id = ?`,
			foldKey(r.region), foldKey(r.user), r.id); err != nil {
			return fmt.Errorf("store: backfill keys: %w", err)
		}
	}
	return nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
