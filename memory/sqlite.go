package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/aide/logging"
)

// minQueryLen is the shortest trimmed query that carries useful search
// signal; anything shorter falls back to recency ranking.
const minQueryLen = 3

// SQLiteStore implements Store using SQLite with an FTS5 full-text index.
type SQLiteStore struct {
	db     *sql.DB
	logger logging.Logger
}

// SQLiteStoreOptions configures a SQLiteStore.
type SQLiteStoreOptions struct {
	Logger logging.Logger
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string, optFns ...func(o *SQLiteStoreOptions)) (*SQLiteStore, error) {
	opts := SQLiteStoreOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Single writer; SQLite serializes anyway, this avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, logger: opts.Logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s.logger.Info("memory.store.opened", "path", dbPath)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id      TEXT    NOT NULL,
		content      TEXT    NOT NULL,
		tags         TEXT    NOT NULL DEFAULT '[]',
		created_at   TEXT    NOT NULL,
		accessed_at  TEXT    NOT NULL,
		access_count INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_memories_user_id ON memories(user_id);
	CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_memories_accessed_at ON memories(user_id, accessed_at DESC);

	CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts
		USING fts5(content, user_id UNINDEXED, tokenize='porter ascii');
	`
	_, err := s.db.Exec(schema)
	return err
}

// Store implements Store. The row and its FTS index entry are written in one
// transaction.
func (s *SQLiteStore) Store(ctx context.Context, content, userID string, tags []string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return 0, fmt.Errorf("marshal tags: %w", err)
	}
	if tags == nil {
		tagsJSON = []byte("[]")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO memories (user_id, content, tags, created_at, accessed_at, access_count)
		 VALUES (?, ?, ?, ?, ?, 0)`,
		userID, content, string(tagsJSON), now, now)
	if err != nil {
		return 0, fmt.Errorf("insert memory: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO memories_fts (rowid, content, user_id) VALUES (?, ?, ?)`,
		id, content, userID); err != nil {
		return 0, fmt.Errorf("index memory: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	s.logger.Debug("memory.stored", "id", id, "user_id", userID)
	return id, nil
}

// Search implements Store.
func (s *SQLiteStore) Search(ctx context.Context, query, userID string, limit int, tags []string) ([]Record, error) {
	if limit <= 0 {
		limit = 5
	}

	var (
		records []Record
		err     error
	)
	if len(strings.TrimSpace(query)) < minQueryLen {
		records, err = s.recent(ctx, userID, limit)
	} else {
		records, err = s.fullText(ctx, query, userID, limit)
	}
	if err != nil {
		return nil, err
	}

	if len(tags) > 0 {
		records = filterByTags(records, tags)
	}

	if err := s.touch(ctx, records); err != nil {
		return nil, fmt.Errorf("touch access stats: %w", err)
	}
	return records, nil
}

// fullText runs a ranked FTS5 query scoped to the user.
func (s *SQLiteStore) fullText(ctx context.Context, query, userID string, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.content, m.user_id, m.tags, m.created_at, m.accessed_at, m.access_count
		 FROM memories m
		 JOIN memories_fts fts ON fts.rowid = m.id
		 WHERE fts.memories_fts MATCH ? AND m.user_id = ?
		 ORDER BY fts.rank
		 LIMIT ?`,
		ftsQuery(query), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// recent returns the most recently accessed records for a user.
func (s *SQLiteStore) recent(ctx context.Context, userID string, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, user_id, tags, created_at, accessed_at, access_count
		 FROM memories
		 WHERE user_id = ?
		 ORDER BY accessed_at DESC
		 LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent query: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// touch bumps accessed_at and access_count for every retrieved record, in one
// transaction, and mirrors the new stats onto the returned values.
func (s *SQLiteStore) touch(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	now := time.Now().UTC()
	nowStr := now.Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := range records {
		if _, err := tx.ExecContext(ctx,
			`UPDATE memories SET accessed_at = ?, access_count = access_count + 1 WHERE id = ?`,
			nowStr, records[i].ID); err != nil {
			return err
		}
		records[i].AccessedAt = now
		records[i].AccessCount++
	}

	return tx.Commit()
}

// All implements Store.
func (s *SQLiteStore) All(ctx context.Context, userID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, user_id, tags, created_at, accessed_at, access_count
		 FROM memories
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("all query: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Delete implements Store. Row and index entry go in one transaction.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM memories_fts WHERE rowid = ?`, id); err != nil {
		return fmt.Errorf("deindex memory: %w", err)
	}

	return tx.Commit()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ftsQuery quotes each whitespace-separated term so user text containing FTS5
// operators ("-", "*", quotes) cannot break the MATCH expression.
func ftsQuery(query string) string {
	terms := strings.Fields(query)
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	// OR-join so any term can match; rank ordering still prefers rows
	// hitting more terms.
	return strings.Join(quoted, " OR ")
}

func filterByTags(records []Record, tags []string) []Record {
	want := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		want[t] = struct{}{}
	}

	out := records[:0]
	for _, r := range records {
		for _, t := range r.Tags {
			if _, ok := want[t]; ok {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanRecords(rows rowScanner) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var (
			r        Record
			tagsJSON string
			created  string
			accessed string
		)
		if err := rows.Scan(&r.ID, &r.Content, &r.UserID, &tagsJSON, &created, &accessed, &r.AccessCount); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(tagsJSON), &r.Tags); err != nil {
			r.Tags = nil
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		r.AccessedAt, _ = time.Parse(time.RFC3339Nano, accessed)
		records = append(records, r)
	}
	return records, rows.Err()
}
