package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kilupskalvis/sitedoc/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Backend on a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at the given path and
// creates the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; one connection keeps transactions serialized.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initialize() error {
	schema := `
	-- Live documents, one per site
	CREATE TABLE IF NOT EXISTS documents (
		site_id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		version INTEGER NOT NULL,
		content JSON NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Checkpoints (append-only, pruned from the oldest end)
	CREATE TABLE IF NOT EXISTS checkpoints (
		site_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		id TEXT NOT NULL UNIQUE,
		version INTEGER NOT NULL,
		timestamp TEXT NOT NULL,
		content JSON NOT NULL,
		changes JSON,
		tag TEXT NOT NULL DEFAULT '',
		restored_from TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (site_id, seq)
	);

	-- Per-site sequence counters; never reset by pruning
	CREATE TABLE IF NOT EXISTS checkpoint_seq (
		site_id TEXT PRIMARY KEY,
		last_seq INTEGER NOT NULL
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// GetDocument retrieves the live document for a site. Returns ErrNotFound if missing.
func (s *SQLiteStore) GetDocument(ctx context.Context, siteID string) (*models.Document, error) {
	return getDocument(ctx, s.db, siteID)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDocument(ctx context.Context, q queryer, siteID string) (*models.Document, error) {
	var doc models.Document
	var content, updatedAt string

	err := q.QueryRowContext(ctx, `
		SELECT site_id, owner, version, content, updated_at
		FROM documents WHERE site_id = ?`, siteID).Scan(
		&doc.SiteID, &doc.Owner, &doc.Version, &content, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(content), &doc.Content); err != nil {
		return nil, fmt.Errorf("unmarshal document content: %w", err)
	}
	doc.UpdatedAt = parseTimestamp(updatedAt)
	return &doc, nil
}

// CreateDocument stores a new document. Returns ErrConflict if the site already has one.
func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	content, err := json.Marshal(doc.Content)
	if err != nil {
		return fmt.Errorf("marshal document content: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (site_id, owner, version, content, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(site_id) DO NOTHING`,
		doc.SiteID, doc.Owner, doc.Version, string(content), formatTimestamp(doc.UpdatedAt),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// CommitDocument performs the version compare-and-swap, checkpoint append,
// pruning and document update in one transaction.
func (s *SQLiteStore) CommitDocument(ctx context.Context, c *Commit) (*CommitResult, error) {
	if err := validateCommit(c); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := getDocument(ctx, tx, c.Document.SiteID)
	if err != nil {
		return nil, err
	}
	if current.Version != c.ExpectedVersion {
		return nil, ErrConflict
	}

	cp := *c.Checkpoint

	var lastTS sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT timestamp FROM checkpoints WHERE site_id = ? ORDER BY seq DESC LIMIT 1`,
		cp.SiteID).Scan(&lastTS)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if lastTS.Valid {
		cp.Timestamp = nextTimestamp(cp.Timestamp, parseTimestamp(lastTS.String))
	}

	var seq uint64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO checkpoint_seq (site_id, last_seq) VALUES (?, 1)
		ON CONFLICT(site_id) DO UPDATE SET last_seq = last_seq + 1
		RETURNING last_seq`, cp.SiteID).Scan(&seq)
	if err != nil {
		return nil, fmt.Errorf("next checkpoint sequence: %w", err)
	}
	cp.Seq = seq

	if err := insertCheckpoint(ctx, tx, &cp); err != nil {
		return nil, err
	}

	result := &CommitResult{Checkpoint: &cp}
	if c.Retain > 0 {
		pruned, err := pruneCheckpoints(ctx, tx, cp.SiteID, c.Retain)
		if err != nil {
			return nil, err
		}
		result.Pruned = pruned
	}

	content, err := json.Marshal(c.Document.Content)
	if err != nil {
		return nil, fmt.Errorf("marshal document content: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE documents SET owner = ?, version = ?, content = ?, updated_at = ?
		WHERE site_id = ? AND version = ?`,
		c.Document.Owner, c.Document.Version, string(content), formatTimestamp(c.Document.UpdatedAt),
		c.Document.SiteID, c.ExpectedVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("update document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return result, nil
}

func insertCheckpoint(ctx context.Context, tx *sql.Tx, cp *models.Checkpoint) error {
	content, err := json.Marshal(cp.Content)
	if err != nil {
		return fmt.Errorf("marshal checkpoint content: %w", err)
	}
	changes, err := json.Marshal(cp.Changes)
	if err != nil {
		return fmt.Errorf("marshal checkpoint changes: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO checkpoints (site_id, seq, id, version, timestamp, content, changes, tag, restored_from)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cp.SiteID, cp.Seq, cp.ID, cp.Version, formatTimestamp(cp.Timestamp),
		string(content), string(changes), cp.Tag, cp.RestoredFrom,
	)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func pruneCheckpoints(ctx context.Context, ex execer, siteID string, retain int) (int, error) {
	res, err := ex.ExecContext(ctx, `
		DELETE FROM checkpoints
		WHERE site_id = ? AND seq NOT IN (
			SELECT seq FROM checkpoints WHERE site_id = ? ORDER BY seq DESC LIMIT ?
		)`, siteID, siteID, retain)
	if err != nil {
		return 0, fmt.Errorf("prune checkpoints: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// ListSites returns all site IDs sorted by name.
func (s *SQLiteStore) ListSites(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT site_id FROM documents ORDER BY site_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sites []string
	for rows.Next() {
		var site string
		if err := rows.Scan(&site); err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

const checkpointColumns = `site_id, seq, id, version, timestamp, content, changes, tag, restored_from`

// GetCheckpoint retrieves a checkpoint by ID. Returns ErrNotFound if missing or pruned.
func (s *SQLiteStore) GetCheckpoint(ctx context.Context, siteID, id string) (*models.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+checkpointColumns+" FROM checkpoints WHERE site_id = ? AND id = ?", siteID, id)
	return scanCheckpoint(row)
}

// GetCheckpointBySeq retrieves a checkpoint by sequence number.
func (s *SQLiteStore) GetCheckpointBySeq(ctx context.Context, siteID string, seq uint64) (*models.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+checkpointColumns+" FROM checkpoints WHERE site_id = ? AND seq = ?", siteID, seq)
	return scanCheckpoint(row)
}

// ListCheckpoints returns checkpoints newest first.
func (s *SQLiteStore) ListCheckpoints(ctx context.Context, siteID string, limit, offset int) ([]*models.Checkpoint, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+checkpointColumns+" FROM checkpoints WHERE site_id = ? ORDER BY seq DESC LIMIT ? OFFSET ?",
		siteID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	checkpoints := []*models.Checkpoint{}
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, rows.Err()
}

// CountCheckpoints returns the number of retained checkpoints for a site.
func (s *SQLiteStore) CountCheckpoints(ctx context.Context, siteID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM checkpoints WHERE site_id = ?", siteID).Scan(&count)
	return count, err
}

// PruneCheckpoints deletes the oldest checkpoints until at most retain remain.
func (s *SQLiteStore) PruneCheckpoints(ctx context.Context, siteID string, retain int) (int, error) {
	if retain < 1 {
		return 0, fmt.Errorf("retain must be at least 1, got %d", retain)
	}
	return pruneCheckpoints(ctx, s.db, siteID, retain)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row rowScanner) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	var timestamp, content string
	var changes sql.NullString

	err := row.Scan(&cp.SiteID, &cp.Seq, &cp.ID, &cp.Version, &timestamp, &content, &changes, &cp.Tag, &cp.RestoredFrom)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cp.Timestamp = parseTimestamp(timestamp)
	if err := json.Unmarshal([]byte(content), &cp.Content); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint content: %w", err)
	}
	if changes.Valid && changes.String != "" && changes.String != "null" {
		if err := json.Unmarshal([]byte(changes.String), &cp.Changes); err != nil {
			return nil, fmt.Errorf("unmarshal checkpoint changes: %w", err)
		}
	}
	return &cp, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTimestamp parses a timestamp string from SQLite in various formats
func parseTimestamp(s string) time.Time {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
