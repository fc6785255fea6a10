// Package store persists site documents and their checkpoint history.
// Two backends are provided: an embedded bbolt file and a SQLite database.
package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/kilupskalvis/sitedoc/internal/models"
)

// Sentinel errors for expected conditions.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Backend names accepted by Open.
const (
	BackendBbolt  = "bbolt"
	BackendSQLite = "sqlite"
)

// Commit describes one atomic swap of a live document.
type Commit struct {
	// Document is the new live document. Its Version must be ExpectedVersion+1.
	Document *models.Document
	// ExpectedVersion is compared against the stored version; a mismatch
	// aborts the commit with ErrConflict.
	ExpectedVersion int64
	// Checkpoint is appended in the same transaction. The store assigns Seq
	// and may move Timestamp forward so timestamps stay strictly increasing.
	Checkpoint *models.Checkpoint
	// Retain prunes the oldest checkpoints down to this many. Zero disables pruning.
	Retain int
}

// CommitResult reports what a commit stored.
type CommitResult struct {
	Checkpoint *models.Checkpoint
	Pruned     int
}

// Backend defines the contract for document and checkpoint persistence.
type Backend interface {
	// Documents
	GetDocument(ctx context.Context, siteID string) (*models.Document, error)
	CreateDocument(ctx context.Context, doc *models.Document) error
	CommitDocument(ctx context.Context, c *Commit) (*CommitResult, error)
	ListSites(ctx context.Context) ([]string, error)

	// Checkpoints
	GetCheckpoint(ctx context.Context, siteID, id string) (*models.Checkpoint, error)
	GetCheckpointBySeq(ctx context.Context, siteID string, seq uint64) (*models.Checkpoint, error)
	// ListCheckpoints returns checkpoints newest first. limit <= 0 means no limit.
	ListCheckpoints(ctx context.Context, siteID string, limit, offset int) ([]*models.Checkpoint, error)
	CountCheckpoints(ctx context.Context, siteID string) (int, error)
	PruneCheckpoints(ctx context.Context, siteID string, retain int) (int, error)

	// Close releases resources.
	Close() error
}

// Open creates the named backend inside dataDir.
func Open(backend, dataDir string) (Backend, error) {
	switch backend {
	case "", BackendBbolt:
		return NewBboltStore(filepath.Join(dataDir, "sitedoc.db"))
	case BackendSQLite:
		return NewSQLiteStore(filepath.Join(dataDir, "sitedoc.sqlite"))
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

func validateCommit(c *Commit) error {
	if c == nil || c.Document == nil || c.Checkpoint == nil {
		return fmt.Errorf("commit requires a document and a checkpoint")
	}
	if c.Document.Version != c.ExpectedVersion+1 {
		return fmt.Errorf("commit version %d does not follow expected version %d", c.Document.Version, c.ExpectedVersion)
	}
	if c.Checkpoint.SiteID != c.Document.SiteID {
		return fmt.Errorf("checkpoint site %q does not match document site %q", c.Checkpoint.SiteID, c.Document.SiteID)
	}
	return nil
}

// nextTimestamp keeps checkpoint timestamps strictly increasing per site.
func nextTimestamp(want, last time.Time) time.Time {
	if !last.IsZero() && !want.After(last) {
		return last.Add(time.Nanosecond)
	}
	return want
}
