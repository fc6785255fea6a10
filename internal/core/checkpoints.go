package core

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/kilupskalvis/sitedoc/internal/models"
	"github.com/kilupskalvis/sitedoc/internal/store"
	"github.com/oklog/ulid/v2"
)

// Checkpoints is the bounded, per-site history of prior document states.
// Recording happens inside the engine's commit; this type covers reads and
// explicit compaction.
type Checkpoints struct {
	backend   store.Backend
	retention int
	now       func() time.Time

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

func newCheckpoints(backend store.Backend, retention int, now func() time.Time) *Checkpoints {
	return &Checkpoints{
		backend:   backend,
		retention: retention,
		now:       now,
		entropy:   ulid.Monotonic(rand.Reader, 0),
	}
}

// Retention returns the per-site cap.
func (c *Checkpoints) Retention() int {
	return c.retention
}

// snapshot builds an unsaved checkpoint of doc. The store assigns Seq.
func (c *Checkpoints) snapshot(doc *models.Document, changes []models.Change, tag, restoredFrom string) *models.Checkpoint {
	ts := c.now().UTC()
	return &models.Checkpoint{
		ID:           c.newID(ts),
		SiteID:       doc.SiteID,
		Version:      doc.Version,
		Timestamp:    ts,
		Content:      models.CloneContent(doc.Content),
		Changes:      changes,
		Tag:          tag,
		RestoredFrom: restoredFrom,
	}
}

func (c *Checkpoints) newID(ts time.Time) string {
	c.entropyMu.Lock()
	defer c.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(ts), c.entropy).String()
}

// List returns checkpoints newest first. limit <= 0 returns the whole retained history.
func (c *Checkpoints) List(ctx context.Context, siteID string, limit, offset int) ([]*models.Checkpoint, error) {
	cps, err := c.backend.ListCheckpoints(ctx, siteID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	return cps, nil
}

// Get resolves a checkpoint by ID, or by decimal sequence number when no ID matches.
func (c *Checkpoints) Get(ctx context.Context, siteID, ref string) (*models.Checkpoint, error) {
	cp, err := c.backend.GetCheckpoint(ctx, siteID, ref)
	if errors.Is(err, store.ErrNotFound) {
		if seq, perr := strconv.ParseUint(ref, 10, 64); perr == nil {
			cp, err = c.backend.GetCheckpointBySeq(ctx, siteID, seq)
		}
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("checkpoint %s: %w", ref, ErrCheckpointNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	return cp, nil
}

// Count returns how many checkpoints a site retains.
func (c *Checkpoints) Count(ctx context.Context, siteID string) (int, error) {
	return c.backend.CountCheckpoints(ctx, siteID)
}

// Prune deletes the oldest checkpoints beyond the retention cap.
func (c *Checkpoints) Prune(ctx context.Context, siteID string) (int, error) {
	n, err := c.backend.PruneCheckpoints(ctx, siteID, c.retention)
	if err != nil {
		return 0, fmt.Errorf("prune checkpoints: %w", err)
	}
	return n, nil
}
