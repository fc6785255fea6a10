package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilupskalvis/sitedoc/internal/models"
	"github.com/kilupskalvis/sitedoc/internal/patch"
	"github.com/kilupskalvis/sitedoc/internal/store"
)

// Patch applies changes to a site's document if baseVersion is still current.
// On success the version advances by one and the previous state is kept as a
// checkpoint. A stale baseVersion returns *ConflictError; any invalid change
// rejects the whole batch.
func (e *Engine) Patch(ctx context.Context, siteID, caller string, baseVersion int64, changes []models.Change) (*models.WriteResult, error) {
	if err := e.authorize(ctx, caller, siteID); err != nil {
		if errors.Is(err, ErrForbidden) {
			e.emit(Event{Op: OpPatch, Type: EventForbidden, SiteID: siteID, Caller: caller, Timestamp: e.now()})
		}
		return nil, err
	}
	if len(changes) == 0 {
		e.emit(Event{Op: OpPatch, Type: EventInvalid, SiteID: siteID, Caller: caller, Timestamp: e.now()})
		return nil, ErrEmptyPatch
	}
	ops, err := patch.Compile(changes)
	if err != nil {
		e.emit(Event{Op: OpPatch, Type: EventInvalid, SiteID: siteID, Caller: caller, Timestamp: e.now()})
		return nil, err
	}

	res, ev, err := e.patchLocked(ctx, siteID, baseVersion, ops)
	if ev.Type != "" {
		ev.Caller = caller
		ev.Timestamp = e.now()
		e.emit(ev)
	}
	return res, err
}

func (e *Engine) patchLocked(ctx context.Context, siteID string, baseVersion int64, ops []patch.Op) (*models.WriteResult, Event, error) {
	h := e.handle(siteID)
	h.mu.Lock()
	defer h.mu.Unlock()

	start := time.Now()
	ev := Event{Op: OpPatch, SiteID: siteID}
	finish := func(t EventType) Event {
		ev.Type = t
		ev.Duration = time.Since(start)
		return ev
	}

	cur, err := h.load(ctx, e.backend)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			e.release(h)
			return nil, finish(EventNotFound), err
		}
		return nil, ev, err
	}
	ev.Version = cur.Version

	if cur.Version != baseVersion {
		e.logger.Debug("write conflict", "site", siteID, "expected", baseVersion, "current", cur.Version)
		return nil, finish(EventConflict), e.conflict(siteID, baseVersion, cur)
	}

	content, err := patch.Apply(cur.Content, ops)
	if err != nil {
		return nil, finish(EventInvalid), err
	}

	next := &models.Document{
		SiteID:    cur.SiteID,
		Owner:     cur.Owner,
		Version:   cur.Version + 1,
		Content:   content,
		UpdatedAt: e.now().UTC(),
	}
	cp := e.checkpoints.snapshot(cur, appliedChanges(ops), "", "")

	result, err := e.commit(ctx, h, cur, next, cp)
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			ev.Version = conflict.Current
			return nil, finish(EventConflict), err
		}
		return nil, ev, err
	}

	e.logger.Info("write applied", "site", siteID, "version", next.Version, "checkpoint", result.Checkpoint.ID)
	ev.Version = next.Version
	ev.CheckpointID = result.Checkpoint.ID
	ev.Pruned = result.Pruned
	return &models.WriteResult{Version: next.Version, CheckpointID: result.Checkpoint.ID}, finish(EventWrite), nil
}

// commit persists next with its checkpoint and swaps the cached pointer.
// Callers hold h.mu. A storage-level version mismatch means another process
// wrote first; the cache is refreshed and a conflict returned.
func (e *Engine) commit(ctx context.Context, h *documentHandle, cur, next *models.Document, cp *models.Checkpoint) (*store.CommitResult, error) {
	result, err := e.backend.CommitDocument(ctx, &store.Commit{
		Document:        next,
		ExpectedVersion: cur.Version,
		Checkpoint:      cp,
		Retain:          e.checkpoints.Retention(),
	})
	if errors.Is(err, store.ErrConflict) {
		fresh, rerr := h.reload(ctx, e.backend)
		if rerr != nil {
			return nil, fmt.Errorf("reload after conflict: %w", rerr)
		}
		return nil, e.conflict(cur.SiteID, cur.Version, fresh)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("site %s: %w", cur.SiteID, ErrDocumentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("commit document: %w", err)
	}

	h.current.Store(next)
	return result, nil
}

func (e *Engine) conflict(siteID string, expected int64, cur *models.Document) *ConflictError {
	return &ConflictError{
		SiteID:     siteID,
		Expected:   expected,
		Current:    cur.Version,
		ServerData: cur.Clone(),
	}
}

// appliedChanges records the normalized changes for the audit trail.
func appliedChanges(ops []patch.Op) []models.Change {
	changes := make([]models.Change, len(ops))
	for i, op := range ops {
		changes[i] = models.Change{Field: op.Path.String(), Value: models.CloneValue(op.Value)}
	}
	return changes
}
