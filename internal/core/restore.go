package core

import (
	"context"
	"errors"
	"time"

	"github.com/kilupskalvis/sitedoc/internal/models"
)

// Restore replaces a site's content with a retained checkpoint's content.
// The live state is first saved as a before-restore checkpoint so the
// restore can itself be undone, and the version advances by one.
// ref is a checkpoint ID or its decimal sequence number.
func (e *Engine) Restore(ctx context.Context, siteID, caller, ref string) (*models.RestoreResult, error) {
	if err := e.authorize(ctx, caller, siteID); err != nil {
		if errors.Is(err, ErrForbidden) {
			e.emit(Event{Op: OpRestore, Type: EventForbidden, SiteID: siteID, Caller: caller, Timestamp: e.now()})
		}
		return nil, err
	}

	res, ev, err := e.restoreLocked(ctx, siteID, ref)
	if ev.Type != "" {
		ev.Caller = caller
		ev.Timestamp = e.now()
		e.emit(ev)
	}
	return res, err
}

func (e *Engine) restoreLocked(ctx context.Context, siteID, ref string) (*models.RestoreResult, Event, error) {
	h := e.handle(siteID)
	h.mu.Lock()
	defer h.mu.Unlock()

	start := time.Now()
	ev := Event{Op: OpRestore, SiteID: siteID}

	cur, err := h.load(ctx, e.backend)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			e.release(h)
			ev.Type = EventNotFound
		}
		return nil, ev, err
	}

	target, err := e.checkpoints.Get(ctx, siteID, ref)
	if err != nil {
		if errors.Is(err, ErrCheckpointNotFound) {
			ev.Type = EventNotFound
			ev.Version = cur.Version
		}
		return nil, ev, err
	}

	next := &models.Document{
		SiteID:    cur.SiteID,
		Owner:     cur.Owner,
		Version:   cur.Version + 1,
		Content:   models.CloneContent(target.Content),
		UpdatedAt: e.now().UTC(),
	}
	backup := e.checkpoints.snapshot(cur, nil, models.TagBeforeRestore, target.ID)

	result, err := e.commit(ctx, h, cur, next, backup)
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			ev.Type = EventConflict
			ev.Version = conflict.Current
		}
		return nil, ev, err
	}

	e.logger.Info("checkpoint restored", "site", siteID, "version", next.Version,
		"checkpoint", target.ID, "backup", result.Checkpoint.ID)

	ev.Type = EventRestore
	ev.Version = next.Version
	ev.CheckpointID = target.ID
	ev.Pruned = result.Pruned
	ev.Duration = time.Since(start)

	return &models.RestoreResult{
		Version:      next.Version,
		CheckpointID: target.ID,
		BackupID:     result.Checkpoint.ID,
		Content:      models.CloneContent(next.Content),
	}, ev, nil
}
