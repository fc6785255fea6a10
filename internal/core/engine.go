// Package core implements the versioned document engine: optimistic
// concurrency on writes, the bounded checkpoint history, restore and the
// per-caller edit session.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kilupskalvis/sitedoc/internal/models"
	"github.com/kilupskalvis/sitedoc/internal/patch"
	"github.com/kilupskalvis/sitedoc/internal/store"
)

const (
	// DefaultRetention is the number of checkpoints kept per site.
	DefaultRetention = 50
	// HistoryCeiling caps a single history page.
	HistoryCeiling = 20
)

// OwnershipResolver answers whether a caller owns a site.
type OwnershipResolver interface {
	IsOwner(ctx context.Context, caller, siteID string) (bool, error)
}

// Options configures an Engine.
type Options struct {
	Retention    int
	HistoryLimit int
	Logger       *slog.Logger
	Now          func() time.Time
	Observers    []Observer
}

// DefaultOptions returns the production defaults.
func DefaultOptions() *Options {
	return &Options{
		Retention:    DefaultRetention,
		HistoryLimit: HistoryCeiling,
		Logger:       slog.Default(),
		Now:          time.Now,
	}
}

// Engine serializes writes per site and keeps an atomically swapped copy of
// each live document for readers.
type Engine struct {
	backend      store.Backend
	owners       OwnershipResolver
	checkpoints  *Checkpoints
	historyLimit int
	logger       *slog.Logger
	now          func() time.Time

	obsMu     sync.RWMutex
	observers []Observer

	mu      sync.Mutex
	handles map[string]*documentHandle
}

// documentHandle owns the writer lock for one site. current is nil until the
// document is first loaded and is only replaced by a fully built document.
type documentHandle struct {
	siteID  string
	mu      sync.Mutex
	current atomic.Pointer[models.Document]
}

// New creates an engine over backend. A nil opts uses DefaultOptions.
func New(backend store.Backend, owners OwnershipResolver, opts *Options) *Engine {
	def := DefaultOptions()
	if opts == nil {
		opts = def
	}
	if opts.Retention < 1 {
		opts.Retention = def.Retention
	}
	if opts.HistoryLimit < 1 {
		opts.HistoryLimit = def.HistoryLimit
	}
	if opts.Logger == nil {
		opts.Logger = def.Logger
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}

	return &Engine{
		backend:      backend,
		owners:       owners,
		checkpoints:  newCheckpoints(backend, opts.Retention, opts.Now),
		historyLimit: opts.HistoryLimit,
		logger:       opts.Logger,
		now:          opts.Now,
		observers:    append([]Observer(nil), opts.Observers...),
		handles:      make(map[string]*documentHandle),
	}
}

// Subscribe registers an observer for future events.
func (e *Engine) Subscribe(o Observer) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.observers = append(e.observers, o)
}

// Checkpoints exposes the checkpoint store.
func (e *Engine) Checkpoints() *Checkpoints {
	return e.checkpoints
}

// CreateDocument creates the document for a site at version 1.
func (e *Engine) CreateDocument(ctx context.Context, siteID, owner string, content map[string]any) (*models.Document, error) {
	if err := models.ValidateSiteID(siteID); err != nil {
		return nil, err
	}
	if owner == "" {
		return nil, fmt.Errorf("owner is required")
	}
	normalized, err := patch.NormalizeContent(content)
	if err != nil {
		return nil, err
	}

	doc := &models.Document{
		SiteID:    siteID,
		Owner:     owner,
		Version:   models.InitialVersion,
		Content:   normalized,
		UpdatedAt: e.now().UTC(),
	}

	h := e.handle(siteID)
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := e.backend.CreateDocument(ctx, doc); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("site %s: %w", siteID, ErrDocumentExists)
		}
		return nil, fmt.Errorf("create document: %w", err)
	}
	h.current.Store(doc)

	e.logger.Info("document created", "site", siteID, "owner", owner)
	return doc.Clone(), nil
}

// Document returns a copy of the live document. Only the owner may read it.
func (e *Engine) Document(ctx context.Context, siteID, caller string) (*models.Document, error) {
	if err := e.authorize(ctx, caller, siteID); err != nil {
		return nil, err
	}
	doc, err := e.read(ctx, siteID)
	if err != nil {
		return nil, err
	}
	return doc.Clone(), nil
}

// Sites lists every site with a document.
func (e *Engine) Sites(ctx context.Context) ([]string, error) {
	return e.backend.ListSites(ctx)
}

// History returns up to limit checkpoints newest first, skipping offset.
// limit is clamped to the history ceiling.
func (e *Engine) History(ctx context.Context, siteID, caller string, limit, offset int) ([]*models.Checkpoint, error) {
	if err := e.authorize(ctx, caller, siteID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > e.historyLimit {
		limit = e.historyLimit
	}
	if offset < 0 {
		offset = 0
	}
	return e.checkpoints.List(ctx, siteID, limit, offset)
}

// Prune trims a site's history to the retention cap.
func (e *Engine) Prune(ctx context.Context, siteID string) (int, error) {
	h := e.handle(siteID)
	h.mu.Lock()
	pruned, err := e.checkpoints.Prune(ctx, siteID)
	e.release(h)
	h.mu.Unlock()
	if err != nil {
		return 0, err
	}

	if pruned > 0 {
		e.logger.Info("checkpoints pruned", "site", siteID, "pruned", pruned)
	}
	e.emit(Event{Op: OpPrune, Type: EventPrune, SiteID: siteID, Pruned: pruned, Timestamp: e.now()})
	return pruned, nil
}

// authorize fails with ErrForbidden unless caller owns siteID.
func (e *Engine) authorize(ctx context.Context, caller, siteID string) error {
	if caller == "" {
		return ErrForbidden
	}
	ok, err := e.owners.IsOwner(ctx, caller, siteID)
	if err != nil {
		return fmt.Errorf("resolve ownership: %w", err)
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// handle returns the writer handle for siteID, creating it if needed.
// Writers that find no document call release before unlocking.
func (e *Engine) handle(siteID string) *documentHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.handles[siteID]
	if !ok {
		h = &documentHandle{siteID: siteID}
		e.handles[siteID] = h
	}
	return h
}

// release drops h from the cache if it never held a document. Callers hold h.mu.
func (e *Engine) release(h *documentHandle) {
	if h.current.Load() != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handles[h.siteID] == h {
		delete(e.handles, h.siteID)
	}
}

// read returns the live document without taking the writer lock. A handle is
// only cached once the backend has the document, so lookups of unknown sites
// leave the cache untouched.
func (e *Engine) read(ctx context.Context, siteID string) (*models.Document, error) {
	e.mu.Lock()
	h := e.handles[siteID]
	e.mu.Unlock()
	if h != nil {
		return h.load(ctx, e.backend)
	}

	doc, err := getDocument(ctx, e.backend, siteID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.handles[siteID]
	if !ok {
		h = &documentHandle{siteID: siteID}
		e.handles[siteID] = h
	}
	h.current.CompareAndSwap(nil, doc)
	return h.current.Load(), nil
}

// load returns the cached document, reading it from the backend on first use.
// A concurrent writer's swap always wins over a first load.
func (h *documentHandle) load(ctx context.Context, backend store.Backend) (*models.Document, error) {
	if doc := h.current.Load(); doc != nil {
		return doc, nil
	}
	doc, err := getDocument(ctx, backend, h.siteID)
	if err != nil {
		return nil, err
	}
	h.current.CompareAndSwap(nil, doc)
	return h.current.Load(), nil
}

// reload replaces the cached document with the stored one. Callers hold h.mu.
func (h *documentHandle) reload(ctx context.Context, backend store.Backend) (*models.Document, error) {
	doc, err := getDocument(ctx, backend, h.siteID)
	if err != nil {
		return nil, err
	}
	h.current.Store(doc)
	return doc, nil
}

func getDocument(ctx context.Context, backend store.Backend, siteID string) (*models.Document, error) {
	doc, err := backend.GetDocument(ctx, siteID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("site %s: %w", siteID, ErrDocumentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	return doc, nil
}

func (e *Engine) emit(ev Event) {
	e.obsMu.RLock()
	defer e.obsMu.RUnlock()
	for _, o := range e.observers {
		o.Observe(ev)
	}
}
