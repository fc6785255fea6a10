package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/kilupskalvis/sitedoc/internal/auth"
	"github.com/kilupskalvis/sitedoc/internal/core"
	"github.com/kilupskalvis/sitedoc/internal/fieldpath"
	"github.com/kilupskalvis/sitedoc/internal/models"
	"github.com/kilupskalvis/sitedoc/internal/patch"
	"github.com/kilupskalvis/sitedoc/internal/remote"
)

// Engine is the document engine the handlers drive.
type Engine interface {
	CreateDocument(ctx context.Context, siteID, owner string, content map[string]any) (*models.Document, error)
	Document(ctx context.Context, siteID, caller string) (*models.Document, error)
	Patch(ctx context.Context, siteID, caller string, baseVersion int64, changes []models.Change) (*models.WriteResult, error)
	History(ctx context.Context, siteID, caller string, limit, offset int) ([]*models.Checkpoint, error)
	Restore(ctx context.Context, siteID, caller, ref string) (*models.RestoreResult, error)
	Session(ctx context.Context, siteID, caller string) (*models.EditSession, error)
	Prune(ctx context.Context, siteID string) (int, error)
	Sites(ctx context.Context) ([]string, error)
	Subscribe(o core.Observer)
}

// ServerConfig holds configurable limits and collaborators for the server.
type ServerConfig struct {
	MaxRequestBody    int64   // bytes, for JSON endpoints
	RequestsPerSecond float64 // per-caller rate limit, 0 disables
	Burst             int
	JWTSecret         []byte
	AdminToken        string // for admin endpoints
	Webhooks          *WebhookNotifier
	Metrics           *Metrics
}

// DefaultServerConfig returns reasonable defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		MaxRequestBody:    4 * 1024 * 1024, // 4MB
		RequestsPerSecond: 10,
		Burst:             20,
	}
}

// Handler creates the HTTP handler with all routes and middleware and
// subscribes the configured observers to the engine.
// The returned cleanup function stops background goroutines and should be
// called on server shutdown.
func Handler(engine Engine, cfg *ServerConfig, logger *slog.Logger) (http.Handler, func()) {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	hub := NewHub(logger)
	engine.Subscribe(hub)
	if cfg.Webhooks != nil {
		engine.Subscribe(cfg.Webhooks)
	}
	if cfg.Metrics != nil {
		engine.Subscribe(cfg.Metrics)
		hub.watchers = cfg.Metrics.watchers
	}

	h := &handlers{engine: engine, cfg: cfg, hub: hub, logger: logger}
	rl := newRateLimiter(cfg.RequestsPerSecond, cfg.Burst)

	// applyMiddleware runs the first item outermost.
	// Execution order: identity -> rl -> handler
	api := func(fn http.HandlerFunc) http.Handler {
		return applyMiddleware(requireSite(fn), identityMiddleware(cfg.JWTSecret), rl.middleware)
	}

	mux := http.NewServeMux()

	// Health endpoints (no auth)
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := engine.Sites(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready: store unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics.Handler())
	}

	// Admin endpoints
	if cfg.AdminToken != "" {
		adminMux := http.NewServeMux()
		adminMux.HandleFunc("GET /admin/sites", h.adminListSites)
		adminMux.Handle("PUT /admin/sites/{site}", requireSite(h.adminCreateSite))
		adminMux.Handle("POST /admin/sites/{site}/prune", requireSite(h.adminPruneSite))
		adminMux.HandleFunc("POST /admin/prune", h.adminPruneAll)
		mux.Handle("/admin/", adminAuth(cfg.AdminToken, adminMux))
	}

	// Editor API
	mux.Handle("GET /api/v1/sites/{site}", api(h.getDocument))
	mux.Handle("PATCH /api/v1/sites/{site}", api(h.patchDocument))
	mux.Handle("GET /api/v1/sites/{site}/history", api(h.getHistory))
	mux.Handle("POST /api/v1/sites/{site}/restore/{checkpoint}", api(h.restoreCheckpoint))
	mux.Handle("GET /api/v1/sites/{site}/session", api(h.getSession))
	mux.Handle("GET /api/v1/sites/{site}/watch", api(h.watch))

	// Apply global middleware
	handler := applyMiddleware(mux,
		recoveryMiddleware(logger),
		loggingMiddleware(logger),
		requestIDMiddleware,
	)

	cleanup := func() {
		rl.Stop()
		hub.Close()
		if cfg.Webhooks != nil {
			cfg.Webhooks.Close()
		}
	}

	return handler, cleanup
}

// applyMiddleware applies middleware in reverse order so the first in the list runs first.
func applyMiddleware(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// requireSite rejects paths whose {site} is not a valid site ID.
func requireSite(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := models.ValidateSiteID(r.PathValue("site")); err != nil {
			writeError(w, http.StatusBadRequest, remote.CodeBadRequest, err.Error())
			return
		}
		next(w, r)
	})
}

type handlers struct {
	engine Engine
	cfg    *ServerConfig
	hub    *Hub
	logger *slog.Logger
}

// --- Editor Handlers ---

func (h *handlers) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.engine.Document(r.Context(), r.PathValue("site"), auth.CallerFrom(r.Context()))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &remote.DocumentResponse{Document: doc})
}

func (h *handlers) patchDocument(w http.ResponseWriter, r *http.Request) {
	var req remote.PatchRequest
	if err := readJSON(r, h.cfg.MaxRequestBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, remote.CodeBadRequest, err.Error())
		return
	}

	res, err := h.engine.Patch(r.Context(), r.PathValue("site"), auth.CallerFrom(r.Context()), req.Version, req.Changes)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &remote.WriteResponse{Success: true, Version: res.Version, CheckpointID: res.CheckpointID})
}

func (h *handlers) getHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, remote.CodeBadRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, http.StatusBadRequest, remote.CodeBadRequest, err.Error())
		return
	}

	history, err := h.engine.History(r.Context(), r.PathValue("site"), auth.CallerFrom(r.Context()), limit, offset)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &remote.HistoryResponse{History: history})
}

func (h *handlers) restoreCheckpoint(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Restore(r.Context(), r.PathValue("site"), auth.CallerFrom(r.Context()), r.PathValue("checkpoint"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &remote.WriteResponse{
		Success:      true,
		Version:      res.Version,
		CheckpointID: res.CheckpointID,
		BackupID:     res.BackupID,
	})
}

func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.engine.Session(r.Context(), r.PathValue("site"), auth.CallerFrom(r.Context()))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &remote.SessionResponse{Session: session})
}

func (h *handlers) watch(w http.ResponseWriter, r *http.Request) {
	site := r.PathValue("site")
	if _, err := h.engine.Session(r.Context(), site, ""); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	h.hub.ServeWatch(w, r, site, func() (int64, error) {
		session, err := h.engine.Session(r.Context(), site, "")
		if err != nil {
			return 0, err
		}
		return session.CurrentVersion, nil
	})
}

// --- Admin Handlers ---

func (h *handlers) adminListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := h.engine.Sites(r.Context())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	if sites == nil {
		sites = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sites": sites})
}

func (h *handlers) adminCreateSite(w http.ResponseWriter, r *http.Request) {
	var req remote.CreateSiteRequest
	if err := readJSON(r, h.cfg.MaxRequestBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, remote.CodeBadRequest, err.Error())
		return
	}
	if req.Owner == "" {
		writeError(w, http.StatusBadRequest, remote.CodeBadRequest, "owner is required")
		return
	}

	doc, err := h.engine.CreateDocument(r.Context(), r.PathValue("site"), req.Owner, req.Content)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, &remote.DocumentResponse{Document: doc})
}

func (h *handlers) adminPruneSite(w http.ResponseWriter, r *http.Request) {
	pruned, err := h.engine.Prune(r.Context(), r.PathValue("site"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &remote.PruneResponse{Pruned: pruned})
}

func (h *handlers) adminPruneAll(w http.ResponseWriter, r *http.Request) {
	result, err := Compact(r.Context(), h.engine, h.logger)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// writeEngineError maps engine errors to HTTP responses.
func (h *handlers) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *core.ConflictError
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, &remote.ErrorResponse{
			Error:          remote.CodeConflict,
			Message:        err.Error(),
			CurrentVersion: conflict.Current,
			ServerData:     conflict.ServerData,
		})
	case errors.Is(err, fieldpath.ErrInvalidPath):
		writeError(w, http.StatusBadRequest, remote.CodeInvalidPath, err.Error())
	case errors.Is(err, patch.ErrInvalidValue):
		writeError(w, http.StatusBadRequest, remote.CodeInvalidValue, err.Error())
	case errors.Is(err, core.ErrEmptyPatch):
		writeError(w, http.StatusBadRequest, remote.CodeBadRequest, err.Error())
	case errors.Is(err, core.ErrForbidden):
		writeError(w, http.StatusForbidden, remote.CodeForbidden, err.Error())
	case errors.Is(err, core.ErrCheckpointNotFound):
		writeError(w, http.StatusNotFound, remote.CodeNotFound, fmt.Sprintf("checkpoint %s not found", r.PathValue("checkpoint")))
	case errors.Is(err, core.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, remote.CodeNotFound, err.Error())
	case errors.Is(err, core.ErrDocumentExists):
		writeError(w, http.StatusConflict, remote.CodeExists, err.Error())
	default:
		h.logger.Error("request failed", "error", err, "path", r.URL.Path, "request_id", requestID(r.Context()))
		writeError(w, http.StatusInternalServerError, remote.CodeInternal, "internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, &remote.ErrorResponse{Error: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, maxSize int64, v interface{}) error {
	limited := io.LimitReader(r.Body, maxSize)
	if err := json.NewDecoder(limited).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}
