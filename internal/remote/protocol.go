// Package remote defines the protocol types and client for sitedoc server communication.
package remote

import (
	"github.com/kilupskalvis/sitedoc/internal/models"
)

// PatchRequest is a batch of field changes against a base version.
type PatchRequest struct {
	Version int64           `json:"version"`
	Changes []models.Change `json:"changes"`
}

// WriteResponse is returned by successful patches and restores.
type WriteResponse struct {
	Success      bool   `json:"success"`
	Version      int64  `json:"version"`
	CheckpointID string `json:"checkpointId,omitempty"`
	BackupID     string `json:"backupId,omitempty"`
}

// HistoryResponse lists checkpoints newest first.
type HistoryResponse struct {
	History []*models.Checkpoint `json:"history"`
}

// SessionResponse wraps the caller's edit session.
type SessionResponse struct {
	Session *models.EditSession `json:"session"`
}

// DocumentResponse wraps the live document.
type DocumentResponse struct {
	Document *models.Document `json:"document"`
}

// CreateSiteRequest creates a site document. Admin only.
type CreateSiteRequest struct {
	Owner   string         `json:"owner"`
	Content map[string]any `json:"content"`
}

// PruneResponse reports an explicit compaction.
type PruneResponse struct {
	Pruned int `json:"pruned"`
}

// VersionEvent announces a new live version. It is the payload of both the
// watch feed and outgoing webhooks.
type VersionEvent struct {
	Event        string `json:"event"` // "write" or "restore"
	Site         string `json:"site"`
	Version      int64  `json:"version"`
	CheckpointID string `json:"checkpoint_id,omitempty"`
	Timestamp    string `json:"timestamp"`
}

// ErrorResponse is the structured error format returned by the server.
// Conflicts also carry the live version and document.
type ErrorResponse struct {
	Error          string           `json:"error"`
	Message        string           `json:"message"`
	CurrentVersion int64            `json:"currentVersion,omitempty"`
	ServerData     *models.Document `json:"serverData,omitempty"`
}

// Error codes used in ErrorResponse.
const (
	CodeBadRequest   = "bad_request"
	CodeInvalidPath  = "invalid_path"
	CodeInvalidValue = "invalid_value"
	CodeUnauthorized = "auth_failed"
	CodeForbidden    = "forbidden"
	CodeNotFound     = "not_found"
	CodeConflict     = "version_conflict"
	CodeExists       = "already_exists"
	CodeRateLimited  = "rate_limited"
	CodeInternal     = "internal_error"
)
