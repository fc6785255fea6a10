package core

import (
	"errors"
	"fmt"

	"github.com/kilupskalvis/sitedoc/internal/models"
)

// Sentinel errors for the terminal outcomes of engine operations.
var (
	ErrDocumentNotFound   = errors.New("document not found")
	ErrDocumentExists     = errors.New("document already exists")
	ErrForbidden          = errors.New("caller does not own this site")
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	ErrVersionConflict    = errors.New("version conflict")
	ErrEmptyPatch         = errors.New("patch contains no changes")
)

// ConflictError is returned when a write presents a stale base version.
// ServerData is a copy of the live document the caller should re-base onto.
type ConflictError struct {
	SiteID     string
	Expected   int64
	Current    int64
	ServerData *models.Document
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict on %s: expected version %d, current version is %d", e.SiteID, e.Expected, e.Current)
}

// Is makes errors.Is(err, ErrVersionConflict) work.
func (e *ConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}
