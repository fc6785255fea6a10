package core

import (
	"context"
	"fmt"

	"github.com/kilupskalvis/sitedoc/internal/models"
)

// Session reports the current version of a site and whether caller may edit
// it. Any caller may ask; a caller that does not own the site gets
// CanEdit=false rather than an error.
func (e *Engine) Session(ctx context.Context, siteID, caller string) (*models.EditSession, error) {
	doc, err := e.read(ctx, siteID)
	if err != nil {
		return nil, err
	}

	canEdit := false
	if caller != "" {
		canEdit, err = e.owners.IsOwner(ctx, caller, siteID)
		if err != nil {
			return nil, fmt.Errorf("resolve ownership: %w", err)
		}
	}

	return &models.EditSession{
		SiteID:         siteID,
		CurrentVersion: doc.Version,
		CanEdit:        canEdit,
	}, nil
}
