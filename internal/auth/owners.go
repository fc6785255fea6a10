package auth

import (
	"context"
	"errors"

	"github.com/kilupskalvis/sitedoc/internal/store"
)

// DocumentOwners resolves ownership from the owner recorded on each site's
// document. A site without a document has no owner.
type DocumentOwners struct {
	Backend store.Backend
}

// IsOwner reports whether caller is the recorded owner of siteID.
func (o DocumentOwners) IsOwner(ctx context.Context, caller, siteID string) (bool, error) {
	doc, err := o.Backend.GetDocument(ctx, siteID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return caller != "" && doc.Owner == caller, nil
}
