package cli

import (
	"context"

	"github.com/kilupskalvis/sitedoc/internal/core"
	"github.com/kilupskalvis/sitedoc/internal/models"
)

// localClient drives the workspace engine as a fixed caller, giving local
// commands the same surface as a server client.
type localClient struct {
	engine *core.Engine
	caller string
}

func (c *localClient) Document(ctx context.Context, site string) (*models.Document, error) {
	return c.engine.Document(ctx, site, c.caller)
}

func (c *localClient) Patch(ctx context.Context, site string, version int64, changes []models.Change) (*models.WriteResult, error) {
	return c.engine.Patch(ctx, site, c.caller, version, changes)
}

func (c *localClient) History(ctx context.Context, site string, limit, offset int) ([]*models.Checkpoint, error) {
	return c.engine.History(ctx, site, c.caller, limit, offset)
}

func (c *localClient) Restore(ctx context.Context, site, ref string) (*models.RestoreResult, error) {
	return c.engine.Restore(ctx, site, c.caller, ref)
}

func (c *localClient) Session(ctx context.Context, site string) (*models.EditSession, error) {
	return c.engine.Session(ctx, site, c.caller)
}
