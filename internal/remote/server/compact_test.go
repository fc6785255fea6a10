package server

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kilupskalvis/sitedoc/internal/auth"
	"github.com/kilupskalvis/sitedoc/internal/config"
	"github.com/kilupskalvis/sitedoc/internal/core"
	"github.com/kilupskalvis/sitedoc/internal/models"
	"github.com/kilupskalvis/sitedoc/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompact_AppliesLoweredRetention(t *testing.T) {
	ctx := context.Background()
	backend, err := store.NewBboltStore(filepath.Join(t.TempDir(), "sitedoc.db"))
	require.NoError(t, err)
	defer backend.Close()

	owners := auth.DocumentOwners{Backend: backend}
	wide := core.New(backend, owners, &core.Options{Retention: 50, Logger: discardLogger()})
	for _, site := range []string{"acme", "bakery"} {
		_, err := wide.CreateDocument(ctx, site, "alice", nil)
		require.NoError(t, err)
		for v := int64(1); v <= 5; v++ {
			_, err := wide.Patch(ctx, site, "alice", v, []models.Change{{Field: "n", Value: v}})
			require.NoError(t, err)
		}
	}

	narrow := core.New(backend, owners, &core.Options{Retention: 2, Logger: discardLogger()})
	result, err := Compact(ctx, narrow, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Sites)
	assert.Equal(t, 6, result.Pruned)
	assert.Equal(t, 0, result.Failed)

	n, err := backend.CountCheckpoints(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCompact_NoSites(t *testing.T) {
	backend, err := store.NewBboltStore(filepath.Join(t.TempDir(), "sitedoc.db"))
	require.NoError(t, err)
	defer backend.Close()

	engine := core.New(backend, auth.DocumentOwners{Backend: backend}, &core.Options{Logger: discardLogger()})
	result, err := Compact(context.Background(), engine, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, &CompactResult{}, result)
}

func TestServe_RequiresJWTSecret(t *testing.T) {
	cfg := config.Defaults()
	cfg.DataDir = t.TempDir()

	err := Serve(context.Background(), cfg, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestServe_StopsOnCancel(t *testing.T) {
	cfg := config.Defaults()
	cfg.DataDir = t.TempDir()
	cfg.Listen = "127.0.0.1:0"
	cfg.JWTSecret = string(testSecret)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, Serve(ctx, cfg, discardLogger()))
}
