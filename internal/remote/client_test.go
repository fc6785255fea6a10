package remote_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/kilupskalvis/sitedoc/internal/auth"
	"github.com/kilupskalvis/sitedoc/internal/core"
	"github.com/kilupskalvis/sitedoc/internal/models"
	"github.com/kilupskalvis/sitedoc/internal/remote"
	"github.com/kilupskalvis/sitedoc/internal/remote/server"
	"github.com/kilupskalvis/sitedoc/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("client-test-secret-1234")

const adminToken = "admin-secret"

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	backend, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "sitedoc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := core.New(backend, auth.DocumentOwners{Backend: backend}, &core.Options{Logger: logger})

	cfg := server.DefaultServerConfig()
	cfg.RequestsPerSecond = 0
	cfg.JWTSecret = secret
	cfg.AdminToken = adminToken

	h, cleanup := server.Handler(engine, cfg, logger)
	ts := httptest.NewServer(h)
	t.Cleanup(func() {
		ts.Close()
		cleanup()
	})
	return ts
}

func clientFor(t *testing.T, ts *httptest.Server, caller string) *remote.HTTPClient {
	t.Helper()
	tok, err := auth.IssueToken(secret, caller, time.Hour)
	require.NoError(t, err)
	return remote.NewHTTPClient(ts.URL, tok)
}

func TestHTTPClient_RoundTrip(t *testing.T) {
	ts := newServer(t)
	ctx := context.Background()

	admin := remote.NewAdminClient(ts.URL, adminToken)
	doc, err := admin.CreateSite(ctx, "acme", "alice", map[string]any{"title": "Hello"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.Version)

	sites, err := admin.ListSites(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme"}, sites)

	c := clientFor(t, ts, "alice")

	s, err := c.Session(ctx, "acme")
	require.NoError(t, err)
	assert.True(t, s.CanEdit)
	assert.Equal(t, int64(1), s.CurrentVersion)

	res, err := c.Patch(ctx, "acme", 1, []models.Change{{Field: "title", Value: "World"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Version)

	got, err := c.Document(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "World", got.Content["title"])

	history, err := c.History(ctx, "acme", 5, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, res.CheckpointID, history[0].ID)

	restored, err := c.Restore(ctx, "acme", history[0].SeqString())
	require.NoError(t, err)
	assert.Equal(t, int64(3), restored.Version)
	assert.NotEmpty(t, restored.BackupID)

	got, err = c.Document(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "Hello", got.Content["title"])

	pruned, err := admin.PruneSite(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 0, pruned)

	all, err := admin.PruneAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, all.Sites)
}

func TestHTTPClient_Conflict(t *testing.T) {
	ts := newServer(t)
	ctx := context.Background()

	_, err := remote.NewAdminClient(ts.URL, adminToken).CreateSite(ctx, "acme", "alice", nil)
	require.NoError(t, err)

	c := clientFor(t, ts, "alice")
	_, err = c.Patch(ctx, "acme", 1, []models.Change{{Field: "a", Value: 1}})
	require.NoError(t, err)

	_, err = c.Patch(ctx, "acme", 1, []models.Change{{Field: "a", Value: 2}})
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrVersionConflict)

	var conflict *remote.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, int64(2), conflict.CurrentVersion)
	require.NotNil(t, conflict.ServerData)
	assert.Equal(t, float64(1), conflict.ServerData.Content["a"])
}

func TestHTTPClient_Forbidden(t *testing.T) {
	ts := newServer(t)
	ctx := context.Background()

	_, err := remote.NewAdminClient(ts.URL, adminToken).CreateSite(ctx, "acme", "alice", nil)
	require.NoError(t, err)

	_, err = clientFor(t, ts, "mallory").Patch(ctx, "acme", 1, []models.Change{{Field: "a", Value: 1}})
	var re *remote.RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusForbidden, re.Status)
	assert.Equal(t, remote.CodeForbidden, re.Code)

	// Anonymous sessions are allowed but read-only.
	s, err := remote.NewHTTPClient(ts.URL, "").Session(ctx, "acme")
	require.NoError(t, err)
	assert.False(t, s.CanEdit)
}

func TestHTTPClient_Watch(t *testing.T) {
	ts := newServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := remote.NewAdminClient(ts.URL, adminToken).CreateSite(ctx, "acme", "alice", nil)
	require.NoError(t, err)
	c := clientFor(t, ts, "alice")

	var events []*remote.VersionEvent
	done := errors.New("done")
	err = c.Watch(ctx, "acme", func(ev *remote.VersionEvent) error {
		events = append(events, ev)
		if ev.Event == "current" {
			_, err := c.Patch(ctx, "acme", ev.Version, []models.Change{{Field: "a", Value: 1}})
			return err
		}
		return done
	})
	require.ErrorIs(t, err, done)
	require.Len(t, events, 2)
	assert.Equal(t, int64(1), events[0].Version)
	assert.Equal(t, "write", events[1].Event)
	assert.Equal(t, int64(2), events[1].Version)
}

func TestHTTPClient_WatchUnknownSite(t *testing.T) {
	ts := newServer(t)

	err := clientFor(t, ts, "alice").Watch(context.Background(), "nowhere", func(*remote.VersionEvent) error { return nil })
	var re *remote.RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusNotFound, re.Status)
}
