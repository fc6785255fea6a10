package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kilupskalvis/sitedoc/internal/core"
	"github.com/kilupskalvis/sitedoc/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHub_FansOutPerSite(t *testing.T) {
	hub := NewHub(discardLogger())

	a := hub.subscribe("acme")
	b := hub.subscribe("bakery")
	require.NotNil(t, a)
	require.NotNil(t, b)

	hub.Observe(core.Event{Type: core.EventWrite, SiteID: "acme", Version: 2})
	hub.Observe(core.Event{Type: core.EventConflict, SiteID: "acme", Version: 2})

	require.Len(t, a.send, 1)
	ev := <-a.send
	assert.Equal(t, "write", ev.Event)
	assert.Equal(t, int64(2), ev.Version)
	assert.Empty(t, b.send)
}

func TestHub_DropsWhenBufferFull(t *testing.T) {
	hub := NewHub(discardLogger())
	w := hub.subscribe("acme")

	for i := 0; i < watchBuffer+5; i++ {
		hub.Observe(core.Event{Type: core.EventWrite, SiteID: "acme", Version: int64(i)})
	}
	assert.Len(t, w.send, watchBuffer)
}

func TestHub_UnsubscribeAndClose(t *testing.T) {
	hub := NewHub(discardLogger())

	w := hub.subscribe("acme")
	assert.Equal(t, 1, hub.Count("acme"))
	hub.unsubscribe("acme", w)
	assert.Equal(t, 0, hub.Count("acme"))

	// Double unsubscribe is a no-op.
	hub.unsubscribe("acme", w)

	w2 := hub.subscribe("acme")
	hub.Close()
	_, ok := <-w2.send
	assert.False(t, ok)
	assert.Nil(t, hub.subscribe("acme"))
}

// dialHub serves hub.ServeWatch for site "acme" with the given version reader.
func dialHub(t *testing.T, hub *Hub, current func() (int64, error)) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWatch(w, r, "acme", current)
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestHub_ServeWatch_WriteDuringHelloIsDelivered(t *testing.T) {
	hub := NewHub(discardLogger())

	// The version is read at 1, then a write lands before the hello goes out.
	conn := dialHub(t, hub, func() (int64, error) {
		hub.Observe(core.Event{Type: core.EventWrite, SiteID: "acme", Version: 2, CheckpointID: "cp-1"})
		return 1, nil
	})

	var hello remote.VersionEvent
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "current", hello.Event)
	assert.Equal(t, int64(1), hello.Version)

	var ev remote.VersionEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "write", ev.Event)
	assert.Equal(t, int64(2), ev.Version)
}

func TestHub_ServeWatch_SkipsEventsCoveredByHello(t *testing.T) {
	hub := NewHub(discardLogger())

	// The write lands before the version is read, so the hello already carries it.
	conn := dialHub(t, hub, func() (int64, error) {
		hub.Observe(core.Event{Type: core.EventWrite, SiteID: "acme", Version: 2})
		return 2, nil
	})

	var hello remote.VersionEvent
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, int64(2), hello.Version)

	hub.Observe(core.Event{Type: core.EventRestore, SiteID: "acme", Version: 3})

	var ev remote.VersionEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "restore", ev.Event)
	assert.Equal(t, int64(3), ev.Version)
}

func TestHub_ServeWatch_VersionErrorClosesFeed(t *testing.T) {
	hub := NewHub(discardLogger())
	conn := dialHub(t, hub, func() (int64, error) {
		return 0, core.ErrDocumentNotFound
	})

	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseInternalServerErr))
	assert.Eventually(t, func() bool { return hub.Count("acme") == 0 }, time.Second, 10*time.Millisecond)
}
