package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kilupskalvis/sitedoc/internal/core"
	"github.com/kilupskalvis/sitedoc/internal/remote"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	watchWriteTimeout = 10 * time.Second
	watchPongTimeout  = 60 * time.Second
	watchPingInterval = 50 * time.Second
	watchBuffer       = 16
)

// Hub fans version events out to websocket watchers of each site so open
// editors learn when their base version has gone stale.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger
	watchers prometheus.Gauge // optional

	mu     sync.Mutex
	subs   map[string]map[*watcher]struct{}
	closed bool
}

type watcher struct {
	send chan *remote.VersionEvent
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
		subs:   make(map[string]map[*watcher]struct{}),
	}
}

// Observe forwards write and restore events to the site's watchers. A
// watcher whose buffer is full misses the event; the next one carries the
// newer version anyway.
func (h *Hub) Observe(ev core.Event) {
	if ev.Type != core.EventWrite && ev.Type != core.EventRestore {
		return
	}
	msg := versionEvent(ev)

	h.mu.Lock()
	defer h.mu.Unlock()
	for w := range h.subs[ev.SiteID] {
		select {
		case w.send <- msg:
		default:
			h.logger.Debug("watch: dropped event for slow watcher", "site", ev.SiteID, "version", ev.Version)
		}
	}
}

func (h *Hub) subscribe(site string) *watcher {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	w := &watcher{send: make(chan *remote.VersionEvent, watchBuffer)}
	if h.subs[site] == nil {
		h.subs[site] = make(map[*watcher]struct{})
	}
	h.subs[site][w] = struct{}{}
	if h.watchers != nil {
		h.watchers.Inc()
	}
	return w
}

func (h *Hub) unsubscribe(site string, w *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[site][w]; !ok {
		return
	}
	delete(h.subs[site], w)
	if len(h.subs[site]) == 0 {
		delete(h.subs, site)
	}
	close(w.send)
	if h.watchers != nil {
		h.watchers.Dec()
	}
}

// Count returns the number of watchers for a site.
func (h *Hub) Count(site string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[site])
}

// Close disconnects every watcher.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for site, ws := range h.subs {
		for w := range ws {
			close(w.send)
			if h.watchers != nil {
				h.watchers.Dec()
			}
		}
		delete(h.subs, site)
	}
}

// ServeWatch upgrades the request and streams VersionEvents for site. The
// watcher is registered before current is read, so the opening "current"
// event is never older than a write the feed misses.
func (h *Hub) ServeWatch(w http.ResponseWriter, r *http.Request, site string, current func() (int64, error)) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.logger.Debug("watch: upgrade failed", "site", site, "error", err)
		return
	}
	defer conn.Close()

	sub := h.subscribe(site)
	if sub == nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(watchWriteTimeout))
		return
	}
	defer h.unsubscribe(site, sub)

	// Reader: handles pongs and notices when the client goes away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(watchPongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(watchPongTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	version, err := current()
	if err != nil {
		h.logger.Warn("watch: read current version", "site", site, "error", err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "version unavailable"),
			time.Now().Add(watchWriteTimeout))
		return
	}

	hello := &remote.VersionEvent{
		Event:     "current",
		Site:      site,
		Version:   version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err := h.write(conn, hello); err != nil {
		return
	}

	ping := time.NewTicker(watchPingInterval)
	defer ping.Stop()

	for {
		select {
		case msg, ok := <-sub.send:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(watchWriteTimeout))
				return
			}
			if msg.Version <= version {
				continue
			}
			if err := h.write(conn, msg); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(watchWriteTimeout)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, msg *remote.VersionEvent) error {
	conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
	return conn.WriteJSON(msg)
}
