package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/kilupskalvis/sitedoc/internal/core"
	"github.com/kilupskalvis/sitedoc/internal/remote"
)

// WebhookConfig holds the webhook URLs and delivery policy.
type WebhookConfig struct {
	URLs           []string
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

// WebhookNotifier posts version events to configured URLs. It observes the
// engine and delivers asynchronously.
type WebhookNotifier struct {
	config *WebhookConfig
	client *http.Client
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewWebhookNotifier creates a webhook notifier. Returns nil if no URLs are configured.
func NewWebhookNotifier(cfg *WebhookConfig, logger *slog.Logger) *WebhookNotifier {
	if cfg == nil || len(cfg.URLs) == 0 {
		return nil
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &WebhookNotifier{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Observe sends write and restore events. Other outcomes are ignored.
func (wn *WebhookNotifier) Observe(ev core.Event) {
	if wn == nil {
		return
	}
	if ev.Type != core.EventWrite && ev.Type != core.EventRestore {
		return
	}
	wn.Notify(versionEvent(ev))
}

// Notify delivers event to every URL without blocking the caller.
func (wn *WebhookNotifier) Notify(event *remote.VersionEvent) {
	if wn == nil {
		return
	}
	wn.mu.Lock()
	if wn.closed {
		wn.mu.Unlock()
		return
	}
	wn.wg.Add(1)
	wn.mu.Unlock()

	go func() {
		defer wn.wg.Done()
		wn.send(event)
	}()
}

// Close cancels pending retries and waits for in-flight deliveries.
func (wn *WebhookNotifier) Close() {
	if wn == nil {
		return
	}
	wn.mu.Lock()
	wn.closed = true
	wn.mu.Unlock()
	wn.cancel()
	wn.wg.Wait()
}

// send delivers the webhook event to all configured URLs.
func (wn *WebhookNotifier) send(event *remote.VersionEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		wn.logger.Error("webhook: marshal event", "error", err)
		return
	}

	for _, url := range wn.config.URLs {
		if err := wn.post(url, data); err != nil {
			wn.logger.Warn("webhook: delivery failed", "url", url, "site", event.Site, "error", err)
		} else {
			wn.logger.Debug("webhook: delivered", "url", url, "event", event.Event, "site", event.Site)
		}
	}
}

// post sends a single webhook POST, retrying network errors and 5xx with
// exponential backoff.
func (wn *WebhookNotifier) post(url string, data []byte) error {
	var lastErr error
	for attempt := 0; attempt <= wn.config.MaxRetries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(wn.backoff(attempt - 1))
			select {
			case <-t.C:
			case <-wn.ctx.Done():
				t.Stop()
				return fmt.Errorf("%w (cancelled)", lastErr)
			}
		}

		req, err := http.NewRequestWithContext(wn.ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "sitedoc-server/1.0")

		resp, err := wn.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
		if resp.StatusCode < 500 {
			return lastErr // don't retry 4xx
		}
	}

	return lastErr
}

// backoff doubles from InitialBackoff up to MaxBackoff with +/-25% jitter.
func (wn *WebhookNotifier) backoff(attempt int) time.Duration {
	base := float64(wn.config.InitialBackoff) * math.Pow(2, float64(attempt))
	if base > float64(wn.config.MaxBackoff) {
		base = float64(wn.config.MaxBackoff)
	}
	d := time.Duration(base + base*0.25*(rand.Float64()*2-1))
	if d < 0 {
		d = 0
	}
	return d
}

func versionEvent(ev core.Event) *remote.VersionEvent {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return &remote.VersionEvent{
		Event:        string(ev.Type),
		Site:         ev.SiteID,
		Version:      ev.Version,
		CheckpointID: ev.CheckpointID,
		Timestamp:    ts.UTC().Format(time.RFC3339),
	}
}
