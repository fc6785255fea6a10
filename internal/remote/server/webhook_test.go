package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kilupskalvis/sitedoc/internal/core"
	"github.com/kilupskalvis/sitedoc/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWebhookNotifier_NilConfig(t *testing.T) {
	wn := NewWebhookNotifier(nil, slog.Default())
	assert.Nil(t, wn)
}

func TestNewWebhookNotifier_EmptyURLs(t *testing.T) {
	wn := NewWebhookNotifier(&WebhookConfig{URLs: nil}, slog.Default())
	assert.Nil(t, wn)
}

func TestWebhookNotifier_NilReceiver(t *testing.T) {
	// Should not panic
	var wn *WebhookNotifier
	wn.Observe(core.Event{Type: core.EventWrite})
	wn.Notify(&remote.VersionEvent{})
	wn.Close()
}

func TestWebhookNotifier_ObserveWrite(t *testing.T) {
	var mu sync.Mutex
	var received []remote.VersionEvent

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event remote.VersionEvent
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		received = append(received, event)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	wn := NewWebhookNotifier(&WebhookConfig{URLs: []string{ts.URL}}, slog.Default())
	require.NotNil(t, wn)

	wn.Observe(core.Event{Op: core.OpPatch, Type: core.EventWrite, SiteID: "acme", Version: 7, CheckpointID: "cp-1", Timestamp: time.Now()})
	wn.Observe(core.Event{Op: core.OpPatch, Type: core.EventConflict, SiteID: "acme", Version: 7})
	wn.wg.Wait()
	wn.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "write", received[0].Event)
	assert.Equal(t, "acme", received[0].Site)
	assert.Equal(t, int64(7), received[0].Version)
	assert.Equal(t, "cp-1", received[0].CheckpointID)
	assert.NotEmpty(t, received[0].Timestamp)
}

func TestWebhookNotifier_MultipleURLs(t *testing.T) {
	var calls atomic.Int32

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	ts1 := httptest.NewServer(handler)
	defer ts1.Close()
	ts2 := httptest.NewServer(handler)
	defer ts2.Close()

	wn := NewWebhookNotifier(&WebhookConfig{URLs: []string{ts1.URL, ts2.URL}}, slog.Default())
	require.NotNil(t, wn)

	wn.Notify(&remote.VersionEvent{Event: "restore", Site: "acme", Version: 3})
	wn.wg.Wait()
	wn.Close()

	assert.Equal(t, int32(2), calls.Load())
}

func TestWebhookNotifier_Post_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	wn := NewWebhookNotifier(&WebhookConfig{
		URLs:           []string{ts.URL},
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, slog.Default())
	require.NotNil(t, wn)
	defer wn.Close()

	require.NoError(t, wn.post(ts.URL, []byte(`{}`)))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookNotifier_Post_4xxNoRetry(t *testing.T) {
	var calls atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	wn := NewWebhookNotifier(&WebhookConfig{URLs: []string{ts.URL}, MaxRetries: 3}, slog.Default())
	require.NotNil(t, wn)
	defer wn.Close()

	err := wn.post(ts.URL, []byte(`{}`))
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load()) // no retry for 4xx
}

func TestWebhookNotifier_Backoff(t *testing.T) {
	wn := NewWebhookNotifier(&WebhookConfig{
		URLs:           []string{"http://example.invalid"},
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
	}, slog.Default())
	require.NotNil(t, wn)
	defer wn.Close()

	for attempt := 0; attempt < 10; attempt++ {
		d := wn.backoff(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 1250*time.Millisecond)
	}
	first := wn.backoff(0)
	assert.GreaterOrEqual(t, first, 75*time.Millisecond)
	assert.LessOrEqual(t, first, 125*time.Millisecond)
}
