package remote

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/kilupskalvis/sitedoc/internal/models"
)

// RetryConfig configures retry behavior for transient errors.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterFraction float64 // 0.0 to 1.0
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		JitterFraction: 0.25,
	}
}

// RetryClient wraps a SiteClient with automatic retry on transient errors.
// Writes are never retried.
type RetryClient struct {
	inner  SiteClient
	config *RetryConfig
}

// NewRetryClient creates a RetryClient that wraps the given SiteClient.
func NewRetryClient(inner SiteClient, cfg *RetryConfig) *RetryClient {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	return &RetryClient{inner: inner, config: cfg}
}

// isTransient returns true for errors that are worth retrying.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrVersionConflict) {
		return false
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Status >= 500 || re.Status == http.StatusTooManyRequests
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true // network errors are transient
}

// backoff computes the delay for the given attempt with jitter.
func (rc *RetryClient) backoff(attempt int) time.Duration {
	base := float64(rc.config.InitialBackoff) * math.Pow(2, float64(attempt))
	if base > float64(rc.config.MaxBackoff) {
		base = float64(rc.config.MaxBackoff)
	}
	jitter := base * rc.config.JitterFraction * (rand.Float64()*2 - 1) // +/- jitter
	d := time.Duration(base + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

// sleep waits for the given duration or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retry executes fn with retry logic. Only retries transient errors.
func (rc *RetryClient) retry(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= rc.config.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return lastErr
		}
		if attempt < rc.config.MaxRetries {
			d := rc.backoff(attempt)
			if err := sleep(ctx, d); err != nil {
				return fmt.Errorf("%s: %w (retry cancelled)", operation, lastErr)
			}
		}
	}
	return fmt.Errorf("%s: %w (after %d retries)", operation, lastErr, rc.config.MaxRetries)
}

// --- Delegate all SiteClient methods through retry logic ---

func (rc *RetryClient) Document(ctx context.Context, site string) (doc *models.Document, err error) {
	err = rc.retry(ctx, "get document", func() error {
		doc, err = rc.inner.Document(ctx, site)
		return err
	})
	return
}

func (rc *RetryClient) Patch(ctx context.Context, site string, version int64, changes []models.Change) (*models.WriteResult, error) {
	// Versioned writes are NOT retried: a lost response would turn a success into a conflict.
	return rc.inner.Patch(ctx, site, version, changes)
}

func (rc *RetryClient) History(ctx context.Context, site string, limit, offset int) (history []*models.Checkpoint, err error) {
	err = rc.retry(ctx, "get history", func() error {
		history, err = rc.inner.History(ctx, site, limit, offset)
		return err
	})
	return
}

func (rc *RetryClient) Restore(ctx context.Context, site, ref string) (*models.RestoreResult, error) {
	// Restore always advances the version, so a retry could apply it twice.
	return rc.inner.Restore(ctx, site, ref)
}

func (rc *RetryClient) Session(ctx context.Context, site string) (s *models.EditSession, err error) {
	err = rc.retry(ctx, "get session", func() error {
		s, err = rc.inner.Session(ctx, site)
		return err
	})
	return
}
