package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kilupskalvis/sitedoc/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callerEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(auth.CallerFrom(r.Context())))
	})
}

func TestIdentityMiddleware(t *testing.T) {
	h := identityMiddleware(testSecret)(callerEcho())

	tok, err := auth.IssueToken(testSecret, "alice", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
		caller string
	}{
		{"anonymous", "", http.StatusOK, ""},
		{"valid", "Bearer " + tok, http.StatusOK, "alice"},
		{"not bearer", "Basic abc", http.StatusUnauthorized, ""},
		{"garbage", "Bearer xyz", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.caller, rec.Body.String())
			}
		})
	}
}

func TestRateLimiter_KeysByIPForAnonymous(t *testing.T) {
	rl := newRateLimiter(0.001, 1)
	defer rl.Stop()
	h := rl.middleware(callerEcho())

	do := func(remoteAddr string) int {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = remoteAddr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:5678"))
	assert.Equal(t, http.StatusOK, do("10.0.0.2:1234"))
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	rl := newRateLimiter(1, 1)
	defer rl.Stop()

	rl.allow("alice")
	rl.allow("bob")
	require.Len(t, rl.limiters, 2)

	rl.evictIdle(time.Now().Add(rl.idle + time.Minute))
	assert.Empty(t, rl.limiters)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
