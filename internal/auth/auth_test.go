package auth

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kilupskalvis/sitedoc/internal/models"
	"github.com/kilupskalvis/sitedoc/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestIssueAndParseToken(t *testing.T) {
	tok, err := IssueToken(testSecret, "alice", time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(testSecret, tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Caller())
	assert.Equal(t, Issuer, claims.Issuer)
}

func TestIssueToken_Validation(t *testing.T) {
	_, err := IssueToken([]byte("short"), "alice", time.Hour)
	assert.Error(t, err)

	_, err = IssueToken(testSecret, "", time.Hour)
	assert.Error(t, err)
}

func TestParseToken_Rejects(t *testing.T) {
	expired, err := IssueToken(testSecret, "alice", -time.Minute)
	require.NoError(t, err)

	otherSecret, err := IssueToken([]byte("ffffffffffffffffffffffffffffffff"), "alice", time.Hour)
	require.NoError(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: Issuer, Subject: "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(testSecret)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(testSecret)
	require.NoError(t, err)

	tests := map[string]string{
		"expired":      expired,
		"wrong secret": otherSecret,
		"wrong alg":    hs512,
		"no subject":   noSubject,
		"garbage":      "not.a.token",
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseToken(testSecret, tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestDocumentOwners(t *testing.T) {
	b, err := store.NewBboltStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, b.CreateDocument(ctx, &models.Document{
		SiteID: "acme", Owner: "alice", Version: 1, Content: map[string]any{},
	}))

	owners := DocumentOwners{Backend: b}

	ok, err := owners.IsOwner(ctx, "alice", "acme")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = owners.IsOwner(ctx, "bob", "acme")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = owners.IsOwner(ctx, "alice", "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = owners.IsOwner(ctx, "", "acme")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCallerContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", CallerFrom(ctx))
	assert.Equal(t, "alice", CallerFrom(WithCaller(ctx, "alice")))
}
