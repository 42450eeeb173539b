package auth

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthd/hearthd/pkg/kernel/errs"
	"github.com/hearthd/hearthd/pkg/storage"
	"github.com/hearthd/hearthd/pkg/storage/memadapter"
)

func newTestAuth(t *testing.T, opts ...Option) (*Authenticator, *storage.Store) {
	t.Helper()
	store := storage.NewStore(memadapter.New())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, logger, opts...), store
}

func TestValidatePasswordPolicy(t *testing.T) {
	cases := []struct {
		name     string
		password string
		ok       bool
	}{
		{"valid", "Sunrise42", true},
		{"too short", "Ab1", false},
		{"no uppercase", "sunrise42", false},
		{"no lowercase", "SUNRISE42", false},
		{"no digit", "SunriseDay", false},
		{"special chars allowed", "Sunrise42!@#", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePasswordPolicy(tc.password)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, errs.ErrInvalidInput)
			}
		})
	}
}

func TestHashPasswordSaltsDiffer(t *testing.T) {
	h1, err := HashPassword("Sunrise42")
	require.NoError(t, err)
	h2, err := HashPassword("Sunrise42")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
	assert.True(t, VerifyPassword("Sunrise42", h1))
	assert.True(t, VerifyPassword("Sunrise42", h2))
	assert.False(t, VerifyPassword("wrong", h1))
}

func TestChangePassword(t *testing.T) {
	a, _ := newTestAuth(t)
	ctx := context.Background()

	userID, err := a.CreateUser(ctx, "alice", []string{"devices.read"}, false)
	require.NoError(t, err)
	require.NoError(t, a.SetPassword(ctx, userID, "Original1"))

	sid, err := a.CreateSession(ctx, userID, "", "")
	require.NoError(t, err)
	require.NotNil(t, a.ValidateSession(ctx, sid))

	err = a.ChangePassword(ctx, userID, "wrong", "Replacement1")
	assert.ErrorIs(t, err, errs.ErrUnauthenticated)

	err = a.ChangePassword(ctx, userID, "Original1", "Original1")
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	require.NoError(t, a.ChangePassword(ctx, userID, "Original1", "Replacement1"))

	// Password change invalidates every session of the user.
	assert.Nil(t, a.ValidateSession(ctx, sid))
}

func TestAPIKeyLifecycle(t *testing.T) {
	a, _ := newTestAuth(t)
	ctx := context.Background()

	key, err := a.CreateAPIKey(ctx, "sensor-bridge", []string{"devices.read", "devices.write"}, false, "", time.Time{})
	require.NoError(t, err)

	rc := a.ValidateAPIKey(ctx, key)
	require.NotNil(t, rc)
	assert.Equal(t, "sensor-bridge", rc.Subject)
	assert.Equal(t, SourceAPIKey, rc.Source)
	assert.True(t, rc.Scopes.Has("devices.write"))
	assert.False(t, rc.IsAdmin)

	assert.Nil(t, a.ValidateAPIKey(ctx, "not-a-real-key"))

	require.NoError(t, a.Revoke(ctx, key, CredentialAPIKey))
	assert.Nil(t, a.ValidateAPIKey(ctx, key))
}

func TestAPIKeyExpiry(t *testing.T) {
	a, store := newTestAuth(t)
	ctx := context.Background()

	key, err := a.CreateAPIKey(ctx, "stale", nil, false, "", time.Now().Add(-time.Hour))
	require.NoError(t, err)

	assert.Nil(t, a.ValidateAPIKey(ctx, key))

	// Expiry deletes the live record and writes a revocation.
	_, ok, err := store.Get(ctx, nsAPIKeys, key)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, a.IsRevoked(ctx, key, CredentialAPIKey))
}

func TestLooksLikeJWT(t *testing.T) {
	assert.True(t, LooksLikeJWT("eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ4In0.c2ln"))
	assert.False(t, LooksLikeJWT("plain_opaque_key"))
	assert.False(t, LooksLikeJWT("a.b"))
	assert.False(t, LooksLikeJWT("a..c"))
	assert.False(t, LooksLikeJWT("has space.b2.c3"))
}

func TestJWTRoundTrip(t *testing.T) {
	a, _ := newTestAuth(t)
	ctx := context.Background()

	token, err := a.MintAccessToken(ctx, "user-1", []string{"devices.read"}, true)
	require.NoError(t, err)
	require.True(t, LooksLikeJWT(token))

	rc := a.ValidateJWT(ctx, token)
	require.NotNil(t, rc)
	assert.Equal(t, "user-1", rc.UserID)
	assert.Equal(t, SourceJWT, rc.Source)
	assert.True(t, rc.IsAdmin)
	assert.True(t, rc.Scopes.Has("devices.read"))

	// Tampering invalidates the signature; failures are silent.
	assert.Nil(t, a.ValidateJWT(ctx, token[:len(token)-2]+"xx"))
	assert.Nil(t, a.ValidateJWT(ctx, "eyJhbGciOiJIUzI1NiJ9.e30.c2ln"))
}

func TestJWTExpired(t *testing.T) {
	a, _ := newTestAuth(t, WithAccessTokenTTL(-time.Minute))
	ctx := context.Background()

	token, err := a.MintAccessToken(ctx, "user-1", nil, false)
	require.NoError(t, err)
	assert.Nil(t, a.ValidateJWT(ctx, token))
}

func TestJWTSecretStableAcrossInstances(t *testing.T) {
	store := storage.NewStore(memadapter.New())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	a1 := New(store, logger)
	token, err := a1.MintAccessToken(ctx, "user-1", nil, false)
	require.NoError(t, err)

	// A second authenticator over the same storage loads the persisted
	// secret and accepts the token.
	a2 := New(store, logger)
	assert.NotNil(t, a2.ValidateJWT(ctx, token))
}

func TestSessionLifecycle(t *testing.T) {
	a, store := newTestAuth(t)
	ctx := context.Background()

	userID, err := a.CreateUser(ctx, "bob", []string{"scenes.execute"}, false)
	require.NoError(t, err)

	sid, err := a.CreateSession(ctx, userID, "10.0.0.5", "test-agent")
	require.NoError(t, err)

	rc := a.ValidateSession(ctx, sid)
	require.NotNil(t, rc)
	assert.Equal(t, "bob", rc.Subject)
	assert.Equal(t, SourceSession, rc.Source)
	assert.Equal(t, userID, rc.UserID)
	assert.Equal(t, sid, rc.SessionID)

	// Orphaned session: deleting the user invalidates and removes it.
	require.NoError(t, store.Delete(ctx, nsUsers, userID))
	assert.Nil(t, a.ValidateSession(ctx, sid))
	_, ok, err := store.Get(ctx, nsSessions, sid)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionExpired(t *testing.T) {
	a, _ := newTestAuth(t, WithSessionTTL(-time.Minute))
	ctx := context.Background()

	userID, err := a.CreateUser(ctx, "carol", nil, false)
	require.NoError(t, err)
	sid, err := a.CreateSession(ctx, userID, "", "")
	require.NoError(t, err)

	assert.Nil(t, a.ValidateSession(ctx, sid))
}

func TestLoginAndLogout(t *testing.T) {
	a, _ := newTestAuth(t)
	ctx := context.Background()

	userID, err := a.CreateUser(ctx, "dana", []string{"devices.read"}, false)
	require.NoError(t, err)
	require.NoError(t, a.SetPassword(ctx, userID, "Sunrise42"))

	_, _, _, err = a.Login(ctx, "dana", "wrong-password", "", "")
	assert.ErrorIs(t, err, errs.ErrUnauthenticated)

	_, _, _, err = a.Login(ctx, "nobody", "Sunrise42", "", "")
	assert.ErrorIs(t, err, errs.ErrUnauthenticated)

	sid, access, refresh, err := a.Login(ctx, "dana", "Sunrise42", "10.0.0.9", "test-agent")
	require.NoError(t, err)
	assert.NotNil(t, a.ValidateSession(ctx, sid))
	assert.NotNil(t, a.ValidateJWT(ctx, access))
	assert.NotEmpty(t, refresh)

	require.NoError(t, a.Logout(ctx, sid))
	assert.Nil(t, a.ValidateSession(ctx, sid))
}

func TestRefreshRotation(t *testing.T) {
	a, _ := newTestAuth(t)
	ctx := context.Background()

	userID, err := a.CreateUser(ctx, "erin", []string{"devices.read"}, false)
	require.NoError(t, err)
	token, err := a.CreateRefreshToken(ctx, userID, "", "")
	require.NoError(t, err)

	access, rotated, err := a.Refresh(ctx, token)
	require.NoError(t, err)
	assert.NotNil(t, a.ValidateJWT(ctx, access))
	assert.NotEqual(t, token, rotated)

	// The consumed token is revoked; only the rotated one refreshes.
	_, _, err = a.Refresh(ctx, token)
	assert.ErrorIs(t, err, errs.ErrUnauthenticated)
	_, _, err = a.Refresh(ctx, rotated)
	assert.NoError(t, err)
}

func TestRefreshExpired(t *testing.T) {
	a, _ := newTestAuth(t, WithRefreshTokenTTL(-time.Minute))
	ctx := context.Background()

	userID, err := a.CreateUser(ctx, "fred", nil, false)
	require.NoError(t, err)
	token, err := a.CreateRefreshToken(ctx, userID, "", "")
	require.NoError(t, err)

	_, _, err = a.Refresh(ctx, token)
	assert.ErrorIs(t, err, errs.ErrUnauthenticated)
}

func TestRateLimitWindow(t *testing.T) {
	a, _ := newTestAuth(t, WithRateLimits(RateLimitConfig{
		Enabled:   true,
		AuthLimit: 3,
		APILimit:  100,
		Window:    time.Minute,
	}))
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		result := a.checkRateLimitAt(ctx, LimitAuth, "10.0.0.1", now)
		assert.True(t, result.Allowed, "attempt %d", i)
	}

	denied := a.checkRateLimitAt(ctx, LimitAuth, "10.0.0.1", now.Add(time.Second))
	assert.False(t, denied.Allowed)
	assert.Equal(t, 3, denied.Limit)
	assert.Equal(t, 0, denied.Remaining)
	assert.Greater(t, denied.RetryAfter, time.Duration(0))

	// A different identifier has its own bucket.
	assert.True(t, a.checkRateLimitAt(ctx, LimitAuth, "10.0.0.2", now).Allowed)

	// Window expiry resets the counter.
	assert.True(t, a.checkRateLimitAt(ctx, LimitAuth, "10.0.0.1", now.Add(2*time.Minute)).Allowed)
}

func TestRateLimitDisabled(t *testing.T) {
	a, _ := newTestAuth(t, WithRateLimits(RateLimitConfig{Enabled: false, AuthLimit: 1, APILimit: 1, Window: time.Minute}))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.True(t, a.CheckRateLimit(ctx, LimitAuth, "10.0.0.1").Allowed)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := New(brokenBackend{}, logger, WithRateLimits(RateLimitConfig{
		Enabled:   true,
		AuthLimit: 1,
		APILimit:  1,
		Window:    time.Minute,
	}))

	result := a.CheckRateLimit(context.Background(), LimitAuth, "10.0.0.1")
	assert.True(t, result.Allowed)
}

func TestRevocationTypeMatters(t *testing.T) {
	a, _ := newTestAuth(t)
	ctx := context.Background()

	require.NoError(t, a.Revoke(ctx, "cred-1", CredentialAPIKey))
	assert.True(t, a.IsRevoked(ctx, "cred-1", CredentialAPIKey))
	assert.False(t, a.IsRevoked(ctx, "cred-1", CredentialSession))
}

func TestAuditWritesRecord(t *testing.T) {
	a, store := newTestAuth(t)
	ctx := context.Background()

	key, err := a.CreateAPIKey(ctx, "audited-subject", nil, false, "", time.Time{})
	require.NoError(t, err)
	require.NotNil(t, a.ValidateAPIKey(ctx, key))

	keys, err := store.ListKeys(ctx, nsAuditLog)
	require.NoError(t, err)
	require.NotEmpty(t, keys)

	record, ok, err := store.Get(ctx, nsAuditLog, keys[0])
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, record["subject"], key, "raw credential must not reach the audit log")
}

func TestCreateUserDuplicate(t *testing.T) {
	a, _ := newTestAuth(t)
	ctx := context.Background()

	_, err := a.CreateUser(ctx, "gail", nil, false)
	require.NoError(t, err)
	_, err = a.CreateUser(ctx, "gail", nil, false)
	assert.ErrorIs(t, err, errs.ErrConflict)

	_, err = a.CreateUser(ctx, "", nil, false)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

// brokenBackend fails every operation, for fail-open coverage.
type brokenBackend struct{}

func (brokenBackend) Get(context.Context, string, string) (map[string]any, bool, error) {
	return nil, false, assert.AnError
}
func (brokenBackend) Set(context.Context, string, string, map[string]any) error { return assert.AnError }
func (brokenBackend) Delete(context.Context, string, string) error              { return assert.AnError }
func (brokenBackend) ListKeys(context.Context, string) ([]string, error)        { return nil, assert.AnError }
