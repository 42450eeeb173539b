package auth

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/google/uuid"
)

// dummyDigest equalizes timing between the present-key and absent-key paths
// of ValidateAPIKey.
var dummyDigest = sha256Hex("hearthd-timing-pad")

// CreateAPIKey issues a new opaque API key for a subject. expiresAt may be
// zero for a non-expiring key.
func (a *Authenticator) CreateAPIKey(ctx context.Context, subject string, scopes []string, isAdmin bool, userID string, expiresAt time.Time) (string, error) {
	key := uuid.NewString() + uuid.NewString()
	record := map[string]any{
		"subject":    subject,
		"scopes":     scopes,
		"is_admin":   isAdmin,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}
	if userID != "" {
		record["user_id"] = userID
	}
	if !expiresAt.IsZero() {
		record["expires_at"] = expiresAt.UTC().Format(time.RFC3339)
	}
	if err := a.backend.Set(ctx, nsAPIKeys, key, record); err != nil {
		return "", err
	}
	a.audit(ctx, "api_key.created", subject, true, map[string]any{"key": TruncateID(key)})
	return key, nil
}

// ValidateAPIKey resolves an opaque key to a RequestContext, or nil when the
// key is unknown, revoked, or expired.
func (a *Authenticator) ValidateAPIKey(ctx context.Context, key string) *RequestContext {
	if key == "" {
		return nil
	}
	if a.IsRevoked(ctx, key, CredentialAPIKey) {
		a.audit(ctx, "api_key.validate", key, false, map[string]any{"reason": "revoked"})
		return nil
	}

	record, ok, err := a.backend.Get(ctx, nsAPIKeys, key)
	if err != nil {
		a.logger.Warn("api key lookup failed", "error", err)
		return nil
	}
	if !ok {
		// Equalize timing with the found path before returning.
		subtle.ConstantTimeCompare([]byte(dummyDigest), []byte(sha256Hex(key)))
		a.audit(ctx, "api_key.validate", key, false, map[string]any{"reason": "unknown"})
		return nil
	}

	if expiresAt := parseTime(record["expires_at"]); !expiresAt.IsZero() && time.Now().After(expiresAt) {
		_ = a.backend.Delete(ctx, nsAPIKeys, key)
		_ = a.Revoke(ctx, key, CredentialAPIKey)
		a.audit(ctx, "api_key.validate", key, false, map[string]any{"reason": "expired"})
		return nil
	}

	subject := stringField(record["subject"])
	rc := &RequestContext{
		Subject: subject,
		Scopes:  NewScopeSet(stringSlice(record["scopes"])),
		IsAdmin: boolField(record["is_admin"]),
		Source:  SourceAPIKey,
		UserID:  stringField(record["user_id"]),
	}

	a.touchLastUsed(ctx, nsAPIKeys, key)
	a.audit(ctx, "api_key.validate", subject, true, nil)
	return rc
}

// touchLastUsed refreshes a credential's last_used field, throttled to once
// per minute per credential. The write happens off the request path.
func (a *Authenticator) touchLastUsed(ctx context.Context, namespace, credential string) {
	now := time.Now()
	if !a.shouldRefreshLastUsed(namespace+":"+credential, now) {
		return
	}
	go func() {
		// Detach from the request context so cancellation of the request
		// does not abort the bookkeeping write.
		bg := context.WithoutCancel(ctx)
		record, ok, err := a.backend.Get(bg, namespace, credential)
		if err != nil || !ok {
			return
		}
		record["last_used"] = now.UTC().Format(time.RFC3339)
		if err := a.backend.Set(bg, namespace, credential, record); err != nil {
			a.logger.Warn("failed to refresh last_used", "error", err)
		}
	}()
}
