package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hearthd/hearthd/pkg/kernel/errs"
)

// SessionCookie is the cookie carrying the session credential.
const SessionCookie = "session_id"

// CreateUser stores a new user record and returns its id.
func (a *Authenticator) CreateUser(ctx context.Context, username string, scopes []string, isAdmin bool) (string, error) {
	if username == "" {
		return "", fmt.Errorf("%w: username must be non-empty", errs.ErrInvalidInput)
	}
	if existing, _ := a.findUserByName(ctx, username); existing != "" {
		return "", fmt.Errorf("%w: username %q taken", errs.ErrConflict, username)
	}

	userID := uuid.NewString()
	record := map[string]any{
		"username":   username,
		"scopes":     scopes,
		"is_admin":   isAdmin,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}
	if err := a.backend.Set(ctx, nsUsers, userID, record); err != nil {
		return "", err
	}
	a.audit(ctx, "user.created", username, true, map[string]any{"user_id": TruncateID(userID)})
	return userID, nil
}

// findUserByName scans the users namespace for a username. The user table of
// a home deployment is small; a scan is acceptable and keeps the storage
// model index-free.
func (a *Authenticator) findUserByName(ctx context.Context, username string) (string, map[string]any) {
	ids, err := a.backend.ListKeys(ctx, nsUsers)
	if err != nil {
		a.logger.Warn("user scan failed", "error", err)
		return "", nil
	}
	for _, id := range ids {
		user, ok, err := a.backend.Get(ctx, nsUsers, id)
		if err != nil || !ok {
			continue
		}
		if stringField(user["username"]) == username {
			return id, user
		}
	}
	return "", nil
}

// CreateSession issues a session for a user and returns the session id.
func (a *Authenticator) CreateSession(ctx context.Context, userID, clientIP, userAgent string) (string, error) {
	sessionID := uuid.NewString()
	now := time.Now().UTC()
	record := map[string]any{
		"user_id":    userID,
		"created_at": now.Format(time.RFC3339),
		"expires_at": now.Add(a.SessionTTL).Format(time.RFC3339),
		"last_used":  now.Format(time.RFC3339),
	}
	if clientIP != "" {
		record["client_ip"] = clientIP
	}
	if userAgent != "" {
		record["user_agent"] = userAgent
	}
	if err := a.backend.Set(ctx, nsSessions, sessionID, record); err != nil {
		return "", err
	}
	a.audit(ctx, "session.created", userID, true, map[string]any{"session": TruncateID(sessionID)})
	return sessionID, nil
}

// ValidateSession resolves a session id to a RequestContext, or nil when the
// session is unknown, revoked, expired, or orphaned.
func (a *Authenticator) ValidateSession(ctx context.Context, sessionID string) *RequestContext {
	if sessionID == "" {
		return nil
	}
	if a.IsRevoked(ctx, sessionID, CredentialSession) {
		a.audit(ctx, "session.validate", sessionID, false, map[string]any{"reason": "revoked"})
		return nil
	}

	session, ok, err := a.backend.Get(ctx, nsSessions, sessionID)
	if err != nil {
		a.logger.Warn("session lookup failed", "error", err)
		return nil
	}
	if !ok {
		a.audit(ctx, "session.validate", sessionID, false, map[string]any{"reason": "unknown"})
		return nil
	}

	if expiresAt := parseTime(session["expires_at"]); !expiresAt.IsZero() && time.Now().After(expiresAt) {
		_ = a.backend.Delete(ctx, nsSessions, sessionID)
		_ = a.Revoke(ctx, sessionID, CredentialSession)
		a.audit(ctx, "session.validate", sessionID, false, map[string]any{"reason": "expired"})
		return nil
	}

	userID := stringField(session["user_id"])
	user, ok, err := a.backend.Get(ctx, nsUsers, userID)
	if err != nil {
		a.logger.Warn("session user lookup failed", "error", err)
		return nil
	}
	if !ok {
		// Orphaned session: its user is gone.
		_ = a.backend.Delete(ctx, nsSessions, sessionID)
		a.audit(ctx, "session.validate", sessionID, false, map[string]any{"reason": "orphaned"})
		return nil
	}

	rc := &RequestContext{
		Subject:   stringField(user["username"]),
		Scopes:    NewScopeSet(stringSlice(user["scopes"])),
		IsAdmin:   boolField(user["is_admin"]),
		Source:    SourceSession,
		UserID:    userID,
		SessionID: sessionID,
	}

	a.touchLastUsed(ctx, nsSessions, sessionID)
	a.audit(ctx, "session.validate", rc.Subject, true, nil)
	return rc
}

// Login verifies a username/password pair and issues the credential triple:
// session id, access token, refresh token.
func (a *Authenticator) Login(ctx context.Context, username, password, clientIP, userAgent string) (sessionID, accessToken, refreshToken string, err error) {
	userID, user := a.findUserByName(ctx, username)
	if userID == "" {
		a.audit(ctx, "login", username, false, map[string]any{"reason": "unknown user"})
		return "", "", "", fmt.Errorf("%w: invalid credentials", errs.ErrUnauthenticated)
	}

	hash := stringField(user["password_hash"])
	if hash == "" || !VerifyPassword(password, hash) {
		a.audit(ctx, "login", username, false, map[string]any{"reason": "bad password"})
		return "", "", "", fmt.Errorf("%w: invalid credentials", errs.ErrUnauthenticated)
	}

	sessionID, err = a.CreateSession(ctx, userID, clientIP, userAgent)
	if err != nil {
		return "", "", "", err
	}
	accessToken, err = a.MintAccessToken(ctx, userID, stringSlice(user["scopes"]), boolField(user["is_admin"]))
	if err != nil {
		return "", "", "", err
	}
	refreshToken, err = a.CreateRefreshToken(ctx, userID, clientIP, userAgent)
	if err != nil {
		return "", "", "", err
	}

	a.audit(ctx, "login", username, true, nil)
	return sessionID, accessToken, refreshToken, nil
}

// Logout revokes a session.
func (a *Authenticator) Logout(ctx context.Context, sessionID string) error {
	return a.Revoke(ctx, sessionID, CredentialSession)
}
