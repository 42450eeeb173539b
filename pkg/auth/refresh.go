package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hearthd/hearthd/pkg/kernel/errs"
)

// CreateRefreshToken issues an opaque refresh token for a user.
func (a *Authenticator) CreateRefreshToken(ctx context.Context, userID, clientIP, userAgent string) (string, error) {
	token := uuid.NewString() + uuid.NewString()
	now := time.Now().UTC()
	record := map[string]any{
		"user_id":    userID,
		"created_at": now.Format(time.RFC3339),
		"expires_at": now.Add(a.RefreshTokenTTL).Format(time.RFC3339),
	}
	if clientIP != "" {
		record["client_ip"] = clientIP
	}
	if userAgent != "" {
		record["user_agent"] = userAgent
	}
	if err := a.backend.Set(ctx, nsRefreshTokens, token, record); err != nil {
		return "", err
	}
	a.audit(ctx, "refresh_token.created", userID, true, map[string]any{"token": TruncateID(token)})
	return token, nil
}

// Refresh exchanges a valid refresh token for a fresh access token and a
// rotated refresh token. Revocation is checked both before and after the
// storage reads so a token revoked mid-flight cannot win the race.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (accessToken, newRefreshToken string, err error) {
	if refreshToken == "" {
		return "", "", fmt.Errorf("%w: missing refresh token", errs.ErrUnauthenticated)
	}
	if a.IsRevoked(ctx, refreshToken, CredentialRefreshToken) {
		a.audit(ctx, "refresh", refreshToken, false, map[string]any{"reason": "revoked"})
		return "", "", fmt.Errorf("%w: refresh token revoked", errs.ErrUnauthenticated)
	}

	record, ok, err := a.backend.Get(ctx, nsRefreshTokens, refreshToken)
	if err != nil {
		return "", "", err
	}
	if !ok {
		a.audit(ctx, "refresh", refreshToken, false, map[string]any{"reason": "unknown"})
		return "", "", fmt.Errorf("%w: unknown refresh token", errs.ErrUnauthenticated)
	}

	if expiresAt := parseTime(record["expires_at"]); !expiresAt.IsZero() && time.Now().After(expiresAt) {
		_ = a.backend.Delete(ctx, nsRefreshTokens, refreshToken)
		a.audit(ctx, "refresh", refreshToken, false, map[string]any{"reason": "expired"})
		return "", "", fmt.Errorf("%w: refresh token expired", errs.ErrUnauthenticated)
	}

	userID := stringField(record["user_id"])
	user, ok, err := a.backend.Get(ctx, nsUsers, userID)
	if err != nil {
		return "", "", err
	}
	if !ok {
		_ = a.backend.Delete(ctx, nsRefreshTokens, refreshToken)
		a.audit(ctx, "refresh", refreshToken, false, map[string]any{"reason": "orphaned"})
		return "", "", fmt.Errorf("%w: refresh token user gone", errs.ErrUnauthenticated)
	}

	// Re-check after the reads: a concurrent logout may have revoked the
	// token while we were fetching records.
	if a.IsRevoked(ctx, refreshToken, CredentialRefreshToken) {
		a.audit(ctx, "refresh", refreshToken, false, map[string]any{"reason": "revoked"})
		return "", "", fmt.Errorf("%w: refresh token revoked", errs.ErrUnauthenticated)
	}

	accessToken, err = a.MintAccessToken(ctx, userID, stringSlice(user["scopes"]), boolField(user["is_admin"]))
	if err != nil {
		return "", "", err
	}

	// Rotate: the presented token is consumed and a replacement issued.
	newRefreshToken, err = a.CreateRefreshToken(ctx, userID, stringField(record["client_ip"]), stringField(record["user_agent"]))
	if err != nil {
		return "", "", err
	}
	if err := a.Revoke(ctx, refreshToken, CredentialRefreshToken); err != nil {
		a.logger.Warn("failed to revoke rotated refresh token", "error", err)
	}

	a.audit(ctx, "refresh", userID, true, nil)
	return accessToken, newRefreshToken, nil
}
