package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const jwtSecretKey = "jwt_secret_key"

// LooksLikeJWT reports whether a bearer token has the three dot-separated
// base64url segments of a JWT. Anything else is treated as an opaque API
// key.
func LooksLikeJWT(token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
		if _, err := base64.RawURLEncoding.DecodeString(p); err != nil {
			return false
		}
	}
	return true
}

// jwtSecretValue loads the HMAC secret from auth_config, generating and
// persisting one on first need. The in-memory cache plus singleflight keep
// concurrent first uses from racing to different secrets.
func (a *Authenticator) jwtSecretValue(ctx context.Context) ([]byte, error) {
	a.secretMu.RLock()
	secret := a.jwtSecret
	a.secretMu.RUnlock()
	if secret != nil {
		return secret, nil
	}

	v, err, _ := a.secretGroup.Do(jwtSecretKey, func() (any, error) {
		record, ok, err := a.backend.Get(ctx, nsConfig, jwtSecretKey)
		if err != nil {
			return nil, err
		}
		if ok {
			if s := stringField(record["value"]); s != "" {
				return []byte(s), nil
			}
		}

		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		encoded := base64.RawURLEncoding.EncodeToString(raw)
		if err := a.backend.Set(ctx, nsConfig, jwtSecretKey, map[string]any{"value": encoded}); err != nil {
			return nil, err
		}
		a.logger.Info("generated new jwt signing secret")
		return []byte(encoded), nil
	})
	if err != nil {
		return nil, err
	}

	secret = v.([]byte)
	a.secretMu.Lock()
	a.jwtSecret = secret
	a.secretMu.Unlock()
	return secret, nil
}

// MintAccessToken issues a short-lived HS256 access token for a user.
func (a *Authenticator) MintAccessToken(ctx context.Context, userID string, scopes []string, isAdmin bool) (string, error) {
	secret, err := a.jwtSecretValue(ctx)
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"type":     "access",
		"user_id":  userID,
		"scopes":   scopes,
		"is_admin": isAdmin,
		"iat":      now.Unix(),
		"exp":      now.Add(a.AccessTokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ValidateJWT verifies an access token and builds its RequestContext. Any
// decoding or signature failure returns nil without a side channel.
func (a *Authenticator) ValidateJWT(ctx context.Context, token string) *RequestContext {
	secret, err := a.jwtSecretValue(ctx)
	if err != nil {
		a.logger.Warn("jwt secret unavailable", "error", err)
		return nil
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithExpirationRequired(), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return nil
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil
	}
	if stringField(claims["type"]) != "access" {
		return nil
	}
	userID := stringField(claims["user_id"])
	if userID == "" {
		return nil
	}

	return &RequestContext{
		Subject: userID,
		Scopes:  NewScopeSet(stringSlice(claims["scopes"])),
		IsAdmin: boolField(claims["is_admin"]),
		Source:  SourceJWT,
		UserID:  userID,
	}
}
