package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Reserved storage namespaces. Plugins must not write into these.
const (
	nsAPIKeys       = "auth_api_keys"
	nsUsers         = "auth_users"
	nsSessions      = "auth_sessions"
	nsRefreshTokens = "auth_refresh_tokens"
	nsRevoked       = "auth_revoked"
	nsRateLimits    = "auth_rate_limits"
	nsAuditLog      = "auth_audit_log"
	nsConfig        = "auth_config"
)

// Backend is the slice of the storage facade the auth boundary needs.
// Satisfied by *storage.Store and *storage.Mirror.
type Backend interface {
	Get(ctx context.Context, namespace, key string) (map[string]any, bool, error)
	Set(ctx context.Context, namespace, key string, value map[string]any) error
	Delete(ctx context.Context, namespace, key string) error
	ListKeys(ctx context.Context, namespace string) ([]string, error)
}

// sha256Hex returns the hex SHA-256 digest of s.
func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// parseTime decodes an RFC3339 string out of a stored record field. Returns
// the zero time when the field is absent or malformed.
func parseTime(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// stringSlice coerces a decoded JSON array into []string, skipping
// non-string elements.
func stringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func boolField(v any) bool {
	b, _ := v.(bool)
	return b
}

func stringField(v any) string {
	s, _ := v.(string)
	return s
}
