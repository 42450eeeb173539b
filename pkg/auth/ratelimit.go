package auth

import (
	"context"
	"time"
)

// Rate limit bucket types.
const (
	LimitAuth = "auth" // authentication attempts and unauthenticated auth-endpoint traffic
	LimitAPI  = "api"  // authenticated request volume
)

// RateLimitConfig holds the fixed-window thresholds.
type RateLimitConfig struct {
	Enabled   bool
	AuthLimit int           // attempts per window in the auth bucket
	APILimit  int           // requests per window in the api bucket
	Window    time.Duration // window length
}

// DefaultRateLimitConfig mirrors the documented defaults: 10 auth attempts
// and 1000 api requests per 60 seconds.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:   true,
		AuthLimit: 10,
		APILimit:  1000,
		Window:    60 * time.Second,
	}
}

// RateLimitResult reports one limiter decision.
type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// rateLimitKey derives the storage key for one (bucket, identifier) pair.
func rateLimitKey(limitType, identifier string) string {
	return sha256Hex(limitType + ":" + identifier)
}

// CheckRateLimit applies the fixed-window counter for a bucket and
// identifier. Storage failures fail open: denying all traffic on storage
// trouble is worse than temporarily over-serving.
func (a *Authenticator) CheckRateLimit(ctx context.Context, limitType, identifier string) RateLimitResult {
	return a.checkRateLimitAt(ctx, limitType, identifier, time.Now())
}

// checkRateLimitAt is the testable core of CheckRateLimit.
func (a *Authenticator) checkRateLimitAt(ctx context.Context, limitType, identifier string, now time.Time) RateLimitResult {
	limit := a.rateLimits.APILimit
	if limitType == LimitAuth {
		limit = a.rateLimits.AuthLimit
	}
	allowed := RateLimitResult{Allowed: true, Limit: limit, Remaining: limit - 1}

	if !a.rateLimits.Enabled {
		return allowed
	}

	key := rateLimitKey(limitType, identifier)
	record, ok, err := a.backend.Get(ctx, nsRateLimits, key)
	if err != nil {
		a.logger.Warn("rate limit read failed, failing open", "bucket", limitType, "error", err)
		return allowed
	}

	window := a.rateLimits.Window
	nowStr := now.UTC().Format(time.RFC3339Nano)

	if !ok || now.Sub(parseTimeNano(record["window_start"])) >= window {
		fresh := map[string]any{
			"count":        float64(1),
			"window_start": nowStr,
			"last_attempt": nowStr,
		}
		if err := a.backend.Set(ctx, nsRateLimits, key, fresh); err != nil {
			a.logger.Warn("rate limit write failed, failing open", "bucket", limitType, "error", err)
		}
		return allowed
	}

	count := intField(record["count"])
	windowStart := parseTimeNano(record["window_start"])

	if count >= limit {
		retryAfter := window - now.Sub(windowStart)
		if retryAfter < 0 {
			retryAfter = 0
		}
		a.audit(ctx, "rate_limit.exceeded", identifier, false, map[string]any{
			"bucket": limitType,
			"count":  count,
		})
		return RateLimitResult{Allowed: false, Limit: limit, Remaining: 0, RetryAfter: retryAfter}
	}

	record["count"] = float64(count + 1)
	record["last_attempt"] = nowStr
	if err := a.backend.Set(ctx, nsRateLimits, key, record); err != nil {
		a.logger.Warn("rate limit write failed, failing open", "bucket", limitType, "error", err)
	}
	remaining := limit - count - 1
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitResult{Allowed: true, Limit: limit, Remaining: remaining}
}

// parseTimeNano decodes an RFC3339Nano string, falling back to RFC3339.
func parseTimeNano(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	return parseTime(v)
}

// intField coerces a decoded JSON number into an int.
func intField(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	}
	return 0
}
