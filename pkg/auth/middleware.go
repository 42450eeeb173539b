package auth

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const authPathPrefix = "/admin/auth/"

// Middleware authenticates each request and applies rate limits. The
// resolved RequestContext, when any, is attached to the request context;
// requests with no or invalid credentials proceed unauthenticated and are
// rejected later by the authorization layer if the endpoint requires a
// scope.
func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc, attempted := a.Authenticate(r)

			// Every failed authentication attempt burns the strict bucket,
			// keyed by client address, no matter the path; so does
			// unauthenticated traffic against auth endpoints. Authenticated
			// traffic burns the api bucket, keyed by subject.
			var result RateLimitResult
			switch {
			case rc != nil:
				result = a.CheckRateLimit(r.Context(), LimitAPI, rc.Subject)
			case attempted || strings.HasPrefix(r.URL.Path, authPathPrefix):
				result = a.CheckRateLimit(r.Context(), LimitAuth, clientIP(r))
			default:
				result = RateLimitResult{Allowed: true}
			}
			if !result.Allowed {
				writeRateLimited(w, result)
				return
			}

			if rc != nil {
				r = r.WithContext(WithRequestContext(r.Context(), rc))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Authenticate resolves the request's credential in priority order: bearer
// JWT, bearer API key, session cookie. attempted reports whether any
// credential was presented at all, so the caller can distinguish an
// anonymous request from a rejected one.
func (a *Authenticator) Authenticate(r *http.Request) (rc *RequestContext, attempted bool) {
	ctx := r.Context()

	if header := r.Header.Get("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if ok && token != "" {
			if LooksLikeJWT(token) {
				return a.ValidateJWT(ctx, token), true
			}
			return a.ValidateAPIKey(ctx, token), true
		}
	}

	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return a.ValidateSession(ctx, cookie.Value), true
	}

	return nil, false
}

// writeRateLimited emits a 429 with the standard limiter headers. The
// remaining window is rounded up so an immediate retry on a full window
// reports the whole window, not one second less.
func writeRateLimited(w http.ResponseWriter, result RateLimitResult) {
	retryAfter := int((result.RetryAfter + time.Second - 1) / time.Second)
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	fmt.Fprintf(w, `{"error":"rate limit exceeded","retry_after":%d}`, retryAfter)
}

// clientIP extracts the remote host, without the port. chi's RealIP
// middleware has already rewritten RemoteAddr when the request came through
// a trusted proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
