package auth

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Defaults for credential lifetimes.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
	DefaultSessionTTL      = 7 * 24 * time.Hour

	// lastUsedThrottle bounds how often a credential's last_used field is
	// refreshed in storage.
	lastUsedThrottle = time.Minute
)

// Authenticator owns credential validation and the auth-record namespaces.
type Authenticator struct {
	backend    Backend
	logger     *slog.Logger
	rateLimits RateLimitConfig

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	SessionTTL      time.Duration

	// jwtSecret caches the persisted HMAC secret; secretGroup collapses
	// concurrent first-use generation into one storage write.
	secretMu    sync.RWMutex
	jwtSecret   []byte
	secretGroup singleflight.Group

	// lastUsedAt throttles last_used refreshes per credential.
	lastUsedMu sync.Mutex
	lastUsedAt map[string]time.Time
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithRateLimits overrides the default rate-limit thresholds.
func WithRateLimits(cfg RateLimitConfig) Option {
	return func(a *Authenticator) {
		a.rateLimits = cfg
	}
}

// WithAccessTokenTTL overrides the access-token lifetime.
func WithAccessTokenTTL(ttl time.Duration) Option {
	return func(a *Authenticator) {
		a.AccessTokenTTL = ttl
	}
}

// WithRefreshTokenTTL overrides the refresh-token lifetime.
func WithRefreshTokenTTL(ttl time.Duration) Option {
	return func(a *Authenticator) {
		a.RefreshTokenTTL = ttl
	}
}

// WithSessionTTL overrides the session lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(a *Authenticator) {
		a.SessionTTL = ttl
	}
}

// New creates an authenticator over a storage backend.
func New(backend Backend, logger *slog.Logger, opts ...Option) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Authenticator{
		backend:         backend,
		logger:          logger.With("component", "auth"),
		rateLimits:      DefaultRateLimitConfig(),
		AccessTokenTTL:  DefaultAccessTokenTTL,
		RefreshTokenTTL: DefaultRefreshTokenTTL,
		SessionTTL:      DefaultSessionTTL,
		lastUsedAt:      make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// shouldRefreshLastUsed reports (and records) whether the credential's
// last_used field is due for a refresh.
func (a *Authenticator) shouldRefreshLastUsed(credential string, now time.Time) bool {
	a.lastUsedMu.Lock()
	defer a.lastUsedMu.Unlock()

	if last, ok := a.lastUsedAt[credential]; ok && now.Sub(last) < lastUsedThrottle {
		return false
	}
	a.lastUsedAt[credential] = now
	return true
}
