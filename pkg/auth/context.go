// Package auth implements the authentication boundary that wraps service
// dispatch: credential validation (API key, session, JWT), rate limiting,
// revocation, audit, and password management. It runs as HTTP middleware and
// never enters the service registry or plugin code.
package auth

import (
	"context"
)

// Credential sources.
const (
	SourceAPIKey  = "api_key"
	SourceSession = "session"
	SourceJWT     = "jwt"
	SourceNone    = "none"
)

// ScopeSet is a set of dotted capability tokens.
type ScopeSet map[string]struct{}

// NewScopeSet builds a set from a slice of scope strings.
func NewScopeSet(scopes []string) ScopeSet {
	set := make(ScopeSet, len(scopes))
	for _, s := range scopes {
		if s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

// Has reports whether scope is in the set.
func (s ScopeSet) Has(scope string) bool {
	_, ok := s[scope]
	return ok
}

// Slice returns the scopes as a slice, for serialization.
func (s ScopeSet) Slice() []string {
	out := make([]string, 0, len(s))
	for scope := range s {
		out = append(out, scope)
	}
	return out
}

// RequestContext describes the authenticated principal of one request. It
// exists only for the request's duration, attached to the request context,
// and is never persisted or handed to plugins.
type RequestContext struct {
	Subject   string
	Scopes    ScopeSet
	IsAdmin   bool
	Source    string
	UserID    string
	SessionID string
}

// requestCtxKey is the unexported context key for RequestContext.
type requestCtxKey struct{}

// WithRequestContext attaches rc to ctx.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, rc)
}

// RequestContextFrom retrieves the RequestContext, or nil when the request
// is unauthenticated.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(requestCtxKey{}).(*RequestContext)
	return rc
}
