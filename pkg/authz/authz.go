// Package authz is the pure policy layer above authentication: a static
// table from service action names to required scopes, plus the check that
// evaluates a RequestContext against it. No I/O, no storage.
package authz

import (
	"fmt"
	"strings"

	"github.com/hearthd/hearthd/pkg/auth"
	"github.com/hearthd/hearthd/pkg/kernel/errs"
)

// AdminScope grants every admin-prefixed action.
const AdminScope = "admin.*"

// WildcardScope grants everything.
const WildcardScope = "*"

// Policy maps service action names to the scope they require. Actions absent
// from the table are denied for non-admin callers.
type Policy map[string]string

// DefaultPolicy returns the built-in action table. Plugins extend it through
// Merge at registration time.
func DefaultPolicy() Policy {
	return Policy{
		"devices.list":                     "devices.read",
		"devices.get":                      "devices.read",
		"devices.get_state":                "devices.read",
		"devices.set_state":                "devices.write",
		"devices.execute":                  "devices.write",
		"scenes.list":                      "scenes.read",
		"scenes.get":                       "scenes.read",
		"scenes.execute":                   "scenes.execute",
		"request_logger.list_requests":    "admin.logs",
		"request_logger.get_request_logs": "admin.logs",
	}
}

// Merge adds entries from other, overwriting existing actions.
func (p Policy) Merge(other Policy) {
	for action, scope := range other {
		p[action] = scope
	}
}

// Check reports whether rc may perform action. The resource parameter is
// accepted for future per-object ACLs and currently ignored.
func (p Policy) Check(rc *auth.RequestContext, action, resource string) bool {
	_ = resource

	if rc == nil {
		return false
	}
	if rc.IsAdmin {
		return true
	}
	if rc.Scopes.Has(WildcardScope) {
		return true
	}

	if strings.HasPrefix(action, "admin.") {
		return rc.Scopes.Has(AdminScope)
	}

	required, ok := p[action]
	if !ok {
		return false
	}
	return scopeSatisfied(rc.Scopes, required)
}

// Require is Check that returns an error on denial: ErrUnauthenticated for a
// missing context, ErrForbidden for insufficient scope.
func (p Policy) Require(rc *auth.RequestContext, action, resource string) error {
	if rc == nil {
		return fmt.Errorf("%w: %s requires authentication", errs.ErrUnauthenticated, action)
	}
	if !p.Check(rc, action, resource) {
		return fmt.Errorf("%w: %s requires scope %q", errs.ErrForbidden, action, p[action])
	}
	return nil
}

// scopeSatisfied accepts an exact scope match or the namespace wildcard:
// devices.* satisfies devices.read.
func scopeSatisfied(scopes auth.ScopeSet, required string) bool {
	if scopes.Has(required) {
		return true
	}
	if idx := strings.Index(required, "."); idx > 0 {
		return scopes.Has(required[:idx] + ".*")
	}
	return false
}
