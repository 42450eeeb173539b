package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hearthd/hearthd/pkg/auth"
	"github.com/hearthd/hearthd/pkg/kernel/errs"
)

func ctxWith(scopes []string, isAdmin bool) *auth.RequestContext {
	return &auth.RequestContext{
		Subject: "tester",
		Scopes:  auth.NewScopeSet(scopes),
		IsAdmin: isAdmin,
	}
}

func TestCheck(t *testing.T) {
	p := DefaultPolicy()

	cases := []struct {
		name   string
		rc     *auth.RequestContext
		action string
		want   bool
	}{
		{"nil context", nil, "devices.list", false},
		{"admin flag grants everything", ctxWith(nil, true), "admin.v1.runtime", true},
		{"wildcard scope grants everything", ctxWith([]string{"*"}, false), "devices.set_state", true},
		{"exact scope match", ctxWith([]string{"devices.read"}, false), "devices.list", true},
		{"read scope cannot write", ctxWith([]string{"devices.read"}, false), "devices.set_state", false},
		{"namespace wildcard", ctxWith([]string{"devices.*"}, false), "devices.set_state", true},
		{"admin action needs admin scope", ctxWith([]string{"devices.read"}, false), "admin.v1.runtime", false},
		{"admin scope grants admin actions", ctxWith([]string{"admin.*"}, false), "admin.v1.runtime", true},
		{"unmapped action denied", ctxWith([]string{"devices.read"}, false), "unknown.action", false},
		{"empty scopes denied", ctxWith(nil, false), "devices.list", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, p.Check(tc.rc, tc.action, ""))
		})
	}
}

func TestCheckScopeEnforcementScenario(t *testing.T) {
	p := DefaultPolicy()
	rc := ctxWith([]string{"devices.read"}, false)

	assert.True(t, p.Check(rc, "devices.list", ""))
	assert.False(t, p.Check(rc, "devices.set_state", ""))
	assert.False(t, p.Check(rc, "admin.v1.runtime", ""))
}

func TestRequire(t *testing.T) {
	p := DefaultPolicy()

	err := p.Require(nil, "devices.list", "")
	assert.ErrorIs(t, err, errs.ErrUnauthenticated)

	err = p.Require(ctxWith([]string{"devices.read"}, false), "devices.set_state", "")
	assert.ErrorIs(t, err, errs.ErrForbidden)

	assert.NoError(t, p.Require(ctxWith([]string{"devices.read"}, false), "devices.list", ""))
}

func TestResourceParameterIgnored(t *testing.T) {
	p := DefaultPolicy()
	rc := ctxWith([]string{"devices.read"}, false)

	assert.Equal(t, p.Check(rc, "devices.list", ""), p.Check(rc, "devices.list", "lamp-1"))
}

func TestMerge(t *testing.T) {
	p := DefaultPolicy()
	p.Merge(Policy{"presence.query": "presence.read", "devices.list": "devices.audit"})

	rc := ctxWith([]string{"presence.read"}, false)
	assert.True(t, p.Check(rc, "presence.query", ""))

	// Merge overwrites existing actions.
	assert.False(t, p.Check(ctxWith([]string{"devices.read"}, false), "devices.list", ""))
	assert.True(t, p.Check(ctxWith([]string{"devices.audit"}, false), "devices.list", ""))
}
