// Package reqlogmod is the built-in request-logger module: it registers the
// request_logger.* services and the admin read-side endpoints for the
// operation trace store. The read side is admin-gated; the write side is
// open to plugins.
package reqlogmod

import (
	"context"

	"github.com/hearthd/hearthd/pkg/auth"
	"github.com/hearthd/hearthd/pkg/authz"
	"github.com/hearthd/hearthd/pkg/httpreg"
	"github.com/hearthd/hearthd/pkg/plugin"
	"github.com/hearthd/hearthd/pkg/reqlog"
	"github.com/hearthd/hearthd/pkg/services"
)

// Module is the request-logger module. REQUIRED.
type Module struct {
	plugin.Base
	store  *reqlog.Store
	policy authz.Policy
	host   plugin.Host
}

// New creates the module over the trace store and the authorization policy.
func New(store *reqlog.Store, policy authz.Policy) *Module {
	return &Module{store: store, policy: policy}
}

func (m *Module) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        "request_logger",
		Version:     "1.0.0",
		Description: "per-operation request tracing and admin read-side",
	}
}

func (m *Module) OnLoad(ctx context.Context, host plugin.Host) error {
	m.host = host

	if err := m.store.RegisterServices(host.Services()); err != nil {
		return err
	}

	// The read-side services are admin surfaces: replace them with
	// scope-checked wrappers.
	reg := host.Services()
	for _, name := range []string{reqlog.ServiceListRequests, reqlog.ServiceGetRequestLogs} {
		reg.Unregister(name)
		if err := reg.Register(name, m.guarded(name)); err != nil {
			return err
		}
	}

	endpoints := []httpreg.Endpoint{
		{Method: "GET", Path: "/admin/v1/requests", Service: reqlog.ServiceListRequests},
		{Method: "GET", Path: "/admin/v1/requests/{operation_id}", Service: reqlog.ServiceGetRequestLogs},
	}
	for _, ep := range endpoints {
		if err := host.HTTP().Register(ep); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) OnUnload(ctx context.Context) error {
	reg := m.host.Services()
	for _, name := range []string{
		reqlog.ServiceLog,
		reqlog.ServiceSetRequestMetadata,
		reqlog.ServiceListRequests,
		reqlog.ServiceGetRequestLogs,
	} {
		reg.Unregister(name)
	}
	m.host.HTTP().Clear("request_logger")
	m.host = nil
	return nil
}

// guarded wraps a read-side store handler with the scope check for its
// action name.
func (m *Module) guarded(name string) services.Handler {
	var inner services.Handler
	switch name {
	case reqlog.ServiceListRequests:
		inner = m.store.ListHandler
	default:
		inner = m.store.GetLogsHandler
	}
	return func(ctx context.Context, args services.Args) (any, error) {
		if err := m.policy.Require(auth.RequestContextFrom(ctx), name, ""); err != nil {
			return nil, err
		}
		return inner(ctx, args)
	}
}
