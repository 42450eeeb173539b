// Package adminmod is the built-in admin module: health, runtime metrics,
// and introspection of plugins, services, and endpoints under /admin/v1/*.
// Every service here is admin-gated.
package adminmod

import (
	"context"

	"github.com/hearthd/hearthd/pkg/auth"
	"github.com/hearthd/hearthd/pkg/httpreg"
	"github.com/hearthd/hearthd/pkg/kernel"
	"github.com/hearthd/hearthd/pkg/plugin"
	"github.com/hearthd/hearthd/pkg/services"
)

// Service names. The admin. prefix makes the authorization layer demand the
// admin.* scope without a policy-table entry.
const (
	ServiceHealth    = "admin.v1.health"
	ServiceMetrics   = "admin.v1.metrics"
	ServicePlugins   = "admin.v1.plugins"
	ServiceServices  = "admin.v1.services"
	ServiceEndpoints = "admin.v1.endpoints"
	ServiceOpenAPI   = "admin.v1.openapi"
)

// Module is the admin module. OPTIONAL: the kernel runs headless without it.
type Module struct {
	plugin.Base
	runtime *kernel.Runtime
	host    plugin.Host
}

// New creates the admin module over the runtime.
func New(runtime *kernel.Runtime) *Module {
	return &Module{runtime: runtime}
}

func (m *Module) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        "admin",
		Version:     "1.0.0",
		Description: "health, metrics, and kernel introspection",
	}
}

func (m *Module) OnLoad(ctx context.Context, host plugin.Host) error {
	m.host = host

	handlers := map[string]services.Handler{
		ServiceHealth:    m.health,
		ServiceMetrics:   m.runtimeMetrics,
		ServicePlugins:   m.plugins,
		ServiceServices:  m.services,
		ServiceEndpoints: m.endpoints,
		ServiceOpenAPI:   m.openapi,
	}
	for name, h := range handlers {
		if err := host.Services().Register(name, m.gated(name, h)); err != nil {
			return err
		}
	}

	endpoints := []httpreg.Endpoint{
		{Method: "GET", Path: "/admin/v1/health", Service: ServiceHealth},
		{Method: "GET", Path: "/admin/v1/metrics", Service: ServiceMetrics},
		{Method: "GET", Path: "/admin/v1/plugins", Service: ServicePlugins},
		{Method: "GET", Path: "/admin/v1/services", Service: ServiceServices},
		{Method: "GET", Path: "/admin/v1/endpoints", Service: ServiceEndpoints},
		{Method: "GET", Path: "/admin/v1/openapi", Service: ServiceOpenAPI},
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
	for _, name := range []string{ServiceHealth, ServiceMetrics, ServicePlugins, ServiceServices, ServiceEndpoints, ServiceOpenAPI} {
		reg.Unregister(name)
	}
	m.host.HTTP().Clear("admin")
	m.host = nil
	return nil
}

// gated wraps a handler with the admin scope check.
func (m *Module) gated(name string, h services.Handler) services.Handler {
	return func(ctx context.Context, args services.Args) (any, error) {
		if err := m.runtime.Policy().Require(auth.RequestContextFrom(ctx), name, ""); err != nil {
			return nil, err
		}
		return h(ctx, args)
	}
}

func (m *Module) health(ctx context.Context, args services.Args) (any, error) {
	return m.runtime.HealthCheck(ctx), nil
}

func (m *Module) runtimeMetrics(ctx context.Context, args services.Args) (any, error) {
	return m.runtime.Metrics(ctx), nil
}

func (m *Module) plugins(ctx context.Context, args services.Args) (any, error) {
	states := m.runtime.Plugins().States()
	out := make([]map[string]any, 0, len(states))
	for _, name := range m.runtime.Plugins().List() {
		entry := map[string]any{"name": name, "state": string(states[name])}
		if manifest, ok := m.runtime.Plugins().ManifestOf(name); ok {
			entry["version"] = manifest.Version
			entry["dependencies"] = manifest.Dependencies
		}
		if err := m.runtime.Plugins().LastError(name); err != nil {
			entry["error"] = err.Error()
		}
		out = append(out, entry)
	}
	return out, nil
}

func (m *Module) services(ctx context.Context, args services.Args) (any, error) {
	return m.runtime.Services().List(), nil
}

func (m *Module) endpoints(ctx context.Context, args services.Args) (any, error) {
	return m.runtime.HTTP().List(), nil
}

func (m *Module) openapi(ctx context.Context, args services.Args) (any, error) {
	return m.runtime.HTTP().OpenAPIDocument("hearthd", m.Metadata().Version), nil
}
