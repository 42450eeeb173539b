package adminmod

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthd/hearthd/pkg/auth"
	"github.com/hearthd/hearthd/pkg/config"
	"github.com/hearthd/hearthd/pkg/kernel"
	"github.com/hearthd/hearthd/pkg/kernel/errs"
	"github.com/hearthd/hearthd/pkg/services"
)

func newTestRuntime(t *testing.T) *kernel.Runtime {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rt, err := kernel.New(&config.Config{
		Environment:        config.EnvDevelopment,
		StorageBackend:     config.StorageMemory,
		LogFormat:          "text",
		ServiceCallTimeout: time.Second,
		ShutdownTimeout:    2 * time.Second,
		RequestLogCapacity: 100,
	}, logger)
	require.NoError(t, err)
	return rt
}

func setup(t *testing.T) *kernel.Runtime {
	t.Helper()
	rt := newTestRuntime(t)
	mod := New(rt)
	require.NoError(t, mod.OnLoad(context.Background(), rt))
	return rt
}

func adminCtx() context.Context {
	return auth.WithRequestContext(context.Background(), &auth.RequestContext{
		Subject: "root", IsAdmin: true,
	})
}

func TestAdminServicesAreGated(t *testing.T) {
	rt := setup(t)

	for _, name := range []string{ServiceHealth, ServiceMetrics, ServicePlugins, ServiceServices, ServiceEndpoints} {
		_, err := rt.Services().Call(context.Background(), name, services.Args{})
		assert.ErrorIs(t, err, errs.ErrUnauthenticated, name)
	}

	viewer := auth.WithRequestContext(context.Background(), &auth.RequestContext{
		Subject: "viewer", Scopes: auth.NewScopeSet([]string{"devices.read"}),
	})
	_, err := rt.Services().Call(viewer, ServiceHealth, services.Args{})
	assert.ErrorIs(t, err, errs.ErrForbidden)
}

func TestHealthService(t *testing.T) {
	rt := setup(t)

	result, err := rt.Services().Call(adminCtx(), ServiceHealth, services.Args{})
	require.NoError(t, err)

	health := result.(kernel.Health)
	assert.Equal(t, kernel.HealthHealthy, health.Status)
	assert.Equal(t, "ok", health.Checks["storage"])
}

func TestRuntimeMetricsService(t *testing.T) {
	rt := setup(t)

	result, err := rt.Services().Call(adminCtx(), ServiceMetrics, services.Args{})
	require.NoError(t, err)

	doc := result.(map[string]any)
	assert.Contains(t, doc, "uptime_seconds")
	assert.Contains(t, doc, "service_count")
}

func TestIntrospectionServices(t *testing.T) {
	rt := setup(t)

	result, err := rt.Services().Call(adminCtx(), ServicePlugins, services.Args{})
	require.NoError(t, err)
	assert.Empty(t, result, "no plugins loaded")

	result, err = rt.Services().Call(adminCtx(), ServiceServices, services.Args{})
	require.NoError(t, err)
	assert.Contains(t, result.([]string), ServiceHealth)

	result, err = rt.Services().Call(adminCtx(), ServiceEndpoints, services.Args{})
	require.NoError(t, err)
	assert.Len(t, result, 6)

	result, err = rt.Services().Call(adminCtx(), ServiceOpenAPI, services.Args{})
	require.NoError(t, err)
	doc := result.(map[string]any)
	assert.Equal(t, "3.0.3", doc["openapi"])
}

func TestUnloadClearsAdminSurface(t *testing.T) {
	rt := newTestRuntime(t)
	mod := New(rt)
	ctx := context.Background()

	require.NoError(t, mod.OnLoad(ctx, rt))
	require.NoError(t, mod.OnUnload(ctx))

	assert.False(t, rt.Services().Has(ServiceHealth))
	assert.Equal(t, 0, rt.HTTP().Len())
}
