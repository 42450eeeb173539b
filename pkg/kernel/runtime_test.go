package kernel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthd/hearthd/pkg/config"
	"github.com/hearthd/hearthd/pkg/httpreg"
	"github.com/hearthd/hearthd/pkg/kernel/errs"
	"github.com/hearthd/hearthd/pkg/plugin"
	"github.com/hearthd/hearthd/pkg/services"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment:        config.EnvDevelopment,
		StorageBackend:     config.StorageMemory,
		LogFormat:          "text",
		ServiceCallTimeout: time.Second,
		ShutdownTimeout:    2 * time.Second,
		RateLimitEnabled:   false,
		RequestLogCapacity: 100,
	}
}

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rt, err := New(testConfig(), logger)
	require.NoError(t, err)
	return rt
}

// stubModule is a minimal built-in module for sequencing tests.
type stubModule struct {
	plugin.Base
	name      string
	failLoad  bool
	failStart bool
	started   bool
	stopped   bool
}

func (m *stubModule) Metadata() plugin.Metadata { return plugin.Metadata{Name: m.name} }

func (m *stubModule) OnLoad(ctx context.Context, host plugin.Host) error {
	if m.failLoad {
		return errors.New("load exploded")
	}
	return nil
}

func (m *stubModule) OnStart(ctx context.Context) error {
	if m.failStart {
		return errors.New("start exploded")
	}
	m.started = true
	return nil
}

func (m *stubModule) OnStop(ctx context.Context) error {
	m.stopped = true
	return nil
}

func TestStartSetsRunningStatus(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()

	mod := &stubModule{name: "logger"}
	rt.RegisterBuiltin(mod, true)

	require.NoError(t, rt.Start(ctx))
	assert.True(t, mod.started)

	status, ok := rt.State().Get(ctx, StatusStateKey)
	require.True(t, ok)
	assert.Equal(t, StatusRunning, status)
}

func TestStartAbortsOnRequiredRegistrationFailure(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()

	rt.RegisterBuiltin(&stubModule{name: "broken", failLoad: true}, true)

	err := rt.Start(ctx)
	assert.ErrorIs(t, err, errs.ErrPluginLifecycle)

	_, ok := rt.State().Get(ctx, StatusStateKey)
	assert.False(t, ok, "runtime must not be marked running")
}

func TestStartToleratesOptionalRegistrationFailure(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()

	rt.RegisterBuiltin(&stubModule{name: "flaky", failLoad: true}, false)
	rt.RegisterBuiltin(&stubModule{name: "logger"}, true)

	require.NoError(t, rt.Start(ctx))
}

func TestStartRequiredStartFailureRollsBack(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()

	first := &stubModule{name: "first"}
	rt.RegisterBuiltin(first, true)
	rt.RegisterBuiltin(&stubModule{name: "broken", failStart: true}, true)

	err := rt.Start(ctx)
	assert.ErrorIs(t, err, errs.ErrPluginLifecycle)
	assert.True(t, first.stopped, "modules started before the failure are stopped")
}

func TestStopSetsStoppedStatus(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()

	mod := &stubModule{name: "logger"}
	rt.RegisterBuiltin(mod, true)
	require.NoError(t, rt.Start(ctx))

	require.NoError(t, rt.Stop(ctx))
	assert.True(t, mod.stopped)

	status, ok := rt.State().Get(ctx, StatusStateKey)
	require.True(t, ok)
	assert.Equal(t, StatusStopped, status)

	// Stop is idempotent.
	require.NoError(t, rt.Stop(ctx))
}

func TestStopTimeout(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig()
	cfg.ShutdownTimeout = 20 * time.Millisecond
	rt, err := New(cfg, logger)
	require.NoError(t, err)
	ctx := context.Background()

	rt.RegisterBuiltin(&hangingModule{name: "hang"}, true)
	require.NoError(t, rt.Start(ctx))

	err = rt.Stop(ctx)
	assert.ErrorIs(t, err, errs.ErrTimeout)

	status, _ := rt.State().Get(ctx, StatusStateKey)
	assert.Equal(t, StatusStopped, status, "force-flagged stopped on timeout")
}

func TestShutdownClearsRegistries(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()

	rt.RegisterBuiltin(&stubModule{name: "logger"}, true)
	require.NoError(t, rt.Start(ctx))
	require.NoError(t, rt.Services().Register("demo.ping", func(ctx context.Context, args services.Args) (any, error) {
		return nil, nil
	}))

	require.NoError(t, rt.Shutdown(ctx))
	assert.Equal(t, 0, rt.Services().Len())
	assert.Equal(t, 0, rt.Modules().Len())
	assert.Equal(t, 0, rt.State().Len())
}

func TestHealthCheck(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()

	rt.RegisterBuiltin(&stubModule{name: "logger"}, true)
	require.NoError(t, rt.Start(ctx))

	health := rt.HealthCheck(ctx)
	assert.Equal(t, HealthHealthy, health.Status)
	assert.Equal(t, "ok", health.Checks["storage"])

	modules := health.Checks["modules"].(map[string]string)
	assert.Equal(t, string(plugin.StateStarted), modules["logger"])
}

func TestHealthCheckDegradedOnModuleError(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()

	rt.RegisterBuiltin(&stubModule{name: "flaky", failStart: true}, false)
	require.NoError(t, rt.Start(ctx))

	health := rt.HealthCheck(ctx)
	assert.Equal(t, HealthDegraded, health.Status)
}

func TestMetrics(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()

	rt.RegisterBuiltin(&stubModule{name: "logger"}, true)
	require.NoError(t, rt.Start(ctx))
	require.NoError(t, rt.HTTP().Register(httpreg.Endpoint{
		Method: "GET", Path: "/devices", Service: "devices.list",
	}))

	metrics := rt.Metrics(ctx)
	assert.True(t, metrics["storage_alive"].(bool))
	assert.Equal(t, 1, metrics["module_count"])
	assert.Equal(t, map[string]int{"GET": 1}, metrics["endpoints_by_method"])
}

// hangingModule never returns from OnStop, for shutdown-timeout coverage.
type hangingModule struct {
	plugin.Base
	name string
}

func (m *hangingModule) Metadata() plugin.Metadata { return plugin.Metadata{Name: m.name} }
func (m *hangingModule) OnStop(ctx context.Context) error {
	<-make(chan struct{})
	return nil
}
