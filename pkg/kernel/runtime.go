// Package kernel owns the runtime: it constructs every coordination
// primitive, sequences startup and shutdown, and exposes health and metrics
// introspection. It contains no domain logic.
package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hearthd/hearthd/pkg/auth"
	"github.com/hearthd/hearthd/pkg/authz"
	"github.com/hearthd/hearthd/pkg/bus"
	"github.com/hearthd/hearthd/pkg/config"
	"github.com/hearthd/hearthd/pkg/gateway"
	"github.com/hearthd/hearthd/pkg/httpreg"
	"github.com/hearthd/hearthd/pkg/kernel/errs"
	"github.com/hearthd/hearthd/pkg/module"
	"github.com/hearthd/hearthd/pkg/plugin"
	"github.com/hearthd/hearthd/pkg/reqlog"
	"github.com/hearthd/hearthd/pkg/services"
	"github.com/hearthd/hearthd/pkg/state"
	"github.com/hearthd/hearthd/pkg/storage"
	"github.com/hearthd/hearthd/pkg/storage/memadapter"
	"github.com/hearthd/hearthd/pkg/storage/sqladapter"
)

// Runtime status values mirrored into the state engine under
// StatusStateKey.
const (
	StatusStateKey = "runtime.status"

	StatusRunning = "running"
	StatusStopped = "stopped"
)

// Health statuses.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// builtin is a queued built-in module registration.
type builtin struct {
	mod      plugin.Plugin
	required bool
}

// Runtime owns all kernel components and sequences their lifecycle.
type Runtime struct {
	cfg    *config.Config
	logger *slog.Logger

	events   *bus.Bus
	registry *services.Registry
	engine   *state.Engine
	store    *storage.Store
	mirror   *storage.Mirror
	httpReg  *httpreg.Registry
	requests *reqlog.Store
	authn    *auth.Authenticator
	policy   authz.Policy
	metrics  *gateway.Metrics
	plugins  *plugin.Manager
	modules  *module.Manager

	builtins  []builtin
	startedAt time.Time

	mu      sync.Mutex
	stopped bool
}

// New constructs a runtime from validated configuration: it opens the
// storage backend and wires every component, but starts nothing.
func New(cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}

	adapter, err := openAdapter(cfg)
	if err != nil {
		return nil, err
	}

	engine := state.NewEngine()
	store := storage.NewStore(adapter)
	mirror := storage.NewMirror(store, engine)

	authn := auth.New(mirror, logger,
		auth.WithRateLimits(auth.RateLimitConfig{
			Enabled:   cfg.RateLimitEnabled,
			AuthLimit: cfg.RateLimitAuth,
			APILimit:  cfg.RateLimitAPI,
			Window:    cfg.RateLimitWindow,
		}))

	rt := &Runtime{
		cfg:      cfg,
		logger:   logger.With("component", "runtime"),
		events:   bus.New(logger),
		registry: services.NewRegistry(cfg.ServiceCallTimeout),
		engine:   engine,
		store:    store,
		mirror:   mirror,
		httpReg:  httpreg.NewRegistry(),
		requests: reqlog.NewStore(cfg.RequestLogCapacity),
		authn:    authn,
		policy:   authz.DefaultPolicy(),
		metrics:  gateway.NewMetrics(),
	}
	rt.plugins = plugin.NewManager(rt, logger)
	rt.modules = module.NewManager(rt, logger)
	return rt, nil
}

func openAdapter(cfg *config.Config) (storage.Adapter, error) {
	switch cfg.StorageBackend {
	case config.StorageMemory:
		return memadapter.New(), nil
	case config.StorageSQLite:
		return sqladapter.OpenSQLite(cfg.StorageDSN)
	case config.StoragePostgres:
		return sqladapter.OpenPostgres(cfg.StorageDSN)
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", errs.ErrInvalidInput, cfg.StorageBackend)
	}
}

// plugin.Host implementation.

func (r *Runtime) Services() *services.Registry { return r.registry }
func (r *Runtime) Events() *bus.Bus             { return r.events }
func (r *Runtime) State() *state.Engine         { return r.engine }
func (r *Runtime) Storage() *storage.Mirror     { return r.mirror }
func (r *Runtime) HTTP() *httpreg.Registry      { return r.httpReg }
func (r *Runtime) Logger() *slog.Logger         { return r.logger }

// Accessors for modules and entry points.

func (r *Runtime) Requests() *reqlog.Store          { return r.requests }
func (r *Runtime) Auth() *auth.Authenticator        { return r.authn }
func (r *Runtime) Policy() authz.Policy             { return r.policy }
func (r *Runtime) GatewayMetrics() *gateway.Metrics { return r.metrics }
func (r *Runtime) Plugins() *plugin.Manager         { return r.plugins }
func (r *Runtime) Modules() *module.Manager         { return r.modules }
func (r *Runtime) Config() *config.Config           { return r.cfg }

// RegisterBuiltin queues a built-in module for registration during Start.
func (r *Runtime) RegisterBuiltin(mod plugin.Plugin, required bool) {
	r.builtins = append(r.builtins, builtin{mod: mod, required: required})
}

// Start brings the runtime up: auto-load plugins when none are loaded,
// register built-in modules (a REQUIRED failure aborts), start modules then
// plugins, and mark the runtime running. Any failure rolls modules back and
// propagates the original error.
func (r *Runtime) Start(ctx context.Context) error {
	if r.plugins.Len() == 0 && r.cfg.PluginsDir != "" {
		if err := r.plugins.AutoLoad(ctx, r.cfg.PluginsDir); err != nil {
			// Best effort: a missing plugin directory is not fatal.
			r.logger.Warn("plugin auto-load skipped", "dir", r.cfg.PluginsDir, "error", err)
		}
	}

	var requiredNames []string
	for _, b := range r.builtins {
		name := b.mod.Metadata().Name
		if err := r.modules.Register(ctx, b.mod, b.required); err != nil {
			if b.required {
				r.modules.StopAll(ctx)
				return fmt.Errorf("required module %s failed to register: %w", name, err)
			}
			r.logger.Warn("optional module failed to register", "module", name, "error", err)
			continue
		}
		if b.required {
			requiredNames = append(requiredNames, name)
		}
	}

	if missing := r.modules.MissingRequired(requiredNames); len(missing) > 0 {
		return fmt.Errorf("%w: required modules missing: %v", errs.ErrPluginLifecycle, missing)
	}

	if err := r.modules.StartAll(ctx); err != nil {
		return err
	}
	r.plugins.StartAll(ctx)

	r.startedAt = time.Now()
	r.engine.Set(ctx, StatusStateKey, StatusRunning)
	r.logger.Info("runtime started",
		"plugins", r.plugins.Len(), "modules", r.modules.Len(), "services", r.registry.Len())
	return nil
}

// Stop brings the runtime down, bounded by the configured shutdown timeout.
// On timeout the runtime force-flags itself stopped and reports ErrTimeout;
// hooks still running are abandoned.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	r.mu.Unlock()

	stopCtx, cancel := context.WithTimeout(ctx, r.cfg.ShutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.plugins.StopAll(stopCtx)
		r.modules.StopAll(stopCtx)
		if err := r.store.Close(); err != nil {
			r.logger.Error("storage close failed", "error", err)
		}
	}()

	select {
	case <-done:
		r.engine.Set(ctx, StatusStateKey, StatusStopped)
		r.logger.Info("runtime stopped")
		return nil
	case <-stopCtx.Done():
		r.engine.Set(ctx, StatusStateKey, StatusStopped)
		return fmt.Errorf("%w: shutdown exceeded %s", errs.ErrTimeout, r.cfg.ShutdownTimeout)
	}
}

// Shutdown stops the runtime and releases every registry.
func (r *Runtime) Shutdown(ctx context.Context) error {
	err := r.Stop(ctx)
	r.modules.Clear(ctx)
	r.events.Clear()
	r.registry.Clear()
	r.engine.Clear(ctx)
	return err
}

// BuildGateway materializes the HTTP registry into a router wrapped in the
// kernel middleware stack. Call after Start, once plugins have registered
// their contracts.
func (r *Runtime) BuildGateway() http.Handler {
	return gateway.New(gateway.Options{
		Services:      r.registry,
		HTTPRegistry:  r.httpReg,
		Requests:      r.requests,
		Authenticator: r.authn,
		Logger:        r.logger,
		Metrics:       r.metrics,
		Production:    r.cfg.IsProduction(),
		CORSOrigins:   r.cfg.CORSOrigins,
	}).BuildRouter()
}

// Health is the result of one health probe.
type Health struct {
	Status string         `json:"status"`
	Checks map[string]any `json:"checks"`
}

// HealthCheck probes storage, required modules, and plugin states.
func (r *Runtime) HealthCheck(ctx context.Context) Health {
	checks := make(map[string]any)
	status := HealthHealthy

	if err := r.store.Ping(ctx); err != nil {
		checks["storage"] = err.Error()
		status = HealthUnhealthy
	} else {
		checks["storage"] = "ok"
	}

	moduleStates := make(map[string]string)
	for _, name := range r.modules.List() {
		s := r.modules.StateOf(name)
		moduleStates[name] = string(s)
		if s == plugin.StateError && status == HealthHealthy {
			status = HealthDegraded
		}
	}
	checks["modules"] = moduleStates

	pluginStates := make(map[string]string)
	for name, s := range r.plugins.States() {
		pluginStates[name] = string(s)
		if s == plugin.StateError && status == HealthHealthy {
			status = HealthDegraded
		}
	}
	checks["plugins"] = pluginStates

	return Health{Status: status, Checks: checks}
}

// Metrics reports runtime counters for the admin surface.
func (r *Runtime) Metrics(ctx context.Context) map[string]any {
	endpointsByMethod := make(map[string]int)
	for _, ep := range r.httpReg.List() {
		endpointsByMethod[ep.Method]++
	}

	var uptime float64
	if !r.startedAt.IsZero() {
		uptime = time.Since(r.startedAt).Seconds()
	}

	storageAlive := r.store.Ping(ctx) == nil

	return map[string]any{
		"uptime_seconds":      uptime,
		"plugins":             r.plugins.States(),
		"module_count":        r.modules.Len(),
		"service_count":       r.registry.Len(),
		"endpoints_by_method": endpointsByMethod,
		"storage_alive":       storageAlive,
		"request_log_size":    r.requests.Len(),
	}
}
