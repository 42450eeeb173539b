// Package module manages built-in kernel modules. Modules follow the same
// lifecycle contract as plugins but are compiled in, registered directly,
// and classified REQUIRED or OPTIONAL: a REQUIRED failure gates runtime
// start, an OPTIONAL failure is logged and tolerated.
package module

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hearthd/hearthd/pkg/kernel/errs"
	"github.com/hearthd/hearthd/pkg/plugin"
)

// Classifications.
const (
	Required = true
	Optional = false
)

type record struct {
	module   plugin.Plugin
	required bool
	state    plugin.State
}

// Manager registers and sequences built-in modules.
type Manager struct {
	host   plugin.Host
	logger *slog.Logger

	mu      sync.Mutex
	modules map[string]*record
	order   []string
}

// NewManager creates a module manager over a runtime host.
func NewManager(host plugin.Host, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		host:    host,
		logger:  logger.With("component", "modules"),
		modules: make(map[string]*record),
	}
}

// Register runs a module's OnLoad and tracks it. Registration failure of a
// REQUIRED module must abort runtime start; the caller decides based on the
// returned error and the module's classification.
func (m *Manager) Register(ctx context.Context, mod plugin.Plugin, required bool) error {
	name := mod.Metadata().Name
	if name == "" {
		return fmt.Errorf("%w: module name must be non-empty", errs.ErrInvalidInput)
	}

	m.mu.Lock()
	if _, exists := m.modules[name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: module %q already registered", errs.ErrConflict, name)
	}
	m.mu.Unlock()

	if err := mod.OnLoad(ctx, m.host); err != nil {
		return fmt.Errorf("%w: module %s on_load: %v", errs.ErrPluginLifecycle, name, err)
	}

	m.mu.Lock()
	m.modules[name] = &record{module: mod, required: required, state: plugin.StateLoaded}
	m.order = append(m.order, name)
	m.mu.Unlock()

	m.logger.Info("module registered", "module", name, "required", required)
	return nil
}

// Has reports whether a module is registered.
func (m *Manager) Has(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.modules[name]
	return ok
}

// StartAll starts modules in registration order. A REQUIRED module's start
// failure stops everything already started and propagates; OPTIONAL
// failures are logged and tolerated.
func (m *Manager) StartAll(ctx context.Context) error {
	for _, name := range m.List() {
		m.mu.Lock()
		rec, ok := m.modules[name]
		if !ok || rec.state != plugin.StateLoaded {
			m.mu.Unlock()
			continue
		}
		mod := rec.module
		required := rec.required
		m.mu.Unlock()

		if err := mod.OnStart(ctx); err != nil {
			m.setState(name, plugin.StateError)
			if required {
				m.StopAll(ctx)
				return fmt.Errorf("%w: required module %s on_start: %v", errs.ErrPluginLifecycle, name, err)
			}
			m.logger.Warn("optional module failed to start", "module", name, "error", err)
			continue
		}
		m.setState(name, plugin.StateStarted)
		m.logger.Info("module started", "module", name)
	}
	return nil
}

// StopAll stops started modules in reverse registration order. Failures are
// logged, never propagated: shutdown always proceeds.
func (m *Manager) StopAll(ctx context.Context) {
	names := m.List()
	for i := len(names) - 1; i >= 0; i-- {
		name := names[i]
		m.mu.Lock()
		rec, ok := m.modules[name]
		if !ok || rec.state != plugin.StateStarted {
			m.mu.Unlock()
			continue
		}
		mod := rec.module
		m.mu.Unlock()

		if err := mod.OnStop(ctx); err != nil {
			m.setState(name, plugin.StateError)
			m.logger.Error("module failed to stop", "module", name, "error", err)
			continue
		}
		m.setState(name, plugin.StateStopped)
	}
}

// Clear unloads every module and empties the manager. Unload failures are
// logged; Clear always completes.
func (m *Manager) Clear(ctx context.Context) {
	names := m.List()
	for i := len(names) - 1; i >= 0; i-- {
		name := names[i]
		m.mu.Lock()
		rec, ok := m.modules[name]
		m.mu.Unlock()
		if !ok {
			continue
		}
		if err := rec.module.OnUnload(ctx); err != nil {
			m.logger.Error("module failed to unload", "module", name, "error", err)
		}
	}

	m.mu.Lock()
	m.modules = make(map[string]*record)
	m.order = nil
	m.mu.Unlock()
}

// MissingRequired returns the names in want that are not registered.
func (m *Manager) MissingRequired(want []string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var missing []string
	for _, name := range want {
		if _, ok := m.modules[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// List returns module names in registration order.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// StateOf returns a module's state, or StateUnloaded for unknown names.
func (m *Manager) StateOf(name string) plugin.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.modules[name]
	if !ok {
		return plugin.StateUnloaded
	}
	return rec.state
}

// Len returns the number of registered modules.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.modules)
}

func (m *Manager) setState(name string, s plugin.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.modules[name]; ok {
		rec.state = s
	}
}
