package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/hearthd/hearthd/pkg/kernel/errs"
)

// State is a plugin's lifecycle state.
type State string

const (
	StateUnloaded State = "UNLOADED"
	StateLoaded   State = "LOADED"
	StateStarted  State = "STARTED"
	StateStopped  State = "STOPPED"
	StateError    State = "ERROR" // terminal for the current run
)

// record tracks one managed plugin.
type record struct {
	plugin   Plugin
	manifest Manifest
	state    State
	dir      string
	lastErr  error
}

// Discovered pairs a validated manifest with its directory.
type Discovered struct {
	Manifest Manifest
	Dir      string
}

// Manager discovers plugins on disk, loads them in dependency order, drives
// their state machine, and isolates their failures from each other.
type Manager struct {
	host   Host
	logger *slog.Logger

	mu      sync.Mutex
	plugins map[string]*record
	order   []string // registration order
}

// NewManager creates a manager over a runtime host.
func NewManager(host Host, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		host:    host,
		logger:  logger.With("component", "plugins"),
		plugins: make(map[string]*record),
	}
}

// Discover enumerates the plugin directory and collects every subdirectory
// holding a valid manifest. Unmanifested directories are not plugins and are
// skipped silently; invalid manifests are logged and skipped.
func (m *Manager) Discover(dir string) ([]Discovered, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read plugin directory %s: %w", dir, err)
	}

	var found []Discovered
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		pluginDir := filepath.Join(dir, e.Name())
		if _, err := os.Stat(filepath.Join(pluginDir, ManifestFile)); err != nil {
			continue
		}
		manifest, err := LoadManifest(pluginDir)
		if err != nil {
			m.logger.Warn("skipping plugin with invalid manifest", "dir", pluginDir, "error", err)
			continue
		}
		found = append(found, Discovered{Manifest: manifest, Dir: pluginDir})
	}
	return found, nil
}

// sortByDependencies orders the batch topologically. Plugins inside a
// dependency cycle are skipped; plugins whose dependencies are neither in
// the batch nor already loaded are skipped. Skips never block the rest of
// the batch.
func (m *Manager) sortByDependencies(batch []Discovered) []Discovered {
	byName := make(map[string]Discovered, len(batch))
	indegree := make(map[string]int, len(batch))
	dependents := make(map[string][]string)

	m.mu.Lock()
	loaded := make(map[string]bool, len(m.plugins))
	for name, rec := range m.plugins {
		if rec.state == StateLoaded || rec.state == StateStarted {
			loaded[name] = true
		}
	}
	m.mu.Unlock()

	skipped := make(map[string]bool)
	for _, d := range batch {
		byName[d.Manifest.Name] = d
	}
	for _, d := range batch {
		name := d.Manifest.Name
		for _, dep := range d.Manifest.Dependencies {
			if loaded[dep] {
				continue
			}
			if _, inBatch := byName[dep]; !inBatch {
				m.logger.Warn("skipping plugin with missing dependency", "plugin", name, "dependency", dep)
				skipped[name] = true
				continue
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var queue []string
	for _, d := range batch {
		name := d.Manifest.Name
		if !skipped[name] && indegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	var ordered []Discovered
	resolved := make(map[string]bool)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if skipped[name] || resolved[name] {
			continue
		}
		resolved[name] = true
		ordered = append(ordered, byName[name])
		for _, dep := range dependents[name] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	// Anything unresolved and not explicitly skipped sits in a cycle.
	for _, d := range batch {
		name := d.Manifest.Name
		if !resolved[name] && !skipped[name] {
			m.logger.Warn("skipping plugin in dependency cycle", "plugin", name)
		}
	}
	return ordered
}

// Load instantiates a plugin from its manifest and runs OnLoad. The
// manifest's dependency list overrides the plugin's own metadata and every
// dependency must already be LOADED.
func (m *Manager) Load(ctx context.Context, d Discovered) error {
	name := d.Manifest.Name

	m.mu.Lock()
	if _, exists := m.plugins[name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: plugin %q already loaded", errs.ErrConflict, name)
	}
	for _, dep := range d.Manifest.Dependencies {
		rec, ok := m.plugins[dep]
		if !ok || (rec.state != StateLoaded && rec.state != StateStarted) {
			m.mu.Unlock()
			return fmt.Errorf("%w: plugin %q requires %q", errs.ErrDependencyMissing, name, dep)
		}
	}
	m.mu.Unlock()

	factory, err := lookupFactory(d.Manifest.ClassPath)
	if err != nil {
		return err
	}
	instance := factory()

	if err := instance.OnLoad(ctx, m.host); err != nil {
		wrapped := fmt.Errorf("%w: %s on_load: %v", errs.ErrPluginLifecycle, name, err)
		m.mu.Lock()
		m.plugins[name] = &record{plugin: instance, manifest: d.Manifest, state: StateError, dir: d.Dir, lastErr: wrapped}
		m.order = append(m.order, name)
		m.mu.Unlock()
		return wrapped
	}

	m.mu.Lock()
	m.plugins[name] = &record{plugin: instance, manifest: d.Manifest, state: StateLoaded, dir: d.Dir}
	m.order = append(m.order, name)
	m.mu.Unlock()

	m.logger.Info("plugin loaded", "plugin", name, "version", d.Manifest.Version)
	return nil
}

// transition runs a lifecycle hook and moves the plugin between states. Any
// hook failure parks the plugin in ERROR.
func (m *Manager) transition(ctx context.Context, name string, from State, to State, hookName string, hook func(Plugin) error) error {
	m.mu.Lock()
	rec, ok := m.plugins[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: plugin %q", errs.ErrNotFound, name)
	}
	if rec.state != from {
		state := rec.state
		m.mu.Unlock()
		return fmt.Errorf("%w: plugin %q is %s, expected %s", errs.ErrPluginLifecycle, name, state, from)
	}
	p := rec.plugin
	m.mu.Unlock()

	if err := hook(p); err != nil {
		wrapped := fmt.Errorf("%w: %s %s: %v", errs.ErrPluginLifecycle, name, hookName, err)
		m.mu.Lock()
		rec.state = StateError
		rec.lastErr = wrapped
		m.mu.Unlock()
		return wrapped
	}

	m.mu.Lock()
	rec.state = to
	m.mu.Unlock()
	return nil
}

// StartPlugin moves a LOADED plugin to STARTED.
func (m *Manager) StartPlugin(ctx context.Context, name string) error {
	err := m.transition(ctx, name, StateLoaded, StateStarted, "on_start", func(p Plugin) error {
		return p.OnStart(ctx)
	})
	if err == nil {
		m.logger.Info("plugin started", "plugin", name)
	}
	return err
}

// StopPlugin moves a STARTED plugin to STOPPED.
func (m *Manager) StopPlugin(ctx context.Context, name string) error {
	err := m.transition(ctx, name, StateStarted, StateStopped, "on_stop", func(p Plugin) error {
		return p.OnStop(ctx)
	})
	if err == nil {
		m.logger.Info("plugin stopped", "plugin", name)
	}
	return err
}

// UnloadPlugin stops a STARTED plugin, runs OnUnload, and removes it. After
// OnUnload the plugin must have released every service, subscription, and
// HTTP contract it created; the HTTP registry is swept by owner as a
// backstop.
func (m *Manager) UnloadPlugin(ctx context.Context, name string) error {
	m.mu.Lock()
	rec, ok := m.plugins[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: plugin %q", errs.ErrNotFound, name)
	}
	state := rec.state
	m.mu.Unlock()

	if state == StateError {
		return fmt.Errorf("%w: plugin %q is in ERROR and cannot be unloaded this run", errs.ErrPluginLifecycle, name)
	}
	if state == StateStarted {
		if err := m.StopPlugin(ctx, name); err != nil {
			return err
		}
	}

	m.mu.Lock()
	p := rec.plugin
	m.mu.Unlock()

	if err := p.OnUnload(ctx); err != nil {
		wrapped := fmt.Errorf("%w: %s on_unload: %v", errs.ErrPluginLifecycle, name, err)
		m.mu.Lock()
		rec.state = StateError
		rec.lastErr = wrapped
		m.mu.Unlock()
		return wrapped
	}

	if m.host != nil {
		m.host.HTTP().Clear(name)
	}

	m.mu.Lock()
	delete(m.plugins, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	m.logger.Info("plugin unloaded", "plugin", name)
	return nil
}

// StartAll starts every LOADED plugin in registration order. One plugin's
// start failure is logged and does not stop the batch.
func (m *Manager) StartAll(ctx context.Context) {
	for _, name := range m.List() {
		if m.StateOf(name) != StateLoaded {
			continue
		}
		if err := m.StartPlugin(ctx, name); err != nil {
			m.logger.Error("plugin failed to start", "plugin", name, "error", err)
		}
	}
}

// StopAll stops every STARTED plugin in reverse registration order.
func (m *Manager) StopAll(ctx context.Context) {
	names := m.List()
	for i := len(names) - 1; i >= 0; i-- {
		if m.StateOf(names[i]) != StateStarted {
			continue
		}
		if err := m.StopPlugin(ctx, names[i]); err != nil {
			m.logger.Error("plugin failed to stop", "plugin", names[i], "error", err)
		}
	}
}

// AutoLoad discovers the plugin directory and loads the batch in dependency
// order. Individual load failures are logged and skipped.
func (m *Manager) AutoLoad(ctx context.Context, dir string) error {
	batch, err := m.Discover(dir)
	if err != nil {
		return err
	}
	for _, d := range m.sortByDependencies(batch) {
		if err := m.Load(ctx, d); err != nil {
			m.logger.Error("plugin failed to load", "plugin", d.Manifest.Name, "error", err)
		}
	}
	return nil
}

// List returns loaded plugin names in registration order.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// StateOf returns a plugin's state, or StateUnloaded for unknown names.
func (m *Manager) StateOf(name string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.plugins[name]
	if !ok {
		return StateUnloaded
	}
	return rec.state
}

// ManifestOf returns a plugin's manifest.
func (m *Manager) ManifestOf(name string) (Manifest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.plugins[name]
	if !ok {
		return Manifest{}, false
	}
	return rec.manifest, true
}

// LastError returns the error that parked a plugin in ERROR, if any.
func (m *Manager) LastError(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.plugins[name]
	if !ok {
		return nil
	}
	return rec.lastErr
}

// Len returns the number of managed plugins.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.plugins)
}

// States returns a snapshot of every plugin's state.
func (m *Manager) States() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]State, len(m.plugins))
	for name, rec := range m.plugins {
		out[name] = rec.state
	}
	return out
}
