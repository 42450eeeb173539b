// Package httpreg holds the declarative catalog of HTTP contracts plugins
// register. The gateway materializes the catalog into live routes; the
// registry itself never serves traffic.
package httpreg

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hearthd/hearthd/pkg/kernel/errs"
)

// Endpoint is one declared HTTP contract. Path parameters use the {name}
// syntax and are passed to the service as ordered positional arguments.
type Endpoint struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Service     string `json:"service"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
	Deprecated  bool   `json:"deprecated,omitempty"`
}

// Registry stores endpoints and enforces (method, normalized path)
// uniqueness.
type Registry struct {
	mu        sync.Mutex
	endpoints []Endpoint
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// NormalizePath strips a trailing slash except at root.
func NormalizePath(path string) string {
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}

// Register validates and stores an endpoint. A non-empty version becomes a
// leading /vN path segment. Duplicate (method, path) pairs are a conflict.
func (r *Registry) Register(ep Endpoint) error {
	if ep.Method == "" {
		return fmt.Errorf("%w: endpoint method must be non-empty", errs.ErrInvalidInput)
	}
	if !strings.HasPrefix(ep.Path, "/") {
		return fmt.Errorf("%w: endpoint path must start with /", errs.ErrInvalidInput)
	}
	if ep.Service == "" {
		return fmt.Errorf("%w: endpoint service must be non-empty", errs.ErrInvalidInput)
	}

	ep.Method = strings.ToUpper(ep.Method)
	ep.Path = NormalizePath(ep.Path)
	if ep.Version != "" {
		version := ep.Version
		if !strings.HasPrefix(version, "v") {
			version = "v" + version
		}
		ep.Path = NormalizePath("/" + version + ep.Path)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.endpoints {
		if existing.Method == ep.Method && existing.Path == ep.Path {
			return fmt.Errorf("%w: endpoint %s %s already registered", errs.ErrConflict, ep.Method, ep.Path)
		}
	}
	r.endpoints = append(r.endpoints, ep)
	return nil
}

// List returns a snapshot of all endpoints.
func (r *Registry) List() []Endpoint {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Endpoint, len(r.endpoints))
	copy(out, r.endpoints)
	return out
}

// Len returns the number of registered endpoints.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.endpoints)
}

// ownerOf infers the owning plugin from the first dotted segment of a
// service name.
func ownerOf(service string) string {
	if i := strings.Index(service, "."); i > 0 {
		return service[:i]
	}
	return service
}

// Clear removes endpoints. With a plugin name it removes only that plugin's
// endpoints; with an empty name it removes everything.
func (r *Registry) Clear(pluginName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if pluginName == "" {
		r.endpoints = nil
		return
	}
	kept := r.endpoints[:0]
	for _, ep := range r.endpoints {
		if ownerOf(ep.Service) != pluginName {
			kept = append(kept, ep)
		}
	}
	r.endpoints = kept
}

// Versions returns the distinct versions registered for a service name,
// sorted.
func (r *Registry) Versions(service string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool)
	for _, ep := range r.endpoints {
		if ep.Service == service && ep.Version != "" {
			seen[ep.Version] = true
		}
	}
	versions := make([]string, 0, len(seen))
	for v := range seen {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}

// MarkDeprecated flags every endpoint of a service (optionally restricted to
// one version). Advisory only.
func (r *Registry) MarkDeprecated(service, version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := false
	for i := range r.endpoints {
		if r.endpoints[i].Service != service {
			continue
		}
		if version != "" && r.endpoints[i].Version != version {
			continue
		}
		r.endpoints[i].Deprecated = true
		found = true
	}
	if !found {
		return fmt.Errorf("%w: no endpoints for service %q", errs.ErrNotFound, service)
	}
	return nil
}

// IsDeprecated reports whether every endpoint of a service (and optional
// version) carries the deprecated flag.
func (r *Registry) IsDeprecated(service, version string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := false
	for _, ep := range r.endpoints {
		if ep.Service != service {
			continue
		}
		if version != "" && ep.Version != version {
			continue
		}
		if !ep.Deprecated {
			return false
		}
		found = true
	}
	return found
}
