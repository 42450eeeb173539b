// Package services provides the named-callable registry that is the unit of
// plugin-to-plugin RPC. Service handlers share a uniform variant-typed
// signature; strongly-typed services are built on top by marshalling at the
// edges. The registry performs no authorization: that happens at the HTTP
// boundary before Call is invoked.
package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hearthd/hearthd/pkg/kernel/errs"
)

// Args carries the variant-typed arguments of one call: ordered positional
// values followed by a keyword map. Both may be empty.
type Args struct {
	Positional []any
	Keyword    map[string]any
}

// Handler is the uniform service signature.
type Handler func(ctx context.Context, args Args) (any, error)

// Middleware wraps a handler at registration time. Hooks may be nil.
type Middleware struct {
	// Before runs before the handler with the call arguments.
	Before func(ctx context.Context, name string, args Args)

	// After runs after a successful handler with its result.
	After func(ctx context.Context, name string, result any)

	// OnError runs when the handler returns an error, before the error is
	// propagated to the caller.
	OnError func(ctx context.Context, name string, err error)
}

// entry is one registered service.
type entry struct {
	handler    Handler
	deprecated bool
}

// Registry maps dotted service names to handlers. Mutations are serialized
// under a single mutex; a call resolves the handler under the mutex and
// invokes it outside, so unrelated services never block each other.
type Registry struct {
	mu             sync.Mutex
	services       map[string]*entry
	defaultTimeout time.Duration // zero disables the default bound
}

// NewRegistry creates a registry. A non-zero defaultTimeout bounds every
// Call; CallWithTimeout overrides it per call.
func NewRegistry(defaultTimeout time.Duration) *Registry {
	return &Registry{
		services:       make(map[string]*entry),
		defaultTimeout: defaultTimeout,
	}
}

// VersionedName appends a version suffix to a service name when version is
// non-empty. Consumers call by the full versioned name; the registry does
// not route between versions.
func VersionedName(name, version string) string {
	if version == "" {
		return name
	}
	return name + "." + version
}

// Register stores handler under name. Duplicate names are a conflict.
func (r *Registry) Register(name string, handler Handler) error {
	return r.RegisterVersion(name, handler, "")
}

// RegisterVersion stores handler under name plus a version suffix.
func (r *Registry) RegisterVersion(name string, handler Handler, version string) error {
	if name == "" {
		return fmt.Errorf("%w: service name must be non-empty", errs.ErrInvalidInput)
	}
	if handler == nil {
		return fmt.Errorf("%w: service handler must be non-nil", errs.ErrInvalidInput)
	}
	full := VersionedName(name, version)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.services[full]; exists {
		return fmt.Errorf("%w: service %q already registered", errs.ErrConflict, full)
	}
	r.services[full] = &entry{handler: handler}
	return nil
}

// RegisterWithMiddleware composes the middleware chain around handler and
// registers the result. The first middleware in the slice is outermost.
func (r *Registry) RegisterWithMiddleware(name string, handler Handler, mws []Middleware) error {
	wrapped := handler
	for i := len(mws) - 1; i >= 0; i-- {
		wrapped = wrap(name, wrapped, mws[i])
	}
	return r.Register(name, wrapped)
}

func wrap(name string, next Handler, mw Middleware) Handler {
	return func(ctx context.Context, args Args) (any, error) {
		if mw.Before != nil {
			mw.Before(ctx, name, args)
		}
		result, err := next(ctx, args)
		if err != nil {
			if mw.OnError != nil {
				mw.OnError(ctx, name, err)
			}
			return nil, err
		}
		if mw.After != nil {
			mw.After(ctx, name, result)
		}
		return result, nil
	}
}

// Unregister removes a service. Removing an absent name is a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.services, name)
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.services[name]
	return ok
}

// List returns all registered service names, sorted.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.services))
	for n := range r.services {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered services.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.services)
}

// Call invokes the named service, bounded by the default timeout when one is
// configured. Errors from the service are propagated verbatim.
func (r *Registry) Call(ctx context.Context, name string, args Args) (any, error) {
	return r.call(ctx, name, args, r.defaultTimeout)
}

// CallWithTimeout invokes the named service bounded by timeout, overriding
// the registry default.
func (r *Registry) CallWithTimeout(ctx context.Context, name string, args Args, timeout time.Duration) (any, error) {
	return r.call(ctx, name, args, timeout)
}

func (r *Registry) call(ctx context.Context, name string, args Args, timeout time.Duration) (any, error) {
	r.mu.Lock()
	e, ok := r.services[name]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: service %q", errs.ErrNotFound, name)
	}

	if timeout <= 0 {
		return e.handler(ctx, args)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := e.handler(callCtx, args)
		done <- outcome{result, err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-callCtx.Done():
		// The handler received cancellation through callCtx; the call is
		// reported as timed out regardless of how it cleans up.
		return nil, fmt.Errorf("%w: service %q exceeded %s", errs.ErrTimeout, name, timeout)
	}
}

// Clear removes every service.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services = make(map[string]*entry)
}

// Versions returns the version suffixes registered for name, sorted. A
// service registered without a version contributes the empty string.
func (r *Registry) Versions(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var versions []string
	if _, ok := r.services[name]; ok {
		versions = append(versions, "")
	}
	prefix := name + "."
	for n := range r.services {
		if len(n) > len(prefix) && n[:len(prefix)] == prefix {
			versions = append(versions, n[len(prefix):])
		}
	}
	sort.Strings(versions)
	return versions
}

// MarkDeprecated flags a service (optionally a specific version) as
// deprecated. The flag is advisory: calls are not blocked.
func (r *Registry) MarkDeprecated(name, version string) error {
	full := VersionedName(name, version)

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.services[full]
	if !ok {
		return fmt.Errorf("%w: service %q", errs.ErrNotFound, full)
	}
	e.deprecated = true
	return nil
}

// IsDeprecated reports the deprecation flag of a service.
func (r *Registry) IsDeprecated(name, version string) bool {
	full := VersionedName(name, version)

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.services[full]
	return ok && e.deprecated
}
