// Package errs defines the error kinds shared across the kernel. The HTTP
// gateway is the single place that translates these into status codes; every
// other layer either handles an error or passes it up unchanged.
package errs

import "errors"

var (
	// ErrInvalidInput marks malformed caller input: non-string namespace or
	// key, a storage value that is not a JSON object, empty credentials.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks an absent service, plugin, or HTTP endpoint. Absent
	// storage keys are returned as absence, not as this error.
	ErrNotFound = errors.New("not found")

	// ErrUnauthenticated marks missing or invalid credentials at a protected
	// endpoint.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden marks valid credentials with insufficient scope.
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited marks a request rejected by the rate limiter.
	ErrRateLimited = errors.New("rate limited")

	// ErrTimeout marks a service call that exceeded its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrConflict marks a duplicate plugin name, duplicate (method, path)
	// endpoint, or duplicate service name.
	ErrConflict = errors.New("conflict")

	// ErrDependencyMissing marks a plugin whose declared dependency is not
	// loaded. Surfaced at load time only.
	ErrDependencyMissing = errors.New("dependency missing")

	// ErrAdapterFailure wraps storage I/O failures.
	ErrAdapterFailure = errors.New("storage adapter failure")

	// ErrPluginLifecycle wraps a failure inside a plugin lifecycle hook.
	ErrPluginLifecycle = errors.New("plugin lifecycle failure")
)
