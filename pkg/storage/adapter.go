// Package storage defines the persistence port used by the kernel and the
// validating facade plugins talk to. Records are (namespace, key) pairs
// holding JSON objects; adapters supply the actual persistence.
package storage

import "context"

// Adapter is the persistence port. Implementations must be safe under
// concurrent callers.
type Adapter interface {
	// Get returns the value stored under (namespace, key), or (nil, false)
	// when absent.
	Get(ctx context.Context, namespace, key string) (map[string]any, bool, error)

	// Set stores value under (namespace, key), replacing any previous value.
	Set(ctx context.Context, namespace, key string, value map[string]any) error

	// Delete removes (namespace, key). Deleting an absent record is not an
	// error.
	Delete(ctx context.Context, namespace, key string) error

	// ListKeys returns all keys in a namespace, in no particular order.
	ListKeys(ctx context.Context, namespace string) ([]string, error)

	// ClearNamespace removes every record in a namespace.
	ClearNamespace(ctx context.Context, namespace string) error

	// BatchSet stores several records, atomically when the backend supports
	// transactions.
	BatchSet(ctx context.Context, namespace string, values map[string]map[string]any) error

	// Transaction runs fn with a transactional view of the adapter. All
	// writes issued through the view commit together or not at all.
	Transaction(ctx context.Context, fn func(tx Adapter) error) error

	// Close releases the adapter's resources.
	Close() error

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
