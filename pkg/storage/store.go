package storage

import (
	"context"
	"fmt"

	"github.com/hearthd/hearthd/pkg/kernel/errs"
)

// Store is the validating facade over an Adapter. It enforces non-empty
// namespace and key and wraps adapter failures in errs.ErrAdapterFailure.
// Values are JSON objects; scalars and arrays are rejected at the API
// boundary by the map type.
type Store struct {
	adapter Adapter
}

// NewStore wraps an adapter.
func NewStore(adapter Adapter) *Store {
	return &Store{adapter: adapter}
}

func validate(namespace, key string) error {
	if namespace == "" {
		return fmt.Errorf("%w: namespace must be a non-empty string", errs.ErrInvalidInput)
	}
	if key == "" {
		return fmt.Errorf("%w: key must be a non-empty string", errs.ErrInvalidInput)
	}
	return nil
}

// Get returns the value under (namespace, key). Absence is reported via the
// bool, not as an error.
func (s *Store) Get(ctx context.Context, namespace, key string) (map[string]any, bool, error) {
	if err := validate(namespace, key); err != nil {
		return nil, false, err
	}
	v, ok, err := s.adapter.Get(ctx, namespace, key)
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %s.%s: %v", errs.ErrAdapterFailure, namespace, key, err)
	}
	return v, ok, nil
}

// Set stores value under (namespace, key).
func (s *Store) Set(ctx context.Context, namespace, key string, value map[string]any) error {
	if err := validate(namespace, key); err != nil {
		return err
	}
	if value == nil {
		return fmt.Errorf("%w: value must be a JSON object", errs.ErrInvalidInput)
	}
	if err := s.adapter.Set(ctx, namespace, key, value); err != nil {
		return fmt.Errorf("%w: set %s.%s: %v", errs.ErrAdapterFailure, namespace, key, err)
	}
	return nil
}

// Delete removes (namespace, key).
func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	if err := validate(namespace, key); err != nil {
		return err
	}
	if err := s.adapter.Delete(ctx, namespace, key); err != nil {
		return fmt.Errorf("%w: delete %s.%s: %v", errs.ErrAdapterFailure, namespace, key, err)
	}
	return nil
}

// ListKeys returns all keys in a namespace.
func (s *Store) ListKeys(ctx context.Context, namespace string) ([]string, error) {
	if namespace == "" {
		return nil, fmt.Errorf("%w: namespace must be a non-empty string", errs.ErrInvalidInput)
	}
	keys, err := s.adapter.ListKeys(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", errs.ErrAdapterFailure, namespace, err)
	}
	return keys, nil
}

// ClearNamespace removes every record in a namespace.
func (s *Store) ClearNamespace(ctx context.Context, namespace string) error {
	if namespace == "" {
		return fmt.Errorf("%w: namespace must be a non-empty string", errs.ErrInvalidInput)
	}
	if err := s.adapter.ClearNamespace(ctx, namespace); err != nil {
		return fmt.Errorf("%w: clear %s: %v", errs.ErrAdapterFailure, namespace, err)
	}
	return nil
}

// BatchSet stores several records in one namespace.
func (s *Store) BatchSet(ctx context.Context, namespace string, values map[string]map[string]any) error {
	if namespace == "" {
		return fmt.Errorf("%w: namespace must be a non-empty string", errs.ErrInvalidInput)
	}
	for key, value := range values {
		if key == "" {
			return fmt.Errorf("%w: key must be a non-empty string", errs.ErrInvalidInput)
		}
		if value == nil {
			return fmt.Errorf("%w: value for %q must be a JSON object", errs.ErrInvalidInput, key)
		}
	}
	if err := s.adapter.BatchSet(ctx, namespace, values); err != nil {
		return fmt.Errorf("%w: batch set %s: %v", errs.ErrAdapterFailure, namespace, err)
	}
	return nil
}

// Transaction runs fn against a transactional Store view.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	err := s.adapter.Transaction(ctx, func(tx Adapter) error {
		return fn(NewStore(tx))
	})
	if err != nil {
		return err
	}
	return nil
}

// Ping reports whether the backing store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.adapter.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping: %v", errs.ErrAdapterFailure, err)
	}
	return nil
}

// Close releases the adapter.
func (s *Store) Close() error {
	return s.adapter.Close()
}
