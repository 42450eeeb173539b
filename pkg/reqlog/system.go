package reqlog

import (
	"context"

	"github.com/google/uuid"
)

// WithSystemOperation opens a traceable operation scope for background work
// that no HTTP request triggered: device sync, token refresh, status
// polling. It generates a fresh operation id, marks the operation with
// origin "system", emits operation.start, runs fn, and emits operation.ok or
// operation.error. The previous operation id, if any, is untouched outside
// the derived context.
func (s *Store) WithSystemOperation(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	opID := uuid.NewString()
	opCtx := WithOperationID(ctx, opID)

	s.SetOrigin(opID, OriginSystem)
	s.Log(opID, "info", "operation.start", map[string]any{"name": name})

	err := fn(opCtx)
	if err != nil {
		s.Log(opID, "error", "operation.error", map[string]any{"name": name, "error": err.Error()})
		return err
	}
	s.Log(opID, "info", "operation.ok", map[string]any{"name": name})
	return nil
}
