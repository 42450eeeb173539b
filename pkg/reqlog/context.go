// Package reqlog correlates everything one request (or one background job)
// does under a single operation id: an in-memory trace store, HTTP
// middleware that assigns the id, kernel services for the read side, and a
// logged outbound HTTP client that attaches the id to every call it makes.
package reqlog

import (
	"context"
)

// HeaderRequestID carries the operation id on the wire, both inbound and
// outbound.
const HeaderRequestID = "X-Request-ID"

type operationIDKey struct{}

// WithOperationID attaches an operation id to ctx.
func WithOperationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, operationIDKey{}, id)
}

// OperationIDFrom retrieves the operation id, or "" when the context is
// outside any operation scope.
func OperationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(operationIDKey{}).(string)
	return id
}
