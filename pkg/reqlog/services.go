package reqlog

import (
	"context"
	"fmt"

	"github.com/hearthd/hearthd/pkg/kernel/errs"
	"github.com/hearthd/hearthd/pkg/services"
)

// Service names registered by the request logger.
const (
	ServiceLog                = "request_logger.log"
	ServiceSetRequestMetadata = "request_logger.set_request_metadata"
	ServiceListRequests       = "request_logger.list_requests"
	ServiceGetRequestLogs     = "request_logger.get_request_logs"
)

// RegisterServices wires the store's operations into the service registry.
func (s *Store) RegisterServices(reg *services.Registry) error {
	handlers := map[string]services.Handler{
		ServiceLog:                s.logService,
		ServiceSetRequestMetadata: s.setMetadataService,
		ServiceListRequests:       s.ListHandler,
		ServiceGetRequestLogs:     s.GetLogsHandler,
	}
	for name, h := range handlers {
		if err := reg.Register(name, h); err != nil {
			return err
		}
	}
	return nil
}

// logService appends a log entry. Positional: operation_id, level, message.
// Remaining keyword arguments become the entry context.
func (s *Store) logService(ctx context.Context, args services.Args) (any, error) {
	if len(args.Positional) < 3 {
		return nil, fmt.Errorf("%w: log needs operation_id, level, message", errs.ErrInvalidInput)
	}
	opID, ok1 := args.Positional[0].(string)
	level, ok2 := args.Positional[1].(string)
	message, ok3 := args.Positional[2].(string)
	if !ok1 || !ok2 || !ok3 || opID == "" {
		return nil, fmt.Errorf("%w: log arguments must be non-empty strings", errs.ErrInvalidInput)
	}
	s.Log(opID, level, message, args.Keyword)
	return nil, nil
}

// setMetadataService stores request and optional response descriptors.
func (s *Store) setMetadataService(ctx context.Context, args services.Args) (any, error) {
	if len(args.Positional) < 2 {
		return nil, fmt.Errorf("%w: set_request_metadata needs operation_id and request_meta", errs.ErrInvalidInput)
	}
	opID, ok1 := args.Positional[0].(string)
	requestMeta, ok2 := args.Positional[1].(map[string]any)
	if !ok1 || !ok2 || opID == "" {
		return nil, fmt.Errorf("%w: set_request_metadata arguments malformed", errs.ErrInvalidInput)
	}
	var responseMeta map[string]any
	if len(args.Positional) > 2 {
		responseMeta, _ = args.Positional[2].(map[string]any)
	}
	s.SetRequestMetadata(opID, requestMeta, responseMeta)
	return nil, nil
}

// ListHandler returns operations newest-first. Keyword: limit, offset.
// Exported so admin modules can wrap it with a scope check.
func (s *Store) ListHandler(ctx context.Context, args services.Args) (any, error) {
	limit := intArg(args.Keyword["limit"], 50)
	offset := intArg(args.Keyword["offset"], 0)
	return s.List(limit, offset), nil
}

// GetLogsHandler returns one operation's full trace. Exported so admin
// modules can wrap it with a scope check.
func (s *Store) GetLogsHandler(ctx context.Context, args services.Args) (any, error) {
	if len(args.Positional) < 1 {
		return nil, fmt.Errorf("%w: get_request_logs needs operation_id", errs.ErrInvalidInput)
	}
	opID, ok := args.Positional[0].(string)
	if !ok || opID == "" {
		return nil, fmt.Errorf("%w: operation_id must be a non-empty string", errs.ErrInvalidInput)
	}
	op, found := s.Get(opID)
	if !found {
		return nil, fmt.Errorf("%w: operation %q", errs.ErrNotFound, opID)
	}
	return op, nil
}

// intArg coerces a variant keyword argument to int with a default.
func intArg(v any, def int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		var parsed int
		if _, err := fmt.Sscanf(n, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return def
}
