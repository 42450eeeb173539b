package reqlog

import (
	"sync"
	"time"
)

// Capacity defaults.
const (
	DefaultMaxOperations = 1000
	maxEntriesPerOp      = 500
)

// Origins recorded in operation metadata.
const (
	OriginHTTP   = "http"
	OriginSystem = "system"
)

// Entry is one log line within an operation.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
}

// Operation is the trace of one request or one background job.
type Operation struct {
	ID           string         `json:"operation_id"`
	Origin       string         `json:"origin"`
	StartedAt    time.Time      `json:"started_at"`
	RequestMeta  map[string]any `json:"request,omitempty"`
	ResponseMeta map[string]any `json:"response,omitempty"`
	Entries      []Entry        `json:"entries"`
}

// Store keeps the most recent operations in memory. A FIFO of operation ids
// bounds the total; the oldest operation is evicted when a new one would
// exceed the cap.
type Store struct {
	mu      sync.Mutex
	ops     map[string]*Operation
	order   []string
	maxOps  int
	dropped uint64
}

// NewStore creates a store holding at most maxOps operations. Zero or
// negative means DefaultMaxOperations.
func NewStore(maxOps int) *Store {
	if maxOps <= 0 {
		maxOps = DefaultMaxOperations
	}
	return &Store{
		ops:    make(map[string]*Operation),
		maxOps: maxOps,
	}
}

// ensureLocked returns the operation for id, allocating and enqueueing it on
// first sight. Caller holds s.mu.
func (s *Store) ensureLocked(id, origin string) *Operation {
	if op, ok := s.ops[id]; ok {
		return op
	}
	if len(s.order) >= s.maxOps {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.ops, oldest)
		s.dropped++
	}
	op := &Operation{
		ID:        id,
		Origin:    origin,
		StartedAt: time.Now().UTC(),
	}
	s.ops[id] = op
	s.order = append(s.order, id)
	return op
}

// Log appends an entry to an operation, allocating the operation if new.
// Entries beyond the per-operation cap are dropped.
func (s *Store) Log(operationID, level, message string, context map[string]any) {
	if operationID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	op := s.ensureLocked(operationID, OriginHTTP)
	if len(op.Entries) >= maxEntriesPerOp {
		return
	}
	op.Entries = append(op.Entries, Entry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Context:   context,
	})
}

// SetRequestMetadata records the request descriptor and, when non-nil, the
// response descriptor of an operation.
func (s *Store) SetRequestMetadata(operationID string, requestMeta, responseMeta map[string]any) {
	if operationID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	op := s.ensureLocked(operationID, OriginHTTP)
	if requestMeta != nil {
		op.RequestMeta = requestMeta
	}
	if responseMeta != nil {
		op.ResponseMeta = responseMeta
	}
}

// SetOrigin overrides the origin of an operation, allocating it if new.
func (s *Store) SetOrigin(operationID, origin string) {
	if operationID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked(operationID, origin).Origin = origin
}

// Get returns a snapshot of one operation.
func (s *Store) Get(operationID string) (Operation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[operationID]
	if !ok {
		return Operation{}, false
	}
	return snapshot(op), true
}

// List returns operations newest-first, paginated by limit and offset.
func (s *Store) List(limit, offset int) []Operation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	n := len(s.order)
	out := make([]Operation, 0, limit)
	for i := n - 1 - offset; i >= 0 && len(out) < limit; i-- {
		if op, ok := s.ops[s.order[i]]; ok {
			out = append(out, snapshot(op))
		}
	}
	return out
}

// Len returns the number of retained operations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Dropped returns how many operations have been evicted by the FIFO bound.
func (s *Store) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Clear drops every retained operation.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = make(map[string]*Operation)
	s.order = nil
}

// snapshot copies an operation so callers never share the store's slices.
func snapshot(op *Operation) Operation {
	out := *op
	out.Entries = make([]Entry, len(op.Entries))
	copy(out.Entries, op.Entries)
	return out
}
