// Package state provides the in-memory key/value store plugins use for
// coordination. Keys may carry an absolute expiration; expired entries are
// evicted lazily on read and by a background sweeper that runs only while
// TTL entries exist.
package state

import (
	"context"
	"sync"
	"time"
)

// DefaultSweepInterval is the coarse interval between sweeper passes.
const DefaultSweepInterval = 60 * time.Second

// entry holds a stored value with its optional expiration time.
type entry struct {
	value     any
	expiresAt time.Time // zero means no expiration
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Engine is a mutex-serialized in-memory map with per-key optional TTL.
type Engine struct {
	mu            sync.Mutex
	items         map[string]*entry
	sweepInterval time.Duration
	sweeping      bool
	stopSweep     chan struct{}
}

// NewEngine creates an empty state engine.
func NewEngine() *Engine {
	return &Engine{
		items:         make(map[string]*entry),
		sweepInterval: DefaultSweepInterval,
	}
}

// Get returns the value for key. An expired entry is evicted on access and
// reported as absent.
func (e *Engine) Get(ctx context.Context, key string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	it, ok := e.items[key]
	if !ok {
		return nil, false
	}
	if it.expired(time.Now()) {
		delete(e.items, key)
		return nil, false
	}
	return it.value, true
}

// Set stores a value without expiration.
func (e *Engine) Set(ctx context.Context, key string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.items[key] = &entry{value: value}
}

// SetWithTTL stores a value that expires after ttl. The first TTL entry
// starts the background sweeper.
func (e *Engine) SetWithTTL(ctx context.Context, key string, value any, ttl time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.items[key] = &entry{value: value, expiresAt: time.Now().Add(ttl)}

	if !e.sweeping {
		e.sweeping = true
		e.stopSweep = make(chan struct{})
		go e.sweepLoop(e.stopSweep)
	}
}

// Delete removes a key. Removing an absent key is a no-op.
func (e *Engine) Delete(ctx context.Context, key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.items, key)
}

// Exists reports whether key is present and not expired.
func (e *Engine) Exists(ctx context.Context, key string) bool {
	_, ok := e.Get(ctx, key)
	return ok
}

// Keys returns a snapshot of all live keys, in no particular order.
func (e *Engine) Keys(ctx context.Context) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	keys := make([]string, 0, len(e.items))
	for k, it := range e.items {
		if it.expired(now) {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

// Update stores every pair in values, without expiration.
func (e *Engine) Update(ctx context.Context, values map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k, v := range values {
		e.items[k] = &entry{value: v}
	}
}

// Clear removes all entries and stops the sweeper if it is running.
func (e *Engine) Clear(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.items = make(map[string]*entry)
	e.stopSweepLocked()
}

// Len returns the number of entries, including expired ones not yet swept.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.items)
}

// sweepLoop removes expired entries at a coarse interval. It terminates when
// no TTL entries remain or when stop is closed.
func (e *Engine) sweepLoop(stop chan struct{}) {
	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !e.sweepOnce() {
				return
			}
		}
	}
}

// sweepOnce evicts expired entries under the engine mutex. Returns false when
// no TTL entries remain, which self-terminates the sweeper.
func (e *Engine) sweepOnce() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	ttlRemaining := false
	for k, it := range e.items {
		if it.expiresAt.IsZero() {
			continue
		}
		if it.expired(now) {
			delete(e.items, k)
			continue
		}
		ttlRemaining = true
	}

	if !ttlRemaining {
		e.sweeping = false
		e.stopSweep = nil
	}
	return ttlRemaining
}

// stopSweepLocked terminates a running sweeper. Caller must hold e.mu.
func (e *Engine) stopSweepLocked() {
	if e.sweeping {
		close(e.stopSweep)
		e.sweeping = false
		e.stopSweep = nil
	}
}
