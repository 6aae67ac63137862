package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type registryEntry[T any] struct {
	value    T
	lastSeen time.Time
}

// SessionRegistry keeps in-memory sessions keyed by id and expires them
// after an idle TTL.
type SessionRegistry[T any] struct {
	mu      sync.Mutex
	kind    string
	ttl     time.Duration
	items   map[string]*registryEntry[T]
	onEvict func(id string, value T)
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewSessionRegistry builds a registry. onEvict runs for every entry that is
// removed, whether by Delete or by expiry, after the registry lock is released.
func NewSessionRegistry[T any](kind string, ttl time.Duration, onEvict func(string, T), metrics *MetricsService, logger *zap.Logger) *SessionRegistry[T] {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionRegistry[T]{
		kind:    kind,
		ttl:     ttl,
		items:   make(map[string]*registryEntry[T]),
		onEvict: onEvict,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Put stores value under id.
func (r *SessionRegistry[T]) Put(id string, value T) {
	r.mu.Lock()
	r.items[id] = &registryEntry[T]{value: value, lastSeen: r.now()}
	count := len(r.items)
	r.mu.Unlock()
	r.metrics.SetActiveSessions(r.kind, count)
}

// Get returns the value and refreshes its idle timer.
func (r *SessionRegistry[T]) Get(id string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.items[id]
	if !ok || r.expired(entry) {
		var zero T
		return zero, false
	}
	entry.lastSeen = r.now()
	return entry.value, true
}

// Delete removes id and reports whether it existed.
func (r *SessionRegistry[T]) Delete(id string) bool {
	r.mu.Lock()
	entry, ok := r.items[id]
	delete(r.items, id)
	count := len(r.items)
	r.mu.Unlock()
	if !ok {
		return false
	}
	r.metrics.SetActiveSessions(r.kind, count)
	if r.onEvict != nil {
		r.onEvict(id, entry.value)
	}
	return true
}

// Len returns the number of live entries.
func (r *SessionRegistry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Sweep evicts expired entries and returns how many were removed.
func (r *SessionRegistry[T]) Sweep() int {
	r.mu.Lock()
	evicted := make(map[string]T)
	for id, entry := range r.items {
		if r.expired(entry) {
			evicted[id] = entry.value
			delete(r.items, id)
		}
	}
	count := len(r.items)
	r.mu.Unlock()

	r.metrics.SetActiveSessions(r.kind, count)
	for id, value := range evicted {
		if r.onEvict != nil {
			r.onEvict(id, value)
		}
	}
	if len(evicted) > 0 {
		r.logger.Info("expired sessions swept", zap.String("kind", r.kind), zap.Int("evicted", len(evicted)))
	}
	return len(evicted)
}

// Run sweeps on every interval tick until ctx is cancelled.
func (r *SessionRegistry[T]) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *SessionRegistry[T]) expired(entry *registryEntry[T]) bool {
	return r.now().Sub(entry.lastSeen) > r.ttl
}
