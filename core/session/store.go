package session

import (
	"context"
	"sync"
	"time"
)

// Store holds at most one value per key.
type Store[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[V]
	locks   map[K]*keyLock
	now     func() time.Time
}

type entry[V any] struct {
	value     V
	touchedAt time.Time
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Option customises a Store.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// New constructs an empty in-memory Store.
func New[K comparable, V any](opts ...Option) *Store[K, V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[K, V]{
		entries: make(map[K]*entry[V]),
		locks:   make(map[K]*keyLock),
		now:     o.now,
	}
}

// Do runs fn with exclusive access to key. Concurrent calls for the same key
// run one after another in arrival order of the lock; other keys proceed.
func (s *Store[K, V]) Do(key K, fn func(tx *Tx[K, V]) error) error {
	l := s.acquire(key)
	defer s.release(key, l)
	return fn(&Tx[K, V]{store: s, key: key})
}

// Len returns the number of stored values.
func (s *Store[K, V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes values that were not touched within ttl and returns their keys.
// Each expired key is locked before removal so in-flight work finishes first.
func (s *Store[K, V]) Sweep(ttl time.Duration) []K {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	cutoff := s.now().Add(-ttl)
	var candidates []K
	for k, e := range s.entries {
		if e.touchedAt.Before(cutoff) {
			candidates = append(candidates, k)
		}
	}
	s.mu.Unlock()

	var expired []K
	for _, k := range candidates {
		_ = s.Do(k, func(tx *Tx[K, V]) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			e, ok := s.entries[k]
			if !ok || !e.touchedAt.Before(s.now().Add(-ttl)) {
				return nil
			}
			delete(s.entries, k)
			expired = append(expired, k)
			return nil
		})
	}
	return expired
}

// RunSweeper calls Sweep every interval until ctx is done. onExpire, when set,
// receives the keys removed by each pass.
func (s *Store[K, V]) RunSweeper(ctx context.Context, ttl, interval time.Duration, onExpire func([]K)) {
	if ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = ttl / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if expired := s.Sweep(ttl); len(expired) > 0 && onExpire != nil {
				onExpire(expired)
			}
		}
	}
}

func (s *Store[K, V]) acquire(key K) *keyLock {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return l
}

func (s *Store[K, V]) release(key K, l *keyLock) {
	l.mu.Unlock()

	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, key)
	}
	s.mu.Unlock()
}

// Tx is the view of a single locked key. It is only valid inside Do.
type Tx[K comparable, V any] struct {
	store *Store[K, V]
	key   K
}

// Key returns the locked key.
func (tx *Tx[K, V]) Key() K {
	return tx.key
}

// Get returns the stored value, if any.
func (tx *Tx[K, V]) Get() (V, bool) {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[tx.key]; ok {
		return e.value, true
	}
	var zero V
	return zero, false
}

// Put stores v and marks the key as recently used.
func (tx *Tx[K, V]) Put(v V) {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[tx.key] = &entry[V]{value: v, touchedAt: s.now()}
}

// Reset discards whatever is stored for the key and stores v as a brand new value.
// It reports whether an older value was dropped.
func (tx *Tx[K, V]) Reset(v V) bool {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.entries[tx.key]
	s.entries[tx.key] = &entry[V]{value: v, touchedAt: s.now()}
	return existed
}

// Delete removes the value and reports whether there was one.
func (tx *Tx[K, V]) Delete() bool {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.entries[tx.key]
	delete(s.entries, tx.key)
	return existed
}
