// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package store implements the expiring key-value registry shared across
// the proxy core: a thread-safe map with per-entry absolute or sliding
// TTL, a background sweeper, and a typed atomic increment. It backs
// rate-limit counters, connection counts, the ban list, and the
// path-attribution cache.
package store

import (
	"sync"
	"time"

	"github.com/lywaf/lywaf/internal/clock"
	"github.com/lywaf/lywaf/internal/logging"
)

// entry is the store's internal representation of an expiring value.
// Exactly one of expiryAt/sliding is authoritative; both zero means no expiry.
type entry struct {
	value      any
	expiryAt   time.Time
	sliding    time.Duration
	lastAccess time.Time
}

func (e *entry) isExpired(now time.Time) bool {
	if e.sliding > 0 {
		return now.After(e.lastAccess.Add(e.sliding))
	}
	if !e.expiryAt.IsZero() {
		return now.After(e.expiryAt)
	}
	return false
}

// Event is published by the background sweeper.
type Event struct {
	Kind      string // "ItemExpired" | "CleanupCompleted"
	Key       string
	Removed   int
	Remaining int
	At        time.Time
}

// Store is a single-writer-locked expiring map. The zero value is not
// usable; construct with New.
type Store struct {
	mu     sync.Mutex
	items  map[string]*entry
	clk    clock.Clock
	logger *logging.Logger

	sweepInterval time.Duration
	stopCh        chan struct{}
	stopped       bool

	subs   []func(Event)
	subsMu sync.RWMutex
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithClock overrides the clock, for deterministic tests.
func WithClock(c clock.Clock) Option { return func(s *Store) { s.clk = c } }

// WithSweepInterval overrides the default 1-minute sweeper period (some
// maps want a longer 10 or 30 minute sweep).
func WithSweepInterval(d time.Duration) Option { return func(s *Store) { s.sweepInterval = d } }

// WithLogger attaches a logger for cleanup/debug output.
func WithLogger(l *logging.Logger) Option { return func(s *Store) { s.logger = l } }

// New constructs a Store and starts its background sweeper.
func New(opts ...Option) *Store {
	s := &Store{
		items:         make(map[string]*entry),
		clk:           clock.Real,
		sweepInterval: time.Minute,
		stopCh:        make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	go s.sweepLoop()
	return s
}

// Subscribe registers fn to receive every Event the store emits.
func (s *Store) Subscribe(fn func(Event)) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *Store) publish(ev Event) {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	for _, fn := range s.subs {
		fn(ev)
	}
}

// Close stops the background sweeper. Safe to call once.
func (s *Store) Close() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()
	close(s.stopCh)
}

func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	now := s.clk.Now()
	s.mu.Lock()
	var removed []string
	for k, e := range s.items {
		if e.isExpired(now) {
			removed = append(removed, k)
			delete(s.items, k)
		}
	}
	remaining := len(s.items)
	s.mu.Unlock()

	for _, k := range removed {
		s.publish(Event{Kind: "ItemExpired", Key: k, At: now})
	}
	s.publish(Event{Kind: "CleanupCompleted", Removed: len(removed), Remaining: remaining, At: now})
	if s.logger != nil && len(removed) > 0 {
		s.logger.Debug("store cleanup completed", "removed", len(removed), "remaining", remaining)
	}
}

// AddOrUpdate sets k to v with an absolute TTL. ttl <= 0 means no expiry.
func (s *Store) AddOrUpdate(k string, v any, ttl time.Duration) {
	now := s.clk.Now()
	e := &entry{value: v, lastAccess: now}
	if ttl > 0 {
		e.expiryAt = now.Add(ttl)
	}
	s.mu.Lock()
	s.items[k] = e
	s.mu.Unlock()
}

// AddOrUpdateSliding sets k to v with a sliding expiry window: every
// successful TryGet pushes the deadline forward by window.
func (s *Store) AddOrUpdateSliding(k string, v any, window time.Duration) {
	now := s.clk.Now()
	s.mu.Lock()
	s.items[k] = &entry{value: v, sliding: window, lastAccess: now}
	s.mu.Unlock()
}

// TryGet returns the value for k and true, unless absent or expired. An
// expired entry is removed inline. A sliding entry's lastAccess is bumped
// on a hit.
func (s *Store) TryGet(k string) (any, bool) {
	now := s.clk.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[k]
	if !ok {
		return nil, false
	}
	if e.isExpired(now) {
		delete(s.items, k)
		return nil, false
	}
	if e.sliding > 0 {
		e.lastAccess = now
	}
	return e.value, true
}

// GetOrInsertWith returns the current value for k, or computes it with f,
// stores it with the given ttl (<=0 means no expiry), and returns that.
func (s *Store) GetOrInsertWith(k string, f func() any, ttl time.Duration) any {
	now := s.clk.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.items[k]; ok && !e.isExpired(now) {
		if e.sliding > 0 {
			e.lastAccess = now
		}
		return e.value
	}
	v := f()
	e := &entry{value: v, lastAccess: now}
	if ttl > 0 {
		e.expiryAt = now.Add(ttl)
	}
	s.items[k] = e
	return v
}

// Number is the constraint for Incr's delta/init arguments.
type Number interface {
	~int | ~int32 | ~int64 | ~float32 | ~float64
}

// Incr atomically adds delta to the stored numeric value at k (creating it
// from init if absent), optionally setting ttl on creation, and returns the
// new value. Per, a type-coercion failure (the stored value is
// not the same numeric kind) returns the zero value rather than raising.
func Incr[T Number](s *Store, k string, delta T, init T, ttl time.Duration) T {
	now := s.clk.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[k]
	if !ok || e.isExpired(now) {
		nv := init + delta
		ne := &entry{value: nv, lastAccess: now}
		if ttl > 0 {
			ne.expiryAt = now.Add(ttl)
		}
		s.items[k] = ne
		return nv
	}

	cur, ok := e.value.(T)
	if !ok {
		var zero T
		return zero
	}
	nv := cur + delta
	e.value = nv
	if e.sliding > 0 {
		e.lastAccess = now
	}
	return nv
}

// ExtendExpiration pushes an absolute-TTL entry's deadline forward by d.
// No-op if the key is absent or has no absolute expiry.
func (s *Store) ExtendExpiration(k string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.items[k]; ok && !e.expiryAt.IsZero() {
		e.expiryAt = e.expiryAt.Add(d)
	}
}

// Expire shortens/extends an absolute-TTL entry's deadline by d relative to
// now (d negative expires it sooner).
func (s *Store) Expire(k string, d time.Duration) {
	now := s.clk.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.items[k]; ok {
		e.expiryAt = now.Add(d)
	}
}

// ExpireAt pins an entry's absolute deadline to at.
func (s *Store) ExpireAt(k string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.items[k]; ok {
		e.expiryAt = at
		e.sliding = 0
	}
}

// DelTTL clears any expiry on k, making it permanent until Remove.
func (s *Store) DelTTL(k string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.items[k]; ok {
		e.expiryAt = time.Time{}
		e.sliding = 0
	}
}

// Remove deletes k unconditionally.
func (s *Store) Remove(k string) {
	s.mu.Lock()
	delete(s.items, k)
	s.mu.Unlock()
}

// Snapshot returns a shallow copy of all non-expired key/value pairs.
func (s *Store) Snapshot() map[string]any {
	now := s.clk.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.items))
	for k, e := range s.items {
		if !e.isExpired(now) {
			out[k] = e.value
		}
	}
	return out
}

// DumpAndClear returns a snapshot and empties the store atomically.
func (s *Store) DumpAndClear() map[string]any {
	now := s.clk.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.items))
	for k, e := range s.items {
		if !e.isExpired(now) {
			out[k] = e.value
		}
	}
	s.items = make(map[string]*entry)
	return out
}

// FilterRemove deletes every key for which pred returns true, and returns
// the count removed.
func (s *Store) FilterRemove(pred func(key string, val any) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int
	for k, e := range s.items {
		if pred(k, e.value) {
			delete(s.items, k)
			removed++
		}
	}
	return removed
}

// DoLocked runs f holding the store's lock, after ensuring k exists
// (creating it via create if absent). f may read or mutate the returned
// value in place; callers must not call back into the Store for the same
// key from within f.
func (s *Store) DoLocked(k string, create func() any, f func(v any) any) {
	now := s.clk.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[k]
	if !ok || e.isExpired(now) {
		e = &entry{value: create(), lastAccess: now}
		s.items[k] = e
	}
	e.value = f(e.value)
	if e.sliding > 0 {
		e.lastAccess = now
	}
}

// DoLockedSliding is DoLocked with a sliding-window expiry applied to newly
// created entries: window <= 0 means no expiry, matching DoLocked. An
// existing entry's sliding window is left as it was set at creation.
func (s *Store) DoLockedSliding(k string, window time.Duration, create func() any, f func(v any) any) {
	now := s.clk.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[k]
	if !ok || e.isExpired(now) {
		e = &entry{value: create(), lastAccess: now, sliding: window}
		s.items[k] = e
	}
	e.value = f(e.value)
	if e.sliding > 0 {
		e.lastAccess = now
	}
}

// Len returns the number of entries currently stored, including any not
// yet swept.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
