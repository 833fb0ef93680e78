// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package throttle implements the per-client response-body token-bucket
// throttle: a byte budget obtained from the expiring store, refilled
// lazily on each allocation rather than on a ticker.
package throttle

import (
	"time"

	"github.com/lywaf/lywaf/internal/clock"
	"github.com/lywaf/lywaf/internal/metrics"
	"github.com/lywaf/lywaf/internal/store"
)

// DefaultCapacity and DefaultPeriod are defaults: 1,000,000
// bytes per 1 second.
const (
	DefaultCapacity = 1_000_000
	DefaultPeriod   = time.Second
)

// ClientLimit is one client's token-bucket state.
type ClientLimit struct {
	Period     time.Duration
	Capacity   int64
	Left       int64
	LastRefill time.Time
}

// Throttle hands out byte allowances per client, backed by an expiring
// store so idle clients' state is swept automatically.
type Throttle struct {
	store    *store.Store
	clk      clock.Clock
	capacity int64
	period   time.Duration
	ttl      time.Duration

	// Collector receives a granted-bytes counter increment per AllocToken
	// call. Nil disables metrics emission.
	Collector *metrics.Collector
}

// New constructs a Throttle. capacity<=0 and period<=0 fall back to the
// spec defaults. ttl bounds how long an idle client's bucket lives in the
// store (it is refreshed as a sliding window on every access).
func New(s *store.Store, capacity int64, period, ttl time.Duration) *Throttle {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if period <= 0 {
		period = DefaultPeriod
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Throttle{store: s, clk: clock.Real, capacity: capacity, period: period, ttl: ttl}
}

// WithClock overrides the clock for tests.
func (t *Throttle) WithClock(c clock.Clock) *Throttle {
	t.clk = c
	return t
}

// AllocToken is alloc_token(n_bytes): returns how many of the
// requested bytes the caller may send right now. If the return is less than
// requested, the caller should pause up to Period/4 and retry.
func (t *Throttle) AllocToken(clientKey string, requested int64) int64 {
	now := t.clk.Now()
	var granted int64

	t.store.DoLockedSliding("throttle:"+clientKey, t.ttl,
		func() any {
			return &ClientLimit{Period: t.period, Capacity: t.capacity, Left: t.capacity, LastRefill: now}
		},
		func(v any) any {
			cl := v.(*ClientLimit)
			if now.Sub(cl.LastRefill) > cl.Period/4 {
				elapsed := now.Sub(cl.LastRefill)
				refill := int64(float64(elapsed) / float64(cl.Period) * float64(cl.Capacity))
				cl.Left += refill
				if cl.Left > cl.Capacity {
					cl.Left = cl.Capacity
				}
				cl.LastRefill = now
			}
			granted = min64(cl.Left, requested)
			cl.Left -= granted
			return cl
		},
	)
	if t.Collector != nil {
		t.Collector.RecordThrottleGrant(granted)
	}
	return granted
}

// RetryBackoff is the maximum pause a caller should take before retrying
// AllocToken after a short grant.
func (t *Throttle) RetryBackoff() time.Duration { return t.period / 4 }

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
