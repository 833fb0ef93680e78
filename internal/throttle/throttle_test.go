// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package throttle

import (
	"testing"
	"time"

	"github.com/lywaf/lywaf/internal/clock"
	"github.com/lywaf/lywaf/internal/store"
	"github.com/stretchr/testify/assert"
)

func newTestThrottle(fc *clock.Fake) (*Throttle, *store.Store) {
	s := store.New(store.WithClock(fc))
	th := New(s, 100, time.Second, time.Minute).WithClock(fc)
	return th, s
}

func TestAllocTokenGrantsUpToCapacity(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	th, _ := newTestThrottle(fc)

	got := th.AllocToken("c1", 40)
	assert.Equal(t, int64(40), got)

	got = th.AllocToken("c1", 40)
	assert.Equal(t, int64(40), got)

	// Only 20 left in the bucket; the request for 40 is capped.
	got = th.AllocToken("c1", 40)
	assert.Equal(t, int64(20), got)
}

func TestAllocTokenDoesNotRefillBeforeQuarterPeriod(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	th, _ := newTestThrottle(fc)

	th.AllocToken("c1", 100)
	fc.Advance(100 * time.Millisecond) // well under period/4 == 250ms

	got := th.AllocToken("c1", 10)
	assert.Equal(t, int64(0), got)
}

func TestAllocTokenRefillsAfterQuarterPeriod(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	th, _ := newTestThrottle(fc)

	th.AllocToken("c1", 100)
	fc.Advance(500 * time.Millisecond) // half the period elapsed

	got := th.AllocToken("c1", 100)
	// Roughly half the capacity refilled; never more than capacity.
	assert.True(t, got > 0 && got <= 50, "expected a partial refill, got %d", got)
}

func TestAllocTokenRefillCapsAtCapacity(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	th, _ := newTestThrottle(fc)

	th.AllocToken("c1", 10)
	fc.Advance(10 * time.Second) // far past a full period

	got := th.AllocToken("c1", 100)
	assert.Equal(t, int64(100), got)
}

func TestAllocTokenPerClientIsolation(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	th, _ := newTestThrottle(fc)

	th.AllocToken("a", 100)
	got := th.AllocToken("b", 100)
	assert.Equal(t, int64(100), got)
}

func TestRetryBackoffIsQuarterPeriod(t *testing.T) {
	th := New(nil, 0, 0, 0)
	assert.Equal(t, DefaultPeriod/4, th.RetryBackoff())
}

func TestNewAppliesDefaults(t *testing.T) {
	th := New(nil, 0, 0, 0)
	assert.Equal(t, int64(DefaultCapacity), th.capacity)
	assert.Equal(t, DefaultPeriod, th.period)
	assert.Equal(t, 10*time.Minute, th.ttl)
}
