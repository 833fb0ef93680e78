// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package admission

import (
	"strings"
	"time"

	"github.com/lywaf/lywaf/internal/store"
)

// DefaultBanTTL is the default ban duration.
const DefaultBanTTL = 10 * time.Minute

// BanRecord is a ban record.
type BanRecord struct {
	Reason string
}

// BanList tracks banned client IPs in an expiring store, modeling the
// global mutable ban-counter state as an explicit, process-scoped registry
// rather than package-level variables.
type BanList struct {
	store *store.Store
	ttl   time.Duration
}

// NewBanList wraps s with the given default TTL (DefaultBanTTL if ttl <= 0).
func NewBanList(s *store.Store, ttl time.Duration) *BanList {
	if ttl <= 0 {
		ttl = DefaultBanTTL
	}
	return &BanList{store: s, ttl: ttl}
}

// Ban records clientIP as banned for the configured TTL.
func (b *BanList) Ban(clientIP, reason string) {
	b.store.AddOrUpdate("ban:"+clientIP, BanRecord{Reason: reason}, b.ttl)
}

// Check returns the ban record for clientIP, if any and not expired.
func (b *BanList) Check(clientIP string) (BanRecord, bool) {
	v, ok := b.store.TryGet("ban:" + clientIP)
	if !ok {
		return BanRecord{}, false
	}
	rec, ok := v.(BanRecord)
	return rec, ok
}

// Unban removes any ban on clientIP.
func (b *BanList) Unban(clientIP string) {
	b.store.Remove("ban:" + clientIP)
}

// List returns every currently-banned client IP and its reason, for the
// admin API's ban-list listing endpoint.
func (b *BanList) List() map[string]string {
	out := make(map[string]string)
	for k, v := range b.store.Snapshot() {
		ip, ok := strings.CutPrefix(k, "ban:")
		if !ok {
			continue
		}
		if rec, ok := v.(BanRecord); ok {
			out[ip] = rec.Reason
		}
	}
	return out
}
