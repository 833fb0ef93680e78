// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package customdns implements the custom DNS override resolver: an
// exact+wildcard host map that short-circuits the system resolver for
// configured hosts, with a connect-callback contract an outbound HTTP
// client uses to dial either the overridden address or fall back to the
// system resolver.
package customdns

import (
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/lywaf/lywaf/internal/clock"
	"github.com/lywaf/lywaf/internal/logging"
	"github.com/lywaf/lywaf/internal/metrics"
	"github.com/lywaf/lywaf/internal/store"
	"golang.org/x/net/idna"
)

// SelectPolicy picks among an entry's resolved addresses.
type SelectPolicy string

const (
	RoundRobin SelectPolicy = "RoundRobin"
	Random     SelectPolicy = "Random"
)

// Entry is one exact or wildcard host override.
type Entry struct {
	Addresses   []string
	Policy      SelectPolicy
	TTLOverride time.Duration // < 0 means "unset, use the resolver's global default"
}

// Config is the full override map, replaced atomically on reload.
type Config struct {
	Exact           map[string]Entry // FQDN -> Entry
	Wildcard        map[string]Entry // parent domain (no leading label) -> Entry
	CacheTTLSeconds int
}

// Resolver answers resolve(host) against the current Config.
type Resolver struct {
	mu  sync.RWMutex
	cfg Config

	cache    *store.Store // parsed address lists, keyed by host+entry identity
	counters sync.Map     // match key -> *uint64, per-entry round-robin cursor

	clk    clock.Clock
	logger *logging.Logger

	// Collector receives a cache-lookup counter increment per Resolve call.
	// Nil disables metrics emission.
	Collector *metrics.Collector
}

// New constructs a Resolver. cache backs the parsed-address TTL cache.
func New(cfg Config, cache *store.Store, logger *logging.Logger) *Resolver {
	r := &Resolver{cache: cache, clk: clock.Real, logger: logger}
	r.Reload(cfg)
	return r
}

// Reload atomically replaces the exact/wildcard maps and clears the parsed
// address cache and round-robin counters.
func (r *Resolver) Reload(cfg Config) {
	if cfg.Exact == nil {
		cfg.Exact = map[string]Entry{}
	}
	if cfg.Wildcard == nil {
		cfg.Wildcard = map[string]Entry{}
	}

	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()

	if r.cache != nil {
		r.cache.DumpAndClear()
	}
	r.counters.Range(func(k, _ any) bool {
		r.counters.Delete(k)
		return true
	})
}

// Resolve looks up host against the configured overrides. ok is false when
// no override matches, or every configured address failed to parse — the
// caller should fall back to the system resolver.
func (r *Resolver) Resolve(host string) (net.IP, bool) {
	name := normalizeHost(host)

	r.mu.RLock()
	entry, matched, matchKey := r.lookup(name)
	ttlSeconds := r.cfg.CacheTTLSeconds
	r.mu.RUnlock()
	if !matched {
		return nil, false
	}

	addrs := r.parsedAddresses(matchKey, entry, ttlSeconds)
	if len(addrs) == 0 {
		return nil, false
	}

	idx := r.selectIndex(matchKey, entry.Policy, len(addrs))
	return addrs[idx], true
}

// lookup tries an exact match first, else strips the
// first label and looks up the remainder in wildcard.
func (r *Resolver) lookup(name string) (Entry, bool, string) {
	if e, ok := r.cfg.Exact[name]; ok {
		return e, true, "exact:" + name
	}
	if idx := strings.IndexByte(name, '.'); idx >= 0 {
		parent := name[idx+1:]
		if e, ok := r.cfg.Wildcard[parent]; ok {
			return e, true, "wildcard:" + parent
		}
	}
	return Entry{}, false, ""
}

// parsedAddresses resolves entry.Addresses to net.IP once and caches the
// result keyed by host + entry identity.
func (r *Resolver) parsedAddresses(matchKey string, entry Entry, globalTTLSeconds int) []net.IP {
	cacheKey := matchKey + "#" + entryIdentity(entry)

	if r.cache != nil {
		if v, ok := r.cache.TryGet(cacheKey); ok {
			r.recordCacheLookup(true)
			return v.([]net.IP)
		}
	}
	r.recordCacheLookup(false)

	var addrs []net.IP
	for _, raw := range entry.Addresses {
		ip := net.ParseIP(raw)
		if ip == nil {
			r.logf("custom DNS override address failed to parse", "address", raw)
			continue
		}
		addrs = append(addrs, ip)
	}

	if r.cache != nil {
		ttl := entry.TTLOverride
		if ttl < 0 {
			ttl = time.Duration(globalTTLSeconds) * time.Second
		}
		r.cache.AddOrUpdate(cacheKey, addrs, ttl)
	}
	return addrs
}

func (r *Resolver) selectIndex(key string, policy SelectPolicy, n int) int {
	if policy == Random {
		return rand.Intn(n)
	}
	v, _ := r.counters.LoadOrStore(key, new(uint64))
	counter := v.(*uint64)
	next := atomic.AddUint64(counter, 1) - 1
	return int(next % uint64(n))
}

func (r *Resolver) logf(msg string, keyvals ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, keyvals...)
	}
}

func (r *Resolver) recordCacheLookup(hit bool) {
	if r.Collector != nil {
		r.Collector.RecordDNSCacheLookup(hit)
	}
}

// entryIdentity is a stable fingerprint of an Entry's configured addresses
// and policy, used to invalidate the parsed-address cache when the
// override's content changes under the same host key.
func entryIdentity(e Entry) string {
	h := xxhash.New()
	h.Write([]byte(strings.Join(e.Addresses, ",")))
	h.Write([]byte(e.Policy))
	return strconv.FormatUint(h.Sum64(), 16)
}

// normalizeHost case-folds and punycode-normalises host for comparison
// against the exact/wildcard maps.
func normalizeHost(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		return ascii
	}
	return host
}
