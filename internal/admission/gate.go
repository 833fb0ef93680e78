// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package admission implements the admission gate: the white/black list
// and geo evaluation that decides whether a request is let through at all,
// plus the central connection-cap critical section. Its config swap is an
// atomic-swap of immutable lists under config reload, generalised from
// managed-IP-list sets to the CIDR/geo matchers of internal/cidr and
// internal/geo.
package admission

import (
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/lywaf/lywaf/internal/cidr"
	"github.com/lywaf/lywaf/internal/geo"
	"github.com/lywaf/lywaf/internal/metrics"
)

// DenyReason enumerates Denied reason codes.
type DenyReason int

const (
	ReasonNone DenyReason = iota
	ReasonIPDenied
	ReasonPathIPDenied
	ReasonGeoDenied
	ReasonPathGeoDenied
	ReasonConnectionLimited
	ReasonBanned
)

func (r DenyReason) String() string {
	switch r {
	case ReasonIPDenied:
		return "ip_denied"
	case ReasonPathIPDenied:
		return "path_ip_denied"
	case ReasonGeoDenied:
		return "geo_denied"
	case ReasonPathGeoDenied:
		return "path_geo_denied"
	case ReasonConnectionLimited:
		return "connection_limited"
	case ReasonBanned:
		return "banned"
	default:
		return "none"
	}
}

// Decision is the result of Check: either Allowed, or Denied with a Reason.
type Decision struct {
	Allowed bool
	Reason  DenyReason
	Message string
	Geo     *geo.Info // populated whenever a geo lookup actually ran
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason DenyReason, msg string) Decision {
	return Decision{Allowed: false, Reason: reason, Message: msg}
}

// GeoMode is the global geo policy direction.
type GeoMode int

const (
	GeoModeDeny GeoMode = iota
	GeoModeAllow
)

// PathIPRule is a path-scoped IP allow/deny rule.
type PathIPRule struct {
	Pattern   string
	Whitelist *cidr.List
	Blacklist *cidr.List
}

// PathGeoRule is a path-scoped geo allow/deny rule. Each list entry is
// matched case-insensitively against any of country/region/city.
type PathGeoRule struct {
	Pattern   string
	Whitelist []string
	Blacklist []string
}

// Config is the immutable, atomically-swappable snapshot the Gate
// evaluates requests against.
type Config struct {
	GlobalWhitelist *cidr.List

	IPControlEnabled bool
	PathIPRules      []PathIPRule
	GlobalBlacklist  *cidr.List

	GeoControlEnabled bool
	PathGeoRules      []PathGeoRule
	GlobalGeoMode     GeoMode
	AllowCountries    []string
	DenyCountries     []string

	MaxTotalConnections int
	MaxPerIP            int
	MaxPerDestination   int
	PathConnectionCaps  []PathCap
}

// PathCap is a per-path connection cap (first-match semantics).
type PathCap struct {
	Pattern string
	Max     int
}

// Gate evaluates for each request and owns the central
// connection-limit critical section.
type Gate struct {
	resolver geo.Resolver

	// Collector receives connection-slot gauge updates on every acquire and
	// release. Nil disables metrics emission.
	Collector *metrics.Collector

	cfgMu sync.RWMutex
	cfg   *Config

	connMu     sync.Mutex
	total      int
	perIP      map[string]int
	perDest    map[string]int
	perPathIdx map[int]int // index into cfg.PathConnectionCaps -> current count
}

// New constructs a Gate. resolver may be nil if geo control is never enabled.
func New(resolver geo.Resolver, cfg *Config) *Gate {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Gate{
		resolver:   resolver,
		cfg:        cfg,
		perIP:      make(map[string]int),
		perDest:    make(map[string]int),
		perPathIdx: make(map[int]int),
	}
}

// SetConfig atomically swaps the evaluated configuration. In-flight
// Check/Acquire calls observe either the old or the new snapshot, never a
// partial one.
func (g *Gate) SetConfig(cfg *Config) {
	g.cfgMu.Lock()
	g.cfg = cfg
	g.cfgMu.Unlock()
}

func (g *Gate) config() *Config {
	g.cfgMu.RLock()
	defer g.cfgMu.RUnlock()
	return g.cfg
}

// Check implements steps 1-4.
func (g *Gate) Check(clientIP net.IP, path string) Decision {
	cfg := g.config()

	if cfg.GlobalWhitelist.Matches(clientIP) {
		return allow()
	}

	if cfg.IPControlEnabled {
		if d, matched := checkIPRules(cfg, clientIP, path); matched {
			return d
		}
	}

	if cfg.GeoControlEnabled && g.resolver != nil {
		info, err := g.resolver.Lookup(clientIP)
		if err != nil || info == nil {
			// Fail-open: lookup failure or miss admits the request.
			return allow()
		}
		return checkGeoRules(cfg, info, path)
	}

	return allow()
}

func checkIPRules(cfg *Config, clientIP net.IP, path string) (Decision, bool) {
	for _, rule := range cfg.PathIPRules {
		if !matchesPath(rule.Pattern, path) {
			continue
		}
		if rule.Blacklist.Matches(clientIP) {
			return deny(ReasonPathIPDenied, fmt.Sprintf("ip denied for path %s", rule.Pattern)), true
		}
		if rule.Whitelist.Matches(clientIP) {
			return allow(), true
		}
	}
	if cfg.GlobalBlacklist.Matches(clientIP) {
		return deny(ReasonIPDenied, "ip denied"), true
	}
	return Decision{}, false
}

func checkGeoRules(cfg *Config, info *geo.Info, path string) Decision {
	d := checkGeoRulesDecision(cfg, info, path)
	d.Geo = info
	return d
}

func checkGeoRulesDecision(cfg *Config, info *geo.Info, path string) Decision {
	for _, rule := range cfg.PathGeoRules {
		if !matchesPath(rule.Pattern, path) {
			continue
		}
		if geoListMatches(rule.Blacklist, info) {
			return deny(ReasonPathGeoDenied, fmt.Sprintf("geo denied for path %s", rule.Pattern))
		}
		if geoListMatches(rule.Whitelist, info) {
			return allow()
		}
	}

	switch cfg.GlobalGeoMode {
	case GeoModeAllow:
		if !geoListMatches(cfg.AllowCountries, info) {
			return deny(ReasonGeoDenied, "geo not in allow list")
		}
	case GeoModeDeny:
		if geoListMatches(cfg.DenyCountries, info) {
			return deny(ReasonGeoDenied, "geo in deny list")
		}
	}
	return allow()
}

// geoListMatches reports whether any of country/region/city case-insensitively
// equals any entry in list.
func geoListMatches(list []string, info *geo.Info) bool {
	for _, entry := range list {
		if eqFold(entry, info.Country) || eqFold(entry, info.Region) || eqFold(entry, info.City) {
			return true
		}
	}
	return false
}

func eqFold(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}
