// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config loads the HCL configuration schema for the reverse-proxy
// core: clusters, listeners, rate-limit policies, DNS overrides, and the
// path-attribution pattern set, using the same `hcl:"...,block"` style and
// `Validate() error` convention throughout.
package config

import "time"

// CurrentSchemaVersion is bumped whenever a block's shape changes in a
// backward-incompatible way.
const CurrentSchemaVersion = "1.0"

// Config is the top-level HCL document.
type Config struct {
	// @default: "1.0"
	SchemaVersion string `hcl:"schema_version,optional"`

	Clusters   []Cluster   `hcl:"cluster,block"`
	Listeners  []Listener  `hcl:"listener,block"`
	Admission  *Admission  `hcl:"admission,block"`
	RateLimits []RateLimit `hcl:"rate_limit_policy,block"`
	DnsBlock   *DnsConfig  `hcl:"dns_override,block"`

	// Patterns registered with the path-attribution matcher.
	AttributionPatterns []string `hcl:"attribution_patterns,optional"`

	Throttle *ThrottleConfig `hcl:"throttle,block"`

	LogLevel string `hcl:"log_level,optional"`
}

// Validate checks every block and aggregates all errors found, rather than
// stopping at the first one.
func (c *Config) Validate() error {
	var errs ValidationErrors

	seenClusters := map[string]bool{}
	for i := range c.Clusters {
		if err := c.Clusters[i].Validate(); err != nil {
			errs = append(errs, err...)
		}
		if seenClusters[c.Clusters[i].ID] {
			errs = append(errs, ValidationError{Field: "cluster.id", Message: "duplicate cluster id " + c.Clusters[i].ID})
		}
		seenClusters[c.Clusters[i].ID] = true
	}

	for i := range c.Listeners {
		if err := c.Listeners[i].Validate(seenClusters); err != nil {
			errs = append(errs, err...)
		}
	}

	for i := range c.RateLimits {
		if err := c.RateLimits[i].Validate(); err != nil {
			errs = append(errs, err...)
		}
	}

	if c.Admission != nil {
		errs = append(errs, c.Admission.Validate()...)
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Cluster is ClusterState configuration block.
type Cluster struct {
	ID              string        `hcl:"id,label"`
	LBPolicy        string        `hcl:"lb_policy,optional"` // Algorithm name, default WeightedRoundRobin
	HashKeyTemplate string        `hcl:"hash_key_template,optional"`
	Destinations    []Destination `hcl:"destination,block"`
	ActiveHealth    *ActiveHealth `hcl:"active_health,block"`
	HeaderUps       map[string]string `hcl:"header_ups,optional"`
	HeaderDowns     map[string]string `hcl:"header_downs,optional"`
}

func (c *Cluster) Validate() ValidationErrors {
	var errs ValidationErrors
	if c.ID == "" {
		errs = append(errs, ValidationError{Field: "cluster.id", Message: "cluster id must not be empty"})
	}
	if len(c.Destinations) == 0 {
		errs = append(errs, ValidationError{Field: "cluster." + c.ID + ".destination", Message: "cluster has no destinations"})
	}
	for i := range c.Destinations {
		if err := c.Destinations[i].Validate(); err != "" {
			errs = append(errs, ValidationError{Field: "cluster." + c.ID + ".destination", Message: err})
		}
	}
	return errs
}

// Destination is DestinationState configuration block.
type Destination struct {
	ID           string `hcl:"id,label"`
	Address      string `hcl:"address"`
	Weight       int    `hcl:"weight,optional"`
	VirtualNodes int    `hcl:"virtual_nodes,optional"`
}

func (d *Destination) Validate() string {
	if d.Address == "" {
		return "destination " + d.ID + " has an empty address"
	}
	return ""
}

// ActiveHealth is a cluster's active health-check block.
type ActiveHealth struct {
	Method        string `hcl:"method,optional"`
	Path          string `hcl:"path,optional"`
	Query         string `hcl:"query,optional"`
	Body          string `hcl:"body,optional"`
	AvalidCode    string `hcl:"avalid_code,optional"`
	AvalidContent string `hcl:"avalid_content,optional"`
	ContentCheck  string `hcl:"content_check,optional"`
	AvalidHeaders string `hcl:"avalid_headers,optional"`
	Passes        int    `hcl:"passes,optional"`
	Fails         int    `hcl:"fails,optional"`
	Interval      string `hcl:"interval,optional"` // parsed via time.ParseDuration, default 10s
}

// Interval parses the configured probe interval, defaulting to 10s.
func (a *ActiveHealth) Interval() time.Duration {
	if a == nil || a.Interval == "" {
		return 10 * time.Second
	}
	d, err := time.ParseDuration(a.Interval)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// Listener is one HTTP entrypoint's routing and rejection policy.
type Listener struct {
	Name          string          `hcl:"name,label"`
	Addr          string          `hcl:"addr"`
	ClusterID     string          `hcl:"cluster_id"`
	RateLimitName string          `hcl:"rate_limit_policy,optional"`
	Forwarded     *ForwardedBlock `hcl:"forwarded,block"`
	BanPage       *BanPageBlock   `hcl:"ban_page,block"`
	Reject        *RejectBlock    `hcl:"reject,block"`
}

func (l *Listener) Validate(clusterIDs map[string]bool) ValidationErrors {
	var errs ValidationErrors
	if l.Addr == "" {
		errs = append(errs, ValidationError{Field: "listener." + l.Name + ".addr", Message: "listener addr must not be empty"})
	}
	if !clusterIDs[l.ClusterID] {
		errs = append(errs, ValidationError{Field: "listener." + l.Name + ".cluster_id", Message: "references unknown cluster " + l.ClusterID})
	}
	return errs
}

// ForwardedBlock configures Forwarded Header Processor.
type ForwardedBlock struct {
	For    string `hcl:"for,optional"`
	Proto  string `hcl:"proto,optional"`
	Host   string `hcl:"host,optional"`
	Method string `hcl:"method,optional"` // none|set|append
	IsX    bool   `hcl:"is_x,optional"`
}

// BanPageBlock is the ban-page HTML template and debug-mode flag.
type BanPageBlock struct {
	Template string `hcl:"template,optional"`
	Debug    bool   `hcl:"debug,optional"`
}

// RejectBlock is the admission/rate-limit rejection response template.
type RejectBlock struct {
	StatusCode int    `hcl:"status_code,optional"`
	Message    string `hcl:"message,optional"`
}

// RateLimit is one named rate-limit policy block.
type RateLimit struct {
	Name                string `hcl:"name,label"`
	Algorithm           string `hcl:"algorithm"` // Fixed|Sliding|Token|Concurrency
	Limit               int    `hcl:"limit,optional"`
	Window              string `hcl:"window,optional"`
	SegmentsPerWindow   int    `hcl:"segments_per_window,optional"`
	TokensPerPeriod     int    `hcl:"tokens_per_period,optional"`
	ReplenishmentPeriod string `hcl:"replenishment_period,optional"`
	MaxConcurrent       int    `hcl:"max_concurrent,optional"`
	QueueOrder          string `hcl:"queue_order,optional"` // OldestFirst|NewestFirst
	QueueLimit          int    `hcl:"queue_limit,optional"`
	RejectStatus        int    `hcl:"reject_status,optional"`
	Default             bool   `hcl:"default,optional"`
}

func (r *RateLimit) Validate() ValidationErrors {
	var errs ValidationErrors
	switch r.Algorithm {
	case "Fixed", "Sliding", "Token", "Concurrency", "":
	default:
		errs = append(errs, ValidationError{Field: "rate_limit_policy." + r.Name + ".algorithm", Message: "unknown algorithm " + r.Algorithm})
	}
	return errs
}

// DnsConfig is the Custom DNS override map.
type DnsConfig struct {
	Exact           []DnsEntry `hcl:"exact,block"`
	Wildcard        []DnsEntry `hcl:"wildcard,block"`
	CacheTTLSeconds int        `hcl:"cache_ttl_seconds,optional"`
}

// DnsEntry is one exact or wildcard host override entry.
type DnsEntry struct {
	Host        string   `hcl:"host,label"`
	Addresses   []string `hcl:"addresses"`
	Policy      string   `hcl:"policy,optional"` // RoundRobin|Random
	TTLOverride int      `hcl:"ttl_override,optional"`
}

// ThrottleConfig configures per-client Token-Bucket Throttle.
type ThrottleConfig struct {
	CapacityBytes int64  `hcl:"capacity_bytes,optional"`
	Period        string `hcl:"period,optional"`
	IdleTTL       string `hcl:"idle_ttl,optional"`
}

// Admission configures Admission Gate.
type Admission struct {
	GlobalWhitelist []string   `hcl:"global_whitelist,optional"`
	GlobalBlacklist []string   `hcl:"global_blacklist,optional"`
	PathIPRules     []IPRule   `hcl:"path_ip_rule,block"`
	GeoMode         string     `hcl:"geo_mode,optional"` // Allow|Deny
	AllowCountries  []string   `hcl:"allow_countries,optional"`
	DenyCountries   []string   `hcl:"deny_countries,optional"`
	PathGeoRules    []GeoRule  `hcl:"path_geo_rule,block"`

	MaxTotalConnections int            `hcl:"max_total_connections,optional"`
	MaxPerIP            int            `hcl:"max_per_ip,optional"`
	MaxPerDestination   int            `hcl:"max_per_destination,optional"`
	PathConnectionCaps  []ConnCapEntry `hcl:"path_connection_cap,block"`

	GeoCityDB string `hcl:"geo_city_db,optional"`
	GeoISPDB  string `hcl:"geo_isp_db,optional"`
}

func (a *Admission) Validate() ValidationErrors {
	var errs ValidationErrors
	for _, w := range a.GlobalWhitelist {
		if w == "" {
			errs = append(errs, ValidationError{Field: "admission.global_whitelist", Message: "empty CIDR entry"})
		}
	}
	return errs
}

// IPRule is a path-scoped IP allow/deny rule.
type IPRule struct {
	Pattern   string   `hcl:"pattern,label"`
	Whitelist []string `hcl:"whitelist,optional"`
	Blacklist []string `hcl:"blacklist,optional"`
}

// GeoRule is a path-scoped geo allow/deny rule.
type GeoRule struct {
	Pattern   string   `hcl:"pattern,label"`
	Whitelist []string `hcl:"whitelist,optional"`
	Blacklist []string `hcl:"blacklist,optional"`
}

// ConnCapEntry is one first-match path connection cap.
type ConnCapEntry struct {
	Pattern string `hcl:"pattern,label"`
	Max     int    `hcl:"max"`
}

// ValidationError is one Validate failure, with a dotted field path for
// the offending block.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string { return e.Field + ": " + e.Message }

// ValidationErrors aggregates every ValidationError found in one pass.
type ValidationErrors []ValidationError

func (es ValidationErrors) Error() string {
	if len(es) == 0 {
		return ""
	}
	msg := es[0].Error()
	for _, e := range es[1:] {
		msg += "; " + e.Error()
	}
	return msg
}
