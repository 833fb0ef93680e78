// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics exposes the reverse-proxy's Prometheus registry: one
// gauge/counter vector per admission/rate-limit/health/LB/DNS/connection
// component, built with the same WithLabelValues-driven Collector shape
// used throughout this codebase.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every metric this process exports.
type Registry struct {
	AdmissionDenials   *prometheus.CounterVec // reason
	RateLimitRejects   *prometheus.CounterVec // policy
	ProbeResults       *prometheus.CounterVec // destination, result(pass|fail)
	DestinationHealth  *prometheus.GaugeVec   // destination -> 1 healthy, 0 unhealthy
	LBSelections       *prometheus.CounterVec // cluster, destination
	DNSCacheLookups    *prometheus.CounterVec // result(hit|miss)
	ConnectionSlots    *prometheus.GaugeVec   // scope(total|ip|destination)
	ForwardedRequests  *prometheus.CounterVec // cluster, status
	ConfigReload       *prometheus.CounterVec // status(success|failure)
	BanListSize        prometheus.Gauge
	ThrottleGrantBytes prometheus.Counter
}

var (
	once     sync.Once
	instance *Registry
)

// Get returns the process-wide Registry, registering its collectors with
// the default Prometheus registerer on first use.
func Get() *Registry {
	once.Do(func() {
		instance = newRegistry()
		instance.mustRegister()
	})
	return instance
}

func newRegistry() *Registry {
	return &Registry{
		AdmissionDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lywaf",
			Subsystem: "admission",
			Name:      "denials_total",
			Help:      "Requests denied by the admission gate, by reason.",
		}, []string{"reason"}),
		RateLimitRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lywaf",
			Subsystem: "ratelimit",
			Name:      "rejects_total",
			Help:      "Requests rejected by a rate-limit policy.",
		}, []string{"policy"}),
		ProbeResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lywaf",
			Subsystem: "health",
			Name:      "probe_results_total",
			Help:      "Active health-check probe outcomes per destination.",
		}, []string{"destination", "result"}),
		DestinationHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lywaf",
			Subsystem: "health",
			Name:      "destination_healthy",
			Help:      "1 if the destination is currently Healthy, 0 otherwise.",
		}, []string{"destination"}),
		LBSelections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lywaf",
			Subsystem: "lb",
			Name:      "selections_total",
			Help:      "Load-balancer destination selections per cluster.",
		}, []string{"cluster", "destination"}),
		DNSCacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lywaf",
			Subsystem: "customdns",
			Name:      "cache_lookups_total",
			Help:      "Custom DNS override cache lookups, by hit or miss.",
		}, []string{"result"}),
		ConnectionSlots: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lywaf",
			Subsystem: "admission",
			Name:      "connection_slots_in_use",
			Help:      "Connection slots currently held, by scope.",
		}, []string{"scope"}),
		ForwardedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lywaf",
			Subsystem: "pipeline",
			Name:      "forwarded_requests_total",
			Help:      "Requests forwarded upstream, by cluster and response status class.",
		}, []string{"cluster", "status"}),
		ConfigReload: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lywaf",
			Subsystem: "config",
			Name:      "reload_total",
			Help:      "Config reload attempts, by outcome.",
		}, []string{"status"}),
		BanListSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lywaf",
			Subsystem: "admission",
			Name:      "ban_list_size",
			Help:      "Current number of banned client IPs.",
		}),
		ThrottleGrantBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lywaf",
			Subsystem: "throttle",
			Name:      "granted_bytes_total",
			Help:      "Total bytes granted by the per-client token bucket throttle.",
		}),
	}
}

func (r *Registry) mustRegister() {
	prometheus.MustRegister(
		r.AdmissionDenials,
		r.RateLimitRejects,
		r.ProbeResults,
		r.DestinationHealth,
		r.LBSelections,
		r.DNSCacheLookups,
		r.ConnectionSlots,
		r.ForwardedRequests,
		r.ConfigReload,
		r.BanListSize,
		r.ThrottleGrantBytes,
	)
}
