// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"strconv"

	"github.com/lywaf/lywaf/internal/events"
	"github.com/lywaf/lywaf/internal/logging"
)

// Collector wires the process event bus and the pipeline's explicit call
// sites into the Prometheus Registry. Rather than polling counters on a
// ticker, it is push-driven: every component already decides the moment
// something happened (a denial, a probe result, a reload), so Collector just
// records it.
type Collector struct {
	registry *Registry
	logger   *logging.Logger
}

// NewCollector builds a Collector bound to the process-wide Registry.
func NewCollector(logger *logging.Logger) *Collector {
	return &Collector{registry: Get(), logger: logger}
}

// AttachEvents subscribes Collector to the Bus's RequestCompleted and
// HealthChanged events, the way internal/events.AttachLogSubscriber wires
// its own subscribers.
func (c *Collector) AttachEvents(b *events.Bus) {
	if b == nil {
		return
	}
	b.OnRequestCompleted(func(e events.RequestCompleted) {
		c.registry.ForwardedRequests.WithLabelValues(e.ClusterID, statusClass(e.Code)).Inc()
	})
	b.OnHealthChanged(func(e events.HealthChanged) {
		v := 0.0
		if e.Status == "Healthy" {
			v = 1.0
		}
		c.registry.DestinationHealth.WithLabelValues(e.Address).Set(v)
	})
}

// RecordAdmissionDenial increments the admission-denial counter for reason.
func (c *Collector) RecordAdmissionDenial(reason string) {
	c.registry.AdmissionDenials.WithLabelValues(reason).Inc()
}

// RecordRateLimitReject increments the rate-limit rejection counter for
// policy.
func (c *Collector) RecordRateLimitReject(policy string) {
	c.registry.RateLimitRejects.WithLabelValues(policy).Inc()
}

// RecordProbeResult increments the active health-check probe outcome
// counter for destination.
func (c *Collector) RecordProbeResult(destination string, passed bool) {
	result := "fail"
	if passed {
		result = "pass"
	}
	c.registry.ProbeResults.WithLabelValues(destination, result).Inc()
}

// RecordLBSelection increments the load-balancer selection counter.
func (c *Collector) RecordLBSelection(cluster, destination string) {
	c.registry.LBSelections.WithLabelValues(cluster, destination).Inc()
}

// RecordDNSCacheLookup increments the customdns cache lookup counter.
func (c *Collector) RecordDNSCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.registry.DNSCacheLookups.WithLabelValues(result).Inc()
}

// SetConnectionSlots sets the current in-use connection slot gauge for a
// scope ("total", "ip", or "destination").
func (c *Collector) SetConnectionSlots(scope string, n int) {
	c.registry.ConnectionSlots.WithLabelValues(scope).Set(float64(n))
}

// SetBanListSize sets the current ban-list size gauge.
func (c *Collector) SetBanListSize(n int) {
	c.registry.BanListSize.Set(float64(n))
}

// RecordThrottleGrant adds n granted bytes to the throttle counter.
func (c *Collector) RecordThrottleGrant(n int64) {
	if n <= 0 {
		return
	}
	c.registry.ThrottleGrantBytes.Add(float64(n))
}

// RecordConfigReload increments the config reload counter by outcome.
func (c *Collector) RecordConfigReload(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	c.registry.ConfigReload.WithLabelValues(status).Inc()
	if c.logger != nil {
		c.logger.Info("config reload", "status", status)
	}
}

// statusClass buckets an HTTP status code into Prometheus's conventional
// "2xx"/"4xx"/"5xx" label value.
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}
