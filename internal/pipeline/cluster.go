// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package pipeline implements the Request Pipeline: the
// per-request orchestration of admission, rate limiting, connection
// admission, header rewriting, load-balancing selection, upstream connect,
// throttling, and statistics attribution. It wires every other component
// package together the way a packet-filter's match/verdict stages chain,
// generalised from packet verdicts to HTTP admission/forwarding decisions.
package pipeline

import (
	"sync/atomic"

	"github.com/lywaf/lywaf/internal/health"
	"github.com/lywaf/lywaf/internal/lb"
)

// Destination is one cluster backend, owned by its Cluster. The Prober
// tracks its health by Address; the LB policy reads its in-flight count.
type Destination struct {
	ID                 string
	Address            string // host:port the pipeline dials on selection
	Weight             int
	VirtualNodes       int
	concurrentRequests int64
}

func (d *Destination) incr(delta int64) { atomic.AddInt64(&d.concurrentRequests, delta) }

// toLB converts d to the lb package's read-only selection candidate.
func (d *Destination) toLB() lb.Destination {
	return lb.Destination{
		ID:                 d.ID,
		Weight:             d.Weight,
		VirtualNodes:       d.VirtualNodes,
		ConcurrentRequests: atomic.LoadInt64(&d.concurrentRequests),
	}
}

// Cluster groups a set of Destinations behind one LB policy and active
// health-check profile.
type Cluster struct {
	ID              string
	Destinations    []*Destination
	LBPolicy        lb.Policy
	HashKeyTemplate string
	ActiveHealth    health.ActiveHealth

	// HeaderUps are copied onto the outbound request unconditionally, after
	// the Forwarded Processor runs. HeaderDowns are
	// copied onto the response before the Server header is overwritten.
	HeaderUps   map[string]string
	HeaderDowns map[string]string
}

func (c *Cluster) destination(id string) *Destination {
	for _, d := range c.Destinations {
		if d.ID == id {
			return d
		}
	}
	return nil
}

// healthyLBDestinations returns the subset of c.Destinations the Prober
// currently marks Healthy, converted to lb.Destination — load balancing is
// restricted to destinations the Prober has marked Healthy.
func (c *Cluster) healthyLBDestinations(prober *health.Prober) []lb.Destination {
	out := make([]lb.Destination, 0, len(c.Destinations))
	for _, d := range c.Destinations {
		if prober == nil || prober.IsHealthy(d.Address) {
			out = append(out, d.toLB())
		}
	}
	return out
}
