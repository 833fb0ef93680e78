// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package admission

import "net"

// TryAcquireConnection implements connection-cap critical
// section: total, per-IP, per-destination, and the first matching path cap
// are all checked under one lock before any counter moves. destination may
// be empty if the caller has not yet picked an upstream.
func (g *Gate) TryAcquireConnection(clientIP net.IP, destination, path string) bool {
	cfg := g.config()
	ipKey := clientIP.String()

	g.connMu.Lock()

	if cfg.MaxTotalConnections > 0 && g.total >= cfg.MaxTotalConnections {
		g.connMu.Unlock()
		return false
	}
	if cfg.MaxPerIP > 0 && g.perIP[ipKey] >= cfg.MaxPerIP {
		g.connMu.Unlock()
		return false
	}
	if destination != "" && cfg.MaxPerDestination > 0 && g.perDest[destination] >= cfg.MaxPerDestination {
		g.connMu.Unlock()
		return false
	}

	pathIdx := -1
	for i, pc := range cfg.PathConnectionCaps {
		if matchesPath(pc.Pattern, path) {
			pathIdx = i
			if pc.Max > 0 && g.perPathIdx[i] >= pc.Max {
				g.connMu.Unlock()
				return false
			}
			break
		}
	}

	g.total++
	g.perIP[ipKey]++
	if destination != "" {
		g.perDest[destination]++
	}
	if pathIdx >= 0 {
		g.perPathIdx[pathIdx]++
	}
	total, ips, dests := g.slotCountsLocked()
	g.connMu.Unlock()

	g.recordSlots(total, ips, dests)
	return true
}

// ReleaseConnection is the symmetric counterpart to TryAcquireConnection. It
// clamps every counter at zero rather than going negative.
func (g *Gate) ReleaseConnection(clientIP net.IP, destination, path string) {
	cfg := g.config()
	ipKey := clientIP.String()

	g.connMu.Lock()

	g.total = clampDec(g.total)
	g.perIP[ipKey] = clampDec(g.perIP[ipKey])
	if destination != "" {
		g.perDest[destination] = clampDec(g.perDest[destination])
	}
	for i, pc := range cfg.PathConnectionCaps {
		if matchesPath(pc.Pattern, path) {
			g.perPathIdx[i] = clampDec(g.perPathIdx[i])
			break
		}
	}

	total, ips, dests := g.slotCountsLocked()
	g.connMu.Unlock()

	g.recordSlots(total, ips, dests)
}

// slotCountsLocked summarises the connection counters for the metrics
// gauges; callers must hold connMu.
func (g *Gate) slotCountsLocked() (total, ips, dests int) {
	for _, n := range g.perIP {
		if n > 0 {
			ips++
		}
	}
	for _, n := range g.perDest {
		if n > 0 {
			dests++
		}
	}
	return g.total, ips, dests
}

// recordSlots pushes the current slot counts to Collector, by scope.
func (g *Gate) recordSlots(total, ips, dests int) {
	if g.Collector == nil {
		return
	}
	g.Collector.SetConnectionSlots("total", total)
	g.Collector.SetConnectionSlots("ip", ips)
	g.Collector.SetConnectionSlots("destination", dests)
}

func clampDec(n int) int {
	if n <= 0 {
		return 0
	}
	return n - 1
}

// Counters exposes the current connection counters for metrics/debugging.
type Counters struct {
	Total   int
	PerIP   map[string]int
	PerDest map[string]int
}

// Snapshot returns a copy of the current connection counters.
func (g *Gate) Snapshot() Counters {
	g.connMu.Lock()
	defer g.connMu.Unlock()
	c := Counters{Total: g.total, PerIP: make(map[string]int, len(g.perIP)), PerDest: make(map[string]int, len(g.perDest))}
	for k, v := range g.perIP {
		c.PerIP[k] = v
	}
	for k, v := range g.perDest {
		c.PerDest[k] = v
	}
	return c
}
