// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package lb implements the cluster Load-Balancing Policies:
// WeightedRoundRobin, WeightedLeastConnections, IpHash, GenericHash,
// WeightedRandom and ConsistentHash, selecting among a cluster's Healthy
// destinations.
package lb

import (
	"net/http"
	"net/url"
	"strings"
)

// Destination is one backend candidate as seen by a Policy. Callers are
// expected to have already filtered to Healthy destinations
// and to have defaulted Weight/VirtualNodes before calling Select.
type Destination struct {
	ID                 string
	Weight             int
	VirtualNodes       int
	ConcurrentRequests int64
}

func (d Destination) weight() int {
	if d.Weight <= 0 {
		return 1
	}
	return d.Weight
}

func (d Destination) virtualNodes() int {
	if d.VirtualNodes <= 0 {
		return DefaultVirtualNodes
	}
	return d.VirtualNodes
}

// DefaultVirtualNodes is ConsistentHash's default ring density per destination.
const DefaultVirtualNodes = 150

// Context carries the request-derived inputs a hash-based policy may need.
type Context struct {
	ClientIP string
	Path     string
	Query    url.Values
	Headers  http.Header
	Cookies  []*http.Cookie
}

// NewContext builds a Context from an *http.Request and a resolved client IP.
// IpHash resolves its key itself from the Headers: X-Forwarded-For, then
// X-Real-IP, then ClientIP. GenericHash's {IP} token uses ClientIP as given.
func NewContext(r *http.Request, clientIP string) *Context {
	return &Context{
		ClientIP: clientIP,
		Path:     r.URL.Path,
		Query:    r.URL.Query(),
		Headers:  r.Header,
		Cookies:  r.Cookies(),
	}
}

func (c *Context) cookie(name string) string {
	if c == nil {
		return ""
	}
	for _, ck := range c.Cookies {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

// Policy selects one Destination from a set of candidates.
type Policy interface {
	// Select returns the chosen destination and true, or the zero value and
	// false when destinations is empty. clusterKey scopes any policy state
	// (sequence caches, hash rings) that must survive across calls.
	Select(clusterKey string, ctx *Context, destinations []Destination) (Destination, bool)
}

// Algorithm names a policy, used in configuration.
type Algorithm string

const (
	WeightedRoundRobin       Algorithm = "WeightedRoundRobin"
	WeightedLeastConnections Algorithm = "WeightedLeastConnections"
	IpHashAlgorithm          Algorithm = "IpHash"
	GenericHashAlgorithm     Algorithm = "GenericHash"
	WeightedRandomAlgorithm  Algorithm = "WeightedRandom"
	ConsistentHashAlgorithm  Algorithm = "ConsistentHash"
)

// NewPolicy constructs the Policy for name. hashKeyTemplate is only used by
// GenericHash (default "{Path}") and ConsistentHash (default "{IP}").
func NewPolicy(name Algorithm, hashKeyTemplate string) Policy {
	switch name {
	case WeightedRoundRobin:
		return newWeightedRoundRobin()
	case WeightedLeastConnections:
		return leastConnections{}
	case IpHashAlgorithm:
		return ipHash{}
	case GenericHashAlgorithm:
		tmpl := hashKeyTemplate
		if tmpl == "" {
			tmpl = "{Path}"
		}
		return genericHash{template: tmpl}
	case WeightedRandomAlgorithm:
		return weightedRandom{}
	case ConsistentHashAlgorithm:
		tmpl := hashKeyTemplate
		if tmpl == "" {
			tmpl = "{IP}"
		}
		return newConsistentHash(tmpl)
	default:
		return newWeightedRoundRobin()
	}
}

// single applies the rule shared by every policy: a single
// candidate is always returned outright, and an empty set is always None.
// Reports (dest, true, true) when it fully resolved the selection.
func single(destinations []Destination) (Destination, bool, bool) {
	switch len(destinations) {
	case 0:
		return Destination{}, false, true
	case 1:
		return destinations[0], true, true
	default:
		return Destination{}, false, false
	}
}

// expandTemplate substitutes HashKey tokens: {Path},
// {Query}, {IP}, {Query.NAME}, {Header.NAME}, {Cookie.NAME}. Missing tokens
// substitute the empty string.
func expandTemplate(tmpl string, ctx *Context) string {
	if ctx == nil {
		return ""
	}
	var b strings.Builder
	for i := 0; i < len(tmpl); {
		if tmpl[i] != '{' {
			b.WriteByte(tmpl[i])
			i++
			continue
		}
		end := strings.IndexByte(tmpl[i:], '}')
		if end < 0 {
			b.WriteByte(tmpl[i])
			i++
			continue
		}
		token := tmpl[i+1 : i+end]
		b.WriteString(resolveToken(token, ctx))
		i += end + 1
	}
	return b.String()
}

func resolveToken(token string, ctx *Context) string {
	switch {
	case token == "Path":
		return ctx.Path
	case token == "Query":
		return ctx.Query.Encode()
	case token == "IP":
		return ctx.ClientIP
	case strings.HasPrefix(token, "Query."):
		return ctx.Query.Get(strings.TrimPrefix(token, "Query."))
	case strings.HasPrefix(token, "Header."):
		return ctx.Headers.Get(strings.TrimPrefix(token, "Header."))
	case strings.HasPrefix(token, "Cookie."):
		return ctx.cookie(strings.TrimPrefix(token, "Cookie."))
	default:
		return ""
	}
}
