// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package pipeline

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lywaf/lywaf/internal/admission"
	"github.com/lywaf/lywaf/internal/attribution"
	"github.com/lywaf/lywaf/internal/errors"
	"github.com/lywaf/lywaf/internal/events"
	"github.com/lywaf/lywaf/internal/forwarded"
	"github.com/lywaf/lywaf/internal/health"
	"github.com/lywaf/lywaf/internal/lb"
	"github.com/lywaf/lywaf/internal/logging"
	"github.com/lywaf/lywaf/internal/metrics"
	"github.com/lywaf/lywaf/internal/ratelimit"
	"github.com/lywaf/lywaf/internal/store"
	"github.com/lywaf/lywaf/internal/throttle"
)

// Forwarder performs the actual upstream round-trip. Wire-level HTTP and
// response-body streaming are treated as external collaborators;
// Pipeline only decides *which* destination to forward to and builds the
// outbound request, then hands off to a Forwarder for the transport.
type Forwarder interface {
	Forward(ctx context.Context, req *http.Request, destAddr string) (*http.Response, error)
}

// Listener is one HTTP entrypoint's policy: which rate-limit policy and
// Forwarded-header config apply, and its ban/reject rendering.
type Listener struct {
	ClusterID     string
	RateLimitName string
	RateLimitKey  func(r *http.Request, clientIP string) string
	Forwarded     forwarded.Config
	BanPage       BanPage
	Reject        RejectConfig
}

// Pipeline orchestrates nine steps per request. It is a
// process-scoped registry, built once at startup and wired explicitly
// with every component it drives.
type Pipeline struct {
	Gate        *admission.Gate
	Bans        *admission.BanList
	Limiters    *ratelimit.Registry
	Prober      *health.Prober
	Throttle    *throttle.Throttle
	Attribution *attribution.Matcher
	Forwarder   Forwarder
	Events      *events.Bus
	Counters    *store.Store
	Logger      *logging.Logger
	Collector   *metrics.Collector

	clustersMu sync.RWMutex
	clusters   map[string]*Cluster
}

// New constructs an empty Pipeline; clusters are registered with
// RegisterCluster.
func New() *Pipeline {
	return &Pipeline{clusters: make(map[string]*Cluster)}
}

// RegisterCluster adds or replaces a cluster's routing table entry.
func (p *Pipeline) RegisterCluster(c *Cluster) {
	p.clustersMu.Lock()
	defer p.clustersMu.Unlock()
	p.clusters[c.ID] = c
}

func (p *Pipeline) cluster(id string) (*Cluster, bool) {
	p.clustersMu.RLock()
	defer p.clustersMu.RUnlock()
	c, ok := p.clusters[id]
	return c, ok
}

// Handle runs nine-step pipeline for one inbound request and
// writes exactly one response to w.
func (p *Pipeline) Handle(w http.ResponseWriter, r *http.Request, ln Listener) {
	start := time.Now()
	requestID := uuid.NewString()
	clientIP := resolveClientIP(r)

	p.publishStarted(requestID, ln.ClusterID, r, clientIP)

	status, outcome := p.run(w, r, ln, requestID, clientIP)

	p.publishCompleted(requestID, ln.ClusterID, status, outcome, time.Since(start))
}

func (p *Pipeline) run(w http.ResponseWriter, r *http.Request, ln Listener, requestID, clientIP string) (int, string) {
	// Step 1: ban list.
	if p.Bans != nil {
		if rec, banned := p.Bans.Check(clientIP); banned {
			ln.BanPage.write(w, clientIP, rec.Reason)
			return http.StatusForbidden, "banned"
		}
	}

	ip := net.ParseIP(clientIP)

	// Step 2: admission gate.
	if p.Gate != nil {
		decision := p.Gate.Check(ip, r.URL.Path)
		if !decision.Allowed {
			status := ln.Reject.statusCode(http.StatusForbidden)
			msg := substitute(ln.Reject.Message, r, clientIP, decision, time.Now())
			writeReject(w, status, msg)
			p.logf("admission denied", "client_ip", clientIP, "path", r.URL.Path,
				"error", errors.New(errors.KindDenied, decision.Reason.String()))
			if p.Collector != nil {
				p.Collector.RecordAdmissionDenial(decision.Reason.String())
			}
			return status, "denied"
		}
	}

	// Step 3: rate limit.
	if p.Limiters != nil && ln.RateLimitName != "" {
		if limiter, ok := p.Limiters.Get(ln.RateLimitName); ok {
			key := ratelimit.Partition("", clientIP)
			if ln.RateLimitKey != nil {
				key = ln.RateLimitKey(r, clientIP)
			}
			if !limiter.Allow(key, time.Now()) {
				status := limiter.RejectStatus()
				writeReject(w, status, "")
				if p.Collector != nil {
					p.Collector.RecordRateLimitReject(ln.RateLimitName)
				}
				return status, "rate_limited"
			}
		}
	}

	cluster, ok := p.cluster(ln.ClusterID)
	if !ok {
		writeReject(w, http.StatusServiceUnavailable, "")
		return http.StatusServiceUnavailable, "no_cluster"
	}

	// Step 4: connection slot.
	if p.Gate != nil {
		if !p.Gate.TryAcquireConnection(ip, "", r.URL.Path) {
			status := ln.Reject.statusCode(http.StatusTooManyRequests)
			writeReject(w, status, "")
			return status, "connection_limited"
		}
		defer p.Gate.ReleaseConnection(ip, "", r.URL.Path)
	}

	// Step 5: Forwarded processor + static request headers.
	forwarded.Process(r, clientIP, ln.Forwarded)
	for k, v := range cluster.HeaderUps {
		r.Header.Set(k, v)
	}

	// Step 6: LB selection among Healthy destinations.
	candidates := cluster.healthyLBDestinations(p.Prober)
	ctx := lb.NewContext(r, clientIP)
	chosen, ok := cluster.LBPolicy.Select(cluster.ID, ctx, candidates)
	if !ok {
		writeReject(w, http.StatusServiceUnavailable, "")
		p.logf("no healthy backend", "cluster", cluster.ID,
			"error", errors.New(errors.KindNoBackend, "no healthy destination"))
		return http.StatusServiceUnavailable, "no_backend"
	}
	dest := cluster.destination(chosen.ID)
	if dest == nil {
		writeReject(w, http.StatusServiceUnavailable, "")
		p.logf("no healthy backend", "cluster", cluster.ID,
			"error", errors.New(errors.KindNoBackend, "selected destination not found"))
		return http.StatusServiceUnavailable, "no_backend"
	}
	if p.Collector != nil {
		p.Collector.RecordLBSelection(cluster.ID, dest.ID)
	}

	dest.incr(1)
	defer dest.incr(-1)

	// Step 7: forward. The upstream connect goes through the
	// connect-callback contract wired into p.Forwarder's transport
	// (internal/customdns's DialContext); the response body is streamed to
	// the client in step 8 by copyThrottled, which shapes egress with
	// p.Throttle.AllocToken.
	if p.Forwarder == nil {
		writeReject(w, http.StatusServiceUnavailable, "")
		return http.StatusServiceUnavailable, "no_forwarder"
	}
	resp, err := p.Forwarder.Forward(r.Context(), r, dest.Address)
	if err != nil {
		p.logf("upstream error", "destination", dest.Address, "error", errors.Wrap(err, errors.KindUpstream, "forward failed"))
		writeReject(w, http.StatusBadGateway, "")
		p.recordOutcome(clientIP, dest.ID, r.URL.Path)
		return http.StatusBadGateway, "upstream_error"
	}
	defer resp.Body.Close()

	// Step 8: static response headers + Server override.
	for k, v := range resp.Header {
		w.Header()[k] = v
	}
	for k, v := range cluster.HeaderDowns {
		w.Header().Set(k, v)
	}
	w.Header().Set("Server", "LyWaf")
	w.WriteHeader(resp.StatusCode)
	copyThrottled(w, resp.Body, p.Throttle, clientIP)

	// Step 9: attribution + counters.
	p.recordOutcome(clientIP, dest.ID, r.URL.Path)

	return resp.StatusCode, "forwarded"
}

func (p *Pipeline) recordOutcome(clientIP, destinationID, path string) {
	canonical := path
	if p.Attribution != nil {
		canonical = p.Attribution.Canonicalize(path)
	}
	if p.Counters == nil {
		return
	}
	store.Incr[int64](p.Counters, "dest:"+destinationID, 1, 0, 0)
	store.Incr[int64](p.Counters, "path:"+canonical, 1, 0, 0)
	store.Incr[int64](p.Counters, "client:"+clientIP, 1, 0, 0)
}

func (p *Pipeline) publishStarted(requestID, clusterID string, r *http.Request, clientIP string) {
	if p.Events == nil {
		return
	}
	p.Events.PublishRequestStarted(events.RequestStarted{
		RequestID: requestID,
		ClusterID: clusterID,
		Method:    r.Method,
		Path:      r.URL.Path,
		ClientIP:  clientIP,
		At:        time.Now(),
	})
}

func (p *Pipeline) publishCompleted(requestID, clusterID string, status int, outcome string, d time.Duration) {
	if p.Events == nil {
		return
	}
	p.Events.PublishRequestCompleted(events.RequestCompleted{
		RequestID: requestID,
		ClusterID: clusterID,
		Status:    outcome,
		Code:      status,
		Duration:  d,
		At:        time.Now(),
	})
}

func (p *Pipeline) logf(msg string, keyvals ...any) {
	if p.Logger != nil {
		p.Logger.Warn(msg, keyvals...)
	}
}

// resolveClientIP applies the same For precedence uses for
// IpHash: X-Forwarded-For's first value, else X-Real-IP, else the socket
// peer.
func resolveClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if rip := r.Header.Get("X-Real-IP"); rip != "" {
		return rip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
