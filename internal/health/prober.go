// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package health

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/lywaf/lywaf/internal/errors"
	"github.com/lywaf/lywaf/internal/logging"
	"golang.org/x/sync/errgroup"
)

// Update is one destination's outcome within a probe batch.
type Update struct {
	Address string
	Status  Status
}

// Sink receives every batch's updates atomically, per "All
// updates for one probe batch are published atomically to a health-update
// sink."
type Sink func(clusterID string, updates []Update)

// Prober runs active health checks for a cluster's destinations and drives
// the per-destination pass/fail state machine.
type Prober struct {
	client *http.Client
	logger *logging.Logger

	mu    sync.Mutex
	state map[string]*destState // keyed by destination address
	sink  Sink
}

type destState struct {
	counters Counters
	status   Status
}

// New constructs a Prober. A nil client uses http.DefaultClient.
func New(client *http.Client, logger *logging.Logger) *Prober {
	if client == nil {
		client = http.DefaultClient
	}
	return &Prober{client: client, logger: logger, state: make(map[string]*destState)}
}

// Probe runs a single probe against one destination and applies its
// transition. A request/transport error is treated as a failure — it is
// non-fatal and counts as a failed probe, never returned to the caller.
func (p *Prober) Probe(ctx context.Context, address string, ah ActiveHealth) Status {
	success := p.doProbe(ctx, address, ah)

	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.state[address]
	if !ok {
		st = &destState{}
		p.state[address] = st
	}
	st.status = st.counters.Record(success, ah.Thresholds())
	return st.status
}

func (p *Prober) doProbe(ctx context.Context, address string, ah ActiveHealth) bool {
	req, err := BuildRequest(ctx, address, ah)
	if err != nil {
		p.logf("health probe request build failed", "address", address,
			"error", errors.Wrap(err, errors.KindProbe, "build request"))
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logf("health probe request failed", "address", address,
			"error", errors.Wrap(err, errors.KindProbe, "request failed"))
		return false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		p.logf("health probe body read failed", "address", address,
			"error", errors.Wrap(err, errors.KindProbe, "read body"))
		return false
	}
	return EvaluateSuccess(resp.StatusCode, resp.Header, body, ah)
}

// RunBatch probes every destination in destinations concurrently, applies
// all resulting transitions, and publishes the batch to sink exactly once.
func (p *Prober) RunBatch(ctx context.Context, clusterID string, destinations []string, ahFor func(address string) ActiveHealth) {
	updates := make([]Update, len(destinations))

	g, gctx := errgroup.WithContext(ctx)
	for i, addr := range destinations {
		i, addr := i, addr
		g.Go(func() error {
			updates[i] = Update{Address: addr, Status: p.Probe(gctx, addr, ahFor(addr))}
			return nil
		})
	}
	_ = g.Wait() // per-destination errors are already folded into Status above

	if sink := p.sinkFor(clusterID); sink != nil {
		sink(clusterID, updates)
	}
}

// sinkFor is a seam for wiring a real sink; pipeline/config wiring attaches
// one via SetSink.
func (p *Prober) sinkFor(clusterID string) Sink {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sink
}

// SetSink attaches the health-update sink.
func (p *Prober) SetSink(s Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = s
}

func (p *Prober) logf(msg string, keyvals ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, keyvals...)
	}
}

// IsHealthy reports whether address is currently Healthy. Unknown counts
// as not healthy, matching the load balancer's Healthy-only filter.
func (p *Prober) IsHealthy(address string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.state[address]
	return ok && st.status == StatusHealthy
}
