// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package pipeline

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lywaf/lywaf/internal/admission"
	"github.com/lywaf/lywaf/internal/cidr"
	"github.com/lywaf/lywaf/internal/forwarded"
	"github.com/lywaf/lywaf/internal/health"
	"github.com/lywaf/lywaf/internal/lb"
	"github.com/lywaf/lywaf/internal/ratelimit"
	"github.com/lywaf/lywaf/internal/store"
	"github.com/stretchr/testify/assert"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// healthyProbeClient answers every probe request with a 200, so Probe
// never needs a real socket.
func healthyProbeClient() *http.Client {
	return &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: 200, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}, nil
	})}
}

type fakeForwarder struct {
	status int
	body   string
	err    error
	calls  []string
}

func (f *fakeForwarder) Forward(ctx context.Context, req *http.Request, destAddr string) (*http.Response, error) {
	f.calls = append(f.calls, destAddr)
	if f.err != nil {
		return nil, f.err
	}
	return &http.Response{
		StatusCode: f.status,
		Header:     http.Header{},
		Body:       io.NopCloser(bytes.NewBufferString(f.body)),
	}, nil
}

func newTestPipeline(fwd Forwarder) (*Pipeline, *Cluster) {
	cluster := &Cluster{
		ID: "c1",
		Destinations: []*Destination{
			{ID: "d1", Address: "http://10.0.0.1:8080", Weight: 1},
		},
		LBPolicy: lb.NewPolicy(lb.WeightedRoundRobin, ""),
	}
	prober := health.New(healthyProbeClient(), nil)
	prober.Probe(context.Background(), "http://10.0.0.1:8080", health.ActiveHealth{Passes: 1, Fails: 1})

	p := New()
	p.RegisterCluster(cluster)
	p.Prober = prober
	p.Forwarder = fwd
	p.Counters = store.New()
	return p, cluster
}

func newReq(path, remoteAddr string) (*http.Request, *httptest.ResponseRecorder) {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	r.RemoteAddr = remoteAddr
	return r, httptest.NewRecorder()
}

func TestHandleForwardsToHealthyDestination(t *testing.T) {
	fwd := &fakeForwarder{status: 200, body: "ok"}
	p, _ := newTestPipeline(fwd)

	req, rec := newReq("/users/42", "203.0.113.9:5555")
	p.Handle(rec, req, Listener{ClusterID: "c1", Forwarded: forwarded.Config{Method: forwarded.MethodNone}})

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, "LyWaf", rec.Header().Get("Server"))
	assert.Equal(t, []string{"http://10.0.0.1:8080"}, fwd.calls)
}

func TestHandleBanListShortCircuitsForbidden(t *testing.T) {
	p, _ := newTestPipeline(&fakeForwarder{status: 200})
	p.Bans = admission.NewBanList(store.New(), time.Minute)
	p.Bans.Ban("203.0.113.9", "abuse")

	req, rec := newReq("/", "203.0.113.9:5555")
	p.Handle(rec, req, Listener{ClusterID: "c1", BanPage: BanPage{Template: "banned: {local_client_ip}"}})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "203.0.113.9")
}

func TestHandleAdmissionDenyRendersReject(t *testing.T) {
	p, _ := newTestPipeline(&fakeForwarder{status: 200})
	blacklist, err := cidr.ParseList([]string{"203.0.113.0/24"})
	assert.NoError(t, err)
	p.Gate = admission.New(nil, &admission.Config{IPControlEnabled: true, GlobalBlacklist: blacklist})

	req, rec := newReq("/", "203.0.113.9:5555")
	p.Handle(rec, req, Listener{ClusterID: "c1", Reject: RejectConfig{StatusCode: 403, Message: "denied {ClientIp}"}})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "denied 203.0.113.9", rec.Body.String())
}

func TestHandleRateLimitRejectsSecondRequest(t *testing.T) {
	p, _ := newTestPipeline(&fakeForwarder{status: 200})
	p.Limiters = ratelimit.NewRegistry([]ratelimit.PolicyConfig{
		{PolicyName: "strict", Algorithm: ratelimit.Fixed, Limit: 1, Window: time.Minute},
	}, "")

	ln := Listener{ClusterID: "c1", RateLimitName: "strict"}

	req1, rec1 := newReq("/", "203.0.113.9:5555")
	p.Handle(rec1, req1, ln)
	assert.Equal(t, 200, rec1.Code)

	req2, rec2 := newReq("/", "203.0.113.9:5555")
	p.Handle(rec2, req2, ln)
	assert.Equal(t, ratelimit.DefaultRejectStatus, rec2.Code)
}

func TestHandleNoHealthyDestinationReturns503(t *testing.T) {
	cluster := &Cluster{
		ID:           "c2",
		Destinations: []*Destination{{ID: "d1", Address: "http://10.0.0.9:8080", Weight: 1}},
		LBPolicy:     lb.NewPolicy(lb.WeightedRoundRobin, ""),
	}
	p := New()
	p.RegisterCluster(cluster)
	p.Prober = health.New(nil, nil) // destination never probed -> not Healthy
	p.Forwarder = &fakeForwarder{status: 200}

	req, rec := newReq("/", "203.0.113.9:5555")
	p.Handle(rec, req, Listener{ClusterID: "c2"})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleUpstreamErrorReturns502(t *testing.T) {
	p, _ := newTestPipeline(&fakeForwarder{err: assertErr{}})

	req, rec := newReq("/", "203.0.113.9:5555")
	p.Handle(rec, req, Listener{ClusterID: "c1"})

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
