// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package forwarder is the pipeline.Forwarder implementation that actually
// performs the upstream HTTP round-trip as an external collaborator. It
// owns the one http.Transport shared by every request,
// wired with internal/customdns's connect-callback contract so destination
// overrides take effect without touching the system resolver.
package forwarder

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/lywaf/lywaf/internal/customdns"
)

// HTTP round-trips a request against an explicit destination address,
// pointing the request URL's scheme and host at the chosen backend before
// sending. The inbound Host header is kept; the backend's host is used as
// Host only when the request carries none.
type HTTP struct {
	client *http.Client
}

// New builds an HTTP forwarder. resolver may be nil, in which case dialing
// falls back to the system resolver and net.Dialer directly.
func New(resolver *customdns.Resolver) *HTTP {
	dial := (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	if resolver != nil {
		dial = resolver.DialContext
	}
	transport := &http.Transport{
		DialContext:           dial,
		MaxIdleConns:          512,
		MaxIdleConnsPerHost:   64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		// Upstream responses are streamed to the client through the
		// pipeline's own throttle; disabling transparent decompression
		// keeps Content-Length accurate for that copy.
		DisableCompression: true,
	}
	return &HTTP{client: &http.Client{Transport: transport}}
}

// Forward implements pipeline.Forwarder. destAddr is a destination's
// configured address, either a bare host:port or a full http(s):// URL
// (pipeline.Destination.Address accepts both).
func (h *HTTP) Forward(ctx context.Context, req *http.Request, destAddr string) (*http.Response, error) {
	scheme, host := "http", destAddr
	if u, err := url.Parse(destAddr); err == nil && u.Scheme != "" && u.Host != "" {
		scheme, host = u.Scheme, u.Host
	}

	out := req.Clone(ctx)
	out.RequestURI = ""
	out.URL.Scheme = scheme
	out.URL.Host = host
	out.Host = req.Host
	if out.Host == "" {
		out.Host = host
	}
	return h.client.Do(out)
}
