// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package customdns

import (
	"context"
	"net"
)

// DialContext is the connect-callback contract for an
// outbound HTTP client: given (host, port) via addr and a cancellation
// signal via ctx, it opens a connection. If Resolve finds an override it
// dials that address directly with TCP_NODELAY set; otherwise it delegates
// to the system resolver for host.
func (r *Resolver) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return (&net.Dialer{}).DialContext(ctx, network, addr)
	}

	ip, ok := r.Resolve(host)
	if !ok {
		return (&net.Dialer{}).DialContext(ctx, network, addr)
	}

	conn, err := (&net.Dialer{}).DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return conn, nil
}
