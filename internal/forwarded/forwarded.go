// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package forwarded implements the Forwarded header processor: parsing
// existing RFC 7239 Forwarded and X-Forwarded-* headers, stripping them,
// and re-emitting either style per a per-listener config.
package forwarded

import (
	"net/http"
	"strings"
)

// Method selects whether, and how, forwarding headers are (re-)emitted.
type Method string

const (
	MethodNone   Method = "none"
	MethodSet    Method = "set"
	MethodAppend Method = "append"
)

// Config is one listener's Forwarded-header policy.
type Config struct {
	For    string // default client IP to emit in "set" mode; empty means use the connection's remote IP
	Proto  string // default proto to emit; empty means derive from the request
	Host   string // default host to emit; empty means derive from the request
	Method Method
	IsX    bool // true: emit X-Forwarded-*; false: emit RFC 7239 Forwarded
}

const ourTag = "lywaf"

var forwardedHeaderFamily = []string{"Forwarded", "X-Forwarded-For", "X-Forwarded-Proto", "X-Forwarded-Host"}

// existing is the parsed state of any inbound Forwarded/X-Forwarded-* headers.
type existing struct {
	forList []string
	proto   string
	host    string
}

// Process mutates req in place , given the socket peer's
// remote IP (connection.remote_ip).
func Process(req *http.Request, remoteIP string, cfg Config) {
	ex := parseExisting(req.Header)

	for _, h := range forwardedHeaderFamily {
		req.Header.Del(h)
	}

	if cfg.Method == MethodNone || cfg.Method == "" {
		return
	}

	ourFor := cfg.For
	if ourFor == "" {
		ourFor = remoteIP
	}
	ourProto := cfg.Proto
	if ourProto == "" {
		ourProto = requestScheme(req)
	}
	ourHost := cfg.Host
	if ourHost == "" {
		ourHost = req.Host
	}

	if cfg.IsX {
		emitX(req, ex, cfg, ourFor, ourProto, ourHost)
		return
	}
	emitForwarded(req, ex, cfg, ourFor, ourProto, ourHost)
}

func parseExisting(h http.Header) existing {
	var ex existing

	if fwd := h.Get("Forwarded"); fwd != "" {
		for _, entry := range strings.Split(fwd, ",") {
			for _, kv := range strings.Split(entry, ";") {
				kv = strings.TrimSpace(kv)
				if kv == "" {
					continue
				}
				parts := strings.SplitN(kv, "=", 2)
				if len(parts) != 2 {
					continue
				}
				key := strings.ToLower(strings.TrimSpace(parts[0]))
				val := strings.Trim(strings.TrimSpace(parts[1]), `"`)
				switch key {
				case "for":
					ex.forList = append(ex.forList, val)
				case "proto":
					ex.proto = val
				case "host":
					ex.host = val
				}
			}
		}
	}

	if xff := h.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				ex.forList = append(ex.forList, part)
			}
		}
	}
	if p := h.Get("X-Forwarded-Proto"); p != "" {
		ex.proto = p
	}
	if hh := h.Get("X-Forwarded-Host"); hh != "" {
		ex.host = hh
	}
	return ex
}

func requestScheme(req *http.Request) string {
	if req.TLS != nil {
		return "https"
	}
	if req.URL != nil && req.URL.Scheme != "" {
		return req.URL.Scheme
	}
	return "http"
}

// emitX rewrites the legacy X-Forwarded-* headers per cfg.
func emitX(req *http.Request, ex existing, cfg Config, ourFor, ourProto, ourHost string) {
	switch cfg.Method {
	case MethodSet:
		req.Header.Set("X-Forwarded-For", ourFor)
		req.Header.Set("X-Forwarded-Proto", ourProto)
		req.Header.Set("X-Forwarded-Host", ourHost)
	case MethodAppend:
		list := append(append([]string{}, ex.forList...), ourFor)
		req.Header.Set("X-Forwarded-For", strings.Join(list, ", "))

		proto := ex.proto
		if proto == "" {
			proto = ourProto
		}
		req.Header.Set("X-Forwarded-Proto", proto)

		host := ex.host
		if host == "" {
			host = ourHost
		}
		req.Header.Set("X-Forwarded-Host", host)
	}
}

// emitForwarded rewrites the RFC 7239 Forwarded header per cfg.
func emitForwarded(req *http.Request, ex existing, cfg Config, ourFor, ourProto, ourHost string) {
	var entries []string

	switch cfg.Method {
	case MethodSet:
		entries = append(entries, formatEntry(ourProto, ourHost, ourFor, true))
	case MethodAppend:
		for _, f := range ex.forList {
			entries = append(entries, formatEntry(ex.proto, ex.host, f, false))
		}
		entries = append(entries, formatEntry(cfg.Proto, cfg.Host, ourFor, true))
	}

	req.Header.Set("Forwarded", strings.Join(entries, ", "))
}

// formatEntry renders proto=…; host="…"; for=…[; by=lywaf], omitting any
// field left empty, in fixed field order.
func formatEntry(proto, host, forVal string, withBy bool) string {
	var parts []string
	if proto != "" {
		parts = append(parts, "proto="+proto)
	}
	if host != "" {
		parts = append(parts, `host="`+host+`"`)
	}
	if forVal != "" {
		parts = append(parts, "for="+forVal)
	}
	if withBy {
		parts = append(parts, "by="+ourTag)
	}
	return strings.Join(parts, "; ")
}
