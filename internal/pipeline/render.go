// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package pipeline

import (
	"net/http"
	"strings"
	"time"

	"github.com/lywaf/lywaf/internal/admission"
)

// BanPage renders the ban page issued when a client's
// address is present in the ban list: status 403, UTF-8 HTML, substituting
// {local_client_ip} and, only when Debug is set (this repo's stand-in for
// "debug builds only"), {show_reason_info}.
type BanPage struct {
	Template string
	Debug    bool
}

func (p BanPage) render(clientIP, reason string) string {
	out := strings.ReplaceAll(p.Template, "{local_client_ip}", clientIP)
	reasonInfo := ""
	if p.Debug {
		reasonInfo = reason
	}
	return strings.ReplaceAll(out, "{show_reason_info}", reasonInfo)
}

func (p BanPage) write(w http.ResponseWriter, clientIP, reason string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(p.render(clientIP, reason)))
}

// RejectConfig is a listener's admission/rate-limit rejection response:
// the status/message pair rendered on denial.
type RejectConfig struct {
	StatusCode int    // default 403 for admission denials
	Message    string // may contain {ClientIp},{Path},{Method},{Host},{Time},{Country},{Region},{City}
}

func (c RejectConfig) statusCode(fallback int) int {
	if c.StatusCode > 0 {
		return c.StatusCode
	}
	return fallback
}

// substitute fills a RejectConfig.Message's placeholders from one request
// and the admission Decision that denied it.
func substitute(message string, r *http.Request, clientIP string, decision admission.Decision, now time.Time) string {
	repl := strings.NewReplacer(
		"{ClientIp}", clientIP,
		"{Path}", r.URL.Path,
		"{Method}", r.Method,
		"{Host}", r.Host,
		"{Time}", now.UTC().Format("2006-01-02 15:04:05"),
		"{Country}", geoField(decision, "country"),
		"{Region}", geoField(decision, "region"),
		"{City}", geoField(decision, "city"),
	)
	return repl.Replace(message)
}

func geoField(d admission.Decision, field string) string {
	if d.Geo == nil {
		return ""
	}
	switch field {
	case "country":
		return d.Geo.Country
	case "region":
		return d.Geo.Region
	case "city":
		return d.Geo.City
	default:
		return ""
	}
}

func writeReject(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if message != "" {
		_, _ = w.Write([]byte(message))
	}
}
