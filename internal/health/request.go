// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package health

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// ActiveHealth is one cluster's active health-check configuration.
type ActiveHealth struct {
	Method        string // GET|POST, default GET
	Path          string
	Query         string
	Body          string
	AvalidCode    string // e.g. "200,2xx,20x"
	AvalidContent string
	ContentCheck  string // Contains|Match|JSON|JSONM, default Contains
	AvalidHeaders string // ";"-separated Name=Value
	Passes        int
	Fails         int
}

func (a ActiveHealth) method() string {
	if a.Method == "" {
		return http.MethodGet
	}
	return a.Method
}

func (a ActiveHealth) contentCheck() string {
	if a.ContentCheck == "" {
		return "Contains"
	}
	return a.ContentCheck
}

// Thresholds converts the cluster metadata's Passes/Fails into a Thresholds.
func (a ActiveHealth) Thresholds() Thresholds {
	return Thresholds{PassTimes: a.Passes, FailTimes: a.Fails}
}

// BuildRequest constructs the probe request for one destination: URI is
// address joined with Path (collapsing a duplicate "/"), with Query
// appended; body content-type is chosen by whether Body parses as JSON.
func BuildRequest(ctx context.Context, address string, ah ActiveHealth) (*http.Request, error) {
	uri := joinURL(address, ah.Path)
	if ah.Query != "" {
		if strings.Contains(uri, "?") {
			uri += "&" + ah.Query
		} else {
			uri += "?" + ah.Query
		}
	}

	var body strings.Reader
	if ah.Body != "" {
		body = *strings.NewReader(ah.Body)
	}

	req, err := http.NewRequestWithContext(ctx, ah.method(), uri, &body)
	if err != nil {
		return nil, err
	}
	if ah.Body != "" {
		if isJSON(ah.Body) {
			req.Header.Set("Content-Type", "application/json")
		} else {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	return req, nil
}

func joinURL(address, path string) string {
	if path == "" {
		return address
	}
	return strings.TrimSuffix(address, "/") + "/" + strings.TrimPrefix(path, "/")
}

func isJSON(s string) bool {
	var v any
	return json.Unmarshal([]byte(s), &v) == nil
}
