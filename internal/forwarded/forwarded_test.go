// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package forwarded

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newReq(headers map[string]string) *http.Request {
	req := &http.Request{Header: http.Header{}, URL: &url.URL{Scheme: "http"}, Host: "example.com"}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func TestForwardedAppendMatchesDocumentedScenario(t *testing.T) {
	req := newReq(map[string]string{
		"X-Forwarded-For":   "1.1.1.1, 2.2.2.2",
		"X-Forwarded-Proto": "https",
	})

	Process(req, "3.3.3.3", Config{IsX: false, Method: MethodAppend})

	assert.Equal(t, "", req.Header.Get("X-Forwarded-For"))
	assert.Equal(t, "", req.Header.Get("X-Forwarded-Proto"))
	assert.Equal(t, "", req.Header.Get("X-Forwarded-Host"))
	assert.Equal(t,
		"proto=https; for=1.1.1.1, proto=https; for=2.2.2.2, for=3.3.3.3; by=lywaf",
		req.Header.Get("Forwarded"))
}

func TestMethodNoneStripsAndEmitsNothing(t *testing.T) {
	req := newReq(map[string]string{
		"Forwarded":       `for=1.1.1.1`,
		"X-Forwarded-For": "1.1.1.1",
	})
	Process(req, "3.3.3.3", Config{Method: MethodNone})

	assert.Equal(t, "", req.Header.Get("Forwarded"))
	assert.Equal(t, "", req.Header.Get("X-Forwarded-For"))
}

func TestXForwardedSetUsesConfigOrRequestDefaults(t *testing.T) {
	req := newReq(nil)
	Process(req, "9.9.9.9", Config{IsX: true, Method: MethodSet})

	assert.Equal(t, "9.9.9.9", req.Header.Get("X-Forwarded-For"))
	assert.Equal(t, "http", req.Header.Get("X-Forwarded-Proto"))
	assert.Equal(t, "example.com", req.Header.Get("X-Forwarded-Host"))
}

func TestXForwardedAppendAddsOurIPToExistingList(t *testing.T) {
	req := newReq(map[string]string{"X-Forwarded-For": "1.1.1.1"})
	Process(req, "2.2.2.2", Config{IsX: true, Method: MethodAppend})

	assert.Equal(t, "1.1.1.1, 2.2.2.2", req.Header.Get("X-Forwarded-For"))
}

func TestForwardedSetBuildsSingleEntry(t *testing.T) {
	req := newReq(nil)
	Process(req, "1.2.3.4", Config{Method: MethodSet, Proto: "https", Host: "svc.internal"})

	assert.Equal(t, `proto=https; host="svc.internal"; for=1.2.3.4; by=lywaf`, req.Header.Get("Forwarded"))
}

func TestParseExistingTrimsQuotesAndSplitsOnCommaThenSemicolon(t *testing.T) {
	req := newReq(map[string]string{"Forwarded": `for=1.1.1.1;proto=https;host="a.example"`})
	ex := parseExisting(req.Header)

	assert.Equal(t, []string{"1.1.1.1"}, ex.forList)
	assert.Equal(t, "https", ex.proto)
	assert.Equal(t, "a.example", ex.host)
}
