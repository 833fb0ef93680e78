// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package health

import (
	"encoding/json"
	"strconv"
	"strings"
)

// EvaluateSuccess applies success predicate to a completed
// probe response. With no metadata set at all, success is plain HTTP 2xx.
func EvaluateSuccess(statusCode int, headers map[string][]string, body []byte, ah ActiveHealth) bool {
	if ah.AvalidCode == "" && ah.AvalidContent == "" && ah.AvalidHeaders == "" {
		return statusCode >= 200 && statusCode < 300
	}

	if ah.AvalidCode != "" && !statusSetMatches(ah.AvalidCode, statusCode) {
		return false
	}
	if ah.AvalidContent != "" && !contentMatches(ah.contentCheck(), ah.AvalidContent, body) {
		return false
	}
	if ah.AvalidHeaders != "" && !headersMatch(ah.AvalidHeaders, headers) {
		return false
	}
	return true
}

// statusSetMatches parses a comma-separated set of "200", "2xx", "20x"
// style tokens and reports whether code belongs to any of them.
func statusSetMatches(set string, code int) bool {
	for _, tok := range strings.Split(set, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if matchesStatusToken(tok, code) {
			return true
		}
	}
	return false
}

func matchesStatusToken(tok string, code int) bool {
	tok = strings.ToLower(tok)
	if !strings.Contains(tok, "x") {
		v, err := strconv.Atoi(tok)
		return err == nil && v == code
	}
	minStr := strings.ReplaceAll(tok, "x", "0")
	maxStr := strings.ReplaceAll(tok, "x", "9")
	min, err1 := strconv.Atoi(minStr)
	max, err2 := strconv.Atoi(maxStr)
	if err1 != nil || err2 != nil {
		return false
	}
	return code >= min && code <= max
}

func contentMatches(mode, literal string, body []byte) bool {
	switch mode {
	case "Match":
		return strings.TrimSpace(string(body)) == literal
	case "JSON":
		return jsonContains(literal, body, false)
	case "JSONM":
		return jsonContains(literal, body, true)
	default: // Contains
		return strings.Contains(string(body), literal)
	}
}

// jsonContains reports whether every property of literal exists in body
// with a matching value. recursive enables JSONM's nested-object and
// array-element-containment semantics; JSON only checks the top level.
func jsonContains(literal string, body []byte, recursive bool) bool {
	var want, got any
	if json.Unmarshal([]byte(literal), &want) != nil {
		return false
	}
	if json.Unmarshal(body, &got) != nil {
		return false
	}
	if !recursive {
		wantMap, ok1 := want.(map[string]any)
		gotMap, ok2 := got.(map[string]any)
		if !ok1 || !ok2 {
			return false
		}
		for k, v := range wantMap {
			gv, ok := gotMap[k]
			if !ok || !deepEqual(v, gv) {
				return false
			}
		}
		return true
	}
	return jsonSubset(want, got)
}

// jsonSubset implements JSONM's recursive containment: every property of
// want exists in got; arrays check element containment (want ⊆ got).
func jsonSubset(want, got any) bool {
	switch w := want.(type) {
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok {
			return false
		}
		for k, wv := range w {
			gv, ok := g[k]
			if !ok || !jsonSubset(wv, gv) {
				return false
			}
		}
		return true
	case []any:
		g, ok := got.([]any)
		if !ok {
			return false
		}
		for _, we := range w {
			found := false
			for _, ge := range g {
				if jsonSubset(we, ge) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	default:
		return deepEqual(want, got)
	}
}

func deepEqual(a, b any) bool {
	aj, err1 := json.Marshal(a)
	bj, err2 := json.Marshal(b)
	return err1 == nil && err2 == nil && string(aj) == string(bj)
}

func headersMatch(spec string, headers map[string][]string) bool {
	for _, pair := range strings.Split(spec, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return false
		}
		name, want := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		found := false
		for hn, vals := range headers {
			if !strings.EqualFold(hn, name) {
				continue
			}
			for _, v := range vals {
				if strings.Contains(v, want) {
					found = true
				}
			}
		}
		if !found {
			return false
		}
	}
	return true
}
