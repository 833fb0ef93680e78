// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package attribution

import (
	"testing"

	"github.com/lywaf/lywaf/internal/store"
	"github.com/stretchr/testify/assert"
)

func newTestMatcher(patterns []string) *Matcher {
	s := store.New()
	return NewMatcher(patterns, s)
}

func TestCanonicalizeMatchesDocumentedScenario(t *testing.T) {
	m := newTestMatcher([]string{"/users/{id}", "/users/{id}/orders", "/static/*"})

	assert.Equal(t, "/users/{id}", m.Canonicalize("/users/42"))
	assert.Equal(t, "/users/{id}/orders", m.Canonicalize("/users/42/orders"))
	assert.Equal(t, "/static/*", m.Canonicalize("/static/css/app.css"))
	assert.Equal(t, "/unknown/x", m.Canonicalize("/unknown/x"))
}

func TestCanonicalizeWithNoPatternsReturnsInputUnchanged(t *testing.T) {
	m := newTestMatcher(nil)
	assert.Equal(t, "/anything/here", m.Canonicalize("/anything/here"))
}

func TestCanonicalizeCachesResult(t *testing.T) {
	m := newTestMatcher([]string{"/a/{id}"})
	first := m.Canonicalize("/a/1")
	second := m.Canonicalize("/a/1")
	assert.Equal(t, first, second)
	assert.Equal(t, "/a/{id}", first)
}

func TestCanonicalizeAnyMarkerWildcard(t *testing.T) {
	m := newTestMatcher([]string{"/v1/*/health"})
	assert.Equal(t, "/v1/*/health", m.Canonicalize("/v1/anything/health"))
}

func TestCanonicalizeBareStarPrefix(t *testing.T) {
	m := newTestMatcher([]string{"/static*"})
	assert.Equal(t, "/static*", m.Canonicalize("/staticfoo/bar"))
}
