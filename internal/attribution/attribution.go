// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package attribution implements Path Attribution: canonicalising
// a request path to the pattern that matched it, for counter bucketing. The
// pattern set is compiled into a bitmask trie over canonical prefixes, and
// results are cached per path for 120s with singleflight de-duplication of
// concurrent computes for the same path.
package attribution

import (
	"strings"
	"time"

	"github.com/lywaf/lywaf/internal/store"
	"golang.org/x/sync/singleflight"
)

// CacheTTL is how long a canonicalised path is cached.
const CacheTTL = 120 * time.Second

// nextMask is the 3-bit mask of possible next-segment classes for a prefix.
type nextMask uint8

const (
	maskAny nextMask = 1 << iota
	maskMatch
	maskFull
)

const (
	anyMarker   = "\x00*\x00"
	matchMarker = "\x00{}\x00"
	connector   = "\x1f"
)

// Matcher canonicalises paths against a compiled pattern set.
type Matcher struct {
	leaves  map[string]string
	hasNext map[string]nextMask

	// barePrefixes holds patterns ending in a bare "*" (no preceding "/"),
	// which defines as a literal string-prefix match on the
	// stripped pattern, rather than a segment-based trie match.
	barePrefixes []barePrefix

	cache *store.Store
	sf    singleflight.Group
}

type barePrefix struct {
	stripped string
	original string
}

// NewMatcher compiles patterns into a Matcher. cache backs the 120s
// per-path result cache; pass a dedicated *store.Store (sweeper runs
// independently of other TTL maps).
func NewMatcher(patterns []string, cache *store.Store) *Matcher {
	m := &Matcher{
		leaves:  make(map[string]string),
		hasNext: make(map[string]nextMask),
		cache:   cache,
	}
	for _, p := range patterns {
		m.addPattern(p)
	}
	return m
}

func (m *Matcher) addPattern(pattern string) {
	if strings.HasSuffix(pattern, "*") && !strings.HasSuffix(pattern, "/*") {
		m.barePrefixes = append(m.barePrefixes, barePrefix{
			stripped: strings.TrimSuffix(pattern, "*"),
			original: pattern,
		})
		return
	}

	segs := splitPath(pattern)
	var tokens []string
	for _, seg := range segs {
		prefix := strings.Join(tokens, connector)
		switch segmentClass(seg) {
		case maskAny:
			m.hasNext[prefix] |= maskAny
			tokens = append(tokens, anyMarker)
		case maskMatch:
			m.hasNext[prefix] |= maskMatch
			tokens = append(tokens, matchMarker)
		default:
			m.hasNext[prefix] |= maskFull
			tokens = append(tokens, seg)
		}
	}
	m.leaves[strings.Join(tokens, connector)] = pattern
}

func segmentClass(seg string) nextMask {
	switch {
	case seg == "*":
		return maskAny
	case strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}"):
		return maskMatch
	default:
		return maskFull
	}
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// Canonicalize returns the registered pattern matching path, or path itself
// unchanged if no pattern matches (including the empty pattern set case).
func (m *Matcher) Canonicalize(path string) string {
	if m.cache != nil {
		if v, ok := m.cache.TryGet(path); ok {
			return v.(string)
		}
	}

	v, _, _ := m.sf.Do(path, func() (any, error) {
		return m.compute(path), nil
	})
	result := v.(string)

	if m.cache != nil {
		m.cache.AddOrUpdate(path, result, CacheTTL)
	}
	return result
}

// compute runs the trie-walk: for each input segment, expand
// every active prefix in the working set by every next-class its mask
// allows, short-circuiting the moment a new prefix is both reachable and a
// registered leaf (for ANY marker prefixes) or, for MATCH and FULL
// prefixes, once the last segment has been consumed.
func (m *Matcher) compute(path string) string {
	segs := splitPath(path)
	working := []string{""}
	last := len(segs) - 1

	for i, s := range segs {
		var next []string
		for _, p := range working {
			mask := m.hasNext[p]
			if mask == 0 {
				continue
			}
			if mask&maskAny != 0 {
				np := joinPrefix(p, anyMarker)
				if pattern, ok := m.leaves[np]; ok {
					return pattern
				}
				next = append(next, np)
			}
			if mask&maskFull != 0 {
				np := joinPrefix(p, s)
				if i == last {
					if pattern, ok := m.leaves[np]; ok {
						return pattern
					}
				} else {
					next = append(next, np)
				}
			}
			if mask&maskMatch != 0 {
				np := joinPrefix(p, matchMarker)
				if i == last {
					if pattern, ok := m.leaves[np]; ok {
						return pattern
					}
				} else {
					next = append(next, np)
				}
			}
		}
		if len(next) == 0 {
			return m.matchBare(path)
		}
		working = next
	}

	return m.matchBare(path)
}

func (m *Matcher) matchBare(path string) string {
	var best barePrefix
	found := false
	for _, bp := range m.barePrefixes {
		if strings.HasPrefix(path, bp.stripped) && len(bp.stripped) >= len(best.stripped) {
			best = bp
			found = true
		}
	}
	if found {
		return best.original
	}
	return path
}

func joinPrefix(prefix, token string) string {
	if prefix == "" {
		return token
	}
	return prefix + connector + token
}
