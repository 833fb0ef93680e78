// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package lb

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func dests(ids ...string) []Destination {
	out := make([]Destination, len(ids))
	for i, id := range ids {
		out[i] = Destination{ID: id, Weight: 1}
	}
	return out
}

func TestSingleDestinationAlwaysWins(t *testing.T) {
	for _, alg := range []Algorithm{WeightedRoundRobin, WeightedLeastConnections, IpHashAlgorithm, GenericHashAlgorithm, WeightedRandomAlgorithm, ConsistentHashAlgorithm} {
		p := NewPolicy(alg, "")
		d, ok := p.Select("c1", &Context{Query: url.Values{}, Headers: http.Header{}}, dests("only"))
		assert.True(t, ok)
		assert.Equal(t, "only", d.ID)
	}
}

func TestEmptyDestinationsAlwaysNone(t *testing.T) {
	for _, alg := range []Algorithm{WeightedRoundRobin, WeightedLeastConnections, IpHashAlgorithm, GenericHashAlgorithm, WeightedRandomAlgorithm, ConsistentHashAlgorithm} {
		p := NewPolicy(alg, "")
		_, ok := p.Select("c1", &Context{Query: url.Values{}, Headers: http.Header{}}, nil)
		assert.False(t, ok)
	}
}

func TestWeightedRoundRobinRespectsRatio(t *testing.T) {
	p := newWeightedRoundRobin()
	ds := []Destination{{ID: "A", Weight: 2}, {ID: "B", Weight: 1}, {ID: "C", Weight: 1}}
	ctx := &Context{Query: url.Values{}, Headers: http.Header{}}

	counts := map[string]int{}
	for i := 0; i < 80; i++ {
		d, ok := p.Select("cluster", ctx, ds)
		assert.True(t, ok)
		counts[d.ID]++
	}
	assert.Equal(t, 40, counts["A"])
	assert.Equal(t, 20, counts["B"])
	assert.Equal(t, 20, counts["C"])
}

func TestWeightZeroTreatedAsOne(t *testing.T) {
	p := newWeightedRoundRobin()
	ds := []Destination{{ID: "A", Weight: 0}, {ID: "B", Weight: 1}}
	ctx := &Context{Query: url.Values{}, Headers: http.Header{}}
	counts := map[string]int{}
	for i := 0; i < 20; i++ {
		d, _ := p.Select("cluster", ctx, ds)
		counts[d.ID]++
	}
	assert.Equal(t, 10, counts["A"])
	assert.Equal(t, 10, counts["B"])
}

func TestWeightedLeastConnectionsPicksLowestRatio(t *testing.T) {
	p := leastConnections{}
	ds := []Destination{
		{ID: "A", Weight: 1, ConcurrentRequests: 10},
		{ID: "B", Weight: 2, ConcurrentRequests: 10},
		{ID: "C", Weight: 1, ConcurrentRequests: 20},
	}
	d, ok := p.Select("c", nil, ds)
	assert.True(t, ok)
	assert.Equal(t, "B", d.ID) // 10/2 = 5, lower than A's 10/1 and C's 20/1
}

func TestIpHashIsDeterministicForSameIP(t *testing.T) {
	p := ipHash{}
	ds := dests("A", "B", "C")
	ctx := &Context{ClientIP: "10.0.0.5", Headers: http.Header{}}

	d1, _ := p.Select("c", ctx, ds)
	d2, _ := p.Select("c", ctx, ds)
	assert.Equal(t, d1.ID, d2.ID)
}

func TestIpHashPrefersForwardedForOverSocketPeer(t *testing.T) {
	p := ipHash{}
	ds := dests("A", "B", "C")
	h := http.Header{}
	h.Set("X-Forwarded-For", "1.1.1.1, 2.2.2.2")
	withXff := &Context{ClientIP: "9.9.9.9", Headers: h}
	direct := &Context{ClientIP: "1.1.1.1", Headers: http.Header{}}

	d1, _ := p.Select("c", withXff, ds)
	d2, _ := p.Select("c", direct, ds)
	assert.Equal(t, d1.ID, d2.ID)
}

func TestGenericHashExpandsTemplate(t *testing.T) {
	p := genericHash{template: "{Path}:{Query.id}"}
	ds := dests("A", "B", "C")
	q := url.Values{"id": {"7"}}
	ctx := &Context{Path: "/foo", Query: q, Headers: http.Header{}}

	d1, _ := p.Select("c", ctx, ds)
	d2, _ := p.Select("c", ctx, ds)
	assert.Equal(t, d1.ID, d2.ID)
}

func TestWeightedRandomOnlyPicksFromSet(t *testing.T) {
	p := weightedRandom{}
	ds := []Destination{{ID: "A", Weight: 1}, {ID: "B", Weight: 5}}
	ctx := &Context{Headers: http.Header{}}
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		d, ok := p.Select("c", ctx, ds)
		assert.True(t, ok)
		seen[d.ID] = true
	}
	assert.Subset(t, []string{"A", "B"}, keysOf(seen))
}

func keysOf(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestConsistentHashStableForSameKey(t *testing.T) {
	p := newConsistentHash("{IP}")
	ds := dests("A", "B", "C")
	ctx := &Context{ClientIP: "10.0.0.5", Headers: http.Header{}}

	d1, _ := p.Select("cluster", ctx, ds)
	d2, _ := p.Select("cluster", ctx, ds)
	assert.Equal(t, d1.ID, d2.ID)
}

func TestConsistentHashMostlyStableAfterRemoval(t *testing.T) {
	p := newConsistentHash("{IP}")
	before := dests("A", "B", "C")
	after := dests("A", "B")

	unchanged := 0
	for i := 0; i < 1000; i++ {
		ip := randomIPv4(i)
		ctx := &Context{ClientIP: ip, Headers: http.Header{}}
		b, _ := p.Select("cluster", ctx, before)
		if b.ID == "C" {
			continue // C is gone from "after"; its mapping necessarily changes
		}
		a, _ := p.Select("cluster", ctx, after)
		if a.ID == b.ID {
			unchanged++
		}
	}
	assert.Greater(t, unchanged, 0)
}

func randomIPv4(i int) string {
	return "10.0." + itoa(i/256) + "." + itoa(i%256)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}
