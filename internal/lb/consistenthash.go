// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package lb

import (
	"sort"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// consistentHash implements ConsistentHash: a ring keyed by
// (clusterId, sorted destination IDs), virtual_nodes entries per destination
// hashed from "id:i", looked up by lower_bound with wrap-around to index 0.
type consistentHash struct {
	template string

	mu    sync.Mutex
	cache map[string]*hashRing
}

type hashRing struct {
	idsHash string
	keys    []uint64 // sorted ring positions
	owners  []string // owners[i] owns keys[i]
}

func newConsistentHash(template string) *consistentHash {
	return &consistentHash{template: template, cache: make(map[string]*hashRing)}
}

func (c *consistentHash) Select(clusterKey string, ctx *Context, destinations []Destination) (Destination, bool) {
	if d, ok, done := single(destinations); done {
		return d, ok
	}

	idsHash := sortedIDsHash(destinations)
	c.mu.Lock()
	ring, ok := c.cache[clusterKey]
	if !ok || ring.idsHash != idsHash {
		ring = buildRing(destinations, idsHash)
		c.cache[clusterKey] = ring
	}
	c.mu.Unlock()

	key := expandTemplate(c.template, ctx)
	ownerID := ring.lookup(ringHash(key))
	if d, ok := destinationByID(destinations, ownerID); ok {
		return d, true
	}
	return destinations[0], true
}

func buildRing(destinations []Destination, idsHash string) *hashRing {
	type entry struct {
		key   uint64
		owner string
	}
	var entries []entry
	for _, d := range destinations {
		for i := 0; i < d.virtualNodes(); i++ {
			entries = append(entries, entry{key: ringHash(d.ID + ":" + strconv.Itoa(i)), owner: d.ID})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	ring := &hashRing{idsHash: idsHash, keys: make([]uint64, len(entries)), owners: make([]string, len(entries))}
	for i, e := range entries {
		ring.keys[i] = e.key
		ring.owners[i] = e.owner
	}
	return ring
}

// lookup finds the lower_bound of key in the ring; hashes at or below the
// minimum, or above the maximum, wrap to index 0.
func (r *hashRing) lookup(key uint64) string {
	if len(r.keys) == 0 {
		return ""
	}
	if key <= r.keys[0] || key > r.keys[len(r.keys)-1] {
		return r.owners[0]
	}
	idx := sort.Search(len(r.keys), func(i int) bool { return r.keys[i] >= key })
	if idx == len(r.keys) {
		idx = 0
	}
	return r.owners[idx]
}

func ringHash(s string) uint64 {
	return xxhash.Sum64String(s)
}
