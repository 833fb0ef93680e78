// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package lb

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// weightedRoundRobin implements WeightedRoundRobin: weights
// are GCD-normalised and each destination expanded w/gcd times into a
// sequence, cached by clusterId + hash of the sorted destination IDs. Index
// counter++ mod len(sequence) is per-cluster-key and atomic.
type weightedRoundRobin struct {
	mu    sync.Mutex
	cache map[string]*wrrSequence
}

type wrrSequence struct {
	idsHash string
	order   []string // destination IDs, expanded per weight
	counter uint64
}

func newWeightedRoundRobin() *weightedRoundRobin {
	return &weightedRoundRobin{cache: make(map[string]*wrrSequence)}
}

func (w *weightedRoundRobin) Select(clusterKey string, ctx *Context, destinations []Destination) (Destination, bool) {
	if d, ok, done := single(destinations); done {
		return d, ok
	}

	idsHash := sortedIDsHash(destinations)

	w.mu.Lock()
	seq, ok := w.cache[clusterKey]
	if !ok || seq.idsHash != idsHash {
		seq = &wrrSequence{idsHash: idsHash, order: buildWeightedSequence(destinations)}
		w.cache[clusterKey] = seq
	}
	w.mu.Unlock()

	idx := (atomic.AddUint64(&seq.counter, 1) - 1) % uint64(len(seq.order))
	id := seq.order[idx]
	for _, d := range destinations {
		if d.ID == id {
			return d, true
		}
	}
	// The cached sequence referred to a destination no longer present;
	// rebuild and retry once.
	w.mu.Lock()
	seq = &wrrSequence{idsHash: idsHash, order: buildWeightedSequence(destinations)}
	w.cache[clusterKey] = seq
	w.mu.Unlock()
	idx = (atomic.AddUint64(&seq.counter, 1) - 1) % uint64(len(seq.order))
	return destinationByID(destinations, seq.order[idx])
}

func destinationByID(destinations []Destination, id string) (Destination, bool) {
	for _, d := range destinations {
		if d.ID == id {
			return d, true
		}
	}
	return Destination{}, false
}

func buildWeightedSequence(destinations []Destination) []string {
	g := 0
	for _, d := range destinations {
		g = gcd(g, d.weight())
	}
	if g == 0 {
		g = 1
	}
	var order []string
	for _, d := range destinations {
		reps := d.weight() / g
		for i := 0; i < reps; i++ {
			order = append(order, d.ID)
		}
	}
	return order
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func sortedIDsHash(destinations []Destination) string {
	ids := make([]string, len(destinations))
	for i, d := range destinations {
		ids[i] = d.ID
	}
	sort.Strings(ids)
	return strconv.Itoa(len(ids)) + ":" + strings.Join(ids, ",")
}
