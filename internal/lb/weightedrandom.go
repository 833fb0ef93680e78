// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package lb

import "math/rand"

// weightedRandom implements WeightedRandom: sample r in
// [1, sum(weights)] uniformly, pick the first destination whose cumulative
// weight is >= r.
type weightedRandom struct{}

func (weightedRandom) Select(clusterKey string, ctx *Context, destinations []Destination) (Destination, bool) {
	if d, ok, done := single(destinations); done {
		return d, ok
	}
	total := 0
	for _, d := range destinations {
		total += d.weight()
	}
	r := rand.Intn(total) + 1
	cum := 0
	for _, d := range destinations {
		cum += d.weight()
		if cum >= r {
			return d, true
		}
	}
	return destinations[len(destinations)-1], true
}
