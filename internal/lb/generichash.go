// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package lb

// genericHash implements GenericHash: expand the HashKey
// template against the request context, then hash exactly as IpHash does.
type genericHash struct {
	template string
}

func (g genericHash) Select(clusterKey string, ctx *Context, destinations []Destination) (Destination, bool) {
	if d, ok, done := single(destinations); done {
		return d, ok
	}
	key := expandTemplate(g.template, ctx)
	idx := hashToIndex(key, len(destinations))
	return destinations[idx], true
}
