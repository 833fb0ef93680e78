// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package lb

import (
	"crypto/md5"
	"encoding/binary"
	"math/rand"
	"strings"
)

// ipHash implements IpHash: hash = MD5(client_ip)[0..4] read
// little-endian, index = hash mod N.
type ipHash struct{}

func (ipHash) Select(clusterKey string, ctx *Context, destinations []Destination) (Destination, bool) {
	if d, ok, done := single(destinations); done {
		return d, ok
	}
	ip := clientIP(ctx)
	if ip == "" {
		return destinations[rand.Intn(len(destinations))], true
	}
	idx := hashToIndex(ip, len(destinations))
	return destinations[idx], true
}

// clientIP resolves the client address: the first value of
// X-Forwarded-For, else X-Real-IP, else the socket peer.
func clientIP(ctx *Context) string {
	if ctx == nil {
		return ""
	}
	if xff := ctx.Headers.Get("X-Forwarded-For"); xff != "" {
		first := strings.SplitN(xff, ",", 2)[0]
		return strings.TrimSpace(first)
	}
	if xri := ctx.Headers.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return ctx.ClientIP
}

// hashToIndex is the IpHash/GenericHash hashing primitive: MD5 digest,
// first 4 bytes read little-endian, reduced mod n.
func hashToIndex(key string, n int) int {
	sum := md5.Sum([]byte(key))
	h := binary.LittleEndian.Uint32(sum[0:4])
	return int(h % uint32(n))
}
