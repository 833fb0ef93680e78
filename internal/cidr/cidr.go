// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package cidr implements the IpNetwork matcher: parsing "a.b.c.d",
// "a.b.c.d/n" and IPv6 forms, and prefix-membership testing with no
// family-crossing false positives.
package cidr

import (
	"fmt"
	"net"
	"strings"
)

// Family distinguishes IPv4 from IPv6 networks.
type Family int

const (
	V4 Family = iota
	V6
)

// Network is the parsed, mask-normalised form of a CIDR literal.
type Network struct {
	family  Family
	network net.IP // already masked, in 4-byte or 16-byte form
	prefix  int
}

// Parse accepts "a.b.c.d", "a.b.c.d/n", and "...::/n". A missing prefix
// yields a host route (/32 for v4, /128 for v6). Construction pre-computes
// the masked network bytes.
func Parse(s string) (Network, error) {
	s = strings.TrimSpace(s)
	addrPart, prefixPart, hasPrefix := strings.Cut(s, "/")

	ip := net.ParseIP(addrPart)
	if ip == nil {
		return Network{}, fmt.Errorf("cidr: invalid address %q", s)
	}

	v4 := ip.To4()
	var family Family
	var bits int
	var addrBytes net.IP
	if v4 != nil {
		family = V4
		bits = 32
		addrBytes = v4
	} else {
		family = V6
		bits = 128
		addrBytes = ip.To16()
	}

	prefix := bits
	if hasPrefix {
		n, err := parsePrefix(prefixPart, bits)
		if err != nil {
			return Network{}, err
		}
		prefix = n
	}
	if prefix > bits {
		return Network{}, fmt.Errorf("cidr: prefix %d exceeds %d bits", prefix, bits)
	}

	mask := net.CIDRMask(prefix, bits)
	masked := addrBytes.Mask(mask)

	return Network{family: family, network: masked, prefix: prefix}, nil
}

func parsePrefix(s string, bits int) (int, error) {
	n := 0
	if s == "" {
		return 0, fmt.Errorf("cidr: empty prefix")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("cidr: invalid prefix %q", s)
		}
		n = n*10 + int(r-'0')
		if n > bits {
			return 0, fmt.Errorf("cidr: prefix %q exceeds %d", s, bits)
		}
	}
	return n, nil
}

// Family reports whether this is a V4 or V6 network.
func (n Network) Family() Family { return n.family }

// Prefix reports the normalised prefix length.
func (n Network) Prefix() int { return n.prefix }

// String renders the network back as "a.b.c.d/n".
func (n Network) String() string {
	return fmt.Sprintf("%s/%d", n.network.String(), n.prefix)
}

// Contains reports whether ip falls within the network: same address
// family, and the top Prefix() bits match. Cross-family comparisons always
// return false.
func (n Network) Contains(ip net.IP) bool {
	if ip == nil {
		return false
	}
	v4 := ip.To4()
	var candidate net.IP
	var family Family
	if v4 != nil {
		family = V4
		candidate = v4
	} else {
		family = V6
		candidate = ip.To16()
		if candidate == nil {
			return false
		}
	}
	if family != n.family {
		return false
	}
	mask := net.CIDRMask(n.prefix, len(n.network)*8)
	masked := candidate.Mask(mask)
	return masked.Equal(n.network)
}

// ContainsString is a convenience wrapper around Contains for a textual IP.
func (n Network) ContainsString(ip string) bool {
	parsed := net.ParseIP(ip)
	return parsed != nil && n.Contains(parsed)
}

// List is a parsed set of networks evaluated with a single Matches call,
// as used by the admission gate's white/black lists.
type List struct {
	nets []Network
}

// ParseList parses every entry in entries (skipping blanks), returning a
// *List or the first parse error encountered.
func ParseList(entries []string) (*List, error) {
	l := &List{}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		n, err := Parse(e)
		if err != nil {
			return nil, err
		}
		l.nets = append(l.nets, n)
	}
	return l, nil
}

// Matches reports whether ip is contained in any network in the list.
func (l *List) Matches(ip net.IP) bool {
	if l == nil {
		return false
	}
	for _, n := range l.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Len reports how many networks are in the list.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.nets)
}
