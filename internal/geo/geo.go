// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package geo resolves client IPs to country, region, city, and ISP via a
// trait-like Resolver interface, with a default implementation backed by a
// MaxMind-format database opened with a full in-memory cache policy, plus a
// canned-answer test double for unit tests.
//
// The lookup fields use "0"→"" normalization and lookups fail open (an
// address the database cannot resolve yields a nil record rather than an
// error), so admission rules built on top never block traffic because a geo
// lookup failed. Open itself returns an error when a database file is
// missing or cannot be parsed.
package geo

import (
	"net"
	"os"
	"strings"

	"github.com/oschwald/geoip2-golang"

	"github.com/lywaf/lywaf/internal/errors"
	"github.com/lywaf/lywaf/internal/logging"
)

// Info is a GeoInfo value: immutable per lookup, with the
// sentinel "0" normalised to empty string.
type Info struct {
	Country string
	Region  string
	City    string
	ISP     string
	Raw     string
}

// Resolver looks up geo information for an IP address. Implementations
// return (nil, nil) on lookup miss so callers fail open.
type Resolver interface {
	Lookup(ip net.IP) (*Info, error)
}

// normalise maps the literal string "0", which IP2Region uses for
// "unknown" fields, to the empty string.
func normalise(s string) string {
	if s == "0" {
		return ""
	}
	return s
}

// MaxMindResolver wraps a geoip2.Reader opened with the database loaded
// fully into memory (geoip2.FromBytes), matching 
// "full in-memory cache policy".
type MaxMindResolver struct {
	cityReader *geoip2.Reader
	ispReader  *geoip2.Reader
	logger     *logging.Logger
}

// Open loads cityDBPath (required, City or Enterprise edition) and, if
// ispDBPath is non-empty, an additional ISP-edition database, both fully
// into memory.
func Open(cityDBPath, ispDBPath string, logger *logging.Logger) (*MaxMindResolver, error) {
	cityBytes, err := os.ReadFile(cityDBPath)
	if err != nil {
		return nil, err
	}
	cityReader, err := geoip2.FromBytes(cityBytes)
	if err != nil {
		return nil, err
	}

	r := &MaxMindResolver{cityReader: cityReader, logger: logger}

	if ispDBPath != "" {
		ispBytes, err := os.ReadFile(ispDBPath)
		if err != nil {
			return nil, err
		}
		ispReader, err := geoip2.FromBytes(ispBytes)
		if err != nil {
			return nil, err
		}
		r.ispReader = ispReader
	}
	return r, nil
}

// Lookup implements Resolver. On any I/O or parse error it logs at Debug
// and returns (nil, nil) so the caller fails open.
func (r *MaxMindResolver) Lookup(ip net.IP) (*Info, error) {
	city, err := r.cityReader.City(ip)
	if err != nil {
		if r.logger != nil {
			r.logger.Debug("geo lookup failed", "ip", ip.String(),
				"error", errors.Wrap(err, errors.KindGeoLookup, "city lookup"))
		}
		return nil, nil
	}

	info := &Info{
		Country: normalise(pickName(city.Country.Names)),
		City:    normalise(pickName(city.City.Names)),
	}
	if len(city.Subdivisions) > 0 {
		info.Region = normalise(pickName(city.Subdivisions[0].Names))
	}

	if r.ispReader != nil {
		isp, err := r.ispReader.ISP(ip)
		if err != nil {
			if r.logger != nil {
				r.logger.Debug("geo isp lookup failed", "ip", ip.String(),
					"error", errors.Wrap(err, errors.KindGeoLookup, "isp lookup"))
			}
		} else {
			info.ISP = normalise(isp.ISP)
		}
	}

	info.Raw = strings.Join([]string{info.Country, info.Region, info.City, info.ISP}, "|")
	return info, nil
}

func pickName(names map[string]string) string {
	if v, ok := names["en"]; ok {
		return v
	}
	for _, v := range names {
		return v
	}
	return ""
}

// StaticResolver is a canned-answer test double: it returns whatever
// Answers holds for a given IP, with no I/O.
type StaticResolver struct {
	Answers map[string]*Info // keyed by ip.String()
}

// Lookup implements Resolver by consulting the Answers map.
func (s *StaticResolver) Lookup(ip net.IP) (*Info, error) {
	if s.Answers == nil {
		return nil, nil
	}
	return s.Answers[ip.String()], nil
}
