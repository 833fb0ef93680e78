// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package admission

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lywaf/lywaf/internal/cidr"
	"github.com/lywaf/lywaf/internal/geo"
)

func mustList(t *testing.T, entries ...string) *cidr.List {
	t.Helper()
	l, err := cidr.ParseList(entries)
	require.NoError(t, err)
	return l
}

func TestGlobalWhitelistBypassesEverything(t *testing.T) {
	blacklist := mustList(t, "10.0.0.5/32")
	gate := New(nil, &Config{
		GlobalWhitelist:  mustList(t, "10.0.0.5/32"),
		IPControlEnabled: true,
		GlobalBlacklist:  blacklist,
	})
	d := gate.Check(net.ParseIP("10.0.0.5"), "/anything")
	assert.True(t, d.Allowed)
}

func TestGlobalBlacklistDenies(t *testing.T) {
	gate := New(nil, &Config{
		IPControlEnabled: true,
		GlobalBlacklist:  mustList(t, "1.2.3.4/32"),
	})
	d := gate.Check(net.ParseIP("1.2.3.4"), "/x")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonIPDenied, d.Reason)
}

func TestPathScopedBlacklistTakesPrecedenceOverWhitelist(t *testing.T) {
	gate := New(nil, &Config{
		IPControlEnabled: true,
		PathIPRules: []PathIPRule{
			{Pattern: "/admin/*", Whitelist: mustList(t, "9.9.9.9/32"), Blacklist: mustList(t, "9.9.9.9/32")},
		},
	})
	d := gate.Check(net.ParseIP("9.9.9.9"), "/admin/panel")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonPathIPDenied, d.Reason)
}

func TestGeoLookupFailureFailsOpen(t *testing.T) {
	gate := New(&geo.StaticResolver{}, &Config{GeoControlEnabled: true, GlobalGeoMode: GeoModeAllow})
	d := gate.Check(net.ParseIP("5.5.5.5"), "/")
	assert.True(t, d.Allowed)
}

func TestGeoAllowModeDeniesOutsideList(t *testing.T) {
	resolver := &geo.StaticResolver{Answers: map[string]*geo.Info{
		"5.5.5.5": {Country: "RU"},
	}}
	gate := New(resolver, &Config{
		GeoControlEnabled: true,
		GlobalGeoMode:     GeoModeAllow,
		AllowCountries:    []string{"US", "CA"},
	})
	d := gate.Check(net.ParseIP("5.5.5.5"), "/")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonGeoDenied, d.Reason)
}

func TestGeoDenyModeDeniesMatchingList(t *testing.T) {
	resolver := &geo.StaticResolver{Answers: map[string]*geo.Info{
		"5.5.5.5": {Country: "RU"},
	}}
	gate := New(resolver, &Config{
		GeoControlEnabled: true,
		GlobalGeoMode:     GeoModeDeny,
		DenyCountries:     []string{"RU"},
	})
	d := gate.Check(net.ParseIP("5.5.5.5"), "/")
	assert.False(t, d.Allowed)
}

func TestConnectionLimitsAcquireAndRelease(t *testing.T) {
	gate := New(nil, &Config{
		MaxTotalConnections: 2,
		MaxPerIP:            1,
		MaxPerDestination:   5,
		PathConnectionCaps:  []PathCap{{Pattern: "/api/*", Max: 1}},
	})
	ip := net.ParseIP("1.1.1.1")

	assert.True(t, gate.TryAcquireConnection(ip, "dest-a", "/api/x"))
	// Second request from the same IP should fail per-IP cap.
	assert.False(t, gate.TryAcquireConnection(ip, "dest-a", "/api/x"))

	gate.ReleaseConnection(ip, "dest-a", "/api/x")
	snap := gate.Snapshot()
	assert.Equal(t, 0, snap.Total)
	assert.Equal(t, 0, snap.PerIP[ip.String()])
}

func TestReleaseClampsAtZero(t *testing.T) {
	gate := New(nil, &Config{})
	ip := net.ParseIP("2.2.2.2")
	gate.ReleaseConnection(ip, "", "/")
	snap := gate.Snapshot()
	assert.Equal(t, 0, snap.Total)
}

func TestPathMatching(t *testing.T) {
	assert.True(t, matchesPath("/static/*", "/static/css/a.css"))
	assert.True(t, matchesPath("/api*", "/api/v1"))
	assert.True(t, matchesPath("/Home", "/home"))
	assert.False(t, matchesPath("/admin", "/admin/x"))
}
