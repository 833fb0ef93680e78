// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cidr

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHostRouteNoPrefix(t *testing.T) {
	n, err := Parse("10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, 32, n.Prefix())
	assert.True(t, n.ContainsString("10.0.0.5"))
	assert.False(t, n.ContainsString("10.0.0.6"))

	n6, err := Parse("::1")
	require.NoError(t, err)
	assert.Equal(t, 128, n6.Prefix())
}

func TestContainsPrefixMatch(t *testing.T) {
	n, err := Parse("192.168.1.0/24")
	require.NoError(t, err)
	assert.True(t, n.ContainsString("192.168.1.200"))
	assert.False(t, n.ContainsString("192.168.2.1"))
}

func TestCrossFamilyNeverMatches(t *testing.T) {
	n, err := Parse("10.0.0.0/8")
	require.NoError(t, err)
	assert.False(t, n.Contains(net.ParseIP("::1")))
}

func TestInvalidCIDR(t *testing.T) {
	_, err := Parse("not-an-ip/24")
	assert.Error(t, err)

	_, err = Parse("10.0.0.0/99")
	assert.Error(t, err)
}

func TestParseListMatches(t *testing.T) {
	l, err := ParseList([]string{"10.0.0.0/8", "", "192.168.0.0/16"})
	require.NoError(t, err)
	assert.True(t, l.Matches(net.ParseIP("10.1.2.3")))
	assert.True(t, l.Matches(net.ParseIP("192.168.5.5")))
	assert.False(t, l.Matches(net.ParseIP("8.8.8.8")))
}
