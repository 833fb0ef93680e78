// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleHCL = `
cluster "checkout" {
  lb_policy = "WeightedRoundRobin"

  destination "d1" {
    address = "http://10.0.0.1:8080"
    weight  = 2
  }
  destination "d2" {
    address = "http://10.0.0.2:8080"
    weight  = 1
  }

  active_health {
    path     = "/healthz"
    passes   = 2
    fails    = 3
    interval = "5s"
  }
}

listener "public" {
  addr              = "0.0.0.0:443"
  cluster_id        = "checkout"
  rate_limit_policy = "strict"

  ban_page {
    template = "banned: {local_client_ip}"
  }
}

rate_limit_policy "strict" {
  algorithm = "Sliding"
  limit     = 100
  window    = "1m"
}

dns_override {
  cache_ttl_seconds = 300

  exact "api.internal" {
    addresses = ["10.0.0.1", "10.0.0.2"]
    policy    = "RoundRobin"
  }
}
`

func TestLoadBytesDecodesAndDefaults(t *testing.T) {
	res, err := LoadBytes([]byte(sampleHCL), "sample.hcl", LoadOptions{})
	require.NoError(t, err)

	cfg := res.Config
	require.Len(t, cfg.Clusters, 1)
	assert.Equal(t, "checkout", cfg.Clusters[0].ID)
	assert.Len(t, cfg.Clusters[0].Destinations, 2)
	assert.Equal(t, 2, cfg.Clusters[0].Destinations[0].Weight)

	require.Len(t, cfg.Listeners, 1)
	assert.Equal(t, "checkout", cfg.Listeners[0].ClusterID)

	require.Len(t, cfg.RateLimits, 1)
	assert.Equal(t, 429, cfg.RateLimits[0].RejectStatus)

	require.NotNil(t, cfg.DnsBlock)
	require.Len(t, cfg.DnsBlock.Exact, 1)
	assert.Equal(t, "api.internal", cfg.DnsBlock.Exact[0].Host)
}

func TestLoadBytesRejectsUnknownClusterReference(t *testing.T) {
	const bad = `
cluster "a" {
  destination "d1" {
    address = "http://10.0.0.1:8080"
  }
}
listener "l1" {
  addr       = "0.0.0.0:8080"
  cluster_id = "missing"
}
`
	_, err := LoadBytes([]byte(bad), "bad.hcl", LoadOptions{})
	assert.Error(t, err)
}

func TestLoadBytesSkipValidateBypassesErrors(t *testing.T) {
	const bad = `
listener "l1" {
  addr       = "0.0.0.0:8080"
  cluster_id = "missing"
}
`
	res, err := LoadBytes([]byte(bad), "bad.hcl", LoadOptions{SkipValidate: true})
	require.NoError(t, err)
	assert.Equal(t, "missing", res.Config.Listeners[0].ClusterID)
}

func TestValidateCatchesDuplicateClusterIDs(t *testing.T) {
	cfg := &Config{
		Clusters: []Cluster{
			{ID: "a", Destinations: []Destination{{ID: "d1", Address: "http://x"}}},
			{ID: "a", Destinations: []Destination{{ID: "d1", Address: "http://y"}}},
		},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate cluster id")
}

func TestValidateRejectsEmptyClusterDestinations(t *testing.T) {
	cfg := &Config{Clusters: []Cluster{{ID: "a"}}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no destinations")
}

func TestRateLimitValidateRejectsUnknownAlgorithm(t *testing.T) {
	rl := RateLimit{Name: "bogus", Algorithm: "Quantum"}
	errs := rl.Validate()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "unknown algorithm")
}
