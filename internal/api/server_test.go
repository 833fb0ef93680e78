// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lywaf/lywaf/internal/admission"
	"github.com/lywaf/lywaf/internal/config"
	"github.com/lywaf/lywaf/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleHealthzOK(t *testing.T) {
	s := NewServer(ServerOptions{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleHealthzUnhealthy(t *testing.T) {
	s := NewServer(ServerOptions{Healthy: func() bool { return false }})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleBanLifecycle(t *testing.T) {
	bans := admission.NewBanList(store.New(), time.Minute)
	s := NewServer(ServerOptions{Bans: bans})

	body, _ := json.Marshal(banRequest{IP: "203.0.113.9", Reason: "abuse"})
	req := httptest.NewRequest(http.MethodPost, "/admin/bans", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/bans", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Contains(t, rec.Body.String(), "203.0.113.9")

	req = httptest.NewRequest(http.MethodDelete, "/admin/bans/203.0.113.9", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, banned := bans.Check("203.0.113.9")
	assert.False(t, banned)
}

func TestHandleReloadAppliesValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lywaf.hcl")
	const doc = `
cluster "c1" {
  destination "d1" {
    address = "http://10.0.0.1:8080"
  }
}
listener "l1" {
  addr       = "0.0.0.0:8080"
  cluster_id = "c1"
}
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	var applied *config.Config
	s := NewServer(ServerOptions{
		ConfigPath: path,
		Reload: func(c *config.Config) error {
			applied = c
			return nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/admin/config/reload", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, applied)
	assert.Equal(t, "c1", applied.Clusters[0].ID)
}

func TestHandleReloadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lywaf.hcl")
	const doc = `
listener "l1" {
  addr       = "0.0.0.0:8080"
  cluster_id = "missing"
}
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	called := false
	s := NewServer(ServerOptions{
		ConfigPath: path,
		Reload: func(c *config.Config) error {
			called = true
			return nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/admin/config/reload", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called)
}
