// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package api is the admin/metrics HTTP surface: config reload, health,
// Prometheus metrics, and ban-list management. It never touches the
// listener traffic the reverse-proxy core forwards (external
// wire boundary); this is purely the operator-facing control surface.
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/lywaf/lywaf/internal/admission"
	"github.com/lywaf/lywaf/internal/config"
	"github.com/lywaf/lywaf/internal/logging"
	"github.com/lywaf/lywaf/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerConfig holds HTTP server timeout/size limits: Slowloris and
// body-size mitigations for the admin API surface.
type ServerConfig struct {
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodyBytes      int64
}

// DefaultServerConfig returns conservative default limits for the admin
// surface.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
		MaxBodyBytes:      1 << 20,
	}
}

// ReloadFunc applies a freshly loaded and validated Config to the running
// process (swapping the pipeline's registries, clusters, and listeners).
// It lives outside this package because only the process wiring layer
// (cmd/lywafd) knows how to turn a Config into admission.Gate/ratelimit.
// Registry/pipeline.Cluster instances.
type ReloadFunc func(*config.Config) error

// ServerOptions holds the admin server's dependencies.
type ServerOptions struct {
	ConfigPath string
	Reload     ReloadFunc
	Bans       *admission.BanList
	Collector  *metrics.Collector
	Logger     *logging.Logger
	Healthy    func() bool
}

// Server serves the admin/metrics HTTP surface.
type Server struct {
	configPath string
	reload     ReloadFunc
	bans       *admission.BanList
	collector  *metrics.Collector
	logger     *logging.Logger
	healthy    func() bool
	startTime  time.Time

	mu         sync.RWMutex
	lastReload time.Time
	lastError  error

	mux *http.ServeMux
}

// NewServer builds the admin Server and registers its routes.
func NewServer(opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	s := &Server{
		configPath: opts.ConfigPath,
		reload:     opts.Reload,
		bans:       opts.Bans,
		collector:  opts.Collector,
		logger:     logger,
		healthy:    opts.Healthy,
		startTime:  time.Now(),
	}
	s.initRoutes()
	return s
}

func (s *Server) initRoutes() {
	mux := http.NewServeMux()
	s.mux = mux

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /admin/config/reload", s.handleReload)
	mux.HandleFunc("GET /admin/config/status", s.handleReloadStatus)

	mux.HandleFunc("GET /admin/bans", s.handleListBans)
	mux.HandleFunc("POST /admin/bans", s.handleCreateBan)
	mux.HandleFunc("DELETE /admin/bans/{ip}", s.handleDeleteBan)
}

// Handler returns the HTTP handler with access logging applied.
func (s *Server) Handler() http.Handler {
	return s.accessLog(s.maxBody(DefaultServerConfig().MaxBodyBytes, s.mux))
}

// Start runs the admin server on addr until it errors or the process
// exits.
func (s *Server) Start(addr string) error {
	cfg := DefaultServerConfig()
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
	s.logger.Info("admin server starting", "addr", addr)
	return server.ListenAndServe()
}
