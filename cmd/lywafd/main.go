// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command lywafd is the reverse-proxy/WAF daemon: it loads the HCL
// configuration, wires every component package into a running Pipeline per
// configured listener, and serves the admin/metrics surface alongside it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/lywaf/lywaf/internal/admission"
	"github.com/lywaf/lywaf/internal/api"
	"github.com/lywaf/lywaf/internal/attribution"
	"github.com/lywaf/lywaf/internal/cidr"
	"github.com/lywaf/lywaf/internal/config"
	"github.com/lywaf/lywaf/internal/customdns"
	"github.com/lywaf/lywaf/internal/events"
	"github.com/lywaf/lywaf/internal/forwarded"
	"github.com/lywaf/lywaf/internal/forwarder"
	"github.com/lywaf/lywaf/internal/geo"
	"github.com/lywaf/lywaf/internal/health"
	"github.com/lywaf/lywaf/internal/lb"
	"github.com/lywaf/lywaf/internal/logging"
	"github.com/lywaf/lywaf/internal/metrics"
	"github.com/lywaf/lywaf/internal/pipeline"
	"github.com/lywaf/lywaf/internal/ratelimit"
	"github.com/lywaf/lywaf/internal/store"
	"github.com/lywaf/lywaf/internal/throttle"
)

func main() {
	configPath := flag.String("config", "/etc/lywaf/lywaf.hcl", "path to the HCL configuration file")
	adminAddr := flag.String("admin-addr", "127.0.0.1:9090", "admin/metrics HTTP listen address")
	flag.Parse()

	logger := logging.Default()

	res, err := config.LoadFile(*configPath, config.LoadOptions{})
	if err != nil {
		logger.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	logger = logging.New(os.Stderr, res.Config.LogLevel)

	d := newDaemon(logger)
	if err := d.applyConfig(res.Config); err != nil {
		logger.Error("failed to apply config", "error", err)
		os.Exit(1)
	}

	admin := api.NewServer(api.ServerOptions{
		ConfigPath: *configPath,
		Reload:     d.applyConfig,
		Bans:       d.bans,
		Collector:  d.collector,
		Logger:     logger,
		Healthy:    func() bool { return true },
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.runListeners(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.runProbeLoop(ctx)
	}()

	adminSrv := &http.Server{Addr: *adminAddr, Handler: admin.Handler()}
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("admin server starting", "addr", *adminAddr)
		if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin server exited", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = adminSrv.Shutdown(shutdownCtx)
	d.shutdownListeners(shutdownCtx)

	wg.Wait()
}

// daemon holds the process's live component registries. applyConfig
// rebuilds every registry from a freshly validated Config and atomically
// swaps them in, serving as the ReloadFunc the admin API calls.
type daemon struct {
	logger *logging.Logger

	mu        sync.RWMutex
	cfg       *config.Config
	pipeline  *pipeline.Pipeline
	bans      *admission.BanList
	counters  *store.Store
	events    *events.Bus
	collector *metrics.Collector

	listenersMu sync.Mutex
	servers     map[string]*http.Server
}

func newDaemon(logger *logging.Logger) *daemon {
	counters := store.New(store.WithLogger(logger))
	bus := events.New()
	events.AttachLogSubscriber(bus, logger)
	collector := metrics.NewCollector(logger)
	collector.AttachEvents(bus)

	return &daemon{
		logger:    logger,
		counters:  counters,
		events:    bus,
		collector: collector,
		bans:      admission.NewBanList(counters, admission.DefaultBanTTL),
		servers:   make(map[string]*http.Server),
	}
}

// applyConfig rebuilds the pipeline, rate limiters, health prober, and
// listener set from cfg and swaps them in. It is both the initial wiring
// call and the admin API's ReloadFunc.
func (d *daemon) applyConfig(cfg *config.Config) error {
	resolver, err := buildGeoResolver(cfg.Admission, d.logger)
	if err != nil {
		return fmt.Errorf("building geo resolver: %w", err)
	}
	admissionCfg, err := buildAdmissionConfig(cfg.Admission)
	if err != nil {
		return fmt.Errorf("building admission config: %w", err)
	}

	dnsResolver := customdns.New(buildDNSConfig(cfg.DnsBlock), d.counters, d.logger)
	dnsResolver.Collector = d.collector
	fw := forwarder.New(dnsResolver)

	limiters := ratelimit.NewRegistry(buildPolicyConfigs(cfg.RateLimits), defaultPolicyName(cfg.RateLimits))
	matcher := attribution.NewMatcher(cfg.AttributionPatterns, d.counters)
	thr := buildThrottle(cfg.Throttle, d.counters)
	thr.Collector = d.collector
	prober := health.New(nil, d.logger)
	prober.SetSink(func(clusterID string, updates []health.Update) {
		for _, u := range updates {
			d.events.PublishHealthChanged(events.HealthChanged{
				ClusterID: clusterID,
				Address:   u.Address,
				Status:    u.Status.String(),
			})
			d.collector.RecordProbeResult(u.Address, u.Status == health.StatusHealthy)
		}
	})

	gate := admission.New(resolver, admissionCfg)
	gate.Collector = d.collector

	pl := pipeline.New()
	pl.Gate = gate
	pl.Bans = d.bans
	pl.Limiters = limiters
	pl.Prober = prober
	pl.Throttle = thr
	pl.Attribution = matcher
	pl.Forwarder = fw
	pl.Events = d.events
	pl.Counters = d.counters
	pl.Logger = d.logger
	pl.Collector = d.collector

	for _, c := range cfg.Clusters {
		pl.RegisterCluster(buildCluster(c))
	}

	d.mu.Lock()
	d.cfg = cfg
	d.pipeline = pl
	d.mu.Unlock()

	d.syncListeners(cfg)
	return nil
}

func (d *daemon) snapshot() (*config.Config, *pipeline.Pipeline) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg, d.pipeline
}

// runListeners blocks until ctx is cancelled; the listener HTTP servers
// themselves are started/stopped by syncListeners as config reloads add or
// remove them.
func (d *daemon) runListeners(ctx context.Context) {
	<-ctx.Done()
}

func (d *daemon) syncListeners(cfg *config.Config) {
	d.listenersMu.Lock()
	defer d.listenersMu.Unlock()

	wanted := make(map[string]config.Listener, len(cfg.Listeners))
	for _, l := range cfg.Listeners {
		wanted[l.Name] = l
	}

	for name, srv := range d.servers {
		if _, ok := wanted[name]; !ok {
			_ = srv.Close()
			delete(d.servers, name)
		}
	}

	for name, lc := range wanted {
		if _, ok := d.servers[name]; ok {
			continue
		}
		srv := d.startListener(lc)
		d.servers[name] = srv
	}
}

func (d *daemon) startListener(lc config.Listener) *http.Server {
	ln := buildListener(lc)
	srv := &http.Server{
		Addr: lc.Addr,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, pl := d.snapshot()
			if pl == nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			pl.Handle(w, r, ln)
		}),
	}
	go func() {
		d.logger.Info("listener starting", "name", lc.Name, "addr", lc.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("listener exited", "name", lc.Name, "error", err)
		}
	}()
	return srv
}

func (d *daemon) shutdownListeners(ctx context.Context) {
	d.listenersMu.Lock()
	defer d.listenersMu.Unlock()
	for name, srv := range d.servers {
		if err := srv.Shutdown(ctx); err != nil {
			d.logger.Warn("listener shutdown error", "name", name, "error", err)
		}
	}
}

// runProbeLoop drives active health checking for every configured cluster,
// since health.Prober itself performs no scheduling ( leaves
// the interval loop to the caller).
func (d *daemon) runProbeLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	lastRun := make(map[string]time.Time)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			cfg, pl := d.snapshot()
			if cfg == nil || pl == nil {
				continue
			}
			for _, c := range cfg.Clusters {
				if c.ActiveHealth == nil || len(c.Destinations) == 0 {
					continue
				}
				interval := c.ActiveHealth.Interval()
				if now.Sub(lastRun[c.ID]) < interval {
					continue
				}
				lastRun[c.ID] = now
				addrs := make([]string, len(c.Destinations))
				for i, dest := range c.Destinations {
					addrs[i] = dest.Address
				}
				ah := toHealthActiveHealth(*c.ActiveHealth)
				go pl.Prober.RunBatch(ctx, c.ID, addrs, func(string) health.ActiveHealth { return ah })
			}
		}
	}
}

func toHealthActiveHealth(a config.ActiveHealth) health.ActiveHealth {
	return health.ActiveHealth{
		Method:        a.Method,
		Path:          a.Path,
		Query:         a.Query,
		Body:          a.Body,
		AvalidCode:    a.AvalidCode,
		AvalidContent: a.AvalidContent,
		ContentCheck:  a.ContentCheck,
		AvalidHeaders: a.AvalidHeaders,
		Passes:        a.Passes,
		Fails:         a.Fails,
	}
}

func buildCluster(c config.Cluster) *pipeline.Cluster {
	dests := make([]*pipeline.Destination, len(c.Destinations))
	for i, d := range c.Destinations {
		dests[i] = &pipeline.Destination{
			ID:           d.ID,
			Address:      d.Address,
			Weight:       d.Weight,
			VirtualNodes: d.VirtualNodes,
		}
	}
	var ah health.ActiveHealth
	if c.ActiveHealth != nil {
		ah = toHealthActiveHealth(*c.ActiveHealth)
	}
	return &pipeline.Cluster{
		ID:              c.ID,
		Destinations:    dests,
		LBPolicy:        lb.NewPolicy(lb.Algorithm(c.LBPolicy), c.HashKeyTemplate),
		HashKeyTemplate: c.HashKeyTemplate,
		ActiveHealth:    ah,
		HeaderUps:       c.HeaderUps,
		HeaderDowns:     c.HeaderDowns,
	}
}

func buildListener(lc config.Listener) pipeline.Listener {
	ln := pipeline.Listener{
		ClusterID:     lc.ClusterID,
		RateLimitName: lc.RateLimitName,
	}
	if lc.Forwarded != nil {
		ln.Forwarded = buildForwardedConfig(*lc.Forwarded)
	}
	if lc.BanPage != nil {
		ln.BanPage = pipeline.BanPage{Template: lc.BanPage.Template, Debug: lc.BanPage.Debug}
	}
	if lc.Reject != nil {
		ln.Reject = pipeline.RejectConfig{StatusCode: lc.Reject.StatusCode, Message: lc.Reject.Message}
	}
	return ln
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func buildPolicyConfigs(rls []config.RateLimit) []ratelimit.PolicyConfig {
	out := make([]ratelimit.PolicyConfig, len(rls))
	for i, r := range rls {
		queueOrder := ratelimit.OldestFirst
		if r.QueueOrder == "NewestFirst" {
			queueOrder = ratelimit.NewestFirst
		}
		out[i] = ratelimit.PolicyConfig{
			PolicyName:          r.Name,
			Algorithm:           ratelimit.Name(r.Algorithm),
			Limit:               r.Limit,
			Window:              parseDurationOr(r.Window, time.Second),
			SegmentsPerWindow:   r.SegmentsPerWindow,
			TokensPerPeriod:     r.TokensPerPeriod,
			ReplenishmentPeriod: parseDurationOr(r.ReplenishmentPeriod, time.Second),
			MaxConcurrent:       r.MaxConcurrent,
			QueueOrder:          queueOrder,
			QueueLimit:          r.QueueLimit,
			RejectStatus:        r.RejectStatus,
		}
	}
	return out
}

func defaultPolicyName(rls []config.RateLimit) string {
	for _, r := range rls {
		if r.Default {
			return r.Name
		}
	}
	return ""
}

func buildDNSConfig(dc *config.DnsConfig) customdns.Config {
	if dc == nil {
		return customdns.Config{Exact: map[string]customdns.Entry{}, Wildcard: map[string]customdns.Entry{}}
	}
	exact := make(map[string]customdns.Entry, len(dc.Exact))
	for _, e := range dc.Exact {
		exact[e.Host] = toDNSEntry(e)
	}
	wildcard := make(map[string]customdns.Entry, len(dc.Wildcard))
	for _, e := range dc.Wildcard {
		wildcard[e.Host] = toDNSEntry(e)
	}
	return customdns.Config{Exact: exact, Wildcard: wildcard, CacheTTLSeconds: dc.CacheTTLSeconds}
}

func toDNSEntry(e config.DnsEntry) customdns.Entry {
	policy := customdns.RoundRobin
	if e.Policy == string(customdns.Random) {
		policy = customdns.Random
	}
	ttl := -1 * time.Second
	if e.TTLOverride > 0 {
		ttl = time.Duration(e.TTLOverride) * time.Second
	}
	return customdns.Entry{Addresses: e.Addresses, Policy: policy, TTLOverride: ttl}
}

func buildThrottle(tc *config.ThrottleConfig, s *store.Store) *throttle.Throttle {
	capacity := int64(throttle.DefaultCapacity)
	period := time.Second
	idleTTL := 10 * time.Minute
	if tc != nil {
		if tc.CapacityBytes > 0 {
			capacity = tc.CapacityBytes
		}
		period = parseDurationOr(tc.Period, period)
		idleTTL = parseDurationOr(tc.IdleTTL, idleTTL)
	}
	return throttle.New(s, capacity, period, idleTTL)
}

func buildForwardedConfig(fb config.ForwardedBlock) forwarded.Config {
	method := forwarded.MethodNone
	switch fb.Method {
	case "set":
		method = forwarded.MethodSet
	case "append":
		method = forwarded.MethodAppend
	}
	return forwarded.Config{For: fb.For, Proto: fb.Proto, Host: fb.Host, Method: method, IsX: fb.IsX}
}

func buildGeoResolver(a *config.Admission, logger *logging.Logger) (geo.Resolver, error) {
	if a == nil || (a.GeoCityDB == "" && a.GeoISPDB == "") {
		return nil, nil
	}
	return geo.Open(a.GeoCityDB, a.GeoISPDB, logger)
}

func buildAdmissionConfig(a *config.Admission) (*admission.Config, error) {
	cfg := &admission.Config{}
	if a == nil {
		return cfg, nil
	}

	whitelist, err := cidr.ParseList(a.GlobalWhitelist)
	if err != nil {
		return nil, fmt.Errorf("admission.global_whitelist: %w", err)
	}
	blacklist, err := cidr.ParseList(a.GlobalBlacklist)
	if err != nil {
		return nil, fmt.Errorf("admission.global_blacklist: %w", err)
	}
	cfg.GlobalWhitelist = whitelist
	cfg.GlobalBlacklist = blacklist
	cfg.IPControlEnabled = len(a.PathIPRules) > 0 || whitelist.Len() > 0 || blacklist.Len() > 0

	for _, r := range a.PathIPRules {
		wl, err := cidr.ParseList(r.Whitelist)
		if err != nil {
			return nil, fmt.Errorf("admission.path_ip_rule %s: %w", r.Pattern, err)
		}
		bl, err := cidr.ParseList(r.Blacklist)
		if err != nil {
			return nil, fmt.Errorf("admission.path_ip_rule %s: %w", r.Pattern, err)
		}
		cfg.PathIPRules = append(cfg.PathIPRules, admission.PathIPRule{Pattern: r.Pattern, Whitelist: wl, Blacklist: bl})
	}

	cfg.GeoControlEnabled = len(a.PathGeoRules) > 0 || len(a.AllowCountries) > 0 || len(a.DenyCountries) > 0
	cfg.AllowCountries = a.AllowCountries
	cfg.DenyCountries = a.DenyCountries
	if a.GeoMode == "Allow" {
		cfg.GlobalGeoMode = admission.GeoModeAllow
	}
	for _, r := range a.PathGeoRules {
		cfg.PathGeoRules = append(cfg.PathGeoRules, admission.PathGeoRule{Pattern: r.Pattern, Whitelist: r.Whitelist, Blacklist: r.Blacklist})
	}

	cfg.MaxTotalConnections = a.MaxTotalConnections
	cfg.MaxPerIP = a.MaxPerIP
	cfg.MaxPerDestination = a.MaxPerDestination
	for _, c := range a.PathConnectionCaps {
		cfg.PathConnectionCaps = append(cfg.PathConnectionCaps, admission.PathCap{Pattern: c.Pattern, Max: c.Max})
	}

	return cfg, nil
}
