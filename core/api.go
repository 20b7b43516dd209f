// Package core wires the endpoint registry, scoring policies, selection
// engine, health monitor and stats view into one process-scoped engine.
// Construct it explicitly at startup and stop it at shutdown; there is no
// package-level singleton.
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sourceshift/relaypool/core/config"
	"github.com/sourceshift/relaypool/core/health"
	"github.com/sourceshift/relaypool/core/policy"
	"github.com/sourceshift/relaypool/core/pool"
	"github.com/sourceshift/relaypool/core/selector"
	"github.com/sourceshift/relaypool/core/stats"
	"github.com/sourceshift/relaypool/pkg/logging"
)

// Engine is the process-scoped pool engine.
type Engine struct {
	registry  *pool.Registry
	policies  *policy.Table
	selector  *selector.Selector
	monitor   *health.Monitor
	view      *stats.View
	collector *stats.Collector
	logger    logging.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// NewEngine builds an engine from configuration. The endpoint pool, policy
// table and monitor settings all come from cfg; prober is optional and
// defaults to the HTTP prober.
func NewEngine(cfg *config.FileConfig, prober health.Prober, logger logging.Logger) (*Engine, error) {
	if logger == nil {
		logger = logging.GetLogger()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	endpoints, err := buildEndpoints(cfg.Endpoints)
	if err != nil {
		return nil, err
	}
	registry, err := pool.NewRegistry(endpoints, smoothingFrom(cfg.Health), logger)
	if err != nil {
		return nil, err
	}

	policies := policy.DefaultTable()
	if len(cfg.Policies) > 0 {
		policies, err = policy.NewTable(buildProfiles(cfg.Policies), cfg.DefaultLatencyCeilingMs)
		if err != nil {
			return nil, err
		}
	}

	opts := monitorOptionsFrom(cfg.Health)
	if prober == nil {
		prober = health.NewHTTPProber(opts.ProbeTimeout)
	}

	e := &Engine{
		registry:  registry,
		policies:  policies,
		selector:  selector.New(registry, policies, logger),
		monitor:   health.NewMonitor(registry, prober, opts, logger),
		view:      stats.NewView(registry, policies),
		collector: stats.NewCollector(),
		logger:    logger.With("component", "engine"),
	}
	e.monitor.SetOnCycle(e.collector.RecordCycle)
	return e, nil
}

// Start launches the health monitor. Selection works before Start, on
// whatever metrics the pool was seeded with.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("engine already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.monitor.Start(ctx)
	e.running = true
	e.logger.Info("engine started", "endpoints", e.registry.Len())
	return nil
}

// Stop shuts the health monitor down, waiting for in-flight probes.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return fmt.Errorf("engine is not running")
	}
	e.monitor.Stop()
	e.cancel()
	e.running = false
	e.logger.Info("engine stopped")
	return nil
}

// Status reports whether the monitor loop is running and what it has done.
func (e *Engine) Status() (string, error) {
	e.mu.Lock()
	running := e.running
	e.mu.Unlock()

	ms := e.collector.Snapshot()
	if running {
		return fmt.Sprintf("monitoring %d endpoints, %d cycles completed", e.registry.Len(), ms.Cycles), nil
	}
	return "stopped", nil
}

// Select picks the best endpoint for the request.
func (e *Engine) Select(req selector.Request) (*pool.Endpoint, error) {
	return e.selector.SelectBest(req)
}

// SelectForPolicy is Select for callers that only care about the policy:
// the named profile's provider preferences and latency ceiling apply, with
// no region hint.
func (e *Engine) SelectForPolicy(target, tag string) (*pool.Endpoint, error) {
	return e.selector.SelectBest(selector.Request{Target: target, Policy: tag})
}

// Chain builds a multi-hop chain for the request; candidateRegions may be
// nil for "any region".
func (e *Engine) Chain(req selector.Request, candidateRegions []string) ([]*pool.Endpoint, error) {
	return e.selector.BuildChain(req, candidateRegions)
}

// StatsForPolicy returns the per-region aggregates under the named policy.
func (e *Engine) StatsForPolicy(tag string) map[string]stats.RegionStats {
	return e.view.ForPolicy(tag)
}

// MonitorStats returns the health monitor counters.
func (e *Engine) MonitorStats() stats.MonitorStats {
	return e.collector.Snapshot()
}

// RunHealthCycle forces one probe cycle outside the schedule.
func (e *Engine) RunHealthCycle(ctx context.Context) health.CycleSummary {
	return e.monitor.RunCycle(ctx)
}

// Registry exposes the underlying registry for read-only consumers.
func (e *Engine) Registry() *pool.Registry {
	return e.registry
}

func buildEndpoints(specs []config.EndpointSpec) ([]*pool.Endpoint, error) {
	endpoints := make([]*pool.Endpoint, 0, len(specs))
	for _, spec := range specs {
		protocol := spec.Protocol
		if protocol == "" {
			protocol = "http"
		}
		ep := pool.NewEndpoint(spec.Address, spec.Port, protocol, spec.Region, spec.Locality, spec.Provider, spec.ASN)
		ep.Username = spec.Username
		ep.Password = spec.Password

		if spec.SeedHealth != "" {
			h, err := pool.ParseHealthState(spec.SeedHealth)
			if err != nil {
				return nil, err
			}
			m := pool.Metrics{
				LatencyMs: spec.SeedLatencyMs,
				Health:    h,
				Probed:    h > pool.Dead,
			}
			if spec.SeedSuccessRate != nil {
				m.SuccessRate = *spec.SeedSuccessRate
			}
			ep.SeedMetrics(m)
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}

func buildProfiles(specs []config.PolicySpec) []policy.Profile {
	profiles := make([]policy.Profile, 0, len(specs))
	for _, spec := range specs {
		p := policy.Profile{
			Name:         spec.Name,
			Preferred:    make(map[string]bool, len(spec.PreferredProviders)),
			Avoided:      make(map[string]bool, len(spec.AvoidedProviders)),
			MaxLatencyMs: spec.MaxLatencyMs,
		}
		for _, name := range spec.PreferredProviders {
			p.Preferred[name] = true
		}
		for _, name := range spec.AvoidedProviders {
			p.Avoided[name] = true
		}
		profiles = append(profiles, p)
	}
	return profiles
}

func smoothingFrom(h config.HealthSpec) pool.Smoothing {
	s := pool.DefaultSmoothing()
	if h.EMARetain != 0 {
		s.Retain = h.EMARetain
		s.Fresh = h.EMAFresh
	}
	if h.LatencyPenaltyMs > 0 {
		s.PenaltyLatencyMs = h.LatencyPenaltyMs
	}
	return s
}

func monitorOptionsFrom(h config.HealthSpec) health.Options {
	opts := health.Options{
		ProbeURLs:       h.ProbeURLs,
		RegionsPerCycle: h.RegionsPerCycle,
	}
	if h.IntervalSeconds > 0 {
		opts.Interval = time.Duration(h.IntervalSeconds) * time.Second
	}
	if h.ProbeTimeoutSeconds > 0 {
		opts.ProbeTimeout = time.Duration(h.ProbeTimeoutSeconds) * time.Second
	}
	if h.ProbeRatePerSecond > 0 {
		opts.ProbeRate = rate.Limit(h.ProbeRatePerSecond)
	}
	return opts
}
