// Package health runs the background probe loop that keeps endpoint metrics
// current. Probe failures stay inside this package: they feed the success
// rate and are logged, never propagated to request paths.
package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sourceshift/relaypool/core/pool"
	"github.com/sourceshift/relaypool/pkg/logging"
	"github.com/sourceshift/relaypool/pkg/securerandom"
)

// Options configures the monitor loop. Zero values take the documented
// defaults.
type Options struct {
	// Interval between cycles. Default 300s.
	Interval time.Duration
	// ProbeTimeout bounds each individual probe request. Default 10s.
	ProbeTimeout time.Duration
	// ProbeURLs is the battery issued per endpoint per cycle. Default is a
	// three-URL echo/status battery.
	ProbeURLs []string
	// RegionsPerCycle caps how many regions one cycle samples. Default 5.
	RegionsPerCycle int
	// ProbeRate and ProbeBurst bound how fast probes are launched within a
	// cycle. Defaults: 50/s, burst 10.
	ProbeRate  rate.Limit
	ProbeBurst int
	// SuccessStatuses are the response codes counted as probe successes.
	// Default 200 and 204.
	SuccessStatuses []int
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		Interval:        300 * time.Second,
		ProbeTimeout:    10 * time.Second,
		ProbeURLs: []string{
			"http://httpbin.org/ip",
			"http://httpbin.org/user-agent",
			"https://www.google.com/gen_204",
		},
		RegionsPerCycle: 5,
		ProbeRate:       50,
		ProbeBurst:      10,
		SuccessStatuses: []int{200, 204},
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Interval <= 0 {
		o.Interval = def.Interval
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = def.ProbeTimeout
	}
	if len(o.ProbeURLs) == 0 {
		o.ProbeURLs = def.ProbeURLs
	}
	if o.RegionsPerCycle <= 0 {
		o.RegionsPerCycle = def.RegionsPerCycle
	}
	if o.ProbeRate <= 0 {
		o.ProbeRate = def.ProbeRate
	}
	if o.ProbeBurst <= 0 {
		o.ProbeBurst = def.ProbeBurst
	}
	if len(o.SuccessStatuses) == 0 {
		o.SuccessStatuses = def.SuccessStatuses
	}
	return o
}

// CycleSummary reports one completed cycle to telemetry.
type CycleSummary struct {
	Regions   []string
	Probed    int
	Healthy   int
	Unhealthy int
	Elapsed   time.Duration
}

// Monitor is the supervised background loop. Start launches it, Stop cancels
// the loop and waits for in-flight probes to finish; no further cycles are
// scheduled after Stop.
type Monitor struct {
	registry *pool.Registry
	prober   Prober
	opts     Options
	limiter  *rate.Limiter
	logger   logging.Logger
	onCycle  func(CycleSummary)

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewMonitor creates a monitor over the registry using the given prober.
func NewMonitor(registry *pool.Registry, prober Prober, opts Options, logger logging.Logger) *Monitor {
	if logger == nil {
		logger = logging.GetLogger()
	}
	opts = opts.withDefaults()
	return &Monitor{
		registry: registry,
		prober:   prober,
		opts:     opts,
		limiter:  rate.NewLimiter(opts.ProbeRate, opts.ProbeBurst),
		logger:   logger.With("component", "health-monitor"),
	}
}

// SetOnCycle registers a callback invoked with each cycle's summary. Set it
// before Start.
func (m *Monitor) SetOnCycle(fn func(CycleSummary)) {
	m.onCycle = fn
}

// Start launches the monitor loop. It is a no-op if already running.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	m.wg.Add(1)
	go m.run(ctx)
}

// Stop cancels the loop and blocks until in-flight probes complete.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("health monitor stopped")
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	m.logger.Info("health monitor started", "interval", m.opts.Interval)

	// First cycle runs immediately rather than one interval in.
	m.RunCycle(ctx)

	for {
		select {
		case <-ticker.C:
			m.RunCycle(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunCycle samples regions, probes every endpoint in them concurrently,
// folds the results into the registry and reports a summary. A failing
// endpoint only costs its own timeout; it never aborts the cycle for the
// others. Exported so callers can force a cycle outside the schedule.
func (m *Monitor) RunCycle(ctx context.Context) CycleSummary {
	start := time.Now()
	regions := m.sampleRegions()

	var endpoints []*pool.Endpoint
	for _, region := range regions {
		endpoints = append(endpoints, m.registry.EndpointsInRegion(region)...)
	}
	m.logger.Info("health cycle starting",
		"regions", regions, "endpoints", len(endpoints))

	var wg sync.WaitGroup
	for _, ep := range endpoints {
		wg.Add(1)
		go func(ep *pool.Endpoint) {
			defer wg.Done()
			m.probeEndpoint(ctx, ep)
		}(ep)
	}
	wg.Wait()

	summary := CycleSummary{
		Regions: regions,
		Probed:  len(endpoints),
		Elapsed: time.Since(start),
	}
	for _, ep := range endpoints {
		if ep.Metrics().Health >= pool.Degraded {
			summary.Healthy++
		} else {
			summary.Unhealthy++
		}
	}

	m.logger.Info("health cycle completed",
		"healthy", summary.Healthy,
		"probed", summary.Probed,
		"elapsed", summary.Elapsed)
	if m.onCycle != nil {
		m.onCycle(summary)
	}
	return summary
}

// probeEndpoint runs the full battery against one endpoint concurrently and
// records the smoothed result. Individual probe errors count as failures and
// are logged at debug.
func (m *Monitor) probeEndpoint(ctx context.Context, ep *pool.Endpoint) {
	type outcome struct {
		ok        bool
		latencyMs float64
	}

	results := make(chan outcome, len(m.opts.ProbeURLs))
	var wg sync.WaitGroup
	for _, probeURL := range m.opts.ProbeURLs {
		wg.Add(1)
		go func(probeURL string) {
			defer wg.Done()
			if err := m.limiter.Wait(ctx); err != nil {
				results <- outcome{}
				return
			}
			probeCtx, cancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
			defer cancel()

			res, err := m.prober.Probe(probeCtx, ep, probeURL)
			if err != nil {
				m.logger.Debug("probe failed",
					"endpoint", ep.String(), "url", probeURL, "error", err)
				results <- outcome{}
				return
			}
			if !m.isSuccess(res.StatusCode) {
				m.logger.Debug("probe rejected",
					"endpoint", ep.String(), "url", probeURL, "status", res.StatusCode)
				results <- outcome{}
				return
			}
			results <- outcome{ok: true, latencyMs: float64(res.Elapsed) / float64(time.Millisecond)}
		}(probeURL)
	}
	wg.Wait()
	close(results)

	sample := pool.ProbeSample{Attempted: len(m.opts.ProbeURLs)}
	var totalLatency float64
	for r := range results {
		if r.ok {
			sample.Successes++
			totalLatency += r.latencyMs
		}
	}
	if sample.Successes > 0 {
		sample.MeanLatencyMs = totalLatency / float64(sample.Successes)
	}

	if err := m.registry.RecordProbeResult(ep, sample); err != nil {
		m.logger.Error("recording probe result failed",
			"endpoint", ep.String(), "error", err)
	}
}

func (m *Monitor) isSuccess(status int) bool {
	for _, s := range m.opts.SuccessStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// sampleRegions picks this cycle's regions uniformly at random without
// replacement.
func (m *Monitor) sampleRegions() []string {
	names := m.registry.Regions()
	n := m.opts.RegionsPerCycle
	if n >= len(names) {
		return names
	}
	perm, err := securerandom.Perm(len(names))
	if err != nil {
		// Random sampling is an optimization, not a correctness need; fall
		// back to the head of the list.
		m.logger.Warn("region sampling fell back to deterministic order", "error", err)
		return names[:n]
	}
	sampled := make([]string, 0, n)
	for _, idx := range perm[:n] {
		sampled = append(sampled, names[idx])
	}
	return sampled
}
