// Package selector picks the best endpoint for a request and builds
// multi-hop chains. It reads the registry and, apart from stamping the
// winner's last-used time, never mutates it.
package selector

import (
	"errors"
	"fmt"
	"time"

	"github.com/sourceshift/relaypool/core/policy"
	"github.com/sourceshift/relaypool/core/pool"
	"github.com/sourceshift/relaypool/pkg/logging"
	"github.com/sourceshift/relaypool/pkg/securerandom"
)

// ErrNoViableEndpoint is returned when not even the relaxed health-only
// filter leaves a candidate. It is fatal for the calling request; the
// selector never retries internally.
var ErrNoViableEndpoint = errors.New("no viable endpoint")

// Request describes one selection. Target is informational (logging);
// RegionHint and Policy are optional; HopCount matters only for chains.
type Request struct {
	Target     string
	RegionHint string
	Policy     string
	HopCount   int
}

// Selector ranks registry endpoints under a policy table.
type Selector struct {
	registry *pool.Registry
	policies *policy.Table
	logger   logging.Logger
	now      func() time.Time
}

// New creates a selector over the given registry and policy table.
func New(registry *pool.Registry, policies *policy.Table, logger logging.Logger) *Selector {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Selector{
		registry: registry,
		policies: policies,
		logger:   logger.With("component", "selector"),
		now:      time.Now,
	}
}

// SelectBest returns the highest-scoring viable endpoint for the request.
//
// Candidates come from the region hint's bucket when one is given and known,
// otherwise from the whole pool. Viability is health >= Degraded and latency
// under the policy's ceiling; if that leaves nothing the latency bound is
// dropped, then the hint itself, before giving up with ErrNoViableEndpoint.
// Ties break on lower latency, then registry insertion order.
func (s *Selector) SelectBest(req Request) (*pool.Endpoint, error) {
	prof := s.policies.Lookup(req.Policy)
	ceiling := s.policies.Ceiling(prof)

	candidates := s.registry.AllEndpoints()
	hinted := false
	if req.RegionHint != "" {
		if bucket := s.registry.EndpointsInRegion(req.RegionHint); len(bucket) > 0 {
			candidates = bucket
			hinted = true
		}
	}

	winner := pickBest(viable(candidates, ceiling), prof)
	if winner == nil {
		winner = pickBest(viable(candidates, 0), prof)
	}
	if winner == nil && hinted {
		// The hinted region has nothing usable; fall back to the pool,
		// health-only.
		winner = pickBest(viable(s.registry.AllEndpoints(), 0), prof)
	}
	if winner == nil {
		return nil, fmt.Errorf("%w for target %q", ErrNoViableEndpoint, req.Target)
	}

	if err := s.registry.MarkUsed(winner, s.now()); err != nil {
		return nil, err
	}
	s.logger.Info("endpoint selected",
		"target", req.Target,
		"endpoint", winner.String(),
		"policy", req.Policy,
		"score", policy.Score(winner, prof))
	return winner, nil
}

// selectInRegion is SelectBest restricted to one region with no pool-wide
// fallback; the chain builder uses it to keep hops region-unique.
func (s *Selector) selectInRegion(region string, prof *policy.Profile) (*pool.Endpoint, error) {
	ceiling := s.policies.Ceiling(prof)
	bucket := s.registry.EndpointsInRegion(region)

	winner := pickBest(viable(bucket, ceiling), prof)
	if winner == nil {
		winner = pickBest(viable(bucket, 0), prof)
	}
	if winner == nil {
		return nil, fmt.Errorf("%w in region %q", ErrNoViableEndpoint, region)
	}
	if err := s.registry.MarkUsed(winner, s.now()); err != nil {
		return nil, err
	}
	return winner, nil
}

// BuildChain selects req.HopCount endpoints, keeping hop regions distinct
// while unused regions with viable endpoints remain. When they run out the
// uniqueness constraint is dropped for the remaining hops rather than
// failing; that relaxation is deliberate policy. A nil candidateRegions
// means all registry regions.
func (s *Selector) BuildChain(req Request, candidateRegions []string) ([]*pool.Endpoint, error) {
	if req.HopCount < 1 {
		return nil, fmt.Errorf("chain needs at least one hop, got %d", req.HopCount)
	}
	prof := s.policies.Lookup(req.Policy)

	all := candidateRegions
	if len(all) == 0 {
		all = s.registry.Regions()
	}

	chain := make([]*pool.Endpoint, 0, req.HopCount)
	used := make(map[string]bool)

	for hop := 0; hop < req.HopCount; hop++ {
		available := make([]string, 0, len(all))
		for _, r := range all {
			if !used[r] {
				available = append(available, r)
			}
		}
		if len(available) == 0 {
			// Distinct regions exhausted; regions may repeat from here on.
			available = append(available, all...)
		}
		if err := securerandom.Shuffle(available, func(i, j int) {
			available[i], available[j] = available[j], available[i]
		}); err != nil {
			return nil, fmt.Errorf("shuffling chain regions: %w", err)
		}

		var hopEndpoint *pool.Endpoint
		for _, region := range available {
			ep, err := s.selectInRegion(region, prof)
			if err != nil {
				continue
			}
			hopEndpoint = ep
			used[region] = true
			break
		}
		if hopEndpoint == nil {
			// No region-restricted pick anywhere; last resort is an
			// unrestricted selection.
			ep, err := s.SelectBest(Request{Target: req.Target, Policy: req.Policy})
			if err != nil {
				return nil, err
			}
			hopEndpoint = ep
		}
		chain = append(chain, hopEndpoint)
	}

	s.logger.Info("chain built",
		"target", req.Target,
		"policy", req.Policy,
		"hops", len(chain))
	return chain, nil
}

// viable filters to health >= Degraded, and to latency <= ceilingMs when
// ceilingMs is positive.
func viable(endpoints []*pool.Endpoint, ceilingMs float64) []*pool.Endpoint {
	var out []*pool.Endpoint
	for _, ep := range endpoints {
		m := ep.Metrics()
		if m.Health < pool.Degraded {
			continue
		}
		if ceilingMs > 0 && m.LatencyMs > ceilingMs {
			continue
		}
		out = append(out, ep)
	}
	return out
}

// pickBest returns the highest-scoring endpoint. Ties resolve to the lower
// latency, and equal latencies to the earlier candidate, so identical inputs
// always pick the same winner.
func pickBest(candidates []*pool.Endpoint, prof *policy.Profile) *pool.Endpoint {
	var best *pool.Endpoint
	var bestScore, bestLatency float64
	for _, ep := range candidates {
		score := policy.Score(ep, prof)
		latency := ep.Metrics().LatencyMs
		switch {
		case best == nil,
			score > bestScore,
			score == bestScore && latency < bestLatency:
			best, bestScore, bestLatency = ep, score, latency
		}
	}
	return best
}
