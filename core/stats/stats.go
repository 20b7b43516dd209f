// Package stats is the read-only reporting view over the registry, plus the
// counters fed by the health monitor.
package stats

import (
	"sync"
	"time"

	"github.com/sourceshift/relaypool/core/health"
	"github.com/sourceshift/relaypool/core/policy"
	"github.com/sourceshift/relaypool/core/pool"
)

// Recommendation bands for a region's average score under a policy.
const (
	RecommendExcellent = "EXCELLENT"
	RecommendGood      = "GOOD"
	RecommendAvoid     = "AVOID"
)

// RegionStats aggregates one region's endpoints under a policy.
type RegionStats struct {
	Count          int
	Healthy        int
	AvgScore       float64
	AvgLatencyMs   float64
	Recommendation string
}

// View computes per-region aggregates. It only reads the registry.
type View struct {
	registry *pool.Registry
	policies *policy.Table
}

// NewView creates a stats view over the registry and policy table.
func NewView(registry *pool.Registry, policies *policy.Table) *View {
	return &View{registry: registry, policies: policies}
}

// ForPolicy returns region-keyed aggregates scored under the named policy.
// An empty or unknown name scores providers neutrally.
func (v *View) ForPolicy(tag string) map[string]RegionStats {
	prof := v.policies.Lookup(tag)
	out := make(map[string]RegionStats)

	for _, region := range v.registry.Regions() {
		bucket := v.registry.EndpointsInRegion(region)
		if len(bucket) == 0 {
			continue
		}
		rs := RegionStats{Count: len(bucket)}
		var scoreSum, latencySum float64
		for _, ep := range bucket {
			scoreSum += policy.Score(ep, prof)
			latencySum += ep.Metrics().LatencyMs
			if ep.Metrics().Health >= pool.Degraded {
				rs.Healthy++
			}
		}
		rs.AvgScore = scoreSum / float64(len(bucket))
		rs.AvgLatencyMs = latencySum / float64(len(bucket))
		rs.Recommendation = recommend(rs.AvgScore)
		out[region] = rs
	}
	return out
}

func recommend(avgScore float64) string {
	switch {
	case avgScore > 0.8:
		return RecommendExcellent
	case avgScore > 0.6:
		return RecommendGood
	default:
		return RecommendAvoid
	}
}

// MonitorStats summarizes the health monitor's activity so far.
type MonitorStats struct {
	Cycles          int
	EndpointsProbed int
	LastHealthy     int
	LastProbed      int
	LastRegions     []string
	LastCycleAt     time.Time
}

// Collector accumulates cycle summaries from the health monitor. Safe for
// concurrent use.
type Collector struct {
	mu    sync.Mutex
	stats MonitorStats
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// RecordCycle folds one cycle summary into the counters. Wire it to the
// monitor via Monitor.SetOnCycle.
func (c *Collector) RecordCycle(s health.CycleSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Cycles++
	c.stats.EndpointsProbed += s.Probed
	c.stats.LastHealthy = s.Healthy
	c.stats.LastProbed = s.Probed
	c.stats.LastRegions = append([]string(nil), s.Regions...)
	c.stats.LastCycleAt = time.Now()
}

// Snapshot returns a copy of the counters.
func (c *Collector) Snapshot() MonitorStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.stats
	out.LastRegions = append([]string(nil), c.stats.LastRegions...)
	return out
}
