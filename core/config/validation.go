package config

import (
	"fmt"
	"math"

	"github.com/sourceshift/relaypool/core/pool"
)

var validProtocols = map[string]bool{
	"":       true, // defaults to http
	"http":   true,
	"https":  true,
	"socks5": true,
}

func (fc *FileConfig) Validate() error {
	if len(fc.Endpoints) == 0 {
		return fmt.Errorf("no endpoints found in configuration")
	}
	if fc.DefaultLatencyCeilingMs < 0 {
		return fmt.Errorf("default_latency_ceiling_ms must not be negative")
	}

	seen := make(map[string]bool)
	for i, ep := range fc.Endpoints {
		if ep.Address == "" {
			return fmt.Errorf("endpoint %d is missing an address", i)
		}
		if ep.Port <= 0 || ep.Port > 65535 {
			return fmt.Errorf("endpoint %s has an invalid port: %d", ep.Address, ep.Port)
		}
		if ep.Region == "" {
			return fmt.Errorf("endpoint %s is missing a region", ep.Address)
		}
		if ep.Provider == "" {
			return fmt.Errorf("endpoint %s is missing a provider", ep.Address)
		}
		if !validProtocols[ep.Protocol] {
			return fmt.Errorf("endpoint %s has an invalid protocol: %s", ep.Address, ep.Protocol)
		}
		key := fmt.Sprintf("%s:%d", ep.Address, ep.Port)
		if seen[key] {
			return fmt.Errorf("duplicate endpoint: %s", key)
		}
		seen[key] = true

		if ep.SeedHealth != "" {
			if _, err := pool.ParseHealthState(ep.SeedHealth); err != nil {
				return fmt.Errorf("endpoint %s: %w", ep.Address, err)
			}
		}
		if ep.SeedLatencyMs < 0 {
			return fmt.Errorf("endpoint %s has a negative seed latency", ep.Address)
		}
		if ep.SeedSuccessRate != nil && (*ep.SeedSuccessRate < 0 || *ep.SeedSuccessRate > 1) {
			return fmt.Errorf("endpoint %s seed_success_rate must be in [0,1]", ep.Address)
		}
	}

	names := make(map[string]bool)
	for i, p := range fc.Policies {
		if p.Name == "" {
			return fmt.Errorf("policy %d is missing a name", i)
		}
		if names[p.Name] {
			return fmt.Errorf("duplicate policy name: %s", p.Name)
		}
		names[p.Name] = true
		if p.MaxLatencyMs < 0 {
			return fmt.Errorf("policy '%s' max_latency_ms must not be negative", p.Name)
		}
	}

	return fc.Health.validate()
}

func (h *HealthSpec) validate() error {
	if h.IntervalSeconds < 0 || h.ProbeTimeoutSeconds < 0 || h.RegionsPerCycle < 0 {
		return fmt.Errorf("health settings must not be negative")
	}
	if h.ProbeRatePerSecond < 0 {
		return fmt.Errorf("probe_rate_per_second must not be negative")
	}
	if h.LatencyPenaltyMs < 0 {
		return fmt.Errorf("latency_penalty_ms must not be negative")
	}
	// Both weights set means both set and summing to 1; one set alone is a
	// config mistake.
	if (h.EMARetain == 0) != (h.EMAFresh == 0) {
		return fmt.Errorf("ema_retain and ema_fresh must be set together")
	}
	if h.EMARetain != 0 {
		if h.EMARetain < 0 || h.EMAFresh < 0 {
			return fmt.Errorf("ema weights must not be negative")
		}
		if math.Abs(h.EMARetain+h.EMAFresh-1) > 1e-9 {
			return fmt.Errorf("ema_retain and ema_fresh must sum to 1")
		}
	}
	return nil
}
