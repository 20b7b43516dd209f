// Package testutils holds shared fixtures for the pool engine's tests.
package testutils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sourceshift/relaypool/core/pool"
)

// Fixture regions used across the test suite.
var FixtureRegions = []string{"texas", "california", "ohio", "oregon", "vermont"}

// NewFixtureEndpoint builds one endpoint with deterministic identity for a
// region/index pair, seeded Good at 100ms with a 0.95 success rate.
func NewFixtureEndpoint(region string, index int) *pool.Endpoint {
	ep := pool.NewEndpoint(
		fmt.Sprintf("ep-%s-%d.pool.internal", region, index),
		8080+index,
		"http",
		region,
		fmt.Sprintf("%s-city-%d", region, index),
		fixtureProviders[index%len(fixtureProviders)],
		64512+index,
	)
	ep.SeedMetrics(pool.Metrics{
		LatencyMs:   100,
		SuccessRate: 0.95,
		Health:      pool.Good,
		Probed:      true,
	})
	return ep
}

// NewFixtureRegistry builds a registry with perRegion endpoints in each of
// the given regions (FixtureRegions when none given), all seeded Good.
func NewFixtureRegistry(t *testing.T, perRegion int, regions ...string) *pool.Registry {
	t.Helper()
	if len(regions) == 0 {
		regions = FixtureRegions
	}
	var endpoints []*pool.Endpoint
	for _, region := range regions {
		for i := 0; i < perRegion; i++ {
			endpoints = append(endpoints, NewFixtureEndpoint(region, i))
		}
	}
	registry, err := pool.NewRegistry(endpoints, pool.DefaultSmoothing(), NewTestLogger())
	require.NoError(t, err)
	return registry
}

var fixtureProviders = []string{"Comcast", "AT&T", "Verizon", "Charter", "Cox"}
