package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/sourceshift/relaypool/core"
	"github.com/sourceshift/relaypool/core/config"
	"github.com/sourceshift/relaypool/core/health"
	"github.com/sourceshift/relaypool/core/pool"
	"github.com/sourceshift/relaypool/core/selector"
	"github.com/sourceshift/relaypool/core/stats"
	"github.com/sourceshift/relaypool/mocks"
	"github.com/sourceshift/relaypool/testutils"
)

func rate(v float64) *float64 { return &v }

func testConfig() *config.FileConfig {
	return &config.FileConfig{
		Endpoints: []config.EndpointSpec{
			{
				Address: "67.160.12.54", Port: 8080, Region: "california",
				Locality: "Los Angeles", Provider: "Comcast", ASN: 7922,
				SeedHealth: "good", SeedLatencyMs: 110, SeedSuccessRate: rate(0.93),
			},
			{
				Address: "74.198.3.9", Port: 8080, Region: "texas",
				Locality: "Houston", Provider: "AT&T", ASN: 7018,
				SeedHealth: "excellent", SeedLatencyMs: 60, SeedSuccessRate: rate(0.97),
			},
			{
				Address: "96.228.1.7", Port: 8080, Region: "texas",
				Locality: "Dallas", Provider: "Google Fiber", ASN: 16591,
				SeedHealth: "dead",
			},
		},
		Policies: []config.PolicySpec{
			{
				Name:               "iboss",
				PreferredProviders: []string{"Comcast", "AT&T"},
				AvoidedProviders:   []string{"Google Fiber"},
				MaxLatencyMs:       150,
			},
		},
		Health: config.HealthSpec{
			IntervalSeconds:     1200,
			ProbeTimeoutSeconds: 1,
			RegionsPerCycle:     5,
			ProbeURLs:           []string{"http://probe-a.test/ip"},
		},
	}
}

func newTestEngine(t *testing.T, prober health.Prober) *core.Engine {
	t.Helper()
	e, err := core.NewEngine(testConfig(), prober, testutils.NewTestLogger())
	require.NoError(t, err)
	return e
}

func TestNewEngineBuildsPoolFromConfig(t *testing.T) {
	e := newTestEngine(t, nil)

	registry := e.Registry()
	assert.Equal(t, 3, registry.Len())
	assert.ElementsMatch(t, []string{"california", "texas"}, registry.Regions())

	seeded := registry.EndpointsInRegion("california")[0]
	m := seeded.Metrics()
	assert.Equal(t, pool.Good, m.Health)
	assert.InDelta(t, 110, m.LatencyMs, 1e-9)
	assert.InDelta(t, 0.93, m.SuccessRate, 1e-9)
}

func TestNewEngineRejectsInvalidConfig(t *testing.T) {
	_, err := core.NewEngine(&config.FileConfig{}, nil, testutils.NewTestLogger())
	assert.Error(t, err)
}

func TestEngineSelectUsesConfiguredPolicy(t *testing.T) {
	e := newTestEngine(t, nil)

	// Under iboss the avoided Google Fiber endpoint is dead anyway; the AT&T
	// one has the best metrics and a preferred provider.
	ep, err := e.Select(selector.Request{Target: "example.com", Policy: "iboss"})
	require.NoError(t, err)
	assert.Equal(t, "74.198.3.9", ep.Address)
	assert.False(t, ep.LastUsed().IsZero())
}

func TestEngineSelectForPolicy(t *testing.T) {
	e := newTestEngine(t, nil)

	ep, err := e.SelectForPolicy("example.com", "iboss")
	require.NoError(t, err)
	assert.Equal(t, "74.198.3.9", ep.Address)
}

func TestEngineChain(t *testing.T) {
	e := newTestEngine(t, nil)

	chain, err := e.Chain(selector.Request{Target: "example.com", HopCount: 2}, nil)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.NotEqual(t, chain[0].Region, chain[1].Region)
}

func TestEngineStatsForPolicy(t *testing.T) {
	e := newTestEngine(t, nil)

	got := e.StatsForPolicy("iboss")
	require.Contains(t, got, "texas")
	assert.Equal(t, 2, got["texas"].Count)
	assert.Equal(t, 1, got["texas"].Healthy)
	assert.Equal(t, stats.RecommendExcellent, got["california"].Recommendation)
}

func TestEngineLifecycle(t *testing.T) {
	ctrl := gomock.NewController(t)
	prober := mocks.NewMockProber(ctrl)
	prober.EXPECT().Probe(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(health.Result{StatusCode: 200, Elapsed: 40 * time.Millisecond}, nil).
		AnyTimes()

	e := newTestEngine(t, prober)

	status, err := e.Status()
	require.NoError(t, err)
	assert.Equal(t, "stopped", status)

	require.NoError(t, e.Start(context.Background()))
	assert.Error(t, e.Start(context.Background()), "double start must fail")

	// The first cycle runs immediately on start.
	assert.Eventually(t, func() bool {
		return e.MonitorStats().Cycles >= 1
	}, 2*time.Second, 10*time.Millisecond)

	status, err = e.Status()
	require.NoError(t, err)
	assert.Contains(t, status, "monitoring 3 endpoints")

	require.NoError(t, e.Stop())
	assert.Error(t, e.Stop(), "double stop must fail")
}

func TestEngineForcedHealthCycle(t *testing.T) {
	ctrl := gomock.NewController(t)
	prober := mocks.NewMockProber(ctrl)
	prober.EXPECT().Probe(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(health.Result{StatusCode: 200, Elapsed: 40 * time.Millisecond}, nil).
		AnyTimes()

	e := newTestEngine(t, prober)
	summary := e.RunHealthCycle(context.Background())

	assert.Equal(t, 3, summary.Probed)
	// The dead endpoint's first success revives it, but one smoothed cycle
	// only lifts its success rate to 0.3: alive, still unhealthy.
	assert.Equal(t, 2, summary.Healthy)
	assert.Equal(t, 1, summary.Unhealthy)

	revived := e.Registry().EndpointsInRegion("texas")[1]
	assert.Equal(t, pool.Poor, revived.Metrics().Health)
}
