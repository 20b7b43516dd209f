package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceshift/relaypool/core/pool"
)

func scoredEndpoint(provider string, m pool.Metrics) *pool.Endpoint {
	ep := pool.NewEndpoint("203.0.113.10", 8080, "http", "texas", "Houston", provider, 7922)
	ep.SeedMetrics(m)
	return ep
}

func TestScoreIsPure(t *testing.T) {
	table := DefaultTable()
	prof := table.Lookup("iboss")
	ep := scoredEndpoint("Comcast", pool.Metrics{LatencyMs: 120, SuccessRate: 0.85, Health: pool.Good, Probed: true})

	first := Score(ep, prof)
	for i := 0; i < 1000; i++ {
		assert.Equal(t, first, Score(ep, prof), "identical inputs must yield the identical score")
	}
}

func TestScoreWeighting(t *testing.T) {
	// latency 100 -> latencyScore 0.98; health Good -> 0.75.
	m := pool.Metrics{LatencyMs: 100, SuccessRate: 0.9, Health: pool.Good, Probed: true}

	// Neutral provider, no profile.
	got := Score(scoredEndpoint("Comcast", m), nil)
	want := 0.30*0.98 + 0.40*0.9 + 0.20*0.75 + 0.10*0.5
	assert.InDelta(t, want, got, 1e-9)
}

func TestScoreProviderComponent(t *testing.T) {
	m := pool.Metrics{LatencyMs: 100, SuccessRate: 0.9, Health: pool.Good, Probed: true}
	prof := &Profile{
		Name:      "test",
		Preferred: map[string]bool{"Comcast": true},
		Avoided:   map[string]bool{"Google Fiber": true},
	}

	preferred := Score(scoredEndpoint("Comcast", m), prof)
	neutral := Score(scoredEndpoint("Windstream", m), prof)
	avoided := Score(scoredEndpoint("Google Fiber", m), prof)

	assert.InDelta(t, 0.05, preferred-neutral, 1e-9)
	assert.InDelta(t, 0.05, neutral-avoided, 1e-9)
}

func TestScoreStaysInUnitInterval(t *testing.T) {
	tests := []pool.Metrics{
		{},
		{LatencyMs: 100000, SuccessRate: 0, Health: pool.Dead},
		{LatencyMs: 0, SuccessRate: 1, Health: pool.Excellent, Probed: true},
	}
	for _, m := range tests {
		s := Score(scoredEndpoint("Comcast", m), nil)
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}

func TestScoreLatencyFloor(t *testing.T) {
	fast := scoredEndpoint("Comcast", pool.Metrics{LatencyMs: 0, SuccessRate: 0.5, Health: pool.Degraded, Probed: true})
	slow := scoredEndpoint("Comcast", pool.Metrics{LatencyMs: 6000, SuccessRate: 0.5, Health: pool.Degraded, Probed: true})
	slower := scoredEndpoint("Comcast", pool.Metrics{LatencyMs: 9000, SuccessRate: 0.5, Health: pool.Degraded, Probed: true})

	assert.Greater(t, Score(fast, nil), Score(slow, nil))
	// Beyond the floor extra latency stops mattering.
	assert.Equal(t, Score(slow, nil), Score(slower, nil))
}

func TestDefaultTableProfiles(t *testing.T) {
	table := DefaultTable()
	assert.Equal(t, []string{"goguardian", "iboss", "lanschool", "securly"}, table.Names())

	assert.Equal(t, 150.0, table.Ceiling(table.Lookup("iboss")))
	assert.Equal(t, 250.0, table.Ceiling(table.Lookup("lanschool")))
	assert.Equal(t, float64(DefaultLatencyCeilingMs), table.Ceiling(nil))
}

func TestLookupUnknownIsNil(t *testing.T) {
	table := DefaultTable()
	assert.Nil(t, table.Lookup(""))
	assert.Nil(t, table.Lookup("no-such-policy"))
}

func TestNewTableValidation(t *testing.T) {
	_, err := NewTable([]Profile{{Name: ""}}, 0)
	assert.Error(t, err)

	_, err = NewTable([]Profile{{Name: "a"}, {Name: "a"}}, 0)
	assert.ErrorContains(t, err, "duplicate")
}

func TestNewTableDefaultsCeilings(t *testing.T) {
	table, err := NewTable([]Profile{{Name: "custom"}}, 0)
	require.NoError(t, err)
	// A profile without its own ceiling inherits the default.
	assert.Equal(t, float64(DefaultLatencyCeilingMs), table.Ceiling(table.Lookup("custom")))
	assert.Equal(t, float64(DefaultLatencyCeilingMs), table.DefaultCeiling())
}
