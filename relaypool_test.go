package relaypool_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceshift/relaypool"
	"github.com/sourceshift/relaypool/core/config"
	"github.com/sourceshift/relaypool/core/selector"
	"github.com/sourceshift/relaypool/testutils"
)

func TestNewEngineAndSelect(t *testing.T) {
	seed := 0.95
	cfg := &config.FileConfig{
		Endpoints: []config.EndpointSpec{
			{
				Address: "67.160.12.54", Port: 8080, Region: "california",
				Provider: "Comcast", SeedHealth: "good", SeedLatencyMs: 100,
				SeedSuccessRate: &seed,
			},
		},
	}

	engine, err := relaypool.NewEngine(cfg, testutils.NewTestLogger())
	require.NoError(t, err)

	ep, err := engine.Select(selector.Request{Target: "example.com"})
	require.NoError(t, err)
	assert.Equal(t, "california", ep.Region)
	assert.Equal(t, "http://67.160.12.54:8080", ep.ConnString())

	regionStats := engine.StatsForPolicy("")
	assert.Equal(t, 1, regionStats["california"].Count)

	status, err := engine.Status()
	require.NoError(t, err)
	assert.Equal(t, "stopped", status)
}

func TestNewEngineRejectsEmptyConfig(t *testing.T) {
	_, err := relaypool.NewEngine(&config.FileConfig{}, testutils.NewTestLogger())
	assert.Error(t, err)
}
