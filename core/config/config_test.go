package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
default_latency_ceiling_ms: 200
endpoints:
  - address: 67.160.12.54
    port: 8080
    region: california
    locality: Los Angeles
    provider: Comcast
    asn: 7922
    username: relay_ca_0
    password: s3cret
    seed_health: good
    seed_latency_ms: 110
    seed_success_rate: 0.93
  - address: 74.198.3.9
    port: 1080
    protocol: socks5
    region: texas
    provider: AT&T
policies:
  - name: iboss
    preferred_providers: [Comcast, AT&T]
    avoided_providers: [Google Fiber]
    max_latency_ms: 150
health:
  interval_seconds: 120
  probe_timeout_seconds: 5
  regions_per_cycle: 3
  ema_retain: 0.7
  ema_fresh: 0.3
  latency_penalty_ms: 5000
  probe_urls:
    - http://probe-a.test/ip
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFileConfig(t *testing.T) {
	cfg, err := LoadFileConfig(writeConfig(t, validYAML))
	require.NoError(t, err)

	require.Len(t, cfg.Endpoints, 2)
	assert.Equal(t, "california", cfg.Endpoints[0].Region)
	assert.Equal(t, "good", cfg.Endpoints[0].SeedHealth)
	require.NotNil(t, cfg.Endpoints[0].SeedSuccessRate)
	assert.InDelta(t, 0.93, *cfg.Endpoints[0].SeedSuccessRate, 1e-9)
	assert.Equal(t, "socks5", cfg.Endpoints[1].Protocol)

	require.Len(t, cfg.Policies, 1)
	assert.Equal(t, 150.0, cfg.Policies[0].MaxLatencyMs)

	assert.Equal(t, 120, cfg.Health.IntervalSeconds)
	assert.Equal(t, []string{"http://probe-a.test/ip"}, cfg.Health.ProbeURLs)
}

func TestLoadFileConfigMissingFile(t *testing.T) {
	_, err := LoadFileConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestLoadFileConfigBadYAML(t *testing.T) {
	_, err := LoadFileConfig(writeConfig(t, "endpoints: [}"))
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestValidate(t *testing.T) {
	base := func() FileConfig {
		return FileConfig{
			Endpoints: []EndpointSpec{
				{Address: "67.160.12.54", Port: 8080, Region: "california", Provider: "Comcast"},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*FileConfig)
		wantErr string
	}{
		{"valid", func(c *FileConfig) {}, ""},
		{"no endpoints", func(c *FileConfig) { c.Endpoints = nil }, "no endpoints"},
		{"missing address", func(c *FileConfig) { c.Endpoints[0].Address = "" }, "missing an address"},
		{"bad port", func(c *FileConfig) { c.Endpoints[0].Port = 70000 }, "invalid port"},
		{"missing region", func(c *FileConfig) { c.Endpoints[0].Region = "" }, "missing a region"},
		{"missing provider", func(c *FileConfig) { c.Endpoints[0].Provider = "" }, "missing a provider"},
		{"bad protocol", func(c *FileConfig) { c.Endpoints[0].Protocol = "ftp" }, "invalid protocol"},
		{"duplicate endpoint", func(c *FileConfig) {
			c.Endpoints = append(c.Endpoints, c.Endpoints[0])
		}, "duplicate endpoint"},
		{"bad seed health", func(c *FileConfig) { c.Endpoints[0].SeedHealth = "great" }, "unknown health state"},
		{"negative seed latency", func(c *FileConfig) { c.Endpoints[0].SeedLatencyMs = -1 }, "negative seed latency"},
		{"seed rate out of range", func(c *FileConfig) {
			bad := 1.5
			c.Endpoints[0].SeedSuccessRate = &bad
		}, "seed_success_rate"},
		{"unnamed policy", func(c *FileConfig) {
			c.Policies = []PolicySpec{{MaxLatencyMs: 100}}
		}, "missing a name"},
		{"duplicate policy", func(c *FileConfig) {
			c.Policies = []PolicySpec{{Name: "a"}, {Name: "a"}}
		}, "duplicate policy"},
		{"lonely ema weight", func(c *FileConfig) { c.Health.EMARetain = 0.7 }, "set together"},
		{"ema weights off", func(c *FileConfig) {
			c.Health.EMARetain = 0.7
			c.Health.EMAFresh = 0.4
		}, "sum to 1"},
		{"negative interval", func(c *FileConfig) { c.Health.IntervalSeconds = -1 }, "must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
