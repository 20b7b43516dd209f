package config

// FileConfig is the top-level configuration: the provisioned endpoint pool,
// optional selection-policy profiles, and health-monitor settings.
type FileConfig struct {
	Endpoints []EndpointSpec `yaml:"endpoints"`
	Policies  []PolicySpec   `yaml:"policies,omitempty"`
	Health    HealthSpec     `yaml:"health,omitempty"`

	// DefaultLatencyCeilingMs bounds selection latency when a request names
	// no policy. Defaults to 200.
	DefaultLatencyCeilingMs float64 `yaml:"default_latency_ceiling_ms,omitempty"`
}

// EndpointSpec provisions one endpoint. Seed fields let static config start
// an endpoint above the Dead state, e.g. when the pool is re-provisioned
// from known-good records.
type EndpointSpec struct {
	Address  string `yaml:"address"`
	Port     int    `yaml:"port"`
	Protocol string `yaml:"protocol,omitempty"` // http (default), https, socks5
	Region   string `yaml:"region"`
	Locality string `yaml:"locality,omitempty"`
	Provider string `yaml:"provider"`
	ASN      int    `yaml:"asn,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`

	SeedHealth      string   `yaml:"seed_health,omitempty"`
	SeedLatencyMs   float64  `yaml:"seed_latency_ms,omitempty"`
	SeedSuccessRate *float64 `yaml:"seed_success_rate,omitempty"`
}

// PolicySpec defines one selection-policy profile.
type PolicySpec struct {
	Name               string   `yaml:"name"`
	PreferredProviders []string `yaml:"preferred_providers,omitempty"`
	AvoidedProviders   []string `yaml:"avoided_providers,omitempty"`
	MaxLatencyMs       float64  `yaml:"max_latency_ms,omitempty"`
}

// HealthSpec configures the monitor loop and the smoothing math.
type HealthSpec struct {
	IntervalSeconds     int      `yaml:"interval_seconds,omitempty"`      // default 300
	ProbeTimeoutSeconds int      `yaml:"probe_timeout_seconds,omitempty"` // default 10
	ProbeURLs           []string `yaml:"probe_urls,omitempty"`
	RegionsPerCycle     int      `yaml:"regions_per_cycle,omitempty"` // default 5
	ProbeRatePerSecond  float64  `yaml:"probe_rate_per_second,omitempty"`

	// EMA weights; must sum to 1 when set. Defaults 0.7 retained, 0.3 new.
	EMARetain float64 `yaml:"ema_retain,omitempty"`
	EMAFresh  float64 `yaml:"ema_fresh,omitempty"`
	// LatencyPenaltyMs replaces the mean latency of a zero-success battery.
	// Default 5000.
	LatencyPenaltyMs float64 `yaml:"latency_penalty_ms,omitempty"`
}
