package pool

import (
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"
)

// HealthState classifies an endpoint from its smoothed metrics. The order is
// meaningful: selection filters on HealthState >= Degraded.
type HealthState int

const (
	Dead HealthState = iota
	Poor
	Degraded
	Good
	Excellent
)

var healthNames = map[HealthState]string{
	Dead:      "dead",
	Poor:      "poor",
	Degraded:  "degraded",
	Good:      "good",
	Excellent: "excellent",
}

func (h HealthState) String() string {
	if name, ok := healthNames[h]; ok {
		return name
	}
	return fmt.Sprintf("healthstate(%d)", int(h))
}

// ParseHealthState maps a config string to a HealthState.
func ParseHealthState(s string) (HealthState, error) {
	for h, name := range healthNames {
		if name == s {
			return h, nil
		}
	}
	return Dead, fmt.Errorf("unknown health state: %q", s)
}

// Metrics is an immutable snapshot of an endpoint's live measurements.
// Readers always observe a consistent triple; updates swap the whole
// snapshot atomically.
type Metrics struct {
	LatencyMs   float64
	SuccessRate float64
	Health      HealthState
	// Probed is true once at least one probe against this endpoint has
	// succeeded. Until then the endpoint stays Dead regardless of the
	// smoothed numbers.
	Probed bool
}

// Endpoint is a single outbound exit point. Identity fields are immutable
// after construction; live metrics are owned by the Registry and mutate only
// through RecordProbeResult and MarkUsed.
type Endpoint struct {
	Address  string
	Port     int
	Protocol string // "http", "https" or "socks5"
	Region   string
	Locality string
	Provider string
	ASN      int

	// Optional credentials. Never logged; String() redacts them.
	Username string
	Password string

	metrics  atomic.Pointer[Metrics]
	lastUsed atomic.Int64 // unix nanos, zero until first use
}

// NewEndpoint constructs an endpoint in the initial Dead state with zeroed
// metrics. Provisioning code may seed metrics afterwards via SeedMetrics.
func NewEndpoint(address string, port int, protocol, region, locality, provider string, asn int) *Endpoint {
	e := &Endpoint{
		Address:  address,
		Port:     port,
		Protocol: protocol,
		Region:   region,
		Locality: locality,
		Provider: provider,
		ASN:      asn,
	}
	e.metrics.Store(&Metrics{Health: Dead})
	return e
}

// Key returns the endpoint's identity within the pool.
func (e *Endpoint) Key() string {
	return net.JoinHostPort(e.Address, strconv.Itoa(e.Port))
}

// Metrics returns the current metrics snapshot.
func (e *Endpoint) Metrics() Metrics {
	return *e.metrics.Load()
}

// SeedMetrics installs initial metrics on a freshly provisioned endpoint.
// It is a provisioning-time hook and must not be called once the endpoint is
// registered; after that the Registry is the only writer.
func (e *Endpoint) SeedMetrics(m Metrics) {
	e.metrics.Store(&m)
}

func (e *Endpoint) storeMetrics(m Metrics) {
	e.metrics.Store(&m)
}

// LastUsed returns the time the endpoint last won a selection, or the zero
// time if it never has.
func (e *Endpoint) LastUsed() time.Time {
	ns := e.lastUsed.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (e *Endpoint) markUsed(t time.Time) {
	e.lastUsed.Store(t.UnixNano())
}

// ConnString returns the full connection URL including credentials, suitable
// for handing to a relay collaborator. Do not log this value.
func (e *Endpoint) ConnString() string {
	if e.Username != "" && e.Password != "" {
		return fmt.Sprintf("%s://%s:%s@%s", e.Protocol, e.Username, e.Password, e.Key())
	}
	return fmt.Sprintf("%s://%s", e.Protocol, e.Key())
}

// String is the log-safe rendering of the endpoint: credentials omitted.
func (e *Endpoint) String() string {
	return fmt.Sprintf("%s://%s (%s/%s)", e.Protocol, e.Key(), e.Region, e.Provider)
}
