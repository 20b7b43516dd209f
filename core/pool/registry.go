package pool

import (
	"errors"
	"fmt"
	"time"

	"github.com/sourceshift/relaypool/pkg/logging"
)

// ErrRegistryInconsistency reports an endpoint that is not where the registry
// says it should be. It indicates a bug in provisioning or in the registry
// itself, never a runtime condition, and callers should treat it as fatal.
var ErrRegistryInconsistency = errors.New("registry inconsistency")

// Smoothing controls the exponential moving average applied by
// RecordProbeResult and the penalty used when a probe battery yields no
// successes.
type Smoothing struct {
	// Retain is the weight of the previous value, Fresh of the new sample.
	// They must sum to 1.
	Retain float64
	Fresh  float64
	// PenaltyLatencyMs stands in for the mean latency of a battery with zero
	// successes. A large finite value keeps the latency score at its floor
	// without feeding Inf into the average.
	PenaltyLatencyMs float64
}

// DefaultSmoothing retains 70% of the previous value per cycle and charges
// failed batteries 5000ms.
func DefaultSmoothing() Smoothing {
	return Smoothing{Retain: 0.7, Fresh: 0.3, PenaltyLatencyMs: 5000}
}

// ProbeSample is the raw outcome of one probe battery against one endpoint.
type ProbeSample struct {
	Attempted int
	Successes int
	// MeanLatencyMs is the mean latency of the successful probes. Ignored
	// when Successes is zero.
	MeanLatencyMs float64
}

// Registry owns the canonical endpoint set, partitioned by region. The pool
// is fixed at construction: endpoints are never added or removed afterwards,
// only their metrics change. All read methods are safe for concurrent use
// with metric updates.
type Registry struct {
	regions   map[string][]*Endpoint
	order     []string // region names in first-seen order
	pool      []*Endpoint
	byKey     map[string]*Endpoint
	smoothing Smoothing
	logger    logging.Logger
}

// NewRegistry builds a registry from the provisioned endpoints. Endpoints
// are bucketed by region in the order given; duplicate identities are
// rejected.
func NewRegistry(endpoints []*Endpoint, smoothing Smoothing, logger logging.Logger) (*Registry, error) {
	if logger == nil {
		logger = logging.GetLogger()
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("registry requires at least one endpoint")
	}
	if smoothing.Retain <= 0 || smoothing.Fresh <= 0 {
		smoothing = DefaultSmoothing()
	}

	r := &Registry{
		regions:   make(map[string][]*Endpoint),
		byKey:     make(map[string]*Endpoint),
		smoothing: smoothing,
		logger:    logger.With("component", "registry"),
	}
	for _, ep := range endpoints {
		if ep.Region == "" {
			return nil, fmt.Errorf("endpoint %s has no region", ep.Key())
		}
		if _, dup := r.byKey[ep.Key()]; dup {
			return nil, fmt.Errorf("duplicate endpoint identity: %s", ep.Key())
		}
		if _, seen := r.regions[ep.Region]; !seen {
			r.order = append(r.order, ep.Region)
		}
		r.regions[ep.Region] = append(r.regions[ep.Region], ep)
		r.pool = append(r.pool, ep)
		r.byKey[ep.Key()] = ep
	}
	r.logger.Info("registry initialized",
		"endpoints", len(r.pool), "regions", len(r.order))
	return r, nil
}

// AllEndpoints returns every endpoint in insertion order.
func (r *Registry) AllEndpoints() []*Endpoint {
	out := make([]*Endpoint, len(r.pool))
	copy(out, r.pool)
	return out
}

// EndpointsInRegion returns the region's bucket in insertion order, or nil
// for an unknown region.
func (r *Registry) EndpointsInRegion(region string) []*Endpoint {
	bucket, ok := r.regions[region]
	if !ok {
		return nil
	}
	out := make([]*Endpoint, len(bucket))
	copy(out, bucket)
	return out
}

// Regions returns the region names in first-seen order.
func (r *Registry) Regions() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the total endpoint count.
func (r *Registry) Len() int {
	return len(r.pool)
}

// RecordProbeResult folds one probe battery into the endpoint's metrics:
// EMA smoothing of latency and success rate followed by health
// reclassification from the updated values. The whole update is one atomic
// snapshot swap, so concurrent selection reads see either the old or the new
// metrics, never a mixture. Only the health monitor may call this.
func (r *Registry) RecordProbeResult(ep *Endpoint, sample ProbeSample) error {
	if err := r.owns(ep); err != nil {
		return err
	}
	if sample.Attempted <= 0 {
		return fmt.Errorf("probe sample for %s has no attempts", ep.Key())
	}

	rawRate := float64(sample.Successes) / float64(sample.Attempted)
	rawLatency := sample.MeanLatencyMs
	if sample.Successes == 0 {
		rawLatency = r.smoothing.PenaltyLatencyMs
	}

	prev := ep.Metrics()
	next := Metrics{
		LatencyMs:   r.smoothing.Retain*prev.LatencyMs + r.smoothing.Fresh*rawLatency,
		SuccessRate: r.smoothing.Retain*prev.SuccessRate + r.smoothing.Fresh*rawRate,
		Probed:      prev.Probed || sample.Successes > 0,
	}
	next.Health = classify(next)
	ep.storeMetrics(next)

	r.logger.Debug("probe result recorded",
		"endpoint", ep.String(),
		"raw_success_rate", rawRate,
		"success_rate", next.SuccessRate,
		"latency_ms", next.LatencyMs,
		"health", next.Health.String())
	return nil
}

// MarkUsed stamps the endpoint's last-used time. Only the selection engine
// may call this, and only for an endpoint it just selected.
func (r *Registry) MarkUsed(ep *Endpoint, t time.Time) error {
	if err := r.owns(ep); err != nil {
		return err
	}
	ep.markUsed(t)
	return nil
}

func (r *Registry) owns(ep *Endpoint) error {
	if ep == nil {
		return fmt.Errorf("%w: nil endpoint", ErrRegistryInconsistency)
	}
	registered, ok := r.byKey[ep.Key()]
	if !ok || registered != ep {
		return fmt.Errorf("%w: endpoint %s is not registered", ErrRegistryInconsistency, ep.Key())
	}
	return nil
}

// classify derives the health state from smoothed metrics. Dead is sticky
// until the first successful probe; after that the thresholds apply in
// order.
func classify(m Metrics) HealthState {
	if !m.Probed {
		return Dead
	}
	switch {
	case m.SuccessRate >= 0.9 && m.LatencyMs < 300:
		return Excellent
	case m.SuccessRate >= 0.7 && m.LatencyMs < 600:
		return Good
	case m.SuccessRate >= 0.5:
		return Degraded
	default:
		return Poor
	}
}
