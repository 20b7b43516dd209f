// Package policy holds the selection-policy profiles and the scoring
// function used to rank endpoints. Scoring is pure: the same metrics and
// profile always produce the same score.
package policy

import (
	"fmt"
	"sort"

	"github.com/sourceshift/relaypool/core/pool"
)

// Scoring weights. They sum to 1 so scores stay in [0,1].
const (
	latencyWeight  = 0.30
	successWeight  = 0.40
	healthWeight   = 0.20
	providerWeight = 0.10

	// latencyFloorMs is the latency at which the latency component bottoms
	// out at zero.
	latencyFloorMs = 5000
)

// DefaultLatencyCeilingMs caps endpoint latency during selection when no
// profile supplies its own ceiling.
const DefaultLatencyCeilingMs = 200

// Profile is one consumer-specific optimization profile: which providers to
// seek out or steer around, and how much latency the consumer tolerates.
type Profile struct {
	Name         string
	Preferred    map[string]bool
	Avoided      map[string]bool
	MaxLatencyMs float64
}

// Table resolves profile names. A nil or unknown name resolves to no
// profile, which scores providers neutrally and uses the default ceiling.
type Table struct {
	profiles       map[string]*Profile
	defaultCeiling float64
}

// NewTable builds a table from explicit profiles. A non-positive
// defaultCeiling falls back to DefaultLatencyCeilingMs.
func NewTable(profiles []Profile, defaultCeiling float64) (*Table, error) {
	if defaultCeiling <= 0 {
		defaultCeiling = DefaultLatencyCeilingMs
	}
	t := &Table{
		profiles:       make(map[string]*Profile),
		defaultCeiling: defaultCeiling,
	}
	for i := range profiles {
		p := profiles[i]
		if p.Name == "" {
			return nil, fmt.Errorf("profile %d has no name", i)
		}
		if _, dup := t.profiles[p.Name]; dup {
			return nil, fmt.Errorf("duplicate profile name: %s", p.Name)
		}
		if p.MaxLatencyMs <= 0 {
			p.MaxLatencyMs = defaultCeiling
		}
		t.profiles[p.Name] = &p
	}
	return t, nil
}

// DefaultTable returns the built-in profiles for the inspection systems the
// pool is commonly tuned against. Config-supplied profiles replace these.
func DefaultTable() *Table {
	t, err := NewTable([]Profile{
		{
			Name:         "iboss",
			Preferred:    providerSet("Comcast", "AT&T", "Verizon", "Charter", "Cox"),
			Avoided:      providerSet("Google Fiber", "CenturyLink"),
			MaxLatencyMs: 150,
		},
		{
			Name:         "goguardian",
			Preferred:    providerSet("Spectrum", "Xfinity", "Optimum", "Mediacom", "Frontier"),
			Avoided:      providerSet("Verizon Business", "AT&T Business"),
			MaxLatencyMs: 200,
		},
		{
			Name:         "securly",
			Preferred:    providerSet("Cox", "Suddenlink", "Cable One", "WOW!", "RCN"),
			Avoided:      providerSet("CenturyLink", "Frontier Communications"),
			MaxLatencyMs: 180,
		},
		{
			Name:         "lanschool",
			Preferred:    providerSet("AT&T", "Verizon", "CenturyLink", "Windstream", "Frontier"),
			Avoided:      providerSet("Comcast Business", "Charter Business"),
			MaxLatencyMs: 250,
		},
	}, DefaultLatencyCeilingMs)
	if err != nil {
		panic(err) // built-ins are static and valid
	}
	return t
}

func providerSet(names ...string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// Lookup resolves a profile by name; the empty name and unknown names return
// nil, meaning "no profile".
func (t *Table) Lookup(name string) *Profile {
	if name == "" {
		return nil
	}
	return t.profiles[name]
}

// Names returns the known profile names, sorted.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.profiles))
	for n := range t.profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Ceiling returns the latency ceiling for a profile, or the table's default
// when the profile is nil.
func (t *Table) Ceiling(p *Profile) float64 {
	if p == nil {
		return t.defaultCeiling
	}
	return p.MaxLatencyMs
}

// DefaultCeiling returns the table-wide default latency ceiling.
func (t *Table) DefaultCeiling() float64 {
	return t.defaultCeiling
}

// Score ranks an endpoint for a profile on a [0,1] scale:
// 30% latency headroom, 40% success rate, 20% health, 10% provider fit.
// A nil profile scores every provider neutrally.
func Score(ep *pool.Endpoint, p *Profile) float64 {
	m := ep.Metrics()

	latencyScore := 1 - m.LatencyMs/latencyFloorMs
	if latencyScore < 0 {
		latencyScore = 0
	}
	healthScore := float64(m.Health) / float64(pool.Excellent)

	return latencyWeight*latencyScore +
		successWeight*m.SuccessRate +
		healthWeight*healthScore +
		providerWeight*providerScore(ep.Provider, p)
}

func providerScore(provider string, p *Profile) float64 {
	if p == nil {
		return 0.5
	}
	switch {
	case p.Preferred[provider]:
		return 1.0
	case p.Avoided[provider]:
		return 0.0
	default:
		return 0.5
	}
}
