package interfaces

import (
	"context"

	"github.com/sourceshift/relaypool/core/pool"
	"github.com/sourceshift/relaypool/core/selector"
	"github.com/sourceshift/relaypool/core/stats"
)

// Engine defines the public interface for the endpoint pool engine.
type Engine interface {
	// Start launches the background health monitor.
	Start(ctx context.Context) error
	// Stop gracefully stops the engine, finishing in-flight probes.
	Stop() error
	// Status returns the current operational status of the engine.
	Status() (string, error)
	// Select returns the best viable endpoint for the request.
	Select(req selector.Request) (*pool.Endpoint, error)
	// SelectForPolicy selects under the named policy with no region hint.
	SelectForPolicy(target, tag string) (*pool.Endpoint, error)
	// Chain builds a multi-hop chain of endpoints for the request.
	Chain(req selector.Request, candidateRegions []string) ([]*pool.Endpoint, error)
	// StatsForPolicy returns per-region aggregates under the named policy.
	StatsForPolicy(tag string) map[string]stats.RegionStats
}
