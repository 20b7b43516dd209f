// Package relaypool selects and maintains a pool of outbound relay
// endpoints: region-partitioned bookkeeping, policy-weighted scoring,
// deterministic best-endpoint selection, multi-hop chain building and a
// background health-probing loop.
package relaypool

import (
	"context"

	"github.com/sourceshift/relaypool/core"
	"github.com/sourceshift/relaypool/core/config"
	"github.com/sourceshift/relaypool/core/pool"
	"github.com/sourceshift/relaypool/core/selector"
	"github.com/sourceshift/relaypool/core/stats"
	"github.com/sourceshift/relaypool/interfaces"
	"github.com/sourceshift/relaypool/pkg/logging"
)

// Engine is the top-level handle over the core engine.
type Engine struct {
	coreEngine *core.Engine
}

// NewEngine creates an engine from a validated configuration.
func NewEngine(cfg *config.FileConfig, logger logging.Logger) (interfaces.Engine, error) {
	coreEngine, err := core.NewEngine(cfg, nil, logger)
	if err != nil {
		return nil, err
	}
	return &Engine{coreEngine: coreEngine}, nil
}

// Start launches the background health monitor.
func (e *Engine) Start(ctx context.Context) error {
	return e.coreEngine.Start(ctx)
}

// Stop gracefully stops the engine.
func (e *Engine) Stop() error {
	return e.coreEngine.Stop()
}

// Status returns the current operational status of the engine.
func (e *Engine) Status() (string, error) {
	return e.coreEngine.Status()
}

// Select returns the best viable endpoint for the request.
func (e *Engine) Select(req selector.Request) (*pool.Endpoint, error) {
	return e.coreEngine.Select(req)
}

// SelectForPolicy selects under the named policy with no region hint.
func (e *Engine) SelectForPolicy(target, tag string) (*pool.Endpoint, error) {
	return e.coreEngine.SelectForPolicy(target, tag)
}

// Chain builds a multi-hop chain of endpoints for the request.
func (e *Engine) Chain(req selector.Request, candidateRegions []string) ([]*pool.Endpoint, error) {
	return e.coreEngine.Chain(req, candidateRegions)
}

// StatsForPolicy returns per-region aggregates under the named policy.
func (e *Engine) StatsForPolicy(tag string) map[string]stats.RegionStats {
	return e.coreEngine.StatsForPolicy(tag)
}
