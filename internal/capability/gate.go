// Package capability tracks whether the premium video capability is usable.
package capability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kalambet/dreamhouse/internal/generation"
	"github.com/kalambet/dreamhouse/internal/metrics"
)

// State is the gate's tri-state value.
type State string

const (
	StateUnknown     State = "unknown"
	StateUnavailable State = "unavailable"
	StateAvailable   State = "available"
)

// Granter is the host's credential-selection facility.
type Granter interface {
	HasGrant(ctx context.Context) (bool, error)
	RequestGrant(ctx context.Context) error
}

// Gate is shared by every component that needs to know whether premium
// stages may run. All reads and writes are serialized.
type Gate struct {
	granter Granter
	logger  *slog.Logger

	mu    sync.Mutex
	state State
	// demoted holds the gate unavailable until the next RequestGrant.
	demoted bool
}

// NewGate returns a gate in the unknown state.
func NewGate(g Granter) *Gate {
	return &Gate{granter: g, state: StateUnknown, logger: slog.Default()}
}

// State returns the current state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Available reports whether premium stages may start.
func (g *Gate) Available() bool {
	return g.State() == StateAvailable
}

// Probe asks the granter whether a grant exists and records the answer.
// Repeated probes with no external change leave the state unchanged. On
// error the previous state is kept. A demoted gate stays unavailable until
// a new grant is requested.
func (g *Gate) Probe(ctx context.Context) (State, error) {
	ok, err := g.granter.HasGrant(ctx)
	if err != nil {
		return g.State(), fmt.Errorf("probing grant: %w", err)
	}

	g.mu.Lock()
	prev := g.state
	next := StateUnavailable
	if ok && !g.demoted {
		next = StateAvailable
	}
	g.state = next
	g.mu.Unlock()
	g.logChange(prev, next)
	return next, nil
}

// RequestGrant runs the granter's selection flow and marks the gate available
// without verifying the credential. A bad credential surfaces later as a
// rejection, which demotes the gate.
func (g *Gate) RequestGrant(ctx context.Context) error {
	if err := g.granter.RequestGrant(ctx); err != nil {
		return fmt.Errorf("requesting grant: %w", err)
	}
	g.mu.Lock()
	prev := g.state
	g.state = StateAvailable
	g.demoted = false
	g.mu.Unlock()
	g.logChange(prev, StateAvailable)
	return nil
}

// Demote forces the gate to unavailable.
func (g *Gate) Demote() {
	g.mu.Lock()
	prev := g.state
	g.state = StateUnavailable
	g.demoted = true
	g.mu.Unlock()
	if prev != StateUnavailable {
		g.logger.Warn("capability demoted", "from", prev)
		metrics.RecordDemotion()
	}
}

// ObserveError demotes the gate when err carries a credential rejection and
// reports whether it did.
func (g *Gate) ObserveError(err error) bool {
	if err == nil || !generation.IsCredentialRejected(err) {
		return false
	}
	g.Demote()
	return true
}

func (g *Gate) logChange(prev, next State) {
	if prev != next {
		g.logger.Info("capability state changed", "from", prev, "to", next)
	}
}
