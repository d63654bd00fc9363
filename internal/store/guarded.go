package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/af-corp/chatfilter/internal/moderation"
)

// ErrCircuitOpen is returned while the store circuit is open and no
// snapshot has ever been read.
var ErrCircuitOpen = errors.New("store: circuit open")

// GuardedSource wraps a source with a circuit breaker. While the circuit is
// open it serves the last snapshot it read successfully.
type GuardedSource struct {
	next    Source
	breaker *CircuitBreaker

	mu           sync.RWMutex
	settings     map[string]any
	found        bool
	haveSettings bool
	rules        []moderation.Rule
	haveRules    bool
}

func NewGuardedSource(next Source, breaker *CircuitBreaker) *GuardedSource {
	return &GuardedSource{next: next, breaker: breaker}
}

// State returns the breaker state.
func (g *GuardedSource) State() CircuitState {
	return g.breaker.State()
}

// Ready reports whether the store has answered at least once and the
// circuit is not open.
func (g *GuardedSource) Ready() bool {
	g.mu.RLock()
	seen := g.haveSettings || g.haveRules
	g.mu.RUnlock()
	return seen && g.breaker.State() != StateOpen
}

// LastRules returns the most recent rule set read from the store, and false
// when none has been read yet.
func (g *GuardedSource) LastRules() ([]moderation.Rule, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rules, g.haveRules
}

func (g *GuardedSource) FilterSettings(ctx context.Context) (map[string]any, bool, error) {
	if !g.breaker.Allow() {
		g.mu.RLock()
		defer g.mu.RUnlock()
		if !g.haveSettings {
			return nil, false, ErrCircuitOpen
		}
		return g.settings, g.found, nil
	}

	raw, found, err := g.next.FilterSettings(ctx)
	if err != nil {
		g.fail(err)
		return nil, false, err
	}
	g.breaker.RecordSuccess()

	g.mu.Lock()
	g.settings, g.found, g.haveSettings = raw, found, true
	g.mu.Unlock()
	return raw, found, nil
}

func (g *GuardedSource) ActiveRules(ctx context.Context) ([]moderation.Rule, error) {
	if !g.breaker.Allow() {
		g.mu.RLock()
		defer g.mu.RUnlock()
		if !g.haveRules {
			return nil, ErrCircuitOpen
		}
		return g.rules, nil
	}

	rules, err := g.next.ActiveRules(ctx)
	if err != nil {
		g.fail(err)
		return nil, err
	}
	g.breaker.RecordSuccess()

	g.mu.Lock()
	g.rules, g.haveRules = rules, true
	g.mu.Unlock()
	return rules, nil
}

func (g *GuardedSource) fail(err error) {
	// A cancelled caller says nothing about store health.
	if errors.Is(err, context.Canceled) {
		g.breaker.Release()
		return
	}
	if g.breaker.RecordFailure() {
		slog.Warn("store circuit opened, serving last known snapshot", "error", err)
	}
}
