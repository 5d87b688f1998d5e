// Package risk defines the narrow Gate interface the core treats as an
// external collaborator (spec.md §1), plus one concrete in-process
// implementation: the connection-failure circuit breaker spec.md §5/§9
// describes (a process-wide counter that trips a fatal alert at a
// configured budget and resets to zero, but never decrements on success —
// "monotone-without-decay," a conscious coarse back-off, not a bug).
package risk

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Gate is the thin interface the core calls into before anything that could
// need capital-allocation sign-off. The scoring/sizing internals live
// outside this package's scope (spec.md §1: "the risk-scoring layer" is
// treated as an external collaborator) — Gate only names the shape.
type Gate interface {
	// AllowPosition reports whether a new position of the given notional is
	// permitted to open right now.
	AllowPosition(coin string, notional float64) bool
}

// AlwaysAllow is the no-op Gate used when no external risk service is
// configured — every position is permitted.
type AlwaysAllow struct{}

func (AlwaysAllow) AllowPosition(string, float64) bool { return true }

// ConnectionBreaker is the default max (10) budget and monotone-reset
// semantics from spec.md §5: increments on every "likely connection
// problem" report; at the budget it fires onTrip and resets to zero.
// Successful operations never decrement it.
type ConnectionBreaker struct {
	mu     sync.Mutex
	count  int
	budget int
	onTrip func()
}

// DefaultConnectionFailureBudget is spec.md §5's default max.
const DefaultConnectionFailureBudget = 10

// NewConnectionBreaker constructs a breaker with the given budget (0 means
// DefaultConnectionFailureBudget) and trip callback.
func NewConnectionBreaker(budget int, onTrip func()) *ConnectionBreaker {
	if budget <= 0 {
		budget = DefaultConnectionFailureBudget
	}
	return &ConnectionBreaker{budget: budget, onTrip: onTrip}
}

// ReportConnectionFailure increments the counter. At budget it fires onTrip
// and resets to zero, per spec.md §9's explicit "reset to zero but never
// decremented on success" design choice.
func (b *ConnectionBreaker) ReportConnectionFailure() {
	b.mu.Lock()
	b.count++
	tripped := b.count >= b.budget
	if tripped {
		b.count = 0
	}
	b.mu.Unlock()

	if tripped {
		log.Error().Int("budget", b.budget).Msg("risk: connection-failure budget exhausted, surfacing fatal alert")
		if b.onTrip != nil {
			b.onTrip()
		}
	}
}

// Count returns the current counter value, for telemetry/diagnostics.
func (b *ConnectionBreaker) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
