package risk

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnectionBreakerTripsAtBudgetAndResets(t *testing.T) {
	trips := 0
	b := NewConnectionBreaker(3, func() { trips++ })

	b.ReportConnectionFailure()
	b.ReportConnectionFailure()
	require.Equal(t, 2, b.Count())
	require.Equal(t, 0, trips)

	b.ReportConnectionFailure()
	require.Equal(t, 1, trips)
	require.Equal(t, 0, b.Count(), "counter resets to zero on trip, not decays")
}

func TestConnectionBreakerDefaultBudget(t *testing.T) {
	b := NewConnectionBreaker(0, nil)
	require.Equal(t, DefaultConnectionFailureBudget, b.budget)
}
