package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestOpenMigratesAndRoundTrips(t *testing.T) {
	l, err := Open(t.TempDir())
	require.NoError(t, err)
	defer l.Close()

	posID := "01912345-0000-7000-8000-000000000000"
	require.NoError(t, l.RecordPhaseTransition(posID, "acquisition", "opened"))
	require.NoError(t, l.RecordFill(posID, "acquisition", decimal.NewFromFloat(0.5), "partial fill"))
	require.NoError(t, l.RecordClose(posID, "followup", "closed by nuke"))

	events, err := l.History(posID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, "phase_transition", events[0].Kind)
	require.Equal(t, "fill", events[1].Kind)
	require.True(t, events[1].Notional.Equal(decimal.NewFromFloat(0.5)))
	require.Equal(t, "close", events[2].Kind)
}

func TestHistoryIsScopedToPositionID(t *testing.T) {
	l, err := Open(t.TempDir())
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.RecordPhaseTransition("pos-a", "acquisition", ""))
	require.NoError(t, l.RecordPhaseTransition("pos-b", "acquisition", ""))

	events, err := l.History("pos-a")
	require.NoError(t, err)
	require.Len(t, events, 1)
}
