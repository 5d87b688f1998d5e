package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestRoundTrip is property P1: format(parse(s)) = canonical(s) and
// parse(format(parse(s))) = parse(s).
func TestRoundTrip(t *testing.T) {
	specs := []string{"dm", "ts:p0.5", "al:p0.2", "se:t30500"}
	for _, s := range specs {
		inst, err := Parse(s)
		require.NoError(t, err, s)

		canonical := Format(inst)
		reparsed, err := Parse(canonical)
		require.NoError(t, err, canonical)
		require.Equal(t, inst, reparsed, "parse(format(parse(s))) must equal parse(s) for %q", s)

		again := Format(reparsed)
		require.Equal(t, canonical, again, "format(parse(s)) must be stable for %q", s)
	}
}

func TestParseCaseInsensitiveName(t *testing.T) {
	inst, err := Parse("TS:p0.5")
	require.NoError(t, err)
	require.Equal(t, KindTrailingStop, inst.Kind)
}

func TestParseSingleLetterParam(t *testing.T) {
	inst, err := Parse("ts:p0.5")
	require.NoError(t, err)
	require.Contains(t, inst.Params, byte('p'))
}

func TestParseRejectsUnknownName(t *testing.T) {
	_, err := Parse("sar:s0.02-i0.02-m0.2")
	require.Error(t, err)
}

func TestParseRejectsMissingRequiredParam(t *testing.T) {
	_, err := Parse("ts")
	require.Error(t, err)
}
