package bus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsBusyGroupMatchesOnlyThatPrefix(t *testing.T) {
	require.True(t, isBusyGroup(errors.New("BUSYGROUP Consumer Group name already exists")))
	require.False(t, isBusyGroup(errors.New("connection refused")))
	require.False(t, isBusyGroup(nil))
}
