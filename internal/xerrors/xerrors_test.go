package xerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExitCodeConfiguration(t *testing.T) {
	err := Configuration("while loading credentials", errors.New("file not found"))
	require.Equal(t, 1, ExitCode(err))
}

func TestExitCodeRuntime(t *testing.T) {
	err := fmt.Errorf("while placing order: %w", errors.New("insufficient margin"))
	require.Equal(t, 2, ExitCode(err))
}

func TestChainIsArrowJoinedAndReversed(t *testing.T) {
	err := fmt.Errorf("while running position: %w", fmt.Errorf("while placing order: %w", errors.New("insufficient margin")))
	require.Equal(t, "insufficient margin -> while placing order -> while running position", Chain(err))
}
