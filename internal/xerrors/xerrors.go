// Package xerrors classifies errors for the CLI boundary per spec.md §7's
// taxonomy. It has sentinels for three of its classes: Configuration,
// Transient, Invariant; Exchange-logical and Parsing errors carry no marker.
// It does not replace %w wrapping — every layer still adds its own
// "while doing X" context with fmt.Errorf; these are thin sentinel-wrapper
// constructors used purely so errors.Is can classify an error chain at the
// one place that needs to (the CLI exit-code decision).
package xerrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks a missing-credential/unreadable-path failure:
	// fail before the main loop, process exits with code 1.
	ErrConfiguration = errors.New("configuration error")

	// ErrTransient marks network/decode/5xx failures: the caller should
	// increment the connection-failure budget and retry next cycle.
	ErrTransient = errors.New("transient I/O error")

	// ErrInvariant marks a fatal invariant violation (fill below zero, a
	// stop crossing mark, acquired_notional overshooting target beyond
	// tolerance), surfaced with the full error chain. A Position that raises
	// it ends its own task; the rest of the process keeps running.
	ErrInvariant = errors.New("invariant violation")
)

// Configuration wraps err as a Configuration-class error.
func Configuration(context string, err error) error {
	return fmt.Errorf("%s: %w: %w", context, ErrConfiguration, err)
}

// Transient wraps err as a Transient-class error.
func Transient(context string, err error) error {
	return fmt.Errorf("%s: %w: %w", context, ErrTransient, err)
}

// Invariant wraps err as an Invariant-class error.
func Invariant(context string, err error) error {
	return fmt.Errorf("%s: %w: %w", context, ErrInvariant, err)
}

// ExitCode maps an error's classification to spec.md §6's process exit
// codes: 0 success (never reached here), 1 configuration/fatal init
// failure, 2 runtime failure surfaced with the chain.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, ErrConfiguration) {
		return 1
	}
	return 2
}

// Chain renders err as spec.md §7's user-visible arrow-joined reversed
// chain: innermost cause first. Every layer wraps with
// fmt.Errorf("while doing X: %w", err), so err.Error() is already the full
// "outer: ...: inner" string; Chain splits it on ": " and reverses.
func Chain(err error) string {
	if err == nil {
		return ""
	}
	parts := strings.Split(err.Error(), ": ")
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " -> ")
}
