// Package notify defines the narrow outbound-notification seam SPEC_FULL.md
// §4.8 adds: the core posts on position open, phase transition, close, and
// fatal error, and is indifferent to where those land. Concrete delivery
// (Telegram) lives in the notify/telegram subpackage, grounded on the
// teacher's bot/telegram.go — generalized from "trade alerts" to "position
// lifecycle events" and with the stats/command-control half of that file
// dropped, since nothing in this spec needs inbound Telegram commands.
package notify

// Notifier is the interface core code depends on. Noop lets the feature be
// entirely optional: an absent bot token must never affect position
// handling.
type Notifier interface {
	PositionOpened(positionID, symbol, side string)
	PhaseTransition(positionID, phase, detail string)
	PositionClosed(positionID, detail string)
	FatalError(err error)
}

// Noop discards every notification. Used when no notify backend is
// configured.
type Noop struct{}

func (Noop) PositionOpened(string, string, string)  {}
func (Noop) PhaseTransition(string, string, string) {}
func (Noop) PositionClosed(string, string)          {}
func (Noop) FatalError(error)                       {}
