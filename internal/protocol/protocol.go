// Package protocol implements the Protocol Runtime: long-lived tasks, one
// per live protocol instance, that emit complete ProtocolOrders snapshots on
// state change and never a delta (see spec.md §4.1).
package protocol

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/discretionary-eng/discretionary-engine/internal/model"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Subtype classifies a protocol instance for the Position Lifecycle and the
// Hub's merge policy (see hub_process_orders' stop-arbitration rule).
type Subtype string

const (
	SubtypeStopEntry Subtype = "StopEntry"
	SubtypeMomentum  Subtype = "Momentum"
	SubtypeTP        Subtype = "TP"
	SubtypeSL        Subtype = "SL"
)

// Runtime is the narrow behavioural capability set every protocol
// implements: attach, update_params, subtype. No open polymorphism — each
// concrete type is reached only through NewRuntime's Kind switch.
type Runtime interface {
	// Attach spawns the protocol's task(s) into wg and starts emitting
	// ProtocolOrders on out. DummyMarket and StopEntry send their one
	// snapshot before Attach returns; TrailingStop and ApproachingLimit
	// return at once and emit from the spawned goroutine when trade prices
	// arrive, until ctx is cancelled.
	Attach(ctx context.Context, wg *sync.WaitGroup, out chan<- model.ProtocolOrders, symbol model.Symbol, side model.Side)

	// UpdateParams atomically replaces the shared parameter set. Per the
	// design notes, a protocol task must re-read this cell on every
	// emission — never capture a snapshot at attach time.
	UpdateParams(params map[byte]decimal.Decimal) error

	Subtype() Subtype
	Signature() model.Signature
}

// PriceFeed is the narrow price-stream dependency TrailingStop and
// ApproachingLimit need: an aggregated-trade price channel for a symbol.
// The concrete implementation lives in internal/adapter/binance.
type PriceFeed interface {
	SubscribeTrades(ctx context.Context, symbol model.Symbol) (<-chan decimal.Decimal, error)
	PriceTick(symbol model.Symbol) decimal.Decimal
}

// paramCell is the atomic.Pointer-backed reader-writer discipline spec.md
// §4.1/§9 calls for: many readers, rare writers, atomic swap, re-read on
// every emission.
type paramCell struct {
	ptr atomic.Pointer[map[byte]decimal.Decimal]
}

func newParamCell(initial map[byte]decimal.Decimal) *paramCell {
	c := &paramCell{}
	cp := cloneParams(initial)
	c.ptr.Store(&cp)
	return c
}

func (c *paramCell) load() map[byte]decimal.Decimal {
	return *c.ptr.Load()
}

func (c *paramCell) store(p map[byte]decimal.Decimal) {
	cp := cloneParams(p)
	c.ptr.Store(&cp)
}

func cloneParams(p map[byte]decimal.Decimal) map[byte]decimal.Decimal {
	cp := make(map[byte]decimal.Decimal, len(p))
	for k, v := range p {
		cp[k] = v
	}
	return cp
}

// NewRuntime dispatches a parsed Instance to its concrete Runtime. This is
// the one place Kind is matched — everywhere else code only sees Runtime.
func NewRuntime(inst Instance, feed PriceFeed) (Runtime, error) {
	switch inst.Kind {
	case KindDummyMarket:
		return newDummyMarket(inst), nil
	case KindTrailingStop:
		return newTrailingStop(inst, feed), nil
	case KindApproachingLimit:
		return newApproachingLimit(inst, feed), nil
	case KindStopEntry:
		return newStopEntry(inst), nil
	default:
		log.Error().Str("kind", string(inst.Kind)).Msg("unreachable protocol kind reached NewRuntime")
		return nil, errUnknownKind(inst.Kind)
	}
}

type errUnknownKind Kind

func (e errUnknownKind) Error() string { return "unknown protocol kind: " + string(e) }
