// Package chase implements spec.md §4.5's Chase-Limit Executor: a
// standalone, patient single-order execution primitive used for closes
// ("nuke") and optionally invoked by protocols. It never talks to the Hub —
// it drives an Exchange directly, the same direct-REST shape as the
// teacher's exec package issuing orders straight against Polymarket's CLOB,
// generalized to Binance's bid/ask-driven limit-chasing instead of a
// fixed-price taker fill.
package chase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/discretionary-eng/discretionary-engine/internal/model"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Exchange is the narrow capability Chase needs from a venue, independent
// of the Hub/Adapter reconciliation pipeline.
type Exchange interface {
	BookTicker(ctx context.Context, symbol model.Symbol) (bid, ask decimal.Decimal, err error)
	PlacePostOnlyLimit(ctx context.Context, symbol model.Symbol, side model.Side, qty, price decimal.Decimal, clientOrderID string) (exchangeRef string, err error)
	PlaceMarketIOC(ctx context.Context, symbol model.Symbol, side model.Side, qty decimal.Decimal, clientOrderID string) (exchangeRef string, err error)
	CancelLiveOrder(ctx context.Context, symbol model.Symbol, exchangeOrderRef string) error
}

// ErrPostOnlyWouldCross lets callers supply an Exchange implementation that
// reports post-only rejection through an error satisfying errors.Is against
// this sentinel, without importing the binance package directly.
var ErrPostOnlyWouldCross = errors.New("chase: post-only order would cross the spread")

const (
	maxIterations        = 10_000
	withDurationInterval = 1000 * time.Millisecond
	noDurationInterval   = 500 * time.Millisecond
)

// Params configures one chase run.
type Params struct {
	Symbol    model.Symbol
	Side      model.Side
	TargetQty decimal.Decimal
	QtyStep   decimal.Decimal
	PriceTick decimal.Decimal
	Duration  *time.Duration // nil means chase indefinitely until filled or aborted
}

// Executor runs one chase against an Exchange.
type Executor struct {
	ex Exchange
}

func New(ex Exchange) *Executor {
	return &Executor{ex: ex}
}

// Run executes the state machine in spec.md §4.5 and returns the total
// quantity actually filled. The REST-only Exchange interface carries no fill
// feed, so "filled" only ever accrues remaining at sweep time — a chase that
// completes entirely via resting post-only fills before any sweep returns
// zero, not the true filled quantity.
func (e *Executor) Run(ctx context.Context, p Params) (decimal.Decimal, error) {
	if p.QtyStep.IsZero() {
		return decimal.Zero, fmt.Errorf("chase: qty_step = 0 is a configuration error")
	}
	if p.PriceTick.IsZero() {
		return decimal.Zero, fmt.Errorf("chase: price_tick = 0 is a configuration error")
	}

	deadline, hasDuration := deadlineOf(p.Duration)
	interval := noDurationInterval
	if hasDuration {
		interval = withDurationInterval
	}

	filled := decimal.Zero
	remaining := p.TargetQty
	var lastPlaced *decimal.Decimal // nil == "no resting order"
	var lastRef string
	base := fmt.Sprintf("%s-%s-%d", p.Symbol.Base, p.Side, time.Now().UnixNano())

	for iteration := 0; iteration < maxIterations; iteration++ {
		if ctx.Err() != nil {
			return filled, ctx.Err()
		}
		if remaining.LessThanOrEqual(decimal.Zero) {
			return filled, nil
		}
		if hasDuration && time.Now().After(deadline) {
			return e.sweep(ctx, p, remaining, filled, lastRef, base, iteration)
		}

		bid, ask, err := e.ex.BookTicker(ctx, p.Symbol)
		if err != nil {
			log.Warn().Err(err).Str("symbol", p.Symbol.Wire()).Msg("chase: book ticker fetch failed, retrying")
			if !sleepInterval(ctx, interval) {
				return filled, ctx.Err()
			}
			continue
		}

		limitPrice := computeLimitPrice(p.Side, bid, ask, p.PriceTick)

		if needsUpdate(lastPlaced, limitPrice, p.PriceTick) {
			if lastRef != "" {
				if err := e.ex.CancelLiveOrder(ctx, p.Symbol, lastRef); err != nil {
					log.Debug().Err(err).Msg("chase: cancel-before-replace failed, treating as already filled")
				}
				lastRef = ""
			}

			clientID := fmt.Sprintf("%s-%d", base, iteration)
			ref, err := e.ex.PlacePostOnlyLimit(ctx, p.Symbol, p.Side, remaining, limitPrice, clientID)
			switch {
			case errors.Is(err, ErrPostOnlyWouldCross):
				log.Debug().Str("client_order_id", clientID).Msg("chase: post-only would cross, will retry next iteration")
			case err != nil:
				log.Warn().Err(err).Str("client_order_id", clientID).Msg("chase: place failed")
			default:
				lastRef = ref
				lp := limitPrice
				lastPlaced = &lp
			}
		}

		if !sleepInterval(ctx, interval) {
			return filled, ctx.Err()
		}
	}

	return filled, fmt.Errorf("chase: aborted after %d iterations without completing", maxIterations)
}

// sweep implements step 5: best-effort cancel, then a market IOC for
// whatever remains.
func (e *Executor) sweep(ctx context.Context, p Params, remaining, filled decimal.Decimal, lastRef, base string, iteration int) (decimal.Decimal, error) {
	if lastRef != "" {
		if err := e.ex.CancelLiveOrder(ctx, p.Symbol, lastRef); err != nil {
			log.Debug().Err(err).Msg("chase: best-effort cancel before sweep failed")
		}
	}
	clientID := fmt.Sprintf("%s-%d", base, iteration)
	if _, err := e.ex.PlaceMarketIOC(ctx, p.Symbol, p.Side, remaining, clientID); err != nil {
		return filled, fmt.Errorf("chase: market sweep failed: %w", err)
	}
	return filled.Add(remaining), nil
}

// computeLimitPrice implements step 2: never cross the spread.
func computeLimitPrice(side model.Side, bid, ask, tick decimal.Decimal) decimal.Decimal {
	spread := ask.Sub(bid)
	switch side {
	case model.Buy:
		if spread.IsPositive() {
			candidate := bid.Add(tick)
			ceiling := ask.Sub(tick)
			if candidate.GreaterThan(ceiling) {
				candidate = ceiling
			}
			return candidate
		}
		return bid
	default: // Sell
		if spread.IsPositive() {
			candidate := ask.Sub(tick)
			floor := bid.Add(tick)
			if candidate.LessThan(floor) {
				candidate = floor
			}
			return candidate
		}
		return ask
	}
}

// needsUpdate implements step 3's "|limit_price - last_placed| > tick/2".
func needsUpdate(lastPlaced *decimal.Decimal, limitPrice, tick decimal.Decimal) bool {
	if lastPlaced == nil {
		return true
	}
	half := tick.Div(decimal.NewFromInt(2))
	return limitPrice.Sub(*lastPlaced).Abs().GreaterThan(half)
}

func deadlineOf(d *time.Duration) (time.Time, bool) {
	if d == nil {
		return time.Time{}, false
	}
	return time.Now().Add(*d), true
}

// sleepInterval sleeps for d or returns false early if ctx is cancelled.
func sleepInterval(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
