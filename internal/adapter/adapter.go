// Package adapter defines the Exchange Adapter capability set (spec.md
// §4.4): one implementation per venue, each owning its own LiveOrderMap and
// reconciling the Hub's target order set against what is actually live.
package adapter

import (
	"context"
	"fmt"

	"github.com/discretionary-eng/discretionary-engine/internal/hub"
	"github.com/discretionary-eng/discretionary-engine/internal/model"
	"github.com/shopspring/decimal"
)

// Adapter is the narrow behavioural capability set every venue
// implementation presents to the core. No open polymorphism beyond this
// interface: callers hold an Adapter, never a concrete venue type.
type Adapter interface {
	// Run drives the reconciliation loop until ctx is cancelled: on each
	// Passforward it diffs against the live order map and issues
	// place/amend/cancel, emitting a HubCallback on every terminal event.
	Run(ctx context.Context, ordersRx <-chan hub.Passforward, fillsTx chan<- hub.HubCallback) error

	// GetBalance returns the venue's account balance snapshot.
	GetBalance(ctx context.Context) (model.Account, error)

	// InstrumentMeta satisfies hub.PrecisionProvider so the Hub can round
	// conceptual notional to this venue's quantity/price precision.
	InstrumentMeta(symbol model.Symbol) (model.InstrumentMeta, bool)

	// MinQtiesBatch returns, per requested order type, the minimum
	// executable notional this venue enforces for baseAsset.
	MinQtiesBatch(ctx context.Context, baseAsset string, types []model.OrderTypeTag) (map[model.OrderTypeTag]decimal.Decimal, error)

	// MinQtyAnyOrderType returns the floor notional that is guaranteed
	// placeable on this venue regardless of order type or price.
	MinQtyAnyOrderType(ctx context.Context, baseAsset string) (decimal.Decimal, error)

	// LiveOrders exposes the adapter's LiveOrderMap for diagnostics and
	// property tests (Invariant 1 / P3).
	LiveOrders() *model.LiveOrderMap

	Market() model.Market
}

// CompileMinTradeQties implements spec.md §4.4's
// Exchanges::compile_min_trade_qties: for each requested order type, the
// minimum across all configured venues of that venue's minimum for that
// type.
func CompileMinTradeQties(ctx context.Context, adapters []Adapter, baseAsset string, types []model.OrderTypeTag) (map[model.OrderTypeTag]decimal.Decimal, error) {
	if len(adapters) == 0 {
		return nil, fmt.Errorf("compile_min_trade_qties: no venues configured")
	}

	out := make(map[model.OrderTypeTag]decimal.Decimal, len(types))
	for _, a := range adapters {
		venueMins, err := a.MinQtiesBatch(ctx, baseAsset, types)
		if err != nil {
			return nil, fmt.Errorf("compile_min_trade_qties: venue %s: %w", a.Market(), err)
		}
		for _, t := range types {
			min, ok := venueMins[t]
			if !ok {
				continue
			}
			cur, seen := out[t]
			if !seen || min.LessThan(cur) {
				out[t] = min
			}
		}
	}
	return out, nil
}

// MinQtyAnyOrderTypeAcrossVenues implements spec.md §4.4's
// min_qty_any_ordertype: "above this notional, any type is placeable
// anywhere" — the maximum across order-type minima of the minimum across
// venues.
func MinQtyAnyOrderTypeAcrossVenues(ctx context.Context, adapters []Adapter, baseAsset string, types []model.OrderTypeTag) (decimal.Decimal, error) {
	perType, err := CompileMinTradeQties(ctx, adapters, baseAsset, types)
	if err != nil {
		return decimal.Zero, err
	}
	floor := decimal.Zero
	for _, v := range perType {
		if v.GreaterThan(floor) {
			floor = v
		}
	}
	return floor, nil
}
