package hub

import (
	"sort"

	"github.com/discretionary-eng/discretionary-engine/internal/model"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// hubProcessOrders is the pluggable policy layer spec.md §9 marks HACK: it
// resolves overlapping stops from different protocols on the same position/
// symbol/side and clamps each position's total live notional to its budget
// (Invariant 2), before converting conceptual to concrete orders.
//
// Merge policy (resolved Open Question, see DESIGN.md): among overlapping
// StopMarket orders for the same (position, symbol, side), keep only the one
// with maximum protective distance — for a Sell-side stop that is the lowest
// trigger price, for a Buy-side stop the highest — and drop the rest.
func hubProcessOrders(
	orders []model.ConceptualOrder[model.PositionOrderId],
	budgets map[model.PositionID]decimal.Decimal,
	precision map[model.Market]PrecisionProvider,
) []model.ConcreteOrder {
	survivors := arbitrateStops(orders)
	clamped := clampToBudget(survivors, budgets)

	out := make([]model.ConcreteOrder, 0, len(clamped))
	for _, o := range clamped {
		meta, ok := precision[o.Symbol.Market]
		var instMeta model.InstrumentMeta
		if ok {
			instMeta, ok = meta.InstrumentMeta(o.Symbol)
		}

		qty := o.QtyNotional
		orderType := o.OrderType
		if ok && !instMeta.QtyStep.IsZero() {
			qty = roundToStep(qty, instMeta.QtyStep)
		}
		if ok && !instMeta.PriceTick.IsZero() && orderType.Tag == model.OrderTypeStopMarket {
			orderType.StopPrice = roundToStep(orderType.StopPrice, instMeta.PriceTick)
		}

		timeInForce := "GTC"
		if orderType.Tag == model.OrderTypeMarket {
			timeInForce = "IOC"
		}

		out = append(out, model.ConcreteOrder{
			ID:          o.ID,
			OrderType:   orderType,
			Symbol:      o.Symbol,
			Side:        o.Side,
			QtyNotional: qty,
			TimeInForce: timeInForce,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID.Less(out[j].ID) })
	return out
}

type stopGroupKey struct {
	position model.PositionID
	symbol   model.Symbol
	side     model.Side
}

func arbitrateStops(orders []model.ConceptualOrder[model.PositionOrderId]) []model.ConceptualOrder[model.PositionOrderId] {
	stopGroups := make(map[stopGroupKey][]model.ConceptualOrder[model.PositionOrderId])
	var passthrough []model.ConceptualOrder[model.PositionOrderId]

	for _, o := range orders {
		if o.OrderType.Tag != model.OrderTypeStopMarket {
			passthrough = append(passthrough, o)
			continue
		}
		key := stopGroupKey{position: o.ID.PositionID, symbol: o.Symbol, side: o.Side}
		stopGroups[key] = append(stopGroups[key], o)
	}

	for key, group := range stopGroups {
		if len(group) == 1 {
			passthrough = append(passthrough, group[0])
			continue
		}

		winner := group[0]
		for _, candidate := range group[1:] {
			if isFurtherFromMark(candidate, winner, key.side) {
				winner = candidate
			}
		}
		for _, dropped := range group {
			if dropped.ID != winner.ID {
				log.Info().
					Str("position_id", key.position.String()).
					Str("symbol", key.symbol.String()).
					Str("dropped_order", dropped.ID.String()).
					Str("kept_order", winner.ID.String()).
					Msg("hub: overlapping stop superseded by farther-from-mark stop")
			}
		}
		passthrough = append(passthrough, winner)
	}

	return passthrough
}

// isFurtherFromMark reports whether candidate is the more protective
// (farther from mark) of the two stops, given both are already on the
// correct side of mark (Invariant 3).
func isFurtherFromMark(candidate, current model.ConceptualOrder[model.PositionOrderId], side model.Side) bool {
	if side == model.Sell {
		return candidate.OrderType.StopPrice.LessThan(current.OrderType.StopPrice)
	}
	return candidate.OrderType.StopPrice.GreaterThan(current.OrderType.StopPrice)
}

// clampToBudget scales down (never rejects) a position's total notional per
// side so it never exceeds that position's remaining_notional budget.
func clampToBudget(orders []model.ConceptualOrder[model.PositionOrderId], budgets map[model.PositionID]decimal.Decimal) []model.ConceptualOrder[model.PositionOrderId] {
	type bucketKey struct {
		position model.PositionID
		side     model.Side
	}
	totals := make(map[bucketKey]decimal.Decimal)
	for _, o := range orders {
		k := bucketKey{o.ID.PositionID, o.Side}
		totals[k] = totals[k].Add(o.QtyNotional)
	}

	out := make([]model.ConceptualOrder[model.PositionOrderId], len(orders))
	copy(out, orders)

	for i, o := range out {
		k := bucketKey{o.ID.PositionID, o.Side}
		budget, ok := budgets[o.ID.PositionID]
		if !ok || budget.IsZero() {
			continue
		}
		total := totals[k]
		if total.GreaterThan(budget) {
			scale := budget.Div(total)
			out[i].QtyNotional = o.QtyNotional.Mul(scale)
		}
	}
	return out
}

func roundToStep(v decimal.Decimal, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return v
	}
	steps := v.Div(step).Round(0)
	return steps.Mul(step)
}
