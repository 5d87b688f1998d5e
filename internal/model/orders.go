package model

import "github.com/shopspring/decimal"

// OrderTypeTag discriminates the tagged union ConceptualOrderType /
// ConcreteOrderType implement.
type OrderTypeTag string

const (
	OrderTypeMarket      OrderTypeTag = "Market"
	OrderTypeStopMarket  OrderTypeTag = "StopMarket"
	OrderTypeLimit       OrderTypeTag = "Limit"       // reserved, not emitted by any protocol yet
	OrderTypeTrailing    OrderTypeTag = "TrailingStop" // reserved
	OrderTypeTWAP        OrderTypeTag = "TWAP"         // reserved
)

// ConceptualOrderType is venue-independent order intent. Protocols populate
// only Market and StopMarket; Limit is used by the Binance adapter's post-only
// chase orders; TrailingStop/TWAP are reserved slots, matching spec.md's
// "room for" language.
type ConceptualOrderType struct {
	Tag        OrderTypeTag
	StopPrice  decimal.Decimal // meaningful iff Tag == OrderTypeStopMarket
	LimitPrice decimal.Decimal // meaningful iff Tag == OrderTypeLimit
}

func Market() ConceptualOrderType {
	return ConceptualOrderType{Tag: OrderTypeMarket}
}

func StopMarket(price decimal.Decimal) ConceptualOrderType {
	return ConceptualOrderType{Tag: OrderTypeStopMarket, StopPrice: price}
}

// ConceptualOrder[ID] is generic over the id layer: protocols mint
// ConceptualOrder[ProtocolOrderId], the Hub re-ids to
// ConceptualOrder[PositionOrderId] on ingress.
type ConceptualOrder[ID comparable] struct {
	ID          ID
	OrderType   ConceptualOrderType
	Symbol      Symbol
	Side        Side
	QtyNotional decimal.Decimal
}

// ConceptualOrderPercents is what a protocol emits into a slot: the order
// shape plus its share of the position's controlled notional, resolved to
// an absolute ConceptualOrder only once the Position knows the controlled
// notional.
type ConceptualOrderPercents struct {
	OrderType ConceptualOrderType
	Symbol    Symbol
	Side      Side
	Percent   decimal.Decimal // share of controlled notional, 0 < percent <= 1
}

// Slot is a positional, stable reference inside a ProtocolOrders snapshot.
// nil means "no order in this slot right now."
type Slot = *ConceptualOrderPercents

// ProtocolOrders is a complete snapshot: slot i in two successive snapshots
// from the same protocol refers to the same logical order. Protocols never
// emit deltas and never shrink the slot list.
type ProtocolOrders struct {
	ProducedBy Signature
	Slots      []Slot
}

// Resolve turns percentage slots into absolute ConceptualOrder[ProtocolOrderId]
// values given the position's controlled notional.
func (po ProtocolOrders) Resolve(controlledNotional decimal.Decimal) []ConceptualOrder[ProtocolOrderId] {
	out := make([]ConceptualOrder[ProtocolOrderId], 0, len(po.Slots))
	for i, slot := range po.Slots {
		if slot == nil {
			continue
		}
		out = append(out, ConceptualOrder[ProtocolOrderId]{
			ID:          ProtocolOrderId{Signature: po.ProducedBy, Ordinal: i},
			OrderType:   slot.OrderType,
			Symbol:      slot.Symbol,
			Side:        slot.Side,
			QtyNotional: controlledNotional.Mul(slot.Percent),
		})
	}
	return out
}

// ConcreteOrder is venue-specific: resolved order type, precision-adjusted
// quantity and price, and a time-in-force chosen by the Hub/Adapter.
type ConcreteOrder struct {
	ID          PositionOrderId
	OrderType   ConceptualOrderType
	Symbol      Symbol
	Side        Side
	QtyNotional decimal.Decimal
	TimeInForce string
	ReduceOnly  bool
}
