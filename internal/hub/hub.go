// Package hub implements the Orders Hub: the serialization point that
// merges every live position's conceptual orders into one exchange-agnostic
// order book of intent, resolves it per venue, and routes fill callbacks
// back to positions under a cache-coherence token (spec.md §4.3).
package hub

import (
	"context"
	"sync"

	"github.com/discretionary-eng/discretionary-engine/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ProtocolFill is one fill applied to a protocol-local order id.
type ProtocolFill struct {
	OrderID model.ProtocolOrderId
	FillQty decimal.Decimal
}

// ProtocolFills is what the Hub routes to a position: a coherence key plus
// the fills that key unlocks.
type ProtocolFills struct {
	Key   uuid.UUID
	Fills []ProtocolFill
}

// HubRx is a position's request to replace its entry in the Hub's merged
// order book. RemainingNotional is the budget hub_process_orders clamps
// this position's total live notional against (Invariant 2).
type HubRx struct {
	Key               uuid.UUID
	PositionID        model.PositionID
	Orders            []model.ConceptualOrder[model.ProtocolOrderId]
	RemainingNotional decimal.Decimal
	Callback          chan<- ProtocolFills
}

// HubCallback is an adapter's report of a terminal order event.
type HubCallback struct {
	Key     uuid.UUID
	FillQty decimal.Decimal
	OrderID model.PositionOrderId
}

// Passforward is the Hub's published target order set for one venue, plus
// the acceptance token adapters must echo back on every fill they report
// for orders dispatched from it.
type Passforward struct {
	Token  uuid.UUID
	Orders []model.ConcreteOrder
}

// PrecisionProvider supplies per-symbol quantity/price precision so
// hub_process_orders can round conceptual notional into a venue-placeable
// concrete order.
type PrecisionProvider interface {
	InstrumentMeta(symbol model.Symbol) (model.InstrumentMeta, bool)
}

// Hub is the single task owning the merge state. Intent snapshots and fill
// callbacks are handled on Run's goroutine, matching spec.md's "single task
// communicating by typed channels" topology; RemovePosition is called from
// terminating positions' goroutines, so mu guards the merge state.
type Hub struct {
	mu sync.Mutex

	requestedOrders map[model.PositionID][]model.ConceptualOrder[model.PositionOrderId]
	budgets         map[model.PositionID]decimal.Decimal
	positionCallbacks map[model.PositionID]chan<- ProtocolFills
	lastFillKey     uuid.UUID

	rxCh       chan HubRx
	callbackCh chan HubCallback

	precision map[model.Market]PrecisionProvider
	venues    map[model.Market]*Watch[Passforward]
}

// New creates a Hub that knows how to dispatch to the given venues, each
// resolved through its own PrecisionProvider (typically the venue's
// Exchange Adapter).
func New(precision map[model.Market]PrecisionProvider) *Hub {
	venues := make(map[model.Market]*Watch[Passforward], len(precision))
	for venue := range precision {
		venues[venue] = NewWatch[Passforward]()
	}
	return &Hub{
		requestedOrders:   make(map[model.PositionID][]model.ConceptualOrder[model.PositionOrderId]),
		budgets:           make(map[model.PositionID]decimal.Decimal),
		positionCallbacks: make(map[model.PositionID]chan<- ProtocolFills),
		rxCh:              make(chan HubRx, 32),
		callbackCh:        make(chan HubCallback, 32),
		precision:         precision,
		venues:            venues,
	}
}

// RxChan is where positions send their order-intent snapshots.
func (h *Hub) RxChan() chan<- HubRx { return h.rxCh }

// CallbackChan is where adapters report terminal order events.
func (h *Hub) CallbackChan() chan<- HubCallback { return h.callbackCh }

// Passforwards returns the watch channel a venue's Exchange Adapter should
// read its target order set from.
func (h *Hub) Passforwards(venue model.Market) (<-chan Passforward, bool) {
	w, ok := h.venues[venue]
	if !ok {
		return nil, false
	}
	return w.C(), true
}

// RemovePosition drops a position's entry and callback — called when a
// Position task terminates.
func (h *Hub) RemovePosition(id model.PositionID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.requestedOrders, id)
	delete(h.budgets, id)
	delete(h.positionCallbacks, id)
}

// Run drives the Hub's single serialization loop until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rx := <-h.rxCh:
			h.handleRx(rx)
		case cb := <-h.callbackCh:
			h.handleCallback(cb)
		}
	}
}

func (h *Hub) handleRx(rx HubRx) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if rx.Key != h.lastFillKey {
		log.Debug().
			Str("position_id", rx.PositionID.String()).
			Str("rx_key", rx.Key.String()).
			Str("last_fill_key", h.lastFillKey.String()).
			Msg("hub: stale HubRx dropped (coherence key predates most recent fill)")
		return
	}

	reidentified := make([]model.ConceptualOrder[model.PositionOrderId], 0, len(rx.Orders))
	for _, o := range rx.Orders {
		reidentified = append(reidentified, model.ConceptualOrder[model.PositionOrderId]{
			ID: model.PositionOrderId{
				PositionID: rx.PositionID,
				Signature:  o.ID.Signature,
				Ordinal:    o.ID.Ordinal,
			},
			OrderType:   o.OrderType,
			Symbol:      o.Symbol,
			Side:        o.Side,
			QtyNotional: o.QtyNotional,
		})
	}

	h.requestedOrders[rx.PositionID] = reidentified
	h.budgets[rx.PositionID] = rx.RemainingNotional
	h.positionCallbacks[rx.PositionID] = rx.Callback

	all := make([]model.ConceptualOrder[model.PositionOrderId], 0, 64)
	for _, orders := range h.requestedOrders {
		all = append(all, orders...)
	}

	concrete := hubProcessOrders(all, h.budgets, h.precision)

	byVenue := make(map[model.Market][]model.ConcreteOrder)
	for _, c := range concrete {
		byVenue[c.Symbol.Market] = append(byVenue[c.Symbol.Market], c)
	}

	for venue, w := range h.venues {
		token, err := uuid.NewV7()
		if err != nil {
			log.Error().Err(err).Msg("hub: failed to mint acceptance token")
			continue
		}
		w.Publish(Passforward{Token: token, Orders: byVenue[venue]})
	}
}

func (h *Hub) handleCallback(cb HubCallback) {
	h.mu.Lock()
	h.lastFillKey = cb.Key
	sender, ok := h.positionCallbacks[cb.OrderID.PositionID]
	h.mu.Unlock()

	if !ok {
		log.Warn().Str("position_id", cb.OrderID.PositionID.String()).Msg("hub: fill callback for unknown position, dropped")
		return
	}

	fills := ProtocolFills{
		Key: cb.Key,
		Fills: []ProtocolFill{{
			OrderID: cb.OrderID.IntoProtocolID(),
			FillQty: cb.FillQty,
		}},
	}

	select {
	case sender <- fills:
	default:
		log.Warn().Str("position_id", cb.OrderID.PositionID.String()).Msg("hub: position fill channel full, fill delayed")
		sender <- fills
	}
}
