package binance

import (
	"context"
	"time"

	"github.com/discretionary-eng/discretionary-engine/internal/hub"
	"github.com/discretionary-eng/discretionary-engine/internal/model"
	"github.com/discretionary-eng/discretionary-engine/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// reconcile implements spec.md §4.4's reconciliation loop: diff the Hub's
// target order set against LiveOrderMap by PositionOrderId, then place,
// amend, cancel, or leave each order alone.
func (c *Client) reconcile(ctx context.Context, pf hub.Passforward) {
	wanted := make(map[model.PositionOrderId]model.ConcreteOrder, len(pf.Orders))
	for _, o := range pf.Orders {
		wanted[o.ID] = o
	}

	for _, liveID := range c.liveOrders.Ids() {
		if _, stillWanted := wanted[liveID]; stillWanted {
			continue
		}
		ref, ok := c.liveOrders.Get(liveID)
		if !ok {
			continue
		}
		if err := c.cancelOrder(ctx, ref.Symbol, ref.ExchangeOrderRef); err != nil {
			log.Warn().Err(err).Str("order_id", liveID.String()).Msg("binance: cancel failed, best-effort")
		}
		c.liveOrders.Delete(liveID)
	}

	for id, o := range wanted {
		existingRef, isLive := c.liveOrders.Get(id)
		if !isLive {
			c.place(ctx, pf.Token.String(), id, o)
			continue
		}
		if prior, ok := c.lastDispatched(id); ok && equalOrder(prior, o) {
			// Surviving and unchanged: leave alone (spec.md §4.4 step 2,
			// testable property P7 extended to the adapter level).
			continue
		}
		c.amendOrPlace(ctx, pf.Token.String(), id, o, existingRef.ExchangeOrderRef)
	}

	telemetry.LiveOrders.WithLabelValues(string(c.Market())).Set(float64(c.liveOrders.Len()))
}

// equalOrder reports whether two ConcreteOrders would produce the same
// exchange-side order, i.e. whether re-dispatching b after a is a no-op.
func equalOrder(a, b model.ConcreteOrder) bool {
	return a.OrderType.Tag == b.OrderType.Tag &&
		a.OrderType.StopPrice.Equal(b.OrderType.StopPrice) &&
		a.OrderType.LimitPrice.Equal(b.OrderType.LimitPrice) &&
		a.Side == b.Side &&
		a.QtyNotional.Equal(b.QtyNotional) &&
		a.TimeInForce == b.TimeInForce &&
		a.ReduceOnly == b.ReduceOnly
}

func (c *Client) place(ctx context.Context, token string, id model.PositionOrderId, o model.ConcreteOrder) {
	clientID := id.String()
	ref, err := c.placeOrder(ctx, o, clientID)
	if err != nil {
		if isPostOnlyReject(err) {
			log.Debug().Str("order_id", id.String()).Msg("binance: post-only would cross, retrying next cycle")
			return
		}
		log.Error().Err(err).Str("order_id", id.String()).Msg("binance: place failed")
		return
	}
	c.rememberToken(id, token, ref, o)

	if o.OrderType.Tag == model.OrderTypeMarket {
		// Market/IOC orders ack-fill synchronously: no user-data event to
		// wait for, so the terminal callback is emitted right here rather
		// than left live in LiveOrderMap.
		c.emitFill(token, id, o.QtyNotional)
		return
	}
	c.liveOrders.Set(id, model.LiveOrderRef{ExchangeOrderRef: ref, Symbol: o.Symbol})
}

func (c *Client) amendOrPlace(ctx context.Context, token string, id model.PositionOrderId, o model.ConcreteOrder, existingRef string) {
	if supportsAmend(o) {
		if err := c.amendOrder(ctx, o.Symbol, existingRef, o); err == nil {
			c.rememberToken(id, token, existingRef, o)
			return
		}
		log.Debug().Str("order_id", id.String()).Msg("binance: amend unsupported or failed, falling back to cancel+place")
	}

	if err := c.cancelOrder(ctx, o.Symbol, existingRef); err != nil {
		log.Warn().Err(err).Str("order_id", id.String()).Msg("binance: cancel-before-replace failed, best-effort")
	}
	c.liveOrders.Delete(id)
	c.place(ctx, token, id, o)
}

func (c *Client) rememberToken(id model.PositionOrderId, token, exchangeRef string, o model.ConcreteOrder) {
	c.tokenMu.Lock()
	c.orderTokens[id] = tokenAndRef{token: token, last: o}
	c.refToID[exchangeRef] = id
	c.tokenMu.Unlock()
}

// lastDispatched returns the ConcreteOrder last placed or amended for id, so
// reconcile can skip re-dispatching an unchanged surviving order.
func (c *Client) lastDispatched(id model.PositionOrderId) (model.ConcreteOrder, bool) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	t, ok := c.orderTokens[id]
	return t.last, ok
}

func (c *Client) tokenFor(id model.PositionOrderId) (string, bool) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	t, ok := c.orderTokens[id]
	return t.token, ok
}

func (c *Client) idForRef(exchangeRef string) (model.PositionOrderId, bool) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	id, ok := c.refToID[exchangeRef]
	return id, ok
}

// emitFill parses token back into a uuid and sends a HubCallback on the
// fills channel Run was given. A fillsTx not yet set (Run not started, e.g.
// in a unit test exercising reconcile directly) is a silent no-op.
func (c *Client) emitFill(token string, id model.PositionOrderId, fillQty decimal.Decimal) {
	if c.fillsTx == nil {
		return
	}
	key, err := uuid.Parse(token)
	if err != nil {
		log.Error().Err(err).Str("order_id", id.String()).Msg("binance: acceptance token is not a valid uuid, dropping fill")
		return
	}
	select {
	case c.fillsTx <- hub.HubCallback{Key: key, FillQty: fillQty, OrderID: id}:
	case <-time.After(time.Second):
		log.Warn().Str("order_id", id.String()).Msg("binance: fillsTx send timed out, fill dropped")
	}
}
