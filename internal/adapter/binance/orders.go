package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/discretionary-eng/discretionary-engine/internal/model"
)

// placeOrder submits a new order, returning the exchange's own order id
// (orderId, stringified) on success.
func (c *Client) placeOrder(ctx context.Context, o model.ConcreteOrder, clientOrderID string) (string, error) {
	params := url.Values{}
	params.Set("symbol", o.Symbol.Wire())
	params.Set("side", string(o.Side))
	params.Set("newClientOrderId", clientOrderID)
	params.Set("quantity", o.QtyNotional.String())
	if o.ReduceOnly {
		params.Set("reduceOnly", "true")
	}

	switch o.OrderType.Tag {
	case model.OrderTypeMarket:
		params.Set("type", "MARKET")
	case model.OrderTypeStopMarket:
		params.Set("type", "STOP_MARKET")
		params.Set("stopPrice", o.OrderType.StopPrice.String())
	case model.OrderTypeLimit:
		params.Set("type", "LIMIT")
		params.Set("price", o.OrderType.LimitPrice.String())
		params.Set("timeInForce", o.TimeInForce)
	default:
		return "", fmt.Errorf("binance: order type %s not supported for placement", o.OrderType.Tag)
	}

	body, err := c.signedRequest(ctx, http.MethodPost, "/fapi/v1/order", params)
	if err != nil {
		return "", err
	}

	var resp struct {
		OrderID int64 `json:"orderId"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("while decoding place-order response: %w", err)
	}
	return fmt.Sprintf("%d", resp.OrderID), nil
}

// cancelOrder cancels a live order by exchange ref. A failure here is
// best-effort per spec.md §5: the caller logs, never propagates.
func (c *Client) cancelOrder(ctx context.Context, symbol model.Symbol, exchangeOrderRef string) error {
	params := url.Values{}
	params.Set("symbol", symbol.Wire())
	params.Set("orderId", exchangeOrderRef)
	_, err := c.signedRequest(ctx, http.MethodDelete, "/fapi/v1/order", params)
	return err
}

// amendOrder changes price/quantity of a live order in place. Binance
// USTD-perp supports amend only for LIMIT orders (PUT /fapi/v1/order); for
// every other type the reconciliation loop falls back to cancel+place.
func (c *Client) amendOrder(ctx context.Context, symbol model.Symbol, exchangeOrderRef string, o model.ConcreteOrder) error {
	if o.OrderType.Tag != model.OrderTypeLimit {
		return fmt.Errorf("binance: amend unsupported for order type %s", o.OrderType.Tag)
	}
	params := url.Values{}
	params.Set("symbol", symbol.Wire())
	params.Set("orderId", exchangeOrderRef)
	params.Set("side", string(o.Side))
	params.Set("quantity", o.QtyNotional.String())
	params.Set("price", o.OrderType.LimitPrice.String())
	_, err := c.signedRequest(ctx, http.MethodPut, "/fapi/v1/order", params)
	return err
}

func supportsAmend(o model.ConcreteOrder) bool {
	return o.OrderType.Tag == model.OrderTypeLimit
}
