package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/discretionary-eng/discretionary-engine/internal/hub"
	"github.com/discretionary-eng/discretionary-engine/internal/model"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Run drives the reconciliation loop (spec.md §4.4) and, alongside it, the
// listenKey-backed user-data stream that feeds fill callbacks for every
// non-Market order placed. It blocks until ctx is cancelled, matching the
// teacher's runWebSocket/readMessages shape (internal/binance/client.go)
// generalized from one fixed BTCUSDT trade stream to per-symbol
// subscriptions plus an authenticated user-data stream.
func (c *Client) Run(ctx context.Context, ordersRx <-chan hub.Passforward, fillsTx chan<- hub.HubCallback) error {
	c.fillsTx = fillsTx

	go c.runUserDataStream(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pf, ok := <-ordersRx:
			if !ok {
				return nil
			}
			c.reconcile(ctx, pf)
		}
	}
}

// SubscribeTrades satisfies protocol.PriceFeed: it registers a channel for
// symbol's aggregated-trade stream, dialing the stream on first subscriber.
func (c *Client) SubscribeTrades(ctx context.Context, symbol model.Symbol) (<-chan decimal.Decimal, error) {
	wire := strings.ToLower(symbol.Wire())
	out := make(chan decimal.Decimal, 64)

	c.subscribersMu.Lock()
	firstSubscriber := len(c.subscribers[wire]) == 0
	c.subscribers[wire] = append(c.subscribers[wire], out)
	c.subscribersMu.Unlock()

	if firstSubscriber {
		go c.runTradeStream(ctx, wire)
	}
	return out, nil
}

func (c *Client) runTradeStream(ctx context.Context, wire string) {
	streamURL := fmt.Sprintf("%s/ws/%s@aggTrade", c.wsURL, wire)

	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.dialTradeStream(ctx, wire, streamURL); err != nil {
			log.Warn().Err(err).Str("symbol", wire).Msg("binance: trade stream disconnected, reconnecting")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (c *Client) dialTradeStream(ctx context.Context, wire, streamURL string) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, streamURL, nil)
	if err != nil {
		return fmt.Errorf("while dialing %s: %w", streamURL, err)
	}
	defer conn.Close()

	log.Info().Str("symbol", wire).Str("url", streamURL).Msg("binance: aggTrade stream connected")

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("while reading aggTrade stream: %w", err)
		}
		var msg struct {
			Price string `json:"p"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Debug().Err(err).Msg("binance: failed to decode aggTrade message, skipping")
			continue
		}
		price, err := decimal.NewFromString(msg.Price)
		if err != nil {
			continue
		}

		c.priceMu.Lock()
		c.lastPrice[strings.ToUpper(wire)] = price
		c.priceMu.Unlock()

		c.subscribersMu.Lock()
		subs := c.subscribers[wire]
		c.subscribersMu.Unlock()
		for _, sub := range subs {
			select {
			case sub <- price:
			default: // a slow protocol task misses an intermediate tick, same contract as the Hub's watch channel
			}
		}
	}
}

// runUserDataStream maintains Binance's listenKey-backed order-event stream:
// create the key, dial the WS, keep it alive with a periodic PUT, and route
// ORDER_TRADE_UPDATE events into fillsTx under the acceptance token
// remembered for that order at place/amend time.
func (c *Client) runUserDataStream(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		listenKey, err := c.createListenKey(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("binance: failed to create listen key, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		keepAliveCtx, cancelKeepAlive := context.WithCancel(ctx)
		go c.keepAliveListenKey(keepAliveCtx, listenKey)

		if err := c.dialUserDataStream(ctx, listenKey); err != nil {
			log.Warn().Err(err).Msg("binance: user-data stream disconnected, reconnecting")
		}
		cancelKeepAlive()

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (c *Client) createListenKey(ctx context.Context) (string, error) {
	body, err := c.signedRequest(ctx, http.MethodPost, "/fapi/v1/listenKey", url.Values{})
	if err != nil {
		return "", fmt.Errorf("while creating listen key: %w", err)
	}
	var resp struct {
		ListenKey string `json:"listenKey"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("while decoding listen key response: %w", err)
	}
	return resp.ListenKey, nil
}

func (c *Client) keepAliveListenKey(ctx context.Context, listenKey string) {
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.signedRequest(ctx, http.MethodPut, "/fapi/v1/listenKey", url.Values{}); err != nil {
				log.Warn().Err(err).Msg("binance: listen key keepalive failed")
			}
		}
	}
}

func (c *Client) dialUserDataStream(ctx context.Context, listenKey string) error {
	streamURL := fmt.Sprintf("%s/ws/%s", c.wsURL, listenKey)
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, streamURL, nil)
	if err != nil {
		return fmt.Errorf("while dialing user-data stream: %w", err)
	}
	defer conn.Close()

	log.Info().Msg("binance: user-data stream connected")

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("while reading user-data stream: %w", err)
		}
		c.handleUserDataEvent(raw)
	}
}

// orderTradeUpdate is the subset of Binance's ORDER_TRADE_UPDATE payload
// the reconciliation loop needs: which exchange order, how much filled on
// this event (not cumulative), and its current status.
type orderTradeUpdate struct {
	EventType string `json:"e"`
	Order     struct {
		OrderID       int64  `json:"i"`
		Status        string `json:"X"`
		LastFilledQty string `json:"l"`
	} `json:"o"`
}

func (c *Client) handleUserDataEvent(raw []byte) {
	var evt orderTradeUpdate
	if err := json.Unmarshal(raw, &evt); err != nil {
		log.Debug().Err(err).Msg("binance: failed to decode user-data event, skipping")
		return
	}
	if evt.EventType != "ORDER_TRADE_UPDATE" {
		return
	}
	if evt.Order.Status != "FILLED" && evt.Order.Status != "PARTIALLY_FILLED" {
		return
	}

	exchangeRef := fmt.Sprintf("%d", evt.Order.OrderID)
	id, ok := c.idForRef(exchangeRef)
	if !ok {
		return // not an order this adapter placed (or already fully reconciled away)
	}
	token, ok := c.tokenFor(id)
	if !ok {
		return
	}
	fillQty, err := decimal.NewFromString(evt.Order.LastFilledQty)
	if err != nil || fillQty.IsZero() {
		return
	}

	c.emitFill(token, id, fillQty)

	if evt.Order.Status == "FILLED" {
		c.liveOrders.Delete(id)
	}
}
