// Package binance is the concrete Exchange Adapter for Binance USDT-M
// perpetual futures: REST order placement signed with HMAC-SHA256 (grounded
// on the teacher's exec/client.go POLY_SIGNATURE header scheme, generalized
// from the Polymarket passphrase flow to Binance's query-string signature),
// a websocket aggregated-trade stream feeding the Protocol Runtime, and a
// websocket user-data stream feeding fill callbacks back to the Hub.
package binance

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/discretionary-eng/discretionary-engine/internal/chase"
	"github.com/discretionary-eng/discretionary-engine/internal/hub"
	"github.com/discretionary-eng/discretionary-engine/internal/model"
	"github.com/discretionary-eng/discretionary-engine/internal/xerrors"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	mainnetRESTBase = "https://fapi.binance.com"
	testnetRESTBase = "https://testnet.binancefuture.com"
	mainnetWSBase   = "wss://fstream.binance.com"
	testnetWSBase   = "wss://stream.binancefuture.com"

	httpTimeout = 60 * time.Second // spec.md §5: "Adapter HTTP calls have a 60s timeout"
)

// Config is the credential and endpoint configuration for one Client.
type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool
}

// Client is the Binance USDT-perp Exchange Adapter. One instance per
// configured venue, owning its own LiveOrderMap per spec.md §4.4.
type Client struct {
	cfg     Config
	restURL string
	wsURL   string
	http    *retryablehttp.Client

	liveOrders *model.LiveOrderMap

	metaMu sync.RWMutex
	meta   map[string]model.InstrumentMeta // keyed by symbol.Wire()

	tokenMu     sync.Mutex
	orderTokens map[model.PositionOrderId]tokenAndRef // passforward token + exchange ref that placed each live order
	refToID     map[string]model.PositionOrderId      // exchange order ref -> id, for routing user-data fill events back

	priceMu   sync.RWMutex
	lastPrice map[string]decimal.Decimal // keyed by symbol.Wire()

	subscribersMu sync.Mutex
	subscribers   map[string][]chan<- decimal.Decimal

	fillsTx chan<- hub.HubCallback // set once, by Run
}

type tokenAndRef struct {
	token string             // acceptance token (stringified uuid) of the passforward that produced this order
	last  model.ConcreteOrder // the ConcreteOrder last dispatched for this id, so reconcile can skip unchanged repeats
}

// New constructs a Client. It does not dial anything; call Run to start the
// reconciliation loop and the WS streams.
func New(cfg Config) *Client {
	restBase := mainnetRESTBase
	wsBase := mainnetWSBase
	if cfg.Testnet {
		restBase = testnetRESTBase
		wsBase = testnetWSBase
	}

	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 3
	httpClient.HTTPClient.Timeout = httpTimeout
	httpClient.Logger = nil // zerolog is wired at the call sites, not through retryablehttp's own logger

	return &Client{
		cfg:         cfg,
		restURL:     restBase,
		wsURL:       wsBase,
		http:        httpClient,
		liveOrders:  model.NewLiveOrderMap(),
		meta:        make(map[string]model.InstrumentMeta),
		orderTokens: make(map[model.PositionOrderId]tokenAndRef),
		refToID:     make(map[string]model.PositionOrderId),
		lastPrice:   make(map[string]decimal.Decimal),
		subscribers: make(map[string][]chan<- decimal.Decimal),
	}
}

func (c *Client) Market() model.Market { return model.BinanceFutures }

func (c *Client) LiveOrders() *model.LiveOrderMap { return c.liveOrders }

// InstrumentMeta satisfies hub.PrecisionProvider.
func (c *Client) InstrumentMeta(symbol model.Symbol) (model.InstrumentMeta, bool) {
	c.metaMu.RLock()
	defer c.metaMu.RUnlock()
	m, ok := c.meta[symbol.Wire()]
	return m, ok
}

func (c *Client) setInstrumentMeta(symbol model.Symbol, m model.InstrumentMeta) {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	c.meta[symbol.Wire()] = m
}

// PriceTick satisfies protocol.PriceFeed.
func (c *Client) PriceTick(symbol model.Symbol) decimal.Decimal {
	if m, ok := c.InstrumentMeta(symbol); ok {
		return m.PriceTick
	}
	return decimal.Zero
}

// sign computes Binance's HMAC-SHA256 query-string signature: the same
// shape as the teacher's POLY_SIGNATURE header (timestamp+method+path+body
// message, HMAC-SHA256, hex rather than base64 to match Binance's wire
// convention).
func (c *Client) sign(query string) string {
	h := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	h.Write([]byte(query))
	return hex.EncodeToString(h.Sum(nil))
}

// signedRequest issues a signed REST call against the futures API. params
// must not include "timestamp" or "signature"; both are added here.
func (c *Client) signedRequest(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", "5000")

	query := params.Encode()
	signature := c.sign(query)
	fullQuery := query + "&signature=" + signature

	var body io.Reader
	reqURL := c.restURL + path
	if method == http.MethodGet || method == http.MethodDelete {
		reqURL += "?" + fullQuery
	} else {
		body = bytes.NewBufferString(fullQuery)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("while building %s %s: %w", method, path, err)
	}
	req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, xerrors.Transient(fmt.Sprintf("while performing %s %s", method, path), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerrors.Transient(fmt.Sprintf("while reading %s %s response", method, path), err)
	}

	if resp.StatusCode >= 400 {
		return nil, newExchangeError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

// GetBalance fetches the USDT futures wallet balance.
func (c *Client) GetBalance(ctx context.Context) (model.Account, error) {
	body, err := c.signedRequest(ctx, http.MethodGet, "/fapi/v2/balance", nil)
	if err != nil {
		return model.Account{}, fmt.Errorf("while fetching balance: %w", err)
	}

	var rows []struct {
		Asset              string `json:"asset"`
		Balance            string `json:"balance"`
		AvailableBalance   string `json:"availableBalance"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return model.Account{}, fmt.Errorf("while decoding balance response: %w", err)
	}

	for _, r := range rows {
		if r.Asset != "USDT" {
			continue
		}
		total, _ := decimal.NewFromString(r.Balance)
		avail, _ := decimal.NewFromString(r.AvailableBalance)
		return model.Account{
			Asset:     "USDT",
			Available: avail,
			Locked:    total.Sub(avail),
		}, nil
	}
	return model.Account{Asset: "USDT"}, nil
}

// FetchExchangeInfo populates the instrument metadata cache. Called once at
// startup and safe to call again to refresh.
func (c *Client) FetchExchangeInfo(ctx context.Context, symbols []model.Symbol) error {
	body, err := c.signedRequest(ctx, http.MethodGet, "/fapi/v1/exchangeInfo", nil)
	if err != nil {
		return fmt.Errorf("while fetching exchange info: %w", err)
	}

	var info struct {
		Symbols []struct {
			Symbol  string `json:"symbol"`
			Filters []struct {
				FilterType  string `json:"filterType"`
				TickSize    string `json:"tickSize"`
				StepSize    string `json:"stepSize"`
				MinNotional string `json:"notional"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return fmt.Errorf("while decoding exchange info: %w", err)
	}

	wanted := make(map[string]model.Symbol, len(symbols))
	for _, s := range symbols {
		wanted[s.Wire()] = s
	}

	for _, row := range info.Symbols {
		sym, ok := wanted[row.Symbol]
		if !ok {
			continue
		}
		m := model.InstrumentMeta{Symbol: sym}
		for _, f := range row.Filters {
			switch f.FilterType {
			case "PRICE_FILTER":
				m.PriceTick, _ = decimal.NewFromString(f.TickSize)
			case "LOT_SIZE":
				m.QtyStep, _ = decimal.NewFromString(f.StepSize)
			case "MIN_NOTIONAL":
				m.MinNotional, _ = decimal.NewFromString(f.MinNotional)
			}
		}
		c.setInstrumentMeta(sym, m)
	}

	log.Info().Int("symbols", len(wanted)).Msg("binance: instrument metadata loaded")
	return nil
}

// MinQtiesBatch returns this venue's minimum notional per requested order
// type. Binance USDT-perp enforces one MIN_NOTIONAL floor regardless of
// order type, so every type maps to the same value.
func (c *Client) MinQtiesBatch(ctx context.Context, baseAsset string, types []model.OrderTypeTag) (map[model.OrderTypeTag]decimal.Decimal, error) {
	sym := model.Symbol{Base: baseAsset, Quote: "USDT", Market: model.BinanceFutures}
	m, ok := c.InstrumentMeta(sym)
	if !ok {
		return nil, fmt.Errorf("binance: no instrument metadata cached for %s", sym)
	}
	out := make(map[model.OrderTypeTag]decimal.Decimal, len(types))
	for _, t := range types {
		out[t] = m.MinNotional
	}
	return out, nil
}

func (c *Client) MinQtyAnyOrderType(ctx context.Context, baseAsset string) (decimal.Decimal, error) {
	sym := model.Symbol{Base: baseAsset, Quote: "USDT", Market: model.BinanceFutures}
	m, ok := c.InstrumentMeta(sym)
	if !ok {
		return decimal.Zero, fmt.Errorf("binance: no instrument metadata cached for %s", sym)
	}
	return m.MinNotional, nil
}

// PositionAmt fetches the signed current position size for symbol (positive
// long, negative short, zero flat) via /fapi/v2/positionRisk. Used by the
// `nuke` CLI command to discover what it needs to flatten without relying
// on any in-process position bookkeeping.
func (c *Client) PositionAmt(ctx context.Context, symbol model.Symbol) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("symbol", symbol.Wire())
	body, err := c.signedRequest(ctx, http.MethodGet, "/fapi/v2/positionRisk", params)
	if err != nil {
		return decimal.Zero, fmt.Errorf("while fetching position risk for %s: %w", symbol, err)
	}

	var rows []struct {
		PositionAmt string `json:"positionAmt"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return decimal.Zero, fmt.Errorf("while decoding position-risk response: %w", err)
	}
	if len(rows) == 0 {
		return decimal.Zero, nil
	}
	amt, _ := decimal.NewFromString(rows[0].PositionAmt)
	return amt, nil
}

// BookTicker fetches the current best bid/ask for symbol, satisfying
// chase.Exchange so the Chase-Limit Executor can poll the same venue this
// Client trades on.
func (c *Client) BookTicker(ctx context.Context, symbol model.Symbol) (bid, ask decimal.Decimal, err error) {
	params := url.Values{}
	params.Set("symbol", symbol.Wire())

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.restURL+"/fapi/v1/ticker/bookTicker?"+params.Encode(), nil)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("while building book-ticker request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("while fetching book ticker for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("while reading book-ticker response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return decimal.Zero, decimal.Zero, newExchangeError(resp.StatusCode, body)
	}

	var parsed struct {
		BidPrice string `json:"bidPrice"`
		AskPrice string `json:"askPrice"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("while decoding book-ticker response: %w", err)
	}
	bid, _ = decimal.NewFromString(parsed.BidPrice)
	ask, _ = decimal.NewFromString(parsed.AskPrice)
	return bid, ask, nil
}

// PlacePostOnlyLimit places a GTX (post-only) limit order, used exclusively
// by the Chase-Limit Executor outside the Hub's reconciliation pipeline.
// Returns chase.ErrPostOnlyWouldCross (matchable with errors.Is) when the
// venue rejects the order for crossing the spread.
func (c *Client) PlacePostOnlyLimit(ctx context.Context, symbol model.Symbol, side model.Side, qty, price decimal.Decimal, clientOrderID string) (string, error) {
	ref, err := c.placeOrder(ctx, model.ConcreteOrder{
		OrderType:   model.ConceptualOrderType{Tag: model.OrderTypeLimit, LimitPrice: price},
		Symbol:      symbol,
		Side:        side,
		QtyNotional: qty,
		TimeInForce: "GTX",
	}, clientOrderID)
	if err != nil && isPostOnlyReject(err) {
		return "", chase.ErrPostOnlyWouldCross
	}
	return ref, err
}

// PlaceMarketIOC places an immediate-or-cancel-equivalent market order:
// Binance MARKET orders execute against the book immediately with no
// resting behaviour, so they satisfy spec.md §4.5's "market IOC" step
// without a separate synthetic order type. The order is sent reduce-only,
// so it can shrink an open position but never open or grow one.
func (c *Client) PlaceMarketIOC(ctx context.Context, symbol model.Symbol, side model.Side, qty decimal.Decimal, clientOrderID string) (string, error) {
	return c.placeOrder(ctx, model.ConcreteOrder{
		OrderType:   model.ConceptualOrderType{Tag: model.OrderTypeMarket},
		Symbol:      symbol,
		Side:        side,
		QtyNotional: qty,
		ReduceOnly:  true,
	}, clientOrderID)
}

// CancelLiveOrder cancels by exchange ref, best-effort ("already filled" is
// an acceptable outcome per spec.md §4.5 step 3).
func (c *Client) CancelLiveOrder(ctx context.Context, symbol model.Symbol, exchangeOrderRef string) error {
	return c.cancelOrder(ctx, symbol, exchangeOrderRef)
}

// exchangeError wraps a non-2xx REST response, classified enough for the
// reconciliation loop to recognize a post-only rejection (spec.md §6/§7).
type exchangeError struct {
	StatusCode int
	Code       int
	Msg        string
	raw        string
}

func newExchangeError(status int, body []byte) error {
	var parsed struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	_ = json.Unmarshal(body, &parsed)
	return &exchangeError{StatusCode: status, Code: parsed.Code, Msg: parsed.Msg, raw: string(body)}
}

func (e *exchangeError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("binance: HTTP %d code=%d: %s", e.StatusCode, e.Code, e.Msg)
	}
	return fmt.Sprintf("binance: HTTP %d: %s", e.StatusCode, e.raw)
}

// isPostOnlyReject matches spec.md §6: code 10001 (Bybit-numbered in the
// reference spec; Binance's own post-only rejection is -2021 "Order would
// immediately trigger") or a message mentioning "post only"/"would cross".
func isPostOnlyReject(err error) bool {
	ee, ok := err.(*exchangeError)
	if !ok {
		return false
	}
	if ee.Code == 10001 || ee.Code == -2021 {
		return true
	}
	lower := strings.ToLower(ee.Msg)
	return strings.Contains(lower, "post only") || strings.Contains(lower, "would cross") || strings.Contains(lower, "would immediately trigger")
}
