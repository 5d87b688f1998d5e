// Package bybit is a documented stub: SPEC_FULL.md names Bybit linear
// perpetuals as a second venue the Adapter interface must accommodate, but
// no protocol or CLI path in this engine drives one yet. New returns a
// value satisfying adapter.Adapter so venue selection can type-check end to
// end; every method fails with ErrNotImplemented.
package bybit

import (
	"context"
	"errors"

	"github.com/discretionary-eng/discretionary-engine/internal/adapter"
	"github.com/discretionary-eng/discretionary-engine/internal/hub"
	"github.com/discretionary-eng/discretionary-engine/internal/model"
	"github.com/shopspring/decimal"
)

// ErrNotImplemented is returned by every Client method.
var ErrNotImplemented = errors.New("bybit: adapter not implemented")

// Client is the stub Bybit linear-perpetual adapter.
type Client struct{}

var _ adapter.Adapter = (*Client)(nil)

func New() *Client { return &Client{} }

func (c *Client) Run(ctx context.Context, ordersRx <-chan hub.Passforward, fillsTx chan<- hub.HubCallback) error {
	return ErrNotImplemented
}

func (c *Client) GetBalance(ctx context.Context) (model.Account, error) {
	return model.Account{}, ErrNotImplemented
}

func (c *Client) InstrumentMeta(symbol model.Symbol) (model.InstrumentMeta, bool) {
	return model.InstrumentMeta{}, false
}

func (c *Client) MinQtiesBatch(ctx context.Context, baseAsset string, types []model.OrderTypeTag) (map[model.OrderTypeTag]decimal.Decimal, error) {
	return nil, ErrNotImplemented
}

func (c *Client) MinQtyAnyOrderType(ctx context.Context, baseAsset string) (decimal.Decimal, error) {
	return decimal.Zero, ErrNotImplemented
}

func (c *Client) LiveOrders() *model.LiveOrderMap {
	return model.NewLiveOrderMap()
}

func (c *Client) Market() model.Market { return model.BybitLinear }
