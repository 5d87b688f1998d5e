package protocol

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/discretionary-eng/discretionary-engine/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeFeed struct {
	ch   chan decimal.Decimal
	tick decimal.Decimal
}

func newFakeFeed(tick decimal.Decimal) *fakeFeed {
	return &fakeFeed{ch: make(chan decimal.Decimal, 16), tick: tick}
}

func (f *fakeFeed) SubscribeTrades(ctx context.Context, symbol model.Symbol) (<-chan decimal.Decimal, error) {
	return f.ch, nil
}

func (f *fakeFeed) PriceTick(symbol model.Symbol) decimal.Decimal { return f.tick }

func btcusdt() model.Symbol {
	return model.Symbol{Base: "BTC", Quote: "USDT", Market: model.BinanceFutures}
}

// TestDummyMarketEmitsOnceThenIdles is property P7 in the degenerate case:
// a protocol that only ever has one logical state causes exactly one
// emission.
func TestDummyMarketEmitsOnceThenIdles(t *testing.T) {
	inst, err := Parse("dm")
	require.NoError(t, err)
	rt, err := NewRuntime(inst, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan model.ProtocolOrders, 4)
	var wg sync.WaitGroup

	rt.Attach(ctx, &wg, out, btcusdt(), model.Buy)

	select {
	case snap := <-out:
		require.Len(t, snap.Slots, 1)
		require.Equal(t, model.OrderTypeMarket, snap.Slots[0].OrderType.Tag)
	case <-time.After(time.Second):
		t.Fatal("expected one snapshot")
	}

	select {
	case <-out:
		t.Fatal("dummy market must not emit a second snapshot")
	case <-time.After(100 * time.Millisecond):
	}
}

// TestTrailingStopIdempotentOnUnchangedPrice is property P7: repeated ticks
// that don't move the trigger price by a full tick cause no re-emission.
func TestTrailingStopIdempotentOnUnchangedPrice(t *testing.T) {
	inst, err := Parse("ts:p0.5")
	require.NoError(t, err)
	feed := newFakeFeed(decimal.NewFromFloat(0.1))
	rt, err := NewRuntime(inst, feed)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan model.ProtocolOrders, 16)
	var wg sync.WaitGroup
	rt.Attach(ctx, &wg, out, btcusdt(), model.Sell)

	feed.ch <- decimal.NewFromInt(30000)
	first := <-out
	require.True(t, first.Slots[0].OrderType.StopPrice.Equal(decimal.NewFromInt(29850)))

	// A lower tick doesn't move the trailing-max extreme: no re-emission.
	feed.ch <- decimal.NewFromInt(29990)
	select {
	case <-out:
		t.Fatal("trailing stop must not re-emit when trigger price is unchanged")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTrailingStopFollowsRisingExtreme(t *testing.T) {
	inst, err := Parse("ts:p0.5")
	require.NoError(t, err)
	feed := newFakeFeed(decimal.NewFromFloat(0.1))
	rt, err := NewRuntime(inst, feed)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan model.ProtocolOrders, 16)
	var wg sync.WaitGroup
	rt.Attach(ctx, &wg, out, btcusdt(), model.Sell)

	feed.ch <- decimal.NewFromInt(30000)
	first := <-out
	require.True(t, first.Slots[0].OrderType.StopPrice.Equal(decimal.NewFromInt(29850)))

	feed.ch <- decimal.NewFromInt(30300)
	second := <-out
	require.True(t, second.Slots[0].OrderType.StopPrice.Equal(decimal.NewFromFloat(30148.5)))
}
