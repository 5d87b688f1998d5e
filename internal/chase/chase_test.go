package chase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/discretionary-eng/discretionary-engine/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestComputeLimitPriceNeverCrossesSpread(t *testing.T) {
	tick := dec("0.1")

	buyPrice := computeLimitPrice(model.Buy, dec("100.0"), dec("100.5"), tick)
	require.True(t, buyPrice.LessThanOrEqual(dec("100.4")), "buy limit must stay at or below ask-tick")
	require.True(t, buyPrice.GreaterThanOrEqual(dec("100.1")), "buy limit must stay at or above bid+tick")

	sellPrice := computeLimitPrice(model.Sell, dec("100.0"), dec("100.5"), tick)
	require.True(t, sellPrice.GreaterThanOrEqual(dec("100.1")), "sell limit must stay at or above bid+tick")
	require.True(t, sellPrice.LessThanOrEqual(dec("100.4")), "sell limit must stay at or below ask-tick")
}

func TestComputeLimitPriceFallsBackWhenSpreadEmpty(t *testing.T) {
	tick := dec("0.1")
	require.True(t, computeLimitPrice(model.Buy, dec("100.0"), dec("100.0"), tick).Equal(dec("100.0")))
	require.True(t, computeLimitPrice(model.Sell, dec("100.0"), dec("100.0"), tick).Equal(dec("100.0")))
}

func TestNeedsUpdateRespectsHalfTickThreshold(t *testing.T) {
	last := dec("100.0")
	tick := dec("0.1")
	require.False(t, needsUpdate(&last, dec("100.04"), tick), "within half a tick should not trigger replace")
	require.True(t, needsUpdate(&last, dec("100.06"), tick), "beyond half a tick should trigger replace")
	require.True(t, needsUpdate(nil, dec("100.0"), tick), "no resting order always needs placement")
}

// scriptedExchange drives a run through a fixed quote sequence (simulating
// the price moving against a Sell chase) and records placed limit prices.
type scriptedExchange struct {
	mu      sync.Mutex
	quotes  []quote
	idx     int
	placed  []decimal.Decimal
	liveRef string
}

type quote struct{ bid, ask decimal.Decimal }

func (s *scriptedExchange) BookTicker(ctx context.Context, symbol model.Symbol) (decimal.Decimal, decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.quotes[s.idx]
	if s.idx < len(s.quotes)-1 {
		s.idx++
	}
	return q.bid, q.ask, nil
}

func (s *scriptedExchange) PlacePostOnlyLimit(ctx context.Context, symbol model.Symbol, side model.Side, qty, price decimal.Decimal, clientOrderID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.placed = append(s.placed, price)
	s.liveRef = clientOrderID
	return clientOrderID, nil
}

func (s *scriptedExchange) PlaceMarketIOC(ctx context.Context, symbol model.Symbol, side model.Side, qty decimal.Decimal, clientOrderID string) (string, error) {
	return clientOrderID, nil
}

func (s *scriptedExchange) CancelLiveOrder(ctx context.Context, symbol model.Symbol, exchangeOrderRef string) error {
	return nil
}

func TestRunWithDurationSweepsRemainderAtExpiry(t *testing.T) {
	ex := &scriptedExchange{quotes: []quote{
		{bid: dec("100.0"), ask: dec("100.5")},
	}}
	e := New(ex)

	duration := 30 * time.Millisecond
	symbol := model.Symbol{Base: "BTC", Quote: "USDT", Market: model.BinanceFutures}
	filled, err := e.Run(context.Background(), Params{
		Symbol:    symbol,
		Side:      model.Sell,
		TargetQty: dec("0.01"),
		QtyStep:   dec("0.001"),
		PriceTick: dec("0.1"),
		Duration:  &duration,
	})
	require.NoError(t, err)
	require.True(t, filled.Equal(dec("0.01")), "market sweep fills whatever remained at expiry")
}

func TestRunRejectsZeroStepOrTick(t *testing.T) {
	ex := &scriptedExchange{quotes: []quote{{bid: dec("1"), ask: dec("1.1")}}}
	e := New(ex)
	symbol := model.Symbol{Base: "BTC", Quote: "USDT", Market: model.BinanceFutures}

	_, err := e.Run(context.Background(), Params{Symbol: symbol, Side: model.Buy, TargetQty: dec("1"), QtyStep: decimal.Zero, PriceTick: dec("0.1")})
	require.Error(t, err)

	_, err = e.Run(context.Background(), Params{Symbol: symbol, Side: model.Buy, TargetQty: dec("1"), QtyStep: dec("0.1"), PriceTick: decimal.Zero})
	require.Error(t, err)
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}
