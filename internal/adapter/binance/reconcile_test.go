package binance

import (
	"testing"

	"github.com/discretionary-eng/discretionary-engine/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func stopOrder(id model.PositionOrderId, price, qty string) model.ConcreteOrder {
	return model.ConcreteOrder{
		ID:          id,
		OrderType:   model.StopMarket(dec(price)),
		Symbol:      model.Symbol{Base: "BTC", Quote: "USDT", Market: model.BinanceFutures},
		Side:        model.Sell,
		QtyNotional: dec(qty),
		TimeInForce: "GTC",
	}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestEqualOrderTrueForIdenticalStopMarket(t *testing.T) {
	a := stopOrder(model.PositionOrderId{}, "100", "1")
	b := stopOrder(model.PositionOrderId{}, "100", "1")
	require.True(t, equalOrder(a, b))
}

func TestEqualOrderFalseWhenStopPriceMoves(t *testing.T) {
	a := stopOrder(model.PositionOrderId{}, "100", "1")
	b := stopOrder(model.PositionOrderId{}, "101", "1")
	require.False(t, equalOrder(a, b))
}

func TestEqualOrderFalseWhenQtyChanges(t *testing.T) {
	a := stopOrder(model.PositionOrderId{}, "100", "1")
	b := stopOrder(model.PositionOrderId{}, "100", "1.5")
	require.False(t, equalOrder(a, b))
}

func TestEqualOrderIgnoresDecimalRepresentationDifferences(t *testing.T) {
	// "1" and "1.0" are the same decimal.Decimal value under Equal even
	// though their internal scale differs — a passforward re-serializing
	// the same quantity must not look like a change.
	a := stopOrder(model.PositionOrderId{}, "100.00", "1")
	b := stopOrder(model.PositionOrderId{}, "100", "1.0")
	require.True(t, equalOrder(a, b))
}
