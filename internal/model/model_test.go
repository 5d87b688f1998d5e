package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSymbolWireIsUppercaseConcatenated(t *testing.T) {
	s := Symbol{Base: "btc", Quote: "usdt", Market: BinanceFutures}
	require.Equal(t, "BTCUSDT", s.Wire())
}

func TestSymbolEqual(t *testing.T) {
	a := Symbol{Base: "BTC", Quote: "USDT", Market: BinanceFutures}
	b := Symbol{Base: "BTC", Quote: "USDT", Market: BinanceFutures}
	c := Symbol{Base: "BTC", Quote: "USDT", Market: BybitLinear}
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
}

func TestPositionSpecSignSelectsSide(t *testing.T) {
	buy, err := NewPositionSpecFromSignedSize("BTC", decimal.NewFromInt(100), 0)
	require.NoError(t, err)
	require.Equal(t, Buy, buy.Side)
	require.True(t, buy.TargetNotional.Equal(decimal.NewFromInt(100)))

	sell, err := NewPositionSpecFromSignedSize("BTC", decimal.NewFromInt(-100), 0)
	require.NoError(t, err)
	require.Equal(t, Sell, sell.Side)
	require.True(t, sell.TargetNotional.Equal(decimal.NewFromInt(100)))
}

func TestPositionSpecRejectsZero(t *testing.T) {
	_, err := NewPositionSpecFromSignedSize("BTC", decimal.Zero, 0)
	require.Error(t, err)
}

func TestProtocolOrdersResolvePercentToNotional(t *testing.T) {
	sym := Symbol{Base: "BTC", Quote: "USDT", Market: BinanceFutures}
	po := ProtocolOrders{
		ProducedBy: "dm",
		Slots: []Slot{
			{OrderType: Market(), Symbol: sym, Side: Buy, Percent: decimal.NewFromFloat(1.0)},
		},
	}
	resolved := po.Resolve(decimal.NewFromInt(100))
	require.Len(t, resolved, 1)
	require.True(t, resolved[0].QtyNotional.Equal(decimal.NewFromInt(100)))
	require.Equal(t, ProtocolOrderId{Signature: "dm", Ordinal: 0}, resolved[0].ID)
}

func TestProtocolOrdersResolveSkipsNilSlots(t *testing.T) {
	po := ProtocolOrders{ProducedBy: "ts", Slots: []Slot{nil, nil}}
	require.Empty(t, po.Resolve(decimal.NewFromInt(50)))
}

func TestLiveOrderMapAtMostOneLive(t *testing.T) {
	m := NewLiveOrderMap()
	id := PositionOrderId{PositionID: mustID(t), Signature: "ts", Ordinal: 0}
	m.Set(id, LiveOrderRef{ExchangeOrderRef: "a"})
	m.Set(id, LiveOrderRef{ExchangeOrderRef: "b"})
	require.Equal(t, 1, m.Len())
	ref, ok := m.Get(id)
	require.True(t, ok)
	require.Equal(t, "b", ref.ExchangeOrderRef)
}

func mustID(t *testing.T) PositionID {
	t.Helper()
	id, err := NewPositionID()
	require.NoError(t, err)
	return id
}
