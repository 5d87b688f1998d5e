package hub

import (
	"context"
	"testing"
	"time"

	"github.com/discretionary-eng/discretionary-engine/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakePrecision struct{ meta model.InstrumentMeta }

func (f fakePrecision) InstrumentMeta(symbol model.Symbol) (model.InstrumentMeta, bool) {
	return f.meta, true
}

func btcSymbol() model.Symbol {
	return model.Symbol{Base: "BTC", Quote: "USDT", Market: model.BinanceFutures}
}

func newTestHub() (*Hub, model.PositionID) {
	meta := model.InstrumentMeta{
		Symbol:      btcSymbol(),
		QtyStep:     decimal.NewFromFloat(0.001),
		PriceTick:   decimal.NewFromFloat(0.1),
		MinNotional: decimal.NewFromInt(5),
	}
	h := New(map[model.Market]PrecisionProvider{
		model.BinanceFutures: fakePrecision{meta: meta},
	})
	pid, _ := model.NewPositionID()
	return h, pid
}

// TestHubCoherenceDropsStaleRx is property P4: a HubRx whose key predates
// the most recent HubCallback key is discarded with no side effect.
func TestHubCoherenceDropsStaleRx(t *testing.T) {
	h, pid := newTestHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	fills := make(chan ProtocolFills, 4)
	orderID := model.ProtocolOrderId{Signature: "dm", Ordinal: 0}

	// k0: first request, accepted because lastFillKey starts at uuid.Nil.
	h.RxChan() <- HubRx{
		Key:        uuid.Nil,
		PositionID: pid,
		Orders: []model.ConceptualOrder[model.ProtocolOrderId]{{
			ID: orderID, OrderType: model.Market(), Symbol: btcSymbol(),
			Side: model.Buy, QtyNotional: decimal.NewFromInt(100),
		}},
		RemainingNotional: decimal.NewFromInt(100),
		Callback:          fills,
	}

	passforwards, ok := h.Passforwards(model.BinanceFutures)
	require.True(t, ok)

	select {
	case pf := <-passforwards:
		require.Len(t, pf.Orders, 1)
	case <-time.After(time.Second):
		t.Fatal("expected initial passforward")
	}

	// Adapter reports a fill under a fresh key k1.
	k1 := uuid.Must(uuid.NewV7())
	posOrderID := model.PositionOrderId{PositionID: pid, Signature: "dm", Ordinal: 0}
	h.CallbackChan() <- HubCallback{Key: k1, FillQty: decimal.NewFromInt(50), OrderID: posOrderID}

	select {
	case f := <-fills:
		require.Equal(t, k1, f.Key)
	case <-time.After(time.Second):
		t.Fatal("expected fill callback")
	}

	// Position, unaware of the fill, re-sends its stale k0 request.
	h.RxChan() <- HubRx{
		Key:        uuid.Nil,
		PositionID: pid,
		Orders: []model.ConceptualOrder[model.ProtocolOrderId]{{
			ID: orderID, OrderType: model.Market(), Symbol: btcSymbol(),
			Side: model.Buy, QtyNotional: decimal.NewFromInt(100),
		}},
		RemainingNotional: decimal.NewFromInt(100),
		Callback:          fills,
	}

	select {
	case <-passforwards:
		t.Fatal("stale HubRx must not reach the adapter")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestMergeKeepsFartherStopOnOverlap(t *testing.T) {
	pid, _ := model.NewPositionID()
	sym := btcSymbol()
	closer := model.ConceptualOrder[model.PositionOrderId]{
		ID:        model.PositionOrderId{PositionID: pid, Signature: "ts:p0.3", Ordinal: 0},
		OrderType: model.StopMarket(decimal.NewFromInt(29900)),
		Symbol:    sym, Side: model.Sell, QtyNotional: decimal.NewFromInt(100),
	}
	farther := model.ConceptualOrder[model.PositionOrderId]{
		ID:        model.PositionOrderId{PositionID: pid, Signature: "ts:p0.8", Ordinal: 0},
		OrderType: model.StopMarket(decimal.NewFromInt(29500)),
		Symbol:    sym, Side: model.Sell, QtyNotional: decimal.NewFromInt(100),
	}
	budgets := map[model.PositionID]decimal.Decimal{pid: decimal.NewFromInt(100)}
	precision := map[model.Market]PrecisionProvider{
		model.BinanceFutures: fakePrecision{meta: model.InstrumentMeta{
			QtyStep: decimal.NewFromFloat(0.001), PriceTick: decimal.NewFromFloat(0.1),
		}},
	}

	out := hubProcessOrders([]model.ConceptualOrder[model.PositionOrderId]{closer, farther}, budgets, precision)
	require.Len(t, out, 1)
	require.True(t, out[0].OrderType.StopPrice.Equal(decimal.NewFromInt(29500)))
}

func TestClampScalesDownOverBudget(t *testing.T) {
	pid, _ := model.NewPositionID()
	sym := btcSymbol()
	a := model.ConceptualOrder[model.PositionOrderId]{
		ID: model.PositionOrderId{PositionID: pid, Signature: "dm", Ordinal: 0},
		OrderType: model.Market(), Symbol: sym, Side: model.Buy,
		QtyNotional: decimal.NewFromInt(80),
	}
	b := model.ConceptualOrder[model.PositionOrderId]{
		ID: model.PositionOrderId{PositionID: pid, Signature: "se:t30000", Ordinal: 0},
		OrderType: model.Market(), Symbol: sym, Side: model.Buy,
		QtyNotional: decimal.NewFromInt(80),
	}
	budgets := map[model.PositionID]decimal.Decimal{pid: decimal.NewFromInt(100)}
	precision := map[model.Market]PrecisionProvider{}

	out := hubProcessOrders([]model.ConceptualOrder[model.PositionOrderId]{a, b}, budgets, precision)
	total := decimal.Zero
	for _, o := range out {
		total = total.Add(o.QtyNotional)
	}
	require.True(t, total.LessThanOrEqual(decimal.NewFromInt(100)))
}
