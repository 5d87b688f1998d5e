package position

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/discretionary-eng/discretionary-engine/internal/hub"
	"github.com/discretionary-eng/discretionary-engine/internal/model"
	"github.com/discretionary-eng/discretionary-engine/internal/protocol"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// fakeHub is a HubPort double that echoes every HubRx straight back as a
// fully-filled ProtocolFills, letting tests drive a Position without a real
// Hub task.
type fakeHub struct {
	rxCh            chan hub.HubRx
	removedPosition chan model.PositionID
}

func newFakeHub() *fakeHub {
	return &fakeHub{
		rxCh:            make(chan hub.HubRx, 32),
		removedPosition: make(chan model.PositionID, 4),
	}
}

func (f *fakeHub) RxChan() chan<- hub.HubRx { return f.rxCh }

func (f *fakeHub) RemovePosition(id model.PositionID) { f.removedPosition <- id }

// runFillEverything drains HubRx and immediately reports every order's full
// qty_notional as filled under a fresh key, simulating an adapter that
// fills every passforward instantly.
func (f *fakeHub) runFillEverything(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rx := <-f.rxCh:
			if len(rx.Orders) == 0 {
				continue
			}
			key := uuid.Must(uuid.NewV7())
			var fills []hub.ProtocolFill
			for _, o := range rx.Orders {
				fills = append(fills, hub.ProtocolFill{OrderID: o.ID.IntoProtocolID(), FillQty: o.QtyNotional})
			}
			rx.Callback <- hub.ProtocolFills{Key: key, Fills: fills}
		}
	}
}

func dummyMarketInstance(t *testing.T) protocol.Instance {
	t.Helper()
	inst, err := protocol.Parse("dm")
	require.NoError(t, err)
	return inst
}

// TestAcquisitionWithNoFollowupTerminatesImmediately is §8 scenario 1:
// DummyMarket acquisition with no followup protocols completes as soon as
// the single fill lands.
func TestAcquisitionWithNoFollowupTerminatesImmediately(t *testing.T) {
	fh := newFakeHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fh.runFillEverything(ctx)

	id, err := model.NewPositionID()
	require.NoError(t, err)
	spec, err := model.NewPositionSpecFromSignedSize("BTC", decimal.NewFromInt(100), 0)
	require.NoError(t, err)

	pos, err := New(Config{
		ID:                   id,
		Spec:                 spec,
		Market:               model.BinanceFutures,
		AcquisitionProtocols: []protocol.Instance{dummyMarketInstance(t)},
		Hub:                  fh,
		QtyStep:              decimal.NewFromFloat(0.01),
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- pos.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("position did not terminate after full acquisition fill")
	}

	select {
	case removed := <-fh.removedPosition:
		require.Equal(t, id, removed)
	case <-time.After(time.Second):
		t.Fatal("expected RemovePosition to be called on termination")
	}
}

// TestConservationAcquisitionThenFollowup is property P2: at every moment
// summed fills stay within target_notional + epsilon, and the terminal
// acquired/unwound amounts match within epsilon.
func TestConservationAcquisitionThenFollowup(t *testing.T) {
	fh := newFakeHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fh.runFillEverything(ctx)

	id, err := model.NewPositionID()
	require.NoError(t, err)
	spec, err := model.NewPositionSpecFromSignedSize("BTC", decimal.NewFromInt(100), 0)
	require.NoError(t, err)

	pos, err := New(Config{
		ID:                   id,
		Spec:                 spec,
		Market:               model.BinanceFutures,
		AcquisitionProtocols: []protocol.Instance{dummyMarketInstance(t)},
		FollowupProtocols:    []protocol.Instance{dummyMarketInstance(t)},
		Hub:                  fh,
		QtyStep:              decimal.NewFromFloat(0.01),
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- pos.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("position did not terminate after acquisition+followup fills")
	}

	require.True(t, pos.acquiredNotional.Sub(spec.TargetNotional).Abs().LessThanOrEqual(pos.cfg.QtyStep))
	require.True(t, pos.remainingNotional.Abs().LessThanOrEqual(pos.cfg.QtyStep))
}

// TestOnEventEmitsFillWithQtyOnAppliedFill covers the ledger-audit wiring:
// every applied fill must surface as a "fill" OnEvent carrying the delta
// quantity, not just the opened/phase_transition/closed lifecycle events.
func TestOnEventEmitsFillWithQtyOnAppliedFill(t *testing.T) {
	fh := newFakeHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fh.runFillEverything(ctx)

	id, err := model.NewPositionID()
	require.NoError(t, err)
	spec, err := model.NewPositionSpecFromSignedSize("BTC", decimal.NewFromInt(100), 0)
	require.NoError(t, err)

	type observedEvent struct {
		event, phase string
		qty          decimal.Decimal
	}
	events := make(chan observedEvent, 16)

	pos, err := New(Config{
		ID:                   id,
		Spec:                 spec,
		Market:               model.BinanceFutures,
		AcquisitionProtocols: []protocol.Instance{dummyMarketInstance(t)},
		Hub:                  fh,
		QtyStep:              decimal.NewFromFloat(0.01),
		OnEvent: func(event, phase string, qty decimal.Decimal, detail string) {
			events <- observedEvent{event: event, phase: phase, qty: qty}
		},
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- pos.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("position did not terminate after full acquisition fill")
	}
	close(events)

	var sawFill bool
	for e := range events {
		if e.event == "fill" {
			sawFill = true
			require.Equal(t, string(PhaseAcquisition), e.phase)
			require.True(t, e.qty.Equal(spec.TargetNotional))
		}
	}
	require.True(t, sawFill, "expected a \"fill\" OnEvent carrying the fill quantity")
}

// TestRequestCloseTerminatesEarly covers the explicit-close termination
// path ("remaining_notional <= epsilon or an explicit close command
// arrives"): a position sitting mid-acquisition with no fills yet still
// terminates as soon as RequestClose is called.
func TestRequestCloseTerminatesEarly(t *testing.T) {
	fh := newFakeHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, err := model.NewPositionID()
	require.NoError(t, err)
	spec, err := model.NewPositionSpecFromSignedSize("BTC", decimal.NewFromInt(100), 0)
	require.NoError(t, err)

	pos, err := New(Config{
		ID:                   id,
		Spec:                 spec,
		Market:               model.BinanceFutures,
		AcquisitionProtocols: []protocol.Instance{dummyMarketInstance(t)},
		Hub:                  fh,
		QtyStep:              decimal.NewFromFloat(0.01),
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- pos.Run(ctx) }()

	// Drain the Hub's one published HubRx so attach doesn't stall, but never
	// reply with a fill — the position should sit in Acquisition until
	// explicitly closed.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-fh.rxCh:
		case <-ctx.Done():
		}
	}()

	time.Sleep(50 * time.Millisecond)
	pos.RequestClose()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("position did not terminate on explicit close")
	}
	wg.Wait()
}
