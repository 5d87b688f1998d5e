package protocol

import (
	"context"
	"sync"

	"github.com/discretionary-eng/discretionary-engine/internal/model"
	"github.com/shopspring/decimal"
)

// dummyMarket emits exactly one snapshot, a single Market slot at 100% of
// controlled notional, then idles — the minimal protocol used to exercise
// the Position/Hub plumbing end to end (spec.md §4.1, §8 scenario 1).
type dummyMarket struct {
	inst Instance
}

func newDummyMarket(inst Instance) *dummyMarket {
	return &dummyMarket{inst: inst}
}

func (d *dummyMarket) Subtype() Subtype          { return SubtypeMomentum }
func (d *dummyMarket) Signature() model.Signature { return d.inst.Signature() }

func (d *dummyMarket) UpdateParams(params map[byte]decimal.Decimal) error {
	// No params to update; DummyMarket is parameter-free by construction.
	return nil
}

func (d *dummyMarket) Attach(ctx context.Context, wg *sync.WaitGroup, out chan<- model.ProtocolOrders, symbol model.Symbol, side model.Side) {
	snapshot := model.ProtocolOrders{
		ProducedBy: d.Signature(),
		Slots: []model.Slot{
			{
				OrderType: model.Market(),
				Symbol:    symbol,
				Side:      side,
				Percent:   decimal.NewFromInt(1),
			},
		},
	}

	select {
	case out <- snapshot:
	case <-ctx.Done():
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
	}()
}
