package protocol

import (
	"context"
	"sync"

	"github.com/discretionary-eng/discretionary-engine/internal/model"
	"github.com/shopspring/decimal"
)

// stopEntry emits a single StopMarket slot at a fixed trigger price supplied
// at construction ("buy if price breaks above X"), once on attach, and never
// again — entry triggers don't trail. This fills spec.md's StopEntry subtype
// tag, which the distilled spec names in §3 but never defines a body for
// (see SPEC_FULL.md §4.1).
type stopEntry struct {
	inst   Instance
	params *paramCell
}

func newStopEntry(inst Instance) *stopEntry {
	return &stopEntry{inst: inst, params: newParamCell(inst.Params)}
}

func (s *stopEntry) Subtype() Subtype           { return SubtypeStopEntry }
func (s *stopEntry) Signature() model.Signature { return s.inst.Signature() }

func (s *stopEntry) UpdateParams(params map[byte]decimal.Decimal) error {
	if _, ok := params['t']; !ok {
		return errMissingParam('t')
	}
	s.params.store(params)
	return nil
}

func (s *stopEntry) Attach(ctx context.Context, wg *sync.WaitGroup, out chan<- model.ProtocolOrders, symbol model.Symbol, side model.Side) {
	trigger := s.params.load()['t']
	snapshot := model.ProtocolOrders{
		ProducedBy: s.Signature(),
		Slots: []model.Slot{
			{
				OrderType: model.StopMarket(trigger),
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
