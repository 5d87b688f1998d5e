package protocol

import (
	"context"
	"sync"

	"github.com/discretionary-eng/discretionary-engine/internal/model"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// trailingStop maintains the running extreme price (the high-water mark for
// a Sell-side protective stop, the low-water mark for a Buy-side one) and
// emits a single StopMarket slot at extreme*(1 ∓ p/100) (p is a percentage,
// so "ts:p0.5" trails by 0.5%), re-emitting only when the resulting trigger
// price has moved by at least one price tick.
type trailingStop struct {
	inst   Instance
	feed   PriceFeed
	params *paramCell
}

func newTrailingStop(inst Instance, feed PriceFeed) *trailingStop {
	return &trailingStop{inst: inst, feed: feed, params: newParamCell(inst.Params)}
}

func (t *trailingStop) Subtype() Subtype           { return SubtypeSL }
func (t *trailingStop) Signature() model.Signature { return t.inst.Signature() }

func (t *trailingStop) UpdateParams(params map[byte]decimal.Decimal) error {
	if _, ok := params['p']; !ok {
		return errMissingParam('p')
	}
	t.params.store(params)
	return nil
}

func (t *trailingStop) Attach(ctx context.Context, wg *sync.WaitGroup, out chan<- model.ProtocolOrders, symbol model.Symbol, side model.Side) {
	trades, err := t.feed.SubscribeTrades(ctx, symbol)
	if err != nil {
		log.Error().Err(err).Str("protocol", string(t.Signature())).Msg("trailing stop: failed to subscribe to trade feed")
		return
	}
	tick := t.feed.PriceTick(symbol)

	wg.Add(1)
	go func() {
		defer wg.Done()
		var extreme decimal.Decimal
		var lastEmitted decimal.Decimal
		haveExtreme := false

		emit := func(price decimal.Decimal) {
			snapshot := model.ProtocolOrders{
				ProducedBy: t.Signature(),
				Slots: []model.Slot{
					{
						OrderType: model.StopMarket(price),
						Symbol:    symbol,
						Side:      side,
						Percent:   decimal.NewFromInt(1),
					},
				},
			}
			select {
			case out <- snapshot:
				lastEmitted = price
			case <-ctx.Done():
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case price, ok := <-trades:
				if !ok {
					return
				}
				if !haveExtreme {
					extreme = price
					haveExtreme = true
				} else if side == model.Sell && price.GreaterThan(extreme) {
					extreme = price
				} else if side == model.Buy && price.LessThan(extreme) {
					extreme = price
				}

				percent := t.params.load()['p'].Div(decimal.NewFromInt(100))
				var triggerPrice decimal.Decimal
				if side == model.Sell {
					triggerPrice = extreme.Mul(decimal.NewFromInt(1).Sub(percent))
				} else {
					triggerPrice = extreme.Mul(decimal.NewFromInt(1).Add(percent))
				}

				if lastEmitted.IsZero() || triggerPrice.Sub(lastEmitted).Abs().GreaterThanOrEqual(tick) {
					emit(triggerPrice)
				}
			}
		}
	}()
}

type errMissingParam byte

func (e errMissingParam) Error() string { return "missing required param: " + string(rune(e)) }
