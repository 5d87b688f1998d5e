package protocol

import (
	"context"
	"math"
	"sync"

	"github.com/discretionary-eng/discretionary-engine/internal/model"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// approachingLimit resolves the spec's open question (§9,
// ApproachingLimitIndicator::step is unimplemented in the original) the way
// DESIGN.md records: it reuses TrailingStop's extreme-tracking machinery but
// sizes the trigger with the heuristic multiplier 1 + ln(1 ± p) instead of
// the linear 1 ∓ p TrailingStop uses: for a Buy-side stop the offset grows
// more slowly than p, for a Sell-side stop (1 + ln(1 - p)) faster than p.
type approachingLimit struct {
	inst   Instance
	feed   PriceFeed
	params *paramCell
}

func newApproachingLimit(inst Instance, feed PriceFeed) *approachingLimit {
	return &approachingLimit{inst: inst, feed: feed, params: newParamCell(inst.Params)}
}

func (a *approachingLimit) Subtype() Subtype           { return SubtypeTP }
func (a *approachingLimit) Signature() model.Signature { return a.inst.Signature() }

func (a *approachingLimit) UpdateParams(params map[byte]decimal.Decimal) error {
	if _, ok := params['p']; !ok {
		return errMissingParam('p')
	}
	a.params.store(params)
	return nil
}

func (a *approachingLimit) Attach(ctx context.Context, wg *sync.WaitGroup, out chan<- model.ProtocolOrders, symbol model.Symbol, side model.Side) {
	trades, err := a.feed.SubscribeTrades(ctx, symbol)
	if err != nil {
		log.Error().Err(err).Str("protocol", string(a.Signature())).Msg("approaching limit: failed to subscribe to trade feed")
		return
	}
	tick := a.feed.PriceTick(symbol)

	wg.Add(1)
	go func() {
		defer wg.Done()
		var extreme decimal.Decimal
		var lastEmitted decimal.Decimal
		haveExtreme := false

		emit := func(price decimal.Decimal) {
			snapshot := model.ProtocolOrders{
				ProducedBy: a.Signature(),
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

				percentFloat, _ := a.params.load()['p'].Float64()
				var multiplier float64
				if side == model.Sell {
					multiplier = 1 + math.Log(1-percentFloat)
				} else {
					multiplier = 1 + math.Log(1+percentFloat)
				}
				triggerPrice := extreme.Mul(decimal.NewFromFloat(multiplier))

				if lastEmitted.IsZero() || triggerPrice.Sub(lastEmitted).Abs().GreaterThanOrEqual(tick) {
					emit(triggerPrice)
				}
			}
		}
	}()
}
