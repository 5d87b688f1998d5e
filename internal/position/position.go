// Package position implements the Position Lifecycle: the two-phase
// Acquisition → Followup state machine spec.md §4.2 describes, driving a
// set of Protocol Runtime tasks and talking to the Orders Hub over the
// HubRx/ProtocolFills channel pair.
package position

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/discretionary-eng/discretionary-engine/internal/hub"
	"github.com/discretionary-eng/discretionary-engine/internal/model"
	"github.com/discretionary-eng/discretionary-engine/internal/protocol"
	"github.com/discretionary-eng/discretionary-engine/internal/xerrors"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Phase is one of the two lifecycle phases.
type Phase string

const (
	PhaseAcquisition Phase = "Acquisition"
	PhaseFollowup    Phase = "Followup"
)

// detachTimeout bounds how long Run waits for a phase's protocol tasks to
// join before moving on; a protocol that won't join within this window is
// logged and abandoned rather than blocking the phase transition forever.
const detachTimeout = 5 * time.Second

// HubPort is the narrow slice of *hub.Hub a Position needs. Narrowed to an
// interface so position tests don't need a running Hub task.
type HubPort interface {
	RxChan() chan<- hub.HubRx
	RemovePosition(id model.PositionID)
}

// Config is everything a Position needs to know once, at creation.
type Config struct {
	ID                   model.PositionID
	Spec                 model.PositionSpec
	Market               model.Market
	AcquisitionProtocols []protocol.Instance
	FollowupProtocols    []protocol.Instance
	Feed                 protocol.PriceFeed
	Hub                  HubPort
	// QtyStep is epsilon: the quantity-step tolerance spec.md §4.2 uses for
	// "acquired_notional >= target_notional - epsilon" and the symmetric
	// followup termination check.
	QtyStep decimal.Decimal
	// OnEvent, if set, is called on every applied fill, phase transition, and
	// termination, so a caller can mirror lifecycle events to the ledger
	// and notify packages without the Position depending on either. qty is
	// the fill notional for a "fill" event, zero otherwise.
	OnEvent func(event, phase string, qty decimal.Decimal, detail string)
}

// Position drives one PositionSpec's lifecycle task. All mutable state is
// owned exclusively by the goroutine running Run; everything else talks to
// it only via the close channel and the Hub's fill-callback channel.
type Position struct {
	cfg    Config
	symbol model.Symbol

	phase             Phase
	acquiredNotional  decimal.Decimal // Phase A: filled so far on spec.Side
	remainingNotional decimal.Decimal // Phase B: left to unwind
	lastKey           uuid.UUID

	snapshots map[model.Signature]model.ProtocolOrders
	protoChan chan model.ProtocolOrders
	fillsChan chan hub.ProtocolFills
	closeCh   chan struct{}

	runtimes []protocol.Runtime
	phaseCtx    context.Context
	phaseCancel context.CancelFunc
	phaseWg     *sync.WaitGroup
}

// New constructs a Position in Phase A, not yet running any protocol task.
func New(cfg Config) (*Position, error) {
	if len(cfg.AcquisitionProtocols) == 0 {
		return nil, fmt.Errorf("position %s: acquisition protocol list must be non-empty", cfg.ID)
	}
	if cfg.Spec.TargetNotional.IsZero() || cfg.Spec.TargetNotional.IsNegative() {
		return nil, fmt.Errorf("position %s: target_notional must be positive", cfg.ID)
	}
	return &Position{
		cfg:    cfg,
		symbol: model.Symbol{Base: cfg.Spec.Coin, Quote: "USDT", Market: cfg.Market},

		phase:             PhaseAcquisition,
		acquiredNotional:  decimal.Zero,
		remainingNotional: decimal.Zero,

		snapshots: make(map[model.Signature]model.ProtocolOrders),
		protoChan: make(chan model.ProtocolOrders, 32),
		fillsChan: make(chan hub.ProtocolFills, 32),
		closeCh:   make(chan struct{}),
	}, nil
}

// RequestClose is the external "nuke"-style trigger: it asks the running
// Position to terminate as soon as it next observes the channel, regardless
// of phase or remaining notional. Safe to call once; a second call panics
// on close-of-closed-channel by design (callers own the lifetime).
func (p *Position) RequestClose() { close(p.closeCh) }

// ID returns the position's identity.
func (p *Position) ID() model.PositionID { return p.cfg.ID }

// Run drives the Position until it terminates (target reached or an
// explicit close), then tears down its Hub footprint. It returns nil on a
// clean terminal state and an error on ctx cancellation or a fatal
// invariant violation.
func (p *Position) Run(ctx context.Context) error {
	defer p.cfg.Hub.RemovePosition(p.cfg.ID)
	p.emit("opened", fmt.Sprintf("%s %s target=%s", p.cfg.Spec.Coin, p.cfg.Spec.Side, p.cfg.Spec.TargetNotional))

	if err := p.attachPhase(ctx, p.cfg.AcquisitionProtocols, p.cfg.Spec.Side); err != nil {
		return fmt.Errorf("position %s: while attaching acquisition protocols: %w", p.cfg.ID, err)
	}

	for {
		select {
		case <-ctx.Done():
			p.detachCurrentPhase()
			return ctx.Err()

		case <-p.closeCh:
			p.detachCurrentPhase()
			log.Info().Str("position_id", p.cfg.ID.String()).Msg("position: explicit close requested, terminating")
			p.emit("closed", "explicit close requested")
			return nil

		case snap := <-p.protoChan:
			p.snapshots[snap.ProducedBy] = snap
			p.publish()

		case fills := <-p.fillsChan:
			terminal, err := p.applyFills(ctx, fills)
			if err != nil {
				p.detachCurrentPhase()
				return err
			}
			if terminal {
				p.detachCurrentPhase()
				p.emit("closed", "target reached")
				return nil
			}
		}
	}
}

func (p *Position) emit(event, detail string) {
	p.emitWithQty(event, decimal.Zero, detail)
}

// emitWithQty is emit plus the notional a fill event carries, so OnEvent can
// feed a ledger row without re-deriving it from detail text.
func (p *Position) emitWithQty(event string, qty decimal.Decimal, detail string) {
	if p.cfg.OnEvent != nil {
		p.cfg.OnEvent(event, string(p.phase), qty, detail)
	}
}

// remainingBudget is what the Hub clamps this position's live notional
// against (Invariant 2).
func (p *Position) remainingBudget() decimal.Decimal {
	if p.phase == PhaseAcquisition {
		return p.cfg.Spec.TargetNotional.Sub(p.acquiredNotional)
	}
	return p.remainingNotional
}

// currentSide is the side protocols in the active phase should be attached
// on: spec.Side during Acquisition, its opposite during Followup (unwind).
func (p *Position) currentSide() model.Side {
	if p.phase == PhaseAcquisition {
		return p.cfg.Spec.Side
	}
	return p.cfg.Spec.Side.Opposite()
}

func (p *Position) publish() {
	var all []model.ConceptualOrder[model.ProtocolOrderId]
	controlled := p.controlledNotional()
	for _, snap := range p.snapshots {
		all = append(all, snap.Resolve(controlled)...)
	}

	p.cfg.Hub.RxChan() <- hub.HubRx{
		Key:               p.lastKey,
		PositionID:        p.cfg.ID,
		Orders:            all,
		RemainingNotional: p.remainingBudget(),
		Callback:          p.fillsChan,
	}
}

// controlledNotional is the budget protocol slot percentages resolve
// against: a protocol at 100% means "all of it", not "all of what's left",
// so this is target_notional during Acquisition and the amount being
// unwound during Followup — not the shrinking remaining budget.
func (p *Position) controlledNotional() decimal.Decimal {
	if p.phase == PhaseAcquisition {
		return p.cfg.Spec.TargetNotional
	}
	return p.remainingNotional
}

// applyFills is the Phase A/B fill-ingestion step spec.md §4.2 describes:
// accumulate notional, adopt the fresh coherence key, re-publish, and check
// for a phase transition or termination. It returns true when the position
// has reached its terminal state.
func (p *Position) applyFills(ctx context.Context, fills hub.ProtocolFills) (bool, error) {
	var delta decimal.Decimal
	for _, f := range fills.Fills {
		delta = delta.Add(f.FillQty)
	}
	if !delta.IsZero() {
		p.emitWithQty("fill", delta, fmt.Sprintf("applied fill delta=%s", delta))
	}

	switch p.phase {
	case PhaseAcquisition:
		p.acquiredNotional = p.acquiredNotional.Add(delta)
		if p.acquiredNotional.GreaterThan(p.cfg.Spec.TargetNotional.Add(p.cfg.QtyStep)) {
			return false, xerrors.Invariant("applying fill", fmt.Errorf("position %s: acquired_notional %s exceeds target_notional %s beyond tolerance",
				p.cfg.ID, p.acquiredNotional, p.cfg.Spec.TargetNotional))
		}
	case PhaseFollowup:
		p.remainingNotional = p.remainingNotional.Sub(delta)
	}
	p.lastKey = fills.Key

	if p.phase == PhaseAcquisition {
		threshold := p.cfg.Spec.TargetNotional.Sub(p.cfg.QtyStep)
		if p.acquiredNotional.GreaterThanOrEqual(threshold) {
			if err := p.transitionToFollowup(ctx); err != nil {
				return false, err
			}
			if p.phase == PhaseFollowup && len(p.cfg.FollowupProtocols) == 0 {
				// no followup protocols = immediate completion (§8 scenario 1)
				return true, nil
			}
			p.publish()
			return false, nil
		}
	} else {
		if p.remainingNotional.LessThanOrEqual(p.cfg.QtyStep) {
			return true, nil
		}
	}

	p.publish()
	return false, nil
}

// transitionToFollowup detaches acquisition protocols, flips phase, and (if
// there are any) attaches followup protocols on the opposite side targeting
// the amount just acquired.
func (p *Position) transitionToFollowup(ctx context.Context) error {
	p.detachCurrentPhase()
	p.phase = PhaseFollowup
	p.remainingNotional = p.acquiredNotional
	p.snapshots = make(map[model.Signature]model.ProtocolOrders)

	if len(p.cfg.FollowupProtocols) == 0 {
		log.Info().Str("position_id", p.cfg.ID.String()).
			Msg("position: acquisition complete, no followup protocols, terminating")
		return nil
	}

	log.Info().Str("position_id", p.cfg.ID.String()).
		Str("acquired_notional", p.acquiredNotional.String()).
		Msg("position: transitioning Acquisition -> Followup")
	p.emit("phase_transition", fmt.Sprintf("Acquisition -> Followup, acquired=%s", p.acquiredNotional))

	if err := p.attachPhase(ctx, p.cfg.FollowupProtocols, p.currentSide()); err != nil {
		return fmt.Errorf("position %s: while attaching followup protocols: %w", p.cfg.ID, err)
	}
	return nil
}

func (p *Position) attachPhase(ctx context.Context, specs []protocol.Instance, side model.Side) error {
	phaseCtx, cancel := context.WithCancel(ctx)
	wg := &sync.WaitGroup{}
	runtimes := make([]protocol.Runtime, 0, len(specs))

	for _, inst := range specs {
		rt, err := protocol.NewRuntime(inst, p.cfg.Feed)
		if err != nil {
			cancel()
			return fmt.Errorf("while constructing protocol runtime for %s: %w", inst.Signature(), err)
		}
		rt.Attach(phaseCtx, wg, p.protoChan, p.symbol, side)
		runtimes = append(runtimes, rt)
	}

	p.phaseCtx = phaseCtx
	p.phaseCancel = cancel
	p.phaseWg = wg
	p.runtimes = runtimes
	return nil
}

// detachCurrentPhase cancels the active phase's protocol tasks and joins
// them with a bounded timeout (spec.md §4.2: "joining their tasks with a
// bounded timeout").
func (p *Position) detachCurrentPhase() {
	if p.phaseCancel == nil {
		return
	}
	p.phaseCancel()

	done := make(chan struct{})
	wg := p.phaseWg
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(detachTimeout):
		log.Warn().Str("position_id", p.cfg.ID.String()).
			Msg("position: protocol tasks did not join within detach timeout, abandoning")
	}

	p.phaseCancel = nil
	p.phaseCtx = nil
	p.phaseWg = nil
	p.runtimes = nil
}
