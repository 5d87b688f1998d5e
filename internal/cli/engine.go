// Package cli wires every core package into the cobra command tree spec.md
// §6 describes, grounded on NimbleMarkets-dbn-go's cmd/dbn-go-hist/main.go
// rootCmd/AddCommand/PersistentFlags shape. Engine is the long-lived set of
// collaborators (Hub, venue adapters, ledger, notifier) that every
// subcommand acts against; `start` boots it once and keeps it running,
// while `run`/`adjust-pos`/`nuke` boot a short-lived one for a single
// action when invoked directly (not via the command bus).
package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/discretionary-eng/discretionary-engine/internal/adapter"
	"github.com/discretionary-eng/discretionary-engine/internal/adapter/binance"
	"github.com/discretionary-eng/discretionary-engine/internal/config"
	"github.com/discretionary-eng/discretionary-engine/internal/hub"
	"github.com/discretionary-eng/discretionary-engine/internal/ledger"
	"github.com/discretionary-eng/discretionary-engine/internal/model"
	"github.com/discretionary-eng/discretionary-engine/internal/notify"
	"github.com/discretionary-eng/discretionary-engine/internal/notify/telegram"
	"github.com/discretionary-eng/discretionary-engine/internal/position"
	"github.com/discretionary-eng/discretionary-engine/internal/protocol"
	"github.com/discretionary-eng/discretionary-engine/internal/risk"
	"github.com/discretionary-eng/discretionary-engine/internal/telemetry"
	"github.com/discretionary-eng/discretionary-engine/internal/xerrors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Engine holds every long-lived collaborator a position intent needs.
type Engine struct {
	cfg      *config.Config
	hub      *hub.Hub
	binance  *binance.Client
	adapters map[model.Market]adapter.Adapter
	breaker  *risk.ConnectionBreaker
	ledger   *ledger.Ledger
	notifier notify.Notifier

	mu        sync.Mutex
	positions map[string]*runningPosition // keyed by coin
}

type runningPosition struct {
	pos    *position.Position
	cancel context.CancelFunc
}

// Boot constructs every collaborator and starts the Hub and adapter
// reconciliation loops in the background. The returned Engine is ready to
// accept position intents.
func Boot(ctx context.Context, cfg *config.Config) (*Engine, error) {
	bc := binance.New(binance.Config{
		APIKey:    cfg.Binance.APIKey,
		APISecret: cfg.Binance.APISecret,
		Testnet:   cfg.Testnet,
	})

	adapters := map[model.Market]adapter.Adapter{
		model.BinanceFutures: bc,
	}
	precision := map[model.Market]hub.PrecisionProvider{
		model.BinanceFutures: bc,
	}

	h := hub.New(precision)

	l, err := ledger.Open(cfg.ArtifactsDir)
	if err != nil {
		return nil, xerrors.Configuration("while opening ledger", err)
	}

	notifier, err := telegram.New()
	if err != nil {
		return nil, xerrors.Configuration("while constructing notifier", err)
	}

	breaker := risk.NewConnectionBreaker(risk.DefaultConnectionFailureBudget, func() {
		notifier.FatalError(fmt.Errorf("connection-failure budget exhausted"))
	})

	e := &Engine{
		cfg:       cfg,
		hub:       h,
		binance:   bc,
		adapters:  adapters,
		breaker:   breaker,
		ledger:    l,
		notifier:  notifier,
		positions: make(map[string]*runningPosition),
	}

	go h.Run(ctx)

	for market, a := range adapters {
		ordersRx, ok := h.Passforwards(market)
		if !ok {
			continue
		}
		go func(market model.Market, a adapter.Adapter) {
			if err := a.Run(ctx, ordersRx, h.CallbackChan()); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Str("venue", string(market)).Msg("cli: adapter run loop exited")
				breaker.ReportConnectionFailure()
				telemetry.ConnectionFailuresTotal.Inc()
			}
		}(market, a)
	}

	if cfg.Metrics.Enabled {
		go func() {
			if err := telemetry.Serve(ctx, cfg.Metrics.Addr); err != nil {
				log.Error().Err(err).Msg("cli: telemetry server exited")
			}
		}()
	}

	return e, nil
}

// SubmitRun constructs a Position in Phase Acquisition and runs it in the
// background, tracked under spec.Coin.
func (e *Engine) SubmitRun(ctx context.Context, spec model.PositionSpec, acquisition, followup []string) error {
	acqInstances, err := parseProtocols(acquisition)
	if err != nil {
		return err
	}
	if len(acqInstances) == 0 {
		return fmt.Errorf("run: at least one acquisition protocol (-a) is required")
	}
	followInstances, err := parseProtocols(followup)
	if err != nil {
		return err
	}

	id, err := model.NewPositionID()
	if err != nil {
		return fmt.Errorf("while minting position id: %w", err)
	}

	pos, err := position.New(position.Config{
		ID:                   id,
		Spec:                 spec,
		Market:               model.BinanceFutures,
		AcquisitionProtocols: acqInstances,
		FollowupProtocols:    followInstances,
		Feed:                 e.binance,
		Hub:                  e.hub,
		QtyStep:              smallestQtyStep,
		OnEvent:              e.ledgerAndNotifyHook(id),
	})
	if err != nil {
		return fmt.Errorf("while constructing position: %w", err)
	}

	posCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.positions[spec.Coin] = &runningPosition{pos: pos, cancel: cancel}
	e.mu.Unlock()

	go func() {
		telemetry.PositionsActive.Inc()
		defer telemetry.PositionsActive.Dec()
		if err := pos.Run(posCtx); err != nil && posCtx.Err() == nil {
			log.Error().Err(err).Str("position_id", id.String()).Msg("cli: position terminated with error")
			e.notifier.FatalError(err)
		}
		e.mu.Lock()
		delete(e.positions, spec.Coin)
		e.mu.Unlock()
	}()

	return nil
}

// Shutdown cancels every tracked position's context and closes the ledger.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	for _, rp := range e.positions {
		rp.cancel()
	}
	e.mu.Unlock()
	if err := e.ledger.Close(); err != nil {
		log.Warn().Err(err).Msg("cli: error closing ledger")
	}
}

// Nuke requests immediate close of the tracked position for coin, if any.
func (e *Engine) Nuke(coin string) (found bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rp, ok := e.positions[coin]
	if !ok {
		return false
	}
	rp.pos.RequestClose()
	return true
}

func (e *Engine) ledgerAndNotifyHook(positionID model.PositionID) func(event, phase string, qty decimal.Decimal, detail string) {
	return func(event, phase string, qty decimal.Decimal, detail string) {
		switch event {
		case "opened":
			_ = e.ledger.RecordPhaseTransition(positionID.String(), phase, detail)
			e.notifier.PositionOpened(positionID.String(), "", detail)
		case "fill":
			_ = e.ledger.RecordFill(positionID.String(), phase, qty, detail)
		case "phase_transition":
			_ = e.ledger.RecordPhaseTransition(positionID.String(), phase, detail)
			e.notifier.PhaseTransition(positionID.String(), phase, detail)
		case "closed":
			_ = e.ledger.RecordClose(positionID.String(), phase, detail)
			e.notifier.PositionClosed(positionID.String(), detail)
		}
	}
}

// smallestQtyStep is the epsilon fallback used before per-symbol instrument
// metadata is known; real rounding happens at hub_process_orders time
// against the adapter's InstrumentMeta, so this only bounds the position's
// own completion check.
var smallestQtyStep = decimal.NewFromFloat(0.00000001)

func parseProtocols(specs []string) ([]protocol.Instance, error) {
	out := make([]protocol.Instance, 0, len(specs))
	for _, s := range specs {
		inst, err := protocol.Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}
