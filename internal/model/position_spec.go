package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PositionSpec is the human-issued intent: change exposure on coin by
// target_notional USDT on the given side.
type PositionSpec struct {
	Coin           string
	Side           Side
	TargetNotional decimal.Decimal
	Timeframe      time.Duration // zero means unset
}

// NewPositionSpecFromSignedSize derives a PositionSpec from a signed USDT
// notional the way the CLI's `run`/`adjust-pos` flags do: positive is Buy,
// negative is Sell.
func NewPositionSpecFromSignedSize(coin string, sizeUSDT decimal.Decimal, timeframe time.Duration) (PositionSpec, error) {
	if sizeUSDT.IsZero() {
		return PositionSpec{}, fmt.Errorf("size_usdt must be nonzero")
	}
	side := Buy
	if sizeUSDT.IsNegative() {
		side = Sell
	}
	return PositionSpec{
		Coin:           coin,
		Side:           side,
		TargetNotional: sizeUSDT.Abs(),
		Timeframe:      timeframe,
	}, nil
}

// PositionID is a time-ordered identifier minted once at position creation.
type PositionID struct{ uuid.UUID }

// NewPositionID mints a fresh, never-reused position identity.
func NewPositionID() (PositionID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return PositionID{}, fmt.Errorf("while minting position id: %w", err)
	}
	return PositionID{id}, nil
}

func (p PositionID) String() string { return p.UUID.String() }
