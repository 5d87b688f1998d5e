// Package ledger is the optional local audit trail SPEC_FULL.md §4.7 adds:
// one row per phase transition and per applied fill, written to a sqlite
// file under --artifacts via gorm, the same way the teacher's
// internal/database/database.go opens a gorm.DB and AutoMigrates its models
// — generalized from "trade history" rows to "position lifecycle event"
// rows. Read-only at runtime by the core; never used for restart recovery
// (spec.md §1 Non-goals keep the core in-memory-only).
package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Event is one audited row: a phase transition or an applied fill.
type Event struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	PositionID string `gorm:"index"`
	Phase      string
	Kind       string // "phase_transition" | "fill" | "close"
	Notional   decimal.Decimal `gorm:"type:decimal(20,8)"`
	Detail     string
	At         time.Time `gorm:"index"`
}

func (Event) TableName() string { return "position_events" }

// Ledger wraps the gorm.DB handle.
type Ledger struct {
	db *gorm.DB
}

// Open opens (creating if absent) a sqlite database at artifactsDir/ledger.db
// and migrates the Event model, mirroring the teacher's New(dbPath) shape.
func Open(artifactsDir string) (*Ledger, error) {
	if err := os.MkdirAll(artifactsDir, 0o755); err != nil {
		return nil, fmt.Errorf("while creating artifacts dir %s: %w", artifactsDir, err)
	}
	dbPath := filepath.Join(artifactsDir, "ledger.db")

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("while opening ledger at %s: %w", dbPath, err)
	}
	if err := db.AutoMigrate(&Event{}); err != nil {
		return nil, fmt.Errorf("while migrating ledger schema: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("ledger: sqlite audit log ready")
	return &Ledger{db: db}, nil
}

// RecordPhaseTransition appends one row for an Acquisition<->Followup
// transition (or initial attach / terminal close).
func (l *Ledger) RecordPhaseTransition(positionID, phase, detail string) error {
	return l.append(Event{PositionID: positionID, Phase: phase, Kind: "phase_transition", Detail: detail, At: time.Now()})
}

// RecordFill appends one row for an applied fill.
func (l *Ledger) RecordFill(positionID, phase string, qty decimal.Decimal, detail string) error {
	return l.append(Event{PositionID: positionID, Phase: phase, Kind: "fill", Notional: qty, Detail: detail, At: time.Now()})
}

// RecordClose appends the terminal row for a position.
func (l *Ledger) RecordClose(positionID, phase, detail string) error {
	return l.append(Event{PositionID: positionID, Phase: phase, Kind: "close", Detail: detail, At: time.Now()})
}

func (l *Ledger) append(e Event) error {
	if err := l.db.Create(&e).Error; err != nil {
		return fmt.Errorf("while appending ledger event: %w", err)
	}
	return nil
}

// History returns every recorded event for one position, oldest first —
// backs the `discretionary-engine history <position_id>` subcommand.
func (l *Ledger) History(positionID string) ([]Event, error) {
	var events []Event
	if err := l.db.Where("position_id = ?", positionID).Order("at asc").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("while querying ledger history for %s: %w", positionID, err)
	}
	return events, nil
}

// Close releases the underlying sqlite connection.
func (l *Ledger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return fmt.Errorf("while obtaining underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}
