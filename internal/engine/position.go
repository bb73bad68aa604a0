package engine

import (
	"math"
	"time"

	"github.com/google/uuid"
)

type PositionStatus string

const (
	StatusActive PositionStatus = "active"
	StatusClosed PositionStatus = "closed"
)

type CloseReason string

const (
	CloseTimeout         CloseReason = "auto-close-timeout"
	CloseBasisDivergence CloseReason = "basis-divergence"
	CloseStopLoss        CloseReason = "stop-loss"
)

// Position is one open (or historical) delta-neutral hedge. Positions are
// created only through Book.Open and mutated only by Book.Sweep; they are
// never deleted, only marked closed, so the book doubles as an audit trail.
type Position struct {
	ID          string
	Symbol      string
	LongVenue   string
	ShortVenue  string
	Notional    float64
	Leverage    int
	EntryTime   time.Time
	EntrySpread float64
	Status      PositionStatus
	CloseTime   time.Time
	CloseReason CloseReason
}

// MarketObservation carries the live readings a sweep needs. The book never
// does I/O; mark prices and the current spread are supplied by the caller,
// and checks that depend on a missing reading are skipped for that sweep.
type MarketObservation struct {
	Spread    float64
	HasSpread bool
	Mids      map[string]float64
}

// Book owns the position set and applies the lifecycle rules on each sweep.
type Book struct {
	maxPositionNotional float64
	autoCloseInterval   time.Duration
	maxBasisDivergence  float64
	stopLossSpread      float64
	leverage            int

	ledger    *Ledger
	positions []*Position
}

func NewBook(maxPositionNotional float64, autoCloseInterval time.Duration, maxBasisDivergence, stopLossSpread float64, leverage int, ledger *Ledger) *Book {
	return &Book{
		maxPositionNotional: maxPositionNotional,
		autoCloseInterval:   autoCloseInterval,
		maxBasisDivergence:  maxBasisDivergence,
		stopLossSpread:      stopLossSpread,
		leverage:            leverage,
		ledger:              ledger,
	}
}

// Open admits a new position against the ledger and constructs it. The order
// is load-bearing: admission check, then reserve, then construct, all on the
// same tick, so daily usage can never overshoot the cap.
func (b *Book) Open(opp Opportunity, symbol string, now time.Time) (*Position, error) {
	if !b.ledger.CanOpen() {
		return nil, ErrCapacityExceeded
	}
	size := math.Min(b.maxPositionNotional, b.ledger.RemainingDailyCapacity())
	b.ledger.Reserve(size)
	pos := &Position{
		ID:          uuid.NewString(),
		Symbol:      symbol,
		LongVenue:   opp.LongVenue,
		ShortVenue:  opp.ShortVenue,
		Notional:    size,
		Leverage:    b.leverage,
		EntryTime:   now,
		EntrySpread: opp.Spread,
		Status:      StatusActive,
	}
	b.positions = append(b.positions, pos)
	return pos, nil
}

// Sweep closes every active position that meets any exit condition and
// returns the positions closed by this call. Already-closed positions are
// untouched, so sweeping twice at the same instant is a no-op the second
// time.
func (b *Book) Sweep(now time.Time, obs MarketObservation) []Position {
	var closed []Position
	for _, pos := range b.positions {
		if pos.Status != StatusActive {
			continue
		}
		reason, hit := b.exitReason(pos, now, obs)
		if !hit {
			continue
		}
		pos.Status = StatusClosed
		pos.CloseTime = now
		pos.CloseReason = reason
		closed = append(closed, *pos)
	}
	return closed
}

func (b *Book) exitReason(pos *Position, now time.Time, obs MarketObservation) (CloseReason, bool) {
	if now.Sub(pos.EntryTime) >= b.autoCloseInterval {
		return CloseTimeout, true
	}
	if div, ok := basisDivergence(pos, obs.Mids); ok && div > b.maxBasisDivergence {
		return CloseBasisDivergence, true
	}
	if obs.HasSpread && spreadMoveAgainstEntry(pos.EntrySpread, obs.Spread) < b.stopLossSpread {
		return CloseStopLoss, true
	}
	return "", false
}

// basisDivergence is the relative drift between the two venues' mark prices,
// measured against their midpoint.
func basisDivergence(pos *Position, mids map[string]float64) (float64, bool) {
	if mids == nil {
		return 0, false
	}
	longMid, ok := mids[pos.LongVenue]
	if !ok || longMid <= 0 {
		return 0, false
	}
	shortMid, ok := mids[pos.ShortVenue]
	if !ok || shortMid <= 0 {
		return 0, false
	}
	ref := (longMid + shortMid) / 2
	return math.Abs(longMid-shortMid) / ref, true
}

// spreadMoveAgainstEntry signs the spread change so that negative always
// means "against the position", regardless of which direction was entered.
func spreadMoveAgainstEntry(entrySpread, currentSpread float64) float64 {
	move := currentSpread - entrySpread
	if entrySpread < 0 {
		move = -move
	}
	return move
}

func (b *Book) ActivePositions() []Position {
	var out []Position
	for _, pos := range b.positions {
		if pos.Status == StatusActive {
			out = append(out, *pos)
		}
	}
	return out
}

func (b *Book) AllPositions() []Position {
	out := make([]Position, 0, len(b.positions))
	for _, pos := range b.positions {
		out = append(out, *pos)
	}
	return out
}

// restore reinstates persisted positions after a restart. Notional already
// counted in the ledger snapshot is not re-reserved here.
func (b *Book) restore(positions []Position) {
	b.positions = b.positions[:0]
	for i := range positions {
		pos := positions[i]
		b.positions = append(b.positions, &pos)
	}
}
