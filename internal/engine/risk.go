package engine

import (
	"errors"
	"time"
)

const dailyResetInterval = 24 * time.Hour

var ErrCapacityExceeded = errors.New("daily notional capacity exceeded")

// Ledger tracks daily notional usage against the per-trade and per-day caps.
// The daily cap is a per-day flow cap, not a concurrent-exposure cap: closing
// a position early does not free same-day capacity.
type Ledger struct {
	maxPositionNotional float64
	maxDailyNotional    float64
	dailyUsed           float64
	lastReset           time.Time
}

func NewLedger(maxPositionNotional, maxDailyNotional float64, now time.Time) *Ledger {
	return &Ledger{
		maxPositionNotional: maxPositionNotional,
		maxDailyNotional:    maxDailyNotional,
		lastReset:           now,
	}
}

// CanOpen reports whether a full-size position still fits in today's budget.
// Admission is all-or-nothing against the configured per-trade cap: dust
// positions below max_position_notional are never opened out of residual
// capacity.
func (l *Ledger) CanOpen() bool {
	return l.maxDailyNotional-l.dailyUsed >= l.maxPositionNotional
}

// Reserve must only be called after a successful CanOpen check and before the
// position is constructed, on the same tick.
func (l *Ledger) Reserve(size float64) {
	l.dailyUsed += size
}

func (l *Ledger) ResetIfDue(now time.Time) bool {
	if now.Sub(l.lastReset) < dailyResetInterval {
		return false
	}
	l.dailyUsed = 0
	l.lastReset = now
	return true
}

func (l *Ledger) DailyNotionalUsed() float64 {
	return l.dailyUsed
}

func (l *Ledger) RemainingDailyCapacity() float64 {
	remaining := l.maxDailyNotional - l.dailyUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (l *Ledger) LastReset() time.Time {
	return l.lastReset
}

// restore reinstates persisted usage after a restart.
func (l *Ledger) restore(dailyUsed float64, lastReset time.Time) {
	if dailyUsed < 0 {
		dailyUsed = 0
	}
	if dailyUsed > l.maxDailyNotional {
		dailyUsed = l.maxDailyNotional
	}
	l.dailyUsed = dailyUsed
	if !lastReset.IsZero() {
		l.lastReset = lastReset
	}
}
