package engine

import (
	"sync"
	"time"

	"funding-arb-bot/internal/config"
)

// Engine ties the tracker, detector, ledger and book together behind one
// mutex. Within the orchestrator everything runs on a single timeline, but
// the operator surface reads engine state from another goroutine, so all
// mutation is serialized here.
type Engine struct {
	mu       sync.Mutex
	cfg      config.EngineConfig
	tracker  *Tracker
	detector *Detector
	ledger   *Ledger
	book     *Book
}

func New(cfg config.EngineConfig, now time.Time) *Engine {
	tracker := NewTracker(cfg.VolatilityLookback)
	ledger := NewLedger(cfg.MaxPositionNotional, cfg.MaxDailyNotional, now)
	return &Engine{
		cfg:      cfg,
		tracker:  tracker,
		detector: NewDetector(cfg.VenueA, cfg.VenueB, cfg.MinFundingSpread, cfg.UseDynamicSpread, cfg.SpreadBufferMultiplier, tracker),
		ledger:   ledger,
		book:     NewBook(cfg.MaxPositionNotional, cfg.AutoCloseInterval, cfg.MaxBasisDivergence, cfg.StopLossSpread, cfg.Leverage, ledger),
	}
}

// CheckOpportunity runs one detection tick. The daily reset is applied before
// detection so that admission later on the same tick sees fresh capacity.
func (e *Engine) CheckOpportunity(rateA, rateB float64, now time.Time) (Opportunity, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ledger.ResetIfDue(now)
	return e.detector.Detect(rateA, rateB, now)
}

func (e *Engine) OpenPosition(opp Opportunity, now time.Time) (Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, err := e.book.Open(opp, e.cfg.Symbol, now)
	if err != nil {
		return Position{}, err
	}
	return *pos, nil
}

func (e *Engine) SweepPositions(now time.Time, obs MarketObservation) []Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ledger.ResetIfDue(now)
	return e.book.Sweep(now, obs)
}

func (e *Engine) SpreadHistory() []SpreadSample {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.Samples()
}

func (e *Engine) CurrentVolatility() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.Volatility()
}

func (e *Engine) ActivePositions() []Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.ActivePositions()
}

func (e *Engine) AllPositions() []Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.AllPositions()
}

func (e *Engine) DailyNotionalUsed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.DailyNotionalUsed()
}

func (e *Engine) LastReset() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.LastReset()
}

// Restore reloads persisted ledger usage and positions at startup. Open
// positions survive a shutdown; nothing is auto-liquidated.
func (e *Engine) Restore(dailyUsed float64, lastReset time.Time, positions []Position) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ledger.restore(dailyUsed, lastReset)
	e.book.restore(positions)
}
