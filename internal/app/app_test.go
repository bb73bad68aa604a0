package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"funding-arb-bot/internal/alerts"
	"funding-arb-bot/internal/config"
	"funding-arb-bot/internal/engine"
	"funding-arb-bot/internal/exec"
	"funding-arb-bot/internal/metrics"
	"funding-arb-bot/internal/state"
	"funding-arb-bot/internal/state/sqlite"
	"funding-arb-bot/internal/venue"

	"go.uber.org/zap"
)

type fakeAdapter struct {
	name string

	mu     sync.Mutex
	rate   float64
	mid    float64
	orders []venue.Order
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) FundingRate(ctx context.Context, symbol string) (float64, error) {
	_ = ctx
	_ = symbol
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rate, nil
}

func (f *fakeAdapter) MidPrice(ctx context.Context, symbol string) (float64, error) {
	_ = ctx
	_ = symbol
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mid, nil
}

func (f *fakeAdapter) PlaceOrder(ctx context.Context, order venue.Order) (string, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, order)
	return "oid-1", nil
}

func (f *fakeAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	_ = ctx
	_ = symbol
	_ = orderID
	return nil
}

func (f *fakeAdapter) setRate(rate float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rate = rate
}

func newTestApp(t *testing.T) (*App, *fakeAdapter, *fakeAdapter) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Engine = config.EngineConfig{
		Symbol:              "ETH",
		VenueA:              config.VenueHyperliquid,
		VenueB:              config.VenueBinance,
		MinFundingSpread:    0.0002,
		MaxPositionNotional: 10000,
		MaxDailyNotional:    50000,
		Leverage:            2,
		AutoCloseInterval:   8 * time.Hour,
		MaxBasisDivergence:  0.01,
		StopLossSpread:      -0.0001,
		VolatilityLookback:  24 * time.Hour,
		OpportunityInterval: time.Hour,
		SweepInterval:       time.Minute,
	}
	cfg.Hyperliquid.Symbol = "ETH"
	cfg.Binance.Symbol = "ETHUSDT"

	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	log := zap.NewNop()
	a := &App{
		cfg:       cfg,
		log:       log,
		store:     store,
		engine:    engine.New(cfg.Engine, time.Now().UTC()),
		adapters:  make(map[string]venue.Adapter),
		executors: make(map[string]*exec.Executor),
		metrics:   metrics.NewNoop(),
		alerts:    alerts.NewTelegram(config.TelegramConfig{Enabled: false}, log),
	}
	hl := &fakeAdapter{name: config.VenueHyperliquid, mid: 3000}
	bn := &fakeAdapter{name: config.VenueBinance, mid: 3000}
	a.registerAdapter(hl)
	a.registerAdapter(bn)
	return a, hl, bn
}

func TestOpportunityTickOpensPosition(t *testing.T) {
	a, hl, bn := newTestApp(t)
	hl.setRate(0.0005)
	bn.setRate(0.0002)

	if err := a.opportunityTick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	active := a.engine.ActivePositions()
	if len(active) != 1 {
		t.Fatalf("expected 1 active position, got %d", len(active))
	}
	if active[0].LongVenue != config.VenueHyperliquid {
		t.Fatalf("expected long hyperliquid, got %s", active[0].LongVenue)
	}

	snapshot, ok, err := state.LoadEngineSnapshot(context.Background(), a.store)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if !ok {
		t.Fatalf("expected snapshot persisted after open")
	}
	if len(snapshot.Positions) != 1 {
		t.Fatalf("expected 1 persisted position, got %d", len(snapshot.Positions))
	}
	if snapshot.DailyNotionalUsed != 10000 {
		t.Fatalf("expected persisted usage 10000, got %f", snapshot.DailyNotionalUsed)
	}
}

func TestOpportunityTickSkipsSentinelRates(t *testing.T) {
	a, hl, bn := newTestApp(t)
	hl.setRate(0)
	bn.setRate(0.0005)

	if err := a.opportunityTick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a.engine.ActivePositions()) != 0 {
		t.Fatalf("expected no positions for sentinel tick")
	}
}

func TestOpportunityTickRespectsPause(t *testing.T) {
	a, hl, bn := newTestApp(t)
	hl.setRate(0.0005)
	bn.setRate(0.0002)
	a.setPaused(true)

	if err := a.opportunityTick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a.engine.ActivePositions()) != 0 {
		t.Fatalf("expected pause to block entries")
	}
}

func TestOpportunityTickBelowThreshold(t *testing.T) {
	a, hl, bn := newTestApp(t)
	hl.setRate(0.00015)
	bn.setRate(0.00012)

	if err := a.opportunityTick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a.engine.ActivePositions()) != 0 {
		t.Fatalf("expected no position below threshold")
	}
}

func TestSweepTickClosesTimedOutPosition(t *testing.T) {
	a, hl, bn := newTestApp(t)
	hl.setRate(0.0005)
	bn.setRate(0.0002)

	entry := time.Now().UTC().Add(-9 * time.Hour)
	opp, ok := a.engine.CheckOpportunity(0.0005, 0.0002, entry)
	if !ok {
		t.Fatalf("expected opportunity")
	}
	if _, err := a.engine.OpenPosition(opp, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := a.sweepTick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a.engine.ActivePositions()) != 0 {
		t.Fatalf("expected timed out position closed")
	}
	all := a.engine.AllPositions()
	if len(all) != 1 || all[0].CloseReason != engine.CloseTimeout {
		t.Fatalf("expected timeout close, got %+v", all)
	}

	snapshot, ok, err := state.LoadEngineSnapshot(context.Background(), a.store)
	if err != nil || !ok {
		t.Fatalf("expected snapshot after sweep: %v", err)
	}
	if snapshot.Positions[0].Status != string(engine.StatusClosed) {
		t.Fatalf("expected persisted status closed, got %s", snapshot.Positions[0].Status)
	}
}

func TestSweepTickNoActivePositionsIsNoOp(t *testing.T) {
	a, _, _ := newTestApp(t)
	if err := a.sweepTick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok, _ := state.LoadEngineSnapshot(context.Background(), a.store); ok {
		t.Fatalf("expected no snapshot written by idle sweep")
	}
}
