// Package app wires the decision engine to the venues and runs the trading
// loop. All engine mutation happens on one goroutine; the Telegram operator
// reads state from its own goroutine through the engine's locked accessors.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"funding-arb-bot/internal/alerts"
	"funding-arb-bot/internal/config"
	"funding-arb-bot/internal/engine"
	"funding-arb-bot/internal/exec"
	"funding-arb-bot/internal/metrics"
	"funding-arb-bot/internal/state"
	"funding-arb-bot/internal/state/sqlite"
	"funding-arb-bot/internal/timescale"
	"funding-arb-bot/internal/venue"
	"funding-arb-bot/internal/venue/binance"
	"funding-arb-bot/internal/venue/hyperliquid"

	"go.uber.org/zap"
)

type App struct {
	cfg       *config.Config
	log       *zap.Logger
	store     *sqlite.Store
	engine    *engine.Engine
	adapters  map[string]venue.Adapter
	executors map[string]*exec.Executor
	metrics   *metrics.Metrics
	prom      *metrics.Prometheus
	alerts    *alerts.Telegram
	writer    *timescale.Writer

	hl *hyperliquid.Adapter
	bn *binance.Adapter

	opsMu          sync.RWMutex
	paused         bool
	operatorWarned bool
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:       cfg,
		log:       log,
		store:     store,
		engine:    engine.New(cfg.Engine, time.Now().UTC()),
		adapters:  make(map[string]venue.Adapter),
		executors: make(map[string]*exec.Executor),
		metrics:   metrics.NewNoop(),
		alerts:    alerts.NewTelegram(cfg.Telegram, log),
	}
	if cfg.Metrics.Listen != "" {
		a.prom = metrics.NewPrometheus()
		a.metrics = a.prom.Metrics
	}

	if usesVenue(cfg, config.VenueHyperliquid) {
		a.hl = hyperliquid.New(cfg.Hyperliquid, log)
		if cfg.Execution.Enabled {
			walletAddress := strings.TrimSpace(os.Getenv("HL_WALLET_ADDRESS"))
			if walletAddress == "" {
				return nil, errors.New("HL_WALLET_ADDRESS is required when execution is enabled")
			}
			privateKey := strings.TrimSpace(os.Getenv("HL_PRIVATE_KEY"))
			if privateKey == "" {
				return nil, errors.New("HL_PRIVATE_KEY is required when execution is enabled")
			}
			if err := a.hl.EnableTrading(privateKey, walletAddress); err != nil {
				return nil, err
			}
		}
		a.registerAdapter(a.hl)
	}
	if usesVenue(cfg, config.VenueBinance) {
		apiKey := strings.TrimSpace(os.Getenv("BINANCE_API_KEY"))
		apiSecret := strings.TrimSpace(os.Getenv("BINANCE_API_SECRET"))
		if cfg.Execution.Enabled && (apiKey == "" || apiSecret == "") {
			return nil, errors.New("BINANCE_API_KEY and BINANCE_API_SECRET are required when execution is enabled")
		}
		a.bn = binance.New(cfg.Binance, apiKey, apiSecret, log)
		a.registerAdapter(a.bn)
	}

	writer, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		return nil, err
	}
	a.writer = writer
	return a, nil
}

func (a *App) registerAdapter(adapter venue.Adapter) {
	a.adapters[adapter.Name()] = adapter
	a.executors[adapter.Name()] = exec.New(adapter, a.store, a.log)
}

func usesVenue(cfg *config.Config, name string) bool {
	return cfg.Engine.VenueA == name || cfg.Engine.VenueB == name
}

func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()

	if err := a.restoreSnapshot(ctx); err != nil {
		return err
	}
	if a.hl != nil {
		if err := a.hl.Start(ctx); err != nil {
			return err
		}
	}
	if a.bn != nil && a.cfg.Execution.Enabled {
		if err := a.bn.EnableTrading(ctx, a.cfg.Engine.Leverage); err != nil {
			return err
		}
	}
	a.writer.Start(ctx)
	a.startMetricsServer(ctx)
	a.startOperator(ctx)

	a.log.Info("funding arb engine started",
		zap.String("symbol", a.cfg.Engine.Symbol),
		zap.String("venue_a", a.cfg.Engine.VenueA),
		zap.String("venue_b", a.cfg.Engine.VenueB),
		zap.Bool("execution_enabled", a.cfg.Execution.Enabled),
		zap.Int("active_positions", len(a.engine.ActivePositions())),
	)

	opportunityTicker := time.NewTicker(a.cfg.Engine.OpportunityInterval)
	defer opportunityTicker.Stop()
	sweepTicker := time.NewTicker(a.cfg.Engine.SweepInterval)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-opportunityTicker.C:
			if err := a.opportunityTick(ctx); err != nil {
				a.log.Warn("opportunity tick failed", zap.Error(err))
			}
		case <-sweepTicker.C:
			if err := a.sweepTick(ctx); err != nil {
				a.log.Warn("sweep tick failed", zap.Error(err))
			}
		}
	}
}

// fundingRates reads both venues. A venue failure maps to the zero sentinel,
// which the detector treats as "reading unavailable" and skips the tick.
func (a *App) fundingRates(ctx context.Context) (float64, float64) {
	rateA := a.fundingRate(ctx, a.cfg.Engine.VenueA)
	rateB := a.fundingRate(ctx, a.cfg.Engine.VenueB)
	return rateA, rateB
}

func (a *App) fundingRate(ctx context.Context, venueName string) float64 {
	adapter, ok := a.adapters[venueName]
	if !ok {
		return 0
	}
	rate, err := adapter.FundingRate(ctx, a.venueSymbol(venueName))
	if err != nil {
		a.log.Warn("funding rate fetch failed", zap.String("venue", venueName), zap.Error(err))
		return 0
	}
	return rate
}

func (a *App) venueSymbol(venueName string) string {
	switch venueName {
	case config.VenueHyperliquid:
		return a.cfg.Hyperliquid.Symbol
	case config.VenueBinance:
		return a.cfg.Binance.Symbol
	default:
		return a.cfg.Engine.Symbol
	}
}

func (a *App) opportunityTick(ctx context.Context) error {
	now := time.Now().UTC()
	rateA, rateB := a.fundingRates(ctx)
	if rateA == 0 || rateB == 0 {
		a.metrics.TicksSkipped.Inc()
	}

	opp, ok := a.engine.CheckOpportunity(rateA, rateB, now)

	vol := a.engine.CurrentVolatility()
	threshold := engine.EffectiveThreshold(
		a.cfg.Engine.MinFundingSpread,
		a.cfg.Engine.UseDynamicSpread,
		a.cfg.Engine.SpreadBufferMultiplier,
		vol,
	)
	if a.writer != nil && rateA != 0 && rateB != 0 {
		a.writer.EnqueueSpread(timescale.FundingSpread{
			Time:       now,
			Symbol:     a.cfg.Engine.Symbol,
			VenueA:     a.cfg.Engine.VenueA,
			VenueB:     a.cfg.Engine.VenueB,
			RateA:      rateA,
			RateB:      rateB,
			Spread:     rateA - rateB,
			Volatility: vol,
			Threshold:  threshold,
		})
	}
	if !ok {
		return nil
	}
	a.metrics.OpportunitiesDetected.Inc()
	a.log.Info("opportunity detected",
		zap.String("long_venue", opp.LongVenue),
		zap.String("short_venue", opp.ShortVenue),
		zap.Float64("spread", opp.Spread),
		zap.Float64("threshold", opp.EffectiveThreshold),
	)
	if a.isPaused() {
		a.log.Info("trading paused, skipping entry")
		return nil
	}

	pos, err := a.engine.OpenPosition(opp, now)
	if err != nil {
		if errors.Is(err, engine.ErrCapacityExceeded) {
			a.metrics.AdmissionRejected.Inc()
			a.log.Info("entry rejected by daily cap",
				zap.Float64("daily_used", a.engine.DailyNotionalUsed()),
				zap.Float64("max_daily", a.cfg.Engine.MaxDailyNotional),
			)
			return nil
		}
		return err
	}
	a.metrics.PositionsOpened.Inc()
	a.log.Info("position opened",
		zap.String("position_id", pos.ID),
		zap.String("long_venue", pos.LongVenue),
		zap.String("short_venue", pos.ShortVenue),
		zap.Float64("notional", pos.Notional),
		zap.Float64("entry_spread", pos.EntrySpread),
	)

	if a.cfg.Execution.Enabled {
		if err := a.placeHedge(ctx, pos); err != nil {
			a.log.Error("hedge placement failed", zap.String("position_id", pos.ID), zap.Error(err))
			a.notify(ctx, fmt.Sprintf("hedge placement failed for %s: %v", pos.ID, err))
		}
	}

	a.recordPositionEvent(ctx, "open", pos, now)
	a.notify(ctx, fmt.Sprintf("Opened %s hedge: long %s / short %s, notional %.2f, spread %.6f",
		pos.Symbol, pos.LongVenue, pos.ShortVenue, pos.Notional, pos.EntrySpread))
	return a.saveSnapshot(ctx, now)
}

func (a *App) sweepTick(ctx context.Context) error {
	now := time.Now().UTC()
	if len(a.engine.ActivePositions()) == 0 {
		return nil
	}

	obs := a.observe(ctx)
	closed := a.engine.SweepPositions(now, obs)
	if len(closed) == 0 {
		return nil
	}
	for _, pos := range closed {
		a.metrics.PositionsClosed.Inc()
		a.log.Info("position closed",
			zap.String("position_id", pos.ID),
			zap.String("reason", string(pos.CloseReason)),
			zap.Duration("held", pos.CloseTime.Sub(pos.EntryTime)),
		)
		if a.cfg.Execution.Enabled {
			if err := a.unwindHedge(ctx, pos); err != nil {
				a.log.Error("hedge unwind failed", zap.String("position_id", pos.ID), zap.Error(err))
				a.notify(ctx, fmt.Sprintf("hedge unwind failed for %s: %v", pos.ID, err))
			}
		}
		a.recordPositionEvent(ctx, "close", pos, now)
		a.notify(ctx, fmt.Sprintf("Closed %s hedge (%s): long %s / short %s, notional %.2f",
			pos.Symbol, pos.CloseReason, pos.LongVenue, pos.ShortVenue, pos.Notional))
	}
	return a.saveSnapshot(ctx, now)
}

// observe gathers live readings for the sweep. Missing readings disable the
// checks that depend on them rather than failing the whole sweep.
func (a *App) observe(ctx context.Context) engine.MarketObservation {
	obs := engine.MarketObservation{Mids: make(map[string]float64)}
	for name, adapter := range a.adapters {
		mid, err := adapter.MidPrice(ctx, a.venueSymbol(name))
		if err != nil {
			a.log.Warn("mid price fetch failed", zap.String("venue", name), zap.Error(err))
			continue
		}
		obs.Mids[name] = mid
	}
	rateA, rateB := a.fundingRates(ctx)
	if rateA != 0 && rateB != 0 {
		obs.Spread = rateA - rateB
		obs.HasSpread = true
	}
	return obs
}

// placeHedge submits both legs as aggressive IOC-style limits priced through
// the book by the configured slippage allowance. Client order ids derive from
// the position id so a retried tick cannot double-fill a leg.
func (a *App) placeHedge(ctx context.Context, pos engine.Position) error {
	legs := []struct {
		venueName string
		side      venue.Side
		suffix    string
	}{
		{pos.LongVenue, venue.SideBuy, "long"},
		{pos.ShortVenue, venue.SideSell, "short"},
	}
	for _, leg := range legs {
		if err := a.placeLeg(ctx, leg.venueName, leg.side, pos, leg.suffix, false); err != nil {
			return fmt.Errorf("%s leg on %s: %w", leg.suffix, leg.venueName, err)
		}
	}
	return nil
}

// unwindHedge closes both legs with reduce-only orders in the opposite
// directions.
func (a *App) unwindHedge(ctx context.Context, pos engine.Position) error {
	legs := []struct {
		venueName string
		side      venue.Side
		suffix    string
	}{
		{pos.LongVenue, venue.SideSell, "unwind-long"},
		{pos.ShortVenue, venue.SideBuy, "unwind-short"},
	}
	for _, leg := range legs {
		if err := a.placeLeg(ctx, leg.venueName, leg.side, pos, leg.suffix, true); err != nil {
			return fmt.Errorf("%s leg on %s: %w", leg.suffix, leg.venueName, err)
		}
	}
	return nil
}

func (a *App) placeLeg(ctx context.Context, venueName string, side venue.Side, pos engine.Position, suffix string, reduceOnly bool) error {
	adapter, ok := a.adapters[venueName]
	if !ok {
		return fmt.Errorf("no adapter for venue %s", venueName)
	}
	executor := a.executors[venueName]
	symbol := a.venueSymbol(venueName)
	mid, err := adapter.MidPrice(ctx, symbol)
	if err != nil {
		return fmt.Errorf("mid price: %w", err)
	}
	if mid <= 0 {
		return fmt.Errorf("invalid mid price %f", mid)
	}
	slip := a.cfg.Execution.SlippageBps / 10000
	price := mid * (1 + slip)
	if side == venue.SideSell {
		price = mid * (1 - slip)
	}
	order := venue.Order{
		Symbol:        symbol,
		Side:          side,
		Type:          venue.OrderTypeMarket,
		Size:          pos.Notional / mid,
		Price:         price,
		ReduceOnly:    reduceOnly,
		ClientOrderID: pos.ID + ":" + suffix,
	}
	orderID, err := executor.PlaceOrder(ctx, order)
	if err != nil {
		a.metrics.OrdersFailed.Inc()
		return err
	}
	a.metrics.OrdersPlaced.Inc()
	a.log.Info("order placed",
		zap.String("venue", venueName),
		zap.String("order_id", orderID),
		zap.String("side", string(side)),
		zap.Float64("size", order.Size),
		zap.Float64("price", price),
	)
	return nil
}

func (a *App) recordPositionEvent(ctx context.Context, event string, pos engine.Position, now time.Time) {
	payload, err := json.Marshal(map[string]any{
		"event":        event,
		"position_id":  pos.ID,
		"symbol":       pos.Symbol,
		"long_venue":   pos.LongVenue,
		"short_venue":  pos.ShortVenue,
		"notional":     pos.Notional,
		"entry_spread": pos.EntrySpread,
		"close_reason": string(pos.CloseReason),
	})
	if err == nil {
		if err := a.store.Append(ctx, "position_"+event, string(payload), now); err != nil {
			a.log.Warn("audit append failed", zap.Error(err))
		}
	}
	if a.writer != nil {
		a.writer.EnqueueEvent(timescale.PositionEvent{
			Time:        now,
			PositionID:  pos.ID,
			Event:       event,
			Symbol:      pos.Symbol,
			LongVenue:   pos.LongVenue,
			ShortVenue:  pos.ShortVenue,
			Notional:    pos.Notional,
			EntrySpread: pos.EntrySpread,
			CloseReason: string(pos.CloseReason),
		})
	}
}

func (a *App) notify(ctx context.Context, message string) {
	if err := a.alerts.Send(ctx, message); err != nil {
		a.log.Warn("telegram alert failed", zap.Error(err))
	}
}

func (a *App) restoreSnapshot(ctx context.Context) error {
	snapshot, ok, err := state.LoadEngineSnapshot(ctx, a.store)
	if err != nil {
		return fmt.Errorf("load engine snapshot: %w", err)
	}
	if !ok {
		return nil
	}
	positions := make([]engine.Position, 0, len(snapshot.Positions))
	for _, rec := range snapshot.Positions {
		pos := engine.Position{
			ID:          rec.ID,
			Symbol:      rec.Symbol,
			LongVenue:   rec.LongVenue,
			ShortVenue:  rec.ShortVenue,
			Notional:    rec.Notional,
			Leverage:    rec.Leverage,
			EntryTime:   time.UnixMilli(rec.EntryTimeMS).UTC(),
			EntrySpread: rec.EntrySpread,
			Status:      engine.PositionStatus(rec.Status),
			CloseReason: engine.CloseReason(rec.CloseReason),
		}
		if rec.CloseTimeMS > 0 {
			pos.CloseTime = time.UnixMilli(rec.CloseTimeMS).UTC()
		}
		positions = append(positions, pos)
	}
	a.engine.Restore(snapshot.DailyNotionalUsed, time.UnixMilli(snapshot.LastResetMS).UTC(), positions)
	a.log.Info("engine state restored",
		zap.Int("positions", len(positions)),
		zap.Float64("daily_used", snapshot.DailyNotionalUsed),
	)
	return nil
}

func (a *App) saveSnapshot(ctx context.Context, now time.Time) error {
	all := a.engine.AllPositions()
	records := make([]state.PositionRecord, 0, len(all))
	for _, pos := range all {
		rec := state.PositionRecord{
			ID:          pos.ID,
			Symbol:      pos.Symbol,
			LongVenue:   pos.LongVenue,
			ShortVenue:  pos.ShortVenue,
			Notional:    pos.Notional,
			Leverage:    pos.Leverage,
			EntryTimeMS: pos.EntryTime.UnixMilli(),
			EntrySpread: pos.EntrySpread,
			Status:      string(pos.Status),
			CloseReason: string(pos.CloseReason),
		}
		if !pos.CloseTime.IsZero() {
			rec.CloseTimeMS = pos.CloseTime.UnixMilli()
		}
		records = append(records, rec)
	}
	snapshot := state.EngineSnapshot{
		DailyNotionalUsed: a.engine.DailyNotionalUsed(),
		LastResetMS:       a.engine.LastReset().UnixMilli(),
		Positions:         records,
		UpdatedAtMS:       now.UnixMilli(),
	}
	if err := state.SaveEngineSnapshot(ctx, a.store, snapshot); err != nil {
		return fmt.Errorf("save engine snapshot: %w", err)
	}
	return nil
}

func (a *App) startMetricsServer(ctx context.Context) {
	if a.prom == nil || a.cfg.Metrics.Listen == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.prom.Handler())
	server := &http.Server{Addr: a.cfg.Metrics.Listen, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server failed", zap.Error(err))
		}
	}()
}
