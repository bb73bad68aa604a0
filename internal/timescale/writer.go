// Package timescale persists funding spreads and position events to a
// TimescaleDB instance for offline analysis. Writes are asynchronous and
// dropped when the queue is full so the trading loop never blocks on the
// database.
package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"funding-arb-bot/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

type FundingSpread struct {
	Time       time.Time
	Symbol     string
	VenueA     string
	VenueB     string
	RateA      float64
	RateB      float64
	Spread     float64
	Volatility float64
	Threshold  float64
}

type PositionEvent struct {
	Time        time.Time
	PositionID  string
	Event       string
	Symbol      string
	LongVenue   string
	ShortVenue  string
	Notional    float64
	EntrySpread float64
	CloseReason string
}

type Writer struct {
	db         *sql.DB
	log        *zap.Logger
	schema     string
	spreads    chan FundingSpread
	events     chan PositionEvent
	started    atomic.Bool
	dropSpread atomic.Uint64
	dropEvent  atomic.Uint64
}

func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:      db,
		log:     log,
		schema:  schema,
		spreads: make(chan FundingSpread, queueSize),
		events:  make(chan PositionEvent, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueueSpread(spread FundingSpread) {
	if w == nil {
		return
	}
	select {
	case w.spreads <- spread:
		return
	default:
		if w.dropSpread.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale spread queue full")
		}
	}
}

func (w *Writer) EnqueueEvent(event PositionEvent) {
	if w == nil {
		return
	}
	select {
	case w.events <- event:
		return
	default:
		if w.dropEvent.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale event queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case spread := <-w.spreads:
			w.writeSpread(ctx, spread)
		case event := <-w.events:
			w.writeEvent(ctx, event)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		symbol TEXT NOT NULL,
		venue_a TEXT NOT NULL,
		venue_b TEXT NOT NULL,
		rate_a DOUBLE PRECISION NOT NULL,
		rate_b DOUBLE PRECISION NOT NULL,
		spread DOUBLE PRECISION NOT NULL,
		volatility DOUBLE PRECISION NOT NULL,
		threshold DOUBLE PRECISION NOT NULL
	)`, w.table("funding_spreads"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		position_id TEXT NOT NULL,
		event TEXT NOT NULL,
		symbol TEXT NOT NULL,
		long_venue TEXT NOT NULL,
		short_venue TEXT NOT NULL,
		notional DOUBLE PRECISION NOT NULL,
		entry_spread DOUBLE PRECISION NOT NULL,
		close_reason TEXT NOT NULL DEFAULT ''
	)`, w.table("position_events"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("funding_spreads"))); err != nil && w.log != nil {
		w.log.Warn("timescale funding_spreads hypertable create failed", zap.Error(err))
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("position_events"))); err != nil && w.log != nil {
		w.log.Warn("timescale position_events hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) writeSpread(ctx context.Context, spread FundingSpread) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, symbol, venue_a, venue_b, rate_a, rate_b, spread, volatility, threshold
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9
	)`, w.table("funding_spreads"))
	if _, err := w.db.ExecContext(ctx, query,
		spread.Time,
		spread.Symbol,
		spread.VenueA,
		spread.VenueB,
		spread.RateA,
		spread.RateB,
		spread.Spread,
		spread.Volatility,
		spread.Threshold,
	); err != nil && w.log != nil {
		w.log.Warn("timescale spread insert failed", zap.Error(err))
	}
}

func (w *Writer) writeEvent(ctx context.Context, event PositionEvent) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, position_id, event, symbol, long_venue, short_venue, notional, entry_spread, close_reason
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9
	)`, w.table("position_events"))
	if _, err := w.db.ExecContext(ctx, query,
		event.Time,
		event.PositionID,
		event.Event,
		event.Symbol,
		event.LongVenue,
		event.ShortVenue,
		event.Notional,
		event.EntrySpread,
		event.CloseReason,
	); err != nil && w.log != nil {
		w.log.Warn("timescale event insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
