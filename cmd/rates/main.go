// Command rates is a one-shot diagnostic: it reads the current funding rate
// from both configured venues and prints the spread verdict the engine would
// reach, without touching the position book or placing orders.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"funding-arb-bot/internal/config"
	"funding-arb-bot/internal/engine"
	"funding-arb-bot/internal/logging"
	"funding-arb-bot/internal/venue"
	"funding-arb-bot/internal/venue/binance"
	"funding-arb-bot/internal/venue/hyperliquid"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load(".env")

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	adapters := map[string]venue.Adapter{}
	for _, name := range []string{cfg.Engine.VenueA, cfg.Engine.VenueB} {
		switch name {
		case config.VenueHyperliquid:
			adapters[name] = hyperliquid.New(cfg.Hyperliquid, log)
		case config.VenueBinance:
			adapters[name] = binance.New(cfg.Binance, "", "", log)
		}
	}

	rateA, err := adapters[cfg.Engine.VenueA].FundingRate(ctx, venueSymbol(cfg, cfg.Engine.VenueA))
	if err != nil {
		log.Warn("funding rate fetch failed", zap.String("venue", cfg.Engine.VenueA), zap.Error(err))
	}
	rateB, err := adapters[cfg.Engine.VenueB].FundingRate(ctx, venueSymbol(cfg, cfg.Engine.VenueB))
	if err != nil {
		log.Warn("funding rate fetch failed", zap.String("venue", cfg.Engine.VenueB), zap.Error(err))
	}

	spread := rateA - rateB
	threshold := engine.EffectiveThreshold(
		cfg.Engine.MinFundingSpread,
		cfg.Engine.UseDynamicSpread,
		cfg.Engine.SpreadBufferMultiplier,
		0,
	)

	fmt.Printf("symbol:    %s\n", cfg.Engine.Symbol)
	fmt.Printf("%-10s %.8f\n", cfg.Engine.VenueA+":", rateA)
	fmt.Printf("%-10s %.8f\n", cfg.Engine.VenueB+":", rateB)
	fmt.Printf("spread:    %.8f\n", spread)
	fmt.Printf("threshold: %.8f (volatility buffer not applied, single reading)\n", threshold)

	switch {
	case rateA == 0 || rateB == 0:
		fmt.Println("verdict:   skip (a venue reading is unavailable)")
	case spread > threshold:
		fmt.Printf("verdict:   opportunity, long %s / short %s\n", cfg.Engine.VenueA, cfg.Engine.VenueB)
	case -spread > threshold:
		fmt.Printf("verdict:   opportunity, long %s / short %s\n", cfg.Engine.VenueB, cfg.Engine.VenueA)
	default:
		fmt.Println("verdict:   no opportunity")
	}
}

func venueSymbol(cfg *config.Config, name string) string {
	switch name {
	case config.VenueHyperliquid:
		return cfg.Hyperliquid.Symbol
	case config.VenueBinance:
		return cfg.Binance.Symbol
	default:
		return cfg.Engine.Symbol
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
