// Package binance adapts Binance USD-M perpetual futures to the engine's
// venue contract over the official REST API.
package binance

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"funding-arb-bot/internal/config"
	"funding-arb-bot/internal/venue"

	"github.com/adshao/go-binance/v2/futures"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Adapter struct {
	cfg     config.BinanceConfig
	client  *futures.Client
	limiter *rate.Limiter
	log     *zap.Logger

	tradingEnabled bool
	pricePrecision int
	qtyPrecision   int
}

func New(cfg config.BinanceConfig, apiKey, apiSecret string, log *zap.Logger) *Adapter {
	burst := int(cfg.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Adapter{
		cfg:     cfg,
		client:  futures.NewClient(apiKey, apiSecret),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		log:     log,
		// sane fallbacks until exchange info is fetched
		pricePrecision: 2,
		qtyPrecision:   3,
	}
}

// EnableTrading syncs server time, loads symbol precision and applies the
// configured leverage. Read-only use skips all of this.
func (a *Adapter) EnableTrading(ctx context.Context, leverage int) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := a.client.NewSetServerTimeService().Do(ctx); err != nil {
		return fmt.Errorf("binance server time sync: %w", err)
	}
	if err := a.fetchExchangeInfo(ctx); err != nil {
		return err
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := a.client.NewChangeLeverageService().Symbol(a.cfg.Symbol).Leverage(leverage).Do(ctx); err != nil {
		return fmt.Errorf("binance change leverage: %w", err)
	}
	a.tradingEnabled = true
	return nil
}

func (a *Adapter) fetchExchangeInfo(ctx context.Context) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	info, err := a.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return fmt.Errorf("binance exchange info: %w", err)
	}
	for _, sym := range info.Symbols {
		if sym.Symbol == a.cfg.Symbol {
			a.pricePrecision = sym.PricePrecision
			a.qtyPrecision = sym.QuantityPrecision
			return nil
		}
	}
	return fmt.Errorf("symbol %s not found in binance exchange info", a.cfg.Symbol)
}

func (a *Adapter) Name() string {
	return config.VenueBinance
}

// FundingRate returns the predicted rate from the premium index, a fraction
// per 8h funding interval.
func (a *Adapter) FundingRate(ctx context.Context, symbol string) (float64, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	indexes, err := a.client.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(indexes) == 0 {
		return 0, fmt.Errorf("no premium index for %s", symbol)
	}
	rate, err := strconv.ParseFloat(indexes[0].LastFundingRate, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid funding rate %q: %w", indexes[0].LastFundingRate, err)
	}
	return rate, nil
}

func (a *Adapter) MidPrice(ctx context.Context, symbol string) (float64, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	tickers, err := a.client.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(tickers) == 0 {
		return 0, fmt.Errorf("no book ticker for %s", symbol)
	}
	bid, err := strconv.ParseFloat(tickers[0].BidPrice, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid bid %q: %w", tickers[0].BidPrice, err)
	}
	ask, err := strconv.ParseFloat(tickers[0].AskPrice, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ask %q: %w", tickers[0].AskPrice, err)
	}
	if bid <= 0 || ask <= 0 {
		return 0, fmt.Errorf("book ticker for %s is empty", symbol)
	}
	return (bid + ask) / 2, nil
}

func (a *Adapter) PlaceOrder(ctx context.Context, order venue.Order) (string, error) {
	if !a.tradingEnabled {
		return "", errors.New("trading is not enabled for binance")
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return "", err
	}
	side := futures.SideTypeBuy
	if order.Side == venue.SideSell {
		side = futures.SideTypeSell
	}
	svc := a.client.NewCreateOrderService().
		Symbol(order.Symbol).
		Side(side).
		Quantity(fmt.Sprintf("%.*f", a.qtyPrecision, order.Size))
	switch {
	case order.Type == venue.OrderTypeMarket && order.Price > 0:
		// market intent is expressed as an aggressive IOC limit so the
		// slippage cap priced into the order holds
		svc = svc.Type(futures.OrderTypeLimit).
			TimeInForce(futures.TimeInForceTypeIOC).
			Price(fmt.Sprintf("%.*f", a.pricePrecision, order.Price))
	case order.Type == venue.OrderTypeMarket:
		svc = svc.Type(futures.OrderTypeMarket)
	default:
		svc = svc.Type(futures.OrderTypeLimit).
			TimeInForce(futures.TimeInForceTypeGTC).
			Price(fmt.Sprintf("%.*f", a.pricePrecision, order.Price))
	}
	if order.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}
	if order.ClientOrderID != "" {
		svc = svc.NewClientOrderID(order.ClientOrderID)
	}
	resp, err := svc.Do(ctx)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(resp.OrderID, 10), nil
}

func (a *Adapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	if !a.tradingEnabled {
		return errors.New("trading is not enabled for binance")
	}
	oid, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid order id %s: %w", orderID, err)
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err = a.client.NewCancelOrderService().Symbol(symbol).OrderID(oid).Do(ctx)
	return err
}
