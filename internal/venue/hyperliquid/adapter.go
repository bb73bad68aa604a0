// Package hyperliquid adapts the Hyperliquid perp venue to the engine's
// venue contract. Mids stream over the websocket with a REST fallback;
// funding rates come from the periodic asset-context refresh.
package hyperliquid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"funding-arb-bot/internal/config"
	"funding-arb-bot/internal/venue"
	"funding-arb-bot/internal/venue/hyperliquid/exchange"

	"go.uber.org/zap"
)

type Adapter struct {
	cfg      config.HyperliquidConfig
	rest     *restClient
	ws       *wsClient
	exchange *exchange.Client
	log      *zap.Logger

	mu            sync.RWMutex
	mids          map[string]float64
	perps         map[string]perpContext
	lastRefresh   time.Time
	refreshWindow time.Duration
}

func New(cfg config.HyperliquidConfig, log *zap.Logger) *Adapter {
	return &Adapter{
		cfg:           cfg,
		rest:          newRESTClient(cfg.REST.BaseURL, cfg.REST.Timeout, log),
		ws:            newWSClient(cfg.WS.URL, cfg.WS.ReconnectDelay, cfg.WS.PingInterval, log),
		log:           log,
		mids:          make(map[string]float64),
		perps:         make(map[string]perpContext),
		refreshWindow: 30 * time.Second,
	}
}

// EnableTrading attaches a signing exchange client. Read-only use (funding
// rates, mids) needs no credentials.
func (a *Adapter) EnableTrading(privateKeyHex, walletAddress string) error {
	isMainnet := !strings.Contains(strings.ToLower(a.cfg.REST.BaseURL), "testnet")
	signer, err := exchange.NewSigner(privateKeyHex, isMainnet)
	if err != nil {
		return err
	}
	if walletAddress != "" && !strings.EqualFold(walletAddress, signer.Address().Hex()) {
		return fmt.Errorf("wallet address does not match private key: got %s expected %s", walletAddress, signer.Address().Hex())
	}
	client, err := exchange.NewClient(a.cfg.REST.BaseURL, a.cfg.REST.Timeout, signer)
	if err != nil {
		return err
	}
	a.exchange = client
	return nil
}

// Start opens the websocket mid stream. The adapter still works without it;
// MidPrice falls back to REST.
func (a *Adapter) Start(ctx context.Context) error {
	if err := a.ws.connect(ctx); err != nil {
		return err
	}
	sub := map[string]any{"method": "subscribe", "subscription": map[string]any{"type": "allMids"}}
	if err := a.ws.subscribe(ctx, sub); err != nil {
		return err
	}
	go func() {
		_ = a.ws.run(ctx, a.handleMessage)
	}()
	return nil
}

func (a *Adapter) Name() string {
	return config.VenueHyperliquid
}

func (a *Adapter) FundingRate(ctx context.Context, symbol string) (float64, error) {
	if err := a.refreshContexts(ctx); err != nil {
		return 0, err
	}
	a.mu.RLock()
	perp, ok := a.perps[symbol]
	a.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("unknown perp asset %s", symbol)
	}
	return perp.FundingRate, nil
}

func (a *Adapter) MidPrice(ctx context.Context, symbol string) (float64, error) {
	a.mu.RLock()
	mid, ok := a.mids[symbol]
	a.mu.RUnlock()
	if ok && mid > 0 {
		return mid, nil
	}
	payload, err := a.rest.info(ctx, infoRequest{Type: "allMids"})
	if err != nil {
		return 0, err
	}
	flat, ok := payload.(map[string]any)
	if !ok {
		return 0, errors.New("allMids response malformed")
	}
	mids := parseMids(flat)
	a.updateMids(mids)
	mid, ok = mids[symbol]
	if !ok || mid <= 0 {
		return 0, fmt.Errorf("mid price not found for %s", symbol)
	}
	return mid, nil
}

func (a *Adapter) PlaceOrder(ctx context.Context, order venue.Order) (string, error) {
	if a.exchange == nil {
		return "", errors.New("trading is not enabled for hyperliquid")
	}
	if order.Price <= 0 {
		return "", errors.New("order price is required")
	}
	if err := a.refreshContexts(ctx); err != nil {
		return "", err
	}
	a.mu.RLock()
	perp, ok := a.perps[order.Symbol]
	a.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown perp asset %s", order.Symbol)
	}
	size := order.Size
	if perp.SzDecimals >= 0 {
		size = roundDown(size, perp.SzDecimals)
	}
	if size <= 0 {
		return "", errors.New("order size rounded to zero")
	}
	price := normalizeLimitPrice(order.Price, perp.SzDecimals)
	tif := exchange.TifGtc
	if order.Type == venue.OrderTypeMarket {
		// market orders are expressed as aggressive IOC limits
		tif = exchange.TifIoc
	}
	wire, err := exchange.LimitOrderWire(perp.Index, order.Side == venue.SideBuy, size, price, order.ReduceOnly, tif, order.ClientOrderID)
	if err != nil {
		return "", err
	}
	resp, err := a.exchange.PlaceOrder(ctx, wire)
	if err != nil {
		return "", err
	}
	orderID := exchange.OrderIDFromResponse(resp)
	if orderID == "" {
		return "", errors.New("missing order id in exchange response")
	}
	return orderID, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	if a.exchange == nil {
		return errors.New("trading is not enabled for hyperliquid")
	}
	if err := a.refreshContexts(ctx); err != nil {
		return err
	}
	a.mu.RLock()
	perp, ok := a.perps[symbol]
	a.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown perp asset %s", symbol)
	}
	oid, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid order id %s: %w", orderID, err)
	}
	_, err = a.exchange.CancelOrder(ctx, perp.Index, oid)
	return err
}

func (a *Adapter) refreshContexts(ctx context.Context) error {
	a.mu.RLock()
	last := a.lastRefresh
	window := a.refreshWindow
	a.mu.RUnlock()
	if !last.IsZero() && time.Since(last) < window {
		return nil
	}
	payload, err := a.rest.info(ctx, infoRequest{Type: "metaAndAssetCtxs"})
	if err != nil {
		return err
	}
	perps, err := parsePerpContexts(payload)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.perps = perps
	a.lastRefresh = time.Now().UTC()
	a.mu.Unlock()
	return nil
}

func (a *Adapter) handleMessage(msg json.RawMessage) {
	payload, ok := decodeWSMessage(msg)
	if !ok {
		if a.log != nil {
			a.log.Debug("ws decode error")
		}
		return
	}
	a.updateMids(parseMids(payload))
}

func (a *Adapter) updateMids(mids map[string]float64) {
	if len(mids) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for asset, mid := range mids {
		a.mids[asset] = mid
	}
}

func roundDown(value float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Floor(value)
	}
	factor := math.Pow10(decimals)
	return math.Floor(value*factor) / factor
}

func roundTo(value float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(value)
	}
	factor := math.Pow10(decimals)
	return math.Round(value*factor) / factor
}

// normalizeLimitPrice clamps a perp price to 5 significant figures and the
// venue's decimal budget (6 minus the size decimals).
func normalizeLimitPrice(price float64, szDecimals int) float64 {
	if price == 0 {
		return 0
	}
	if sig, err := strconv.ParseFloat(strconv.FormatFloat(price, 'g', 5, 64), 64); err == nil {
		price = sig
	}
	decimals := 6
	if szDecimals >= 0 {
		decimals -= szDecimals
		if decimals < 0 {
			decimals = 0
		}
	}
	return roundTo(price, decimals)
}
