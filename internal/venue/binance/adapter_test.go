package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"funding-arb-bot/internal/config"
	"funding-arb-bot/internal/venue"

	"go.uber.org/zap"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg := config.BinanceConfig{Symbol: "ETHUSDT", RequestsPerSecond: 100}
	a := New(cfg, "test-key", "test-secret", zap.NewNop())
	a.client.BaseURL = server.URL
	a.tradingEnabled = true
	return a
}

func TestPlaceOrderMarketBecomesIOCLimit(t *testing.T) {
	var mu sync.Mutex
	var form url.Values
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		mu.Lock()
		form = r.Form
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"orderId": 42, "clientOrderId": "pos-1:long", "symbol": "ETHUSDT"}`)
	})

	orderID, err := a.PlaceOrder(context.Background(), venue.Order{
		Symbol:        "ETHUSDT",
		Side:          venue.SideBuy,
		Type:          venue.OrderTypeMarket,
		Size:          1.25,
		Price:         3006.0,
		ClientOrderID: "pos-1:long",
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if orderID != "42" {
		t.Fatalf("expected order id 42, got %s", orderID)
	}

	mu.Lock()
	defer mu.Unlock()
	if got := form.Get("type"); got != "LIMIT" {
		t.Fatalf("expected LIMIT order type, got %q", got)
	}
	if got := form.Get("timeInForce"); got != "IOC" {
		t.Fatalf("expected IOC time in force, got %q", got)
	}
	if got := form.Get("price"); got != "3006.00" {
		t.Fatalf("expected slippage-capped price 3006.00, got %q", got)
	}
	if got := form.Get("quantity"); got != "1.250" {
		t.Fatalf("expected quantity 1.250, got %q", got)
	}
	if got := form.Get("newClientOrderId"); got != "pos-1:long" {
		t.Fatalf("expected client order id pos-1:long, got %q", got)
	}
}

func TestPlaceOrderLimitKeepsGTC(t *testing.T) {
	var mu sync.Mutex
	var form url.Values
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		mu.Lock()
		form = r.Form
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"orderId": 7, "symbol": "ETHUSDT"}`)
	})

	if _, err := a.PlaceOrder(context.Background(), venue.Order{
		Symbol: "ETHUSDT",
		Side:   venue.SideSell,
		Type:   venue.OrderTypeLimit,
		Size:   0.5,
		Price:  2994.0,
	}); err != nil {
		t.Fatalf("place order: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if got := form.Get("timeInForce"); got != "GTC" {
		t.Fatalf("expected GTC time in force, got %q", got)
	}
	if got := form.Get("side"); got != "SELL" {
		t.Fatalf("expected SELL side, got %q", got)
	}
}

func TestPlaceOrderRequiresTradingEnabled(t *testing.T) {
	cfg := config.BinanceConfig{Symbol: "ETHUSDT", RequestsPerSecond: 100}
	a := New(cfg, "", "", zap.NewNop())
	if _, err := a.PlaceOrder(context.Background(), venue.Order{Symbol: "ETHUSDT"}); err == nil {
		t.Fatalf("expected error when trading is not enabled")
	}
}
