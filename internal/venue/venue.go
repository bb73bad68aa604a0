// Package venue defines the capability contract the engine expects from each
// perpetual-futures venue. One adapter per venue, composed in any pairing by
// the orchestrator; the core never learns whether a venue polls REST or
// streams over a websocket.
package venue

import "context"

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

type Order struct {
	Symbol        string
	Side          Side
	Type          OrderType
	Size          float64 // base quantity
	Price         float64 // ignored for market orders
	ReduceOnly    bool
	ClientOrderID string
}

// Adapter is the per-venue capability surface. FundingRate returns the
// current rate as a fraction per funding interval; implementations return an
// error rather than the 0 sentinel, and the orchestrator maps failures to a
// skipped tick.
type Adapter interface {
	Name() string
	FundingRate(ctx context.Context, symbol string) (float64, error)
	MidPrice(ctx context.Context, symbol string) (float64, error)
	PlaceOrder(ctx context.Context, order Order) (string, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
}
