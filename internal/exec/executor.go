// Package exec places orders on a venue with bounded retries and
// client-order-id idempotency backed by the persistent store.
package exec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"funding-arb-bot/internal/state"
	"funding-arb-bot/internal/venue"

	"go.uber.org/zap"
)

type Executor struct {
	adapter venue.Adapter
	store   state.Store
	log     *zap.Logger

	mu    sync.Mutex
	cache map[string]string
}

func New(adapter venue.Adapter, store state.Store, log *zap.Logger) *Executor {
	return &Executor{
		adapter: adapter,
		store:   store,
		log:     log,
		cache:   make(map[string]string),
	}
}

// PlaceOrder submits the order with retries. When a client order id is set,
// a repeat call with the same id returns the stored exchange order id
// without hitting the venue again, surviving restarts via the store.
func (e *Executor) PlaceOrder(ctx context.Context, order venue.Order) (string, error) {
	if order.ClientOrderID == "" {
		return e.placeWithRetry(ctx, order)
	}
	cacheKey := "cloid:" + e.adapter.Name() + ":" + order.ClientOrderID
	e.mu.Lock()
	if oid, ok := e.cache[cacheKey]; ok {
		e.mu.Unlock()
		return oid, nil
	}
	e.mu.Unlock()
	if e.store != nil {
		if oid, ok, err := e.store.Get(ctx, cacheKey); err != nil {
			return "", err
		} else if ok {
			e.mu.Lock()
			e.cache[cacheKey] = oid
			e.mu.Unlock()
			return oid, nil
		}
	}
	orderID, err := e.placeWithRetry(ctx, order)
	if err != nil {
		return "", err
	}
	if e.store != nil {
		if err := e.store.Set(ctx, cacheKey, orderID); err != nil {
			e.log.Warn("failed to persist order id", zap.Error(err))
		}
	}
	e.mu.Lock()
	e.cache[cacheKey] = orderID
	e.mu.Unlock()
	return orderID, nil
}

func (e *Executor) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return e.retry(ctx, func() error {
		return e.adapter.CancelOrder(ctx, symbol, orderID)
	})
}

func (e *Executor) placeWithRetry(ctx context.Context, order venue.Order) (string, error) {
	var orderID string
	err := e.retry(ctx, func() error {
		var err error
		orderID, err = e.adapter.PlaceOrder(ctx, order)
		return err
	})
	if err != nil {
		return "", err
	}
	if orderID == "" {
		return "", errors.New("empty order id")
	}
	return orderID, nil
}

func (e *Executor) retry(ctx context.Context, fn func() error) error {
	backoff := 200 * time.Millisecond
	for attempt := 0; attempt < 5; attempt++ {
		if err := fn(); err != nil {
			if attempt == 4 {
				return fmt.Errorf("retry failed: %w", err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
			continue
		}
		return nil
	}
	return nil
}
