package state

import (
	"context"
	"sync"
	"testing"
	"time"
)

type memoryStore struct {
	mu    sync.Mutex
	items map[string]string
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.items[key]
	return val, ok, nil
}

func (m *memoryStore) Set(ctx context.Context, key, value string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = make(map[string]string)
	}
	m.items[key] = value
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *memoryStore) Append(ctx context.Context, kind, payload string, at time.Time) error {
	_ = ctx
	_ = kind
	_ = payload
	_ = at
	return nil
}

func (m *memoryStore) Close() error {
	return nil
}

func TestEngineSnapshotRoundTrip(t *testing.T) {
	store := &memoryStore{}
	ctx := context.Background()
	snapshot := EngineSnapshot{
		DailyNotionalUsed: 20000,
		LastResetMS:       1709251200000,
		Positions: []PositionRecord{
			{
				ID:          "pos-1",
				Symbol:      "ETH",
				LongVenue:   "hyperliquid",
				ShortVenue:  "binance",
				Notional:    10000,
				Leverage:    2,
				EntryTimeMS: 1709254800000,
				EntrySpread: 0.0005,
				Status:      "active",
			},
			{
				ID:          "pos-0",
				Symbol:      "ETH",
				LongVenue:   "binance",
				ShortVenue:  "hyperliquid",
				Notional:    10000,
				Leverage:    2,
				EntryTimeMS: 1709222400000,
				EntrySpread: -0.0004,
				Status:      "closed",
				CloseTimeMS: 1709251200000,
				CloseReason: "auto-close-timeout",
			},
		},
		UpdatedAtMS: 1709254860000,
	}
	if err := SaveEngineSnapshot(ctx, store, snapshot); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}
	got, ok, err := LoadEngineSnapshot(ctx, store)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if !ok {
		t.Fatalf("expected snapshot to be present")
	}
	if got.DailyNotionalUsed != snapshot.DailyNotionalUsed {
		t.Fatalf("expected daily used %f, got %f", snapshot.DailyNotionalUsed, got.DailyNotionalUsed)
	}
	if len(got.Positions) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(got.Positions))
	}
	if got.Positions[0] != snapshot.Positions[0] {
		t.Fatalf("unexpected first position: %#v", got.Positions[0])
	}
	if got.Positions[1].CloseReason != "auto-close-timeout" {
		t.Fatalf("expected close reason preserved, got %q", got.Positions[1].CloseReason)
	}
}

func TestEngineSnapshotMissing(t *testing.T) {
	store := &memoryStore{}
	got, ok, err := LoadEngineSnapshot(context.Background(), store)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if ok {
		t.Fatalf("expected no snapshot, got %#v", got)
	}
}

func TestEngineSnapshotInvalid(t *testing.T) {
	store := &memoryStore{items: map[string]string{EngineSnapshotKey: "{"}}
	_, _, err := LoadEngineSnapshot(context.Background(), store)
	if err == nil {
		t.Fatalf("expected error for invalid snapshot JSON")
	}
}
