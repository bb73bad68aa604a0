package state

import (
	"context"
	"encoding/json"
	"strings"
)

const EngineSnapshotKey = "engine:last_snapshot"

// PositionRecord is the persisted form of an engine position. Times are unix
// milliseconds so the snapshot stays portable across restarts and timezones.
type PositionRecord struct {
	ID          string  `json:"id"`
	Symbol      string  `json:"symbol"`
	LongVenue   string  `json:"long_venue"`
	ShortVenue  string  `json:"short_venue"`
	Notional    float64 `json:"notional"`
	Leverage    int     `json:"leverage"`
	EntryTimeMS int64   `json:"entry_time_ms"`
	EntrySpread float64 `json:"entry_spread"`
	Status      string  `json:"status"`
	CloseTimeMS int64   `json:"close_time_ms,omitempty"`
	CloseReason string  `json:"close_reason,omitempty"`
}

// EngineSnapshot captures everything the engine needs to survive a restart:
// the daily ledger and the full position set, closed positions included.
type EngineSnapshot struct {
	DailyNotionalUsed float64          `json:"daily_notional_used"`
	LastResetMS       int64            `json:"last_reset_ms"`
	Positions         []PositionRecord `json:"positions"`
	UpdatedAtMS       int64            `json:"updated_at_ms"`
}

func LoadEngineSnapshot(ctx context.Context, store Store) (EngineSnapshot, bool, error) {
	if store == nil {
		return EngineSnapshot{}, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, EngineSnapshotKey)
	if err != nil {
		return EngineSnapshot{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return EngineSnapshot{}, false, nil
	}
	var snapshot EngineSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return EngineSnapshot{}, false, err
	}
	return snapshot, true, nil
}

func SaveEngineSnapshot(ctx context.Context, store Store, snapshot EngineSnapshot) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return store.Set(ctx, EngineSnapshotKey, string(payload))
}
