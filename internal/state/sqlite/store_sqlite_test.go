package sqlite

import (
	"context"
	"testing"
	"time"
)

func TestStoreRoundTrip(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Set(ctx, "key", "value"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	val, ok, err := store.Get(ctx, "key")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !ok || val != "value" {
		t.Fatalf("unexpected value: %v (ok=%v)", val, ok)
	}
	if err := store.Delete(ctx, "key"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	_, ok, err = store.Get(ctx, "key")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if ok {
		t.Fatalf("expected key to be deleted")
	}
}

func TestStoreUpsert(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Set(ctx, "key", "first"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := store.Set(ctx, "key", "second"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	val, _, err := store.Get(ctx, "key")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if val != "second" {
		t.Fatalf("expected second, got %q", val)
	}
}

func TestStoreAuditAppend(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := store.Append(ctx, "position_open", `{"id":"pos-1"}`, at); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := store.Append(ctx, "position_close", `{"id":"pos-1"}`, at.Add(time.Hour)); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	rows, err := store.db.QueryContext(ctx, `SELECT ts, kind FROM audit ORDER BY id`)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	defer rows.Close()
	var kinds []string
	var first int64
	for rows.Next() {
		var ts int64
		var kind string
		if err := rows.Scan(&ts, &kind); err != nil {
			t.Fatalf("scan failed: %v", err)
		}
		if first == 0 {
			first = ts
		}
		kinds = append(kinds, kind)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(kinds) != 2 || kinds[0] != "position_open" || kinds[1] != "position_close" {
		t.Fatalf("unexpected audit kinds: %v", kinds)
	}
	if first != at.UnixMilli() {
		t.Fatalf("expected ts %d, got %d", at.UnixMilli(), first)
	}
}
