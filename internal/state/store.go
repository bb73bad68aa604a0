package state

import (
	"context"
	"time"
)

type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// AuditLog is an append-only event trail. The sqlite store implements it;
// callers that only need the KV surface keep depending on Store.
type AuditLog interface {
	Append(ctx context.Context, kind, payload string, at time.Time) error
}
