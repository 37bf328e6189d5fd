package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// EventStore persists emitted store events.
type EventStore interface {
	Append(ctx context.Context, evt Event) error
	ListByLot(ctx context.Context, key LotKey, opts ListOpts) ([]Event, error)
	ListRecent(ctx context.Context, opts ListOpts) ([]Event, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]Event, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
