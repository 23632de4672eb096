package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Record is one cached item in its serialized form
type Record struct {
	ID       int
	Page     int // Page the item was fetched from
	Position int // Index within that page
	Data     json.RawMessage
}

// PageWrite is the untyped form of PageUpdate handed to a Store
type PageWrite struct {
	FilterKey string
	Reset     bool
	Records   []Record
	Keys      []RemoteKey
	UpdatedAt time.Time
}

// Store handles the local cache (bbolt, SQLite or memory).
// It is the source of truth for everything the UI displays.
type Store interface {
	// === Partitions ===

	// Partition returns the active partition of a collection
	Partition(ctx context.Context, kind Kind) (Partition, bool, error)

	// === Items and cursors ===

	// Records returns the cached items ordered by (page, position)
	Records(ctx context.Context, kind Kind) ([]Record, error)

	// RemoteKey returns the cursor stored for an item
	RemoteKey(ctx context.Context, kind Kind, itemID int) (RemoteKey, bool, error)

	// ApplyPage writes a fetched page in a single transaction: optional reset,
	// items, cursors and the partition stamp
	ApplyPage(ctx context.Context, kind Kind, w PageWrite) error

	// Reset drops items and cursors of a collection and records filterKey as
	// its (stale) partition
	Reset(ctx context.Context, kind Kind, filterKey string) error

	// === Detail cache ===

	Detail(ctx context.Context, kind Kind, id int) (json.RawMessage, bool, error)
	PutDetails(ctx context.Context, kind Kind, records []Record) error

	// === Invalidation ===

	Clear(ctx context.Context) error

	Close() error
}
