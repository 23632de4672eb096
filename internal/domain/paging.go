package domain

import "time"

// FirstPage is the number of the first page of every collection
const FirstPage = 1

// LoadType is the trigger for a paging load
type LoadType int

const (
	// LoadRefresh reloads from scratch, replacing the cached content
	LoadRefresh LoadType = iota
	// LoadAppend loads the page after the last cached item
	LoadAppend
	// LoadPrepend loads the page before the first cached item
	LoadPrepend
)

func (t LoadType) String() string {
	switch t {
	case LoadRefresh:
		return "refresh"
	case LoadAppend:
		return "append"
	case LoadPrepend:
		return "prepend"
	default:
		return "unknown"
	}
}

// Page is one page of a remote collection listing
type Page[T any] struct {
	Items  []T
	Number int // Requested page number
	Prev   int // Previous page number, 0 if none
	Next   int // Next page number, 0 if none
	Count  int // Total matching records across all pages
	Pages  int // Total page count
}

// IsEmpty reports whether the page carried no records
func (p Page[T]) IsEmpty() bool {
	return len(p.Items) == 0
}

// RemoteKey is the pagination cursor stored for each cached item.
// Page numbers of 0 mean "absent" (no further page in that direction).
type RemoteKey struct {
	ItemID   int `json:"item_id"`
	Page     int `json:"page"`
	PrevPage int `json:"prev_page"`
	NextPage int `json:"next_page"`
}

// Partition records which filter the cached content of a collection
// belongs to and when it was last written.
type Partition struct {
	Kind      Kind      `json:"kind"`
	FilterKey string    `json:"filter_key"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsFresh reports whether the partition holds content for filterKey that was
// written less than timeout ago
func (p Partition) IsFresh(filterKey string, timeout time.Duration, now time.Time) bool {
	if p.FilterKey != filterKey || p.UpdatedAt.IsZero() {
		return false
	}
	return now.Sub(p.UpdatedAt) < timeout
}

// PageUpdate is a single atomic write of one fetched page into the store
type PageUpdate[T any] struct {
	FilterKey string
	Reset     bool // Clear prior items and cursors first (refresh)
	Page      int
	Items     []T
	Keys      []RemoteKey
	UpdatedAt time.Time
}
