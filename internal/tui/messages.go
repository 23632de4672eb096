package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mmcdole/portal/internal/domain"
	"github.com/mmcdole/portal/internal/library"
	"github.com/mmcdole/portal/internal/tui/components"
)

// Message types for the TUI

// ErrMsg represents an error
type ErrMsg struct {
	Err     error
	Context string
}

// Error implements the error interface
func (e ErrMsg) Error() string {
	if e.Context != "" {
		return e.Context + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// SnapshotMsg carries a new published state of one collection
type SnapshotMsg struct {
	Kind       domain.Kind
	Filter     string // Human-readable active filter
	Items      []components.ListItem
	Refreshing bool
	Appending  bool
	Prepending bool
	AppendEnd  bool
	PrependEnd bool
	Err        error
	Version    uint64
}

// Loading reports whether any load is in flight
func (m SnapshotMsg) Loading() bool {
	return m.Refreshing || m.Appending || m.Prepending
}

// LoadDoneMsg signals that a paging trigger returned
type LoadDoneMsg struct {
	Kind domain.Kind
	Load domain.LoadType
	Err  error
}

// FilterAppliedMsg signals that a filter change finished its first refresh
type FilterAppliedMsg struct {
	Kind domain.Kind
	Err  error
}

// DetailLoadedMsg carries the base record for the inspector
type DetailLoadedMsg struct {
	Item domain.Item
}

// PatchMsg carries one batch of resolved related records
type PatchMsg struct {
	ItemKind domain.Kind
	ItemID   int
	Patch    library.Patch
	NextCmd  tea.Cmd // Continuation reading the next patch
}

// EnrichDoneMsg signals that every relation lookup for a record finished
type EnrichDoneMsg struct {
	ItemKind domain.Kind
	ItemID   int
}

// SearchResultsMsg signals that search results are ready
type SearchResultsMsg struct {
	Query   string
	Results []library.SearchResult
}

// TickMsg is a general tick message for animations
type TickMsg struct{}

// ClearStatusMsg clears the status bar message
type ClearStatusMsg struct {
	Seq int
}

// StatusMsg sets a temporary status message
type StatusMsg struct {
	Message string
	IsError bool
}

// CacheClearedMsg signals that the local store was wiped
type CacheClearedMsg struct{}
