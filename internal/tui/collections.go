package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mmcdole/portal/internal/domain"
	"github.com/mmcdole/portal/internal/library"
	"github.com/mmcdole/portal/internal/paging"
	"github.com/mmcdole/portal/internal/tui/components"
)

// Collection is the view of one paged repository the TUI drives
type Collection interface {
	Kind() domain.Kind

	// Paging triggers; errors are also published in the next snapshot
	Start(ctx context.Context) error
	Reload(ctx context.Context) error
	Append(ctx context.Context) error
	Prepend(ctx context.Context) error
	// SetAnchor picks the row a refresh keeps in view, 0 for the first page
	SetAnchor(itemID int)

	// FilterFields returns the active filter's fields for the filter form
	FilterFields() []domain.FilterField
	// ValidateFilter checks form values without applying them
	ValidateFilter(values map[string]string) error
	// SetFilter switches to the filter described by values
	SetFilter(ctx context.Context, values map[string]string) error

	// WaitForSnapshot blocks for the next snapshot and returns it as a
	// SnapshotMsg, or nil once Close was called
	WaitForSnapshot() tea.Cmd
	Close()
}

// pagerCollection adapts a typed pager to Collection
type pagerCollection[T domain.Item, F domain.Filter] struct {
	pager   *paging.Pager[T, F]
	parse   func(map[string]string) (F, error)
	updates <-chan paging.Snapshot[T]
	cancel  func()
}

func newPagerCollection[T domain.Item, F domain.Filter](
	pager *paging.Pager[T, F],
	parse func(map[string]string) (F, error),
) *pagerCollection[T, F] {
	updates, cancel := pager.Subscribe()
	return &pagerCollection[T, F]{
		pager:   pager,
		parse:   parse,
		updates: updates,
		cancel:  cancel,
	}
}

// CatalogCollections returns the three collections of a catalog in tab order
func CatalogCollections(c *library.Catalog) []Collection {
	return []Collection{
		newPagerCollection(c.Characters, domain.CharacterFilterFrom),
		newPagerCollection(c.Locations, func(v map[string]string) (domain.LocationFilter, error) {
			return domain.LocationFilterFrom(v), nil
		}),
		newPagerCollection(c.Episodes, func(v map[string]string) (domain.EpisodeFilter, error) {
			return domain.EpisodeFilterFrom(v), nil
		}),
	}
}

func (c *pagerCollection[T, F]) Kind() domain.Kind { return c.pager.Kind() }

func (c *pagerCollection[T, F]) Start(ctx context.Context) error   { return c.pager.Start(ctx) }
func (c *pagerCollection[T, F]) Reload(ctx context.Context) error  { return c.pager.Reload(ctx) }
func (c *pagerCollection[T, F]) Append(ctx context.Context) error  { return c.pager.Append(ctx) }
func (c *pagerCollection[T, F]) Prepend(ctx context.Context) error { return c.pager.Prepend(ctx) }
func (c *pagerCollection[T, F]) SetAnchor(itemID int)              { c.pager.SetAnchor(itemID) }

func (c *pagerCollection[T, F]) FilterFields() []domain.FilterField {
	return c.pager.Filter().Fields()
}

func (c *pagerCollection[T, F]) ValidateFilter(values map[string]string) error {
	_, err := c.parse(values)
	return err
}

func (c *pagerCollection[T, F]) SetFilter(ctx context.Context, values map[string]string) error {
	filter, err := c.parse(values)
	if err != nil {
		return err
	}
	return c.pager.SetFilter(ctx, filter)
}

func (c *pagerCollection[T, F]) WaitForSnapshot() tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-c.updates
		if !ok {
			return nil
		}
		return SnapshotMsg{
			Kind:       c.pager.Kind(),
			Filter:     domain.DescribeFilter(c.pager.Filter()),
			Items:      components.WrapItems(snap.Items),
			Refreshing: snap.Refreshing,
			Appending:  snap.Appending,
			Prepending: snap.Prepending,
			AppendEnd:  snap.AppendEnd,
			PrependEnd: snap.PrependEnd,
			Err:        snap.Err,
			Version:    snap.Version,
		}
	}
}

func (c *pagerCollection[T, F]) Close() { c.cancel() }
