package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mmcdole/portal/internal/domain"
	"github.com/mmcdole/portal/internal/library"
)

// Command factories for async operations

const (
	loadTimeout   = 60 * time.Second
	detailTimeout = 30 * time.Second
	searchLimit   = 50
)

// StartCmd publishes cached content and refreshes when stale
func StartCmd(col Collection) tea.Cmd {
	return loadCmd(col, domain.LoadRefresh, col.Start)
}

// ReloadCmd refreshes around the anchor row, ignoring freshness. An anchor
// of 0 reloads from the first page.
func ReloadCmd(col Collection, anchor int) tea.Cmd {
	return loadCmd(col, domain.LoadRefresh, func(ctx context.Context) error {
		col.SetAnchor(anchor)
		return col.Reload(ctx)
	})
}

// AppendCmd loads the page after the last loaded row
func AppendCmd(col Collection) tea.Cmd {
	return loadCmd(col, domain.LoadAppend, col.Append)
}

// PrependCmd loads the page before the first loaded row
func PrependCmd(col Collection) tea.Cmd {
	return loadCmd(col, domain.LoadPrepend, col.Prepend)
}

func loadCmd(col Collection, lt domain.LoadType, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		return LoadDoneMsg{Kind: col.Kind(), Load: lt, Err: fn(ctx)}
	}
}

// SetFilterCmd switches a collection's filter and waits for the first page
func SetFilterCmd(col Collection, values map[string]string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		return FilterAppliedMsg{Kind: col.Kind(), Err: col.SetFilter(ctx, values)}
	}
}

// LoadDetailCmd loads the full record for the inspector
func LoadDetailCmd(svc *library.DetailService, item domain.Item) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), detailTimeout)
		defer cancel()

		var (
			detail domain.Item
			err    error
		)
		switch item.GetKind() {
		case domain.KindCharacter:
			detail, err = svc.Character(ctx, item.GetID())
		case domain.KindLocation:
			detail, err = svc.Location(ctx, item.GetID())
		default:
			detail, err = svc.Episode(ctx, item.GetID())
		}
		if err != nil {
			return ErrMsg{Err: err, Context: "loading details"}
		}
		return DetailLoadedMsg{Item: detail}
	}
}

// EnrichCmd resolves the related records of item in the background and
// streams each patch back through a continuation command
func EnrichCmd(ctx context.Context, svc *library.DetailService, item domain.Item) tea.Cmd {
	return func() tea.Msg {
		patches := make(chan library.Patch)

		go func() {
			defer close(patches)
			onPatch := func(p library.Patch) {
				select {
				case patches <- p:
				case <-ctx.Done():
				}
			}
			switch v := item.(type) {
			case *domain.Character:
				svc.EnrichCharacter(ctx, v, onPatch)
			case *domain.Location:
				svc.EnrichLocation(ctx, v, onPatch)
			case *domain.Episode:
				svc.EnrichEpisode(ctx, v, onPatch)
			}
		}()

		return readPatch(item, patches)
	}
}

// readPatch reads one patch and attaches the continuation
func readPatch(item domain.Item, patches <-chan library.Patch) tea.Msg {
	p, ok := <-patches
	if !ok {
		return EnrichDoneMsg{ItemKind: item.GetKind(), ItemID: item.GetID()}
	}
	return PatchMsg{
		ItemKind: item.GetKind(),
		ItemID:   item.GetID(),
		Patch:    p,
		NextCmd: func() tea.Msg {
			return readPatch(item, patches)
		},
	}
}

// SearchCmd fuzzy-matches names across the cached collections
func SearchCmd(q *library.Queries, query string) tea.Cmd {
	return func() tea.Msg {
		results, err := q.Search(context.Background(), query, searchLimit)
		if err != nil {
			return ErrMsg{Err: err, Context: "searching cache"}
		}
		return SearchResultsMsg{Query: query, Results: results}
	}
}

// ClearCacheCmd wipes the local store
func ClearCacheCmd(c *library.Catalog) tea.Cmd {
	return func() tea.Msg {
		if err := c.ClearCache(context.Background()); err != nil {
			return ErrMsg{Err: err, Context: "clearing cache"}
		}
		return CacheClearedMsg{}
	}
}

// TickCmd returns a command that sends a tick after a delay
func TickCmd(delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(t time.Time) tea.Msg {
		return TickMsg{}
	})
}

// ClearStatusCmd returns a command that clears status after a delay
func ClearStatusCmd(seq int, delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(t time.Time) tea.Msg {
		return ClearStatusMsg{Seq: seq}
	})
}
