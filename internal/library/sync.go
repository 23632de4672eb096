package library

import (
	"context"

	"github.com/mmcdole/portal/internal/domain"
	"github.com/mmcdole/portal/internal/paging"
)

// ProgressFunc reports sync progress after each page
type ProgressFunc func(pages, items int)

// SyncResult summarizes a full walk of a collection
type SyncResult struct {
	Kind  domain.Kind
	Pages int
	Items int
}

// SyncAll reloads a collection from the first page and appends until the
// last page is reached.
func SyncAll[T domain.Item, F domain.Filter](
	ctx context.Context,
	pager *paging.Pager[T, F],
	onProgress ProgressFunc,
) (SyncResult, error) {
	result := SyncResult{Kind: pager.Kind()}

	if err := pager.Reload(ctx); err != nil {
		return result, err
	}

	for {
		snap := pager.Snapshot()
		result.Pages++
		result.Items = len(snap.Items)

		if onProgress != nil {
			onProgress(result.Pages, result.Items)
		}

		if snap.AppendEnd || len(snap.Items) == 0 {
			return result, nil
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		if err := pager.Append(ctx); err != nil {
			return result, err
		}
	}
}
