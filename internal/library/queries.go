package library

import (
	"context"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/mmcdole/portal/internal/domain"
	"github.com/mmcdole/portal/internal/store"
)

// SearchResult is a cached item matched by Search
type SearchResult struct {
	Item  domain.Item
	Score int // Lower is better
}

// Queries provides synchronous, cache-only reads.
type Queries struct {
	chars *store.Collection[*domain.Character]
	locs  *store.Collection[*domain.Location]
	eps   *store.Collection[*domain.Episode]
}

// NewQueries creates a new Queries instance.
func NewQueries(st domain.Store) *Queries {
	return &Queries{
		chars: store.NewCollection[*domain.Character](st, domain.KindCharacter),
		locs:  store.NewCollection[*domain.Location](st, domain.KindLocation),
		eps:   store.NewCollection[*domain.Episode](st, domain.KindEpisode),
	}
}

func (q *Queries) CachedCharacters(ctx context.Context) ([]*domain.Character, error) {
	return q.chars.Items(ctx)
}

func (q *Queries) CachedLocations(ctx context.Context) ([]*domain.Location, error) {
	return q.locs.Items(ctx)
}

func (q *Queries) CachedEpisodes(ctx context.Context) ([]*domain.Episode, error) {
	return q.eps.Items(ctx)
}

// CachedItems returns the cached sequence of one collection as list items
func (q *Queries) CachedItems(ctx context.Context, kind domain.Kind) ([]domain.Item, error) {
	switch kind {
	case domain.KindCharacter:
		return asItems(q.chars.Items(ctx))
	case domain.KindLocation:
		return asItems(q.locs.Items(ctx))
	default:
		return asItems(q.eps.Items(ctx))
	}
}

// Partition returns the active filter and freshness of a collection
func (q *Queries) Partition(ctx context.Context, kind domain.Kind) (domain.Partition, bool, error) {
	switch kind {
	case domain.KindCharacter:
		return q.chars.Partition(ctx)
	case domain.KindLocation:
		return q.locs.Partition(ctx)
	default:
		return q.eps.Partition(ctx)
	}
}

// Search fuzzy-matches names across every cached collection.
// Results are ranked exact, then prefix, then substring, then by edit distance.
func (q *Queries) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, nil
	}

	var all []domain.Item
	for _, kind := range domain.Kinds() {
		items, err := q.CachedItems(ctx, kind)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
	}

	names := make([]string, len(all))
	for i, item := range all {
		names[i] = item.GetName()
	}

	matches := fuzzy.RankFindFold(query, names)
	results := make([]SearchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, SearchResult{
			Item:  all[m.OriginalIndex],
			Score: matchScore(strings.ToLower(m.Target), query, m.Distance),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score < results[j].Score
		}
		return results[i].Item.GetName() < results[j].Item.GetName()
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// matchScore ranks a match (lower = better)
func matchScore(name, query string, distance int) int {
	switch {
	case name == query:
		return 0
	case strings.HasPrefix(name, query):
		return 10
	case strings.Contains(name, query):
		return 50
	default:
		return 100 + distance
	}
}

func asItems[T domain.Item](items []T, err error) ([]domain.Item, error) {
	if err != nil {
		return nil, err
	}
	out := make([]domain.Item, len(items))
	for i, it := range items {
		out[i] = it
	}
	return out, nil
}
