package library

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mmcdole/portal/internal/domain"
	"github.com/mmcdole/portal/internal/paging"
	"github.com/mmcdole/portal/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const perPage = 2

// fakeCatalog is an in-memory domain.CatalogSource
type fakeCatalog struct {
	mu         sync.Mutex
	characters []*domain.Character
	locations  []*domain.Location
	episodes   []*domain.Episode
	calls      map[string]int
	failMany   map[domain.Kind]error
}

func newFakeCatalog() *fakeCatalog {
	f := &fakeCatalog{calls: make(map[string]int), failMany: make(map[domain.Kind]error)}
	f.locations = []*domain.Location{
		{ID: 1, Name: "Earth (C-137)", Type: "Planet", ResidentURLs: []string{"api/character/1", "api/character/2"}},
		{ID: 3, Name: "Citadel of Ricks", Type: "Space station"},
	}
	f.episodes = []*domain.Episode{
		{ID: 1, Name: "Pilot", Code: "S01E01", CharacterURLs: []string{"api/character/1", "api/character/2"}},
		{ID: 2, Name: "Lawnmower Dog", Code: "S01E02"},
	}
	f.characters = []*domain.Character{
		{ID: 1, Name: "Rick Sanchez", Status: "Alive",
			Origin:      domain.NamedRef{Name: "Earth (C-137)", URL: "api/location/1"},
			Location:    domain.NamedRef{Name: "Citadel of Ricks", URL: "api/location/3"},
			EpisodeURLs: []string{"api/episode/1", "api/episode/2"}},
		{ID: 2, Name: "Morty Smith", Status: "Alive"},
		{ID: 3, Name: "Summer Smith", Status: "Alive"},
		{ID: 4, Name: "Beth Smith", Status: "Alive"},
		{ID: 5, Name: "Jerry Smith", Status: "Alive"},
	}
	return f
}

func (f *fakeCatalog) count(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeCatalog) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func pageOf[T any](all []T, page int) domain.Page[T] {
	start := (page - 1) * perPage
	if start >= len(all) {
		return domain.Page[T]{Items: []T{}, Number: page}
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}
	p := domain.Page[T]{Items: all[start:end], Number: page, Count: len(all)}
	if end < len(all) {
		p.Next = page + 1
	}
	if page > 1 {
		p.Prev = page - 1
	}
	return p
}

func pick[T domain.Item](all []T, ids []int) []T {
	var out []T
	for _, id := range ids {
		for _, it := range all {
			if it.GetID() == id {
				out = append(out, it)
			}
		}
	}
	return out
}

func pickOne[T domain.Item](all []T, id int) (T, error) {
	if found := pick(all, []int{id}); len(found) == 1 {
		return found[0], nil
	}
	var zero T
	return zero, fmt.Errorf("%d: %w", id, domain.ErrItemNotFound)
}

func (f *fakeCatalog) FetchCharacters(ctx context.Context, page int, filter domain.CharacterFilter) (domain.Page[*domain.Character], error) {
	f.count("fetch_characters")
	return pageOf(f.characters, page), nil
}

func (f *fakeCatalog) GetCharacter(ctx context.Context, id int) (*domain.Character, error) {
	f.count("get_character")
	return pickOne(f.characters, id)
}

func (f *fakeCatalog) GetCharacters(ctx context.Context, ids []int) ([]*domain.Character, error) {
	f.count("get_characters")
	if err := f.failMany[domain.KindCharacter]; err != nil {
		return nil, err
	}
	return pick(f.characters, ids), nil
}

func (f *fakeCatalog) FetchLocations(ctx context.Context, page int, filter domain.LocationFilter) (domain.Page[*domain.Location], error) {
	f.count("fetch_locations")
	return pageOf(f.locations, page), nil
}

func (f *fakeCatalog) GetLocation(ctx context.Context, id int) (*domain.Location, error) {
	f.count("get_location")
	return pickOne(f.locations, id)
}

func (f *fakeCatalog) GetLocations(ctx context.Context, ids []int) ([]*domain.Location, error) {
	f.count("get_locations")
	if err := f.failMany[domain.KindLocation]; err != nil {
		return nil, err
	}
	return pick(f.locations, ids), nil
}

func (f *fakeCatalog) FetchEpisodes(ctx context.Context, page int, filter domain.EpisodeFilter) (domain.Page[*domain.Episode], error) {
	f.count("fetch_episodes")
	return pageOf(f.episodes, page), nil
}

func (f *fakeCatalog) GetEpisode(ctx context.Context, id int) (*domain.Episode, error) {
	f.count("get_episode")
	return pickOne(f.episodes, id)
}

func (f *fakeCatalog) GetEpisodes(ctx context.Context, ids []int) ([]*domain.Episode, error) {
	f.count("get_episodes")
	if err := f.failMany[domain.KindEpisode]; err != nil {
		return nil, err
	}
	return pick(f.episodes, ids), nil
}

func (f *fakeCatalog) Endpoints(ctx context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}

func newCatalog(t *testing.T) (*Catalog, *fakeCatalog) {
	t.Helper()
	src := newFakeCatalog()
	return NewCatalog(src, store.NewMemoryBackend(), paging.Options{}, nil), src
}

func TestCatalogStartLoadsFirstPages(t *testing.T) {
	ctx := context.Background()
	cat, src := newCatalog(t)

	cat.Start(ctx)

	assert.Len(t, cat.Characters.Snapshot().Items, perPage)
	assert.Len(t, cat.Locations.Snapshot().Items, 2)
	assert.True(t, cat.Locations.Snapshot().AppendEnd)
	assert.Equal(t, 1, src.Calls("fetch_episodes"))

	// Fresh cache: a second start stays offline
	cat.Start(ctx)
	assert.Equal(t, 1, src.Calls("fetch_characters"))
}

func TestSyncAllWalksEveryPage(t *testing.T) {
	ctx := context.Background()
	cat, src := newCatalog(t)

	var progress []int
	res, err := SyncAll(ctx, cat.Characters, func(pages, items int) {
		progress = append(progress, items)
	})
	require.NoError(t, err)

	assert.Equal(t, domain.KindCharacter, res.Kind)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 5, res.Items)
	assert.Equal(t, []int{2, 4, 5}, progress)
	assert.Equal(t, 3, src.Calls("fetch_characters"))

	chars, err := cat.Queries.CachedCharacters(ctx)
	require.NoError(t, err)
	assert.Len(t, chars, 5)
}

func TestSearchRanksCachedItems(t *testing.T) {
	ctx := context.Background()
	cat, _ := newCatalog(t)
	_, err := SyncAll(ctx, cat.Characters, nil)
	require.NoError(t, err)
	_, err = SyncAll(ctx, cat.Locations, nil)
	require.NoError(t, err)

	results, err := cat.Queries.Search(ctx, "smith", 0)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for _, r := range results {
		assert.Equal(t, domain.KindCharacter, r.Item.GetKind())
	}

	results, err = cat.Queries.Search(ctx, "citadel", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, domain.KindLocation, results[0].Item.GetKind())

	results, err = cat.Queries.Search(ctx, "  ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchPrefersPrefixMatches(t *testing.T) {
	assert.Less(t, matchScore("rick sanchez", "rick", 8), matchScore("adjudicator rick", "rick", 12))
	assert.Equal(t, 0, matchScore("pilot", "pilot", 0))
}

func TestDetailIsCachedAfterFirstLookup(t *testing.T) {
	ctx := context.Background()
	cat, src := newCatalog(t)

	c, err := cat.Details.Character(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Morty Smith", c.Name)

	c, err = cat.Details.Character(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Morty Smith", c.Name)
	assert.Equal(t, 1, src.Calls("get_character"))

	_, err = cat.Details.Episode(ctx, 99)
	assert.True(t, errors.Is(err, domain.ErrItemNotFound))
}

func TestEnrichCharacterPatchesRelations(t *testing.T) {
	ctx := context.Background()
	cat, src := newCatalog(t)

	rick, err := cat.Details.Character(ctx, 1)
	require.NoError(t, err)

	var mu sync.Mutex
	got := map[string][]string{}
	cat.Details.EnrichCharacter(ctx, rick, func(p Patch) {
		mu.Lock()
		defer mu.Unlock()
		for _, l := range p.Locations {
			got[p.Relation] = append(got[p.Relation], l.Name)
		}
		for _, e := range p.Episodes {
			got[p.Relation] = append(got[p.Relation], e.Code)
		}
	})

	assert.Equal(t, []string{"Earth (C-137)"}, got[RelationOrigin])
	assert.Equal(t, []string{"Citadel of Ricks"}, got[RelationLocation])
	assert.Equal(t, []string{"S01E01", "S01E02"}, got[RelationEpisodes])

	// Second enrichment is served from the detail cache
	before := src.Calls("get_episodes")
	cat.Details.EnrichCharacter(ctx, rick, nil)
	assert.Equal(t, before, src.Calls("get_episodes"))
}

func TestEnrichSkipsFailedLookups(t *testing.T) {
	ctx := context.Background()
	cat, src := newCatalog(t)
	src.failMany[domain.KindEpisode] = &domain.ProtocolError{StatusCode: 502}

	rick, err := cat.Details.Character(ctx, 1)
	require.NoError(t, err)

	var relations []string
	cat.Details.EnrichCharacter(ctx, rick, func(p Patch) {
		relations = append(relations, p.Relation)
	})
	sort.Strings(relations)

	assert.Equal(t, []string{RelationLocation, RelationOrigin}, relations)
}

func TestEnrichEpisodeAndLocation(t *testing.T) {
	ctx := context.Background()
	cat, _ := newCatalog(t)

	pilot, err := cat.Details.Episode(ctx, 1)
	require.NoError(t, err)

	var names []string
	cat.Details.EnrichEpisode(ctx, pilot, func(p Patch) {
		assert.Equal(t, RelationCharacters, p.Relation)
		for _, c := range p.Characters {
			names = append(names, c.Name)
		}
	})
	assert.Equal(t, []string{"Rick Sanchez", "Morty Smith"}, names)

	earth, err := cat.Details.Location(ctx, 1)
	require.NoError(t, err)

	var residents int
	cat.Details.EnrichLocation(ctx, earth, func(p Patch) {
		residents += len(p.Characters)
	})
	assert.Equal(t, 2, residents)
}

func TestBatches(t *testing.T) {
	ids := make([]int, 120)
	for i := range ids {
		ids[i] = i + 1
	}
	b := batches(ids)
	require.Len(t, b, 3)
	assert.Len(t, b[0], 50)
	assert.Len(t, b[2], 20)
	assert.Nil(t, batches(nil))
}

func TestClearCache(t *testing.T) {
	ctx := context.Background()
	cat, _ := newCatalog(t)
	cat.Start(ctx)

	require.NoError(t, cat.ClearCache(ctx))

	items, err := cat.Queries.CachedItems(ctx, domain.KindCharacter)
	require.NoError(t, err)
	assert.Empty(t, items)
	_, ok, err := cat.Queries.Partition(ctx, domain.KindCharacter)
	require.NoError(t, err)
	assert.False(t, ok)
}
