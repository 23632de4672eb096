package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/portal/internal/domain"
)

// backends returns a fresh instance of every backend
func backends(t *testing.T) map[string]domain.Store {
	t.Helper()
	ctx := context.Background()

	bolt, err := NewBoltBackend(filepath.Join(t.TempDir(), "portal.db"))
	require.NoError(t, err)

	sqlite, err := NewSQLiteBackend(ctx, ":memory:")
	require.NoError(t, err)

	all := map[string]domain.Store{
		"bolt":   bolt,
		"sqlite": sqlite,
		"memory": NewMemoryBackend(),
	}
	t.Cleanup(func() {
		for _, s := range all {
			s.Close()
		}
	})
	return all
}

func characters(ids ...int) []*domain.Character {
	out := make([]*domain.Character, len(ids))
	for i, id := range ids {
		out[i] = &domain.Character{ID: id, Name: "char", Status: "Alive"}
	}
	return out
}

func keysFor(items []*domain.Character, page, prev, next int) []domain.RemoteKey {
	keys := make([]domain.RemoteKey, len(items))
	for i, it := range items {
		keys[i] = domain.RemoteKey{ItemID: it.ID, Page: page, PrevPage: prev, NextPage: next}
	}
	return keys
}

func ids(items []*domain.Character) []int {
	out := make([]int, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestApplyPageOrdersByPage(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c := NewCollection[*domain.Character](s, domain.KindCharacter)
			stamp := time.Now().Truncate(time.Millisecond)

			page2 := characters(21, 22)
			require.NoError(t, c.ApplyPage(ctx, domain.PageUpdate[*domain.Character]{
				FilterKey: "name=rick", Reset: true, Page: 2, Items: page2,
				Keys: keysFor(page2, 2, 1, 3), UpdatedAt: stamp,
			}))

			page1 := characters(2, 1)
			require.NoError(t, c.ApplyPage(ctx, domain.PageUpdate[*domain.Character]{
				FilterKey: "name=rick", Page: 1, Items: page1,
				Keys: keysFor(page1, 1, 0, 2), UpdatedAt: stamp,
			}))

			items, err := c.Items(ctx)
			require.NoError(t, err)
			if diff := cmp.Diff([]int{2, 1, 21, 22}, ids(items)); diff != "" {
				t.Errorf("item order mismatch (-want +got):\n%s", diff)
			}

			key, ok, err := c.RemoteKey(ctx, 22)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, domain.RemoteKey{ItemID: 22, Page: 2, PrevPage: 1, NextPage: 3}, key)

			p, ok, err := c.Partition(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "name=rick", p.FilterKey)
			assert.True(t, p.UpdatedAt.Equal(stamp), "got %v want %v", p.UpdatedAt, stamp)
		})
	}
}

func TestApplyPageResetReplacesContent(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c := NewCollection[*domain.Character](s, domain.KindCharacter)

			old := characters(1, 2, 3)
			require.NoError(t, c.ApplyPage(ctx, domain.PageUpdate[*domain.Character]{
				Page: 1, Items: old, Keys: keysFor(old, 1, 0, 2),
			}))

			fresh := characters(7, 8)
			require.NoError(t, c.ApplyPage(ctx, domain.PageUpdate[*domain.Character]{
				Reset: true, Page: 1, Items: fresh, Keys: keysFor(fresh, 1, 0, 0),
			}))

			items, err := c.Items(ctx)
			require.NoError(t, err)
			assert.Equal(t, []int{7, 8}, ids(items))

			_, ok, err := c.RemoteKey(ctx, 1)
			require.NoError(t, err)
			assert.False(t, ok, "stale cursor survived reset")
		})
	}
}

func TestRefetchedItemMovesSlot(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c := NewCollection[*domain.Character](s, domain.KindCharacter)

			p1 := characters(1, 2)
			require.NoError(t, c.ApplyPage(ctx, domain.PageUpdate[*domain.Character]{
				Page: 1, Items: p1, Keys: keysFor(p1, 1, 0, 2),
			}))
			p2 := characters(2, 3)
			require.NoError(t, c.ApplyPage(ctx, domain.PageUpdate[*domain.Character]{
				Page: 2, Items: p2, Keys: keysFor(p2, 2, 1, 0),
			}))

			items, err := c.Items(ctx)
			require.NoError(t, err)
			assert.Equal(t, []int{1, 2, 3}, ids(items))
		})
	}
}

func TestReorderedSlotKeepsNewOccupant(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c := NewCollection[*domain.Character](s, domain.KindCharacter)

			p1 := characters(1, 2)
			require.NoError(t, c.ApplyPage(ctx, domain.PageUpdate[*domain.Character]{
				Page: 1, Items: p1, Keys: keysFor(p1, 1, 0, 2),
			}))
			// Item 3 takes the slot item 1 held
			p1 = characters(3, 2)
			require.NoError(t, c.ApplyPage(ctx, domain.PageUpdate[*domain.Character]{
				Page: 1, Items: p1, Keys: keysFor(p1, 1, 0, 2),
			}))
			// Item 1 reappears on the next page
			p2 := characters(1, 4)
			require.NoError(t, c.ApplyPage(ctx, domain.PageUpdate[*domain.Character]{
				Page: 2, Items: p2, Keys: keysFor(p2, 2, 1, 0),
			}))

			items, err := c.Items(ctx)
			require.NoError(t, err)
			assert.Equal(t, []int{3, 2, 1, 4}, ids(items))

			key, ok, err := c.RemoteKey(ctx, 3)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, 1, key.Page)
		})
	}
}

func TestResetKeepsOtherKinds(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			chars := NewCollection[*domain.Character](s, domain.KindCharacter)
			locs := NewCollection[*domain.Location](s, domain.KindLocation)

			cs := characters(1)
			require.NoError(t, chars.ApplyPage(ctx, domain.PageUpdate[*domain.Character]{
				Page: 1, Items: cs, Keys: keysFor(cs, 1, 0, 0), UpdatedAt: time.Now(),
			}))
			require.NoError(t, locs.ApplyPage(ctx, domain.PageUpdate[*domain.Location]{
				Page: 1, Items: []*domain.Location{{ID: 5, Name: "Earth"}},
				Keys: []domain.RemoteKey{{ItemID: 5, Page: 1}}, UpdatedAt: time.Now(),
			}))

			require.NoError(t, chars.Reset(ctx, "status=dead"))

			got, err := chars.Items(ctx)
			require.NoError(t, err)
			assert.Empty(t, got)

			p, ok, err := chars.Partition(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "status=dead", p.FilterKey)
			assert.True(t, p.UpdatedAt.IsZero())

			l, err := locs.Items(ctx)
			require.NoError(t, err)
			require.Len(t, l, 1)
			assert.Equal(t, "Earth", l[0].Name)
		})
	}
}

func TestDetailCache(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c := NewCollection[*domain.Episode](s, domain.KindEpisode)

			_, ok, err := c.Detail(ctx, 1)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, c.PutDetails(ctx, []*domain.Episode{{ID: 1, Name: "Pilot", Code: "S01E01"}}))

			ep, ok, err := c.Detail(ctx, 1)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "S01E01", ep.Code)

			require.NoError(t, s.Clear(ctx))
			_, ok, err = c.Detail(ctx, 1)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestBoltPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "portal.db")

	s, err := NewBoltBackend(path)
	require.NoError(t, err)
	c := NewCollection[*domain.Character](s, domain.KindCharacter)
	cs := characters(4, 5)
	require.NoError(t, c.ApplyPage(ctx, domain.PageUpdate[*domain.Character]{
		Page: 1, Items: cs, Keys: keysFor(cs, 1, 0, 2), UpdatedAt: time.Now(),
	}))
	require.NoError(t, s.Close())

	s, err = NewBoltBackend(path)
	require.NoError(t, err)
	defer s.Close()

	items, err := NewCollection[*domain.Character](s, domain.KindCharacter).Items(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 5}, ids(items))
}

func TestSQLiteMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteBackend(ctx, filepath.Join(t.TempDir(), "portal.sqlite"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Migrate(ctx, schema))
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(ctx, Options{Driver: DriverSQLite, Dir: dir, BaseURL: "https://rickandmortyapi.com/api"})
	require.NoError(t, err)
	_, isSQLite := s.(*SQLiteBackend)
	assert.True(t, isSQLite)
	require.NoError(t, s.Close())

	s, err = Open(ctx, Options{Driver: DriverBolt})
	require.NoError(t, err)
	_, isMemory := s.(*MemoryBackend)
	assert.True(t, isMemory, "empty dir falls back to memory")

	_, err = Open(ctx, Options{Driver: "redis", Dir: dir})
	assert.Error(t, err)
}

func TestPathIsPerServer(t *testing.T) {
	a := Path(Options{Driver: DriverBolt, Dir: "/cache", BaseURL: "https://rickandmortyapi.com/api"})
	b := Path(Options{Driver: DriverBolt, Dir: "/cache", BaseURL: "https://RickAndMortyAPI.com/api/"})
	c := Path(Options{Driver: DriverBolt, Dir: "/cache", BaseURL: "http://localhost:8080/api"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, "portal.db", filepath.Base(a))
	assert.Equal(t, "", Path(Options{Driver: DriverMemory, Dir: "/cache"}))
}
