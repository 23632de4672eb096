package library

import (
	"context"
	"log/slog"

	"github.com/mmcdole/portal/internal/domain"
	"github.com/mmcdole/portal/internal/paging"
	"github.com/mmcdole/portal/internal/store"
)

// Type aliases for the three collection pagers
type (
	CharacterPager = paging.Pager[*domain.Character, domain.CharacterFilter]
	LocationPager  = paging.Pager[*domain.Location, domain.LocationFilter]
	EpisodePager   = paging.Pager[*domain.Episode, domain.EpisodeFilter]
)

// Catalog bundles the per-collection repositories over one store.
// The store is the source of truth; pagers keep it current in the background.
type Catalog struct {
	Characters *CharacterPager
	Locations  *LocationPager
	Episodes   *EpisodePager
	Queries    *Queries
	Details    *DetailService

	store  domain.Store
	logger *slog.Logger
}

// NewCatalog wires pagers, cache queries and the detail service
func NewCatalog(source domain.CatalogSource, st domain.Store, opts paging.Options, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}

	chars := store.NewCollection[*domain.Character](st, domain.KindCharacter)
	locs := store.NewCollection[*domain.Location](st, domain.KindLocation)
	eps := store.NewCollection[*domain.Episode](st, domain.KindEpisode)

	return &Catalog{
		Characters: paging.NewPager(domain.KindCharacter, domain.CharacterFilter{}, source.FetchCharacters, paging.PageStore[*domain.Character](chars), opts, logger),
		Locations:  paging.NewPager(domain.KindLocation, domain.LocationFilter{}, source.FetchLocations, paging.PageStore[*domain.Location](locs), opts, logger),
		Episodes:   paging.NewPager(domain.KindEpisode, domain.EpisodeFilter{}, source.FetchEpisodes, paging.PageStore[*domain.Episode](eps), opts, logger),
		Queries:    NewQueries(st),
		Details:    NewDetailService(source, st, logger),
		store:      st,
		logger:     logger,
	}
}

// Start publishes cached content for every collection and refreshes the
// stale ones. Errors are recorded in each pager's snapshot.
func (c *Catalog) Start(ctx context.Context) {
	if err := c.Characters.Start(ctx); err != nil {
		c.logger.Warn("character refresh failed", "error", err)
	}
	if err := c.Locations.Start(ctx); err != nil {
		c.logger.Warn("location refresh failed", "error", err)
	}
	if err := c.Episodes.Start(ctx); err != nil {
		c.logger.Warn("episode refresh failed", "error", err)
	}
}

// ClearCache wipes every collection, cursor, partition and detail record
func (c *Catalog) ClearCache(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Error("failed to clear cache", "error", err)
		return err
	}
	c.logger.Info("invalidated all cache")
	return nil
}
