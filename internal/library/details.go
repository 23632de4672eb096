package library

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mmcdole/portal/internal/domain"
	"github.com/mmcdole/portal/internal/metrics"
	"github.com/mmcdole/portal/internal/store"
)

const (
	// batchSize caps the ids per multi-id request
	batchSize = 50
	// maxParallel caps concurrent enrichment requests per detail
	maxParallel = 4
)

// Relation names carried by patches
const (
	RelationOrigin     = "origin"
	RelationLocation   = "location"
	RelationEpisodes   = "episodes"
	RelationResidents  = "residents"
	RelationCharacters = "characters"
)

// Patch is a batch of related records resolved for a detail view
type Patch struct {
	Relation   string
	Characters []*domain.Character
	Locations  []*domain.Location
	Episodes   []*domain.Episode
}

// PatchFunc receives patches as enrichment lookups finish.
// Calls are serialized.
type PatchFunc func(Patch)

// DetailService resolves single records and their relations, preferring the
// detail cache over the network.
type DetailService struct {
	source domain.CatalogSource
	chars  *store.Collection[*domain.Character]
	locs   *store.Collection[*domain.Location]
	eps    *store.Collection[*domain.Episode]
	logger *slog.Logger
}

// NewDetailService creates a detail service over the given store
func NewDetailService(source domain.CatalogSource, st domain.Store, logger *slog.Logger) *DetailService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DetailService{
		source: source,
		chars:  store.NewCollection[*domain.Character](st, domain.KindCharacter),
		locs:   store.NewCollection[*domain.Location](st, domain.KindLocation),
		eps:    store.NewCollection[*domain.Episode](st, domain.KindEpisode),
		logger: logger,
	}
}

// Character returns one character from the detail cache or the network
func (s *DetailService) Character(ctx context.Context, id int) (*domain.Character, error) {
	return lookup(ctx, s, s.chars, id, s.source.GetCharacter)
}

// Location returns one location from the detail cache or the network
func (s *DetailService) Location(ctx context.Context, id int) (*domain.Location, error) {
	return lookup(ctx, s, s.locs, id, s.source.GetLocation)
}

// Episode returns one episode from the detail cache or the network
func (s *DetailService) Episode(ctx context.Context, id int) (*domain.Episode, error) {
	return lookup(ctx, s, s.eps, id, s.source.GetEpisode)
}

// EnrichCharacter resolves origin, last known location and episodes
// concurrently. Failed lookups are logged and skipped; it returns when every
// lookup has finished.
func (s *DetailService) EnrichCharacter(ctx context.Context, c *domain.Character, onPatch PatchFunc) {
	e := s.newEnricher(ctx, onPatch)

	locIDs := map[string]int{
		RelationOrigin:   c.Origin.ID(),
		RelationLocation: c.Location.ID(),
	}
	for relation, id := range locIDs {
		if id == 0 {
			continue
		}
		e.run(domain.KindLocation, func(ctx context.Context) (Patch, error) {
			locs, err := resolve(ctx, s, s.locs, []int{id}, s.source.GetLocations)
			return Patch{Relation: relation, Locations: locs}, err
		})
	}

	for _, batch := range batches(c.EpisodeIDs()) {
		e.run(domain.KindEpisode, func(ctx context.Context) (Patch, error) {
			eps, err := resolve(ctx, s, s.eps, batch, s.source.GetEpisodes)
			return Patch{Relation: RelationEpisodes, Episodes: eps}, err
		})
	}

	e.wait()
}

// EnrichLocation resolves the residents of a location
func (s *DetailService) EnrichLocation(ctx context.Context, l *domain.Location, onPatch PatchFunc) {
	e := s.newEnricher(ctx, onPatch)
	for _, batch := range batches(l.ResidentIDs()) {
		e.run(domain.KindCharacter, func(ctx context.Context) (Patch, error) {
			chars, err := resolve(ctx, s, s.chars, batch, s.source.GetCharacters)
			return Patch{Relation: RelationResidents, Characters: chars}, err
		})
	}
	e.wait()
}

// EnrichEpisode resolves the characters appearing in an episode
func (s *DetailService) EnrichEpisode(ctx context.Context, ep *domain.Episode, onPatch PatchFunc) {
	e := s.newEnricher(ctx, onPatch)
	for _, batch := range batches(ep.CharacterIDs()) {
		e.run(domain.KindCharacter, func(ctx context.Context) (Patch, error) {
			chars, err := resolve(ctx, s, s.chars, batch, s.source.GetCharacters)
			return Patch{Relation: RelationCharacters, Characters: chars}, err
		})
	}
	e.wait()
}

// enricher fans lookups out over an errgroup and serializes patch delivery
type enricher struct {
	g       *errgroup.Group
	ctx     context.Context
	mu      sync.Mutex
	onPatch PatchFunc
	logger  *slog.Logger
}

func (s *DetailService) newEnricher(ctx context.Context, onPatch PatchFunc) *enricher {
	g := &errgroup.Group{}
	g.SetLimit(maxParallel)
	return &enricher{g: g, ctx: ctx, onPatch: onPatch, logger: s.logger}
}

func (e *enricher) run(kind domain.Kind, fn func(ctx context.Context) (Patch, error)) {
	e.g.Go(func() error {
		patch, err := fn(e.ctx)
		if err != nil {
			metrics.EnrichmentFailures.WithLabelValues(string(kind)).Inc()
			e.logger.Warn("enrichment lookup failed", "kind", string(kind), "relation", patch.Relation, "error", err)
			return nil
		}
		if e.onPatch != nil {
			e.mu.Lock()
			e.onPatch(patch)
			e.mu.Unlock()
		}
		return nil
	})
}

func (e *enricher) wait() {
	_ = e.g.Wait()
}

// lookup returns a cached detail or fetches and caches it
func lookup[T domain.Item](
	ctx context.Context,
	s *DetailService,
	coll *store.Collection[T],
	id int,
	fetch func(context.Context, int) (T, error),
) (T, error) {
	if item, ok, err := coll.Detail(ctx, id); err == nil && ok {
		return item, nil
	} else if err != nil {
		s.logger.Warn("detail cache read failed", "kind", string(coll.Kind()), "id", id, "error", err)
	}

	item, err := fetch(ctx, id)
	if err != nil {
		var zero T
		return zero, err
	}
	if err := coll.PutDetails(ctx, []T{item}); err != nil {
		metrics.StoreErrors.WithLabelValues("put_details").Inc()
		s.logger.Warn("failed to cache detail", "kind", string(coll.Kind()), "id", id, "error", err)
	}
	return item, nil
}

// resolve returns the records for ids in order, fetching only the ones
// missing from the detail cache
func resolve[T domain.Item](
	ctx context.Context,
	s *DetailService,
	coll *store.Collection[T],
	ids []int,
	fetchMany func(context.Context, []int) ([]T, error),
) ([]T, error) {
	found := make(map[int]T, len(ids))
	var missing []int
	for _, id := range ids {
		if item, ok, err := coll.Detail(ctx, id); err == nil && ok {
			found[id] = item
			continue
		}
		missing = append(missing, id)
	}

	if len(missing) > 0 {
		fetched, err := fetchMany(ctx, missing)
		if err != nil {
			return nil, err
		}
		if err := coll.PutDetails(ctx, fetched); err != nil {
			metrics.StoreErrors.WithLabelValues("put_details").Inc()
			s.logger.Warn("failed to cache details", "kind", string(coll.Kind()), "error", err)
		}
		for _, item := range fetched {
			found[item.GetID()] = item
		}
	}

	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if item, ok := found[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func batches(ids []int) [][]int {
	var out [][]int
	for len(ids) > 0 {
		n := batchSize
		if len(ids) < n {
			n = len(ids)
		}
		out = append(out, ids[:n])
		ids = ids[n:]
	}
	return out
}
