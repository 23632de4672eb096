package domain

import (
	"context"
)

// CharacterSource provides access to the remote character collection
type CharacterSource interface {
	// FetchCharacters returns one page of characters matching the filter.
	// A filter with no matches yields an empty page, not an error.
	FetchCharacters(ctx context.Context, page int, filter CharacterFilter) (Page[*Character], error)

	// GetCharacter returns a single character by id
	GetCharacter(ctx context.Context, id int) (*Character, error)

	// GetCharacters returns the characters with the given ids (unknown ids are omitted)
	GetCharacters(ctx context.Context, ids []int) ([]*Character, error)
}

// LocationSource provides access to the remote location collection
type LocationSource interface {
	FetchLocations(ctx context.Context, page int, filter LocationFilter) (Page[*Location], error)
	GetLocation(ctx context.Context, id int) (*Location, error)
	GetLocations(ctx context.Context, ids []int) ([]*Location, error)
}

// EpisodeSource provides access to the remote episode collection
type EpisodeSource interface {
	FetchEpisodes(ctx context.Context, page int, filter EpisodeFilter) (Page[*Episode], error)
	GetEpisode(ctx context.Context, id int) (*Episode, error)
	GetEpisodes(ctx context.Context, ids []int) ([]*Episode, error)
}

// CatalogSource is the full remote catalog
type CatalogSource interface {
	CharacterSource
	LocationSource
	EpisodeSource

	// Endpoints returns the collection endpoints advertised by the API root
	Endpoints(ctx context.Context) (map[string]string, error)
}
