package api

import (
	"net/url"
	"strconv"
	"time"

	"github.com/mmcdole/portal/internal/domain"
)

// mapCharacter converts a character DTO to the domain entity
func mapCharacter(d characterDTO) *domain.Character {
	return &domain.Character{
		ID:          d.ID,
		Name:        d.Name,
		Status:      d.Status,
		Species:     d.Species,
		Type:        d.Type,
		Gender:      d.Gender,
		Origin:      domain.NamedRef{Name: d.Origin.Name, URL: d.Origin.URL},
		Location:    domain.NamedRef{Name: d.Location.Name, URL: d.Location.URL},
		ImageURL:    d.Image,
		EpisodeURLs: nonNil(d.Episode),
		URL:         d.URL,
		Created:     parseCreated(d.Created),
	}
}

func mapLocation(d locationDTO) *domain.Location {
	return &domain.Location{
		ID:           d.ID,
		Name:         d.Name,
		Type:         d.Type,
		Dimension:    d.Dimension,
		ResidentURLs: nonNil(d.Residents),
		URL:          d.URL,
		Created:      parseCreated(d.Created),
	}
}

func mapEpisode(d episodeDTO) *domain.Episode {
	return &domain.Episode{
		ID:            d.ID,
		Name:          d.Name,
		AirDate:       d.AirDate,
		Code:          d.Episode,
		CharacterURLs: nonNil(d.Characters),
		URL:           d.URL,
		Created:       parseCreated(d.Created),
	}
}

// pageNumber extracts the "page" query parameter from a pagination link.
// Returns 0 when the link is null or carries no usable page.
func pageNumber(link *string) int {
	if link == nil || *link == "" {
		return 0
	}
	u, err := url.Parse(*link)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(u.Query().Get("page"))
	if err != nil || n < 1 {
		return 0
	}
	return n
}

func parseCreated(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
