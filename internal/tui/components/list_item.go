package components

import (
	"fmt"

	"github.com/mmcdole/portal/internal/domain"
)

// ListItem is the interface for rows displayed in a ListColumn.
// It provides a common API for display and filtering across all collections.
type ListItem interface {
	// ItemID returns the API identifier
	ItemID() int

	// ItemTitle returns the display title
	ItemTitle() string

	// ItemSubtitle returns secondary text (status, dimension, air date)
	ItemSubtitle() string

	// FilterValue returns the string used for fuzzy filtering
	FilterValue() string

	// Unwrap returns the underlying domain record
	Unwrap() domain.Item
}

// CharacterListItem wraps *domain.Character to implement ListItem
type CharacterListItem struct {
	Character *domain.Character
}

func (i CharacterListItem) ItemID() int          { return i.Character.ID }
func (i CharacterListItem) ItemTitle() string    { return i.Character.Name }
func (i CharacterListItem) ItemSubtitle() string { return i.Character.GetDescription() }
func (i CharacterListItem) FilterValue() string  { return i.Character.Name }
func (i CharacterListItem) Unwrap() domain.Item  { return i.Character }

// LocationListItem wraps *domain.Location to implement ListItem
type LocationListItem struct {
	Location *domain.Location
}

func (i LocationListItem) ItemID() int          { return i.Location.ID }
func (i LocationListItem) ItemTitle() string    { return i.Location.Name }
func (i LocationListItem) ItemSubtitle() string { return i.Location.GetDescription() }
func (i LocationListItem) FilterValue() string  { return i.Location.Name }
func (i LocationListItem) Unwrap() domain.Item  { return i.Location }

// EpisodeListItem wraps *domain.Episode to implement ListItem
type EpisodeListItem struct {
	Episode *domain.Episode
}

func (i EpisodeListItem) ItemID() int { return i.Episode.ID }
func (i EpisodeListItem) ItemTitle() string {
	if i.Episode.Code == "" {
		return i.Episode.Name
	}
	return fmt.Sprintf("%s %s", i.Episode.Code, i.Episode.Name)
}
func (i EpisodeListItem) ItemSubtitle() string { return i.Episode.AirDate }
func (i EpisodeListItem) FilterValue() string  { return i.Episode.Code + " " + i.Episode.Name }
func (i EpisodeListItem) Unwrap() domain.Item  { return i.Episode }

// WrapItem converts a domain record to its ListItem
func WrapItem(item domain.Item) ListItem {
	switch v := item.(type) {
	case *domain.Character:
		return CharacterListItem{Character: v}
	case *domain.Location:
		return LocationListItem{Location: v}
	case *domain.Episode:
		return EpisodeListItem{Episode: v}
	default:
		return nil
	}
}

// WrapItems converts a slice of records to []ListItem
func WrapItems[T domain.Item](records []T) []ListItem {
	items := make([]ListItem, 0, len(records))
	for _, r := range records {
		if li := WrapItem(r); li != nil {
			items = append(items, li)
		}
	}
	return items
}
