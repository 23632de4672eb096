package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind identifies one of the catalog collections
type Kind string

const (
	KindCharacter Kind = "character"
	KindLocation  Kind = "location"
	KindEpisode   Kind = "episode"
)

// Kinds returns all collections in display order
func Kinds() []Kind {
	return []Kind{KindCharacter, KindLocation, KindEpisode}
}

// Plural returns the collection name used in headings ("characters")
func (k Kind) Plural() string {
	return string(k) + "s"
}

// Title returns the capitalized plural form for display
func (k Kind) Title() string {
	p := k.Plural()
	if p == "" {
		return p
	}
	return strings.ToUpper(p[:1]) + p[1:]
}

// ParseKind accepts singular or plural collection names
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "character", "characters", "char", "c":
		return KindCharacter, nil
	case "location", "locations", "loc", "l":
		return KindLocation, nil
	case "episode", "episodes", "ep", "e":
		return KindEpisode, nil
	default:
		return "", fmt.Errorf("unknown kind %q (want character, location or episode)", s)
	}
}

// NamedRef is a relation pointer to another record
type NamedRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ID returns the referenced record's id, 0 if the reference is empty
func (r NamedRef) ID() int {
	return IDFromURL(r.URL)
}

// Character is a person, creature or robot appearing in the show
type Character struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Status      string    `json:"status"`  // "Alive", "Dead" or "unknown"
	Species     string    `json:"species"` // e.g. "Human", "Alien"
	Type        string    `json:"type"`    // Subspecies, often empty
	Gender      string    `json:"gender"`  // "Female", "Male", "Genderless" or "unknown"
	Origin      NamedRef  `json:"origin"`
	Location    NamedRef  `json:"location"` // Last known location
	ImageURL    string    `json:"image"`
	EpisodeURLs []string  `json:"episode"`
	URL         string    `json:"url"`
	Created     time.Time `json:"created"`
}

// EpisodeIDs returns the ids of episodes the character appears in
func (c *Character) EpisodeIDs() []int {
	return IDsFromURLs(c.EpisodeURLs)
}

func (c *Character) GetID() int      { return c.ID }
func (c *Character) GetName() string { return c.Name }
func (c *Character) GetKind() Kind   { return KindCharacter }

func (c *Character) GetDescription() string {
	parts := make([]string, 0, 2)
	if c.Status != "" {
		parts = append(parts, c.Status)
	}
	if c.Species != "" {
		parts = append(parts, c.Species)
	}
	return strings.Join(parts, " - ")
}

// Location is a place (planet, space station, dimension pocket, ...)
type Location struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Dimension    string    `json:"dimension"`
	ResidentURLs []string  `json:"residents"`
	URL          string    `json:"url"`
	Created      time.Time `json:"created"`
}

// ResidentIDs returns the ids of characters last seen at the location
func (l *Location) ResidentIDs() []int {
	return IDsFromURLs(l.ResidentURLs)
}

func (l *Location) GetID() int      { return l.ID }
func (l *Location) GetName() string { return l.Name }
func (l *Location) GetKind() Kind   { return KindLocation }

func (l *Location) GetDescription() string {
	switch {
	case l.Type != "" && l.Dimension != "":
		return l.Type + " - " + l.Dimension
	case l.Type != "":
		return l.Type
	default:
		return l.Dimension
	}
}

// Episode is a single aired episode
type Episode struct {
	ID            int       `json:"id"`
	Name          string    `json:"name"`
	AirDate       string    `json:"air_date"` // As published, e.g. "December 2, 2013"
	Code          string    `json:"episode"`  // e.g. "S01E01"
	CharacterURLs []string  `json:"characters"`
	URL           string    `json:"url"`
	Created       time.Time `json:"created"`
}

// CharacterIDs returns the ids of characters appearing in the episode
func (e *Episode) CharacterIDs() []int {
	return IDsFromURLs(e.CharacterURLs)
}

// SeasonNumber parses the season from the episode code (0 if unparseable)
func (e *Episode) SeasonNumber() int {
	s, _ := parseEpisodeCode(e.Code)
	return s
}

// EpisodeNumber parses the episode number within its season (0 if unparseable)
func (e *Episode) EpisodeNumber() int {
	_, n := parseEpisodeCode(e.Code)
	return n
}

func (e *Episode) GetID() int      { return e.ID }
func (e *Episode) GetName() string { return e.Name }
func (e *Episode) GetKind() Kind   { return KindEpisode }

func (e *Episode) GetDescription() string {
	switch {
	case e.Code != "" && e.AirDate != "":
		return e.Code + " - " + e.AirDate
	case e.Code != "":
		return e.Code
	default:
		return e.AirDate
	}
}

// parseEpisodeCode splits "S02E07" into (2, 7)
func parseEpisodeCode(code string) (int, int) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !strings.HasPrefix(code, "S") {
		return 0, 0
	}
	idx := strings.Index(code, "E")
	if idx < 0 {
		return 0, 0
	}
	season, err := strconv.Atoi(code[1:idx])
	if err != nil {
		return 0, 0
	}
	num, err := strconv.Atoi(code[idx+1:])
	if err != nil {
		return season, 0
	}
	return season, num
}

// IDFromURL extracts the trailing numeric id from a resource URL.
// Returns 0 for empty or malformed URLs.
func IDFromURL(u string) int {
	u = strings.TrimRight(u, "/")
	if u == "" {
		return 0
	}
	idx := strings.LastIndex(u, "/")
	id, err := strconv.Atoi(u[idx+1:])
	if err != nil || id < 0 {
		return 0
	}
	return id
}

// IDsFromURLs extracts ids from resource URLs, skipping malformed ones
func IDsFromURLs(urls []string) []int {
	ids := make([]int, 0, len(urls))
	for _, u := range urls {
		if id := IDFromURL(u); id > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}
