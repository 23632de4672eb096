package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// Filter is a set of optional field matchers for one collection.
// It drives both the remote query and the local cache partition.
type Filter interface {
	// Query returns the API query parameters for the non-empty fields
	Query() url.Values

	// Key returns a canonical string identifying the cache partition.
	// The empty filter has key "".
	Key() string

	// Fields returns the editable fields in display order
	Fields() []FilterField
}

// FilterField is one named matcher of a filter
type FilterField struct {
	Name  string
	Value string
}

// Allowed values for enumerated character fields (the API matches case-insensitively)
var (
	CharacterStatuses = []string{"alive", "dead", "unknown"}
	CharacterGenders  = []string{"female", "male", "genderless", "unknown"}
)

// CharacterFilter matches characters
type CharacterFilter struct {
	Name    string
	Status  string
	Species string
	Type    string
	Gender  string
}

func (f CharacterFilter) Query() url.Values {
	return queryOf(f.Fields())
}

func (f CharacterFilter) Key() string {
	return f.Query().Encode()
}

func (f CharacterFilter) Fields() []FilterField {
	return []FilterField{
		{Name: "name", Value: f.Name},
		{Name: "status", Value: f.Status},
		{Name: "species", Value: f.Species},
		{Name: "type", Value: f.Type},
		{Name: "gender", Value: f.Gender},
	}
}

// Validate checks enumerated fields before they reach the API
func (f CharacterFilter) Validate() error {
	if f.Status != "" && !oneOf(f.Status, CharacterStatuses) {
		return fmt.Errorf("%w: status %q (want one of %s)", ErrInvalidFilter, f.Status, strings.Join(CharacterStatuses, ", "))
	}
	if f.Gender != "" && !oneOf(f.Gender, CharacterGenders) {
		return fmt.Errorf("%w: gender %q (want one of %s)", ErrInvalidFilter, f.Gender, strings.Join(CharacterGenders, ", "))
	}
	return nil
}

// LocationFilter matches locations
type LocationFilter struct {
	Name      string
	Type      string
	Dimension string
}

func (f LocationFilter) Query() url.Values {
	return queryOf(f.Fields())
}

func (f LocationFilter) Key() string {
	return f.Query().Encode()
}

func (f LocationFilter) Fields() []FilterField {
	return []FilterField{
		{Name: "name", Value: f.Name},
		{Name: "type", Value: f.Type},
		{Name: "dimension", Value: f.Dimension},
	}
}

// EpisodeFilter matches episodes
type EpisodeFilter struct {
	Name string
	Code string // Episode code or prefix, e.g. "S01"
}

func (f EpisodeFilter) Query() url.Values {
	return queryOf(f.Fields())
}

func (f EpisodeFilter) Key() string {
	return f.Query().Encode()
}

func (f EpisodeFilter) Fields() []FilterField {
	return []FilterField{
		{Name: "name", Value: f.Name},
		{Name: "episode", Value: f.Code},
	}
}

// CharacterFilterFrom builds a filter from named field values
func CharacterFilterFrom(values map[string]string) (CharacterFilter, error) {
	f := CharacterFilter{
		Name:    clean(values["name"]),
		Status:  clean(values["status"]),
		Species: clean(values["species"]),
		Type:    clean(values["type"]),
		Gender:  clean(values["gender"]),
	}
	return f, f.Validate()
}

// LocationFilterFrom builds a filter from named field values
func LocationFilterFrom(values map[string]string) LocationFilter {
	return LocationFilter{
		Name:      clean(values["name"]),
		Type:      clean(values["type"]),
		Dimension: clean(values["dimension"]),
	}
}

// EpisodeFilterFrom builds a filter from named field values
func EpisodeFilterFrom(values map[string]string) EpisodeFilter {
	return EpisodeFilter{
		Name: clean(values["name"]),
		Code: clean(values["episode"]),
	}
}

// DescribeFilter renders the non-empty fields as "name=rick status=alive"
func DescribeFilter(f Filter) string {
	var parts []string
	for _, field := range f.Fields() {
		if field.Value != "" {
			parts = append(parts, field.Name+"="+field.Value)
		}
	}
	if len(parts) == 0 {
		return "all"
	}
	return strings.Join(parts, " ")
}

func queryOf(fields []FilterField) url.Values {
	q := url.Values{}
	for _, f := range fields {
		if f.Value != "" {
			q.Set(f.Name, f.Value)
		}
	}
	return q
}

func clean(s string) string {
	return strings.TrimSpace(s)
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return true
		}
	}
	return false
}
