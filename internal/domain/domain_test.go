package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterKeyIsCanonical(t *testing.T) {
	a := CharacterFilter{Name: "rick", Status: "alive"}
	b := CharacterFilter{Status: "alive", Name: "rick"}

	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, "name=rick&status=alive", a.Key())
	assert.Equal(t, "", CharacterFilter{}.Key())
	assert.NotEqual(t, a.Key(), CharacterFilter{Name: "rick"}.Key())
}

func TestEpisodeFilterUsesEpisodeParam(t *testing.T) {
	f := EpisodeFilter{Code: "S01"}
	assert.Equal(t, "S01", f.Query().Get("episode"))
}

func TestCharacterFilterValidate(t *testing.T) {
	_, err := CharacterFilterFrom(map[string]string{"status": " Alive ", "gender": "female"})
	assert.NoError(t, err)

	_, err = CharacterFilterFrom(map[string]string{"status": "sleeping"})
	assert.True(t, errors.Is(err, ErrInvalidFilter))

	_, err = CharacterFilterFrom(map[string]string{"gender": "robot"})
	assert.True(t, errors.Is(err, ErrInvalidFilter))
}

func TestDescribeFilter(t *testing.T) {
	assert.Equal(t, "all", DescribeFilter(LocationFilter{}))
	assert.Equal(t, "name=earth dimension=C-137", DescribeFilter(LocationFilter{Name: "earth", Dimension: "C-137"}))
}

func TestIDFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want int
	}{
		{"https://rickandmortyapi.com/api/character/42", 42},
		{"https://rickandmortyapi.com/api/location/3/", 3},
		{"", 0},
		{"https://rickandmortyapi.com/api/character/abc", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IDFromURL(tt.url), tt.url)
	}

	assert.Equal(t, []int{1, 2}, IDsFromURLs([]string{"x/1", "", "x/2"}))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("Characters")
	require.NoError(t, err)
	assert.Equal(t, KindCharacter, k)
	assert.Equal(t, "Characters", k.Title())

	_, err = ParseKind("planets")
	assert.Error(t, err)
}

func TestEpisodeCode(t *testing.T) {
	e := &Episode{Code: "S03E07"}
	assert.Equal(t, 3, e.SeasonNumber())
	assert.Equal(t, 7, e.EpisodeNumber())

	bad := &Episode{Code: "pilot"}
	assert.Equal(t, 0, bad.SeasonNumber())
}

func TestPartitionIsFresh(t *testing.T) {
	now := time.Now()
	p := Partition{Kind: KindCharacter, FilterKey: "name=rick", UpdatedAt: now.Add(-time.Minute)}

	assert.True(t, p.IsFresh("name=rick", time.Hour, now))
	assert.False(t, p.IsFresh("name=rick", 30*time.Second, now))
	assert.False(t, p.IsFresh("", time.Hour, now))
	assert.False(t, Partition{FilterKey: "name=rick"}.IsFresh("name=rick", time.Hour, now))
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "", UserMessage(nil))
	assert.Contains(t, UserMessage(fmt.Errorf("%w: dial tcp", ErrTransport)), "Cannot reach")
	assert.Equal(t, "Request cancelled", UserMessage(fmt.Errorf("%w: %w", ErrTransport, context.Canceled)))
	assert.Equal(t, "Catalog server error (502)", UserMessage(&ProtocolError{StatusCode: 502}))
	assert.Contains(t, UserMessage(&ProtocolError{StatusCode: 429}), "Rate limited")
	assert.Equal(t, "Item not found", UserMessage(fmt.Errorf("character 9: %w", ErrItemNotFound)))
}
