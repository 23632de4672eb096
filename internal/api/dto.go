package api

import "encoding/json"

// listResponse is the envelope of every collection listing
type listResponse struct {
	Info    pageInfo          `json:"info"`
	Results []json.RawMessage `json:"results"`
}

// pageInfo carries pagination metadata. Next and Prev are full URLs or null.
type pageInfo struct {
	Count int     `json:"count"`
	Pages int     `json:"pages"`
	Next  *string `json:"next"`
	Prev  *string `json:"prev"`
}

// errorResponse is the body of non-2xx responses
type errorResponse struct {
	Error string `json:"error"`
}

// ref is a {name, url} relation pointer
type ref struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type characterDTO struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Status   string   `json:"status"`
	Species  string   `json:"species"`
	Type     string   `json:"type"`
	Gender   string   `json:"gender"`
	Origin   ref      `json:"origin"`
	Location ref      `json:"location"`
	Image    string   `json:"image"`
	Episode  []string `json:"episode"`
	URL      string   `json:"url"`
	Created  string   `json:"created"` // RFC 3339 with milliseconds
}

type locationDTO struct {
	ID        int      `json:"id"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Dimension string   `json:"dimension"`
	Residents []string `json:"residents"`
	URL       string   `json:"url"`
	Created   string   `json:"created"`
}

type episodeDTO struct {
	ID         int      `json:"id"`
	Name       string   `json:"name"`
	AirDate    string   `json:"air_date"`
	Episode    string   `json:"episode"`
	Characters []string `json:"characters"`
	URL        string   `json:"url"`
	Created    string   `json:"created"`
}
