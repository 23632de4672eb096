package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mmcdole/portal/internal/domain"
	"github.com/mmcdole/portal/internal/metrics"
)

const (
	// DefaultBaseURL is the public catalog API root
	DefaultBaseURL = "https://rickandmortyapi.com/api"

	defaultTimeout = 15 * time.Second
	userAgent      = "Portal/1.0"
)

// Options tunes the HTTP behaviour of a Client
type Options struct {
	Timeout    time.Duration // Per-request timeout, defaults to 15s
	RateLimit  float64       // Requests per second, <= 0 disables throttling
	Burst      int           // Limiter burst, defaults to 1
	HTTPClient *http.Client  // Overrides the default client (Timeout is then ignored)
}

// Client implements domain.CatalogSource over the catalog REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a new catalog API client
func NewClient(baseURL string, opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
	}
}

// BaseURL returns the API root the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// doRequest performs a throttled GET and returns the body of a 200 response.
// endpoint is the low-cardinality label used for logs and metrics.
func (c *Client) doRequest(ctx context.Context, endpoint, path string, query url.Values) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL = reqURL + "?" + query.Encode()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		metrics.APIRequests.WithLabelValues(endpoint, "throttled").Inc()
		c.logger.Warn("api request throttled", "url", reqURL, "error", err)
		return nil, fmt.Errorf("%w: rate limit wait: %w", domain.ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	c.logger.Debug("api request", "url", reqURL)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.APIRequests.WithLabelValues(endpoint, "transport_error").Inc()
		c.logger.Error("api request failed", "url", reqURL, "error", err)
		return nil, fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	defer resp.Body.Close()
	metrics.APIRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", domain.ErrTransport, err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		_ = json.Unmarshal(body, &apiErr)
		if resp.StatusCode != http.StatusNotFound {
			c.logger.Error("api request error", "status", resp.StatusCode, "url", reqURL, "body", string(body))
		}
		return nil, &domain.ProtocolError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	return body, nil
}

// decode unmarshals a 200 body, reporting malformed payloads as protocol errors
func (c *Client) decode(body []byte, dest any) error {
	if err := json.Unmarshal(body, dest); err != nil {
		c.logger.Error("JSON parse error", "error", err, "bodyLen", len(body))
		return &domain.ProtocolError{StatusCode: http.StatusOK, Message: "malformed response: " + err.Error()}
	}
	return nil
}

// fetchPage requests one page of a collection and maps its results
func fetchPage[D, T any](ctx context.Context, c *Client, collection string, page int, filter domain.Filter, mapFn func(D) T) (domain.Page[T], error) {
	if page < domain.FirstPage {
		page = domain.FirstPage
	}
	query := filter.Query()
	query.Set("page", strconv.Itoa(page))

	body, err := c.doRequest(ctx, "/"+collection, "/"+collection, query)
	if err != nil {
		var pe *domain.ProtocolError
		if errors.As(err, &pe) && pe.IsNotFound() {
			// The API answers 404 when nothing matches the filter
			// or the page is past the end
			return domain.Page[T]{Items: []T{}, Number: page}, nil
		}
		return domain.Page[T]{}, err
	}

	var resp listResponse
	if err := c.decode(body, &resp); err != nil {
		return domain.Page[T]{}, err
	}

	items := make([]T, 0, len(resp.Results))
	for _, raw := range resp.Results {
		var dto D
		if err := c.decode(raw, &dto); err != nil {
			return domain.Page[T]{}, err
		}
		items = append(items, mapFn(dto))
	}

	return domain.Page[T]{
		Items:  items,
		Number: page,
		Prev:   pageNumber(resp.Info.Prev),
		Next:   pageNumber(resp.Info.Next),
		Count:  resp.Info.Count,
		Pages:  resp.Info.Pages,
	}, nil
}

// getOne requests a single record by id
func getOne[D, T any](ctx context.Context, c *Client, collection string, id int, mapFn func(D) T) (T, error) {
	var zero T
	if id < 1 {
		return zero, fmt.Errorf("%s %d: %w", collection, id, domain.ErrItemNotFound)
	}

	body, err := c.doRequest(ctx, "/"+collection+"/{id}", fmt.Sprintf("/%s/%d", collection, id), nil)
	if err != nil {
		var pe *domain.ProtocolError
		if errors.As(err, &pe) && pe.IsNotFound() {
			return zero, fmt.Errorf("%s %d: %w", collection, id, domain.ErrItemNotFound)
		}
		return zero, err
	}

	var dto D
	if err := c.decode(body, &dto); err != nil {
		return zero, err
	}
	return mapFn(dto), nil
}

// getMany requests several records through the multi-id endpoint.
// Ids the API does not know are silently omitted.
func getMany[D, T any](ctx context.Context, c *Client, collection string, ids []int, mapFn func(D) T) ([]T, error) {
	ids = uniquePositive(ids)
	switch len(ids) {
	case 0:
		return []T{}, nil
	case 1:
		// A single id returns an object rather than an array
		item, err := getOne(ctx, c, collection, ids[0], mapFn)
		if errors.Is(err, domain.ErrItemNotFound) {
			return []T{}, nil
		}
		if err != nil {
			return nil, err
		}
		return []T{item}, nil
	}

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}

	body, err := c.doRequest(ctx, "/"+collection+"/{ids}", "/"+collection+"/"+strings.Join(parts, ","), nil)
	if err != nil {
		var pe *domain.ProtocolError
		if errors.As(err, &pe) && pe.IsNotFound() {
			return []T{}, nil
		}
		return nil, err
	}

	var dtos []D
	if err := c.decode(body, &dtos); err != nil {
		return nil, err
	}

	items := make([]T, 0, len(dtos))
	for _, d := range dtos {
		items = append(items, mapFn(d))
	}
	return items, nil
}

func uniquePositive(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if id < 1 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// === Characters ===

// FetchCharacters returns one page of characters matching the filter
func (c *Client) FetchCharacters(ctx context.Context, page int, filter domain.CharacterFilter) (domain.Page[*domain.Character], error) {
	return fetchPage(ctx, c, "character", page, filter, mapCharacter)
}

func (c *Client) GetCharacter(ctx context.Context, id int) (*domain.Character, error) {
	return getOne(ctx, c, "character", id, mapCharacter)
}

func (c *Client) GetCharacters(ctx context.Context, ids []int) ([]*domain.Character, error) {
	return getMany(ctx, c, "character", ids, mapCharacter)
}

// === Locations ===

// FetchLocations returns one page of locations matching the filter
func (c *Client) FetchLocations(ctx context.Context, page int, filter domain.LocationFilter) (domain.Page[*domain.Location], error) {
	return fetchPage(ctx, c, "location", page, filter, mapLocation)
}

func (c *Client) GetLocation(ctx context.Context, id int) (*domain.Location, error) {
	return getOne(ctx, c, "location", id, mapLocation)
}

func (c *Client) GetLocations(ctx context.Context, ids []int) ([]*domain.Location, error) {
	return getMany(ctx, c, "location", ids, mapLocation)
}

// === Episodes ===

// FetchEpisodes returns one page of episodes matching the filter
func (c *Client) FetchEpisodes(ctx context.Context, page int, filter domain.EpisodeFilter) (domain.Page[*domain.Episode], error) {
	return fetchPage(ctx, c, "episode", page, filter, mapEpisode)
}

func (c *Client) GetEpisode(ctx context.Context, id int) (*domain.Episode, error) {
	return getOne(ctx, c, "episode", id, mapEpisode)
}

func (c *Client) GetEpisodes(ctx context.Context, ids []int) ([]*domain.Episode, error) {
	return getMany(ctx, c, "episode", ids, mapEpisode)
}

// Endpoints returns the collection endpoints advertised by the API root
func (c *Client) Endpoints(ctx context.Context) (map[string]string, error) {
	body, err := c.doRequest(ctx, "/", "", nil)
	if err != nil {
		return nil, err
	}
	endpoints := make(map[string]string)
	if err := c.decode(body, &endpoints); err != nil {
		return nil, err
	}
	return endpoints, nil
}

var _ domain.CatalogSource = (*Client)(nil)
