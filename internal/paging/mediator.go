// Package paging keeps a local collection in step with a paged remote
// listing. The Mediator decides which page to fetch for a load trigger and
// writes it to the store in one transaction; the Pager serializes triggers
// and publishes the store's item sequence to subscribers.
package paging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mmcdole/portal/internal/domain"
	"github.com/mmcdole/portal/internal/metrics"
)

// DefaultCacheTimeout is how long a written partition counts as fresh
const DefaultCacheTimeout = time.Hour

// InitializeAction tells the pager whether a refresh must hit the network
type InitializeAction int

const (
	LaunchInitialRefresh InitializeAction = iota
	SkipInitialRefresh
)

func (a InitializeAction) String() string {
	if a == SkipInitialRefresh {
		return "skip"
	}
	return "launch"
}

// Source fetches one page of a remote collection
type Source[T any, F domain.Filter] func(ctx context.Context, page int, filter F) (domain.Page[T], error)

// PageStore is the typed local store of one collection.
// store.Collection implements it.
type PageStore[T any] interface {
	Partition(ctx context.Context) (domain.Partition, bool, error)
	Items(ctx context.Context) ([]T, error)
	RemoteKey(ctx context.Context, itemID int) (domain.RemoteKey, bool, error)
	ApplyPage(ctx context.Context, u domain.PageUpdate[T]) error
	Reset(ctx context.Context, filterKey string) error
}

// State is the loaded sequence a trigger is evaluated against
type State[T any] struct {
	Items  []T
	Anchor int // Item id to refresh around, 0 for the first page
}

// MediatorResult is the outcome of one load
type MediatorResult struct {
	EndOfPagination bool // No further page in the load direction
	Page            int  // Page written, 0 when nothing was fetched
	Loaded          int  // Number of items written
	Err             error
}

// Mediator fetches pages for one collection under one filter
type Mediator[T domain.Item, F domain.Filter] struct {
	kind    domain.Kind
	filter  F
	source  Source[T, F]
	store   PageStore[T]
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// NewMediator creates a mediator bound to filter. A timeout <= 0 uses
// DefaultCacheTimeout; a nil clock uses time.Now.
func NewMediator[T domain.Item, F domain.Filter](
	kind domain.Kind,
	filter F,
	source Source[T, F],
	store PageStore[T],
	timeout time.Duration,
	now func() time.Time,
	logger *slog.Logger,
) *Mediator[T, F] {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultCacheTimeout
	}
	if now == nil {
		now = time.Now
	}
	return &Mediator[T, F]{
		kind:    kind,
		filter:  filter,
		source:  source,
		store:   store,
		timeout: timeout,
		now:     now,
		logger:  logger.With("kind", string(kind), "filter", filter.Key()),
	}
}

// Filter returns the filter the mediator is bound to
func (m *Mediator[T, F]) Filter() F {
	return m.filter
}

// Initialize skips the network when the partition holds content for this
// filter written within the cache timeout
func (m *Mediator[T, F]) Initialize(ctx context.Context) (InitializeAction, error) {
	p, ok, err := m.store.Partition(ctx)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("read").Inc()
		return LaunchInitialRefresh, err
	}
	if ok && p.IsFresh(m.filter.Key(), m.timeout, m.now()) {
		m.logger.Debug("cache fresh, skipping refresh", "updated_at", p.UpdatedAt)
		metrics.InitialRefreshSkips.WithLabelValues(string(m.kind)).Inc()
		return SkipInitialRefresh, nil
	}
	return LaunchInitialRefresh, nil
}

// Load runs one trigger. Failures are reported in the result and leave the
// store untouched.
func (m *Mediator[T, F]) Load(ctx context.Context, lt domain.LoadType, state State[T]) MediatorResult {
	logger := m.logger.With("load", lt.String(), "load_id", uuid.NewString())

	page, end, err := m.targetPage(ctx, lt, state)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("read").Inc()
		logger.Error("failed to resolve page", "error", err)
		return m.result(lt, MediatorResult{Err: err})
	}
	if end {
		logger.Debug("end of pagination, no fetch")
		return m.result(lt, MediatorResult{EndOfPagination: true})
	}

	logger.Debug("fetching page", "page", page)
	fetched, err := m.source(ctx, page, m.filter)
	if err != nil {
		logger.Error("fetch failed", "page", page, "error", err)
		return m.result(lt, MediatorResult{Err: err})
	}

	end = fetched.IsEmpty() || fetched.Next == 0
	if lt == domain.LoadPrepend {
		end = fetched.IsEmpty() || page <= domain.FirstPage
	}

	if fetched.IsEmpty() && lt != domain.LoadRefresh {
		logger.Debug("empty page", "page", page)
		return m.result(lt, MediatorResult{EndOfPagination: true})
	}

	prev := page - 1
	next := page + 1
	if fetched.IsEmpty() || fetched.Next == 0 {
		next = 0
	}

	keys := make([]domain.RemoteKey, len(fetched.Items))
	for i, item := range fetched.Items {
		keys[i] = domain.RemoteKey{ItemID: item.GetID(), Page: page, PrevPage: prev, NextPage: next}
	}

	err = m.store.ApplyPage(ctx, domain.PageUpdate[T]{
		FilterKey: m.filter.Key(),
		Reset:     lt == domain.LoadRefresh,
		Page:      page,
		Items:     fetched.Items,
		Keys:      keys,
		UpdatedAt: m.now(),
	})
	if err != nil {
		metrics.StoreErrors.WithLabelValues("apply_page").Inc()
		logger.Error("failed to apply page", "page", page, "error", err)
		return m.result(lt, MediatorResult{Err: err})
	}

	logger.Debug("applied page", "page", page, "count", len(fetched.Items), "end", end)
	return m.result(lt, MediatorResult{EndOfPagination: end, Page: page, Loaded: len(fetched.Items)})
}

// targetPage resolves the page a trigger should fetch, or reports that the
// load direction is exhausted
func (m *Mediator[T, F]) targetPage(ctx context.Context, lt domain.LoadType, state State[T]) (int, bool, error) {
	if lt == domain.LoadRefresh {
		if state.Anchor == 0 {
			return domain.FirstPage, false, nil
		}
		key, ok, err := m.cursor(ctx, state.Anchor)
		if err != nil {
			return 0, false, err
		}
		if !ok || key.Page < domain.FirstPage {
			return domain.FirstPage, false, nil
		}
		return key.Page, false, nil
	}

	if len(state.Items) == 0 {
		return 0, true, nil
	}

	edge := state.Items[len(state.Items)-1]
	if lt == domain.LoadPrepend {
		edge = state.Items[0]
	}

	key, ok, err := m.cursor(ctx, edge.GetID())
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, true, nil
	}

	if lt == domain.LoadPrepend {
		return key.PrevPage, key.PrevPage == 0, nil
	}
	return key.NextPage, key.NextPage == 0, nil
}

// cursor looks up a remote key, ignoring keys written under another filter
func (m *Mediator[T, F]) cursor(ctx context.Context, itemID int) (domain.RemoteKey, bool, error) {
	p, ok, err := m.store.Partition(ctx)
	if err != nil {
		return domain.RemoteKey{}, false, err
	}
	if !ok || p.FilterKey != m.filter.Key() {
		return domain.RemoteKey{}, false, nil
	}
	return m.store.RemoteKey(ctx, itemID)
}

func (m *Mediator[T, F]) result(lt domain.LoadType, r MediatorResult) MediatorResult {
	outcome := "page"
	switch {
	case r.Err != nil:
		outcome = "error"
	case r.EndOfPagination && r.Loaded == 0:
		outcome = "end"
	}
	metrics.MediatorLoads.WithLabelValues(string(m.kind), lt.String(), outcome).Inc()
	return r
}
