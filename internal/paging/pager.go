package paging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mmcdole/portal/internal/domain"
	"github.com/mmcdole/portal/internal/metrics"
)

// Snapshot is an immutable view of a pager's item sequence
type Snapshot[T any] struct {
	Kind       domain.Kind
	FilterKey  string
	Items      []T
	Refreshing bool
	Appending  bool
	Prepending bool
	AppendEnd  bool // No page after the last item
	PrependEnd bool // No page before the first item
	Err        error
	Version    uint64
}

// Loading reports whether any load is in flight
func (s Snapshot[T]) Loading() bool {
	return s.Refreshing || s.Appending || s.Prepending
}

// Options tunes a Pager
type Options struct {
	CacheTimeout time.Duration    // Freshness window, defaults to DefaultCacheTimeout
	Now          func() time.Time // Clock, defaults to time.Now
}

// Pager owns the active filter of one collection, runs at most one load per
// direction at a time and publishes snapshots of the local store.
//
// A refresh excludes every other load; appends and prepends may overlap
// each other since they write disjoint pages.
type Pager[T domain.Item, F domain.Filter] struct {
	kind   domain.Kind
	source Source[T, F]
	store  PageStore[T]
	opts   Options
	logger *slog.Logger

	group   singleflight.Group
	loadMu  sync.RWMutex // Refresh and filter changes exclusive, append/prepend shared
	mu      sync.Mutex   // Protects fields below
	filter  F
	anchor  int // Item id a refresh starts around
	med     *Mediator[T, F]
	snap    Snapshot[T]
	subs    map[int]chan Snapshot[T]
	nextSub int
}

// NewPager creates a pager over store bound to the initial filter
func NewPager[T domain.Item, F domain.Filter](
	kind domain.Kind,
	filter F,
	source Source[T, F],
	store PageStore[T],
	opts Options,
	logger *slog.Logger,
) *Pager[T, F] {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pager[T, F]{
		kind:   kind,
		source: source,
		store:  store,
		opts:   opts,
		logger: logger,
		filter: filter,
		subs:   make(map[int]chan Snapshot[T]),
	}
	p.med = p.newMediator(filter)
	p.snap = Snapshot[T]{Kind: kind, FilterKey: filter.Key()}
	return p
}

func (p *Pager[T, F]) newMediator(filter F) *Mediator[T, F] {
	return NewMediator(p.kind, filter, p.source, p.store, p.opts.CacheTimeout, p.opts.Now, p.logger)
}

// Kind returns the collection the pager serves
func (p *Pager[T, F]) Kind() domain.Kind {
	return p.kind
}

// Filter returns the active filter
func (p *Pager[T, F]) Filter() F {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.filter
}

// Snapshot returns the latest published state
func (p *Pager[T, F]) Snapshot() Snapshot[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

// Subscribe returns a channel receiving every new snapshot. The channel
// holds only the newest snapshot; a slow reader skips stale ones. cancel
// closes the channel.
func (p *Pager[T, F]) Subscribe() (<-chan Snapshot[T], func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextSub
	p.nextSub++
	ch := make(chan Snapshot[T], 1)
	ch <- p.snap
	p.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// Start publishes whatever the store holds for the active filter, then
// refreshes unless the cache is fresh
func (p *Pager[T, F]) Start(ctx context.Context) error {
	p.loadMu.RLock()
	part, ok, err := p.store.Partition(ctx)
	if err == nil && ok && part.FilterKey == p.Filter().Key() {
		err = p.publishFromStore(ctx, func(s *Snapshot[T]) {})
	}
	p.loadMu.RUnlock()
	if err != nil {
		return err
	}
	return p.Refresh(ctx)
}

// Refresh reloads from the first page unless the cache for the active
// filter is still fresh, in which case the cached sequence is published
// without a network call
func (p *Pager[T, F]) Refresh(ctx context.Context) error {
	return p.do(ctx, domain.LoadRefresh, false)
}

// Reload refreshes from the network regardless of freshness
func (p *Pager[T, F]) Reload(ctx context.Context) error {
	return p.do(ctx, domain.LoadRefresh, true)
}

// Append loads the page after the last loaded item
func (p *Pager[T, F]) Append(ctx context.Context) error {
	return p.do(ctx, domain.LoadAppend, false)
}

// Prepend loads the page before the first loaded item
func (p *Pager[T, F]) Prepend(ctx context.Context) error {
	return p.do(ctx, domain.LoadPrepend, false)
}

// SetFilter switches the active filter and refreshes. An equal filter is a
// no-op; a fresh partition already cached for filter is served without a
// network call.
func (p *Pager[T, F]) SetFilter(ctx context.Context, filter F) error {
	changed, err := p.SwitchFilter(ctx, filter)
	if err != nil || !changed {
		return err
	}
	return p.Refresh(ctx)
}

// SwitchFilter makes filter the active filter without loading and publishes
// what the store holds for it. A partition cached for another filter is
// discarded with its cursors. Reports whether the active filter changed.
func (p *Pager[T, F]) SwitchFilter(ctx context.Context, filter F) (bool, error) {
	if filter.Key() == p.Filter().Key() {
		return false, nil
	}

	p.loadMu.Lock()
	defer p.loadMu.Unlock()

	part, ok, err := p.store.Partition(ctx)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("read").Inc()
		return false, err
	}
	kept := ok && part.FilterKey == filter.Key()
	if !kept {
		if err := p.store.Reset(ctx, filter.Key()); err != nil {
			metrics.StoreErrors.WithLabelValues("reset").Inc()
			p.logger.Error("failed to reset partition", "kind", string(p.kind), "error", err)
			return false, err
		}
	}

	p.mu.Lock()
	p.filter = filter
	p.med = p.newMediator(filter)
	p.anchor = 0
	p.snap = Snapshot[T]{Kind: p.kind, FilterKey: filter.Key(), Version: p.snap.Version}
	p.mu.Unlock()

	p.logger.Info("filter changed", "kind", string(p.kind), "filter", filter.Key(), "cache_kept", kept)
	return true, p.publishFromStore(ctx, func(s *Snapshot[T]) {})
}

// SetAnchor sets the item a refresh should keep in view. The refresh then
// starts at the page holding that item instead of the first page. Zero or
// an item without a cursor means the first page.
func (p *Pager[T, F]) SetAnchor(itemID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.anchor = itemID
}

// do runs a trigger through the single-flight group of its direction.
// Concurrent callers of the same direction share one load and its error.
func (p *Pager[T, F]) do(ctx context.Context, lt domain.LoadType, force bool) error {
	key := lt.String()
	if force {
		key = "reload"
	}
	_, err, _ := p.group.Do(key, func() (interface{}, error) {
		return nil, p.load(ctx, lt, force)
	})
	return err
}

func (p *Pager[T, F]) load(ctx context.Context, lt domain.LoadType, force bool) error {
	if lt == domain.LoadRefresh {
		p.loadMu.Lock()
		defer p.loadMu.Unlock()
	} else {
		p.loadMu.RLock()
		defer p.loadMu.RUnlock()
	}

	p.mu.Lock()
	med, anchor := p.med, p.anchor
	p.mu.Unlock()

	if lt == domain.LoadRefresh && !force {
		action, err := med.Initialize(ctx)
		if err != nil {
			return p.fail(lt, err)
		}
		if action == SkipInitialRefresh {
			return p.publishFromStore(ctx, func(s *Snapshot[T]) { s.Err = nil })
		}
	}

	switch {
	case lt == domain.LoadAppend && p.Snapshot().AppendEnd:
		return nil
	case lt == domain.LoadPrepend && p.Snapshot().PrependEnd:
		return nil
	}

	p.update(func(s *Snapshot[T]) { setLoading(s, lt, true) })

	items, err := p.store.Items(ctx)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("read").Inc()
		return p.fail(lt, err)
	}

	state := State[T]{Items: items}
	if lt == domain.LoadRefresh {
		state.Anchor = anchor
	}
	res := med.Load(ctx, lt, state)
	if res.Err != nil {
		return p.fail(lt, res.Err)
	}

	return p.publishFromStore(ctx, func(s *Snapshot[T]) {
		setLoading(s, lt, false)
		s.Err = nil
		switch lt {
		case domain.LoadRefresh:
			s.AppendEnd = res.EndOfPagination
			s.PrependEnd = res.Page <= domain.FirstPage
		case domain.LoadAppend:
			s.AppendEnd = res.EndOfPagination
		case domain.LoadPrepend:
			s.PrependEnd = res.EndOfPagination
		}
	})
}

// publishFromStore re-reads the item sequence, applies mutate and publishes
func (p *Pager[T, F]) publishFromStore(ctx context.Context, mutate func(s *Snapshot[T])) error {
	items, err := p.store.Items(ctx)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("read").Inc()
		return err
	}
	appendEnd, prependEnd := p.edges(ctx, items)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.Items = items
	p.snap.AppendEnd = appendEnd
	p.snap.PrependEnd = prependEnd
	mutate(&p.snap)
	p.publishLocked()
	return nil
}

// edges derives end-of-data flags from the cursors of the edge items
func (p *Pager[T, F]) edges(ctx context.Context, items []T) (bool, bool) {
	if len(items) == 0 {
		return false, false
	}
	appendEnd, prependEnd := false, false
	if k, ok, err := p.store.RemoteKey(ctx, items[len(items)-1].GetID()); err == nil && ok {
		appendEnd = k.NextPage == 0
	}
	if k, ok, err := p.store.RemoteKey(ctx, items[0].GetID()); err == nil && ok {
		prependEnd = k.PrevPage == 0
	}
	return appendEnd, prependEnd
}

func (p *Pager[T, F]) fail(lt domain.LoadType, err error) error {
	p.update(func(s *Snapshot[T]) {
		setLoading(s, lt, false)
		s.Err = err
	})
	return err
}

func (p *Pager[T, F]) update(mutate func(s *Snapshot[T])) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mutate(&p.snap)
	p.publishLocked()
}

// publishLocked bumps the version and hands the snapshot to subscribers,
// replacing any snapshot they have not consumed yet. Caller holds p.mu.
func (p *Pager[T, F]) publishLocked() {
	p.snap.Version++
	for _, ch := range p.subs {
		select {
		case <-ch:
		default:
		}
		ch <- p.snap
	}
}

func setLoading[T any](s *Snapshot[T], lt domain.LoadType, on bool) {
	switch lt {
	case domain.LoadRefresh:
		s.Refreshing = on
	case domain.LoadAppend:
		s.Appending = on
	case domain.LoadPrepend:
		s.Prepending = on
	}
}
