package collection

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type fetchKind string

const (
	kindInitial fetchKind = "initial"
	kindMore    fetchKind = "more"
)

// flight is one issued fetch. Only the flight whose seq equals the
// paginator's latest seq may change state when it settles.
type flight struct {
	seq    uint64
	kind   fetchKind
	key    string // collection + filters, set for initial fetches
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Paginator.
type Option func(*Paginator)

// WithLogger sets the logger. Defaults to the global logger with component=collection.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Paginator) {
		p.logger = logger
	}
}

// WithCache replaces the default per-instance MemoryCache.
func WithCache(cache PageCache) Option {
	return func(p *Paginator) {
		p.cache = cache
	}
}

// WithoutCache disables page memoisation.
func WithoutCache() Option {
	return func(p *Paginator) {
		p.cache = nil
	}
}

// WithOnChange registers a callback invoked with a snapshot after every
// state transition. It may be called from several goroutines; use State
// for the authoritative latest value.
func WithOnChange(fn func(State)) Option {
	return func(p *Paginator) {
		p.onChange = fn
	}
}

// Paginator accumulates the pages of one collection, re-querying from page 1
// whenever the filter set changes.
//
// Operations block the calling goroutine until their fetch settles or is
// superseded. Failures never surface as return values; they are recorded
// as the Error state and read through State.
type Paginator struct {
	source   PageDataSource
	cache    PageCache
	logger   zerolog.Logger
	onChange func(State)

	mu           sync.Mutex
	collectionID string
	items        []Item
	filters      Filters
	state        FetchState
	meta         *PageMeta
	info         *Info
	lastErr      string
	failedKind   fetchKind
	traits       map[string]struct{} // trait names seen in loaded pages of collectionID
	seq          uint64
	inflight     *flight
}

// New creates a paginator over source.
func New(source PageDataSource, opts ...Option) *Paginator {
	p := &Paginator{
		source:  source,
		cache:   NewMemoryCache(),
		logger:  log.With().Str("component", "collection").Logger(),
		filters: Filters{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// query describes a page-1 refetch.
type query struct {
	collectionID string
	filters      Filters
	reset        bool // clear items before fetching
	invalidate   bool // drop cached pages of the collection
}

// Initialize binds the paginator to a collection and loads page 1 with no filters.
func (p *Paginator) Initialize(ctx context.Context, collectionID string) {
	p.refetch(ctx, func() (query, bool) {
		return query{collectionID: collectionID, filters: Filters{}, reset: true}, true
	})
}

// SetFilter sets (or, with an empty value, removes) the filter for a trait
// and reloads from page 1. A trait that no loaded item carries is ignored.
func (p *Paginator) SetFilter(ctx context.Context, trait, value string) {
	p.refetch(ctx, func() (query, bool) {
		next := p.filters.Clone()
		if value == "" {
			delete(next, trait)
		} else {
			if !p.knownTraitLocked(trait) {
				p.logger.Warn().Str("trait", trait).Msg("Filter ignored: trait not seen in loaded items")
				return query{}, false
			}
			next[trait] = value
		}
		return query{collectionID: p.collectionID, filters: next, invalidate: true}, true
	})
}

// SetFilters replaces the whole filter set with a single reload. Traits
// that no loaded item carries are dropped.
func (p *Paginator) SetFilters(ctx context.Context, filters Filters) {
	p.refetch(ctx, func() (query, bool) {
		next := filters.Clone()
		for trait := range next {
			if !p.knownTraitLocked(trait) {
				p.logger.Warn().Str("trait", trait).Msg("Filter dropped: trait not seen in loaded items")
				delete(next, trait)
			}
		}
		return query{collectionID: p.collectionID, filters: next, invalidate: true}, true
	})
}

// KnownTraits returns the trait names seen in the pages loaded for the
// current collection, sorted.
func (p *Paginator) KnownTraits() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.traits))
	for name := range p.traits {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *Paginator) knownTraitLocked(trait string) bool {
	_, ok := p.traits[trait]
	return ok
}

// ClearFilters removes every filter with a single reload. It does nothing
// when no filter is active and the current result is already valid.
func (p *Paginator) ClearFilters(ctx context.Context) {
	p.refetch(ctx, func() (query, bool) {
		if len(p.filters) == 0 && p.inflight == nil && p.state == Idle {
			return query{}, false
		}
		return query{collectionID: p.collectionID, filters: Filters{}, invalidate: true}, true
	})
}

// refetch issues a page-1 fetch for the query produced by plan, which runs
// under the lock. An identical query already in flight is joined rather
// than duplicated; any other in-flight fetch is superseded.
func (p *Paginator) refetch(ctx context.Context, plan func() (query, bool)) {
	p.mu.Lock()
	q, ok := plan()
	if !ok {
		p.mu.Unlock()
		return
	}
	if q.collectionID == "" {
		p.mu.Unlock()
		p.logger.Warn().Msg("Refetch ignored: paginator not initialized")
		return
	}

	key := q.collectionID + "?" + q.filters.Key()
	if f := p.inflight; f != nil && f.kind == kindInitial && f.key == key {
		done := f.done
		p.mu.Unlock()

		p.logger.Debug().
			Str("collection", q.collectionID).
			Uint64("seq", f.seq).
			Msg("Joining in-flight fetch for identical query")

		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	if p.inflight != nil {
		p.logger.Debug().
			Uint64("seq", p.inflight.seq).
			Str("kind", string(p.inflight.kind)).
			Msg("Superseding in-flight fetch")
		p.inflight.cancel()
	}

	if q.invalidate && p.cache != nil {
		p.cache.Invalidate(q.collectionID)
	}

	if q.collectionID != p.collectionID {
		p.traits = nil
	}
	p.collectionID = q.collectionID
	p.filters = q.filters
	if q.reset {
		p.items = nil
		p.meta = nil
		p.info = nil
	}
	p.state = LoadingInitial
	p.lastErr = ""

	f, fctx := p.beginLocked(ctx, kindInitial, key)
	filters := p.filters.Clone()
	snap := p.snapshotLocked()
	p.mu.Unlock()
	p.notify(snap)

	page, cached, err := p.fetch(fctx, f, q.collectionID, 1, filters)
	p.finish(f, q.collectionID, filters, 1, page, cached, err)
}

// LoadMore appends the next page. It is a no-op while any fetch is in
// flight, before the first successful load, and once the last page is
// loaded. From the Error state it retries the next page.
func (p *Paginator) LoadMore(ctx context.Context) {
	p.mu.Lock()
	if p.inflight != nil || p.meta == nil || !p.meta.HasMorePages {
		p.mu.Unlock()
		return
	}

	next := p.meta.CurrentPage + 1
	collectionID := p.collectionID
	filters := p.filters.Clone()

	p.state = LoadingMore
	p.lastErr = ""
	f, fctx := p.beginLocked(ctx, kindMore, "")
	snap := p.snapshotLocked()
	p.mu.Unlock()
	p.notify(snap)

	page, cached, err := p.fetch(fctx, f, collectionID, next, filters)
	p.finish(f, collectionID, filters, next, page, cached, err)
}

// Retry repeats the operation that failed. It is a no-op outside Error.
func (p *Paginator) Retry(ctx context.Context) {
	p.mu.Lock()
	if p.state != Error {
		p.mu.Unlock()
		return
	}
	resume := p.failedKind == kindMore && p.meta != nil
	p.mu.Unlock()

	if resume {
		p.LoadMore(ctx)
		return
	}
	p.refetch(ctx, func() (query, bool) {
		return query{collectionID: p.collectionID, filters: p.filters.Clone(), reset: true}, true
	})
}

// State returns a snapshot of the paginator.
func (p *Paginator) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// Facets derives the trait facets of the currently loaded items.
func (p *Paginator) Facets() Facets {
	p.mu.Lock()
	defer p.mu.Unlock()
	return DeriveFacets(p.items)
}

func (p *Paginator) beginLocked(ctx context.Context, kind fetchKind, key string) (*flight, context.Context) {
	p.seq++
	fctx, cancel := context.WithCancel(ctx)
	f := &flight{
		seq:    p.seq,
		kind:   kind,
		key:    key,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	p.inflight = f
	return f, fctx
}

func (p *Paginator) fetch(ctx context.Context, f *flight, collectionID string, page int, filters Filters) (Page, bool, error) {
	if p.cache != nil {
		if cached, ok := p.cache.Get(collectionID, filters, page); ok {
			paginatorCacheHitsTotal.Inc()
			return cached, true, nil
		}
	}

	p.logger.Debug().
		Str("collection", collectionID).
		Int("page", page).
		Str("filters", filters.Key()).
		Uint64("seq", f.seq).
		Msg("Fetching page")

	start := time.Now()
	result, err := p.source.FetchPage(ctx, collectionID, page, filters)
	paginatorFetchDuration.WithLabelValues(string(f.kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		return Page{}, false, err
	}
	if err := result.validate(page); err != nil {
		return Page{}, false, err
	}
	return result, false, nil
}

// finish applies a settled fetch if it is still the latest one.
func (p *Paginator) finish(f *flight, collectionID string, filters Filters, page int, result Page, cached bool, err error) {
	defer close(f.done)
	defer f.cancel()

	p.mu.Lock()
	if f.seq != p.seq {
		p.mu.Unlock()
		paginatorStaleTotal.Inc()
		paginatorFetchesTotal.WithLabelValues(string(f.kind), "stale").Inc()
		p.logger.Debug().
			Str("collection", collectionID).
			Int("page", page).
			Uint64("seq", f.seq).
			Msg("Discarding stale response")
		return
	}
	p.inflight = nil

	if err != nil {
		p.state = Error
		p.lastErr = err.Error()
		p.failedKind = f.kind
		if f.kind == kindInitial {
			p.items = nil
			p.meta = nil
			p.info = nil
		}
		snap := p.snapshotLocked()
		p.mu.Unlock()

		paginatorFetchesTotal.WithLabelValues(string(f.kind), "error").Inc()
		p.logger.Warn().
			Err(err).
			Str("collection", collectionID).
			Int("page", page).
			Msg("Page fetch failed")
		p.notify(snap)
		return
	}

	if f.kind == kindInitial {
		p.items = cloneItems(result.Items)
		if p.items == nil {
			p.items = []Item{}
		}
	} else {
		p.items = append(p.items, result.Items...)
	}
	if p.traits == nil {
		p.traits = make(map[string]struct{})
	}
	for _, it := range result.Items {
		for _, t := range it.Traits {
			p.traits[t.Name] = struct{}{}
		}
	}
	meta := result.Meta
	p.meta = &meta
	if result.Info != nil {
		info := *result.Info
		p.info = &info
	}
	p.state = Idle
	p.lastErr = ""
	if !cached && p.cache != nil {
		p.cache.Put(collectionID, filters, page, result)
	}
	total := len(p.items)
	snap := p.snapshotLocked()
	p.mu.Unlock()

	outcome := "success"
	if cached {
		outcome = "cached"
	}
	paginatorFetchesTotal.WithLabelValues(string(f.kind), outcome).Inc()
	p.logger.Debug().
		Str("collection", collectionID).
		Int("page", page).
		Int("page_items", len(result.Items)).
		Int("total_items", total).
		Bool("has_more", meta.HasMorePages).
		Msg("Page loaded")
	p.notify(snap)
}

func (p *Paginator) snapshotLocked() State {
	s := State{
		CollectionID: p.collectionID,
		Items:        cloneItems(p.items),
		Filters:      p.filters.Clone(),
		FetchState:   p.state,
		LastError:    p.lastErr,
	}
	if p.meta != nil {
		meta := *p.meta
		s.Pagination = &meta
	}
	if p.info != nil {
		info := *p.info
		s.Info = &info
	}
	return s
}

func (p *Paginator) notify(s State) {
	if p.onChange != nil {
		p.onChange(s)
	}
}
