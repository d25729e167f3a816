package testutil

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/Sternrassler/katscan/pkg/collection"
)

// SourceCall records one FetchPage invocation.
type SourceCall struct {
	CollectionID string
	Page         int
	Filters      collection.Filters
}

// FakeSource is an in-memory collection.PageDataSource. Collections are
// filtered first and then paginated, like an upstream that filters
// server-side. Calls can be held open and failures injected.
type FakeSource struct {
	PageSize int

	mu          sync.Mutex
	collections map[string][]collection.Item
	calls       []SourceCall
	holds       map[string]chan struct{}
	failures    map[int]error
	failNext    error
	started     chan SourceCall
}

// NewFakeSource creates a source serving pages of pageSize items.
func NewFakeSource(pageSize int) *FakeSource {
	return &FakeSource{
		PageSize:    pageSize,
		collections: make(map[string][]collection.Item),
		holds:       make(map[string]chan struct{}),
		failures:    make(map[int]error),
		started:     make(chan SourceCall, 64),
	}
}

// AddCollection registers the items of a collection.
func (s *FakeSource) AddCollection(id string, items []collection.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[id] = items
}

// FailPage makes every fetch of page fail with err until cleared with a nil err.
func (s *FakeSource) FailPage(page int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, page)
		return
	}
	s.failures[page] = err
}

// FailNext makes the next fetch fail with err.
func (s *FakeSource) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// Hold blocks the next fetch of page with the given filters until the
// returned function is called. A held fetch ignores context cancellation so
// tests control the order in which responses arrive.
func (s *FakeSource) Hold(page int, filters collection.Filters) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.holds[holdKey(page, filters)] = ch
	s.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Started delivers every call as it begins.
func (s *FakeSource) Started() <-chan SourceCall {
	return s.started
}

// Calls returns the calls made so far.
func (s *FakeSource) Calls() []SourceCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SourceCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns the number of calls made so far.
func (s *FakeSource) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// FetchPage implements collection.PageDataSource.
func (s *FakeSource) FetchPage(ctx context.Context, collectionID string, page int, filters collection.Filters) (collection.Page, error) {
	call := SourceCall{CollectionID: collectionID, Page: page, Filters: filters.Clone()}

	s.mu.Lock()
	s.calls = append(s.calls, call)
	key := holdKey(page, filters)
	hold := s.holds[key]
	delete(s.holds, key)
	err := s.failNext
	s.failNext = nil
	if err == nil {
		err = s.failures[page]
	}
	items, ok := s.collections[collectionID]
	pageSize := s.PageSize
	s.mu.Unlock()

	select {
	case s.started <- call:
	default:
	}

	if hold != nil {
		<-hold
	} else if ctxErr := ctx.Err(); ctxErr != nil {
		return collection.Page{}, ctxErr
	}

	if err != nil {
		return collection.Page{}, err
	}
	if !ok {
		return collection.Page{}, fmt.Errorf("collection %q not found (status 404)", collectionID)
	}
	if page < 1 {
		return collection.Page{}, fmt.Errorf("invalid page %d", page)
	}

	matching := filters.Apply(items)
	total := len(matching)
	totalPages := (total + pageSize - 1) / pageSize

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	out := make([]collection.Item, end-start)
	copy(out, matching[start:end])

	return collection.Page{
		Items: out,
		Meta: collection.PageMeta{
			CurrentPage:  page,
			TotalPages:   totalPages,
			PageSize:     pageSize,
			TotalItems:   total,
			HasMorePages: page < totalPages,
		},
		Info: &collection.Info{Tick: collectionID, Max: len(items), Minted: len(items)},
	}, nil
}

func holdKey(page int, filters collection.Filters) string {
	return strconv.Itoa(page) + "|" + filters.Key()
}

// GenerateItems builds n items with ids starting at 1. traits, if non-nil,
// supplies the traits of the i-th item (0-based).
func GenerateItems(n int, traits func(i int) []collection.Trait) []collection.Item {
	items := make([]collection.Item, n)
	for i := range items {
		items[i] = collection.Item{
			ID:   collection.ItemID(strconv.Itoa(i + 1)),
			Name: "#" + strconv.Itoa(i+1),
		}
		if traits != nil {
			items[i].Traits = traits(i)
		}
	}
	return items
}
