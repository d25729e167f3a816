package collection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrMalformedPage is reported when a source returns a page that does not
// match the request (wrong page number, negative counters).
var ErrMalformedPage = errors.New("malformed page")

// PageMeta describes where a page sits within the collection.
type PageMeta struct {
	CurrentPage  int  `json:"currentPage"`
	TotalPages   int  `json:"totalPages"`
	PageSize     int  `json:"pageSize"`
	TotalItems   int  `json:"totalItems"`
	HasMorePages bool `json:"hasMorePages"`
}

// Page is one slice of a collection as returned by a PageDataSource.
type Page struct {
	Items []Item
	Meta  PageMeta
	Info  *Info
}

// PageDataSource fetches one page of a collection with the given filters
// applied by the source. Pages are 1-based.
//
// Implementations report transport failures, non-success upstream statuses
// and undecodable payloads as errors; the paginator does not retry.
type PageDataSource interface {
	FetchPage(ctx context.Context, collectionID string, page int, filters Filters) (Page, error)
}

// PageDataSourceFunc adapts a function to PageDataSource.
type PageDataSourceFunc func(ctx context.Context, collectionID string, page int, filters Filters) (Page, error)

// FetchPage calls f.
func (f PageDataSourceFunc) FetchPage(ctx context.Context, collectionID string, page int, filters Filters) (Page, error) {
	return f(ctx, collectionID, page, filters)
}

// validate checks the page against the request that produced it.
func (p Page) validate(requested int) error {
	if p.Meta.CurrentPage != requested {
		return fmt.Errorf("%w: requested page %d, got %d", ErrMalformedPage, requested, p.Meta.CurrentPage)
	}
	if p.Meta.TotalPages < 0 || p.Meta.TotalItems < 0 {
		return fmt.Errorf("%w: negative totals (pages=%d items=%d)", ErrMalformedPage, p.Meta.TotalPages, p.Meta.TotalItems)
	}
	return nil
}

// Filters maps a trait name to the single selected value.
// A missing key means no constraint on that trait.
type Filters map[string]string

// Clone returns an independent copy. Empty values are dropped.
func (f Filters) Clone() Filters {
	out := make(Filters, len(f))
	for k, v := range f {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// Key returns a canonical representation suitable for cache and
// deduplication keys: sorted name=value pairs joined by '&'.
func (f Filters) Key() string {
	if len(f) == 0 {
		return ""
	}
	names := make([]string, 0, len(f))
	for name, value := range f {
		if value != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + f[name]
	}
	return strings.Join(parts, "&")
}

// Matches reports whether the item satisfies every filter. Traits the item
// does not carry do not exclude it.
func (f Filters) Matches(item Item) bool {
	for _, t := range item.Traits {
		want, ok := f[t.Name]
		if ok && want != "" && want != t.Value {
			return false
		}
	}
	return true
}

// Apply returns the items that match the filters, preserving order.
func (f Filters) Apply(items []Item) []Item {
	if len(f) == 0 {
		return items
	}
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if f.Matches(it) {
			out = append(out, it)
		}
	}
	return out
}
