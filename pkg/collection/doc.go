// Package collection provides the paginated, filterable collection-fetch
// controller used by the KatScan NFT browser.
//
// A Paginator is bound to one collection (an NFT tick) and accumulates pages
// from a PageDataSource:
//
//	p := collection.New(katapiClient)
//	p.Initialize(ctx, "KASPUNKS")       // page 1, no filters
//	p.LoadMore(ctx)                      // appends page 2
//	p.SetFilter(ctx, "Background", "Red") // reloads from page 1
//	facets := p.Facets()                 // trait -> distinct values
//	st := p.State()                      // snapshot for rendering
//
// # Ordering
//
// At most one fetch changes state at a time. Each fetch carries a sequence
// number; a filter change or re-initialisation supersedes whatever is in
// flight and late responses of superseded fetches are discarded, so a slow
// response for old filters never overwrites a newer result. An identical
// refetch issued while one is in flight joins it instead of fetching twice.
//
// # Failures
//
// Operations do not return errors. A failed fetch moves the paginator to the
// Error state with a message in State.LastError. Items loaded before a failed
// LoadMore stay valid and LoadMore (or Retry) may be called again. Nothing is
// retried automatically.
//
// # Infinite scroll
//
// The rendering layer owns visibility detection of its "load more" marker.
// Sentinel converts repeated visibility callbacks into one trigger per
// hidden-to-visible transition.
package collection
