package collection

// FetchState is the paginator's fetch lifecycle. Exactly one holds at a time.
type FetchState int

const (
	// Idle means no fetch is in flight and the last one succeeded.
	Idle FetchState = iota

	// LoadingInitial means page 1 of a (new) query is being fetched.
	LoadingInitial

	// LoadingMore means the next page is being fetched for appending.
	LoadingMore

	// Error means the last fetch failed; LastError holds the message.
	Error
)

// String returns the lowercase state name.
func (s FetchState) String() string {
	switch s {
	case Idle:
		return "idle"
	case LoadingInitial:
		return "loading_initial"
	case LoadingMore:
		return "loading_more"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Loading reports whether a fetch is in flight.
func (s FetchState) Loading() bool {
	return s == LoadingInitial || s == LoadingMore
}

// State is a snapshot of a paginator handed to the rendering layer.
// Slices and maps are copies; mutating them does not affect the paginator.
type State struct {
	CollectionID string
	Items        []Item
	Filters      Filters
	FetchState   FetchState
	Pagination   *PageMeta
	Info         *Info
	LastError    string
}

// HasMore reports whether LoadMore can fetch another page.
func (s State) HasMore() bool {
	return s.Pagination != nil && s.Pagination.HasMorePages
}
