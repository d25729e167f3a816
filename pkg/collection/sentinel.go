package collection

import "sync"

// Sentinel turns a stream of visibility observations of a "load more"
// marker into one trigger per hidden-to-visible transition. Observers that
// fire repeatedly while the marker stays visible trigger once.
type Sentinel struct {
	mu      sync.Mutex
	visible bool
}

// Observe records the marker's visibility and reports whether the caller
// should request the next page.
func (s *Sentinel) Observe(visible bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	trigger := visible && !s.visible
	s.visible = visible
	return trigger
}

// Reset re-arms the sentinel, e.g. after the item list was replaced.
func (s *Sentinel) Reset() {
	s.mu.Lock()
	s.visible = false
	s.mu.Unlock()
}
