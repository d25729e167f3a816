// Package tui is a terminal browser over a collection.Paginator. Scrolling
// the cursor onto the "more" marker at the end of the list loads the next
// page, the same way a scroll sentinel does in a web grid.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Sternrassler/katscan/pkg/collection"
)

// Lines used by the header and footer around the item list.
const chromeLines = 6

// stateMsg carries the paginator state after an operation returned.
type stateMsg struct {
	state collection.State
}

// Model is the bubbletea model of the collection browser.
type Model struct {
	ctx       context.Context
	paginator *collection.Paginator
	tick      string

	state    collection.State
	facets   collection.Facets
	sentinel *collection.Sentinel
	spinner  spinner.Model
	styles   Styles

	cursor  int
	top     int
	trait   int
	width   int
	height  int
	pending int
}

// NewModel creates a browser for tick. Operations run with ctx, so
// cancelling it aborts in-flight fetches.
func NewModel(ctx context.Context, p *collection.Paginator, tick string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctx:       ctx,
		paginator: p,
		tick:      tick,
		sentinel:  &collection.Sentinel{},
		spinner:   sp,
		styles:    DefaultStyles(),
		pending:   1,
	}
}

// Init loads the first page.
func (m Model) Init() tea.Cmd {
	tick := m.tick
	return tea.Batch(
		m.spinner.Tick,
		m.op(func(ctx context.Context, p *collection.Paginator) { p.Initialize(ctx, tick) }),
	)
}

// State returns the last paginator state the model has seen.
func (m Model) State() collection.State {
	return m.state
}

func (m Model) op(fn func(context.Context, *collection.Paginator)) tea.Cmd {
	ctx, p := m.ctx, m.paginator
	return func() tea.Msg {
		fn(ctx, p)
		return stateMsg{state: p.State()}
	}
}

func (m *Model) run(fn func(context.Context, *collection.Paginator)) tea.Cmd {
	m.pending++
	return tea.Batch(m.spinner.Tick, m.op(fn))
}

// Update handles key presses, window resizes and settled operations.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.scroll()
		return m, m.observe()

	case tea.KeyMsg:
		return m.handleKey(msg)

	case stateMsg:
		if m.pending > 0 {
			m.pending--
		}
		m.apply(msg.state)
		return m, m.observe()

	case spinner.TickMsg:
		if !m.loading() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit

	case "j", "down":
		if m.cursor < len(m.state.Items)-1 {
			m.cursor++
		}
		m.scroll()
		return m, m.observe()

	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
		m.scroll()
		return m, m.observe()

	case "t":
		if len(m.facets) > 0 {
			m.trait = (m.trait + 1) % len(m.facets)
		}
		return m, nil

	case "v":
		if len(m.facets) == 0 {
			return m, nil
		}
		f := m.facets[m.trait]
		value := nextValue(f.Values, m.state.Filters[f.Trait])
		return m, m.run(func(ctx context.Context, p *collection.Paginator) {
			p.SetFilter(ctx, f.Trait, value)
		})

	case "c":
		return m, m.run(func(ctx context.Context, p *collection.Paginator) {
			p.ClearFilters(ctx)
		})

	case "m":
		if m.loading() || !m.state.HasMore() {
			return m, nil
		}
		return m, m.run(func(ctx context.Context, p *collection.Paginator) {
			p.LoadMore(ctx)
		})

	case "r":
		if m.state.FetchState != collection.Error {
			return m, nil
		}
		return m, m.run(func(ctx context.Context, p *collection.Paginator) {
			p.Retry(ctx)
		})
	}
	return m, nil
}

// nextValue cycles through values and then back to "" (no filter).
func nextValue(values []string, current string) string {
	if current == "" {
		if len(values) == 0 {
			return ""
		}
		return values[0]
	}
	for i, v := range values {
		if v == current {
			if i+1 < len(values) {
				return values[i+1]
			}
			return ""
		}
	}
	return ""
}

func (m *Model) apply(next collection.State) {
	prev := m.state
	m.state = next

	replaced := next.Filters.Key() != prev.Filters.Key() || len(next.Items) < len(prev.Items)
	if replaced {
		m.cursor, m.top = 0, 0
	}
	// A filtered page may add no items, so the marker is re-armed per page.
	if replaced || currentPage(next) != currentPage(prev) {
		m.sentinel.Reset()
	}

	// Facets come from the unfiltered result so every value stays selectable.
	if len(next.Filters) == 0 && next.FetchState == collection.Idle {
		m.facets = collection.DeriveFacets(next.Items)
		if m.trait >= len(m.facets) {
			m.trait = 0
		}
	}

	if m.cursor >= len(next.Items) {
		m.cursor = max(len(next.Items)-1, 0)
	}
	m.scroll()
}

func currentPage(s collection.State) int {
	if s.Pagination == nil {
		return 0
	}
	return s.Pagination.CurrentPage
}

// observe reports the marker's visibility to the sentinel and loads the
// next page on a hidden-to-visible transition.
func (m *Model) observe() tea.Cmd {
	if m.loading() {
		return nil
	}
	visible := m.state.FetchState == collection.Idle &&
		m.state.HasMore() &&
		m.top+m.rows() >= len(m.state.Items)

	if !m.sentinel.Observe(visible) {
		return nil
	}
	return m.run(func(ctx context.Context, p *collection.Paginator) {
		p.LoadMore(ctx)
	})
}

func (m Model) loading() bool {
	return m.pending > 0 || m.state.FetchState.Loading()
}

func (m Model) rows() int {
	if m.height == 0 {
		return 10
	}
	return max(m.height-chromeLines, 1)
}

func (m *Model) scroll() {
	rows := m.rows()
	if m.cursor < m.top {
		m.top = m.cursor
	}
	if m.cursor >= m.top+rows {
		m.top = m.cursor - rows + 1
	}
}

// View renders header, visible items and the status footer.
func (m Model) View() string {
	var b strings.Builder
	s := m.styles

	title := "KatScan " + m.tick
	if info := m.state.Info; info != nil {
		title += fmt.Sprintf("  minted %d/%d", info.Minted, info.Max)
	}
	b.WriteString(s.Title.Render(title))
	b.WriteString("\n")
	b.WriteString(m.renderFacets())
	b.WriteString("\n")
	b.WriteString(m.renderFilters())
	b.WriteString("\n")

	items := m.state.Items
	end := min(m.top+m.rows(), len(items))
	for i := m.top; i < end; i++ {
		line := renderItem(items[i])
		if i == m.cursor {
			line = s.Cursor.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(s.Muted.Render("j/k move  m more  t trait  v value  c clear  r retry  q quit"))
	return b.String()
}

func (m Model) renderFacets() string {
	if len(m.facets) == 0 {
		return m.styles.Muted.Render("traits: none")
	}
	parts := make([]string, len(m.facets))
	for i, f := range m.facets {
		label := fmt.Sprintf("%s(%d)", f.Trait, len(f.Values))
		if i == m.trait {
			label = m.styles.Selected.Render(label)
		}
		parts[i] = label
	}
	return "traits: " + strings.Join(parts, " ")
}

func (m Model) renderFilters() string {
	if len(m.state.Filters) == 0 {
		return m.styles.Muted.Render("filters: none")
	}
	keys := make([]string, 0, len(m.state.Filters))
	for k := range m.state.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + m.state.Filters[k]
	}
	return "filters: " + m.styles.Filter.Render(strings.Join(parts, " "))
}

func (m Model) renderStatus() string {
	st := m.state
	switch {
	case m.loading():
		what := "loading"
		if st.FetchState == collection.LoadingMore || len(st.Items) > 0 {
			what = "loading more"
		}
		return m.spinner.View() + " " + what
	case st.FetchState == collection.Error:
		return m.styles.Error.Render("error: "+st.LastError) + m.styles.Muted.Render("  (r to retry)")
	case st.HasMore():
		return m.styles.Marker.Render(fmt.Sprintf("-- more (page %d of %d) --", st.Pagination.CurrentPage, st.Pagination.TotalPages))
	case len(st.Items) == 0:
		return m.styles.Muted.Render("no items match")
	default:
		return m.styles.Muted.Render(fmt.Sprintf("end of collection, %d items", len(st.Items)))
	}
}

func renderItem(it collection.Item) string {
	name := it.Name
	if name == "" {
		name = "#" + string(it.ID)
	}
	traits := make([]string, 0, len(it.Traits))
	for _, t := range it.Traits {
		traits = append(traits, t.Name+":"+t.Value)
	}
	return fmt.Sprintf("%-8s %-24s %s", string(it.ID), name, strings.Join(traits, " "))
}
