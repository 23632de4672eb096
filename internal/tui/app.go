package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mmcdole/portal/internal/domain"
	"github.com/mmcdole/portal/internal/library"
	"github.com/mmcdole/portal/internal/tui/components"
	"github.com/mmcdole/portal/internal/tui/styles"
)

// ApplicationState represents the current state of the application
type ApplicationState int

const (
	StateBrowsing ApplicationState = iota
	StateHelp
	StateConfirmClear
)

const (
	tickInterval    = 100 * time.Millisecond
	statusDuration  = 4 * time.Second
	defaultPrefetch = 5
)

// Options tunes the TUI
type Options struct {
	PrefetchDistance int // Rows from the end of the list that trigger the next page
}

// tab is one collection with its list column and last published state
type tab struct {
	col    Collection
	list   *components.ListColumn
	filter string
	snap   SnapshotMsg
}

func (t *tab) loading() bool {
	return t.snap.Loading()
}

// Model is the main Bubble Tea model for the application
type Model struct {
	// Application state
	State ApplicationState
	Ready bool

	// Services (nil Catalog disables details and search)
	Catalog *library.Catalog

	// UI Components
	tabs         []*tab
	active       int
	Inspector    components.Inspector
	FilterForm   components.FilterForm
	GlobalSearch components.GlobalSearch

	// Dimensions
	Width  int
	Height int

	// UI state
	StatusMsg        string
	StatusIsErr      bool
	statusSeq        int
	SpinnerFrame     int
	ShowInspector    bool
	PrefetchDistance int

	enrichCancel context.CancelFunc
	pinned       bool // Inspector shows a search result that is not a loaded row
	logger       *slog.Logger
}

// NewModel creates the application model over the given collections
func NewModel(catalog *library.Catalog, collections []Collection, opts Options, logger *slog.Logger) Model {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PrefetchDistance <= 0 {
		opts.PrefetchDistance = defaultPrefetch
	}

	tabs := make([]*tab, len(collections))
	for i, col := range collections {
		tabs[i] = &tab{
			col:    col,
			list:   components.NewListColumn(col.Kind().Title()),
			filter: "all",
		}
	}
	if len(tabs) > 0 {
		tabs[0].list.SetFocused(true)
	}

	return Model{
		Catalog:          catalog,
		tabs:             tabs,
		Inspector:        components.NewInspector(),
		FilterForm:       components.NewFilterForm(),
		GlobalSearch:     components.NewGlobalSearch(),
		ShowInspector:    true,
		PrefetchDistance: opts.PrefetchDistance,
		logger:           logger,
	}
}

// Init starts every collection and the snapshot listeners
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{TickCmd(tickInterval)}
	for _, t := range m.tabs {
		cmds = append(cmds, t.col.WaitForSnapshot(), StartCmd(t.col))
	}
	return tea.Batch(cmds...)
}

// Close releases snapshot subscriptions and in-flight enrichment
func (m Model) Close() {
	if m.enrichCancel != nil {
		m.enrichCancel()
	}
	for _, t := range m.tabs {
		t.col.Close()
	}
}

// Update handles all messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Ready = true
		m.updateLayout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case TickMsg:
		m.SpinnerFrame++
		for _, t := range m.tabs {
			t.list.SetSpinnerFrame(m.SpinnerFrame)
		}
		return m, TickCmd(tickInterval)

	case SnapshotMsg:
		t := m.tabFor(msg.Kind)
		if t == nil {
			return m, nil
		}
		t.snap = msg
		t.filter = msg.Filter
		t.list.SetItems(msg.Items)
		t.list.SetPaging(msg.Refreshing, msg.Appending, msg.Prepending, msg.AppendEnd)
		t.list.SetTitle(fmt.Sprintf("%s · %s", msg.Kind.Title(), msg.Filter))

		cmds := []tea.Cmd{t.col.WaitForSnapshot()}
		if t == m.activeTab() {
			m.syncInspector()
			// Keep filling the screen, but never retry a failed load on its own
			if msg.Err == nil {
				cmds = append(cmds, m.prefetchCmd())
			}
		}
		return m, tea.Batch(cmds...)

	case LoadDoneMsg:
		if msg.Err != nil && !errors.Is(msg.Err, context.Canceled) {
			m.logger.Warn("load failed", "kind", string(msg.Kind), "load", msg.Load.String(), "error", msg.Err)
			return m, m.setStatus(fmt.Sprintf("%s: %s", msg.Kind.Title(), domain.UserMessage(msg.Err)), true)
		}
		return m, nil

	case FilterAppliedMsg:
		if msg.Err != nil {
			return m, m.setStatus(domain.UserMessage(msg.Err), true)
		}
		if t := m.tabFor(msg.Kind); t != nil {
			return m, m.setStatus(fmt.Sprintf("%s filtered by %s", msg.Kind.Title(), t.filter), false)
		}
		return m, nil

	case DetailLoadedMsg:
		if !sameItem(m.Inspector.Item(), msg.Item) {
			return m, nil
		}
		m.Inspector.SetItem(msg.Item)
		return m, m.startEnrichment(msg.Item)

	case PatchMsg:
		if cur := m.Inspector.Item(); cur != nil && cur.GetKind() == msg.ItemKind && cur.GetID() == msg.ItemID {
			m.Inspector.ApplyPatch(msg.Patch)
		}
		return m, msg.NextCmd

	case EnrichDoneMsg:
		if cur := m.Inspector.Item(); cur != nil && cur.GetKind() == msg.ItemKind && cur.GetID() == msg.ItemID {
			m.Inspector.SetEnriching(false)
		}
		return m, nil

	case SearchResultsMsg:
		if msg.Query == m.GlobalSearch.Query() {
			m.GlobalSearch.SetResults(msg.Results)
		}
		return m, nil

	case CacheClearedMsg:
		cmds := []tea.Cmd{m.setStatus("Cache cleared", false)}
		for _, t := range m.tabs {
			cmds = append(cmds, ReloadCmd(t.col, 0))
		}
		return m, tea.Batch(cmds...)

	case ErrMsg:
		m.logger.Error(msg.Context, "error", msg.Err)
		return m, m.setStatus(domain.UserMessage(msg.Err), true)

	case StatusMsg:
		return m, m.setStatus(msg.Message, msg.IsError)

	case ClearStatusMsg:
		if msg.Seq == m.statusSeq {
			m.StatusMsg = ""
			m.StatusIsErr = false
		}
		return m, nil
	}

	// Forward cursor blink and other input messages to open modals
	var cmd tea.Cmd
	switch {
	case m.FilterForm.IsVisible():
		m.FilterForm, cmd, _ = m.FilterForm.Update(msg)
	case m.GlobalSearch.IsVisible():
		m.GlobalSearch, cmd, _ = m.GlobalSearch.Update(msg)
	}
	return m, cmd
}

// activeTab returns the focused collection, nil when there is none
func (m Model) activeTab() *tab {
	if m.active < 0 || m.active >= len(m.tabs) {
		return nil
	}
	return m.tabs[m.active]
}

func (m Model) tabFor(kind domain.Kind) *tab {
	for _, t := range m.tabs {
		if t.col.Kind() == kind {
			return t
		}
	}
	return nil
}

// switchTab focuses the tab at idx
func (m *Model) switchTab(idx int) {
	if len(m.tabs) == 0 {
		return
	}
	idx = (idx + len(m.tabs)) % len(m.tabs)
	m.activeTab().list.SetFocused(false)
	m.active = idx
	m.activeTab().list.SetFocused(true)
	m.pinned = false
	m.syncInspector()
}

// prefetchCmd appends the next page when the cursor nears the end of the
// active list, or prepends when it nears the start of a list that does not
// begin at page one
func (m Model) prefetchCmd() tea.Cmd {
	t := m.activeTab()
	if t == nil || t.snap.Refreshing {
		return nil
	}
	switch {
	case !t.snap.AppendEnd && !t.snap.Appending && t.list.NearEnd(m.PrefetchDistance):
		return AppendCmd(t.col)
	case !t.snap.PrependEnd && !t.snap.Prepending && t.list.NearStart(m.PrefetchDistance):
		return PrependCmd(t.col)
	}
	return nil
}

// syncInspector shows the selected row, dropping enrichment of a previous record
func (m *Model) syncInspector() {
	t := m.activeTab()
	if t == nil || m.pinned {
		return
	}
	var item domain.Item
	if sel := t.list.SelectedItem(); sel != nil {
		item = sel.Unwrap()
	}
	if !sameItem(m.Inspector.Item(), item) {
		m.cancelEnrichment()
	}
	m.Inspector.SetItem(item)
}

// openDetails loads the full record of the selected row
func (m *Model) openDetails() tea.Cmd {
	if m.Catalog == nil {
		return nil
	}
	item := m.Inspector.Item()
	if item == nil {
		return nil
	}
	m.ShowInspector = true
	m.updateLayout()
	m.cancelEnrichment()
	m.Inspector.SetEnriching(true)
	return LoadDetailCmd(m.Catalog.Details, item)
}

func (m *Model) startEnrichment(item domain.Item) tea.Cmd {
	m.cancelEnrichment()
	ctx, cancel := context.WithCancel(context.Background())
	m.enrichCancel = cancel
	m.Inspector.SetEnriching(true)
	return EnrichCmd(ctx, m.Catalog.Details, item)
}

func (m *Model) cancelEnrichment() {
	if m.enrichCancel != nil {
		m.enrichCancel()
		m.enrichCancel = nil
	}
	m.Inspector.SetEnriching(false)
}

// setStatus shows a message in the footer and schedules its removal
func (m *Model) setStatus(msg string, isErr bool) tea.Cmd {
	m.statusSeq++
	m.StatusMsg = msg
	m.StatusIsErr = isErr
	return ClearStatusCmd(m.statusSeq, statusDuration)
}

func sameItem(a, b domain.Item) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.GetKind() == b.GetKind() && a.GetID() == b.GetID()
}

// View renders the application
func (m Model) View() string {
	if !m.Ready {
		return "Loading..."
	}

	switch m.State {
	case StateHelp:
		return m.renderHelp()
	case StateConfirmClear:
		return m.renderClearConfirmation()
	}

	if m.FilterForm.IsVisible() {
		return lipgloss.Place(m.Width, m.Height, lipgloss.Center, lipgloss.Center, m.FilterForm.View())
	}
	if m.GlobalSearch.IsVisible() {
		return m.GlobalSearch.View()
	}

	t := m.activeTab()
	if t == nil {
		return "No collections"
	}

	content := t.list.View()
	if layout := m.calculateColumnLayout(m.Width); layout.inspectorWidth > 0 {
		content = lipgloss.JoinHorizontal(lipgloss.Top, content, m.Inspector.View())
	}

	return lipgloss.JoinVertical(lipgloss.Left, m.renderTabs(), content, m.renderFooter())
}

// renderTabs renders the collection tab bar
func (m Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, t := range m.tabs {
		label := fmt.Sprintf("%d %s", i+1, t.col.Kind().Title())
		switch {
		case t.loading():
			label += " " + components.SpinnerFrames[m.SpinnerFrame%len(components.SpinnerFrames)]
		case t.snap.Err != nil:
			label += " ✗"
		case t.list.TotalCount() > 0:
			label += fmt.Sprintf(" (%d)", t.list.TotalCount())
		}

		if i == m.active {
			parts = append(parts, styles.ActiveTabStyle.Render(label))
		} else {
			parts = append(parts, styles.InactiveTabStyle.Render(label))
		}
	}
	return lipgloss.NewStyle().MaxWidth(m.Width).Render(strings.Join(parts, " "))
}

// renderFooter renders the status line
func (m Model) renderFooter() string {
	var left string
	t := m.activeTab()
	switch {
	case m.StatusMsg != "":
		if m.StatusIsErr {
			left = styles.ErrorStyle.Render(m.StatusMsg)
		} else {
			left = styles.DimStyle.Render(m.StatusMsg)
		}
	case t != nil && t.loading():
		spinner := styles.SpinnerStyle.Render(components.SpinnerFrames[m.SpinnerFrame%len(components.SpinnerFrames)])
		left = spinner + " " + styles.DimStyle.Render(fmt.Sprintf("Loading %s...", t.col.Kind().Plural()))
	case t != nil && t.snap.Err != nil:
		left = styles.ErrorStyle.Render(domain.UserMessage(t.snap.Err)) + styles.DimStyle.Render(" · r to retry")
	case t != nil && t.snap.AppendEnd && t.list.TotalCount() > 0:
		left = styles.DimStyle.Render(fmt.Sprintf("All %d %s loaded", t.list.TotalCount(), t.col.Kind().Plural()))
	}

	right := styles.AccentStyle.Render("?") + styles.DimStyle.Render(" help")

	gap := max(m.Width-lipgloss.Width(left)-lipgloss.Width(right), 0)
	return left + strings.Repeat(" ", gap) + right
}

// renderHelp renders the help screen
func (m Model) renderHelp() string {
	help := `
NAVIGATION                      COLLECTIONS
  j/k        Up/down               f      Server-side filter
  g/Home     First row             r      Refresh from network
  G/End      Last row              /      Filter loaded rows
  PgUp/PgDn  Scroll page           s      Search cached records
  Ctrl+u/d   Scroll half page      X      Clear local cache
  tab/1-3    Switch collection

DETAILS                         OTHER
  Enter      Resolve relations     q      Quit
  i          Toggle inspector      ?      This help
  J/K        Scroll details        Esc    Close / Cancel

Press any key to return...
`

	return lipgloss.Place(m.Width, m.Height,
		lipgloss.Center, lipgloss.Center,
		styles.ModalStyle.Render(help))
}

// renderClearConfirmation renders the cache clear confirmation modal
func (m Model) renderClearConfirmation() string {
	modal := `
          Clear Cache?

  This removes every cached page,
  cursor and detail record.

        [Y] Yes      [N] No
`

	return lipgloss.Place(m.Width, m.Height,
		lipgloss.Center, lipgloss.Center,
		styles.ModalStyle.Render(modal))
}
