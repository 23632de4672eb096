package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mmcdole/portal/internal/domain"
)

// handleKeyMsg routes a key press to the open modal or the active list
func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.Close()
		return m, tea.Quit
	}

	switch m.State {
	case StateHelp:
		m.State = StateBrowsing
		return m, nil

	case StateConfirmClear:
		switch {
		case key.Matches(msg, Keys.Confirm):
			m.State = StateBrowsing
			if m.Catalog == nil {
				return m, nil
			}
			return m, ClearCacheCmd(m.Catalog)
		case key.Matches(msg, Keys.Deny):
			m.State = StateBrowsing
		}
		return m, nil
	}

	if handled, next, cmd := m.routeToModal(msg); handled {
		return next, cmd
	}

	t := m.activeTab()
	if t == nil {
		if key.Matches(msg, Keys.Quit) {
			return m, tea.Quit
		}
		return m, nil
	}

	// Local filter typing captures every key
	if t.list.IsFilterTyping() {
		var cmd tea.Cmd
		t.list, cmd = t.list.Update(msg)
		m.pinned = false
		m.syncInspector()
		return m, cmd
	}

	switch {
	case key.Matches(msg, Keys.Quit):
		m.Close()
		return m, tea.Quit

	case key.Matches(msg, Keys.Help):
		m.State = StateHelp
		return m, nil

	case key.Matches(msg, Keys.NextTab):
		m.switchTab(m.active + 1)
		return m, m.prefetchCmd()

	case key.Matches(msg, Keys.PrevTab):
		m.switchTab(m.active - 1)
		return m, m.prefetchCmd()

	case key.Matches(msg, Keys.Tab1):
		m.switchTab(0)
		return m, m.prefetchCmd()

	case key.Matches(msg, Keys.Tab2):
		m.switchTab(1)
		return m, m.prefetchCmd()

	case key.Matches(msg, Keys.Tab3):
		m.switchTab(2)
		return m, m.prefetchCmd()

	case key.Matches(msg, Keys.Filter):
		t.list.ToggleFilter()
		return m, nil

	case key.Matches(msg, Keys.FilterForm):
		m.FilterForm.Show(fmt.Sprintf("Filter %s", t.col.Kind().Plural()), t.col.FilterFields())
		return m, nil

	case key.Matches(msg, Keys.GlobalSearch):
		if m.Catalog == nil {
			return m, nil
		}
		m.GlobalSearch.Show()
		return m, nil

	case key.Matches(msg, Keys.Refresh):
		anchor := 0
		if item := t.list.SelectedItem(); item != nil {
			anchor = item.ItemID()
		}
		return m, tea.Batch(
			ReloadCmd(t.col, anchor),
			m.setStatus(fmt.Sprintf("Refreshing %s...", t.col.Kind().Plural()), false),
		)

	case key.Matches(msg, Keys.ToggleInspector):
		m.ShowInspector = !m.ShowInspector
		m.updateLayout()
		return m, nil

	case key.Matches(msg, Keys.ClearCache):
		m.State = StateConfirmClear
		return m, nil

	case key.Matches(msg, Keys.Enter):
		return m, m.openDetails()

	case key.Matches(msg, Keys.ScrollDn):
		m.Inspector.ScrollBy(3)
		return m, nil

	case key.Matches(msg, Keys.ScrollUp):
		m.Inspector.ScrollBy(-3)
		return m, nil
	}

	// Cursor movement
	var cmd tea.Cmd
	t.list, cmd = t.list.Update(msg)
	m.pinned = false
	m.syncInspector()
	return m, tea.Batch(cmd, m.prefetchCmd())
}

// routeToModal sends keys to a visible modal. Returns handled=false when no
// modal is open.
func (m Model) routeToModal(msg tea.KeyMsg) (bool, Model, tea.Cmd) {
	switch {
	case m.FilterForm.IsVisible():
		var (
			cmd       tea.Cmd
			submitted bool
		)
		m.FilterForm, cmd, submitted = m.FilterForm.Update(msg)
		if !submitted {
			return true, m, cmd
		}

		t := m.activeTab()
		values := m.FilterForm.Values()
		if err := t.col.ValidateFilter(values); err != nil {
			m.FilterForm.SetError(domain.UserMessage(err))
			return true, m, nil
		}
		m.FilterForm.Hide()
		t.list.ClearFilter()
		return true, m, SetFilterCmd(t.col, values)

	case m.GlobalSearch.IsVisible():
		var (
			cmd      tea.Cmd
			selected bool
		)
		m.GlobalSearch, cmd, selected = m.GlobalSearch.Update(msg)
		if selected {
			item := m.GlobalSearch.Selected()
			m.GlobalSearch.Hide()
			return true, m, m.jumpTo(item)
		}
		if m.GlobalSearch.QueryChanged() && m.Catalog != nil {
			m.GlobalSearch.SetLoading(true)
			return true, m, tea.Batch(cmd, SearchCmd(m.Catalog.Queries, m.GlobalSearch.Query()))
		}
		return true, m, cmd
	}
	return false, m, nil
}

// jumpTo focuses the tab of item and opens its details. Records not in the
// loaded rows are still shown in the inspector.
func (m *Model) jumpTo(item domain.Item) tea.Cmd {
	if item == nil {
		return nil
	}
	for i, t := range m.tabs {
		if t.col.Kind() != item.GetKind() {
			continue
		}
		m.switchTab(i)
		if t.list.SelectID(item.GetID()) {
			m.syncInspector()
		} else {
			m.cancelEnrichment()
			m.Inspector.SetItem(item)
			m.pinned = true
		}
		return m.openDetails()
	}
	return nil
}
