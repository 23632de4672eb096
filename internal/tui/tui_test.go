package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/portal/internal/domain"
	"github.com/mmcdole/portal/internal/tui/components"
)

type fakeCollection struct {
	kind        domain.Kind
	appends     int
	prepends    int
	reloads     int
	anchors     []int
	filters     []map[string]string
	validateErr error
}

func (f *fakeCollection) Kind() domain.Kind                      { return f.kind }
func (f *fakeCollection) Start(context.Context) error            { return nil }
func (f *fakeCollection) Reload(context.Context) error           { f.reloads++; return nil }
func (f *fakeCollection) Append(context.Context) error           { f.appends++; return nil }
func (f *fakeCollection) Prepend(context.Context) error          { f.prepends++; return nil }
func (f *fakeCollection) SetAnchor(id int)                       { f.anchors = append(f.anchors, id) }
func (f *fakeCollection) ValidateFilter(map[string]string) error { return f.validateErr }
func (f *fakeCollection) WaitForSnapshot() tea.Cmd               { return nil }
func (f *fakeCollection) Close()                                 {}

func (f *fakeCollection) FilterFields() []domain.FilterField {
	return []domain.FilterField{{Name: "name"}, {Name: "status"}}
}

func (f *fakeCollection) SetFilter(_ context.Context, values map[string]string) error {
	f.filters = append(f.filters, values)
	return nil
}

func newTestModel(t *testing.T) (Model, []*fakeCollection) {
	t.Helper()
	fakes := []*fakeCollection{
		{kind: domain.KindCharacter},
		{kind: domain.KindLocation},
		{kind: domain.KindEpisode},
	}
	cols := make([]Collection, len(fakes))
	for i, f := range fakes {
		cols[i] = f
	}
	m := NewModel(nil, cols, Options{PrefetchDistance: 2}, nil)
	m = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	return m, fakes
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

// run executes cmd and any batched commands, returning the produced messages
func run(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, run(c)...)
		}
		return out
	}
	if msg == nil {
		return nil
	}
	return []tea.Msg{msg}
}

func characters(n int) []components.ListItem {
	chars := make([]*domain.Character, n)
	for i := range chars {
		chars[i] = &domain.Character{ID: i + 1, Name: fmt.Sprintf("Character %d", i+1), Status: "Alive"}
	}
	return components.WrapItems(chars)
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestSnapshotPopulatesActiveList(t *testing.T) {
	m, _ := newTestModel(t)

	m = update(t, m, SnapshotMsg{Kind: domain.KindCharacter, Filter: "all", Items: characters(10), Version: 1})

	tab := m.activeTab()
	assert.Equal(t, 10, tab.list.TotalCount())
	assert.Equal(t, 1, m.Inspector.Item().GetID())
	assert.Contains(t, m.renderTabs(), "(10)")
}

func TestCursorNearEndAppends(t *testing.T) {
	m, fakes := newTestModel(t)
	m = update(t, m, SnapshotMsg{Kind: domain.KindCharacter, Items: characters(5), PrependEnd: true})

	// Rows 1-2 are further than two rows from the end
	next, cmd := m.Update(keyRunes("j"))
	m = next.(Model)
	assert.Empty(t, run(cmd))
	assert.Equal(t, 0, fakes[0].appends)

	next, _ = m.Update(keyRunes("j"))
	m = next.(Model)
	next, cmd = m.Update(keyRunes("j"))
	msgs := run(cmd)

	require.Len(t, msgs, 1)
	done, ok := msgs[0].(LoadDoneMsg)
	require.True(t, ok)
	assert.Equal(t, domain.LoadAppend, done.Load)
	assert.Equal(t, 1, fakes[0].appends)
	assert.Equal(t, 3, next.(Model).activeTab().list.SelectedIndex())
}

func TestNoAppendPastEnd(t *testing.T) {
	m, fakes := newTestModel(t)
	m = update(t, m, SnapshotMsg{Kind: domain.KindCharacter, Items: characters(2), AppendEnd: true, PrependEnd: true})

	next, cmd := m.Update(keyRunes("G"))
	assert.Empty(t, run(cmd))
	assert.Equal(t, 0, fakes[0].appends)
	assert.Contains(t, next.(Model).renderFooter(), "All 2 characters loaded")
}

func TestFailedSnapshotDoesNotRetry(t *testing.T) {
	m, fakes := newTestModel(t)

	next, cmd := m.Update(SnapshotMsg{
		Kind:       domain.KindCharacter,
		Items:      characters(1),
		PrependEnd: true,
		Err:        domain.ErrTransport,
	})
	assert.Empty(t, run(cmd))
	assert.Equal(t, 0, fakes[0].appends)
	assert.Contains(t, next.(Model).renderFooter(), "Cannot reach the catalog server")
}

func TestSnapshotForInactiveTabDoesNotPrefetch(t *testing.T) {
	m, fakes := newTestModel(t)

	next, cmd := m.Update(SnapshotMsg{Kind: domain.KindEpisode, Items: characters(1)})
	assert.Empty(t, run(cmd))
	assert.Equal(t, 0, fakes[2].appends)
	assert.Equal(t, 1, next.(Model).tabFor(domain.KindEpisode).list.TotalCount())
}

func TestSwitchTabs(t *testing.T) {
	m, _ := newTestModel(t)

	m = update(t, m, keyRunes("3"))
	assert.Equal(t, domain.KindEpisode, m.activeTab().col.Kind())
	assert.True(t, m.activeTab().list.IsFocused())
	assert.False(t, m.tabs[0].list.IsFocused())

	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, domain.KindCharacter, m.activeTab().col.Kind())
}

func TestFilterFormValidation(t *testing.T) {
	m, fakes := newTestModel(t)
	fakes[0].validateErr = fmt.Errorf("%w: status %q", domain.ErrInvalidFilter, "zombie")

	m = update(t, m, keyRunes("f"))
	require.True(t, m.FilterForm.IsVisible())

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.True(t, m.FilterForm.IsVisible())
	assert.Contains(t, m.FilterForm.View(), "zombie")
	assert.Empty(t, fakes[0].filters)
}

func TestFilterFormSubmit(t *testing.T) {
	m, fakes := newTestModel(t)

	m = update(t, m, keyRunes("f"))
	for _, r := range "rick" {
		m = update(t, m, keyRunes(string(r)))
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	assert.False(t, m.FilterForm.IsVisible())

	msgs := run(cmd)
	require.Len(t, msgs, 1)
	assert.Equal(t, FilterAppliedMsg{Kind: domain.KindCharacter}, msgs[0])
	require.Len(t, fakes[0].filters, 1)
	assert.Equal(t, "rick", fakes[0].filters[0]["name"])
	assert.Equal(t, "", fakes[0].filters[0]["status"])
}

func TestRefreshKeyReloadsAroundSelectedRow(t *testing.T) {
	m, fakes := newTestModel(t)
	m = update(t, m, SnapshotMsg{Kind: domain.KindCharacter, Items: characters(5), AppendEnd: true, PrependEnd: true})
	m = update(t, m, keyRunes("j"))
	m = update(t, m, keyRunes("j"))

	next, cmd := m.Update(keyRunes("r"))
	require.NotNil(t, cmd)

	batch, ok := cmd().(tea.BatchMsg)
	require.True(t, ok)
	// First command is the reload; the second clears the status after a delay
	msg := batch[0]()
	assert.Equal(t, LoadDoneMsg{Kind: domain.KindCharacter, Load: domain.LoadRefresh}, msg)
	assert.Equal(t, 1, fakes[0].reloads)
	assert.Equal(t, []int{3}, fakes[0].anchors)
	assert.Contains(t, next.(Model).StatusMsg, "Refreshing characters")
}

func TestRefreshOfEmptyListReloadsFirstPage(t *testing.T) {
	m, fakes := newTestModel(t)

	_, cmd := m.Update(keyRunes("r"))
	batch, ok := cmd().(tea.BatchMsg)
	require.True(t, ok)
	batch[0]()
	assert.Equal(t, []int{0}, fakes[0].anchors)
}

func TestAnchoredSnapshotPrependsNearStart(t *testing.T) {
	m, fakes := newTestModel(t)

	// A reload around an anchor publishes a list that does not start at page one
	next, cmd := m.Update(SnapshotMsg{Kind: domain.KindCharacter, Items: characters(5), AppendEnd: true})
	msgs := run(cmd)

	require.Len(t, msgs, 1)
	done, ok := msgs[0].(LoadDoneMsg)
	require.True(t, ok)
	assert.Equal(t, domain.LoadPrepend, done.Load)
	assert.Equal(t, 1, fakes[0].prepends)

	// Nothing more to prepend once the first page is loaded
	_, cmd = next.(Model).Update(SnapshotMsg{Kind: domain.KindCharacter, Items: characters(8), AppendEnd: true, PrependEnd: true})
	assert.Empty(t, run(cmd))
	assert.Equal(t, 1, fakes[0].prepends)
}

func TestLoadErrorShowsUserMessage(t *testing.T) {
	m, _ := newTestModel(t)

	m = update(t, m, LoadDoneMsg{
		Kind: domain.KindLocation,
		Load: domain.LoadAppend,
		Err:  &domain.ProtocolError{StatusCode: 503},
	})
	assert.True(t, m.StatusIsErr)
	assert.Equal(t, "Locations: Catalog server error (503)", m.StatusMsg)

	// Cancellation is not reported
	m = update(t, m, ClearStatusMsg{Seq: m.statusSeq})
	m = update(t, m, LoadDoneMsg{Kind: domain.KindLocation, Err: context.Canceled})
	assert.Empty(t, m.StatusMsg)
}

func TestStaleClearStatusIgnored(t *testing.T) {
	m, _ := newTestModel(t)

	m = update(t, m, StatusMsg{Message: "first"})
	m = update(t, m, StatusMsg{Message: "second"})
	m = update(t, m, ClearStatusMsg{Seq: m.statusSeq - 1})
	assert.Equal(t, "second", m.StatusMsg)
}

func TestPatchForOtherItemIgnored(t *testing.T) {
	m, _ := newTestModel(t)
	m = update(t, m, SnapshotMsg{Kind: domain.KindCharacter, Items: characters(3)})

	_, cmd := m.Update(PatchMsg{ItemKind: domain.KindCharacter, ItemID: 99})
	assert.Nil(t, cmd)
	assert.NotContains(t, m.Inspector.View(), "resolving")
}

func TestHelpView(t *testing.T) {
	m, _ := newTestModel(t)

	m = update(t, m, keyRunes("?"))
	assert.Equal(t, StateHelp, m.State)
	assert.True(t, strings.Contains(m.View(), "Server-side filter"))

	m = update(t, m, keyRunes("x"))
	assert.Equal(t, StateBrowsing, m.State)
}

func TestClearCacheNeedsConfirmation(t *testing.T) {
	m, _ := newTestModel(t)

	m = update(t, m, keyRunes("X"))
	assert.Equal(t, StateConfirmClear, m.State)

	m = update(t, m, keyRunes("n"))
	assert.Equal(t, StateBrowsing, m.State)
}

func TestErrMsgStatus(t *testing.T) {
	m, _ := newTestModel(t)
	m = update(t, m, ErrMsg{Err: errors.New("boom"), Context: "loading details"})
	assert.True(t, m.StatusIsErr)
	assert.Equal(t, "boom", m.StatusMsg)
}
