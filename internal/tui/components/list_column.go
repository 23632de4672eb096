package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"

	"github.com/mmcdole/portal/internal/tui/styles"
)

// Spinner frames for loading animation
var SpinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Layout constants for list columns
const (
	// Border adds 1 char on each side (left+right for width, top+bottom for height)
	BorderWidth  = 2
	BorderHeight = 2

	// Scroll indicators ("↑ more" and "↓ ...") each take 1 line
	ScrollIndicatorLines = 2
)

// ListColumn is a scrollable list of one collection's loaded rows
type ListColumn struct {
	items []ListItem

	// Selection
	cursor     int
	offset     int
	maxVisible int

	// Dimensions
	width   int
	height  int
	focused bool

	// Column title (shown in header)
	title string

	// Paging state
	refreshing   bool
	appending    bool
	prepending   bool
	appendEnd    bool
	spinnerFrame int

	// Filter state
	filterActive bool
	filterInput  textinput.Model
	filterQuery  string
	filteredIdx  []int // indices into items
}

// NewListColumn creates a new list column with the given title
func NewListColumn(title string) *ListColumn {
	ti := textinput.New()
	ti.Placeholder = "type to filter..."
	ti.Prompt = "/ "
	ti.PromptStyle = styles.FilterPromptStyle
	ti.TextStyle = styles.FilterStyle

	return &ListColumn{
		title:       title,
		filterInput: ti,
	}
}

func (c *ListColumn) Update(msg tea.Msg) (*ListColumn, tea.Cmd) {
	if !c.focused {
		return c, nil
	}

	keyMsg, isKey := msg.(tea.KeyMsg)

	// Typing mode: keys go to the filter input
	if c.filterActive && c.filterInput.Focused() {
		if isKey {
			switch {
			case key.Matches(keyMsg, ListColumnKeys.Escape):
				c.clearFilter()
				return c, nil
			case key.Matches(keyMsg, ListColumnKeys.Enter):
				// Accept filter, blur input to allow navigation
				c.filterInput.Blur()
				return c, nil
			case keyMsg.String() == "backspace" && c.filterInput.Value() == "":
				c.clearFilter()
				return c, nil
			}
		}

		var cmd tea.Cmd
		c.filterInput, cmd = c.filterInput.Update(msg)
		c.applyFilter()
		return c, cmd
	}

	if !isKey {
		return c, nil
	}

	// Filter active but blurred: navigate within matches
	if c.filterActive {
		switch {
		case key.Matches(keyMsg, ListColumnKeys.Escape):
			c.clearFilter()
			return c, nil
		case key.Matches(keyMsg, ListColumnKeys.Filter):
			c.filterInput.Focus()
			return c, nil
		}
	}

	count := c.ItemCount()
	if count == 0 {
		return c, nil
	}

	switch {
	case key.Matches(keyMsg, ListColumnKeys.Down):
		c.SetSelectedIndex(c.cursor + 1)
	case key.Matches(keyMsg, ListColumnKeys.Up):
		c.SetSelectedIndex(c.cursor - 1)
	case key.Matches(keyMsg, ListColumnKeys.Home):
		c.cursor = 0
		c.offset = 0
	case key.Matches(keyMsg, ListColumnKeys.End):
		c.SetSelectedIndex(count - 1)
	case key.Matches(keyMsg, ListColumnKeys.HalfDown):
		c.SetSelectedIndex(c.cursor + c.maxVisible/2)
	case key.Matches(keyMsg, ListColumnKeys.HalfUp):
		c.SetSelectedIndex(c.cursor - c.maxVisible/2)
	case key.Matches(keyMsg, ListColumnKeys.PageDown):
		c.SetSelectedIndex(c.cursor + c.maxVisible)
	case key.Matches(keyMsg, ListColumnKeys.PageUp):
		c.SetSelectedIndex(c.cursor - c.maxVisible)
	}

	return c, nil
}

func (c *ListColumn) View() string {
	style := styles.InactiveBorder
	if c.focused {
		style = styles.ActiveBorder
	}

	// Subtract frame (border) size so total rendered size equals c.width x c.height
	frameW, frameH := style.GetFrameSize()

	return style.
		Width(c.width - frameW).
		Height(c.height - frameH).
		Render(c.renderContent())
}

func (c *ListColumn) SetSize(width, height int) {
	c.width = width
	c.height = height
	c.recalcMaxVisible()
	c.ensureVisible()
}

func (c *ListColumn) Width() int  { return c.width }
func (c *ListColumn) Height() int { return c.height }

func (c *ListColumn) SetFocused(focused bool) {
	c.focused = focused
}

func (c *ListColumn) IsFocused() bool {
	return c.focused
}

func (c *ListColumn) Title() string {
	return c.title
}

func (c *ListColumn) SetTitle(title string) {
	c.title = title
}

// SelectedItem returns the row under the cursor, nil when empty
func (c *ListColumn) SelectedItem() ListItem {
	count := c.ItemCount()
	if count == 0 || c.cursor >= count {
		return nil
	}
	return c.items[c.mapIndex(c.cursor)]
}

func (c *ListColumn) SelectedIndex() int {
	return c.cursor
}

func (c *ListColumn) SetSelectedIndex(idx int) {
	last := c.ItemCount() - 1
	if last < 0 {
		c.cursor = 0
		return
	}
	c.cursor = min(max(idx, 0), last)
	c.ensureVisible()
}

// ItemCount returns the number of visible rows (after filtering)
func (c *ListColumn) ItemCount() int {
	if c.filteredIdx != nil {
		return len(c.filteredIdx)
	}
	return len(c.items)
}

// TotalCount returns the number of loaded rows
func (c *ListColumn) TotalCount() int {
	return len(c.items)
}

func (c *ListColumn) IsEmpty() bool {
	return c.ItemCount() == 0
}

// SetItems replaces the rows. The cursor stays on the previously selected
// record when it is still present, and an active filter is re-applied.
func (c *ListColumn) SetItems(items []ListItem) {
	selectedID := 0
	if sel := c.SelectedItem(); sel != nil {
		selectedID = sel.ItemID()
	}

	c.items = items
	if c.filterActive {
		c.applyFilter()
	}

	if selectedID != 0 {
		for i := 0; i < c.ItemCount(); i++ {
			if c.items[c.mapIndex(i)].ItemID() == selectedID {
				c.cursor = i
				c.ensureVisible()
				return
			}
		}
	}
	c.SetSelectedIndex(c.cursor)
}

// SelectID moves the cursor to the row with the given id, clearing a local
// filter that hides it. It reports whether the row is loaded.
func (c *ListColumn) SelectID(id int) bool {
	for i, item := range c.items {
		if item.ItemID() != id {
			continue
		}
		if c.filterActive {
			c.clearFilter()
		}
		c.SetSelectedIndex(i)
		return true
	}
	return false
}

// SetPaging updates the loading and end-of-data indicators
func (c *ListColumn) SetPaging(refreshing, appending, prepending, appendEnd bool) {
	c.refreshing = refreshing
	c.appending = appending
	c.prepending = prepending
	c.appendEnd = appendEnd
}

// SetSpinnerFrame updates the spinner animation frame
func (c *ListColumn) SetSpinnerFrame(frame int) {
	c.spinnerFrame = frame
}

// NearEnd reports whether the cursor is within distance rows of the last
// loaded row. Filtered views never trigger paging.
func (c *ListColumn) NearEnd(distance int) bool {
	if c.filterActive || len(c.items) == 0 {
		return false
	}
	return len(c.items)-1-c.cursor < distance
}

// NearStart reports whether the cursor is within distance rows of the first row
func (c *ListColumn) NearStart(distance int) bool {
	if c.filterActive || len(c.items) == 0 {
		return false
	}
	return c.cursor < distance
}

// ToggleFilter activates the filter input
func (c *ListColumn) ToggleFilter() {
	c.filterActive = true
	c.filterInput.Focus()
	c.recalcMaxVisible()
}

// IsFiltering returns true if filter mode is active
func (c *ListColumn) IsFiltering() bool {
	return c.filterActive
}

// IsFilterTyping returns true if filter is active AND input is focused
func (c *ListColumn) IsFilterTyping() bool {
	return c.filterActive && c.filterInput.Focused()
}

// ClearFilter deactivates the filter and shows all rows
func (c *ListColumn) ClearFilter() {
	c.clearFilter()
}

// Internal methods

func (c *ListColumn) recalcMaxVisible() {
	// Interior height minus title line and scroll indicators
	c.maxVisible = c.height - BorderHeight - ScrollIndicatorLines - 1
	if c.filterActive {
		c.maxVisible--
	}
	if c.maxVisible < 1 {
		c.maxVisible = 1
	}
}

func (c *ListColumn) ensureVisible() {
	// Size not set yet
	if c.maxVisible <= 0 {
		return
	}
	if c.cursor < c.offset {
		c.offset = c.cursor
	}
	if c.cursor >= c.offset+c.maxVisible {
		c.offset = c.cursor - c.maxVisible + 1
	}
}

func (c *ListColumn) clearFilter() {
	c.filterActive = false
	c.filterQuery = ""
	c.filteredIdx = nil
	c.filterInput.SetValue("")
	c.filterInput.Blur()
	c.recalcMaxVisible()
}

func (c *ListColumn) applyFilter() {
	query := c.filterInput.Value()
	changed := query != c.filterQuery
	c.filterQuery = query

	if query == "" {
		c.filteredIdx = nil
		return
	}

	// Case-insensitive matching
	values := make([]string, len(c.items))
	for i, item := range c.items {
		values[i] = strings.ToLower(item.FilterValue())
	}

	matches := fuzzy.Find(strings.ToLower(query), values)

	c.filteredIdx = make([]int, len(matches))
	for i, match := range matches {
		c.filteredIdx[i] = match.Index
	}

	if changed {
		c.cursor = 0
		c.offset = 0
	}
}

func (c *ListColumn) mapIndex(i int) int {
	if c.filteredIdx != nil && i < len(c.filteredIdx) {
		return c.filteredIdx[i]
	}
	return i
}

// Rendering

func (c *ListColumn) renderContent() string {
	itemWidth := max(c.width-BorderWidth, 10)

	titleLine := styles.AccentStyle.Render(styles.Truncate(c.title, itemWidth))
	spinner := SpinnerFrames[c.spinnerFrame%len(SpinnerFrames)]

	count := c.ItemCount()
	if count == 0 {
		msg := styles.DimStyle.Render("No items")
		switch {
		case c.refreshing:
			msg = styles.DimStyle.Render(spinner + " Loading...")
		case c.filterActive && c.filterQuery != "":
			msg = styles.DimStyle.Render("No matches")
		}
		content := titleLine + "\n \n" + msg + "\n "
		if c.filterActive {
			content += "\n" + c.renderFilterBar()
		}
		return content
	}

	end := min(c.offset+c.maxVisible, count)

	lines := make([]string, 0, end-c.offset)
	for i := c.offset; i < end; i++ {
		lines = append(lines, renderRow(c.items[c.mapIndex(i)], i == c.cursor, itemWidth))
	}

	// Always reserve header and footer lines to prevent layout shifts
	header := " "
	switch {
	case c.prepending || c.refreshing:
		header = styles.DimStyle.Render(spinner + " loading")
	case c.offset > 0:
		header = styles.DimStyle.Render("↑ more")
	}

	footer := " "
	switch {
	case end < count:
		footer = styles.DimStyle.Render("↓ more")
	case c.appending:
		footer = styles.DimStyle.Render(spinner + " loading more")
	case c.appendEnd && !c.filterActive:
		footer = styles.DimStyle.Render(fmt.Sprintf("end · %d loaded", len(c.items)))
	}

	content := titleLine + "\n" + header + "\n" + strings.Join(lines, "\n") + "\n" + footer

	if c.filterActive {
		content += "\n" + c.renderFilterBar()
	}
	return content
}

func renderRow(item ListItem, selected bool, width int) string {
	switch v := item.(type) {
	case CharacterListItem:
		glyph, fg := styles.StatusGlyph(v.Character.Status)
		title := styles.Truncate(v.ItemTitle(), max(width-4, 5))
		return styles.RenderListRow([]styles.RowPart{
			{Text: glyph, Foreground: &fg},
			{Text: " " + title},
		}, selected, width)

	case EpisodeListItem:
		code := v.Episode.Code
		accent := styles.PortalGreen
		title := styles.Truncate(v.Episode.Name, max(width-4-lipgloss.Width(code), 5))
		return styles.RenderListRow([]styles.RowPart{
			{Text: code, Foreground: &accent},
			{Text: " " + title},
		}, selected, width)

	default:
		dim := styles.DimGray
		title := styles.Truncate(item.ItemTitle(), max(width-2, 5))
		parts := []styles.RowPart{{Text: title}}
		if room := width - 4 - lipgloss.Width(title); room > 3 && item.ItemSubtitle() != "" {
			parts = append(parts, styles.RowPart{Text: " " + styles.Truncate(item.ItemSubtitle(), room), Foreground: &dim})
		}
		return styles.RenderListRow(parts, selected, width)
	}
}

func (c *ListColumn) renderFilterBar() string {
	input := c.filterInput.View()

	countStr := ""
	if c.filterQuery != "" {
		countStr = styles.DimStyle.Render(fmt.Sprintf(" [%d/%d]", c.ItemCount(), len(c.items)))
	}
	return input + countStr
}
