package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"

	"github.com/mmcdole/portal/internal/domain"
	"github.com/mmcdole/portal/internal/library"
	"github.com/mmcdole/portal/internal/tui/styles"
)

// GlobalSearch is the fuzzy search modal over every cached collection
type GlobalSearch struct {
	input     textinput.Model
	results   []library.SearchResult
	cursor    int
	visible   bool
	width     int
	height    int
	loading   bool
	prevQuery string
}

// NewGlobalSearch creates a new global search component
func NewGlobalSearch() GlobalSearch {
	ti := textinput.New()
	ti.Placeholder = "Search..."
	ti.CharLimit = 100
	ti.Width = 40
	ti.Prompt = "/ "
	ti.PromptStyle = styles.AccentStyle
	ti.TextStyle = lipgloss.NewStyle().Foreground(styles.White)
	ti.PlaceholderStyle = styles.DimStyle

	return GlobalSearch{
		input: ti,
	}
}

// Show makes the global search visible and focuses the input
func (o *GlobalSearch) Show() {
	o.visible = true
	o.input.Focus()
	o.input.SetValue("")
	o.input.Placeholder = "Search cached characters, locations, episodes..."
	o.results = nil
	o.cursor = 0
	o.loading = false
	o.prevQuery = ""
}

// Hide hides the global search
func (o *GlobalSearch) Hide() {
	o.visible = false
	o.input.Blur()
}

// IsVisible returns true if the global search is visible
func (o GlobalSearch) IsVisible() bool {
	return o.visible
}

// SetResults sets the ranked search results
func (o *GlobalSearch) SetResults(results []library.SearchResult) {
	o.results = results
	o.cursor = 0
	o.loading = false
}

// SetSize updates the component dimensions
func (o *GlobalSearch) SetSize(width, height int) {
	o.width = width
	o.height = height
	o.input.Width = width - 10
}

// Query returns the current search query
func (o GlobalSearch) Query() string {
	return o.input.Value()
}

// QueryChanged returns true if the query changed since last check and updates prevQuery
func (o *GlobalSearch) QueryChanged() bool {
	current := o.input.Value()
	if current != o.prevQuery {
		o.prevQuery = current
		return true
	}
	return false
}

// SetLoading marks a search as in flight
func (o *GlobalSearch) SetLoading(loading bool) {
	o.loading = loading
}

// Selected returns the selected result's record
func (o GlobalSearch) Selected() domain.Item {
	if len(o.results) == 0 || o.cursor >= len(o.results) {
		return nil
	}
	return o.results[o.cursor].Item
}

// ResultCount returns the number of results
func (o GlobalSearch) ResultCount() int {
	return len(o.results)
}

// Init initializes the component
func (o GlobalSearch) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages
func (o GlobalSearch) Update(msg tea.Msg) (GlobalSearch, tea.Cmd, bool) {
	if !o.visible {
		return o, nil, false
	}

	var cmd tea.Cmd
	resultCount := o.ResultCount()

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, GlobalSearchKeys.Escape):
			o.Hide()
			return o, nil, false

		case key.Matches(msg, GlobalSearchKeys.Enter):
			if resultCount > 0 {
				return o, nil, true // Selected
			}
			return o, nil, false

		case key.Matches(msg, GlobalSearchKeys.Down):
			if o.cursor < resultCount-1 {
				o.cursor++
			}
			return o, nil, false

		case key.Matches(msg, GlobalSearchKeys.Up):
			if o.cursor > 0 {
				o.cursor--
			}
			return o, nil, false

		default:
			// Pass to text input
			o.input, cmd = o.input.Update(msg)
			return o, cmd, false
		}
	}

	// Handle other messages
	o.input, cmd = o.input.Update(msg)
	return o, cmd, false
}

// View renders the component
func (o GlobalSearch) View() string {
	if !o.visible {
		return ""
	}

	// Modal dimensions
	modalWidth := o.width * 2 / 3
	if modalWidth < 40 {
		modalWidth = 40
	}
	if modalWidth > 80 {
		modalWidth = 80
	}
	maxResults := 10

	var b strings.Builder

	// Title
	b.WriteString(styles.ModalTitleStyle.Render("Search"))
	b.WriteString("\n\n")

	// Input field
	b.WriteString(o.input.View())
	b.WriteString("\n\n")

	// Results
	if o.loading {
		b.WriteString(styles.SpinnerStyle.Render("Searching..."))
	} else {
		o.renderResults(&b, modalWidth, maxResults)
	}

	// Center the modal
	content := lipgloss.NewStyle().
		Width(modalWidth - 4).
		Render(b.String())

	modal := styles.ModalStyle.
		Width(modalWidth).
		Render(content)

	// Center horizontally and vertically
	return lipgloss.Place(
		o.width,
		o.height,
		lipgloss.Center,
		lipgloss.Center,
		modal,
	)
}

// highlightMatches renders text with matched characters highlighted
func highlightMatches(text string, matchedIndexes []int, selected bool) string {
	base := styles.NormalItemStyle.Padding(0)
	match := styles.MatchHighlightStyle
	if selected {
		base = styles.SelectedItemStyle.Padding(0)
		match = styles.MatchHighlightSelectedStyle
	}
	if len(matchedIndexes) == 0 {
		return base.Render(text)
	}

	matchSet := make(map[int]bool, len(matchedIndexes))
	for _, idx := range matchedIndexes {
		matchSet[idx] = true
	}

	// Batch consecutive runes with the same style
	var result strings.Builder
	runes := []rune(text)
	i := 0
	for i < len(runes) {
		isMatch := matchSet[i]
		start := i
		for i < len(runes) && matchSet[i] == isMatch {
			i++
		}
		if isMatch {
			result.WriteString(match.Render(string(runes[start:i])))
		} else {
			result.WriteString(base.Render(string(runes[start:i])))
		}
	}
	return result.String()
}

// matchedRunes returns rune positions of query characters within name
func matchedRunes(query, name string) []int {
	matches := fuzzy.Find(strings.ToLower(query), []string{strings.ToLower(name)})
	if len(matches) == 0 {
		return nil
	}
	// sahilm/fuzzy reports byte offsets
	byteToRune := make(map[int]int, len(name))
	r := 0
	for b := range strings.ToLower(name) {
		byteToRune[b] = r
		r++
	}
	out := make([]int, 0, len(matches[0].MatchedIndexes))
	for _, b := range matches[0].MatchedIndexes {
		if ri, ok := byteToRune[b]; ok {
			out = append(out, ri)
		}
	}
	return out
}

// renderResults renders the search results
func (o GlobalSearch) renderResults(b *strings.Builder, modalWidth, maxResults int) {
	if len(o.results) == 0 && o.input.Value() != "" {
		b.WriteString(styles.DimStyle.Render("No matches in the local cache"))
		return
	}
	if len(o.results) == 0 {
		return
	}

	// Keep the cursor inside the visible window
	start := 0
	if o.cursor >= maxResults {
		start = o.cursor - maxResults + 1
	}
	end := min(start+maxResults, len(o.results))

	for i := start; i < end; i++ {
		item := o.results[i].Item
		selected := i == o.cursor

		var line strings.Builder
		switch item.GetKind() {
		case domain.KindCharacter:
			line.WriteString(styles.DimBadgeStyle.Render("CHR"))
		case domain.KindLocation:
			line.WriteString(styles.DimBadgeStyle.Render("LOC"))
		case domain.KindEpisode:
			line.WriteString(styles.DimBadgeStyle.Render("EP "))
		}
		line.WriteString(" ")

		title := styles.Truncate(item.GetName(), modalWidth-25)
		line.WriteString(highlightMatches(title, matchedRunes(o.input.Value(), title), selected))

		if desc := item.GetDescription(); desc != "" {
			room := modalWidth - 12 - lipgloss.Width(title)
			if room > 5 {
				line.WriteString(styles.DimStyle.Render("  " + styles.Truncate(desc, room)))
			}
		}

		b.WriteString(line.String())
		b.WriteString("\n")
	}

	if len(o.results) > end {
		b.WriteString(styles.DimStyle.Render(fmt.Sprintf("... and %d more", len(o.results)-end)))
	}
}
