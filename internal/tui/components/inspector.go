package components

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mmcdole/portal/internal/domain"
	"github.com/mmcdole/portal/internal/library"
	"github.com/mmcdole/portal/internal/tui/styles"
)

// Layout constants for inspector
const (
	InspectorBorderHeight     = 2
	InspectorScrollIndicators = 2
)

// inspectorContent holds the three-zone layout content
type inspectorContent struct {
	header string // fixed top
	body   string // scrollable middle
	footer string // fixed bottom
}

// Inspector displays a record and its related records as enrichment
// patches arrive
type Inspector struct {
	item       domain.Item
	relations  map[string][]domain.Item
	enriching  bool
	width      int
	height     int
	offset     int // scroll offset
	maxVisible int // max visible lines
}

// NewInspector creates a new inspector component
func NewInspector() Inspector {
	return Inspector{
		relations: make(map[string][]domain.Item),
	}
}

// SetItem sets the record to display and drops relations of the previous one
func (i *Inspector) SetItem(item domain.Item) {
	if i.item != nil && item != nil && i.item.GetKind() == item.GetKind() && i.item.GetID() == item.GetID() {
		i.item = item
		return
	}
	i.item = item
	i.relations = make(map[string][]domain.Item)
	i.enriching = false
	i.offset = 0 // Reset scroll on item change
}

// Item returns the displayed record
func (i Inspector) Item() domain.Item {
	return i.item
}

// SetEnriching marks related-record lookups as in flight
func (i *Inspector) SetEnriching(enriching bool) {
	i.enriching = enriching
}

// ApplyPatch merges resolved related records into the view
func (i *Inspector) ApplyPatch(p library.Patch) {
	var items []domain.Item
	for _, c := range p.Characters {
		items = append(items, c)
	}
	for _, l := range p.Locations {
		items = append(items, l)
	}
	for _, e := range p.Episodes {
		items = append(items, e)
	}
	merged := append(i.relations[p.Relation], items...)
	sortRelated(merged)
	i.relations[p.Relation] = merged
}

// ScrollBy moves the body scroll offset
func (i *Inspector) ScrollBy(n int) {
	i.offset = max(i.offset+n, 0)
}

// SetSize updates the component dimensions
func (i *Inspector) SetSize(width, height int) {
	i.width = width
	i.height = height
	// Calculate max visible lines (reserve space for border, scroll indicators, and title)
	i.maxVisible = height - InspectorBorderHeight - InspectorScrollIndicators - 2 // -1 for title, -1 for blank line
	if i.maxVisible < 1 {
		i.maxVisible = 1
	}
}

// HasItem returns true if there is an item to display
func (i Inspector) HasItem() bool {
	return i.item != nil
}

// View renders the component
func (i Inspector) View() string {
	style := styles.InactiveBorder

	// Border takes 2 chars (1 each side), leave 1 char safety margin
	contentWidth := i.width - 3
	if contentWidth < 10 {
		contentWidth = 10
	}
	content := i.renderInspector(contentWidth)

	// Title line (styled, matching other columns)
	titleLine := styles.AccentStyle.Render(styles.Truncate("Details", contentWidth))

	// Three-zone layout: header is fixed, body scrolls, footer is fixed
	headerLines := splitLines(content.header)
	footerLines := splitLines(content.footer)
	bodyLines := splitLines(content.body)

	// Calculate available space for body
	availableForBody := i.maxVisible - len(headerLines) - len(footerLines)
	if availableForBody < 1 {
		availableForBody = 1
	}

	// Clamp body scroll offset
	totalBodyLines := len(bodyLines)
	maxOffset := totalBodyLines - availableForBody
	if maxOffset < 0 {
		maxOffset = 0
	}
	offset := i.offset
	if offset > maxOffset {
		offset = maxOffset
	}

	// Get visible body window
	end := offset + availableForBody
	if end > totalBodyLines {
		end = totalBodyLines
	}
	visibleBody := bodyLines[offset:end]

	// Scroll indicators for body only
	header := " "
	if offset > 0 {
		header = styles.DimStyle.Render("↑ more")
	}
	footer := " "
	if end < totalBodyLines {
		footer = styles.DimStyle.Render("↓ more")
	}

	// Assemble: title + header zone + scroll-up indicator + visible body + padding + scroll-down indicator + footer zone
	var parts []string
	parts = append(parts, titleLine)
	parts = append(parts, "")

	// Header zone (fixed)
	if len(headerLines) > 0 && content.header != "" {
		parts = append(parts, strings.Join(headerLines, "\n"))
	}

	// Scroll-up indicator
	parts = append(parts, header)

	// Visible body
	if len(visibleBody) > 0 {
		parts = append(parts, strings.Join(visibleBody, "\n"))
	}

	// Pad between body end and footer if body is shorter than available space
	visibleBodyCount := len(visibleBody)
	if visibleBodyCount < availableForBody {
		padding := availableForBody - visibleBodyCount
		for j := 0; j < padding; j++ {
			parts = append(parts, "")
		}
	}

	// Scroll-down indicator
	parts = append(parts, footer)

	// Footer zone (fixed, pinned to bottom)
	if len(footerLines) > 0 && content.footer != "" {
		parts = append(parts, strings.Join(footerLines, "\n"))
	}

	rendered := strings.Join(parts, "\n")

	// Subtract frame (border) size so total rendered size equals i.width x i.height
	frameW, frameH := style.GetFrameSize()

	return style.
		Width(i.width - frameW).
		Height(i.height - frameH).
		Render(rendered)
}

// renderInspector renders the inspector panel content as three zones
func (i Inspector) renderInspector(width int) inspectorContent {
	switch v := i.item.(type) {
	case *domain.Character:
		return i.renderCharacter(v, width)
	case *domain.Location:
		return i.renderLocation(v, width)
	case *domain.Episode:
		return i.renderEpisode(v, width)
	default:
		return inspectorContent{body: styles.DimStyle.Render("No item selected")}
	}
}

func (i Inspector) renderCharacter(c *domain.Character, width int) inspectorContent {
	var header strings.Builder

	header.WriteString(styles.TitleStyle.Render(styles.Truncate(c.Name, width)))
	header.WriteString("\n")

	glyph, fg := styles.StatusGlyph(c.Status)
	statusLine := lipgloss.NewStyle().Foreground(fg).Render(glyph + " " + c.Status)
	meta := joinNonEmpty(" · ", c.Species, c.Type, c.Gender)
	header.WriteString(statusLine + styles.DimStyle.Render("  "+meta))

	var body strings.Builder
	body.WriteString(i.renderPlace("Origin", c.Origin, library.RelationOrigin, width))
	body.WriteString("\n")
	body.WriteString(i.renderPlace("Last seen", c.Location, library.RelationLocation, width))
	body.WriteString("\n\n")
	body.WriteString(i.renderRelation("Episodes", library.RelationEpisodes, len(c.EpisodeURLs), width))

	return inspectorContent{
		header: header.String(),
		body:   body.String(),
		footer: renderFooter(c.ID, c.Created.Format("2006-01-02"), c.URL, width),
	}
}

func (i Inspector) renderLocation(l *domain.Location, width int) inspectorContent {
	header := styles.TitleStyle.Render(styles.Truncate(l.Name, width)) + "\n" +
		styles.DimStyle.Render(styles.Truncate(joinNonEmpty(" · ", l.Type, l.Dimension), width))

	return inspectorContent{
		header: header,
		body:   i.renderRelation("Residents", library.RelationResidents, len(l.ResidentURLs), width),
		footer: renderFooter(l.ID, l.Created.Format("2006-01-02"), l.URL, width),
	}
}

func (i Inspector) renderEpisode(e *domain.Episode, width int) inspectorContent {
	title := e.Name
	if e.Code != "" {
		title = e.Code + " - " + e.Name
	}
	header := styles.TitleStyle.Render(styles.Truncate(title, width)) + "\n" +
		styles.DimStyle.Render(fmt.Sprintf("Aired %s", e.AirDate))

	return inspectorContent{
		header: header,
		body:   i.renderRelation("Characters", library.RelationCharacters, len(e.CharacterURLs), width),
		footer: renderFooter(e.ID, e.Created.Format("2006-01-02"), e.URL, width),
	}
}

// renderPlace renders a location reference, upgraded with its resolved record
func (i Inspector) renderPlace(label string, ref domain.NamedRef, relation string, width int) string {
	name := ref.Name
	if name == "" {
		name = "unknown"
	}
	line := styles.SubtitleStyle.Render(label+": ") + styles.Truncate(name, width-len(label)-2)
	if resolved := i.relations[relation]; len(resolved) > 0 {
		if desc := resolved[0].GetDescription(); desc != "" {
			line += "\n  " + styles.DimStyle.Render(styles.Truncate(desc, width-2))
		}
	}
	return line
}

// renderRelation renders the resolved records of a to-many relation
func (i Inspector) renderRelation(label, relation string, total, width int) string {
	var b strings.Builder
	b.WriteString(styles.SubtitleStyle.Render(fmt.Sprintf("%s (%d)", label, total)))

	items := i.relations[relation]
	for _, item := range items {
		b.WriteString("\n  ")
		name := item.GetName()
		if ep, ok := item.(*domain.Episode); ok && ep.Code != "" {
			name = ep.Code + " " + ep.Name
		}
		b.WriteString(styles.Truncate(name, width-2))
	}

	switch {
	case i.enriching && len(items) < total:
		b.WriteString("\n  " + styles.DimStyle.Render("resolving..."))
	case !i.enriching && len(items) < total:
		b.WriteString("\n  " + styles.DimStyle.Render(fmt.Sprintf("%d not resolved", total-len(items))))
	}
	return b.String()
}

func renderFooter(id int, created, url string, width int) string {
	sep := styles.DimStyle.Render(strings.Repeat("─", width))
	meta := styles.DimStyle.Render(styles.Truncate(fmt.Sprintf("#%d · created %s", id, created), width))
	return sep + "\n" + meta + "\n" + styles.DimStyle.Render(styles.Truncate(url, width))
}

func sortRelated(items []domain.Item) {
	sort.SliceStable(items, func(a, b int) bool {
		return items[a].GetID() < items[b].GetID()
	})
}

func joinNonEmpty(sep string, parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}

// splitLines splits a string into lines, returning empty slice for empty string
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// wordWrap wraps text to the specified width
func wordWrap(text string, width int) string {
	if width <= 0 {
		return text
	}

	var result strings.Builder
	words := strings.Fields(text)
	lineLen := 0

	for i, word := range words {
		wordLen := len(word)

		if lineLen+wordLen+1 > width && lineLen > 0 {
			result.WriteString("\n")
			lineLen = 0
		}

		if i > 0 && lineLen > 0 {
			result.WriteString(" ")
			lineLen++
		}

		result.WriteString(word)
		lineLen += wordLen
	}

	return result.String()
}
