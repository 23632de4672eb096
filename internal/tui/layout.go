package tui

// Layout proportions
const (
	// List column share when the inspector is visible
	ListColumnPercent = 45

	MinColumnWidth = 20

	// Tab bar above, footer below
	ChromeHeight = 2
)

// columnLayout holds calculated column widths for the View
type columnLayout struct {
	listWidth      int
	inspectorWidth int // 0 if not shown
}

// calculateColumnLayout computes column widths based on inspector visibility
func (m Model) calculateColumnLayout(availableWidth int) columnLayout {
	if !m.ShowInspector || availableWidth < 2*MinColumnWidth {
		return columnLayout{listWidth: availableWidth}
	}
	list := max(availableWidth*ListColumnPercent/100, MinColumnWidth)
	return columnLayout{
		listWidth:      list,
		inspectorWidth: availableWidth - list,
	}
}

// updateLayout updates component sizes based on window size
func (m *Model) updateLayout() {
	if m.Width == 0 || m.Height == 0 {
		return
	}

	contentHeight := max(m.Height-ChromeHeight, 3)
	m.GlobalSearch.SetSize(m.Width, m.Height)

	layout := m.calculateColumnLayout(m.Width)
	for _, t := range m.tabs {
		t.list.SetSize(layout.listWidth, contentHeight)
	}
	if layout.inspectorWidth > 0 {
		m.Inspector.SetSize(layout.inspectorWidth, contentHeight)
	}
}
