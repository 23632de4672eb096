package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mmcdole/portal/internal/domain"
	"github.com/mmcdole/portal/internal/tui/styles"
)

const filterFormWidth = 44

// FilterForm is a modal with one text input per filter field
type FilterForm struct {
	visible bool
	title   string
	names   []string
	inputs  []textinput.Model
	focus   int
	err     string
}

// NewFilterForm creates a hidden filter form
func NewFilterForm() FilterForm {
	return FilterForm{}
}

// Show displays the form prefilled with the current filter fields
func (f *FilterForm) Show(title string, fields []domain.FilterField) {
	f.visible = true
	f.title = title
	f.err = ""
	f.focus = 0
	f.names = make([]string, len(fields))
	f.inputs = make([]textinput.Model, len(fields))

	labelWidth := 0
	for _, field := range fields {
		labelWidth = max(labelWidth, len(field.Name))
	}

	for i, field := range fields {
		ti := textinput.New()
		ti.Prompt = styles.Pad(field.Name, labelWidth) + "  "
		ti.PromptStyle = styles.DimStyle
		ti.TextStyle = lipgloss.NewStyle().Foreground(styles.White)
		ti.PlaceholderStyle = styles.DimStyle
		ti.Placeholder = placeholderFor(field.Name)
		ti.CharLimit = 64
		ti.Width = filterFormWidth - labelWidth - 4
		ti.SetValue(field.Value)
		f.names[i] = field.Name
		f.inputs[i] = ti
	}
	f.focusInput(0)
}

// Hide dismisses the form
func (f *FilterForm) Hide() {
	f.visible = false
	for i := range f.inputs {
		f.inputs[i].Blur()
	}
}

// IsVisible returns whether the form is shown
func (f FilterForm) IsVisible() bool {
	return f.visible
}

// SetError shows a validation message below the fields
func (f *FilterForm) SetError(msg string) {
	f.err = msg
}

// Values returns the trimmed field values keyed by field name
func (f FilterForm) Values() map[string]string {
	values := make(map[string]string, len(f.inputs))
	for i, in := range f.inputs {
		values[f.names[i]] = strings.TrimSpace(in.Value())
	}
	return values
}

// Update handles input events, returns (form, cmd, submitted)
func (f FilterForm) Update(msg tea.Msg) (FilterForm, tea.Cmd, bool) {
	if !f.visible || len(f.inputs) == 0 {
		return f, nil, false
	}

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(keyMsg, FilterFormKeys.Submit):
			return f, nil, true
		case key.Matches(keyMsg, FilterFormKeys.Escape):
			f.Hide()
			return f, nil, false
		case key.Matches(keyMsg, FilterFormKeys.Next):
			f.focusInput((f.focus + 1) % len(f.inputs))
			return f, nil, false
		case key.Matches(keyMsg, FilterFormKeys.Prev):
			f.focusInput((f.focus - 1 + len(f.inputs)) % len(f.inputs))
			return f, nil, false
		case key.Matches(keyMsg, FilterFormKeys.Clear):
			for i := range f.inputs {
				f.inputs[i].SetValue("")
			}
			return f, nil, false
		}
	}

	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	f.err = ""
	return f, cmd, false
}

// View renders the filter form
func (f FilterForm) View() string {
	if !f.visible {
		return ""
	}

	rowStyle := lipgloss.NewStyle().
		Width(filterFormWidth).
		Background(styles.SlateDark)

	rows := []string{
		rowStyle.Inherit(styles.ModalTitleStyle).Render(f.title),
	}
	for _, in := range f.inputs {
		rows = append(rows, rowStyle.Render(in.View()))
	}
	rows = append(rows, rowStyle.Render(""))
	if f.err != "" {
		rows = append(rows, rowStyle.Inherit(styles.ErrorStyle).Render(f.err))
	}
	rows = append(rows, rowStyle.Inherit(styles.DimStyle).Render("tab next · enter apply · C-r clear · esc cancel"))

	return styles.ModalStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (f *FilterForm) focusInput(idx int) {
	f.inputs[f.focus].Blur()
	f.focus = idx
	f.inputs[f.focus].Focus()
}

func placeholderFor(field string) string {
	switch field {
	case "status":
		return strings.Join(domain.CharacterStatuses, "|")
	case "gender":
		return strings.Join(domain.CharacterGenders, "|")
	case "episode":
		return "S01 or S01E01"
	default:
		return "any"
	}
}
