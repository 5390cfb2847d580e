package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/sst/mentions/internal/trigger"
	"github.com/sst/mentions/internal/tui/theme"
)

type Styles struct {
	theme theme.Theme

	Overlay  lipgloss.Style
	Item     lipgloss.Style
	Selected lipgloss.Style
	Preset   lipgloss.Style
	Detail   lipgloss.Style
	Divider  lipgloss.Style
	Empty    lipgloss.Style
	Loading  lipgloss.Style

	Editor lipgloss.Style
	Mark   lipgloss.Style
	Cursor lipgloss.Style

	Status lipgloss.Style
	Error  lipgloss.Style
	Info   lipgloss.Style
	Warn   lipgloss.Style
}

func New(t theme.Theme) Styles {
	base := lipgloss.NewStyle().Foreground(t.Text)
	return Styles{
		theme: t,
		Overlay: base.
			Background(t.Element).
			BorderStyle(lipgloss.ThickBorder()).
			BorderLeft(true).
			BorderRight(true).
			BorderForeground(t.Border),
		Item:     base.Background(t.Element).Padding(0, 1),
		Selected: base.Background(t.Primary).Foreground(t.Element).Padding(0, 1),
		Preset:   base.Background(t.Element).Foreground(t.Accent).Padding(0, 1),
		Detail:   lipgloss.NewStyle().Foreground(t.Muted),
		Divider:  lipgloss.NewStyle().Foreground(t.Border).Background(t.Element),
		Empty:    lipgloss.NewStyle().Foreground(t.Muted).Background(t.Element).Padding(0, 1).Italic(true),
		Loading:  lipgloss.NewStyle().Foreground(t.Muted).Background(t.Element).Padding(0, 1),
		Editor:   base.Padding(0, 1),
		Mark:     lipgloss.NewStyle().Foreground(t.Primary).Underline(true),
		Cursor:   lipgloss.NewStyle().Reverse(true),
		Status:   lipgloss.NewStyle().Foreground(t.Muted),
		Error:    lipgloss.NewStyle().Foreground(t.Error),
		Info:     lipgloss.NewStyle().Foreground(t.Info),
		Warn:     lipgloss.NewStyle().Foreground(t.Warning),
	}
}

// Token styles a confirmed token of kind.
func (s Styles) Token(kind trigger.Kind) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(s.theme.Token(kind)).Bold(true)
}
