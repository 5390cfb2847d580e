package editor

import (
	"log/slog"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sst/mentions/internal/document"
	"github.com/sst/mentions/internal/trigger"
	"github.com/sst/mentions/internal/tui/styles"
	"github.com/sst/mentions/internal/tui/theme"
)

type KeyMap struct {
	Left      key.Binding
	Right     key.Binding
	Home      key.Binding
	End       key.Binding
	Backspace key.Binding
	Delete    key.Binding
	Newline   key.Binding
	Undo      key.Binding
	Paste     key.Binding
}

// PastedMsg carries the clipboard contents read after a paste key.
type PastedMsg struct {
	Text string
	Err  error
}

var DefaultKeyMap = KeyMap{
	Left: key.NewBinding(
		key.WithKeys("left", "ctrl+b"),
		key.WithHelp("←", "move left"),
	),
	Right: key.NewBinding(
		key.WithKeys("right", "ctrl+f"),
		key.WithHelp("→", "move right"),
	),
	Home: key.NewBinding(
		key.WithKeys("home", "ctrl+a"),
		key.WithHelp("home", "line start"),
	),
	End: key.NewBinding(
		key.WithKeys("end", "ctrl+e"),
		key.WithHelp("end", "line end"),
	),
	Backspace: key.NewBinding(
		key.WithKeys("backspace", "ctrl+h"),
		key.WithHelp("backspace", "delete back"),
	),
	Delete: key.NewBinding(
		key.WithKeys("delete", "ctrl+d"),
		key.WithHelp("del", "delete forward"),
	),
	Newline: key.NewBinding(
		key.WithKeys("enter", "ctrl+j"),
		key.WithHelp("enter", "new line"),
	),
	Undo: key.NewBinding(
		key.WithKeys("ctrl+z"),
		key.WithHelp("ctrl+z", "undo"),
	),
	Paste: key.NewBinding(
		key.WithKeys("ctrl+v"),
		key.WithHelp("ctrl+v", "paste"),
	),
}

// Model is the editing surface component. It renders the document with its
// tokens and the active trigger mark.
type Model struct {
	surface *document.Surface
	keys    KeyMap
	styles  styles.Styles
	read    func() (string, error)

	width       int
	placeholder string
	focused     bool
}

func New(surface *document.Surface) *Model {
	return &Model{
		surface:     surface,
		keys:        DefaultKeyMap,
		read:        clipboard.ReadAll,
		styles:      styles.New(theme.Current()),
		width:       60,
		placeholder: "Type # for topics, / for commands, @ for files",
		focused:     true,
	}
}

func (m *Model) SetWidth(width int) {
	if width > 0 {
		m.width = width
	}
}

func (m *Model) SetPlaceholder(text string) {
	m.placeholder = text
}

func (m *Model) Focus() {
	m.focused = true
}

func (m *Model) Blur() {
	m.focused = false
}

// SetClipboard replaces the function the paste key reads from.
func (m *Model) SetClipboard(read func() (string, error)) {
	m.read = read
}

func (m *Model) Keys() KeyMap {
	return m.keys
}

func (m *Model) Init() tea.Cmd {
	return nil
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if pasted, ok := msg.(PastedMsg); ok {
		if pasted.Err != nil {
			slog.Warn("Clipboard unavailable", "error", pasted.Err)
			return m, nil
		}
		if m.focused && pasted.Text != "" {
			m.surface.InsertText(pasted.Text)
		}
		return m, nil
	}
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok || !m.focused {
		return m, nil
	}
	s := m.surface
	switch {
	case key.Matches(keyMsg, m.keys.Left):
		s.Move(-1)
	case key.Matches(keyMsg, m.keys.Right):
		s.Move(1)
	case key.Matches(keyMsg, m.keys.Home):
		s.LineStart()
	case key.Matches(keyMsg, m.keys.End):
		s.LineEnd()
	case key.Matches(keyMsg, m.keys.Backspace):
		s.DeleteBackward()
	case key.Matches(keyMsg, m.keys.Delete):
		s.DeleteForward()
	case key.Matches(keyMsg, m.keys.Newline):
		s.InsertRune('\n')
	case key.Matches(keyMsg, m.keys.Undo):
		s.Undo()
	case key.Matches(keyMsg, m.keys.Paste):
		return m, m.paste
	case keyMsg.Type == tea.KeySpace:
		s.InsertRune(' ')
	case keyMsg.Type == tea.KeyRunes:
		s.InsertText(string(keyMsg.Runes))
	}
	return m, nil
}

func (m *Model) paste() tea.Msg {
	text, err := m.read()
	return PastedMsg{Text: text, Err: err}
}

func (m *Model) View() string {
	s := m.surface
	if s.Len() == 0 && !m.focused {
		return m.styles.Editor.Width(m.width).Render(m.styles.Detail.Render(m.placeholder))
	}

	var b strings.Builder
	runes := s.Runes()
	cursor := s.Cursor()
	for i, r := range runes {
		if i == cursor && m.focused {
			b.WriteString(m.cursorCell(i, r))
			continue
		}
		if n, ok := s.NodeAt(i); ok {
			b.WriteString(m.styles.Token(trigger.Kind(n.TokenKind)).Render(n.Display()))
			continue
		}
		if r == '\n' {
			b.WriteRune('\n')
			continue
		}
		if _, ok := s.MarkAt(i); ok {
			b.WriteString(m.styles.Mark.Render(string(r)))
			continue
		}
		b.WriteRune(r)
	}
	if cursor == len(runes) && m.focused {
		b.WriteString(m.styles.Cursor.Render(" "))
	}
	if s.Len() == 0 && m.placeholder != "" {
		b.WriteString(m.styles.Detail.Render(m.placeholder))
	}
	return m.styles.Editor.Width(m.width).Render(b.String())
}

func (m *Model) cursorCell(i int, r rune) string {
	if n, ok := m.surface.NodeAt(i); ok {
		return m.styles.Cursor.Inherit(m.styles.Token(trigger.Kind(n.TokenKind))).Render(n.Display())
	}
	if r == '\n' {
		return m.styles.Cursor.Render(" ") + "\n"
	}
	return m.styles.Cursor.Render(string(r))
}
