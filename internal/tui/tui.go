package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	zone "github.com/lrstanley/bubblezone"
	"github.com/sst/mentions/internal/app"
	"github.com/sst/mentions/internal/tui/components/core"
	"github.com/sst/mentions/internal/tui/components/editor"
	"github.com/sst/mentions/internal/tui/components/logs"
	"github.com/sst/mentions/internal/tui/components/overlay"
	"github.com/sst/mentions/internal/tui/util"
)

type keyMap struct {
	Quit  key.Binding
	Help  key.Binding
	Clear key.Binding
	Logs  key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "quit"),
	),
	Help: key.NewBinding(
		key.WithKeys("ctrl+_"),
		key.WithHelp("ctrl+?", "toggle help"),
	),
	Clear: key.NewBinding(
		key.WithKeys("ctrl+l"),
		key.WithHelp("ctrl+l", "clear document"),
	),
	Logs: key.NewBinding(
		key.WithKeys("ctrl+g"),
		key.WithHelp("ctrl+g", "toggle logs"),
	),
}

const maxOverlayWidth = 48

// fullHelp lists every binding for the help view.
type fullHelp struct {
	editor  editor.KeyMap
	overlay overlay.KeyMap
}

func (h fullHelp) ShortHelp() []key.Binding {
	return []key.Binding{keys.Quit, keys.Help, h.overlay.Confirm, h.overlay.Cancel}
}

func (h fullHelp) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{keys.Quit, keys.Help, keys.Clear, keys.Logs},
		h.overlay.ShortHelp(),
		{h.editor.Left, h.editor.Right, h.editor.Home, h.editor.End},
		{h.editor.Backspace, h.editor.Delete, h.editor.Newline, h.editor.Undo, h.editor.Paste},
	}
}

type appModel struct {
	width, height int
	session       *app.Session
	editor        *editor.Model
	overlay       *overlay.Model
	status        core.StatusCmp
	logs          logs.TableComponent

	showHelp bool
	showLogs bool
	help     help.Model
}

type Option func(*appModel)

func WithOverlayOptions(opts ...overlay.Option) Option {
	return func(a *appModel) {
		a.overlay.Close()
		a.overlay = overlay.New(a.session.Store, opts...)
	}
}

func (a *appModel) Init() tea.Cmd {
	return tea.Batch(a.editor.Init(), a.overlay.Init(), a.status.Init(), a.logs.Init())
}

func (a *appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		msg.Height -= 1 // Make space for the status bar
		a.width, a.height = msg.Width, msg.Height
		a.editor.SetWidth(msg.Width)
		a.overlay.SetWidth(min(maxOverlayWidth, msg.Width))
		a.help.Width = msg.Width
		a.logs.SetSize(msg.Width, max(3, msg.Height/3))
		_, cmd := a.status.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return a, tea.Quit
		case key.Matches(msg, keys.Help):
			a.showHelp = !a.showHelp
			return a, nil
		case key.Matches(msg, keys.Logs):
			a.showLogs = !a.showLogs
			return a, nil
		case key.Matches(msg, keys.Clear):
			a.session.Reset()
			return a, nil
		}
		if a.overlay.Captures(msg) {
			_, cmd := a.overlay.Update(msg)
			return a, cmd
		}
		_, cmd := a.editor.Update(msg)
		cmds = append(cmds, cmd, a.session.Refresh())
		return a, tea.Batch(cmds...)

	case tea.MouseMsg:
		_, cmd := a.overlay.Update(msg)
		return a, cmd

	case editor.PastedMsg:
		_, cmd := a.editor.Update(msg)
		return a, tea.Batch(cmd, a.session.Refresh())

	case overlay.SelectedMsg:
		if app.IsBuiltinCommand(msg.Choice.Item) {
			if err := a.session.Discard(msg.Choice); err != nil {
				return a, a.session.Refresh()
			}
			return a, tea.Batch(a.runCommand(msg.Choice.Item.ID), a.session.Refresh())
		}
		// Duplicates and failures are reported through the status service.
		_, _ = a.session.Commit(msg.Choice)
		return a, a.session.Refresh()

	case overlay.ClosedMsg:
		a.session.Dismiss()
		return a, nil
	}

	_, cmd := a.status.Update(msg)
	cmds = append(cmds, cmd)
	_, cmd = a.logs.Update(msg)
	cmds = append(cmds, cmd, a.session.Update(msg))
	return a, tea.Batch(cmds...)
}

func (a *appModel) runCommand(id string) tea.Cmd {
	switch id {
	case app.CommandClear:
		a.session.Reset()
	case app.CommandHelp:
		a.showHelp = !a.showHelp
	case app.CommandLogs:
		a.showLogs = !a.showLogs
	case app.CommandQuit:
		return tea.Quit
	}
	return nil
}

// overlayColumn is the screen column of the active trigger, so the list
// opens right under it.
func (a *appModel) overlayColumn() int {
	match, ok := a.session.Store.Match()
	if !ok {
		return 0
	}
	s := a.session.Surface
	_, start := s.Paragraph(match.Start)
	runes := s.Runes()
	col := 1 // editor padding
	for i := start; i < match.Start; i++ {
		if n, ok := s.NodeAt(i); ok {
			col += ansi.StringWidth(n.Display())
			continue
		}
		col += ansi.StringWidth(string(runes[i]))
	}
	if a.width > 0 {
		col = util.Clamp(col, 0, max(0, a.width-lipgloss.Width(a.overlay.View())))
	}
	return col
}

func (a *appModel) View() string {
	a.status.SetSession(a.session.Manager.State(), len(a.session.ConfirmedSelections()))

	components := []string{a.editor.View()}
	if a.overlay.Visible() {
		components = append(components,
			lipgloss.NewStyle().MarginLeft(a.overlayColumn()).Render(a.overlay.View()))
	}
	if a.showHelp {
		components = append(components, a.help.View(fullHelp{editor: a.editor.Keys(), overlay: a.overlay.Keys()}))
	}

	body := lipgloss.JoinVertical(lipgloss.Left, components...)
	var pane string
	if a.showLogs {
		pane = a.logs.View()
	}
	if a.height > 0 {
		pad := a.height - lipgloss.Height(body)
		if pane != "" {
			pad -= lipgloss.Height(pane)
		}
		if pad > 0 {
			body += strings.Repeat("\n", pad)
		}
	}
	if pane != "" {
		body = lipgloss.JoinVertical(lipgloss.Left, body, pane)
	}
	return zone.Scan(lipgloss.JoinVertical(lipgloss.Left, body, a.status.View()))
}

func New(session *app.Session, opts ...Option) tea.Model {
	h := help.New()
	h.ShowAll = true
	model := &appModel{
		session: session,
		editor:  editor.New(session.Surface),
		overlay: overlay.New(session.Store),
		status:  core.NewStatusCmp(),
		logs:    logs.NewLogsTable(),
		help:    h,
	}
	for _, opt := range opts {
		opt(model)
	}
	return model
}
