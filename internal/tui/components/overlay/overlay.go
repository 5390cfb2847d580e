// Package overlay renders the suggestion list under the editor and turns
// keys and clicks into store operations.
package overlay

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	zone "github.com/lrstanley/bubblezone"
	"github.com/muesli/reflow/truncate"
	"github.com/sst/mentions/internal/pubsub"
	"github.com/sst/mentions/internal/suggest"
	"github.com/sst/mentions/internal/trigger"
	"github.com/sst/mentions/internal/tui/components/scroll"
	"github.com/sst/mentions/internal/tui/styles"
	"github.com/sst/mentions/internal/tui/theme"
	"github.com/sst/mentions/internal/tui/util"
)

const (
	DefaultMaxVisible = 7
	defaultWidth      = 40
	defaultEmpty      = "No results"
	loadingText       = "Searching…"
)

// SelectedMsg is sent when an item was confirmed with Enter or a click.
type SelectedMsg struct {
	Choice suggest.Choice
}

// ClosedMsg is sent when the overlay was dismissed.
type ClosedMsg struct{}

type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Confirm key.Binding
	Cancel  key.Binding
}

var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "ctrl+p"),
		key.WithHelp("↑", "previous suggestion"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "ctrl+n"),
		key.WithHelp("↓", "next suggestion"),
	),
	Confirm: key.NewBinding(
		key.WithKeys("enter", "tab"),
		key.WithHelp("enter", "insert suggestion"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "dismiss"),
	),
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Confirm, k.Cancel}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

type Model struct {
	store  *suggest.Store
	keys   KeyMap
	styles styles.Styles

	viewport viewport.Model
	rows     scroll.Rows
	sync     scroll.Synchronizer

	width      int
	maxVisible int
	empty      map[trigger.Kind]string
	prefix     string
	rendered   int

	unlisten func()
}

type Option func(*Model)

func WithMaxVisible(n int) Option {
	return func(m *Model) {
		if n > 0 {
			m.maxVisible = n
		}
	}
}

// WithEmptyMessage sets the text shown when a search for kind finds nothing.
func WithEmptyMessage(kind trigger.Kind, msg string) Option {
	return func(m *Model) {
		m.empty[kind] = msg
	}
}

func WithKeyMap(keys KeyMap) Option {
	return func(m *Model) {
		m.keys = keys
	}
}

func WithStyles(s styles.Styles) Option {
	return func(m *Model) {
		m.styles = s
	}
}

// zones makes sure the global zone manager exists before a prefix is taken
// from it. Headless runs never go through the program setup that creates it.
var zones sync.Once

func New(store *suggest.Store, opts ...Option) *Model {
	zones.Do(zone.NewGlobal)
	m := &Model{
		store:      store,
		keys:       DefaultKeyMap,
		styles:     styles.New(theme.Current()),
		viewport:   viewport.New(defaultWidth, 1),
		width:      defaultWidth,
		maxVisible: DefaultMaxVisible,
		empty:      make(map[trigger.Kind]string),
		prefix:     zone.NewPrefix(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.viewport.KeyMap = viewport.KeyMap{}
	m.viewport.MouseWheelEnabled = true
	m.unlisten = store.Events().Listen(m.onStoreEvent)
	m.refresh()
	return m
}

// Close stops following the store.
func (m *Model) Close() {
	if m.unlisten != nil {
		m.unlisten()
		m.unlisten = nil
	}
}

func (m *Model) Keys() KeyMap {
	return m.keys
}

// Visible reports whether the overlay is drawn. It is hidden whenever no
// trigger match is active, loading or not.
func (m *Model) Visible() bool {
	return m.store.Active()
}

func (m *Model) SetWidth(width int) {
	if width <= 0 || width == m.width {
		return
	}
	m.width = width
	m.refresh()
}

// Captures reports whether msg is meant for the overlay rather than the
// editor underneath.
func (m *Model) Captures(msg tea.KeyMsg) bool {
	if !m.Visible() {
		return false
	}
	return key.Matches(msg, m.keys.Up, m.keys.Down, m.keys.Confirm, m.keys.Cancel)
}

func (m *Model) Init() tea.Cmd {
	return nil
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if !m.Visible() {
		return m, nil
	}
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Up):
			m.store.MoveSelection(-1)
		case key.Matches(msg, m.keys.Down):
			m.store.MoveSelection(1)
		case key.Matches(msg, m.keys.Confirm):
			return m, m.confirm(m.store.Selection())
		case key.Matches(msg, m.keys.Cancel):
			return m, util.CmdHandler(ClosedMsg{})
		}
	case tea.MouseMsg:
		return m, m.mouse(msg)
	}
	return m, nil
}

func (m *Model) mouse(msg tea.MouseMsg) tea.Cmd {
	switch msg.Button {
	case tea.MouseButtonWheelUp, tea.MouseButtonWheelDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd
	}

	index, ok := m.hit(msg)
	if !ok {
		return nil
	}
	switch {
	case msg.Action == tea.MouseActionMotion:
		m.store.SetSelection(index)
	case msg.Action == tea.MouseActionRelease && msg.Button == tea.MouseButtonLeft:
		m.store.SetSelection(index)
		return m.confirm(index)
	}
	return nil
}

func (m *Model) hit(msg tea.MouseMsg) (int, bool) {
	for i := range m.store.Len() {
		if zone.Get(m.zoneID(i)).InBounds(msg) {
			return i, true
		}
	}
	return 0, false
}

// confirm hands the choice to whoever owns the document. Without a valid
// item Enter is swallowed so it never reaches the editor as a newline.
func (m *Model) confirm(index int) tea.Cmd {
	if index < 0 || index >= m.store.Len() {
		return nil
	}
	choice, ok := m.store.Confirm(index)
	if !ok {
		return nil
	}
	return util.CmdHandler(SelectedMsg{Choice: choice})
}

func (m *Model) zoneID(index int) string {
	return fmt.Sprintf("%sitem-%d", m.prefix, index)
}

func (m *Model) onStoreEvent(e pubsub.Event[suggest.Snapshot]) {
	switch e.Type {
	case suggest.EventOpened, suggest.EventQueried, suggest.EventResults, suggest.EventPresets, suggest.EventClosed:
		m.sync.Invalidate()
		m.refresh()
	case suggest.EventSelection:
		m.refresh()
	}
}

// refresh re-renders the list into the viewport and keeps the selected row
// in view.
func (m *Model) refresh() {
	lines := m.render()
	m.viewport.Width = m.innerWidth()
	m.viewport.Height = max(1, min(m.maxVisible, len(lines)))
	m.viewport.SetContent(strings.Join(lines, "\n"))
	m.rendered = len(lines)
	if !m.Visible() {
		m.viewport.SetYOffset(0)
		return
	}
	m.sync.Sync(scroll.NewViewport(&m.viewport), &m.rows, m.store.Selection(), m.store.PresetCount())
}

func (m *Model) innerWidth() int {
	return max(4, m.width-2)
}

func (m *Model) render() []string {
	m.rows.Reset()
	if !m.Visible() {
		return nil
	}

	width := m.innerWidth()
	presets := m.store.PresetCount()
	items := m.store.Items()
	selection := m.store.Selection()

	var lines []string
	for i, item := range items {
		if i == presets && presets > 0 {
			lines = append(lines, m.styles.Divider.Render(strings.Repeat("─", width)))
		}
		section := scroll.Dynamic
		if item.Pinned {
			section = scroll.Presets
		}
		m.rows.Add(section, len(lines), 1)
		lines = append(lines, zone.Mark(m.zoneID(i), m.renderItem(item, i == selection, width)))
	}

	switch {
	case m.store.Loading():
		if presets > 0 && len(items) == presets {
			lines = append(lines, m.styles.Divider.Render(strings.Repeat("─", width)))
		}
		lines = append(lines, m.styles.Loading.Width(width).Render(styles.LoadingIcon+" "+loadingText))
	case len(m.store.Candidates()) == 0:
		if presets > 0 {
			lines = append(lines, m.styles.Divider.Render(strings.Repeat("─", width)))
		}
		lines = append(lines, m.styles.Empty.Width(width).Render(m.emptyMessage()))
	}
	return lines
}

func (m *Model) emptyMessage() string {
	match, _ := m.store.Match()
	if msg, ok := m.empty[match.Kind]; ok {
		return msg
	}
	return defaultEmpty
}

func (m *Model) renderItem(item suggest.Item, selected bool, width int) string {
	style := m.styles.Item
	switch {
	case selected:
		style = m.styles.Selected
	case item.Pinned:
		style = m.styles.Preset
	}

	label := item.Label
	if item.Pinned {
		label = styles.PinIcon + " " + label
	}
	// Padding takes two columns.
	avail := width - 2
	label = truncate.StringWithTail(label, uint(max(1, avail)), "…")

	if item.Detail != "" {
		room := avail - ansi.StringWidth(label) - 2
		if room > 3 {
			detail := truncate.StringWithTail(item.Detail, uint(room), "…")
			gap := avail - ansi.StringWidth(label) - ansi.StringWidth(detail)
			label = label + strings.Repeat(" ", gap) + m.styles.Detail.Render(detail)
		}
	}
	return style.Width(width).Render(label)
}

func (m *Model) View() string {
	if !m.Visible() {
		return ""
	}
	return m.styles.Overlay.Width(m.innerWidth()).Render(m.viewport.View())
}

// Height is the number of rows View occupies.
func (m *Model) Height() int {
	if !m.Visible() {
		return 0
	}
	return m.viewport.Height
}
