package core

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/sst/mentions/internal/logging"
	"github.com/sst/mentions/internal/pubsub"
	"github.com/sst/mentions/internal/status"
	"github.com/sst/mentions/internal/token"
	"github.com/sst/mentions/internal/tui/styles"
	"github.com/sst/mentions/internal/tui/theme"
)

// StatusCmp is the single line at the bottom of the screen: the latest
// status message on the left, the session state on the right.
type StatusCmp interface {
	tea.Model
	SetHelpWidgetMsg(string)
	SetSession(state token.State, confirmed int)
}

type statusCmp struct {
	statusMessages []statusMessage
	width          int
	messageTTL     time.Duration
	helpText       string
	state          token.State
	confirmed      int
	styles         styles.Styles
}

type statusMessage struct {
	Level     status.Level
	Message   string
	Timestamp time.Time
	ExpiresAt time.Time
}

// clearMessageCmd is a command that clears status messages after a timeout
func (m *statusCmp) clearMessageCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return statusCleanupMsg{time: t}
	})
}

// statusCleanupMsg is a message that triggers cleanup of expired status messages
type statusCleanupMsg struct {
	time time.Time
}

func (m *statusCmp) Init() tea.Cmd {
	return m.clearMessageCmd()
}

func (m *statusCmp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case pubsub.Event[status.StatusMessage]:
		if msg.Type == pubsub.EventTypeCreated && msg.Payload.Level != status.LevelDebug {
			m.push(msg.Payload.Level, msg.Payload.Message, msg.Payload.Timestamp, msg.Payload.TTL)
		}
	case pubsub.Event[logging.Log]:
		// Only problems are worth interrupting the user for.
		switch msg.Payload.Level {
		case "warn", "error":
			m.push(status.Level(msg.Payload.Level), msg.Payload.Message, msg.Payload.Timestamp, 0)
		}
	case statusCleanupMsg:
		var activeMessages []statusMessage
		for _, sm := range m.statusMessages {
			if sm.ExpiresAt.After(msg.time) {
				activeMessages = append(activeMessages, sm)
			}
		}
		m.statusMessages = activeMessages
		return m, m.clearMessageCmd()
	}
	return m, nil
}

func (m *statusCmp) push(level status.Level, message string, at time.Time, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.messageTTL
	}
	if at.IsZero() {
		at = time.Now()
	}
	m.statusMessages = append(m.statusMessages, statusMessage{
		Level:     level,
		Message:   message,
		Timestamp: at,
		ExpiresAt: at.Add(ttl),
	})
}

func (m *statusCmp) SetHelpWidgetMsg(text string) {
	m.helpText = text
}

func (m *statusCmp) SetSession(state token.State, confirmed int) {
	m.state = state
	m.confirmed = confirmed
}

func (m *statusCmp) View() string {
	right := m.styles.Status.Render(fmt.Sprintf("%s  %d selected  %s", m.state, m.confirmed, m.helpWidget()))
	left := ""
	if n := len(m.statusMessages); n > 0 {
		left = m.render(m.statusMessages[n-1])
	}

	width := m.width
	if width <= 0 {
		return strings.TrimSpace(left + "  " + right)
	}
	room := width - lipgloss.Width(right) - 1
	if room <= 0 {
		return ansi.Truncate(right, width, "")
	}
	left = ansi.Truncate(left, room, "…")
	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	return left + strings.Repeat(" ", max(1, gap)) + right
}

func (m *statusCmp) render(sm statusMessage) string {
	switch sm.Level {
	case status.LevelError:
		return m.styles.Error.Render(styles.ErrorIcon + " " + sm.Message)
	case status.LevelWarn:
		return m.styles.Warn.Render(styles.WarningIcon + " " + sm.Message)
	default:
		return m.styles.Info.Render(styles.InfoIcon + " " + sm.Message)
	}
}

func (m *statusCmp) helpWidget() string {
	if m.helpText == "" {
		return "ctrl+? help"
	}
	return m.helpText
}

func NewStatusCmp() StatusCmp {
	return &statusCmp{
		messageTTL: status.DefaultTTL,
		styles:     styles.New(theme.Current()),
	}
}
