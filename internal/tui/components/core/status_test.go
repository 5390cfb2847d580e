package core

import (
	"os"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/sst/mentions/internal/logging"
	"github.com/sst/mentions/internal/pubsub"
	"github.com/sst/mentions/internal/status"
	"github.com/sst/mentions/internal/token"
	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	lipgloss.SetColorProfile(termenv.Ascii)
	os.Exit(m.Run())
}

func statusEvent(level status.Level, msg string, at time.Time) pubsub.Event[status.StatusMessage] {
	return pubsub.Event[status.StatusMessage]{
		Type:    pubsub.EventTypeCreated,
		Payload: status.StatusMessage{Level: level, Message: msg, Timestamp: at},
	}
}

func TestStatusShowsLatest(t *testing.T) {
	t.Parallel()
	cmp := NewStatusCmp()
	cmp.SetSession(token.Displaying, 2)
	now := time.Now()

	cmp.Update(statusEvent(status.LevelInfo, "catalog reloaded", now))
	cmp.Update(statusEvent(status.LevelWarn, "tea is already referenced", now))
	cmp.Update(statusEvent(status.LevelDebug, "ignored", now))

	view := cmp.View()
	assert.Contains(t, view, "tea is already referenced")
	assert.NotContains(t, view, "catalog reloaded")
	assert.Contains(t, view, "2 selected")
	assert.Contains(t, view, "ctrl+? help")
}

func TestStatusLogProblems(t *testing.T) {
	t.Parallel()
	cmp := NewStatusCmp()
	cmp.Update(pubsub.Event[logging.Log]{
		Type:    logging.EventLogCreated,
		Payload: logging.Log{Level: "info", Message: "quiet", Timestamp: time.Now()},
	})
	assert.NotContains(t, cmp.View(), "quiet")

	cmp.Update(pubsub.Event[logging.Log]{
		Type:    logging.EventLogCreated,
		Payload: logging.Log{Level: "error", Message: "search failed", Timestamp: time.Now()},
	})
	assert.Contains(t, cmp.View(), "search failed")
}

func TestStatusExpires(t *testing.T) {
	t.Parallel()
	cmp := NewStatusCmp()
	at := time.Now()
	cmp.Update(statusEvent(status.LevelInfo, "catalog reloaded", at))

	cmp.Update(statusCleanupMsg{time: at.Add(time.Second)})
	assert.Contains(t, cmp.View(), "catalog reloaded")

	_, cmd := cmp.Update(statusCleanupMsg{time: at.Add(status.DefaultTTL)})
	assert.NotNil(t, cmd)
	assert.NotContains(t, cmp.View(), "catalog reloaded")
}

func TestStatusFitsWidth(t *testing.T) {
	t.Parallel()
	cmp := NewStatusCmp()
	cmp.Update(tea.WindowSizeMsg{Width: 40, Height: 10})
	cmp.SetHelpWidgetMsg("?")
	cmp.Update(statusEvent(status.LevelError, "a very long message that cannot possibly fit in forty columns", time.Now()))

	view := cmp.View()
	assert.Equal(t, 40, lipgloss.Width(view))
	assert.Contains(t, view, "…")
}
