package editor

import (
	"errors"
	"os"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/sst/mentions/internal/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	lipgloss.SetColorProfile(termenv.Ascii)
	os.Exit(m.Run())
}

func typeText(m *Model, text string) {
	for _, r := range text {
		if r == ' ' {
			m.Update(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
			continue
		}
		m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
}

func TestTyping(t *testing.T) {
	t.Parallel()
	s := document.New()
	m := New(s)

	typeText(m, "hi there")
	assert.Equal(t, "hi there", s.Text())
	assert.Equal(t, 8, s.Cursor())

	m.Update(tea.KeyMsg{Type: tea.KeyBackspace})
	assert.Equal(t, "hi ther", s.Text())

	m.Update(tea.KeyMsg{Type: tea.KeyHome})
	assert.Equal(t, 0, s.Cursor())
	m.Update(tea.KeyMsg{Type: tea.KeyDelete})
	assert.Equal(t, "i ther", s.Text())

	m.Update(tea.KeyMsg{Type: tea.KeyEnd})
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	typeText(m, "x")
	assert.Equal(t, "i ther\nx", s.Text())

	m.Update(tea.KeyMsg{Type: tea.KeyLeft})
	assert.Equal(t, 7, s.Cursor())
	m.Update(tea.KeyMsg{Type: tea.KeyRight})
	assert.Equal(t, 8, s.Cursor())
}

func TestPaste(t *testing.T) {
	t.Parallel()
	s := document.New()
	m := New(s)
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("pasted text"), Paste: true})
	assert.Equal(t, "pasted text", s.Text())
}

func TestClipboardPaste(t *testing.T) {
	t.Parallel()
	s := document.New()
	m := New(s)
	m.SetClipboard(func() (string, error) { return "from clipboard", nil })
	typeText(m, "x ")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlV})
	require.NotNil(t, cmd)
	msg := cmd()
	assert.Equal(t, PastedMsg{Text: "from clipboard"}, msg)
	assert.Equal(t, "x ", s.Text())

	m.Update(msg)
	assert.Equal(t, "x from clipboard", s.Text())
	assert.Equal(t, 16, s.Cursor())
}

func TestClipboardError(t *testing.T) {
	t.Parallel()
	s := document.New()
	m := New(s)
	m.SetClipboard(func() (string, error) { return "", errors.New("no clipboard utility") })

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlV})
	require.NotNil(t, cmd)
	_, next := m.Update(cmd())
	assert.Nil(t, next)
	assert.Empty(t, s.Text())
}

func TestUndo(t *testing.T) {
	t.Parallel()
	s := document.New()
	m := New(s)
	typeText(m, "ab")
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlZ})
	assert.Equal(t, "a", s.Text())
}

func TestBlurredIgnoresKeys(t *testing.T) {
	t.Parallel()
	s := document.New()
	m := New(s)
	m.Blur()
	typeText(m, "ab")
	assert.Equal(t, 0, s.Len())
	assert.Contains(t, m.View(), "Type # for topics")
}

func TestViewRendersTokens(t *testing.T) {
	t.Parallel()
	s := document.New()
	m := New(s)
	m.SetWidth(40)
	typeText(m, "see #tech now")

	_, err := s.ReplaceWithToken(4, 9, document.TokenSpec{Trigger: '#', TokenKind: "topic", Ref: "1", Label: "technology"})
	require.NoError(t, err)

	out := m.View()
	assert.Contains(t, out, "see #technology now")
	assert.False(t, strings.Contains(out, string(document.ObjectReplacement)))
}

func TestViewPlaceholder(t *testing.T) {
	t.Parallel()
	m := New(document.New())
	m.SetPlaceholder("write something")
	assert.Contains(t, m.View(), "write something")

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}})
	assert.NotContains(t, m.View(), "write something")
}
