package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

var namedKeys = map[string]tea.KeyType{
	"enter":     tea.KeyEnter,
	"tab":       tea.KeyTab,
	"esc":       tea.KeyEsc,
	"space":     tea.KeySpace,
	"backspace": tea.KeyBackspace,
	"delete":    tea.KeyDelete,
	"up":        tea.KeyUp,
	"down":      tea.KeyDown,
	"left":      tea.KeyLeft,
	"right":     tea.KeyRight,
	"home":      tea.KeyHome,
	"end":       tea.KeyEnd,
	"ctrl+a":    tea.KeyCtrlA,
	"ctrl+c":    tea.KeyCtrlC,
	"ctrl+e":    tea.KeyCtrlE,
	"ctrl+g":    tea.KeyCtrlG,
	"ctrl+j":    tea.KeyCtrlJ,
	"ctrl+l":    tea.KeyCtrlL,
	"ctrl+n":    tea.KeyCtrlN,
	"ctrl+p":    tea.KeyCtrlP,
	"ctrl+z":    tea.KeyCtrlZ,
}

// ParseScript turns a keystroke script into key messages. Text is typed
// rune by rune; special keys are written in angle brackets, e.g. <down> or
// <enter>. "<<" types a literal '<'. Line breaks in the script are ignored,
// use <enter> to type one.
func ParseScript(script string) ([]tea.KeyMsg, error) {
	var msgs []tea.KeyMsg
	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case '\n', '\r':
			continue
		case ' ':
			msgs = append(msgs, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
			continue
		case '<':
			if i+1 < len(runes) && runes[i+1] == '<' {
				msgs = append(msgs, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'<'}})
				i++
				continue
			}
			end := -1
			for j := i + 1; j < len(runes); j++ {
				if runes[j] == '>' {
					end = j
					break
				}
			}
			if end < 0 {
				return nil, fmt.Errorf("unterminated key at offset %d", i)
			}
			name := string(runes[i+1 : end])
			t, ok := namedKeys[strings.ToLower(name)]
			if !ok {
				return nil, fmt.Errorf("unknown key <%s>", name)
			}
			msg := tea.KeyMsg{Type: t}
			if t == tea.KeySpace {
				msg.Runes = []rune{' '}
			}
			msgs = append(msgs, msg)
			i = end
			continue
		}
		msgs = append(msgs, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return msgs, nil
}

// Drive feeds msgs to m one by one and runs every command they produce
// synchronously, so the model settles before the next message. It stops
// early when the model quits.
func Drive(m tea.Model, msgs ...tea.Msg) (tea.Model, bool) {
	for _, msg := range msgs {
		var quit bool
		m, quit = deliver(m, msg)
		if quit {
			return m, true
		}
	}
	return m, false
}

func deliver(m tea.Model, msg tea.Msg) (tea.Model, bool) {
	queue := []tea.Msg{msg}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if _, ok := next.(tea.QuitMsg); ok {
			return m, true
		}
		var cmd tea.Cmd
		m, cmd = m.Update(next)
		queue = append(queue, run(cmd)...)
	}
	return m, false
}

// run executes cmd, flattening batches. Commands that only schedule periodic
// housekeeping are the caller's concern: Drive never calls Init.
func run(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	switch msg := cmd().(type) {
	case nil:
		return nil
	case tea.BatchMsg:
		var out []tea.Msg
		for _, c := range msg {
			out = append(out, run(c)...)
		}
		return out
	default:
		return []tea.Msg{msg}
	}
}
