// Package theme holds the color palette of the terminal UI.
package theme

import (
	catppuccin "github.com/catppuccin/go"
	"github.com/charmbracelet/lipgloss"
	"github.com/sst/mentions/internal/trigger"
)

// Theme colors adapt to light and dark terminals.
type Theme struct {
	Name string

	Background lipgloss.AdaptiveColor
	Element    lipgloss.AdaptiveColor
	Border     lipgloss.AdaptiveColor

	Primary lipgloss.AdaptiveColor
	Accent  lipgloss.AdaptiveColor

	Text  lipgloss.AdaptiveColor
	Muted lipgloss.AdaptiveColor

	Error   lipgloss.AdaptiveColor
	Warning lipgloss.AdaptiveColor
	Success lipgloss.AdaptiveColor
	Info    lipgloss.AdaptiveColor

	tokens map[trigger.Kind]lipgloss.AdaptiveColor
}

func adaptive(light, dark catppuccin.Color) lipgloss.AdaptiveColor {
	return lipgloss.AdaptiveColor{Light: light.Hex, Dark: dark.Hex}
}

// Catppuccin pairs the Latte flavour for light terminals with Mocha for dark
// ones.
func Catppuccin() Theme {
	l, d := catppuccin.Latte, catppuccin.Mocha
	return Theme{
		Name:       "catppuccin",
		Background: adaptive(l.Base(), d.Base()),
		Element:    adaptive(l.Surface0(), d.Surface0()),
		Border:     adaptive(l.Overlay0(), d.Overlay0()),
		Primary:    adaptive(l.Mauve(), d.Mauve()),
		Accent:     adaptive(l.Lavender(), d.Lavender()),
		Text:       adaptive(l.Text(), d.Text()),
		Muted:      adaptive(l.Subtext0(), d.Subtext0()),
		Error:      adaptive(l.Red(), d.Red()),
		Warning:    adaptive(l.Yellow(), d.Yellow()),
		Success:    adaptive(l.Green(), d.Green()),
		Info:       adaptive(l.Blue(), d.Blue()),
		tokens: map[trigger.Kind]lipgloss.AdaptiveColor{
			trigger.KindTopic:   adaptive(l.Peach(), d.Peach()),
			trigger.KindCommand: adaptive(l.Teal(), d.Teal()),
			trigger.KindFile:    adaptive(l.Sky(), d.Sky()),
		},
	}
}

// Token is the color tokens of kind are drawn with.
func (t Theme) Token(kind trigger.Kind) lipgloss.AdaptiveColor {
	if c, ok := t.tokens[kind]; ok {
		return c
	}
	return t.Accent
}

var current = Catppuccin()

func Current() Theme {
	return current
}

func SetCurrent(t Theme) {
	current = t
}
