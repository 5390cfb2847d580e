// Package trigger recognises trigger characters typed in front of the cursor.
package trigger

import (
	"fmt"
	"unicode"

	"github.com/sst/mentions/internal/document"
)

// Kind names what a trigger searches for, e.g. topics or commands.
type Kind string

const (
	KindTopic   Kind = "topic"
	KindCommand Kind = "command"
	KindFile    Kind = "file"
)

// DefaultTriggers is used when no triggers are configured.
var DefaultTriggers = map[rune]Kind{
	'#': KindTopic,
	'/': KindCommand,
	'@': KindFile,
}

// Match is the span of trigger and query text currently being composed.
// Start is the offset of the trigger rune, End the cursor offset.
type Match struct {
	Kind    Kind
	Trigger rune
	Query   string
	Start   int
	End     int
}

// Contains reports whether off lies within the match, inclusive of both ends.
func (m Match) Contains(off int) bool {
	return off >= m.Start && off <= m.End
}

func (m Match) String() string {
	return fmt.Sprintf("%c%s[%d:%d]", m.Trigger, m.Query, m.Start, m.End)
}

// Detector finds the trigger match the cursor is composing, if any.
type Detector struct {
	triggers map[rune]Kind
	// Boundary requires the trigger to start the paragraph or follow
	// whitespace, so "a/b" or "mail@host" do not open a session.
	Boundary bool
}

// NewDetector copies triggers; an empty map means DefaultTriggers.
func NewDetector(triggers map[rune]Kind) *Detector {
	if len(triggers) == 0 {
		triggers = DefaultTriggers
	}
	t := make(map[rune]Kind, len(triggers))
	for r, k := range triggers {
		t[r] = k
	}
	return &Detector{triggers: t, Boundary: true}
}

// KindOf returns the kind bound to the trigger rune r.
func (d *Detector) KindOf(r rune) (Kind, bool) {
	k, ok := d.triggers[r]
	return k, ok
}

// TriggerFor returns the rune that opens kind k.
func (d *Detector) TriggerFor(k Kind) (rune, bool) {
	for r, kind := range d.triggers {
		if kind == k {
			return r, true
		}
	}
	return 0, false
}

// Detect looks at the text of the paragraph containing the cursor. The
// paragraph starts at absolute offset start and cursor is absolute too.
// It scans back from the cursor over non-whitespace; the nearest trigger rune
// that sits on a word boundary wins.
func (d *Detector) Detect(paragraph []rune, start, cursor int) (Match, bool) {
	pos := cursor - start
	if pos <= 0 || pos > len(paragraph) {
		return Match{}, false
	}

	for i := pos - 1; i >= 0; i-- {
		r := paragraph[i]
		if unicode.IsSpace(r) || r == document.ObjectReplacement {
			return Match{}, false
		}
		kind, ok := d.triggers[r]
		if !ok {
			continue
		}
		if d.Boundary && i > 0 && !unicode.IsSpace(paragraph[i-1]) && paragraph[i-1] != document.ObjectReplacement {
			continue
		}
		return Match{
			Kind:    kind,
			Trigger: r,
			Query:   string(paragraph[i+1 : pos]),
			Start:   start + i,
			End:     cursor,
		}, true
	}
	return Match{}, false
}

// DetectAt runs Detect on the paragraph under the surface's cursor.
func (d *Detector) DetectAt(s *document.Surface) (Match, bool) {
	paragraph, start := s.Paragraph(s.Cursor())
	return d.Detect(paragraph, start, s.Cursor())
}
