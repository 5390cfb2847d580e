// Package document implements the editable surface the autocomplete system
// works on: a flat sequence of rune and token cells with a cursor, a node
// registry and a mutation event stream.
package document

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/sst/mentions/internal/pubsub"
)

var (
	ErrOutOfRange  = errors.New("offset out of range")
	ErrUnknownNode = errors.New("unknown node")
)

const defaultHistorySize = 100

// cell is either a rune or, when node is set, a permanent token.
type cell struct {
	r    rune
	node NodeID
}

type state struct {
	cells  []cell
	cursor int
	tokens map[NodeID]Node
}

// Surface is not safe for concurrent use. It is owned by the UI goroutine.
type Surface struct {
	cells  []cell
	cursor int

	// nodes is the registry of live nodes of both kinds.
	nodes map[NodeID]Node

	history     []state
	historySize int

	events *pubsub.Broker[NodeEvent]
	newID  func() NodeID
}

type Option func(*Surface)

// WithHistorySize bounds the number of undo steps kept.
func WithHistorySize(n int) Option {
	return func(s *Surface) {
		s.historySize = n
	}
}

// WithIDGenerator replaces the uuid based node id generator.
func WithIDGenerator(fn func() NodeID) Option {
	return func(s *Surface) {
		s.newID = fn
	}
}

func New(opts ...Option) *Surface {
	s := &Surface{
		nodes:       make(map[NodeID]Node),
		historySize: defaultHistorySize,
		events:      pubsub.NewBroker[NodeEvent](),
		newID: func() NodeID {
			return NodeID(uuid.NewString())
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Events is the node mutation stream.
func (s *Surface) Events() *pubsub.Broker[NodeEvent] {
	return s.events
}

func (s *Surface) Len() int {
	return len(s.cells)
}

func (s *Surface) Cursor() int {
	return s.cursor
}

// SetCursor moves the cursor, clamping it to the document.
func (s *Surface) SetCursor(off int) {
	s.cursor = max(0, min(off, len(s.cells)))
}

func (s *Surface) Move(delta int) {
	s.SetCursor(s.cursor + delta)
}

// LineStart moves the cursor to the start of its paragraph.
func (s *Surface) LineStart() {
	_, start := s.Paragraph(s.cursor)
	s.cursor = start
}

// LineEnd moves the cursor to the end of its paragraph.
func (s *Surface) LineEnd() {
	text, start := s.Paragraph(s.cursor)
	s.cursor = start + len(text)
}

// Paragraph returns the runes of the paragraph containing off and the
// absolute offset of its first cell. Token cells read as ObjectReplacement.
func (s *Surface) Paragraph(off int) ([]rune, int) {
	off = max(0, min(off, len(s.cells)))
	start := off
	for start > 0 && s.cells[start-1].r != '\n' {
		start--
	}
	end := off
	for end < len(s.cells) && s.cells[end].r != '\n' {
		end++
	}
	text := make([]rune, 0, end-start)
	for _, c := range s.cells[start:end] {
		text = append(text, c.r)
	}
	return text, start
}

// Runes returns the whole document with token cells as ObjectReplacement.
func (s *Surface) Runes() []rune {
	out := make([]rune, len(s.cells))
	for i, c := range s.cells {
		out[i] = c.r
	}
	return out
}

// Rendered is the document as the user sees it, tokens shown as their
// trigger and label.
func (s *Surface) Rendered() string {
	var b strings.Builder
	for _, c := range s.cells {
		if c.node != "" {
			b.WriteString(s.nodes[c.node].Display())
			continue
		}
		b.WriteRune(c.r)
	}
	return b.String()
}

// Value serialises tokens as trigger[label](ref).
func (s *Surface) Value() string {
	var b strings.Builder
	for _, c := range s.cells {
		if c.node != "" {
			n := s.nodes[c.node]
			fmt.Fprintf(&b, "%c[%s](%s)", n.Trigger, n.Label, n.Ref)
			continue
		}
		b.WriteRune(c.r)
	}
	return b.String()
}

// Text is the raw typed text, with token cells as ObjectReplacement.
func (s *Surface) Text() string {
	return string(s.Runes())
}

// Node looks up a live node by id.
func (s *Surface) Node(id NodeID) (Node, bool) {
	n, ok := s.nodes[id]
	if !ok {
		return Node{}, false
	}
	if n.Kind == Permanent {
		if i := s.indexOf(id); i >= 0 {
			n.Start, n.End = i, i+1
		}
	}
	return n, true
}

// NodeAt returns the permanent node occupying cell off.
func (s *Surface) NodeAt(off int) (Node, bool) {
	if off < 0 || off >= len(s.cells) || s.cells[off].node == "" {
		return Node{}, false
	}
	return s.Node(s.cells[off].node)
}

// Tokens lists the permanent nodes in document order.
func (s *Surface) Tokens() []Node {
	var out []Node
	for i, c := range s.cells {
		if c.node == "" {
			continue
		}
		n := s.nodes[c.node]
		n.Start, n.End = i, i+1
		out = append(out, n)
	}
	return out
}

// Marks lists the temporary nodes.
func (s *Surface) Marks() []Node {
	var out []Node
	for _, n := range s.nodes {
		if n.Kind == Temporary {
			out = append(out, n)
		}
	}
	slices.SortFunc(out, func(a, b Node) int { return a.Start - b.Start })
	return out
}

// MarkAt returns the temporary node decorating cell off, if any.
func (s *Surface) MarkAt(off int) (Node, bool) {
	for _, n := range s.nodes {
		if n.Kind == Temporary && off >= n.Start && off < n.End {
			return n, true
		}
	}
	return Node{}, false
}

func (s *Surface) indexOf(id NodeID) int {
	for i, c := range s.cells {
		if c.node == id {
			return i
		}
	}
	return -1
}

// InsertRune inserts r at the cursor and advances it.
func (s *Surface) InsertRune(r rune) {
	s.InsertText(string(r))
}

// InsertText inserts plain text at the cursor and advances it.
func (s *Surface) InsertText(text string) {
	runes := []rune(text)
	if len(runes) == 0 {
		return
	}
	s.checkpoint()
	inserted := make([]cell, len(runes))
	for i, r := range runes {
		if r == ObjectReplacement {
			r = ' '
		}
		inserted[i] = cell{r: r}
	}
	at := s.cursor
	s.cells = slices.Insert(s.cells, at, inserted...)
	s.shiftMarks(at, len(inserted))
	s.cursor += len(inserted)
}

// DeleteBackward removes the cell before the cursor. A token cell is
// removed as a whole.
func (s *Surface) DeleteBackward() {
	if s.cursor == 0 {
		return
	}
	s.checkpoint()
	s.cursor--
	s.deleteRange(s.cursor, s.cursor+1)
}

// DeleteForward removes the cell after the cursor.
func (s *Surface) DeleteForward() {
	if s.cursor >= len(s.cells) {
		return
	}
	s.checkpoint()
	s.deleteRange(s.cursor, s.cursor+1)
}

// DeleteRange removes cells [start,end). Tokens inside are destroyed.
func (s *Surface) DeleteRange(start, end int) error {
	if err := s.checkRange(start, end); err != nil {
		return err
	}
	if start == end {
		return nil
	}
	s.checkpoint()
	destroyed := s.removeCells(start, end)
	s.cursor = collapse(s.cursor, start, end, end-start)
	s.publishDestroyed(destroyed)
	return nil
}

// Mark creates a temporary node over [start,end).
func (s *Surface) Mark(start, end int) (NodeID, error) {
	if err := s.checkRange(start, end); err != nil {
		return "", err
	}
	n := Node{ID: s.newID(), Kind: Temporary, Start: start, End: end}
	s.nodes[n.ID] = n
	s.events.Publish(EventNodeCreated, NodeEvent{Node: n})
	return n.ID, nil
}

// UpdateMark changes the range of a temporary node.
func (s *Surface) UpdateMark(id NodeID, start, end int) error {
	n, ok := s.nodes[id]
	if !ok || n.Kind != Temporary {
		return fmt.Errorf("update mark %s: %w", id, ErrUnknownNode)
	}
	if err := s.checkRange(start, end); err != nil {
		return err
	}
	n.Start, n.End = start, end
	s.nodes[id] = n
	return nil
}

// Unmark removes a temporary node. The runes underneath are untouched.
func (s *Surface) Unmark(id NodeID) error {
	n, ok := s.nodes[id]
	if !ok || n.Kind != Temporary {
		return fmt.Errorf("unmark %s: %w", id, ErrUnknownNode)
	}
	delete(s.nodes, id)
	s.events.Publish(EventNodeDestroyed, NodeEvent{Node: n})
	return nil
}

// ReplaceWithToken replaces the cells [start,end) with a single permanent
// node and places the cursor right after it.
func (s *Surface) ReplaceWithToken(start, end int, spec TokenSpec) (NodeID, error) {
	if err := s.checkRange(start, end); err != nil {
		return "", err
	}
	s.checkpoint()

	destroyed := s.removeCells(start, end)
	n := Node{
		ID:        s.newID(),
		Kind:      Permanent,
		Start:     start,
		End:       start + 1,
		Trigger:   spec.Trigger,
		TokenKind: spec.TokenKind,
		Ref:       spec.Ref,
		Label:     spec.Label,
	}
	s.nodes[n.ID] = n
	s.cells = slices.Insert(s.cells, start, cell{r: ObjectReplacement, node: n.ID})
	s.shiftMarks(start, 1)
	s.cursor = start + 1

	remaining := len(destroyed) + 1
	for _, d := range destroyed {
		remaining--
		s.events.Publish(EventNodeDestroyed, NodeEvent{Node: d, Remaining: remaining})
	}
	s.events.Publish(EventNodeCreated, NodeEvent{Node: n})
	return n.ID, nil
}

// RemoveToken deletes a permanent node from the document, as when a host
// feature removes the referenced entity.
func (s *Surface) RemoveToken(id NodeID) error {
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("remove token %s: %w", id, ErrUnknownNode)
	}
	return s.DeleteRange(i, i+1)
}

// Reset clears the document, destroying every node.
func (s *Surface) Reset() {
	s.checkpoint()
	destroyed := s.Marks()
	destroyed = append(destroyed, s.removeCells(0, len(s.cells))...)
	for _, n := range destroyed {
		delete(s.nodes, n.ID)
	}
	s.cursor = 0
	s.publishDestroyed(destroyed)
}

// Undo restores the state before the last mutation. Tokens that disappear or
// come back are announced on the event stream.
func (s *Surface) Undo() bool {
	if len(s.history) == 0 {
		return false
	}
	prev := s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]

	var destroyed, created []Node
	for _, t := range s.Tokens() {
		if _, ok := prev.tokens[t.ID]; !ok {
			destroyed = append(destroyed, t)
		}
	}
	for id, n := range prev.tokens {
		if _, ok := s.nodes[id]; !ok {
			created = append(created, n)
		}
	}

	s.cells = prev.cells
	s.cursor = prev.cursor
	for _, d := range destroyed {
		delete(s.nodes, d.ID)
	}
	for _, c := range created {
		s.nodes[c.ID] = c
	}
	for id, n := range s.nodes {
		if n.Kind == Temporary {
			n.Start = min(n.Start, len(s.cells))
			n.End = min(n.End, len(s.cells))
			s.nodes[id] = n
		}
	}

	remaining := len(destroyed) + len(created)
	for _, d := range destroyed {
		remaining--
		s.events.Publish(EventNodeDestroyed, NodeEvent{Node: d, Remaining: remaining})
	}
	for _, c := range created {
		remaining--
		if i := s.indexOf(c.ID); i >= 0 {
			c.Start, c.End = i, i+1
		}
		s.events.Publish(EventNodeCreated, NodeEvent{Node: c, Remaining: remaining})
	}
	return true
}

// CanUndo reports whether Undo would change anything.
func (s *Surface) CanUndo() bool {
	return len(s.history) > 0
}

func (s *Surface) checkRange(start, end int) error {
	if start < 0 || end < start || end > len(s.cells) {
		return fmt.Errorf("range [%d,%d) of %d: %w", start, end, len(s.cells), ErrOutOfRange)
	}
	return nil
}

func (s *Surface) checkpoint() {
	if s.historySize <= 0 {
		return
	}
	tokens := make(map[NodeID]Node)
	for id, n := range s.nodes {
		if n.Kind == Permanent {
			tokens[id] = n
		}
	}
	s.history = append(s.history, state{
		cells:  slices.Clone(s.cells),
		cursor: s.cursor,
		tokens: tokens,
	})
	if len(s.history) > s.historySize {
		s.history = slices.Delete(s.history, 0, len(s.history)-s.historySize)
	}
}

func (s *Surface) deleteRange(start, end int) {
	destroyed := s.removeCells(start, end)
	s.publishDestroyed(destroyed)
}

// removeCells cuts [start,end) out of the document and drops permanent nodes
// that lived there from the registry. The caller publishes the events once
// the document is consistent again.
func (s *Surface) removeCells(start, end int) []Node {
	var destroyed []Node
	for i := start; i < end; i++ {
		if id := s.cells[i].node; id != "" {
			n := s.nodes[id]
			n.Start, n.End = i, i+1
			destroyed = append(destroyed, n)
			delete(s.nodes, id)
		}
	}
	s.cells = slices.Delete(s.cells, start, end)
	s.shrinkMarks(start, end)
	return destroyed
}

func (s *Surface) publishDestroyed(destroyed []Node) {
	remaining := len(destroyed)
	for _, d := range destroyed {
		remaining--
		s.events.Publish(EventNodeDestroyed, NodeEvent{Node: d, Remaining: remaining})
	}
}

// shiftMarks keeps temporary ranges attached to their text after n cells
// were inserted at off. Text typed at the end of a mark extends it.
func (s *Surface) shiftMarks(off, n int) {
	for id, m := range s.nodes {
		if m.Kind != Temporary {
			continue
		}
		switch {
		case off <= m.Start:
			m.Start += n
			m.End += n
		case off <= m.End:
			m.End += n
		}
		s.nodes[id] = m
	}
}

func (s *Surface) shrinkMarks(start, end int) {
	n := end - start
	for id, m := range s.nodes {
		if m.Kind != Temporary {
			continue
		}
		m.Start = collapse(m.Start, start, end, n)
		m.End = collapse(m.End, start, end, n)
		s.nodes[id] = m
	}
}

func collapse(off, start, end, n int) int {
	switch {
	case off >= end:
		return off - n
	case off > start:
		return start
	default:
		return off
	}
}
