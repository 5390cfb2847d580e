// Package token manages the nodes an autocomplete session leaves in the
// document: the temporary mark over the text being composed and the
// permanent tokens that replace it on confirmation.
package token

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/sst/mentions/internal/document"
	"github.com/sst/mentions/internal/pubsub"
	"github.com/sst/mentions/internal/suggest"
	"github.com/sst/mentions/internal/trigger"
)

var (
	ErrDuplicate = errors.New("entity already referenced in the document")
	ErrNoSession = errors.New("no active session")
	ErrDesync    = errors.New("confirmed selections out of sync with document")
)

type State int

const (
	Idle State = iota
	Detecting
	Displaying
	Confirmed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Detecting:
		return "detecting"
	case Displaying:
		return "displaying"
	case Confirmed:
		return "confirmed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DuplicatePolicy decides what happens when an entity is confirmed while a
// token for it already exists.
type DuplicatePolicy string

const (
	AllowDuplicates  DuplicatePolicy = "allow"
	RejectDuplicates DuplicatePolicy = "reject"
)

func (p DuplicatePolicy) Valid() bool {
	return p == AllowDuplicates || p == RejectDuplicates
}

type Manager struct {
	surface *document.Surface
	store   *suggest.Store

	state State
	mark  document.NodeID
	match trigger.Match

	// dismissed is the trigger offset of a cancelled session. The same
	// trigger does not reopen until the cursor leaves it.
	dismissed int

	duplicates DuplicatePolicy
	strict     bool

	unlisten []func()
}

type Option func(*Manager)

func WithDuplicatePolicy(p DuplicatePolicy) Option {
	return func(m *Manager) {
		m.duplicates = p
	}
}

// WithStrict makes a detected desync panic instead of being repaired.
func WithStrict(strict bool) Option {
	return func(m *Manager) {
		m.strict = strict
	}
}

func NewManager(surface *document.Surface, store *suggest.Store, opts ...Option) *Manager {
	m := &Manager{
		surface:    surface,
		store:      store,
		dismissed:  -1,
		duplicates: AllowDuplicates,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.unlisten = append(m.unlisten,
		surface.Events().Listen(m.onNodeEvent),
		store.Events().Listen(m.onStoreEvent),
	)
	return m
}

// Close detaches the manager from the document and the store.
func (m *Manager) Close() {
	for _, fn := range m.unlisten {
		fn()
	}
	m.unlisten = nil
}

func (m *Manager) State() State {
	return m.state
}

// Mark returns the temporary node of the running session.
func (m *Manager) Mark() (document.Node, bool) {
	if m.mark == "" {
		return document.Node{}, false
	}
	return m.surface.Node(m.mark)
}

// Sync brings the temporary node in line with the latest detection result
// and reports whether a session should be shown for it.
func (m *Manager) Sync(match trigger.Match, ok bool) bool {
	if !ok {
		m.dismissed = -1
		if m.mark != "" || m.store.Active() {
			m.unmark()
			m.store.Cancel()
			m.state = Cancelled
			return false
		}
		m.state = Idle
		return false
	}

	if match.Start == m.dismissed {
		return false
	}
	m.dismissed = -1

	if m.mark != "" && m.match.Start != match.Start {
		m.unmark()
	}
	m.match = match
	if m.mark != "" {
		if err := m.surface.UpdateMark(m.mark, match.Start, match.End); err == nil {
			return true
		}
		m.mark = ""
	}

	id, err := m.surface.Mark(match.Start, match.End)
	if err != nil {
		slog.Error("Failed to mark trigger", "match", match.String(), "error", err)
		return false
	}
	m.mark = id
	m.state = Detecting
	return true
}

// Display records that the overlay is showing the session.
func (m *Manager) Display() {
	if m.state == Detecting {
		m.state = Displaying
	}
}

// Confirm replaces the composed text with a permanent token for choice.
// The confirmed selection map is updated from the resulting node event.
func (m *Manager) Confirm(choice suggest.Choice) (document.NodeID, error) {
	if m.duplicates == RejectDuplicates && m.referenced(choice) {
		slog.Info("Rejected duplicate selection", "ref", choice.Item.ID, "kind", choice.Item.Kind)
		m.Cancel()
		return "", ErrDuplicate
	}

	start, end := choice.Match.Start, choice.Match.End
	if n, ok := m.Mark(); ok {
		start, end = n.Start, n.End
	}
	m.unmark()

	id, err := m.surface.ReplaceWithToken(start, end, document.TokenSpec{
		Trigger:   choice.Match.Trigger,
		TokenKind: string(choice.Item.Kind),
		Ref:       choice.Item.ID,
		Label:     choice.Item.Label,
	})
	if err != nil {
		m.state = Cancelled
		return "", fmt.Errorf("confirm %s: %w", choice.Item.ID, err)
	}
	m.state = Confirmed
	m.dismissed = -1
	slog.Debug("Selection confirmed", "node", id, "ref", choice.Item.ID, "kind", choice.Item.Kind)
	return id, nil
}

// Discard closes the session and removes the trigger and query text
// without inserting a token.
func (m *Manager) Discard(choice suggest.Choice) error {
	start, end := choice.Match.Start, choice.Match.End
	if n, ok := m.Mark(); ok {
		start, end = n.Start, n.End
	}
	m.unmark()
	m.store.Cancel()
	m.dismissed = -1
	m.state = Idle
	if err := m.surface.DeleteRange(start, end); err != nil {
		return fmt.Errorf("discard %s: %w", choice.Item.ID, err)
	}
	return nil
}

// Cancel closes the session without a choice. The typed text stays.
func (m *Manager) Cancel() {
	if m.mark == "" && !m.store.Active() {
		return
	}
	m.dismissed = m.match.Start
	m.unmark()
	m.store.Cancel()
	m.state = Cancelled
}

func (m *Manager) referenced(choice suggest.Choice) bool {
	for _, sel := range m.store.Confirmed() {
		if sel.Ref == choice.Item.ID && sel.Kind == choice.Item.Kind {
			return true
		}
	}
	return false
}

func (m *Manager) unmark() {
	if m.mark == "" {
		return
	}
	id := m.mark
	m.mark = ""
	if err := m.surface.Unmark(id); err != nil && !errors.Is(err, document.ErrUnknownNode) {
		slog.Warn("Failed to remove trigger mark", "node", id, "error", err)
	}
}

func (m *Manager) onNodeEvent(e pubsub.Event[document.NodeEvent]) {
	n := e.Payload.Node
	switch n.Kind {
	case document.Temporary:
		if e.Type == document.EventNodeDestroyed && n.ID == m.mark {
			m.mark = ""
		}
	case document.Permanent:
		switch e.Type {
		case document.EventNodeCreated:
			m.store.PutConfirmed(n.ID, selectionOf(n))
		case document.EventNodeDestroyed:
			m.store.DeleteConfirmed(n.ID)
		}
		if e.Payload.Remaining == 0 {
			_ = m.Reconcile()
		}
	}
}

func (m *Manager) onStoreEvent(e pubsub.Event[suggest.Snapshot]) {
	switch e.Type {
	case suggest.EventOpened, suggest.EventQueried:
		m.Display()
	}
}

// Reconcile compares the confirmed selection map with the tokens present in
// the document. A mismatch is repaired and reported, or panics in strict
// mode.
func (m *Manager) Reconcile() error {
	want := make(map[document.NodeID]suggest.Selection)
	for _, n := range m.surface.Tokens() {
		want[n.ID] = selectionOf(n)
	}
	got := m.store.Confirmed()
	if maps.Equal(want, got) {
		return nil
	}

	err := fmt.Errorf("%w: %d tokens, %d selections", ErrDesync, len(want), len(got))
	if m.strict {
		panic(err)
	}
	slog.Warn("Repairing confirmed selections", "tokens", len(want), "selections", len(got))
	m.store.ReplaceConfirmed(want)
	return err
}

func selectionOf(n document.Node) suggest.Selection {
	return suggest.Selection{
		Ref:   n.Ref,
		Label: n.Label,
		Kind:  trigger.Kind(n.TokenKind),
	}
}
