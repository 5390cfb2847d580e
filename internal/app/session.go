package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sst/mentions/internal/document"
	"github.com/sst/mentions/internal/pubsub"
	"github.com/sst/mentions/internal/recents"
	"github.com/sst/mentions/internal/search"
	"github.com/sst/mentions/internal/status"
	"github.com/sst/mentions/internal/suggest"
	"github.com/sst/mentions/internal/token"
	"github.com/sst/mentions/internal/trigger"
)

const recentsTimeout = 2 * time.Second

// Session is one editable document with its autocomplete machinery.
type Session struct {
	Surface  *document.Surface
	Detector *trigger.Detector
	Store    *suggest.Store
	Manager  *token.Manager

	status      status.Service
	recents     recents.Service
	recentLimit int
	static      []suggest.Preset
}

type SessionOption func(*sessionConfig)

type sessionConfig struct {
	triggers    map[rune]trigger.Kind
	store       []suggest.Option
	manager     []token.Option
	surface     []document.Option
	presets     []suggest.Preset
	recents     recents.Service
	recentLimit int
	status      status.Service
}

func WithTriggers(triggers map[rune]trigger.Kind) SessionOption {
	return func(c *sessionConfig) {
		c.triggers = triggers
	}
}

func WithStoreOptions(opts ...suggest.Option) SessionOption {
	return func(c *sessionConfig) {
		c.store = append(c.store, opts...)
	}
}

func WithManagerOptions(opts ...token.Option) SessionOption {
	return func(c *sessionConfig) {
		c.manager = append(c.manager, opts...)
	}
}

func WithSurfaceOptions(opts ...document.Option) SessionOption {
	return func(c *sessionConfig) {
		c.surface = append(c.surface, opts...)
	}
}

// WithPresets sets the static presets shown ahead of recents.
func WithPresets(presets ...suggest.Preset) SessionOption {
	return func(c *sessionConfig) {
		c.presets = presets
	}
}

// WithRecents records every confirmation and offers up to limit recent
// selections per kind as presets.
func WithRecents(r recents.Service, limit int) SessionOption {
	return func(c *sessionConfig) {
		c.recents = r
		c.recentLimit = limit
	}
}

func WithStatus(s status.Service) SessionOption {
	return func(c *sessionConfig) {
		c.status = s
	}
}

func NewSession(provider search.Provider, opts ...SessionOption) *Session {
	cfg := sessionConfig{status: status.GetService()}
	for _, opt := range opts {
		opt(&cfg)
	}

	surface := document.New(cfg.surface...)
	store := suggest.NewStore(provider, cfg.store...)
	s := &Session{
		Surface:     surface,
		Detector:    trigger.NewDetector(cfg.triggers),
		Store:       store,
		Manager:     token.NewManager(surface, store, cfg.manager...),
		status:      cfg.status,
		recents:     cfg.recents,
		recentLimit: cfg.recentLimit,
		static:      cfg.presets,
	}
	s.ReloadPresets(context.Background())
	return s
}

// Refresh runs trigger detection at the cursor and opens, updates or closes
// the suggestion session accordingly. It is called after every edit and
// cursor move.
func (s *Session) Refresh() tea.Cmd {
	match, ok := s.Detector.DetectAt(s.Surface)
	if !s.Manager.Sync(match, ok) {
		return nil
	}
	return s.Store.Open(match)
}

// Update feeds msg to the store; it handles its own debounce and result
// messages.
func (s *Session) Update(msg tea.Msg) tea.Cmd {
	return s.Store.Update(msg)
}

// Commit inserts a token for choice and remembers it as a recent selection.
func (s *Session) Commit(choice suggest.Choice) (document.NodeID, error) {
	id, err := s.Manager.Confirm(choice)
	if errors.Is(err, token.ErrDuplicate) {
		s.status.Warn(fmt.Sprintf("%s is already referenced", choice.Item.Label))
		return "", err
	}
	if err != nil {
		s.status.Error(err.Error())
		return "", err
	}
	s.record(choice)
	return id, nil
}

// ConfirmSelected commits the highlighted item of the open session.
func (s *Session) ConfirmSelected() (document.NodeID, error) {
	if !s.Store.Active() {
		return "", token.ErrNoSession
	}
	choice, ok := s.Store.Confirm(s.Store.Selection())
	if !ok {
		return "", token.ErrNoSession
	}
	return s.Commit(choice)
}

// Discard removes the typed trigger text of choice without inserting a
// token, as when the choice is a command to run.
func (s *Session) Discard(choice suggest.Choice) error {
	if err := s.Manager.Discard(choice); err != nil {
		s.status.Error(err.Error())
		return err
	}
	return nil
}

// Dismiss closes the open session and keeps the typed text.
func (s *Session) Dismiss() {
	s.Manager.Cancel()
}

func (s *Session) record(choice suggest.Choice) {
	if s.recents == nil || choice.Item.Kind == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recentsTimeout)
	defer cancel()
	err := s.recents.Record(ctx, recents.Entry{
		Kind:   choice.Item.Kind,
		Ref:    choice.Item.ID,
		Label:  choice.Item.Label,
		Detail: choice.Item.Detail,
	})
	if err != nil {
		slog.Warn("Failed to record recent selection", "ref", choice.Item.ID, "error", err)
		return
	}
	s.ReloadPresets(ctx)
}

// ReloadPresets rebuilds the store's presets: static presets first, then
// recents not already listed.
func (s *Session) ReloadPresets(ctx context.Context) {
	presets := append([]suggest.Preset(nil), s.static...)
	if s.recents != nil && s.recentLimit > 0 {
		recent, err := s.recents.Presets(ctx, s.recentLimit)
		if err != nil {
			slog.Warn("Failed to load recent selections", "error", err)
		}
		presets = mergePresets(presets, recent)
	}
	s.Store.SetPresets(presets)
}

func mergePresets(static, recent []suggest.Preset) []suggest.Preset {
	type key struct {
		kind trigger.Kind
		id   string
	}
	seen := make(map[key]bool, len(static))
	for _, p := range static {
		seen[key{p.Kind, p.ID}] = true
	}
	out := static
	for _, p := range recent {
		// A static preset without a kind covers every kind.
		if seen[key{p.Kind, p.ID}] || seen[key{"", p.ID}] {
			continue
		}
		seen[key{p.Kind, p.ID}] = true
		out = append(out, p)
	}
	return out
}

// ConfirmedSelections returns a copy of the entities referenced by the
// document's tokens.
func (s *Session) ConfirmedSelections() map[document.NodeID]suggest.Selection {
	return s.Store.Confirmed()
}

// SubscribeSelections delivers the confirmed selections every time they
// change, until ctx is done.
func (s *Session) SubscribeSelections(ctx context.Context) <-chan map[document.NodeID]suggest.Selection {
	events := s.Store.Subscribe(ctx)
	out := make(chan map[document.NodeID]suggest.Selection, 1)
	go func() {
		defer close(out)
		for e := range events {
			if e.Type != suggest.EventConfirmed {
				continue
			}
			select {
			case out <- maps.Clone(e.Payload.Confirmed):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// ListenSelections is the synchronous form of SubscribeSelections.
func (s *Session) ListenSelections(fn func(map[document.NodeID]suggest.Selection)) (unlisten func()) {
	return s.Store.Events().Listen(func(e pubsub.Event[suggest.Snapshot]) {
		if e.Type == suggest.EventConfirmed {
			fn(maps.Clone(e.Payload.Confirmed))
		}
	})
}

// Value is the document in its serialized form, tokens included.
func (s *Session) Value() string {
	return s.Surface.Value()
}

// Reset clears the document. Tokens are destroyed and the selections map
// empties through the usual node events.
func (s *Session) Reset() {
	s.Manager.Cancel()
	s.Surface.Reset()
	s.Manager.Sync(trigger.Match{}, false)
}

func (s *Session) Close() {
	s.Manager.Close()
	s.Store.Shutdown()
}
