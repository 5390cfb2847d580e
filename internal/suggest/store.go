// Package suggest holds the state of an autocomplete session: the active
// trigger, its query, the candidates and the selection, plus the map of
// selections confirmed into the document.
package suggest

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sst/mentions/internal/document"
	"github.com/sst/mentions/internal/pubsub"
	"github.com/sst/mentions/internal/search"
	"github.com/sst/mentions/internal/trigger"
)

const DefaultDebounce = 200 * time.Millisecond

const (
	EventOpened    pubsub.EventType = "opened"
	EventQueried   pubsub.EventType = "queried"
	EventResults   pubsub.EventType = "results"
	EventSelection pubsub.EventType = "selection"
	EventClosed    pubsub.EventType = "closed"
	EventConfirmed pubsub.EventType = "confirmed_changed"
	EventPresets   pubsub.EventType = "presets"
)

// Preset is a pinned item shown ahead of search results. A preset without a
// kind is offered for every trigger.
type Preset struct {
	ID     string       `json:"id" mapstructure:"id"`
	Label  string       `json:"label" mapstructure:"label"`
	Kind   trigger.Kind `json:"kind,omitempty" mapstructure:"kind"`
	Detail string       `json:"detail,omitempty" mapstructure:"detail"`
}

// Item is an entry of the merged list.
type Item struct {
	search.Candidate
	Pinned bool
}

// Choice is what Confirm hands to the node lifecycle.
type Choice struct {
	Match trigger.Match
	Item  Item
	Index int
}

// Selection is the entity a permanent token refers to.
type Selection struct {
	Ref   string       `json:"ref"`
	Label string       `json:"label"`
	Kind  trigger.Kind `json:"kind"`
}

// Snapshot is the state published to observers.
type Snapshot struct {
	Active    bool
	Match     trigger.Match
	Query     string
	Items     []Item
	Selection int
	Loading   bool
	Confirmed map[document.NodeID]Selection
}

type debounceMsg struct {
	generation uint64
}

type resultsMsg struct {
	generation uint64
	query      string
	candidates []search.Candidate
	err        error
}

// Store is driven from a single goroutine: Bubble Tea's update loop. The
// commands it returns run elsewhere but only ever report back through
// messages handled by Update.
type Store struct {
	provider search.Provider
	debounce time.Duration
	timeout  time.Duration
	wrap     bool
	baseCtx  context.Context

	presets []Preset

	match      *trigger.Match
	query      string
	candidates []search.Candidate
	selection  int
	loading    bool
	lastErr    error

	// generation tags every scheduled fetch. Only the response carrying
	// the latest generation is ever applied.
	generation uint64
	cancel     context.CancelFunc

	confirmed map[document.NodeID]Selection

	events *pubsub.Broker[Snapshot]
}

// Option configures a Store.
type Option func(*Store)

// WithDebounce delays each search until typing has paused for d. Zero
// searches immediately.
func WithDebounce(d time.Duration) Option {
	return func(s *Store) {
		s.debounce = d
	}
}

// WithWrap makes selection movement wrap around the list ends.
func WithWrap(wrap bool) Option {
	return func(s *Store) {
		s.wrap = wrap
	}
}

// WithTimeout bounds a single provider call.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// WithPresets sets the pinned items listed ahead of search results.
func WithPresets(presets ...Preset) Option {
	return func(s *Store) {
		s.presets = append([]Preset(nil), presets...)
	}
}

// WithContext sets the parent of every search context. Cancelling it aborts
// in-flight searches.
func WithContext(ctx context.Context) Option {
	return func(s *Store) {
		s.baseCtx = ctx
	}
}

// NewStore creates an idle store searching provider.
func NewStore(provider search.Provider, opts ...Option) *Store {
	s := &Store{
		provider:  provider,
		debounce:  DefaultDebounce,
		baseCtx:   context.Background(),
		confirmed: make(map[document.NodeID]Selection),
		events:    pubsub.NewBroker[Snapshot](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Events publishes a Snapshot after every state change.
func (s *Store) Events() *pubsub.Broker[Snapshot] {
	return s.events
}

func (s *Store) Subscribe(ctx context.Context) <-chan pubsub.Event[Snapshot] {
	return s.events.Subscribe(ctx)
}

// Active reports whether a trigger match is open.
func (s *Store) Active() bool {
	return s.match != nil
}

func (s *Store) Match() (trigger.Match, bool) {
	if s.match == nil {
		return trigger.Match{}, false
	}
	return *s.match, true
}

func (s *Store) Query() string {
	return s.query
}

// Loading reports whether a fetch for the current query is pending.
func (s *Store) Loading() bool {
	return s.loading
}

// Err is the last search failure for the current session, if any.
func (s *Store) Err() error {
	return s.lastErr
}

func (s *Store) Generation() uint64 {
	return s.generation
}

func (s *Store) Candidates() []search.Candidate {
	return s.candidates
}

// Presets returns the presets offered for the active trigger kind.
func (s *Store) Presets() []Preset {
	if s.match == nil {
		return nil
	}
	var out []Preset
	for _, p := range s.presets {
		if p.Kind == "" || p.Kind == s.match.Kind {
			out = append(out, p)
		}
	}
	return out
}

func (s *Store) PresetCount() int {
	return len(s.Presets())
}

// SetPresets replaces the host supplied presets.
func (s *Store) SetPresets(presets []Preset) {
	s.presets = append([]Preset(nil), presets...)
	s.clampSelection()
	s.publish(EventPresets)
}

// Items is the merged list: presets first, then candidates in provider order.
func (s *Store) Items() []Item {
	if s.match == nil {
		return nil
	}
	presets := s.Presets()
	items := make([]Item, 0, len(presets)+len(s.candidates))
	for _, p := range presets {
		kind := p.Kind
		if kind == "" {
			kind = s.match.Kind
		}
		items = append(items, Item{
			Candidate: search.Candidate{
				ID:        p.ID,
				Label:     p.Label,
				Kind:      kind,
				SourceRef: "preset",
				Detail:    p.Detail,
			},
			Pinned: true,
		})
	}
	for _, c := range s.candidates {
		items = append(items, Item{Candidate: c})
	}
	return items
}

func (s *Store) Len() int {
	if s.match == nil {
		return 0
	}
	return s.PresetCount() + len(s.candidates)
}

func (s *Store) Selection() int {
	return s.selection
}

// Selected returns the item under the selection index.
func (s *Store) Selected() (Item, bool) {
	items := s.Items()
	if s.selection < 0 || s.selection >= len(items) {
		return Item{}, false
	}
	return items[s.selection], true
}

// Open starts or continues a session for m. Re-opening the same trigger
// position only updates the query.
func (s *Store) Open(m trigger.Match) tea.Cmd {
	if s.match != nil && s.match.Start == m.Start && s.match.Kind == m.Kind {
		s.match = &m
		if m.Query == s.query {
			return nil
		}
		return s.SetQuery(m.Query)
	}

	s.reset()
	s.match = &m
	slog.Debug("Suggestion session opened", "kind", m.Kind, "start", m.Start)
	s.publish(EventOpened)
	return s.SetQuery(m.Query)
}

// SetQuery records the query, resets the selection and schedules a
// debounced fetch. Every call supersedes the previous one.
func (s *Store) SetQuery(text string) tea.Cmd {
	if s.match == nil {
		return nil
	}
	s.query = text
	s.match.Query = text
	s.candidates = nil
	s.selection = 0
	s.loading = true
	s.generation++
	gen := s.generation
	s.publish(EventQueried)

	if s.debounce <= 0 {
		return func() tea.Msg {
			return debounceMsg{generation: gen}
		}
	}
	return tea.Tick(s.debounce, func(time.Time) tea.Msg {
		return debounceMsg{generation: gen}
	})
}

// Update consumes the store's own messages and ignores everything else.
func (s *Store) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case debounceMsg:
		if msg.generation != s.generation || s.match == nil {
			return nil
		}
		return s.dispatch()
	case resultsMsg:
		if msg.generation != s.generation || s.match == nil {
			slog.Debug("Dropping stale search response", "generation", msg.generation, "latest", s.generation, "query", msg.query)
			return nil
		}
		s.loading = false
		if msg.err != nil {
			slog.Warn("Search failed", "kind", s.match.Kind, "query", msg.query, "error", msg.err)
			s.candidates = nil
			s.lastErr = msg.err
		} else {
			s.candidates = msg.candidates
			s.lastErr = nil
		}
		s.clampSelection()
		s.publish(EventResults)
	}
	return nil
}

func (s *Store) dispatch() tea.Cmd {
	if s.cancel != nil {
		s.cancel()
	}
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(s.baseCtx, s.timeout)
	} else {
		ctx, cancel = context.WithCancel(s.baseCtx)
	}
	s.cancel = cancel

	gen := s.generation
	kind := s.match.Kind
	query := s.query
	provider := s.provider

	return func() (msg tea.Msg) {
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				msg = resultsMsg{generation: gen, query: query, err: fmt.Errorf("search provider panic: %v", r)}
			}
		}()
		if provider == nil {
			return resultsMsg{generation: gen, query: query}
		}
		items, err := provider.Search(ctx, kind, query)
		return resultsMsg{generation: gen, query: query, candidates: items, err: err}
	}
}

// MoveSelection moves the selection by delta, clamped to the merged list or
// wrapped around it when configured.
func (s *Store) MoveSelection(delta int) {
	n := s.Len()
	if n == 0 {
		s.selection = 0
		return
	}
	next := s.selection + delta
	if s.wrap {
		next = ((next % n) + n) % n
	} else {
		next = max(0, min(next, n-1))
	}
	if next == s.selection {
		return
	}
	s.selection = next
	s.publish(EventSelection)
}

// SetSelection moves the selection to index, clamped.
func (s *Store) SetSelection(index int) {
	s.MoveSelection(index - s.selection)
}

// Confirm closes the session and returns the chosen item. It does nothing
// when there is no session or index is out of range.
func (s *Store) Confirm(index int) (Choice, bool) {
	if s.match == nil {
		return Choice{}, false
	}
	items := s.Items()
	if index < 0 || index >= len(items) {
		return Choice{}, false
	}
	choice := Choice{Match: *s.match, Item: items[index], Index: index}
	s.reset()
	s.publish(EventClosed)
	return choice, true
}

// Cancel closes the session without a choice.
func (s *Store) Cancel() {
	if s.match == nil {
		return
	}
	s.reset()
	s.publish(EventClosed)
}

// reset clears the session. Bumping the generation makes any response still
// in flight stale.
func (s *Store) reset() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.match = nil
	s.query = ""
	s.candidates = nil
	s.selection = 0
	s.loading = false
	s.lastErr = nil
	s.generation++
}

func (s *Store) clampSelection() {
	n := s.Len()
	if n == 0 {
		s.selection = 0
		return
	}
	s.selection = max(0, min(s.selection, n-1))
}

// Confirmed returns a copy of the node id to selection map.
func (s *Store) Confirmed() map[document.NodeID]Selection {
	return maps.Clone(s.confirmed)
}

func (s *Store) ConfirmedLen() int {
	return len(s.confirmed)
}

func (s *Store) ConfirmedFor(id document.NodeID) (Selection, bool) {
	sel, ok := s.confirmed[id]
	return sel, ok
}

func (s *Store) PutConfirmed(id document.NodeID, sel Selection) {
	if existing, ok := s.confirmed[id]; ok && existing == sel {
		return
	}
	s.confirmed[id] = sel
	s.publish(EventConfirmed)
}

func (s *Store) DeleteConfirmed(id document.NodeID) bool {
	if _, ok := s.confirmed[id]; !ok {
		return false
	}
	delete(s.confirmed, id)
	s.publish(EventConfirmed)
	return true
}

// ReplaceConfirmed swaps the whole map, used when re-syncing from the
// document.
func (s *Store) ReplaceConfirmed(m map[document.NodeID]Selection) {
	s.confirmed = maps.Clone(m)
	if s.confirmed == nil {
		s.confirmed = make(map[document.NodeID]Selection)
	}
	s.publish(EventConfirmed)
}

// Snapshot captures the current state.
func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		Active:    s.match != nil,
		Query:     s.query,
		Items:     s.Items(),
		Selection: s.selection,
		Loading:   s.loading,
		Confirmed: s.Confirmed(),
	}
	if s.match != nil {
		snap.Match = *s.match
	}
	return snap
}

func (s *Store) publish(t pubsub.EventType) {
	s.events.Publish(t, s.Snapshot())
}

// Shutdown cancels in-flight searches and closes the event stream.
func (s *Store) Shutdown() {
	if s.cancel != nil {
		s.cancel()
	}
	s.events.Shutdown()
}
