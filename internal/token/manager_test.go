package token

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/sst/mentions/internal/document"
	"github.com/sst/mentions/internal/search"
	"github.com/sst/mentions/internal/suggest"
	"github.com/sst/mentions/internal/trigger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	surface  *document.Surface
	store    *suggest.Store
	manager  *Manager
	detector *trigger.Detector
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	var seq int
	surface := document.New(document.WithIDGenerator(func() document.NodeID {
		seq++
		return document.NodeID(fmt.Sprintf("n%d", seq))
	}))
	catalog := search.NewCatalog(map[trigger.Kind][]search.Entry{
		trigger.KindTopic: {
			{ID: "1", Label: "technology"},
			{ID: "2", Label: "travel"},
		},
	})
	store := suggest.NewStore(catalog, suggest.WithDebounce(0))
	m := NewManager(surface, store, opts...)
	t.Cleanup(m.Close)
	return &fixture{
		surface:  surface,
		store:    store,
		manager:  m,
		detector: trigger.NewDetector(nil),
	}
}

// refresh runs detection at the cursor and settles the resulting fetch.
func (f *fixture) refresh(t *testing.T) {
	t.Helper()
	match, ok := f.detector.DetectAt(f.surface)
	if !f.manager.Sync(match, ok) {
		return
	}
	cmd := f.store.Open(match)
	if cmd == nil {
		return
	}
	if fetch := f.store.Update(cmd()); fetch != nil {
		f.store.Update(fetch())
	}
}

func (f *fixture) typeText(t *testing.T, text string) {
	t.Helper()
	for _, r := range text {
		f.surface.InsertRune(r)
		f.refresh(t)
	}
}

func (f *fixture) confirm(t *testing.T, index int) document.NodeID {
	t.Helper()
	choice, ok := f.store.Confirm(index)
	require.True(t, ok)
	id, err := f.manager.Confirm(choice)
	require.NoError(t, err)
	return id
}

func TestConfirmCreatesToken(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.typeText(t, "#tech")
	assert.Equal(t, Displaying, f.manager.State())
	mark, ok := f.manager.Mark()
	require.True(t, ok)
	assert.Equal(t, 0, mark.Start)
	assert.Equal(t, 5, mark.End)
	require.NotEmpty(t, f.store.Items())
	assert.Equal(t, "technology", f.store.Items()[0].Label)

	id := f.confirm(t, 0)
	assert.Equal(t, Confirmed, f.manager.State())
	assert.Equal(t, "#[technology](1)", f.surface.Value())
	assert.Equal(t, "#technology", f.surface.Rendered())
	assert.Equal(t, 1, f.surface.Cursor())
	assert.Empty(t, f.surface.Marks(), "no temporary node survives confirmation")
	assert.False(t, f.store.Active())

	assert.Equal(t, map[document.NodeID]suggest.Selection{
		id: {Ref: "1", Label: "technology", Kind: trigger.KindTopic},
	}, f.store.Confirmed())
}

func TestBackspaceRemovesSelection(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.typeText(t, "see #tech")
	f.confirm(t, 0)
	require.Equal(t, 1, f.store.ConfirmedLen())

	f.surface.DeleteBackward()
	f.refresh(t)
	assert.Equal(t, 0, f.store.ConfirmedLen())
	assert.Equal(t, "see ", f.surface.Value())
}

func TestCancelLeavesText(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.typeText(t, "#te")
	before := f.store.Confirmed()

	f.manager.Cancel()
	assert.Equal(t, Cancelled, f.manager.State())
	assert.Equal(t, "#te", f.surface.Value())
	assert.Empty(t, f.surface.Marks())
	assert.Empty(t, f.surface.Tokens())
	assert.Equal(t, before, f.store.Confirmed())
	assert.False(t, f.store.Active())

	// The dismissed trigger stays closed while the cursor sits in it.
	f.refresh(t)
	assert.False(t, f.store.Active())

	// Leaving the trigger and starting a new one opens a fresh session.
	f.typeText(t, " #t")
	assert.True(t, f.store.Active())
	assert.Equal(t, Displaying, f.manager.State())
}

func TestCursorLeavingTriggerCancels(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.typeText(t, "#te")
	require.True(t, f.store.Active())

	f.typeText(t, " ")
	assert.False(t, f.store.Active())
	assert.Empty(t, f.surface.Marks())
	assert.Equal(t, Cancelled, f.manager.State())

	f.refresh(t)
	assert.Equal(t, Idle, f.manager.State())
}

func TestMarkFollowsQuery(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.typeText(t, "a #t")
	first, ok := f.manager.Mark()
	require.True(t, ok)

	f.typeText(t, "ra")
	mark, ok := f.manager.Mark()
	require.True(t, ok)
	assert.Equal(t, first.ID, mark.ID)
	assert.Equal(t, 2, mark.Start)
	assert.Equal(t, 6, mark.End)
	assert.Equal(t, "tra", f.store.Query())
	assert.Len(t, f.surface.Marks(), 1)
}

func TestDuplicatePolicy(t *testing.T) {
	t.Parallel()

	t.Run("allow", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.typeText(t, "#tech")
		f.confirm(t, 0)
		f.typeText(t, " #tech")
		f.confirm(t, 0)
		assert.Equal(t, 2, f.store.ConfirmedLen())
		assert.Equal(t, "#[technology](1) #[technology](1)", f.surface.Value())
	})

	t.Run("reject", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, WithDuplicatePolicy(RejectDuplicates))
		f.typeText(t, "#tech")
		f.confirm(t, 0)
		f.typeText(t, " #tech")

		choice, ok := f.store.Confirm(0)
		require.True(t, ok)
		_, err := f.manager.Confirm(choice)
		assert.ErrorIs(t, err, ErrDuplicate)
		assert.Equal(t, 1, f.store.ConfirmedLen())
		assert.Empty(t, f.surface.Marks())
		assert.Equal(t, "#[technology](1) #tech", f.surface.Value())
	})
}

func TestUndoRestoresSelection(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.typeText(t, "#tech")
	id := f.confirm(t, 0)

	f.surface.DeleteBackward()
	require.Equal(t, 0, f.store.ConfirmedLen())

	require.True(t, f.surface.Undo())
	sel, ok := f.store.ConfirmedFor(id)
	require.True(t, ok)
	assert.Equal(t, "1", sel.Ref)

	// Undoing the confirmation itself drops the token again.
	require.True(t, f.surface.Undo())
	assert.Equal(t, 0, f.store.ConfirmedLen())
	assert.Equal(t, "#tech", f.surface.Value())
}

func TestResetClearsEverything(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.typeText(t, "#tech")
	f.confirm(t, 0)
	f.typeText(t, " #tr")
	require.True(t, f.store.Active())

	f.surface.Reset()
	f.refresh(t)
	assert.Equal(t, 0, f.store.ConfirmedLen())
	_, ok := f.manager.Mark()
	assert.False(t, ok)
	assert.False(t, f.store.Active())
}

func TestReconcile(t *testing.T) {
	t.Parallel()

	t.Run("in sync", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.typeText(t, "#tech")
		f.confirm(t, 0)
		assert.NoError(t, f.manager.Reconcile())
	})

	t.Run("self heal", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.typeText(t, "#tech")
		id := f.confirm(t, 0)
		f.store.PutConfirmed("ghost", suggest.Selection{Ref: "9"})
		f.store.DeleteConfirmed(id)

		err := f.manager.Reconcile()
		assert.ErrorIs(t, err, ErrDesync)
		_, ok := f.store.ConfirmedFor(id)
		assert.True(t, ok)
		_, ok = f.store.ConfirmedFor("ghost")
		assert.False(t, ok)
	})

	t.Run("strict", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, WithStrict(true))
		f.store.PutConfirmed("ghost", suggest.Selection{Ref: "9"})
		assert.Panics(t, func() { _ = f.manager.Reconcile() })
	})
}

func TestCloseDetaches(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.manager.Close()

	id, err := f.surface.ReplaceWithToken(0, 0, document.TokenSpec{Trigger: '#', Ref: "1", Label: "x"})
	require.NoError(t, err)
	_, ok := f.store.ConfirmedFor(id)
	assert.False(t, ok)
}

func TestStateString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "displaying", Displaying.String())
	assert.Equal(t, "state(9)", State(9).String())
	assert.True(t, RejectDuplicates.Valid())
	assert.False(t, DuplicatePolicy("sometimes").Valid())
}

func TestDiscardRemovesTriggerText(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.typeText(t, "see #tra")
	choice, ok := f.store.Confirm(0)
	require.True(t, ok)
	require.NoError(t, f.manager.Discard(choice))

	assert.Equal(t, "see ", f.surface.Value())
	assert.Equal(t, 4, f.surface.Cursor())
	assert.Equal(t, Idle, f.manager.State())
	assert.Empty(t, f.surface.Marks())
	assert.Empty(t, f.store.Confirmed())
	assert.False(t, f.store.Active())

	f.typeText(t, "#")
	assert.True(t, f.store.Active(), "a new trigger at the same offset opens")
}

// TestSelectionsFollowTokens drives random edits and checks after every step
// that the confirmed map holds exactly the tokens in the document.
func TestSelectionsFollowTokens(t *testing.T) {
	t.Parallel()
	alphabet := []rune("#te ra")
	for seed := uint64(0); seed < 200; seed++ {
		f := newFixture(t)
		rng := rand.New(rand.NewPCG(seed, seed+1))
		for step := 0; step < 80; step++ {
			op := rng.IntN(8)
			switch op {
			case 0, 1, 2:
				f.typeText(t, string(alphabet[rng.IntN(len(alphabet))]))
			case 3:
				f.surface.DeleteBackward()
				f.refresh(t)
			case 4:
				f.surface.Move(rng.IntN(5) - 2)
				f.refresh(t)
			case 5:
				if n := f.store.Len(); n > 0 {
					choice, ok := f.store.Confirm(rng.IntN(n))
					require.True(t, ok)
					_, err := f.manager.Confirm(choice)
					require.NoError(t, err)
				}
			case 6:
				f.manager.Cancel()
			case 7:
				f.surface.Undo()
				f.refresh(t)
			}

			tokens := f.surface.Tokens()
			confirmed := f.store.Confirmed()
			require.Len(t, confirmed, len(tokens), "seed %d step %d op %d", seed, step, op)
			for _, tok := range tokens {
				sel, ok := confirmed[tok.ID]
				require.True(t, ok, "seed %d step %d: token %s has no selection", seed, step, tok.ID)
				assert.Equal(t, tok.Ref, sel.Ref)
			}
		}
	}
}
