package recents

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sst/mentions/internal/suggest"
	"github.com/sst/mentions/internal/trigger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ticker returns a clock that advances one second per call.
func ticker() func() time.Time {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		at = at.Add(time.Second)
		return at
	}
}

func newService(t *testing.T) Service {
	t.Helper()
	s, err := Open(context.Background(), t.TempDir(), WithClock(ticker()))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndList(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, Entry{Kind: trigger.KindTopic, Ref: "1", Label: "technology"}))
	require.NoError(t, s.Record(ctx, Entry{Kind: trigger.KindTopic, Ref: "2", Label: "travel"}))
	require.NoError(t, s.Record(ctx, Entry{Kind: trigger.KindFile, Ref: "go.mod", Label: "go.mod"}))
	require.NoError(t, s.Record(ctx, Entry{Kind: trigger.KindTopic, Ref: "1", Label: "technology", Detail: "tech"}))

	topics, err := s.List(ctx, trigger.KindTopic, 10)
	require.NoError(t, err)
	require.Len(t, topics, 2)
	assert.Equal(t, "1", topics[0].Ref)
	assert.Equal(t, 2, topics[0].Uses)
	assert.Equal(t, "tech", topics[0].Detail)
	assert.Equal(t, "2", topics[1].Ref)
	assert.True(t, topics[0].UsedAt.After(topics[1].UsedAt))

	all, err := s.List(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := s.List(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "1", limited[0].Ref)

	none, err := s.List(ctx, trigger.KindTopic, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecordRequiresRef(t *testing.T) {
	s := newService(t)
	assert.Error(t, s.Record(context.Background(), Entry{Kind: trigger.KindTopic}))
	assert.Error(t, s.Record(context.Background(), Entry{Ref: "1"}))
}

func TestPresetsPerKind(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	for _, ref := range []string{"a", "b", "c"} {
		require.NoError(t, s.Record(ctx, Entry{Kind: trigger.KindTopic, Ref: ref, Label: "topic " + ref}))
	}
	require.NoError(t, s.Record(ctx, Entry{Kind: trigger.KindCommand, Ref: "help", Label: "help"}))

	presets, err := s.Presets(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []suggest.Preset{
		{ID: "help", Label: "help", Kind: trigger.KindCommand},
		{ID: "c", Label: "topic c", Kind: trigger.KindTopic},
		{ID: "b", Label: "topic b", Kind: trigger.KindTopic},
	}, presets)
}

func TestClear(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	require.NoError(t, s.Record(ctx, Entry{Kind: trigger.KindTopic, Ref: "1", Label: "technology"}))
	require.NoError(t, s.Clear(ctx))

	all, err := s.List(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestReopenKeepsEntries(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(ctx, dir)
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, Entry{Kind: trigger.KindTopic, Ref: "1", Label: "technology"}))
	require.NoError(t, s.Close())
	assert.FileExists(t, filepath.Join(dir, fileName))

	s, err = Open(ctx, dir)
	require.NoError(t, err)
	defer s.Close()
	all, err := s.List(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "technology", all[0].Label)
}

func TestConnectRequiresDir(t *testing.T) {
	_, err := Connect(context.Background(), "")
	assert.Error(t, err)
}
