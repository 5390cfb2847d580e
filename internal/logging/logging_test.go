package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceKeepsNewest(t *testing.T) {
	t.Parallel()
	s := NewService(3)
	defer s.Shutdown()
	ctx := context.Background()

	for _, msg := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.Create(ctx, time.Now(), "info", msg, nil))
	}

	logs, err := s.ListAll(ctx, 0)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, "d", logs[0].Message)
	assert.Equal(t, "b", logs[2].Message)
	assert.NotEmpty(t, logs[0].ID)
	assert.NotNil(t, logs[0].Attributes)

	logs, err = s.ListAll(ctx, 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "d", logs[0].Message)
}

func TestServiceDefaults(t *testing.T) {
	t.Parallel()
	s := NewService(0)
	defer s.Shutdown()
	require.NoError(t, s.Create(context.Background(), time.Now(), "", "hello", nil))

	logs, err := s.ListAll(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "info", logs[0].Level)
}

func TestServiceClosed(t *testing.T) {
	t.Parallel()
	s := NewService(10)
	s.Shutdown()
	s.Shutdown()
	assert.Error(t, s.Create(context.Background(), time.Now(), "info", "late", nil))
}

func TestServicePublishes(t *testing.T) {
	t.Parallel()
	s := NewService(10)
	defer s.Shutdown()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := s.Subscribe(ctx)

	require.NoError(t, s.Create(ctx, time.Now(), "warn", "slow provider", map[string]string{"kind": "topic"}))

	select {
	case ev := <-ch:
		assert.Equal(t, EventLogCreated, ev.Type)
		assert.Equal(t, "slow provider", ev.Payload.Message)
		assert.Equal(t, "topic", ev.Payload.Attributes["kind"])
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
}

func TestSlogWriter(t *testing.T) {
	t.Parallel()
	s := NewService(10)
	defer s.Shutdown()

	logger := slog.New(slog.NewTextHandler(NewServiceWriter(s), &slog.HandlerOptions{Level: slog.LevelDebug}))
	logger.Warn("search failed", "kind", "topic", "query", "tech stack")
	logger.Debug("dropped stale results", "generation", 3)

	logs, err := s.ListAll(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	assert.Equal(t, "debug", logs[0].Level)
	assert.Equal(t, "3", logs[0].Attributes["generation"])

	assert.Equal(t, "warn", logs[1].Level)
	assert.Equal(t, "search failed", logs[1].Message)
	assert.Equal(t, "tech stack", logs[1].Attributes["query"])
	assert.WithinDuration(t, time.Now(), logs[1].Timestamp, time.Minute)
}

func TestSlogWriterWithoutService(t *testing.T) {
	t.Parallel()
	w := &slogWriter{target: func() Service { return nil }}
	n, err := w.Write([]byte("level=INFO msg=hi\n"))
	require.NoError(t, err)
	assert.Equal(t, len("level=INFO msg=hi\n"), n)
}

func TestWritePanic(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	file := writePanic("test", "boom", dir)
	require.NotEmpty(t, file)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Panic in test: boom"))
	assert.Contains(t, string(data), "Stack Trace:")
}
