package logs

import (
	"context"
	"testing"
	"time"

	"github.com/sst/mentions/internal/logging"
	"github.com/sst/mentions/internal/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableLoadsNewestFirst(t *testing.T) {
	t.Parallel()
	s := logging.NewService(10)
	defer s.Shutdown()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, time.Now(), "info", "catalog reloaded", nil))
	require.NoError(t, s.Create(ctx, time.Now(), "warn", "search failed", map[string]string{"query": "te", "kind": "topic"}))

	tbl := newTable(func() logging.Service { return s })
	tbl.SetSize(80, 5)
	tbl.Update(tbl.Init()())

	w, h := tbl.GetSize()
	assert.Equal(t, 80, w)
	assert.Equal(t, 5, h)

	require.Equal(t, 2, tbl.Len())
	rows := tbl.table.Rows()
	assert.Equal(t, "search failed", rows[0][2])
	assert.Equal(t, "kind=topic query=te", rows[0][3])
	assert.Contains(t, tbl.View(), "catalog reloaded")
}

func TestTableWithoutService(t *testing.T) {
	t.Parallel()
	tbl := newTable(func() logging.Service { return nil })
	assert.Nil(t, tbl.Init()())
	assert.Zero(t, tbl.Len())
}

func TestTableFollowsEvents(t *testing.T) {
	t.Parallel()
	tbl := newTable(func() logging.Service { return nil })
	for i := 0; i < logLimit+5; i++ {
		tbl.Update(pubsub.Event[logging.Log]{
			Type:    logging.EventLogCreated,
			Payload: logging.Log{Level: "debug", Message: "dropped stale results"},
		})
	}
	assert.Equal(t, logLimit, tbl.Len())

	w, h := tbl.GetSize()
	assert.Zero(t, w)
	assert.Zero(t, h)
}
