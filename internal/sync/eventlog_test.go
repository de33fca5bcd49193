package syncx

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mind-engage/ielts-mock/internal/db"
)

func TestEventRepoAppendSince(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "events.db")
	dbh, err := db.Open(ctx, db.DriverSQLite, dsn)
	require.NoError(t, err)
	defer dbh.Close()

	repo := NewEventRepo(dbh, "")
	Record(ctx, repo, nil, EventAttemptCreated, "a1", map[string]string{"test_id": "t1"})
	Record(ctx, repo, nil, EventAttemptSubmitted, "a1", map[string]float64{"band": 6.5})

	events, err := repo.Since(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "local", events[0].SiteID)
	assert.Equal(t, EventAttemptCreated, events[0].Type)
	assert.JSONEq(t, `{"test_id":"t1"}`, events[0].DataJSON)

	rest, err := repo.Since(ctx, events[0].Seq, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, EventAttemptSubmitted, rest[0].Type)
}

type failingAppender struct{}

func (failingAppender) Append(context.Context, Event) error { return errors.New("disk full") }

func TestRecordSwallowsErrors(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	Record(context.Background(), failingAppender{}, zap.New(core), EventNoteCreated, "n1", nil)
	assert.Equal(t, 1, logs.Len())

	Record(context.Background(), nil, nil, EventNoteCreated, "n1", nil)
}

func TestMemoryLog(t *testing.T) {
	var m MemoryLog
	Record(context.Background(), &m, nil, EventCheckpointSaved, "a1", map[string]bool{"delta": true})
	ev := m.Events()
	require.Len(t, ev, 1)
	assert.Equal(t, int64(1), ev[0].Seq)
}

func TestMemoryLogSince(t *testing.T) {
	var m MemoryLog
	ctx := context.Background()
	for _, k := range []string{"a1", "a2", "a3"} {
		Record(ctx, &m, nil, EventAttemptCreated, k, nil)
	}
	got, err := m.Since(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a2", got[0].Key)
}
