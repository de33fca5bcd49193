package checkpoint_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/ielts-mock/internal/checkpoint"
	"github.com/mind-engage/ielts-mock/internal/db"
	"github.com/mind-engage/ielts-mock/internal/exam"
)

func runStoreContract(t *testing.T, store checkpoint.Store, attemptID string) {
	ctx := context.Background()

	_, err := store.Get(ctx, attemptID)
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)

	_, err = store.Upsert(ctx, checkpoint.Snapshot{})
	assert.ErrorIs(t, err, checkpoint.ErrMissingID)

	full := checkpoint.Snapshot{
		AttemptID:    attemptID,
		Answers:      exam.Answers{"q1": {Value: "A"}, "q2": {Value: "glass"}},
		SectionIndex: 0,
		TimeLeft:     3500,
		LayoutMode:   "split",
		Started:      true,
	}
	saved, err := store.Upsert(ctx, full)
	require.NoError(t, err)
	assert.NotZero(t, saved.SavedAt)

	delta := checkpoint.Snapshot{
		AttemptID:    attemptID,
		Answers:      exam.Answers{"q2": {Value: "sand", Flagged: true}},
		SectionIndex: 1,
		TimeLeft:     3400,
		LayoutMode:   "split",
		Started:      true,
		Delta:        true,
	}
	_, err = store.Upsert(ctx, delta)
	require.NoError(t, err)

	got, err := store.Get(ctx, attemptID)
	require.NoError(t, err)
	assert.Equal(t, exam.Answers{"q1": {Value: "A"}, "q2": {Value: "sand", Flagged: true}}, got.Answers)
	assert.Equal(t, 1, got.SectionIndex)
	assert.Equal(t, 3400, got.TimeLeft)
	assert.False(t, got.Delta)

	// a full snapshot replaces the answers wholesale
	_, err = store.Upsert(ctx, checkpoint.Snapshot{AttemptID: attemptID, Answers: exam.Answers{"q3": {Value: "C"}}})
	require.NoError(t, err)
	got, err = store.Get(ctx, attemptID)
	require.NoError(t, err)
	assert.Equal(t, exam.Answers{"q3": {Value: "C"}}, got.Answers)
}

func TestInMemoryStore(t *testing.T) {
	runStoreContract(t, checkpoint.NewInMemoryStore(), "a1")
}

func TestSQLStore(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "cp.db") + "?_pragma=foreign_keys(1)"
	dbh, err := db.Open(ctx, db.DriverSQLite, dsn)
	require.NoError(t, err)
	defer dbh.Close()

	exams := exam.NewSQLStore(dbh, nil)
	require.NoError(t, exams.PutTest(ctx, exam.Test{
		ID: "t1", Module: exam.ModuleReading, Title: "R1", TimeLimitSec: 3600,
		Sections:  []exam.Section{{ID: "p1"}},
		Questions: []exam.Question{{ID: "q1", Type: "gap_fill", AnswerKey: []string{"x"}}},
	}))
	a, _, err := exams.CreateRun(ctx, "t1", "u1")
	require.NoError(t, err)

	runStoreContract(t, checkpoint.NewSQLStore(dbh), a.ID)
}

func TestDeltaWithoutBaseIsStored(t *testing.T) {
	store := checkpoint.NewInMemoryStore()
	_, err := store.Upsert(context.Background(), checkpoint.Snapshot{
		AttemptID: "a1", Delta: true, Answers: exam.Answers{"q1": {Value: "x"}},
	})
	require.NoError(t, err)
	got, err := store.Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "x", got.Answers["q1"].Value)
}

func TestLimiter(t *testing.T) {
	l := checkpoint.NewLimiter(0.001, 2)
	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "buckets are per attempt")

	var nilLimiter *checkpoint.Limiter
	assert.True(t, nilLimiter.Allow("a"))

	unlimited := checkpoint.NewLimiter(0, 1)
	for i := 0; i < 10; i++ {
		assert.True(t, unlimited.Allow("a"))
	}
}
