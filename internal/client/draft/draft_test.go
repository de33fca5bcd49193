package draft

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/ielts-mock/internal/checkpoint"
	"github.com/mind-engage/ielts-mock/internal/client/localstore"
	"github.com/mind-engage/ielts-mock/internal/exam"
)

func snap(v string) checkpoint.Snapshot {
	return checkpoint.Snapshot{AttemptID: "a1", Answers: exam.Answers{"q1": {Value: v}}, TimeLeft: 100}
}

func TestDebounceKeepsLatest(t *testing.T) {
	kv := localstore.NewMemory()
	w := NewWriter(kv, exam.ModuleReading, "r1", 20*time.Millisecond, nil)

	w.Schedule(snap("a"))
	w.Schedule(snap("ab"))
	w.Schedule(snap("abc"))

	_, ok, err := Load(kv, exam.ModuleReading, "r1")
	require.NoError(t, err)
	assert.False(t, ok, "nothing is written before the delay")

	require.Eventually(t, func() bool {
		got, ok, _ := Load(kv, exam.ModuleReading, "r1")
		return ok && got.Answers["q1"].Value == "abc"
	}, time.Second, 5*time.Millisecond)
}

func TestFlushWritesImmediately(t *testing.T) {
	kv := localstore.NewMemory()
	w := NewWriter(kv, exam.ModuleListening, "l1", time.Hour, nil)
	w.Schedule(snap("x"))
	require.NoError(t, w.Flush())

	got, ok, err := Load(kv, exam.ModuleListening, "l1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "x", got.Answers["q1"].Value)

	// nothing pending: no-op
	require.NoError(t, w.Flush())
}

func TestClear(t *testing.T) {
	kv := localstore.NewMemory()
	w := NewWriter(kv, exam.ModuleReading, "r1", 10*time.Millisecond, nil)
	w.Schedule(snap("x"))
	require.NoError(t, w.Flush())
	w.Schedule(snap("y"))
	require.NoError(t, w.Clear())

	time.Sleep(30 * time.Millisecond)
	_, ok, err := Load(kv, exam.ModuleReading, "r1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScheduleAfterClearIsIgnored(t *testing.T) {
	kv := localstore.NewMemory()
	w := NewWriter(kv, exam.ModuleReading, "r1", 10*time.Millisecond, nil)
	w.Schedule(snap("x"))
	require.NoError(t, w.Clear())

	// a late tick after submission must not bring the draft back
	w.Schedule(snap("stale"))
	require.NoError(t, w.Flush())
	time.Sleep(30 * time.Millisecond)

	_, ok, err := Load(kv, exam.ModuleReading, "r1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScheduleCopiesInput(t *testing.T) {
	kv := localstore.NewMemory()
	w := NewWriter(kv, exam.ModuleReading, "r1", time.Hour, nil)
	s := snap("x")
	w.Schedule(s)
	s.Answers["q1"] = exam.AnswerEntry{Value: "mutated"}
	require.NoError(t, w.Flush())
	got, _, err := Load(kv, exam.ModuleReading, "r1")
	require.NoError(t, err)
	assert.Equal(t, "x", got.Answers["q1"].Value)
}
