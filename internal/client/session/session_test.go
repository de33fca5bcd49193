package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mind-engage/ielts-mock/internal/checkpoint"
	"github.com/mind-engage/ielts-mock/internal/client/draft"
	"github.com/mind-engage/ielts-mock/internal/client/localstore"
	"github.com/mind-engage/ielts-mock/internal/client/scheduler"
	"github.com/mind-engage/ielts-mock/internal/exam"
	"github.com/mind-engage/ielts-mock/internal/notes"
)

type fakeAPI struct {
	mu          sync.Mutex
	runs        int
	log         []string // call order
	checkpoints []checkpoint.Snapshot
	beacons     []checkpoint.Snapshot
	remote      map[string]checkpoint.Snapshot
	submits     atomic.Int32
	submitErr   error
	failN       int // fail this many submits, then use submitErr
	submitGate  chan struct{}
	noteErr     error
}

func newFake() *fakeAPI { return &fakeAPI{remote: map[string]checkpoint.Snapshot{}} }

func (f *fakeAPI) record(op string) {
	f.mu.Lock()
	f.log = append(f.log, op)
	f.mu.Unlock()
}

func (f *fakeAPI) CreateRun(_ context.Context, module exam.Module, testID string) (exam.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	return exam.Attempt{ID: testID + "-attempt-" + string(rune('0'+f.runs)), Module: module, TestID: testID}, nil
}

func (f *fakeAPI) SaveCheckpoint(_ context.Context, snap checkpoint.Snapshot) error {
	f.record("checkpoint")
	f.mu.Lock()
	f.checkpoints = append(f.checkpoints, snap.Clone())
	f.mu.Unlock()
	return nil
}

func (f *fakeAPI) GetCheckpoint(_ context.Context, attemptID string) (checkpoint.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.remote[attemptID]
	if !ok {
		return checkpoint.Snapshot{}, checkpoint.ErrNotFound
	}
	return s, nil
}

func (f *fakeAPI) Submit(_ context.Context, module exam.Module, attemptID string, answers exam.Answers) (exam.Attempt, error) {
	f.record("submit")
	if f.submitGate != nil {
		<-f.submitGate
	}
	f.mu.Lock()
	err := f.submitErr
	if f.failN > 0 {
		f.failN--
		err = errors.New("network down")
	}
	f.mu.Unlock()
	if err != nil {
		return exam.Attempt{}, err
	}
	f.submits.Add(1)
	return exam.Attempt{ID: attemptID, Module: module, Status: exam.StatusSubmitted, Answers: answers, RawScore: float64(len(answers))}, nil
}

func (f *fakeAPI) Beacon(snap checkpoint.Snapshot) bool {
	f.mu.Lock()
	f.beacons = append(f.beacons, snap.Clone())
	f.mu.Unlock()
	return true
}

func (f *fakeAPI) CreateNote(_ context.Context, in notes.CreateInput) (notes.Note, error) {
	if f.noteErr != nil {
		return notes.Note{}, f.noteErr
	}
	return notes.Note{ID: "n-" + in.PassageID, AttemptID: in.AttemptID, PassageID: in.PassageID, Ranges: in.Ranges}, nil
}

func (f *fakeAPI) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.log...)
}

func opts(t *testing.T) Options {
	return Options{
		Module:    exam.ModuleReading,
		TestID:    "r1",
		TimeLimit: 3600,
		// keep background sends out of the way unless a test forces them
		Scheduler:     scheduler.Config{ActiveInterval: time.Hour, IdleInterval: time.Hour, IdleAfter: time.Hour},
		DraftDelay:    time.Hour,
		TimerInterval: time.Hour,
		Logger:        zaptest.NewLogger(t),
	}
}

func TestOpenFreshAndResumeFromDraft(t *testing.T) {
	ctx := context.Background()
	kv := localstore.NewMemory()
	api := newFake()

	s, err := Open(ctx, api, kv, opts(t))
	require.NoError(t, err)
	st := s.State()
	assert.Equal(t, "r1-attempt-1", st.AttemptID)
	assert.Equal(t, 3600, st.TimeLeft)
	assert.False(t, st.Started)

	s.SetAnswer("q1", "TRUE")
	s.ToggleFlag("q2")
	s.SetSection(2)
	s.SetFocusMode(true)
	s.SetFilters(map[string]string{"type": "gap_fill"})
	require.NoError(t, s.Close())

	st = s.State()
	assert.Equal(t, exam.AnswerEntry{Value: "", Flagged: true}, st.Answers["q2"])

	again, err := Open(ctx, api, kv, opts(t))
	require.NoError(t, err)
	defer again.Close()
	st = again.State()
	assert.Equal(t, "r1-attempt-1", st.AttemptID, "cached attempt id is reused")
	assert.Equal(t, "TRUE", st.Answers["q1"].Value)
	assert.Equal(t, 2, st.SectionIndex)
	assert.True(t, st.FocusMode)
	assert.Equal(t, "gap_fill", st.Filters["type"])
	assert.Equal(t, 1, api.runs)
}

func TestOpenFallsBackToServerCheckpoint(t *testing.T) {
	api := newFake()
	api.remote["r1-attempt-1"] = checkpoint.Snapshot{Answers: exam.Answers{"q7": {Value: "B"}}, TimeLeft: 1234, Started: true}

	o := opts(t)
	s, err := Open(context.Background(), api, localstore.NewMemory(), o)
	require.NoError(t, err)
	defer s.Close()
	st := s.State()
	assert.Equal(t, "B", st.Answers["q7"].Value)
	assert.Equal(t, 1234, st.TimeLeft)
	assert.Equal(t, "r1-attempt-1", st.AttemptID)
	assert.False(t, s.Begin(), "a restored started session resumes its clock")
}

func TestLayoutPreferencePersists(t *testing.T) {
	ctx := context.Background()
	kv := localstore.NewMemory()
	api := newFake()

	s, err := Open(ctx, api, kv, opts(t))
	require.NoError(t, err)
	s.SetLayoutMode("stacked")
	require.NoError(t, s.Close())

	o := opts(t)
	o.TestID = "r2"
	other, err := Open(ctx, api, kv, o)
	require.NoError(t, err)
	defer other.Close()
	assert.Equal(t, "stacked", other.State().LayoutMode)
}

func TestSubmitForcesCheckpointAndCleansUp(t *testing.T) {
	ctx := context.Background()
	kv := localstore.NewMemory()
	api := newFake()
	s, err := Open(ctx, api, kv, opts(t))
	require.NoError(t, err)

	require.True(t, s.Begin())
	s.SetAnswer("q1", "A")
	s.SetAnswer("q2", "sand")

	a, err := s.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2.0, a.RawScore)
	assert.Equal(t, []string{"checkpoint", "submit"}, api.calls())
	require.Len(t, api.checkpoints, 1)
	assert.False(t, api.checkpoints[0].Delta)
	assert.True(t, api.checkpoints[0].Started)

	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed")
	}

	_, ok, err := draft.Load(kv, exam.ModuleReading, "r1")
	require.NoError(t, err)
	assert.False(t, ok, "draft cleared")
	_, err = kv.Get(localstore.AttemptKey("reading", "r1"))
	assert.ErrorIs(t, err, localstore.ErrNotFound, "attempt id forgotten")

	// repeated submit returns the stored result
	again, err := s.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, a.ID, again.ID)
	assert.Equal(t, int32(1), api.submits.Load())

	// state is frozen after submission
	s.SetAnswer("q1", "B")
	assert.Equal(t, "A", s.State().Answers["q1"].Value)
	_, err = s.AddNote(ctx, "p1", []notes.Range{{Start: 0, End: 1}}, "", "")
	assert.ErrorIs(t, err, ErrFinished)
	s.Hide()
	assert.Empty(t, api.beacons)
	require.NoError(t, s.Close())
}

func TestSubmitFailureAllowsRetry(t *testing.T) {
	ctx := context.Background()
	api := newFake()
	api.submitErr = errors.New("503")
	s, err := Open(ctx, api, localstore.NewMemory(), opts(t))
	require.NoError(t, err)
	defer s.Close()

	s.SetAnswer("q1", "A")
	_, err = s.Submit(ctx)
	require.Error(t, err)
	_, done := s.Result()
	assert.False(t, done)

	api.mu.Lock()
	api.submitErr = nil
	api.mu.Unlock()
	a, err := s.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, exam.StatusSubmitted, a.Status)
}

func TestSubmitGuard(t *testing.T) {
	ctx := context.Background()
	api := newFake()
	api.submitGate = make(chan struct{})
	s, err := Open(ctx, api, localstore.NewMemory(), opts(t))
	require.NoError(t, err)
	defer s.Close()

	errc := make(chan error, 1)
	go func() {
		_, err := s.Submit(ctx)
		errc <- err
	}()
	require.Eventually(t, func() bool {
		for _, c := range api.calls() {
			if c == "submit" {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	_, err = s.Submit(ctx)
	assert.ErrorIs(t, err, ErrSubmitting)

	close(api.submitGate)
	require.NoError(t, <-errc)
	assert.Equal(t, int32(1), api.submits.Load())
}

func TestTimerExpirySubmitsOnce(t *testing.T) {
	api := newFake()
	var autos atomic.Int32
	var lastTick atomic.Int32
	o := opts(t)
	o.TimeLimit = 3
	o.TimerInterval = 5 * time.Millisecond
	o.OnTick = func(left int) { lastTick.Store(int32(left)) }
	o.OnSubmitted = func(_ exam.Attempt, auto bool) {
		if auto {
			autos.Add(1)
		}
	}
	s, err := Open(context.Background(), api, localstore.NewMemory(), o)
	require.NoError(t, err)
	defer s.Close()

	s.SetAnswer("q1", "A")
	require.True(t, s.Begin())
	assert.False(t, s.Begin())

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("no auto submission")
	}
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), api.submits.Load())
	assert.Equal(t, int32(1), autos.Load())
	assert.Equal(t, int32(0), lastTick.Load())
}

func TestTimerExpiryBeforeBeginDoesNothing(t *testing.T) {
	api := newFake()
	o := opts(t)
	o.TimeLimit = 0
	s, err := Open(context.Background(), api, localstore.NewMemory(), o)
	require.NoError(t, err)
	defer s.Close()
	// never begun: no clock, no submission
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, api.submits.Load())
}

func TestHideFlushesDraftAndBeacons(t *testing.T) {
	kv := localstore.NewMemory()
	api := newFake()
	s, err := Open(context.Background(), api, kv, opts(t))
	require.NoError(t, err)
	defer s.Close()

	s.SetAnswer("q1", "C")
	s.Hide()

	d, ok, err := draft.Load(kv, exam.ModuleReading, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "C", d.Answers["q1"].Value)

	require.Len(t, api.beacons, 1)
	assert.False(t, api.beacons[0].Delta)
	assert.Equal(t, "C", api.beacons[0].Answers["q1"].Value)
}

func TestAddNoteTracksID(t *testing.T) {
	api := newFake()
	s, err := Open(context.Background(), api, localstore.NewMemory(), opts(t))
	require.NoError(t, err)
	defer s.Close()

	n, err := s.AddNote(context.Background(), "p1", []notes.Range{{Start: 0, End: 5}}, "yellow", "")
	require.NoError(t, err)
	assert.Equal(t, []string{n.ID}, s.State().Notes)

	api.noteErr = notes.ErrOverlap
	_, err = s.AddNote(context.Background(), "p2", []notes.Range{{Start: 0, End: 5}}, "", "")
	assert.ErrorIs(t, err, notes.ErrOverlap)
	assert.Len(t, s.State().Notes, 1)
}

func TestExpiryDuringFailedManualSubmit(t *testing.T) {
	api := newFake()
	api.submitGate = make(chan struct{})
	api.failN = 1
	var autos atomic.Int32
	o := opts(t)
	o.TimeLimit = 2
	o.TimerInterval = 50 * time.Millisecond
	o.OnSubmitted = func(_ exam.Attempt, auto bool) {
		if auto {
			autos.Add(1)
		}
	}
	s, err := Open(context.Background(), api, localstore.NewMemory(), o)
	require.NoError(t, err)
	defer s.Close()

	s.SetAnswer("q1", "A")
	require.True(t, s.Begin())

	manual := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background())
		manual <- err
	}()
	submitCalls := func() int {
		n := 0
		for _, c := range api.calls() {
			if c == "submit" {
				n++
			}
		}
		return n
	}
	// the manual submission holds the guard when the clock runs out
	require.Eventually(t, func() bool { return submitCalls() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, s.Expired, time.Second, time.Millisecond)
	assert.Equal(t, 1, submitCalls())

	// no edits once the time is up
	s.SetAnswer("q1", "changed after time up")
	assert.Equal(t, "A", s.State().Answers["q1"].Value)
	_, err = s.AddNote(context.Background(), "p1", []notes.Range{{Start: 0, End: 1}}, "", "")
	assert.ErrorIs(t, err, ErrFinished)

	close(api.submitGate)
	assert.Error(t, <-manual)

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("failed manual submit did not hand over to the forced submission")
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), api.submits.Load())
	assert.Equal(t, int32(1), autos.Load())
	a, ok := s.Result()
	require.True(t, ok)
	assert.Equal(t, "A", a.Answers["q1"].Value)
}

func TestForcedSubmissionIsAttemptedOnce(t *testing.T) {
	api := newFake()
	api.failN = 1
	o := opts(t)
	o.TimeLimit = 1
	o.TimerInterval = 5 * time.Millisecond
	s, err := Open(context.Background(), api, localstore.NewMemory(), o)
	require.NoError(t, err)
	defer s.Close()

	require.True(t, s.Begin())
	require.Eventually(t, func() bool {
		for _, c := range api.calls() {
			if c == "submit" {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	_, done := s.Result()
	assert.False(t, done, "a failed forced submission is not repeated")

	// the candidate can still submit by hand
	a, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, exam.StatusSubmitted, a.Status)
}
