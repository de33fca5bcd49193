// Package session drives one candidate attempt on the client: it keeps the
// exam state, saves drafts locally, checkpoints to the server, runs the
// countdown and submits.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mind-engage/ielts-mock/internal/checkpoint"
	"github.com/mind-engage/ielts-mock/internal/client/attemptid"
	"github.com/mind-engage/ielts-mock/internal/client/draft"
	"github.com/mind-engage/ielts-mock/internal/client/examtimer"
	"github.com/mind-engage/ielts-mock/internal/client/localstore"
	"github.com/mind-engage/ielts-mock/internal/client/scheduler"
	"github.com/mind-engage/ielts-mock/internal/exam"
	"github.com/mind-engage/ielts-mock/internal/notes"
)

var (
	ErrSubmitting = errors.New("submission already in progress")
	ErrFinished   = errors.New("attempt already submitted")
)

// API is the server surface a session uses.
type API interface {
	attemptid.RunCreator
	scheduler.Sender
	GetCheckpoint(ctx context.Context, attemptID string) (checkpoint.Snapshot, error)
	Submit(ctx context.Context, module exam.Module, attemptID string, answers exam.Answers) (exam.Attempt, error)
	Beacon(snap checkpoint.Snapshot) bool
	CreateNote(ctx context.Context, in notes.CreateInput) (notes.Note, error)
}

type Options struct {
	Module exam.Module
	TestID string
	// TimeLimit in seconds, used when nothing was saved before.
	TimeLimit int

	Scheduler     scheduler.Config
	DraftDelay    time.Duration
	TimerInterval time.Duration
	SubmitTimeout time.Duration

	// OnTick and OnSubmitted are called from background goroutines.
	OnTick      func(left int)
	OnSubmitted func(a exam.Attempt, auto bool)

	Logger *zap.Logger
}

type Session struct {
	api      API
	kv       localstore.KV
	opts     Options
	log      *zap.Logger
	resolver *attemptid.Resolver
	drafts   *draft.Writer
	sched    *scheduler.Scheduler
	timer    *examtimer.Timer

	mu         sync.Mutex
	state      checkpoint.Snapshot
	submitting bool
	// expired is set when the clock reaches zero; autoFired once the forced
	// submission has been attempted.
	expired   bool
	autoFired bool
	result    *exam.Attempt
	done      chan struct{}
}

// Open resolves the attempt and restores its state: the local draft if
// there is one, else the server checkpoint, else a fresh state. A restored
// session that had already begun resumes its countdown.
func Open(ctx context.Context, api API, kv localstore.KV, opts Options) (*Session, error) {
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = 30 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("module", string(opts.Module)), zap.String("test_id", opts.TestID))

	s := &Session{
		api:      api,
		kv:       kv,
		opts:     opts,
		log:      log,
		resolver: attemptid.NewResolver(kv, api),
		done:     make(chan struct{}),
	}
	id, err := s.resolver.Resolve(ctx, opts.Module, opts.TestID)
	if err != nil {
		return nil, fmt.Errorf("resolve attempt: %w", err)
	}
	s.state = s.restore(ctx, id)

	var layout string
	if err := localstore.GetJSON(kv, localstore.LayoutModeKey(string(opts.Module)), &layout); err == nil && layout != "" {
		s.state.LayoutMode = layout
	}

	s.drafts = draft.NewWriter(kv, opts.Module, opts.TestID, opts.DraftDelay, log)
	s.sched = scheduler.New(api, opts.Scheduler, log)
	s.timer = examtimer.New(
		examtimer.WithInterval(opts.TimerInterval),
		examtimer.OnTick(s.onTick),
		examtimer.OnExpire(s.onExpire),
	)

	s.sched.Observe(s.state)
	if s.state.Started {
		s.timer.Start(s.state.TimeLeft)
	}
	log.Info("session opened",
		zap.String("attempt_id", id),
		zap.Int("answers", len(s.state.Answers)),
		zap.Int("time_left", s.state.TimeLeft))
	return s, nil
}

func (s *Session) restore(ctx context.Context, attemptID string) checkpoint.Snapshot {
	fresh := checkpoint.Snapshot{AttemptID: attemptID, Answers: exam.Answers{}, TimeLeft: s.opts.TimeLimit}

	d, ok, err := draft.Load(s.kv, s.opts.Module, s.opts.TestID)
	if err != nil {
		s.log.Warn("draft unreadable", zap.Error(err))
	}
	if ok && d.AttemptID == attemptID {
		return d
	}

	remote, err := s.api.GetCheckpoint(ctx, attemptID)
	if err != nil {
		s.log.Debug("no server checkpoint", zap.Error(err))
		return fresh
	}
	remote.AttemptID = attemptID
	if remote.Answers == nil {
		remote.Answers = exam.Answers{}
	}
	return remote
}

// State returns a copy of the current exam state.
func (s *Session) State() checkpoint.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

func (s *Session) AttemptID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.AttemptID
}

// Done is closed once the attempt is submitted.
func (s *Session) Done() <-chan struct{} { return s.done }

// Result returns the submitted attempt.
func (s *Session) Result() (exam.Attempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return exam.Attempt{}, false
	}
	return *s.result, true
}

// Expired reports whether the clock has run out.
func (s *Session) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired
}

// frozen reports whether the state no longer accepts changes. Callers hold mu.
func (s *Session) frozen() bool { return s.result != nil || s.expired }

// update applies fn to the state and records the change. It is a no-op
// once the attempt is submitted or the time is up.
func (s *Session) update(fn func(st *checkpoint.Snapshot)) {
	s.mu.Lock()
	if s.frozen() {
		s.mu.Unlock()
		return
	}
	fn(&s.state)
	snap := s.state.Clone()
	s.mu.Unlock()

	s.drafts.Schedule(snap)
	s.sched.Track(snap)
}

func (s *Session) SetAnswer(questionID, value string) {
	s.update(func(st *checkpoint.Snapshot) {
		e := st.Answers[questionID]
		e.Value = value
		st.Answers[questionID] = e
	})
}

// ToggleFlag marks a question for review. An untouched question gets an
// empty string value.
func (s *Session) ToggleFlag(questionID string) {
	s.update(func(st *checkpoint.Snapshot) {
		e := st.Answers[questionID]
		e.Flagged = !e.Flagged
		st.Answers[questionID] = e
	})
}

func (s *Session) SetSection(i int) {
	s.update(func(st *checkpoint.Snapshot) { st.SectionIndex = i })
}

func (s *Session) SetFocusMode(on bool) {
	s.update(func(st *checkpoint.Snapshot) { st.FocusMode = on })
}

func (s *Session) SetFilters(f map[string]string) {
	s.update(func(st *checkpoint.Snapshot) {
		st.Filters = make(map[string]string, len(f))
		for k, v := range f {
			st.Filters[k] = v
		}
	})
}

// SetLayoutMode changes the layout and keeps it as the preference for the
// module.
func (s *Session) SetLayoutMode(mode string) {
	if err := localstore.SetJSON(s.kv, localstore.LayoutModeKey(string(s.opts.Module)), mode); err != nil {
		s.log.Warn("layout preference not saved", zap.Error(err))
	}
	s.update(func(st *checkpoint.Snapshot) { st.LayoutMode = mode })
}

// AddNote highlights ranges of a passage. The server rejects ranges that
// overlap an existing highlight.
func (s *Session) AddNote(ctx context.Context, passageID string, ranges []notes.Range, color, text string) (notes.Note, error) {
	s.mu.Lock()
	frozen := s.frozen()
	s.mu.Unlock()
	if frozen {
		return notes.Note{}, ErrFinished
	}
	n, err := s.api.CreateNote(ctx, notes.CreateInput{
		AttemptID: s.AttemptID(),
		PassageID: passageID,
		Ranges:    ranges,
		Color:     color,
		Text:      text,
	})
	if err != nil {
		return notes.Note{}, err
	}
	s.update(func(st *checkpoint.Snapshot) { st.Notes = append(st.Notes, n.ID) })
	return n, nil
}

// Begin starts the exam clock. It reports false if it was already running.
func (s *Session) Begin() bool {
	if s.timer.Started() {
		return false
	}
	s.mu.Lock()
	finished := s.result != nil
	s.mu.Unlock()
	if finished {
		return false
	}
	// Started is set first so an immediate expiry sees it
	s.update(func(st *checkpoint.Snapshot) { st.Started = true })
	return s.timer.Start(s.State().TimeLeft)
}

func (s *Session) onTick(left int) {
	s.mu.Lock()
	if s.result != nil {
		s.mu.Unlock()
		return
	}
	s.state.TimeLeft = left
	snap := s.state.Clone()
	s.mu.Unlock()
	s.sched.Observe(snap)
	s.drafts.Schedule(snap)
	if s.opts.OnTick != nil {
		s.opts.OnTick(left)
	}
}

func (s *Session) onExpire() {
	s.mu.Lock()
	s.expired = true
	s.mu.Unlock()
	go s.autoSubmit()
}

// autoSubmit makes the one forced submission after expiry. While a manual
// submission is in flight it does nothing; that call hands over to
// autoSubmit if it fails.
func (s *Session) autoSubmit() {
	s.mu.Lock()
	if !s.state.Started || s.result != nil || s.autoFired || s.submitting {
		s.mu.Unlock()
		return
	}
	s.autoFired = true
	s.submitting = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.SubmitTimeout)
	defer cancel()
	if _, err := s.send(ctx, true); err != nil {
		s.log.Error("auto submit failed", zap.Error(err))
	}
}

// Submit sends a forced checkpoint and then the final answers. A second
// call while one is in flight gets ErrSubmitting; after success it returns
// the stored result. A failed submit can be retried.
func (s *Session) Submit(ctx context.Context) (exam.Attempt, error) {
	return s.submit(ctx, false)
}

func (s *Session) submit(ctx context.Context, auto bool) (exam.Attempt, error) {
	s.mu.Lock()
	if s.result != nil {
		a := *s.result
		s.mu.Unlock()
		return a, nil
	}
	if s.submitting {
		s.mu.Unlock()
		return exam.Attempt{}, ErrSubmitting
	}
	s.submitting = true
	s.mu.Unlock()
	return s.send(ctx, auto)
}

// send performs a submission. The caller has set the submitting guard.
func (s *Session) send(ctx context.Context, auto bool) (exam.Attempt, error) {
	s.mu.Lock()
	id := s.state.AttemptID
	answers := s.state.Answers.Clone()
	s.mu.Unlock()

	if err := s.sched.Force(ctx); err != nil {
		s.log.Warn("final checkpoint failed", zap.Error(err))
	}
	a, err := s.api.Submit(ctx, s.opts.Module, id, answers)

	s.mu.Lock()
	s.submitting = false
	if err != nil {
		handOver := s.expired && !s.autoFired
		s.mu.Unlock()
		if handOver {
			go s.autoSubmit()
		}
		return exam.Attempt{}, fmt.Errorf("submit attempt: %w", err)
	}
	s.result = &a
	s.mu.Unlock()
	close(s.done)

	if !auto {
		// the expiry path runs after the timer goroutine has finished
		s.timer.Stop()
	}
	s.sched.Close()
	if err := s.drafts.Clear(); err != nil {
		s.log.Warn("draft not cleared", zap.Error(err))
	}
	if err := s.resolver.Forget(s.opts.Module, s.opts.TestID); err != nil {
		s.log.Warn("attempt id not cleared", zap.Error(err))
	}
	s.log.Info("attempt submitted",
		zap.String("attempt_id", a.ID),
		zap.Bool("auto", auto),
		zap.Float64("raw_score", a.RawScore),
		zap.Float64("band", a.Band))
	if s.opts.OnSubmitted != nil {
		s.opts.OnSubmitted(a, auto)
	}
	return a, nil
}

// Hide is called when the session is about to go away: it writes the
// draft and beacons the full state. Both are best effort.
func (s *Session) Hide() {
	if err := s.drafts.Flush(); err != nil {
		s.log.Warn("draft flush failed", zap.Error(err))
	}
	s.mu.Lock()
	finished := s.result != nil
	snap := s.state.Clone()
	s.mu.Unlock()
	if finished {
		return
	}
	snap.Delta = false
	if !s.api.Beacon(snap) {
		s.log.Warn("beacon not queued", zap.String("attempt_id", snap.AttemptID))
	}
}

// Close stops the clock and the scheduler and writes any pending draft.
func (s *Session) Close() error {
	s.timer.Stop()
	s.sched.Close()
	return s.drafts.Flush()
}
