// Package draft keeps a debounced local copy of the exam state so a
// crashed or closed session resumes where it stopped.
package draft

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mind-engage/ielts-mock/internal/checkpoint"
	"github.com/mind-engage/ielts-mock/internal/client/localstore"
	"github.com/mind-engage/ielts-mock/internal/exam"
)

const DefaultDelay = 400 * time.Millisecond

// Load reads the saved draft for a test. ok is false when there is none.
func Load(kv localstore.KV, module exam.Module, testID string) (snap checkpoint.Snapshot, ok bool, err error) {
	err = localstore.GetJSON(kv, localstore.DraftKey(string(module), testID), &snap)
	if errors.Is(err, localstore.ErrNotFound) {
		return checkpoint.Snapshot{}, false, nil
	}
	if err != nil {
		return checkpoint.Snapshot{}, false, err
	}
	if snap.Answers == nil {
		snap.Answers = exam.Answers{}
	}
	return snap, true, nil
}

// Writer debounces draft writes for one test.
type Writer struct {
	kv    localstore.KV
	key   string
	delay time.Duration
	log   *zap.Logger

	// io serializes storage writes so Clear cannot be undone by a flush
	// already in flight
	io      sync.Mutex
	mu      sync.Mutex
	pending *checkpoint.Snapshot
	timer   *time.Timer
	// cleared is final: a cleared writer ignores later schedules
	cleared bool
}

func NewWriter(kv localstore.KV, module exam.Module, testID string, delay time.Duration, log *zap.Logger) *Writer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{kv: kv, key: localstore.DraftKey(string(module), testID), delay: delay, log: log}
}

// Schedule replaces the pending draft and (re)arms the debounce timer.
func (w *Writer) Schedule(snap checkpoint.Snapshot) {
	snap = snap.Clone()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cleared {
		return
	}
	w.pending = &snap
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, func() {
		if err := w.Flush(); err != nil {
			w.log.Warn("draft write failed", zap.String("key", w.key), zap.Error(err))
		}
	})
}

// Flush writes the pending draft now, if any.
func (w *Writer) Flush() error {
	w.io.Lock()
	defer w.io.Unlock()
	w.mu.Lock()
	snap := w.pending
	w.pending = nil
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()
	if snap == nil {
		return nil
	}
	return localstore.SetJSON(w.kv, w.key, snap)
}

// Clear drops the pending draft and the saved one. The writer stays
// cleared: later Schedule calls are ignored.
func (w *Writer) Clear() error {
	w.io.Lock()
	defer w.io.Unlock()
	w.mu.Lock()
	w.cleared = true
	w.pending = nil
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()
	return w.kv.Delete(w.key)
}
