package http

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mind-engage/ielts-mock/internal/checkpoint"
	"github.com/mind-engage/ielts-mock/internal/exam"
	"github.com/mind-engage/ielts-mock/internal/metrics"
	syncx "github.com/mind-engage/ielts-mock/internal/sync"
)

// transportOf tells beacon flushes apart from regular saves. Beacons are
// sent as text/plain so the browser skips the CORS preflight.
func transportOf(r *http.Request) string {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "text/plain" {
		return "beacon"
	}
	return "json"
}

// POST /api/mock/checkpoints
// Body is a checkpoint.Snapshot, as JSON or as a text/plain beacon. A
// snapshot with "delta": true carries only the changed answers.
// Responds 204.
func SaveCheckpointHandler(exams exam.Store, store checkpoint.Store, lim *checkpoint.Limiter, events syncx.Appender, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		transport := transportOf(r)
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			metrics.CheckpointsRejected.WithLabelValues("too_large").Inc()
			http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
			return
		}
		var snap checkpoint.Snapshot
		if err := json.Unmarshal(body, &snap); err != nil {
			metrics.CheckpointsRejected.WithLabelValues("bad_json").Inc()
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		snap.AttemptID = strings.TrimSpace(snap.AttemptID)
		if snap.AttemptID == "" {
			metrics.CheckpointsRejected.WithLabelValues("bad_json").Inc()
			writeErr(w, log, checkpoint.ErrMissingID)
			return
		}

		a, err := loadAttempt(r, exams, snap.AttemptID)
		if err != nil {
			metrics.CheckpointsRejected.WithLabelValues("attempt").Inc()
			writeErr(w, log, err)
			return
		}
		if a.Submitted() {
			metrics.CheckpointsRejected.WithLabelValues("submitted").Inc()
			writeErr(w, log, exam.ErrSubmitted)
			return
		}
		if !lim.Allow(a.ID) {
			metrics.CheckpointsRejected.WithLabelValues("rate_limited").Inc()
			writeErr(w, log, checkpoint.ErrRateLimited)
			return
		}

		kind := "full"
		if snap.Delta {
			kind = "delta"
		}
		saved, err := store.Upsert(r.Context(), snap)
		if err != nil {
			writeErr(w, log, err)
			return
		}
		metrics.CheckpointsSaved.WithLabelValues(transport, kind).Inc()
		syncx.Record(r.Context(), events, log, syncx.EventCheckpointSaved, a.ID, map[string]any{
			"transport": transport,
			"kind":      kind,
			"answers":   len(saved.Answers),
			"time_left": saved.TimeLeft,
		})
		log.Debug("checkpoint saved",
			zap.String("attempt_id", a.ID),
			zap.String("transport", transport),
			zap.String("kind", kind),
			zap.Int("changed", len(snap.Answers)))
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /api/mock/checkpoints?attemptId=...
func GetCheckpointHandler(exams exam.Store, store checkpoint.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.URL.Query().Get("attemptId"))
		if id == "" {
			writeErr(w, log, checkpoint.ErrMissingID)
			return
		}
		if _, err := loadAttempt(r, exams, id); err != nil {
			if errors.Is(err, errForbidden) {
				err = exam.ErrAttemptNotFound
			}
			writeErr(w, log, err)
			return
		}
		snap, err := store.Get(r.Context(), id)
		if err != nil {
			writeErr(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}
