package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	authmw "github.com/mind-engage/ielts-mock/internal/auth/middleware"
	"github.com/mind-engage/ielts-mock/internal/exam"
	"github.com/mind-engage/ielts-mock/internal/metrics"
	syncx "github.com/mind-engage/ielts-mock/internal/sync"
)

func moduleParam(r *http.Request) (exam.Module, error) {
	return exam.ParseModule(chi.URLParam(r, "module"))
}

// attemptInModule loads an attempt the caller owns and checks it belongs to
// the module in the URL.
func attemptInModule(r *http.Request, store exam.Store, module exam.Module, id string) (exam.Attempt, error) {
	a, err := loadAttempt(r, store, id)
	if err != nil {
		return exam.Attempt{}, err
	}
	if a.Module != module {
		return exam.Attempt{}, exam.ErrAttemptNotFound
	}
	return a, nil
}

// POST /api/mock/{module}/runs  {"testId": "..."}
// Returns the caller's in-progress attempt on the test, or starts one (201).
func CreateRunHandler(store exam.Store, events syncx.Appender, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		module, err := moduleParam(r)
		if err != nil {
			writeErr(w, log, err)
			return
		}
		var req struct {
			TestID string `json:"testId"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.TestID) == "" {
			http.Error(w, "testId required", http.StatusBadRequest)
			return
		}
		t, err := store.GetTest(r.Context(), req.TestID)
		if err != nil {
			writeErr(w, log, err)
			return
		}
		if t.Module != module {
			writeErr(w, log, fmt.Errorf("%w: test %s is a %s test", exam.ErrInvalidTest, t.ID, t.Module))
			return
		}
		sub := authmw.SubjectFromContext(r.Context())
		a, created, err := store.CreateRun(r.Context(), req.TestID, sub)
		if err != nil {
			writeErr(w, log, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
			syncx.Record(r.Context(), events, log, syncx.EventAttemptCreated, a.ID,
				map[string]string{"test_id": a.TestID, "user_id": a.UserID})
		}
		writeJSON(w, status, a)
	}
}

// POST /api/mock/{module}/attempts/{attemptID}/answers  {"answers": {...}}
func SaveAnswersHandler(store exam.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		module, err := moduleParam(r)
		if err != nil {
			writeErr(w, log, err)
			return
		}
		var req struct {
			Answers exam.Answers `json:"answers"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		a, err := attemptInModule(r, store, module, chi.URLParam(r, "attemptID"))
		if err != nil {
			writeErr(w, log, err)
			return
		}
		a, err = store.SaveAnswers(r.Context(), a.ID, req.Answers)
		if err != nil {
			writeErr(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// submitAttempt finalizes a and records the outcome once.
func submitAttempt(ctx context.Context, store exam.Store, events syncx.Appender, log *zap.Logger, a exam.Attempt, final exam.Answers) (exam.Attempt, error) {
	already := a.Submitted()
	done, err := store.Submit(ctx, a.ID, final)
	if err != nil {
		return exam.Attempt{}, err
	}
	if !already {
		metrics.AttemptsSubmitted.WithLabelValues(string(done.Module)).Inc()
		syncx.Record(ctx, events, log, syncx.EventAttemptSubmitted, done.ID, map[string]float64{
			"raw_score": done.RawScore,
			"max_score": done.MaxScore,
			"band":      done.Band,
		})
		log.Info("attempt submitted",
			zap.String("attempt_id", done.ID),
			zap.String("module", string(done.Module)),
			zap.Float64("band", done.Band))
	}
	return done, nil
}

// POST /api/mock/{module}/attempts/{attemptID}/submit  {"answers": {...}}
// The body is optional. Submitting again returns the stored result.
func SubmitHandler(store exam.Store, events syncx.Appender, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		module, err := moduleParam(r)
		if err != nil {
			writeErr(w, log, err)
			return
		}
		var req struct {
			Answers exam.Answers `json:"answers"`
		}
		if !decodeOptionalJSON(w, r, &req) {
			return
		}
		a, err := attemptInModule(r, store, module, chi.URLParam(r, "attemptID"))
		if err != nil {
			writeErr(w, log, err)
			return
		}
		done, err := submitAttempt(r.Context(), store, events, log, a, req.Answers)
		if err != nil {
			writeErr(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, done)
	}
}

// POST /api/listening/submit  {"attemptId": "...", "answers": {...}}
func ListeningSubmitHandler(store exam.Store, events syncx.Appender, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AttemptID string       `json:"attemptId"`
			Answers   exam.Answers `json:"answers"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.AttemptID == "" {
			http.Error(w, "attemptId required", http.StatusBadRequest)
			return
		}
		a, err := attemptInModule(r, store, exam.ModuleListening, req.AttemptID)
		if err != nil {
			writeErr(w, log, err)
			return
		}
		done, err := submitAttempt(r.Context(), store, events, log, a, req.Answers)
		if err != nil {
			writeErr(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, done)
	}
}

// GET /api/attempts/{attemptID}
func GetAttemptHandler(store exam.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := loadAttempt(r, store, chi.URLParam(r, "attemptID"))
		if err != nil {
			if errors.Is(err, errForbidden) {
				// do not reveal that someone else's attempt exists
				err = exam.ErrAttemptNotFound
			}
			writeErr(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}
