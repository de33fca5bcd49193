package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	authmw "github.com/mind-engage/ielts-mock/internal/auth/middleware"
	"github.com/mind-engage/ielts-mock/internal/checkpoint"
	"github.com/mind-engage/ielts-mock/internal/exam"
	"github.com/mind-engage/ielts-mock/internal/notes"
	"github.com/mind-engage/ielts-mock/internal/rbac"
	"github.com/mind-engage/ielts-mock/internal/storage"
)

const maxBodyBytes = 1 << 20

var errForbidden = errors.New("forbidden")

func statusFor(err error) int {
	switch {
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, exam.ErrTestNotFound),
		errors.Is(err, exam.ErrAttemptNotFound),
		errors.Is(err, checkpoint.ErrNotFound),
		errors.Is(err, notes.ErrNotFound),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, exam.ErrSubmitted),
		errors.Is(err, notes.ErrOverlap):
		return http.StatusConflict
	case errors.Is(err, exam.ErrInvalidTest),
		errors.Is(err, notes.ErrInvalidRange),
		errors.Is(err, notes.ErrInvalidNote),
		errors.Is(err, checkpoint.ErrMissingID),
		errors.Is(err, storage.ErrBadKey):
		return http.StatusBadRequest
	case errors.Is(err, checkpoint.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeErr maps domain errors to a status. Internal errors are logged and
// never echoed to the caller.
func writeErr(w http.ResponseWriter, log *zap.Logger, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		if log != nil {
			log.Error("request failed", zap.Error(err))
		}
		msg = "internal error"
	}
	http.Error(w, msg, code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return false
	}
	return true
}

// decodeOptionalJSON is decodeJSON for bodies that may be empty.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "bad json", http.StatusBadRequest)
		return false
	}
	return true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}

// authorizeAttempt lets the owner through, and anyone allowed to view all
// attempts.
func authorizeAttempt(r *http.Request, a exam.Attempt) error {
	if a.UserID == authmw.SubjectFromContext(r.Context()) {
		return nil
	}
	if rbac.Can(rbac.RoleFromContext(r.Context()), rbac.PermAttemptViewAll) {
		return nil
	}
	return errForbidden
}

// loadAttempt fetches an attempt the caller may act on.
func loadAttempt(r *http.Request, store exam.Store, id string) (exam.Attempt, error) {
	a, err := store.GetAttempt(r.Context(), id)
	if err != nil {
		return exam.Attempt{}, err
	}
	if err := authorizeAttempt(r, a); err != nil {
		return exam.Attempt{}, err
	}
	return a, nil
}
