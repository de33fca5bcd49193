package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mind-engage/ielts-mock/internal/exam"
)

// GET /api/tests?module=listening|reading
func ListTestsHandler(store exam.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var module exam.Module
		if m := strings.TrimSpace(r.URL.Query().Get("module")); m != "" {
			parsed, err := exam.ParseModule(m)
			if err != nil {
				writeErr(w, log, err)
				return
			}
			module = parsed
		}
		list, err := store.ListTests(r.Context(), module)
		if err != nil {
			writeErr(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /api/tests/{testID}. Answer keys are never included.
func GetTestHandler(store exam.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := store.GetTest(r.Context(), chi.URLParam(r, "testID"))
		if err != nil {
			writeErr(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

// POST /api/tests (admin) creates or replaces a test.
func PutTestHandler(store exam.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var t exam.Test
		if !decodeJSON(w, r, &t) {
			return
		}
		if strings.TrimSpace(t.ID) == "" {
			http.Error(w, "id required", http.StatusBadRequest)
			return
		}
		if err := store.PutTest(r.Context(), t); err != nil {
			writeErr(w, log, err)
			return
		}
		saved, err := store.GetTestAdmin(r.Context(), t.ID)
		if err != nil {
			writeErr(w, log, err)
			return
		}
		log.Info("test saved", zap.String("test_id", saved.ID), zap.String("module", string(saved.Module)))
		writeJSON(w, http.StatusCreated, saved.Summary())
	}
}
