package http

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	authmw "github.com/mind-engage/ielts-mock/internal/auth/middleware"
	"github.com/mind-engage/ielts-mock/internal/exam"
	"github.com/mind-engage/ielts-mock/internal/rbac"
)

// GET /api/attempts?test_id=...&user_id=...&status=...&limit=50&offset=0
// RBAC:
// - attempt:view-all may filter by any user
// - everyone else only sees their own attempts (user_id is forced to subject)
func ListAttemptsHandler(store exam.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := rbac.RoleFromContext(r.Context())
		sub := authmw.SubjectFromContext(r.Context())

		q := r.URL.Query()
		userID := strings.TrimSpace(q.Get("user_id"))
		if !rbac.Can(role, rbac.PermAttemptViewAll) {
			userID = sub
		}
		var status exam.Status
		switch s := exam.Status(strings.TrimSpace(q.Get("status"))); s {
		case "", exam.StatusInProgress, exam.StatusSubmitted:
			status = s
		default:
			http.Error(w, "unknown status", http.StatusBadRequest)
			return
		}

		list, err := store.ListAttempts(r.Context(), exam.AttemptListOpts{
			TestID: strings.TrimSpace(q.Get("test_id")),
			UserID: userID,
			Status: status,
			Limit:  parseIntDefault(q.Get("limit"), 50),
			Offset: parseIntDefault(q.Get("offset"), 0),
		})
		if err != nil {
			writeErr(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}
