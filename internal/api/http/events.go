package http

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	syncx "github.com/mind-engage/ielts-mock/internal/sync"
)

// GET /api/events?after=<seq>&limit=100 (admin)
func EventsHandler(feed syncx.Feed, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		after, err := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
		if err != nil || after < 0 {
			after = 0
		}
		list, err := feed.Since(r.Context(), after, parseIntDefault(r.URL.Query().Get("limit"), 100))
		if err != nil {
			writeErr(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}
