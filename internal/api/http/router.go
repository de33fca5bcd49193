package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/mind-engage/ielts-mock/internal/auth"
	authmw "github.com/mind-engage/ielts-mock/internal/auth/middleware"
	"github.com/mind-engage/ielts-mock/internal/checkpoint"
	"github.com/mind-engage/ielts-mock/internal/exam"
	"github.com/mind-engage/ielts-mock/internal/logging"
	"github.com/mind-engage/ielts-mock/internal/metrics"
	"github.com/mind-engage/ielts-mock/internal/notes"
	"github.com/mind-engage/ielts-mock/internal/rbac"
	"github.com/mind-engage/ielts-mock/internal/storage"
	syncx "github.com/mind-engage/ielts-mock/internal/sync"
)

// Deps is everything the router needs. Blobs, Feed and Ready are optional.
type Deps struct {
	Exams       exam.Store
	Checkpoints checkpoint.Store
	Notes       *notes.Service
	Limiter     *checkpoint.Limiter
	Blobs       storage.BlobStore
	Events      syncx.Appender
	Feed        syncx.Feed

	Auth  *authmw.AuthService
	Login *authmw.LoginConfig // nil disables password login
	// SecureCookies marks the guest cookie Secure/SameSite=None.
	SecureCookies bool

	Logger         *zap.Logger
	CORSOrigins    []string
	RequestTimeout time.Duration
	Metrics        bool
	Ready          func(ctx context.Context) error
}

func NewRouter(d Deps) http.Handler {
	log := logging.OrNop(d.Logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP)
	r.Use(logging.Middleware(log, "/healthz", "/readyz", "/metrics"))
	r.Use(middleware.Recoverer)
	if d.Metrics {
		r.Use(metrics.Middleware)
	}
	if d.RequestTimeout > 0 {
		r.Use(middleware.Timeout(d.RequestTimeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if d.Login != nil {
		r.Post("/auth/login", authmw.LoginHandler(d.Auth, *d.Login))
	}
	r.Post("/auth/guest", auth.GuestLoginHandler(d.Auth, d.SecureCookies))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r.Context()); err != nil {
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	if d.Metrics {
		r.Handle("/metrics", metrics.Handler())
	}

	if d.Blobs != nil {
		r.Group(func(pr chi.Router) {
			pr.Use(authmw.JWTMiddleware(d.Auth))
			pr.Route("/assets", func(ar chi.Router) {
				MountAssets(ar, d.Blobs, log)
			})
		})
	}

	notesAPI := NotesAPI{Exams: d.Exams, Notes: d.Notes, Events: d.Events, Log: log}

	// Protected API (JWT → role in context → RBAC)
	r.Route("/api", func(pr chi.Router) {
		pr.Use(authmw.JWTMiddleware(d.Auth))

		pr.With(rbac.Require(rbac.PermTestView)).Get("/tests", ListTestsHandler(d.Exams, log))
		pr.With(rbac.Require(rbac.PermTestView)).Get("/tests/{testID}", GetTestHandler(d.Exams, log))
		pr.With(rbac.Require(rbac.PermTestCreate)).Post("/tests", PutTestHandler(d.Exams, log))

		pr.With(rbac.RequireAny(rbac.PermAttemptViewOwn, rbac.PermAttemptViewAll)).
			Get("/attempts", ListAttemptsHandler(d.Exams, log))
		pr.With(rbac.RequireAny(rbac.PermAttemptViewOwn, rbac.PermAttemptViewAll)).
			Get("/attempts/{attemptID}", GetAttemptHandler(d.Exams, log))

		pr.With(rbac.Require(rbac.PermAttemptSubmit)).
			Post("/listening/submit", ListeningSubmitHandler(d.Exams, d.Events, log))

		pr.Route("/mock", func(mr chi.Router) {
			mr.With(rbac.Require(rbac.PermCheckpointSave)).
				Post("/checkpoints", SaveCheckpointHandler(d.Exams, d.Checkpoints, d.Limiter, d.Events, log))
			mr.With(rbac.Require(rbac.PermCheckpointView)).
				Get("/checkpoints", GetCheckpointHandler(d.Exams, d.Checkpoints, log))

			mr.Route("/reading/notes", func(nr chi.Router) {
				nr.With(rbac.Require(rbac.PermNoteView)).Get("/", notesAPI.List)
				nr.Group(func(wr chi.Router) {
					wr.Use(rbac.Require(rbac.PermNoteWrite))
					wr.Post("/", notesAPI.Create)
					wr.Patch("/", notesAPI.Update)
					wr.Delete("/", notesAPI.Delete)
				})
			})

			mr.With(rbac.Require(rbac.PermAttemptCreate)).
				Post("/{module}/runs", CreateRunHandler(d.Exams, d.Events, log))
			mr.With(rbac.Require(rbac.PermAttemptSave)).
				Post("/{module}/attempts/{attemptID}/answers", SaveAnswersHandler(d.Exams, log))
			mr.With(rbac.Require(rbac.PermAttemptSubmit)).
				Post("/{module}/attempts/{attemptID}/submit", SubmitHandler(d.Exams, d.Events, log))
		})

		if d.Feed != nil {
			pr.With(rbac.Require(rbac.PermEventView)).Get("/events", EventsHandler(d.Feed, log))
		}
	})

	return r
}
