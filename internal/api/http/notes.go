package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mind-engage/ielts-mock/internal/exam"
	"github.com/mind-engage/ielts-mock/internal/metrics"
	"github.com/mind-engage/ielts-mock/internal/notes"
	syncx "github.com/mind-engage/ielts-mock/internal/sync"
)

// NotesAPI serves /api/mock/reading/notes.
type NotesAPI struct {
	Exams  exam.Store
	Notes  *notes.Service
	Events syncx.Appender
	Log    *zap.Logger
}

// ownedNote loads a note whose attempt belongs to the caller.
func (n NotesAPI) ownedNote(r *http.Request, id string) (notes.Note, error) {
	note, err := n.Notes.Get(r.Context(), id)
	if err != nil {
		return notes.Note{}, err
	}
	if _, err := loadAttempt(r, n.Exams, note.AttemptID); err != nil {
		return notes.Note{}, notes.ErrNotFound
	}
	return note, nil
}

// POST  {"attemptId","passageId","ranges":[{"start","end"}],"color","noteText"}
func (n NotesAPI) Create(w http.ResponseWriter, r *http.Request) {
	var in notes.CreateInput
	if !decodeJSON(w, r, &in) {
		return
	}
	if _, err := loadAttempt(r, n.Exams, in.AttemptID); err != nil {
		writeErr(w, n.Log, err)
		return
	}
	note, err := n.Notes.Create(r.Context(), in)
	if err != nil {
		metrics.NotesOps.WithLabelValues("create_rejected").Inc()
		writeErr(w, n.Log, err)
		return
	}
	metrics.NotesOps.WithLabelValues("create").Inc()
	syncx.Record(r.Context(), n.Events, n.Log, syncx.EventNoteCreated, note.AttemptID,
		map[string]string{"note_id": note.ID, "passage_id": note.PassageID})
	writeJSON(w, http.StatusCreated, note)
}

// PATCH  {"id", "color"?, "noteText"?, "ranges"?}
func (n NotesAPI) Update(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
		notes.UpdateInput
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ID == "" {
		req.ID = r.URL.Query().Get("id")
	}
	if _, err := n.ownedNote(r, req.ID); err != nil {
		writeErr(w, n.Log, err)
		return
	}
	note, err := n.Notes.Update(r.Context(), req.ID, req.UpdateInput)
	if err != nil {
		writeErr(w, n.Log, err)
		return
	}
	metrics.NotesOps.WithLabelValues("update").Inc()
	writeJSON(w, http.StatusOK, note)
}

// DELETE ?id=... (or {"id"} in the body)
func (n NotesAPI) Delete(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		var req struct {
			ID string `json:"id"`
		}
		_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)
		id = req.ID
	}
	note, err := n.ownedNote(r, id)
	if err != nil {
		writeErr(w, n.Log, err)
		return
	}
	if err := n.Notes.Delete(r.Context(), id); err != nil {
		writeErr(w, n.Log, err)
		return
	}
	metrics.NotesOps.WithLabelValues("delete").Inc()
	syncx.Record(r.Context(), n.Events, n.Log, syncx.EventNoteDeleted, note.AttemptID,
		map[string]string{"note_id": note.ID})
	w.WriteHeader(http.StatusNoContent)
}

// GET ?attemptId=...
func (n NotesAPI) List(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("attemptId"))
	if id == "" {
		http.Error(w, "attemptId required", http.StatusBadRequest)
		return
	}
	if _, err := loadAttempt(r, n.Exams, id); err != nil {
		writeErr(w, n.Log, err)
		return
	}
	list, err := n.Notes.List(r.Context(), id)
	if err != nil {
		writeErr(w, n.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
