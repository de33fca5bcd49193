package http

import (
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mind-engage/ielts-mock/internal/rbac"
	"github.com/mind-engage/ielts-mock/internal/storage"
)

const maxAssetBytes = 200 << 20

// audio types are missing from the builtin mime table on some systems
var audioTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",
	".webm": "audio/webm",
}

func contentTypeOf(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ct, ok := audioTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func MountAssets(r chi.Router, bs storage.BlobStore, log *zap.Logger) {
	// POST /assets/tests/{testID}  multipart "file" (admin)
	r.With(rbac.Require(rbac.PermAssetUpload)).Post("/tests/{testID}", func(w http.ResponseWriter, r *http.Request) {
		testID := chi.URLParam(r, "testID")
		r.Body = http.MaxBytesReader(w, r.Body, maxAssetBytes)
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "file required", http.StatusBadRequest)
			return
		}
		defer f.Close()

		name := path.Base(strings.ReplaceAll(hdr.Filename, "\\", "/"))
		key, err := bs.Put(r.Context(), "tests/"+testID+"/"+name, f, hdr.Size, contentTypeOf(name))
		if err != nil {
			writeErr(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"key": key})
	})

	// GET /assets/url/*  -> {"url": "..."} short-lived link to the blob
	r.Get("/url/*", func(w http.ResponseWriter, r *http.Request) {
		u, err := bs.SignedURL(r.Context(), chi.URLParam(r, "*"))
		if err != nil {
			writeErr(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": u})
	})

	// GET /assets/*   -> returns the blob at whatever follows /assets/
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
		rc, err := bs.Get(r.Context(), key)
		if err != nil {
			writeErr(w, log, err)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", contentTypeOf(key))
		_, _ = io.Copy(w, rc)
	})
}
