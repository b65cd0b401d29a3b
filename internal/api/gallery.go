package api

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path"
	"time"

	"github.com/notes-bin/aigallery/internal/auth"
	"github.com/notes-bin/aigallery/internal/gallery"
	"github.com/notes-bin/aigallery/internal/model"
	"github.com/notes-bin/aigallery/internal/storage"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) Gallery(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.SessionFromContext(r.Context())
	items, err := h.view.List(r.Context(), sess.UserID)
	if err != nil {
		slog.Error("Failed to list images", "user_id", sess.UserID, "error", err)
		http.Error(w, "Failed to load gallery", http.StatusInternalServerError)
		return
	}
	renderPage(w, http.StatusOK, func(w io.Writer) error { return gallery.RenderGrid(w, items) })
}

func (h *Handler) GalleryDetail(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.SessionFromContext(r.Context())
	item, err := h.view.Get(r.Context(), sess.UserID, chi.URLParam(r, "id"))
	switch {
	case gallery.IsNotFound(err), errors.Is(err, gallery.ErrForbidden):
		http.NotFound(w, r)
		return
	case err != nil:
		slog.Error("Failed to load image", "user_id", sess.UserID, "error", err)
		http.Error(w, "Failed to load image", http.StatusInternalServerError)
		return
	}
	renderPage(w, http.StatusOK, func(w io.Writer) error { return gallery.RenderDetail(w, item) })
}

func (h *Handler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.SessionFromContext(r.Context())
	p := chi.URLParam(r, "*")
	if model.OwnerFromPath(p) != sess.UserID {
		http.NotFound(w, r)
		return
	}

	data, err := h.thumbs.Render(r.Context(), p)
	if errors.Is(err, storage.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		slog.Error("Failed to render thumbnail", "path", p, "error", err)
		http.Error(w, "Failed to render thumbnail", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.Write(data)
}

// Object serves raw bytes of the local backend at its public URL.
func (h *Handler) Object(w http.ResponseWriter, r *http.Request) {
	p := chi.URLParam(r, "*")
	f, err := h.files.Open(p)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	http.ServeContent(w, r, path.Base(p), time.Time{}, f)
}

func renderPage(w http.ResponseWriter, status int, render func(io.Writer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		slog.Error("Failed to render page", "error", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
