package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/notes-bin/aigallery/internal/auth"
	"github.com/notes-bin/aigallery/internal/config"
	"github.com/notes-bin/aigallery/internal/gallery"
	"github.com/notes-bin/aigallery/internal/model"
	"github.com/notes-bin/aigallery/internal/processor"
	"github.com/notes-bin/aigallery/internal/records"
	"github.com/notes-bin/aigallery/internal/storage"
	"github.com/notes-bin/aigallery/internal/upload"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const tokenCookie = "aigallery_token"

// Deps are the services behind the HTTP API.
type Deps struct {
	Config    *config.Config
	Auth      *auth.Auth
	Records   records.Store
	Objects   storage.Store
	Files     *storage.Local // nil unless objects live on local disk
	Tracker   *upload.Tracker
	View      *gallery.View
	Processor *processor.Processor
}

type Handler struct {
	config    *config.Config
	auth      *auth.Auth
	records   records.Store
	files     *storage.Local
	tracker   *upload.Tracker
	view      *gallery.View
	thumbs    *gallery.Thumbnailer
	processor *processor.Processor
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		config:    d.Config,
		auth:      d.Auth,
		records:   d.Records,
		files:     d.Files,
		tracker:   d.Tracker,
		view:      d.View,
		thumbs:    gallery.NewThumbnailer(d.Objects),
		processor: d.Processor,
	}
}

func SetupRouter(d Deps) http.Handler {
	h := NewHandler(d)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)

	// 存储事件回调
	r.Route("/functions/v1/process-image", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"authorization", "x-client-info", "apikey", "content-type"},
		}))
		r.Use(h.WebhookAuth)
		r.Options("/", h.ProcessImageOptions)
		r.Post("/", h.ProcessImage)
	})

	limit := RateLimitMiddleware(d.Config.RateLimit.Requests, d.Config.RateLimit.Duration)

	// 公共路由
	r.Group(func(r chi.Router) {
		r.Use(limit)
		r.Get("/auth", h.LoginPage)
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)
	})

	// 需要认证的 API
	r.Group(func(r chi.Router) {
		r.Use(limit)
		r.Use(h.AuthMiddleware(unauthorizedJSON))
		r.Post("/auth/logout", h.Logout)
		r.Post("/api/images", h.UploadImage)
		r.Get("/api/images", h.ListImages)
		r.Get("/api/images/lookup", h.LookupImage)
		r.Get("/api/uploads/{id}", h.UploadStatus)
		r.Get("/api/uploads/{id}/events", h.UploadEvents)
	})

	// 页面
	r.Group(func(r chi.Router) {
		r.Use(h.AuthMiddleware(redirectToLogin))
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/gallery", http.StatusFound)
		})
		r.Get("/gallery", h.Gallery)
		r.Get("/gallery/{id}", h.GalleryDetail)
		r.Get("/thumbnails/*", h.Thumbnail)
	})

	// 本地存储的公开地址
	if h.files != nil {
		r.Get("/objects/*", h.Object)
	}

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// readCredentials accepts a JSON body or a submitted login form.
func readCredentials(r *http.Request) (credentials, bool, error) {
	var c credentials
	if isForm(r) {
		if err := r.ParseForm(); err != nil {
			return c, true, err
		}
		c.Username = r.PostForm.Get("username")
		c.Password = r.PostForm.Get("password")
		return c, true, nil
	}
	err := json.NewDecoder(r.Body).Decode(&c)
	return c, false, err
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	req, form, err := readCredentials(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	user, err := h.auth.Register(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrEmptyCredentials):
		h.authFailed(w, form, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, auth.ErrUserExists):
		h.authFailed(w, form, http.StatusConflict, "Username already exists")
		return
	case err != nil:
		slog.Error("Failed to register", "username", req.Username, "error", err)
		h.authFailed(w, form, http.StatusInternalServerError, "Failed to register")
		return
	}

	if form {
		h.Login(w, r)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"message": "User registered", "user_id": user.ID})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	req, form, err := readCredentials(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	token, err := h.auth.Login(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.authFailed(w, form, http.StatusUnauthorized, "Invalid credentials")
		return
	case err != nil:
		slog.Error("Failed to login", "username", req.Username, "error", err)
		h.authFailed(w, form, http.StatusInternalServerError, "Failed to login")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.config.SessionTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	if form {
		http.Redirect(w, r, "/gallery", http.StatusSeeOther)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.SessionFromContext(r.Context())
	if err := h.auth.Logout(r.Context(), sess); err != nil {
		slog.Error("Failed to revoke session", "user_id", sess.UserID, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to logout")
		return
	}
	h.view.Forget(sess.UserID)

	http.SetCookie(w, &http.Cookie{Name: tokenCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	if isForm(r) {
		http.Redirect(w, r, "/auth", http.StatusSeeOther)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	renderPage(w, http.StatusOK, func(w io.Writer) error { return gallery.RenderLogin(w, "") })
}

func (h *Handler) authFailed(w http.ResponseWriter, form bool, status int, message string) {
	if !form {
		respondError(w, status, message)
		return
	}
	renderPage(w, status, func(w io.Writer) error { return gallery.RenderLogin(w, message) })
}

func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.SessionFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadSize)
	if err := r.ParseMultipartForm(h.config.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid file")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid file")
		return
	}

	st, err := h.tracker.Start(r.Context(), sess.UserID, upload.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	switch {
	case errors.Is(err, upload.ErrNotImage):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		slog.Error("Failed to upload image", "user_id", sess.UserID, "file", header.Filename, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to upload image")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"upload_id": st.ID,
		"file_path": st.FilePath,
		"state":     string(st.State),
		"message":   st.Message,
	})
}

func (h *Handler) ListImages(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.SessionFromContext(r.Context())
	items, err := h.view.List(r.Context(), sess.UserID)
	if err != nil {
		slog.Error("Failed to list images", "user_id", sess.UserID, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to list images")
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (h *Handler) LookupImage(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.SessionFromContext(r.Context())
	p := r.URL.Query().Get("path")
	if p == "" {
		respondError(w, http.StatusBadRequest, "Missing path")
		return
	}
	if model.OwnerFromPath(p) != sess.UserID {
		respondError(w, http.StatusNotFound, "Image not found")
		return
	}

	img, err := h.records.FindByPath(r.Context(), p)
	if errors.Is(err, records.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Image not found")
		return
	}
	if err != nil {
		slog.Error("Failed to look up image", "path", p, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to look up image")
		return
	}
	img.Embedding = nil
	respondJSON(w, http.StatusOK, img)
}

func (h *Handler) UploadStatus(w http.ResponseWriter, r *http.Request) {
	st, ok := h.ownedUpload(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (h *Handler) UploadEvents(w http.ResponseWriter, r *http.Request) {
	st, ok := h.ownedUpload(w, r)
	if !ok {
		return
	}
	h.tracker.Events().ServeSSE(w, r, st.ID, func() *model.UploadStatus {
		latest, err := h.tracker.Status(r.Context(), st.ID)
		if err != nil || latest == nil {
			return st
		}
		return latest
	})
}

func (h *Handler) ownedUpload(w http.ResponseWriter, r *http.Request) (*model.UploadStatus, bool) {
	sess, _ := auth.SessionFromContext(r.Context())
	id := chi.URLParam(r, "id")
	st, err := h.tracker.Status(r.Context(), id)
	if err != nil {
		slog.Error("Failed to read upload status", "upload_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to read upload status")
		return nil, false
	}
	if st == nil || st.UserID != sess.UserID {
		respondError(w, http.StatusNotFound, "Upload not found")
		return nil, false
	}
	return st, true
}

func isForm(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")
}

func respondError(w http.ResponseWriter, status int, message string) {
	slog.Error("Request failed", "status", status, "message", message)
	respondJSON(w, status, map[string]string{"error": message})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
