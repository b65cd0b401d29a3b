package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/notes-bin/aigallery/internal/storage"
)

func (h *Handler) ProcessImageOptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// ProcessImage handles an object-created event from storage.
func (h *Handler) ProcessImage(w http.ResponseWriter, r *http.Request) {
	var ev storage.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		respondError(w, http.StatusInternalServerError, "invalid event payload: "+err.Error())
		return
	}

	slog.Info("Processing image", "path", ev.Record.Name, "bucket", ev.Record.BucketID)
	img, err := h.processor.Process(r.Context(), ev)
	if err != nil {
		slog.Error("Failed to process image", "path", ev.Record.Name, "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	img.Embedding = nil
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "data": img})
}
