package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"mp4grab/internal/catalog"
	"mp4grab/internal/download"
	"mp4grab/internal/models"
	"mp4grab/internal/progress"
	"mp4grab/internal/storage"
	"mp4grab/internal/websocket"
)

type infoResponse struct {
	Metadata  *models.VideoMetadata `json:"metadata"`
	Formats   []models.FormatOption `json:"formats"`
	Qualities []string              `json:"qualities"`
}

func HealthHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "mp4grab",
			"version": version,
		})
	}
}

func InfoHandler(d *download.Downloader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, errors.New("invalid json"), http.StatusBadRequest)
			return
		}

		meta, formats, err := d.Info(r.Context(), req.URL)
		if errors.Is(err, download.ErrEmptyURL) {
			writeError(w, err, http.StatusBadRequest)
			return
		}
		if err != nil {
			slog.Error("Failed to fetch video info", "url", req.URL, "error", err)
			writeError(w, err, http.StatusBadGateway)
			return
		}

		writeJSON(w, http.StatusOK, infoResponse{
			Metadata:  meta,
			Formats:   formats,
			Qualities: catalog.Qualities(formats),
		})
	}
}

func FormatsHandler(d *download.Downloader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meta, formats, err := d.Formats()
		if err != nil {
			writeError(w, err, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, infoResponse{
			Metadata:  meta,
			Formats:   formats,
			Qualities: catalog.Qualities(formats),
		})
	}
}

func StartDownloadHandler(d *download.Downloader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URL     string `json:"url"`
			Quality string `json:"quality"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, errors.New("invalid json"), http.StatusBadRequest)
			return
		}

		job, err := d.Start(r.Context(), req.URL, req.Quality)
		switch {
		case errors.Is(err, download.ErrBusy):
			writeError(w, err, http.StatusConflict)
			return
		case errors.Is(err, download.ErrEmptyURL), errors.Is(err, catalog.ErrInvalidQuality):
			writeError(w, err, http.StatusBadRequest)
			return
		case err != nil:
			slog.Error("Failed to start download", "error", err)
			writeError(w, err, http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]models.Job{"job": job})
	}
}

func JobHandler(d *download.Downloader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := d.Job()
		if !ok {
			writeError(w, errors.New("no download yet"), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"job": job, "running": d.Running()})
	}
}

func CancelDownloadHandler(d *download.Downloader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.Cancel(); err != nil {
			writeError(w, err, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	}
}

func ProgressHandler(mirror *progress.Mirror) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, websocket.NewProgressUpdate(mirror.Snapshot()))
	}
}

func FileHandler(d *download.Downloader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, ok := d.LastFile()
		if !ok {
			writeError(w, errors.New("no downloaded file available"), http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
			"filename": filepath.Base(path),
		}))
		http.ServeFile(w, r, path)
	}
}

func HistoryHandler(history storage.History) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := history.List()
		if err != nil {
			slog.Error("Failed to list history", "error", err)
			writeError(w, err, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string][]models.HistoryItem{"items": items})
	}
}

func DeleteHistoryItemHandler(history storage.History, hub *websocket.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			writeError(w, errors.New("id is required"), http.StatusBadRequest)
			return
		}

		deleted, err := history.Remove(id)
		if err != nil {
			slog.Error("Failed to remove history item", "id", id, "error", err)
			writeError(w, err, http.StatusInternalServerError)
			return
		}
		if !deleted {
			writeError(w, errors.New("item not found"), http.StatusNotFound)
			return
		}

		hub.BroadcastUpdate()
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func ClearHistoryHandler(history storage.History, hub *websocket.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := history.Clear(); err != nil {
			slog.Error("Failed to clear history", "error", err)
			writeError(w, err, http.StatusInternalServerError)
			return
		}

		hub.BroadcastUpdate()
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	}
}
