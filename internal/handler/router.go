package handler

import (
	"embed"
	"encoding/json"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"mp4grab/internal/download"
	"mp4grab/internal/storage"
	"mp4grab/internal/websocket"
)

//go:embed static
var static embed.FS

// NewRouter wires every HTTP and websocket route of the web UI.
func NewRouter(d *download.Downloader, history storage.History, hub *websocket.Hub, version string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/", IndexHandler())
	r.Get("/health", HealthHandler(version))
	r.Get("/ws", hub.WsHandler)

	r.Route("/api", func(r chi.Router) {
		r.Post("/info", InfoHandler(d))
		r.Get("/formats", FormatsHandler(d))
		r.Get("/download", JobHandler(d))
		r.Post("/download", StartDownloadHandler(d))
		r.Delete("/download", CancelDownloadHandler(d))
		r.Get("/progress", ProgressHandler(d.Mirror()))
		r.Get("/file", FileHandler(d))
		r.Get("/history", HistoryHandler(history))
		r.Delete("/history", ClearHistoryHandler(history, hub))
		r.Delete("/history/{id}", DeleteHistoryItemHandler(history, hub))
	})

	return r
}

func IndexHandler() http.HandlerFunc {
	page, err := fs.ReadFile(static, "static/index.html")
	if err != nil {
		panic(err)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(page)
	}
}

// LoggingMiddleware logs one line per request once it has been served.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			level := slog.LevelInfo
			if r.URL.Path == "/health" || r.URL.Path == "/api/progress" {
				level = slog.LevelDebug
			}
			slog.Log(r.Context(), level, "HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error, status int) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
