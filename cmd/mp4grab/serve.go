package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"mp4grab/internal/config"
	"mp4grab/internal/handler"
	"mp4grab/internal/progress"
	"mp4grab/internal/websocket"
)

const shutdownTimeout = 30 * time.Second

func cmdServe(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Run the web UI (default)",
		Action:  serveAction(cfg),
	}
}

func serveAction(cfg *config.Config) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		if err := setup(cfg, c); err != nil {
			return err
		}

		ctx, stop := context.WithCancel(ctx)
		defer stop()

		mirror := progress.NewMirror()
		hub := websocket.NewHub(mirror)
		go hub.Run(ctx)

		s, err := newSession(ctx, cfg, mirror, hub)
		if err != nil {
			return err
		}
		defer s.Close()

		server := &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           handler.NewRouter(s.downloader, s.history, hub, version),
			ReadHeaderTimeout: 15 * time.Second,
		}

		serverErr := make(chan error, 1)
		go func() {
			slog.Info("Server starting", "port", cfg.Port, "extractor", cfg.Extractor, "history", cfg.History)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case err := <-serverErr:
			return goerr.Wrap(err, "failed to start server", goerr.V("port", cfg.Port))
		case <-quit:
			slog.Info("Shutting down server...")
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.downloader.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Download did not stop cleanly", "error", err)
		}
		stop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server forced to shutdown", "error", err)
		}
		slog.Info("Server exited")
		return nil
	}
}
