package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"mp4grab/internal/config"
	"mp4grab/internal/download"
	"mp4grab/internal/extract"
	"mp4grab/internal/progress"
	"mp4grab/internal/storage"
	"mp4grab/internal/utils"
)

var version = "dev"

func main() {
	if err := run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	var cfg config.Config

	app := &cli.Command{
		Name:    "mp4grab",
		Usage:   "Download videos as MP4 with live progress",
		Version: version,
		Flags:   cfg.Flags(),
		Action:  serveAction(&cfg),
		After: func(ctx context.Context, c *cli.Command) error {
			sentry.Flush(2 * time.Second)
			return nil
		},
		Commands: []*cli.Command{
			cmdServe(&cfg),
			cmdInfo(&cfg),
			cmdGet(&cfg),
		},
	}

	return app.Run(ctx, args)
}

// setup finishes the configuration once all flags are parsed: config file,
// logger and optional Sentry client.
func setup(cfg *config.Config, c *cli.Command) error {
	if err := cfg.LoadFile(c.IsSet); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)
	slog.Debug("Configuration loaded", "config", *cfg)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:     cfg.SentryDSN,
			Release: "mp4grab@" + version,
		}); err != nil {
			return goerr.Wrap(err, "failed to init sentry")
		}
	}
	return nil
}

// session holds the components shared by every command.
type session struct {
	mirror     *progress.Mirror
	history    storage.History
	downloader *download.Downloader
}

func newSession(ctx context.Context, cfg *config.Config, mirror *progress.Mirror, notify download.Notifier) (*session, error) {
	yt := extract.NewYTDLP(cfg.YTDLPPath)
	if cfg.InstallYTDLP {
		if err := yt.Install(ctx); err != nil {
			return nil, err
		}
	}

	var resolver extract.Resolver = yt
	if cfg.Extractor == config.ExtractorYouTube {
		resolver = extract.NewYouTube()
	}
	client := &http.Client{Timeout: 15 * time.Second}
	resolver = extract.WithPreview(resolver, func(ctx context.Context, url string) (utils.PageInfo, error) {
		return utils.ExtractPageInfo(ctx, client, url)
	})

	history, err := storage.Open(cfg.History, cfg.DataDir)
	if err != nil {
		return nil, err
	}

	d := download.New(resolver, yt, mirror, history, notify, cfg.DownloadDir)
	d.SetResolveTimeout(cfg.ResolveTimeout)

	return &session{mirror: mirror, history: history, downloader: d}, nil
}

func (s *session) Close() {
	if err := s.history.Close(); err != nil {
		slog.Warn("Failed to close history", "error", err)
	}
}
