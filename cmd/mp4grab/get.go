package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"mp4grab/internal/config"
	"mp4grab/internal/models"
	"mp4grab/internal/progress"
	"mp4grab/internal/utils"
)

func cmdGet(cfg *config.Config) *cli.Command {
	var quality string

	return &cli.Command{
		Name:      "get",
		Usage:     "Download a video as MP4 in the terminal",
		ArgsUsage: "<url>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "quality",
				Aliases:     []string{"q"},
				Usage:       "best or <height>p, e.g. 720p",
				Value:       "best",
				Destination: &quality,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := setup(cfg, c); err != nil {
				return err
			}
			url := c.Args().First()
			if url == "" {
				return goerr.New("url argument is required")
			}

			mirror := progress.NewMirror()
			s, err := newSession(ctx, cfg, mirror, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			sub := mirror.Subscribe()
			defer sub.Close()

			if _, err := s.downloader.Start(ctx, url, quality); err != nil {
				return err
			}

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			done := s.downloader.Done()
			for {
				select {
				case st := <-sub.C:
					printProgress(os.Stdout, st)
				case <-quit:
					cancelDownload(s.downloader)
					quit = nil
				case <-done:
					printProgress(os.Stdout, mirror.Snapshot())
					fmt.Fprintln(os.Stdout)
					job, _ := s.downloader.Job()
					if job.Error != "" {
						fmt.Fprintln(os.Stderr, red("Download failed:"), job.Error)
						return goerr.New("download failed", goerr.V("error", job.Error))
					}
					fmt.Fprintln(os.Stdout, green("Video downloaded successfully:"), job.Path)
					return nil
				}
			}
		},
	}
}

type canceler interface {
	Cancel() error
}

// cancelDownload stops the running download on interrupt. The download may
// already have ended, so a failure is only worth a debug line.
func cancelDownload(d canceler) {
	if err := d.Cancel(); err != nil {
		slog.Debug("Cancel ignored", "error", err)
	}
}

// printProgress redraws one status line in place.
func printProgress(w io.Writer, st models.ProgressState) {
	switch st.Status {
	case models.StatusIdle:
		fmt.Fprintf(w, "\r%-80s", "Starting...")
	case models.StatusError:
		fmt.Fprintf(w, "\r%-80s", red("Error: ")+st.Error)
	default:
		line := fmt.Sprintf("%5.1f%%  %s / %s  %s  ETA %s",
			st.Percentage,
			utils.FormatBytes(float64(st.DownloadedBytes)),
			utils.FormatBytes(float64(st.TotalBytes)),
			utils.FormatSpeed(st.Speed),
			utils.FormatTime(st.ETA),
		)
		fmt.Fprintf(w, "\r%-80s", line)
	}
}
