package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"mp4grab/internal/config"
	"mp4grab/internal/models"
	"mp4grab/internal/progress"
	"mp4grab/internal/utils"
)

var (
	bold   = color.New(color.Bold).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	green  = color.New(color.FgGreen, color.Bold).SprintFunc()
	red    = color.New(color.FgRed, color.Bold).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
)

func cmdInfo(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "Show video details and the available formats",
		ArgsUsage: "<url>",
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := setup(cfg, c); err != nil {
				return err
			}
			url := c.Args().First()
			if url == "" {
				return goerr.New("url argument is required")
			}

			s, err := newSession(ctx, cfg, progress.NewMirror(), nil)
			if err != nil {
				return err
			}
			defer s.Close()

			meta, formats, err := s.downloader.Info(ctx, url)
			if err != nil {
				fmt.Fprintln(os.Stderr, red("Failed to fetch video info:"), err)
				return err
			}
			return printInfo(os.Stdout, meta, formats)
		},
	}
}

func printInfo(w io.Writer, meta *models.VideoMetadata, formats []models.FormatOption) error {
	title := meta.Title
	if title == "" {
		title = "Unknown"
	}
	uploader := meta.Uploader
	if uploader == "" {
		uploader = "Unknown"
	}
	views := "Unknown"
	if meta.ViewCount > 0 {
		views = fmt.Sprintf("%d", meta.ViewCount)
	}

	fmt.Fprintf(w, "%s %s\n", bold("Title:"), cyan(title))
	fmt.Fprintf(w, "%s %s\n", bold("Duration:"), utils.FormatTime(int(meta.Duration)))
	fmt.Fprintf(w, "%s %s\n", bold("Uploader:"), uploader)
	fmt.Fprintf(w, "%s %s\n", bold("Views:"), views)
	if meta.Thumbnail != "" {
		fmt.Fprintf(w, "%s %s\n", bold("Thumbnail:"), meta.Thumbnail)
	}
	fmt.Fprintln(w)

	if len(formats) == 0 {
		fmt.Fprintln(w, yellow("No MP4-compatible video formats up to 1080p found; 'best' will still be tried."))
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header("Quality", "Format", "Note", "Size")
	for _, f := range formats {
		if err := table.Append(f.Quality, f.Format, f.Note, f.Size); err != nil {
			return goerr.Wrap(err, "failed to add table row")
		}
	}
	if err := table.Render(); err != nil {
		return goerr.Wrap(err, "failed to render formats")
	}
	return nil
}
