package main

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/fatih/color"
	"github.com/m-mizutani/gt"

	"mp4grab/internal/models"
)

func init() {
	color.NoColor = true
}

func TestPrintInfo(t *testing.T) {
	var buf bytes.Buffer
	meta := &models.VideoMetadata{Title: "Sample Clip", Duration: 212, Uploader: "Someone", ViewCount: 42}
	formats := []models.FormatOption{
		{Quality: "1080p", Format: "MP4", Note: "1080p", Size: " (12 MB)", Height: 1080},
		{Quality: "720p", Format: "WEBM", Note: "720p", Height: 720},
	}

	gt.NoError(t, printInfo(&buf, meta, formats))
	out := buf.String()
	gt.String(t, out).Contains("Title: Sample Clip")
	gt.String(t, out).Contains("Duration: 03:32")
	gt.String(t, out).Contains("Views: 42")
	gt.String(t, out).Contains("1080p")
	gt.String(t, out).Contains("WEBM")
}

func TestPrintInfo_NoFormats(t *testing.T) {
	var buf bytes.Buffer
	gt.NoError(t, printInfo(&buf, &models.VideoMetadata{}, nil))
	gt.String(t, buf.String()).Contains("Title: Unknown")
	gt.String(t, buf.String()).Contains("No MP4-compatible video formats")
}

func TestPrintProgress(t *testing.T) {
	var buf bytes.Buffer
	printProgress(&buf, models.ProgressState{
		Status:          models.StatusDownloading,
		DownloadedBytes: 1536,
		TotalBytes:      3072,
		Percentage:      50,
		ETA:             65,
	})
	out := buf.String()
	gt.String(t, out).Contains(" 50.0%")
	gt.String(t, out).Contains("1.5 KB / 3.0 KB")
	gt.String(t, out).Contains("Calculating...")
	gt.String(t, out).Contains("ETA 01:05")

	buf.Reset()
	printProgress(&buf, models.ProgressState{Status: models.StatusError, Error: "HTTP Error 403"})
	gt.String(t, buf.String()).Contains("Error: HTTP Error 403")
}

type stubCanceler struct {
	err   error
	calls int
}

func (s *stubCanceler) Cancel() error {
	s.calls++
	return s.err
}

func TestCancelDownload(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	running := &stubCanceler{}
	cancelDownload(running)
	gt.Equal(t, running.calls, 1)
	gt.Equal(t, buf.String(), "")

	idle := &stubCanceler{err: errors.New("no download in progress")}
	cancelDownload(idle)
	gt.Equal(t, idle.calls, 1)
	gt.String(t, buf.String()).Contains("Cancel ignored")
	gt.String(t, buf.String()).Contains("no download in progress")
}
