package extract

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/m-mizutani/goerr/v2"

	"mp4grab/internal/catalog"
	"mp4grab/internal/models"
)

const (
	progressInterval = 500 * time.Millisecond
	outputTemplate   = "%(title)s.%(ext)s"
	containerMP4     = "mp4"

	// printed once the file reached its final location, including skipped downloads
	finalPathTemplate = "after_move:filepath"
)

// intermediate stream files are named "<title>.f<format id>.<ext>" before merging
var formatSuffix = regexp.MustCompile(`\.f(?:\d|hls-|dash-|http-)[\w-]*\.[A-Za-z0-9]+$`)

// YTDLP drives the yt-dlp executable through go-ytdlp.
type YTDLP struct {
	executable string
}

func NewYTDLP(executable string) *YTDLP {
	return &YTDLP{executable: executable}
}

// Install fetches a yt-dlp build when none was configured and remembers its path.
func (y *YTDLP) Install(ctx context.Context) error {
	if y.executable != "" {
		return nil
	}
	resolved, err := ytdlp.Install(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to install yt-dlp")
	}
	y.executable = resolved.Executable
	slog.Info("yt-dlp ready", "executable", resolved.Executable, "version", resolved.Version)
	return nil
}

func (y *YTDLP) command() *ytdlp.Command {
	cmd := ytdlp.New().
		Quiet().
		NoWarnings().
		NoPlaylist()
	if y.executable != "" {
		cmd.SetExecutable(y.executable)
	}
	return cmd
}

func (y *YTDLP) Resolve(ctx context.Context, url string) (*models.VideoMetadata, error) {
	res, err := y.command().
		SkipDownload().
		DumpSingleJSON().
		Run(ctx, url)
	if err != nil {
		return nil, goerr.Wrap(err, "yt-dlp metadata lookup failed", goerr.V("url", url))
	}
	return DecodeMetadata([]byte(res.Stdout))
}

func (y *YTDLP) Download(ctx context.Context, req Request, onProgress ProgressFunc) (*models.DownloadResult, error) {
	var (
		lastFile string
		lastInfo *ytdlp.ExtractedInfo
	)
	rates := newRateTracker(time.Now)

	cmd := y.command().
		Format(req.Selector).
		MergeOutputFormat(containerMP4).
		RecodeVideo(containerMP4).
		Output(filepath.Join(req.OutputDir, outputTemplate)).
		Print(finalPathTemplate).
		NoSimulate().
		ProgressFunc(progressInterval, func(update ytdlp.ProgressUpdate) {
			if update.Filename != "" {
				lastFile = update.Filename
			}
			if update.Info != nil {
				lastInfo = update.Info
			}
			if onProgress != nil {
				onProgress(rates.event(update))
			}
		})

	res, err := cmd.Run(ctx, req.URL)
	if err != nil {
		return nil, goerr.Wrap(err, "yt-dlp download failed", goerr.V("url", req.URL), goerr.V("selector", req.Selector))
	}

	result := &models.DownloadResult{Path: printedPath(res.Stdout)}
	if result.Path == "" {
		result.Path = finalPath(lastFile)
		slog.Debug("yt-dlp printed no final path, using progress filename", "path", result.Path)
	}
	if lastInfo != nil {
		if meta, err := infoToMetadata(lastInfo); err == nil {
			result.Metadata = meta
		} else {
			slog.Warn("Could not decode download metadata", "error", err)
		}
	}
	if result.Path != "" {
		if _, err := os.Stat(result.Path); err != nil {
			slog.Warn("Downloaded file not found at expected path", "path", result.Path, "error", err)
		}
	}
	return result, nil
}

// printedPath returns the last path yt-dlp printed on stdout.
func printedPath(stdout string) string {
	lines := strings.Split(stdout, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "progress:") {
			continue
		}
		return line
	}
	return ""
}

func toEvent(update ytdlp.ProgressUpdate) models.ProgressEvent {
	ev := models.ProgressEvent{
		Status:          string(update.Status),
		DownloadedBytes: int64(update.DownloadedBytes),
		TotalBytes:      int64(update.TotalBytes),
		Filename:        update.Filename,
	}
	if eta := update.ETA(); eta > 0 {
		ev.ETA = int(eta.Seconds())
	}
	if !update.Started.IsZero() {
		if elapsed := time.Since(update.Started).Seconds(); elapsed > 0 {
			ev.Speed = float64(update.DownloadedBytes) / elapsed
		}
	}
	return ev
}

type rateSample struct {
	at    time.Time
	bytes int
}

// rateTracker turns consecutive progress updates of one stream into the
// current speed and the ETA at that speed.
type rateTracker struct {
	now  func() time.Time
	last map[string]rateSample
}

func newRateTracker(now func() time.Time) *rateTracker {
	return &rateTracker{now: now, last: make(map[string]rateSample)}
}

func (r *rateTracker) event(update ytdlp.ProgressUpdate) models.ProgressEvent {
	ev := toEvent(update)
	at := r.now()
	prev, ok := r.last[update.Filename]
	r.last[update.Filename] = rateSample{at: at, bytes: update.DownloadedBytes}
	if !ok || update.DownloadedBytes < prev.bytes {
		return ev
	}

	elapsed := at.Sub(prev.at).Seconds()
	if elapsed <= 0 {
		return ev
	}
	ev.Speed = float64(update.DownloadedBytes-prev.bytes) / elapsed
	if ev.Speed > 0 && update.TotalBytes > update.DownloadedBytes {
		ev.ETA = int(float64(update.TotalBytes-update.DownloadedBytes) / ev.Speed)
	}
	return ev
}

// finalPath maps the last file yt-dlp reported to the merged MP4 it leaves behind.
func finalPath(name string) string {
	if name == "" {
		return ""
	}
	if loc := formatSuffix.FindStringIndex(name); loc != nil {
		name = name[:loc[0]] + "." + containerMP4
	}
	return catalog.NormalizeExt(name)
}

func infoToMetadata(info *ytdlp.ExtractedInfo) (*models.VideoMetadata, error) {
	raw, err := json.Marshal(info)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode extracted info")
	}
	return DecodeMetadata(raw)
}
