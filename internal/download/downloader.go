package download

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"mp4grab/internal/catalog"
	"mp4grab/internal/extract"
	"mp4grab/internal/models"
	"mp4grab/internal/progress"
	"mp4grab/internal/storage"
	"mp4grab/internal/utils"
)

const DefaultResolveTimeout = 60 * time.Second

var (
	ErrBusy       = goerr.New("download already in progress")
	ErrIdle       = goerr.New("no download in progress")
	ErrEmptyURL   = goerr.New("url is required")
	ErrNoMetadata = goerr.New("no video info loaded")
	ErrNoOutput   = goerr.New("downloader reported no output file")
)

// Notifier is told whenever the job or the history changed.
type Notifier interface {
	BroadcastUpdate()
}

// Downloader is the single shared session: the last resolved video, the
// progress mirror and the current (or last) download job.
type Downloader struct {
	resolver       extract.Resolver
	fetcher        extract.Fetcher
	mirror         *progress.Mirror
	history        storage.History
	notify         Notifier
	downloadDir    string
	resolveTimeout time.Duration

	mu       sync.Mutex
	job      *models.Job
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	infoURL  string
	infoMeta *models.VideoMetadata
}

func New(resolver extract.Resolver, fetcher extract.Fetcher, mirror *progress.Mirror, history storage.History, notify Notifier, downloadDir string) *Downloader {
	if err := os.MkdirAll(downloadDir, os.ModePerm); err != nil {
		slog.Warn("Could not create download dir", "dir", downloadDir, "error", err)
	}
	done := make(chan struct{})
	close(done)
	return &Downloader{
		resolver:       resolver,
		fetcher:        fetcher,
		mirror:         mirror,
		history:        history,
		notify:         notify,
		downloadDir:    downloadDir,
		resolveTimeout: DefaultResolveTimeout,
		done:           done,
	}
}

func (d *Downloader) SetResolveTimeout(timeout time.Duration) {
	if timeout > 0 {
		d.resolveTimeout = timeout
	}
}

func (d *Downloader) Mirror() *progress.Mirror {
	return d.mirror
}

// Info resolves url and keeps the result as the session's current video.
func (d *Downloader) Info(ctx context.Context, url string) (*models.VideoMetadata, []models.FormatOption, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, nil, ErrEmptyURL
	}

	ctx, cancel := context.WithTimeout(ctx, d.resolveTimeout)
	defer cancel()

	slog.Info("Fetching video info", "url", url)
	meta, err := d.resolver.Resolve(ctx, url)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to fetch video info", goerr.V("url", url))
	}

	d.mu.Lock()
	d.infoURL = url
	d.infoMeta = meta
	d.mu.Unlock()

	formats := catalog.BuildFormats(meta.Formats)
	slog.Info("Video info loaded", "title", meta.Title, "formats", len(formats))
	return meta, formats, nil
}

// Formats returns the catalog of the last resolved video.
func (d *Downloader) Formats() (*models.VideoMetadata, []models.FormatOption, error) {
	d.mu.Lock()
	meta := d.infoMeta
	d.mu.Unlock()
	if meta == nil {
		return nil, nil, ErrNoMetadata
	}
	return meta, catalog.BuildFormats(meta.Formats), nil
}

// Start validates the request and launches the download in the background.
// Only one download runs at a time; a second Start gets ErrBusy.
func (d *Downloader) Start(ctx context.Context, url, quality string) (models.Job, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return models.Job{}, ErrEmptyURL
	}
	if quality == "" {
		quality = catalog.Best
	}
	selector, err := catalog.Selector(quality)
	if err != nil {
		return models.Job{}, err
	}

	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return models.Job{}, ErrBusy
	}

	job := &models.Job{
		Id:        uuid.NewString(),
		URL:       url,
		Quality:   quality,
		StartedAt: time.Now(),
	}
	if d.infoMeta != nil && d.infoURL == url {
		job.Title = d.infoMeta.Title
		job.Metadata = d.infoMeta
	}

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.job = job
	d.running = true
	d.cancel = cancel
	d.done = make(chan struct{})
	d.mirror.Reset()

	req := extract.Request{URL: url, Selector: selector, OutputDir: d.downloadDir}
	done := d.done
	started := *job
	d.mu.Unlock()

	utils.Dispatch(jobCtx, func(_ context.Context) error {
		defer close(done)
		defer cancel()
		return d.run(jobCtx, started.Id, req)
	})

	slog.Info("Download started", "id", started.Id, "url", url, "quality", quality)
	d.notifyUpdate()
	return started, nil
}

func (d *Downloader) run(ctx context.Context, id string, req extract.Request) error {
	defer func() {
		d.mu.Lock()
		d.running = false
		d.cancel = nil
		d.mu.Unlock()
		d.notifyUpdate()
	}()

	res, err := d.fetcher.Download(ctx, req, func(ev models.ProgressEvent) {
		d.mirror.Apply(ev)
	})
	if err != nil {
		err = goerr.Wrap(err, "download failed", goerr.V("id", id), goerr.V("url", req.URL))
		msg := err.Error()
		if errors.Is(ctx.Err(), context.Canceled) {
			msg = "download cancelled"
		} else {
			sentry.CaptureException(err)
		}
		d.mirror.Fail(msg)
		d.finish(id, nil, msg)
		return err
	}

	if res == nil || res.Path == "" {
		err = goerr.Wrap(ErrNoOutput, "download failed", goerr.V("id", id), goerr.V("url", req.URL))
		sentry.CaptureException(err)
		d.mirror.Fail(err.Error())
		d.finish(id, nil, err.Error())
		return err
	}

	// the extractor reports "finished" per stream; the merged file is done only now
	d.mirror.Apply(models.ProgressEvent{Status: string(models.StatusFinished), Filename: res.Path})
	d.finish(id, res, "")
	slog.Info("Download complete", "id", id, "path", res.Path)
	return nil
}

// finish closes the job record and appends it to the history.
func (d *Downloader) finish(id string, res *models.DownloadResult, errMsg string) {
	d.mu.Lock()
	job := d.job
	if job == nil || job.Id != id {
		d.mu.Unlock()
		return
	}
	job.FinishedAt = time.Now()
	job.Error = errMsg
	if res != nil {
		job.Path = res.Path
		if res.Metadata != nil {
			job.Metadata = res.Metadata
			if res.Metadata.Title != "" {
				job.Title = res.Metadata.Title
			}
		}
	}
	item := models.HistoryItem{
		Id:      job.Id,
		URL:     job.URL,
		Title:   job.Title,
		Quality: job.Quality,
		Path:    job.Path,
		Status:  models.HistoryCompleted,
		Error:   errMsg,
		AddedAt: job.FinishedAt.Format(time.RFC3339),
	}
	d.mu.Unlock()

	if errMsg != "" {
		item.Status = models.HistoryFailed
	} else if info, err := os.Stat(item.Path); err == nil {
		item.Size = info.Size()
	}

	if d.history == nil {
		return
	}
	if err := d.history.Add(item); err != nil {
		slog.Error("Failed to record download", "id", id, "error", err)
	}
}

// Cancel stops the running download. The job ends as failed.
func (d *Downloader) Cancel() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running || d.cancel == nil {
		return ErrIdle
	}
	slog.Info("Cancelling download", "id", d.job.Id)
	d.cancel()
	return nil
}

// Job returns the current or last job.
func (d *Downloader) Job() (models.Job, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.job == nil {
		return models.Job{}, false
	}
	return *d.job, true
}

func (d *Downloader) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Done is closed when the current job has finished.
func (d *Downloader) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// LastFile returns the path of the last successfully downloaded file.
func (d *Downloader) LastFile() (string, bool) {
	d.mu.Lock()
	if d.job == nil || d.running {
		d.mu.Unlock()
		return "", false
	}
	job := *d.job
	d.mu.Unlock()

	if job.Error != "" || job.Path == "" {
		return "", false
	}
	if _, err := os.Stat(job.Path); err != nil {
		return "", false
	}
	return job.Path, true
}

// Shutdown cancels a running download and waits for it to wind down.
func (d *Downloader) Shutdown(ctx context.Context) error {
	if err := d.Cancel(); err != nil && !errors.Is(err, ErrIdle) {
		return err
	}
	select {
	case <-d.Done():
		return nil
	case <-ctx.Done():
		return goerr.Wrap(ctx.Err(), "download did not stop in time")
	}
}

func (d *Downloader) notifyUpdate() {
	if d.notify != nil {
		d.notify.BroadcastUpdate()
	}
}
