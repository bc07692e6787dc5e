package models

import "time"

type Status string

const (
	StatusIdle        Status = "idle"
	StatusDownloading Status = "downloading"
	StatusFinished    Status = "finished"
	StatusError       Status = "error"
)

// IsTerminal reports whether no further progress events are expected.
func (s Status) IsTerminal() bool {
	return s == StatusFinished || s == StatusError
}

// ProgressState is an immutable snapshot of the running download.
// The zero value is the idle state.
type ProgressState struct {
	DownloadedBytes int64   `json:"downloadedBytes"`
	TotalBytes      int64   `json:"totalBytes"`
	Speed           float64 `json:"speed"`
	ETA             int     `json:"eta"`
	Percentage      float64 `json:"percentage"`
	Status          Status  `json:"status"`
	Filename        string  `json:"filename,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// ProgressEvent is the payload the extractor reports on every progress tick.
type ProgressEvent struct {
	Status             string  `json:"status"`
	DownloadedBytes    int64   `json:"downloaded_bytes"`
	TotalBytes         int64   `json:"total_bytes"`
	TotalBytesEstimate int64   `json:"total_bytes_estimate"`
	Speed              float64 `json:"speed"`
	ETA                int     `json:"eta"`
	Filename           string  `json:"filename"`
	Error              string  `json:"error,omitempty"`
}

// RawFormat mirrors one entry of the extractor's format list. Every field is optional.
type RawFormat struct {
	FormatID   string  `json:"format_id,omitempty"`
	VCodec     *string `json:"vcodec,omitempty"`
	Height     *int    `json:"height,omitempty"`
	FormatNote string  `json:"format_note,omitempty"`
	Ext        string  `json:"ext,omitempty"`
	Filesize   *int64  `json:"filesize,omitempty"`
}

type VideoMetadata struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Duration   float64     `json:"duration"`
	Uploader   string      `json:"uploader"`
	ViewCount  int64       `json:"view_count"`
	Thumbnail  string      `json:"thumbnail"`
	WebpageURL string      `json:"webpage_url"`
	Formats    []RawFormat `json:"formats"`
}

type FormatOption struct {
	Quality string `json:"quality"`
	Format  string `json:"format"`
	Note    string `json:"note"`
	Size    string `json:"size"`
	Height  int    `json:"height"`
}

type Job struct {
	Id         string         `json:"id"`
	URL        string         `json:"url"`
	Quality    string         `json:"quality"`
	Title      string         `json:"title,omitempty"`
	Path       string         `json:"path,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt,omitzero"`
	Metadata   *VideoMetadata `json:"metadata,omitempty"`
}

// DownloadResult is what the extractor hands back after a successful download.
type DownloadResult struct {
	Path     string
	Metadata *VideoMetadata
}

type HistoryStatus string

const (
	HistoryCompleted HistoryStatus = "completed"
	HistoryFailed    HistoryStatus = "failed"
)

type HistoryItem struct {
	Id      string        `json:"id"`
	URL     string        `json:"url"`
	Title   string        `json:"title"`
	Quality string        `json:"quality"`
	Path    string        `json:"path,omitempty"`
	Size    int64         `json:"size"`
	Status  HistoryStatus `json:"status"`
	Error   string        `json:"error,omitempty"`
	AddedAt string        `json:"addedAt"`
}
