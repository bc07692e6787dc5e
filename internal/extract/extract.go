// Package extract talks to the video extraction tooling. Nothing in here
// parses media or speaks a streaming protocol; it configures the extractor,
// decodes what it reports and forwards progress.
package extract

import (
	"context"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"

	"mp4grab/internal/models"
)

// Resolver fetches metadata for a single video without downloading media.
type Resolver interface {
	Resolve(ctx context.Context, url string) (*models.VideoMetadata, error)
}

// ProgressFunc receives every progress event of a running download.
type ProgressFunc func(models.ProgressEvent)

// Request describes one download: which video, which streams, where to.
type Request struct {
	URL       string
	Selector  string
	OutputDir string
}

// Fetcher downloads a video, merges and converts it to a single MP4 file.
type Fetcher interface {
	Download(ctx context.Context, req Request, onProgress ProgressFunc) (*models.DownloadResult, error)
}

// DecodeMetadata parses the extractor's single-video JSON document.
func DecodeMetadata(data []byte) (*models.VideoMetadata, error) {
	var meta models.VideoMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, goerr.Wrap(err, "failed to decode video metadata", goerr.V("size", len(data)))
	}
	if meta.Formats == nil {
		meta.Formats = []models.RawFormat{}
	}
	return &meta, nil
}
