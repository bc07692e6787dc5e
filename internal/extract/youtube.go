package extract

import (
	"context"
	"mime"
	"strconv"
	"strings"

	"github.com/kkdai/youtube/v2"
	"github.com/m-mizutani/goerr/v2"

	"mp4grab/internal/models"
)

// YouTube resolves metadata natively for YouTube URLs without spawning yt-dlp.
// It cannot download; pair it with YTDLP for that.
type YouTube struct {
	client *youtube.Client
}

func NewYouTube() *YouTube {
	return &YouTube{client: &youtube.Client{}}
}

func (y *YouTube) Resolve(ctx context.Context, url string) (*models.VideoMetadata, error) {
	video, err := y.client.GetVideoContext(ctx, url)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get video info", goerr.V("url", url))
	}

	meta := &models.VideoMetadata{
		ID:         video.ID,
		Title:      video.Title,
		Duration:   video.Duration.Seconds(),
		Uploader:   video.Author,
		ViewCount:  int64(video.Views),
		WebpageURL: url,
		Formats:    make([]models.RawFormat, 0, len(video.Formats)),
	}

	var widest uint
	for _, th := range video.Thumbnails {
		if th.Width >= widest {
			widest = th.Width
			meta.Thumbnail = th.URL
		}
	}

	for _, f := range video.Formats {
		meta.Formats = append(meta.Formats, convertFormat(f))
	}
	return meta, nil
}

func convertFormat(f youtube.Format) models.RawFormat {
	raw := models.RawFormat{
		FormatID:   strconv.Itoa(f.ItagNo),
		FormatNote: f.QualityLabel,
	}

	mediaType, params, err := mime.ParseMediaType(f.MimeType)
	if err == nil {
		kind, ext, _ := strings.Cut(mediaType, "/")
		raw.Ext = ext
		codec := "none"
		if kind == "video" {
			codec, _, _ = strings.Cut(params["codecs"], ",")
			codec = strings.TrimSpace(codec)
		}
		raw.VCodec = &codec
	}

	if f.Height > 0 {
		h := f.Height
		raw.Height = &h
	}
	if f.ContentLength > 0 {
		size := f.ContentLength
		raw.Filesize = &size
	}
	return raw
}
