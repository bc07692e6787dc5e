package extract

import (
	"context"
	"log/slog"

	"mp4grab/internal/models"
	"mp4grab/internal/utils"
)

// PageFunc loads the OpenGraph summary of a web page.
type PageFunc func(ctx context.Context, url string) (utils.PageInfo, error)

// WithPreview wraps a Resolver and fills a missing title or thumbnail from
// the page's OpenGraph tags. Preview failures never fail the resolve.
func WithPreview(next Resolver, page PageFunc) Resolver {
	return &previewResolver{next: next, page: page}
}

type previewResolver struct {
	next Resolver
	page PageFunc
}

func (p *previewResolver) Resolve(ctx context.Context, url string) (*models.VideoMetadata, error) {
	meta, err := p.next.Resolve(ctx, url)
	if err != nil {
		return nil, err
	}
	if meta.Title != "" && meta.Thumbnail != "" {
		return meta, nil
	}

	target := url
	if meta.WebpageURL != "" {
		target = meta.WebpageURL
	}
	info, err := p.page(ctx, target)
	if err != nil {
		slog.Warn("Page preview failed", "url", target, "error", err)
		return meta, nil
	}
	if meta.Title == "" {
		meta.Title = info.Title
	}
	if meta.Thumbnail == "" {
		meta.Thumbnail = info.Thumbnail
	}
	return meta, nil
}
