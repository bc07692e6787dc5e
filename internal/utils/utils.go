package utils

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/m-mizutani/goerr/v2"
)

const (
	previewTimeout = 15 * time.Second
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// PageInfo is what a video page advertises about itself through OpenGraph tags.
type PageInfo struct {
	Title     string
	Thumbnail string
}

// ExtractPageInfo fetches the page at url and reads og:title / og:image,
// falling back to <title> when no OpenGraph title is present.
func ExtractPageInfo(ctx context.Context, client *http.Client, url string) (PageInfo, error) {
	if client == nil {
		client = &http.Client{Timeout: previewTimeout}
	}
	slog.Debug("Extracting page info", "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return PageInfo{}, goerr.Wrap(err, "failed to build preview request", goerr.V("url", url))
	}
	req.Header.Set("User-Agent", userAgent)

	res, err := client.Do(req)
	if err != nil {
		return PageInfo{}, goerr.Wrap(err, "failed to fetch page", goerr.V("url", url))
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return PageInfo{}, goerr.New("unexpected status", goerr.V("url", url), goerr.V("status", res.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return PageInfo{}, goerr.Wrap(err, "failed to parse HTML", goerr.V("url", url))
	}

	var info PageInfo
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		prop, ok := s.Attr("property")
		if !ok {
			prop, _ = s.Attr("name")
		}
		content := strings.TrimSpace(s.AttrOr("content", ""))
		switch prop {
		case "og:title", "twitter:title":
			if info.Title == "" {
				info.Title = content
			}
		case "og:image", "twitter:image":
			if info.Thumbnail == "" {
				info.Thumbnail = content
			}
		}
	})

	if info.Title == "" {
		info.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	return info, nil
}

// FormatBytes renders a byte count with one decimal, e.g. "1.5 KB".
func FormatBytes(n float64) string {
	if n == 0 {
		return "0 B"
	}
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if n < 1024 {
			return fmt.Sprintf("%.1f %s", n, unit)
		}
		n /= 1024
	}
	return fmt.Sprintf("%.1f TB", n)
}

// FormatTime renders seconds as MM:SS, or HH:MM:SS from one hour up.
func FormatTime(seconds int) string {
	if seconds <= 0 {
		return "Unknown"
	}
	minutes, secs := seconds/60, seconds%60
	hours, minutes := minutes/60, minutes%60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}

func FormatSpeed(bps float64) string {
	if bps <= 0 {
		return "Calculating..."
	}
	return FormatBytes(bps) + "/s"
}
