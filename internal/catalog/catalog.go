// Package catalog turns the extractor's raw format list into the quality
// options offered to the user and builds the matching format selector.
package catalog

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"mp4grab/internal/models"
)

const (
	// Best is the quality value that selects the highest tier up to MaxHeight.
	Best      = "best"
	MaxHeight = 1080
)

var (
	ErrInvalidQuality = goerr.New("invalid quality")

	qualityPattern = regexp.MustCompile(`^(\d+)p$`)
)

// BuildFormats keeps video formats up to MaxHeight, one per height (first
// occurrence wins), ordered from the highest height down.
func BuildFormats(formats []models.RawFormat) []models.FormatOption {
	options := []models.FormatOption{}
	seen := make(map[int]bool)

	for _, f := range formats {
		if f.VCodec != nil && *f.VCodec == "none" {
			continue
		}
		if f.Height == nil || *f.Height <= 0 {
			continue
		}
		height := *f.Height
		if height > MaxHeight || seen[height] {
			continue
		}
		seen[height] = true

		options = append(options, models.FormatOption{
			Quality: fmt.Sprintf("%dp", height),
			Format:  strings.ToUpper(f.Ext),
			Note:    f.FormatNote,
			Size:    sizeLabel(f.Filesize),
			Height:  height,
		})
	}

	sort.SliceStable(options, func(i, j int) bool {
		return options[i].Height > options[j].Height
	})
	return options
}

func sizeLabel(filesize *int64) string {
	if filesize == nil || *filesize <= 0 {
		return ""
	}
	return fmt.Sprintf(" (%d MB)", *filesize/(1024*1024))
}

// Qualities lists the selectable quality values, "best" first.
func Qualities(options []models.FormatOption) []string {
	qualities := make([]string, 0, len(options)+1)
	qualities = append(qualities, Best)
	for _, o := range options {
		qualities = append(qualities, o.Quality)
	}
	return qualities
}

// ParseQuality returns the height cap for a quality value. An empty value is
// treated as "best".
func ParseQuality(quality string) (int, error) {
	quality = strings.TrimSpace(quality)
	if quality == "" || quality == Best {
		return MaxHeight, nil
	}

	m := qualityPattern.FindStringSubmatch(quality)
	if m == nil {
		return 0, goerr.Wrap(ErrInvalidQuality, "quality must be 'best' or '<height>p'", goerr.V("quality", quality))
	}
	height, err := strconv.Atoi(m[1])
	if err != nil || height <= 0 {
		return 0, goerr.Wrap(ErrInvalidQuality, "height out of range", goerr.V("quality", quality))
	}
	return height, nil
}

// Selector builds the yt-dlp format expression: merged video+audio under the
// cap, falling back to the best muxed stream under the same cap.
func Selector(quality string) (string, error) {
	height, err := ParseQuality(quality)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("bestvideo[height<=%d]+bestaudio/best[height<=%d]", height, height), nil
}

// NormalizeExt rewrites the intermediate container extensions yt-dlp may
// report to the final ".mp4".
func NormalizeExt(path string) string {
	for _, ext := range []string{".webm", ".mkv"} {
		if strings.HasSuffix(path, ext) {
			return strings.TrimSuffix(path, ext) + ".mp4"
		}
	}
	return path
}
