package catalog_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/gt"

	"mp4grab/internal/catalog"
	"mp4grab/internal/models"
)

func height(h int) *int { return &h }

func codec(c string) *string { return &c }

func size(s int64) *int64 { return &s }

func TestBuildFormats_DropsDuplicatesAndTallFormats(t *testing.T) {
	formats := []models.RawFormat{
		{Height: height(720), Ext: "mp4", FormatNote: "720p", Filesize: size(50 * 1024 * 1024)},
		{Height: height(1080), Ext: "webm", FormatNote: "1080p"},
		{Height: height(720), Ext: "webm", FormatNote: "720p60"},
		{Height: height(2160), Ext: "webm", FormatNote: "2160p"},
	}

	got := catalog.BuildFormats(formats)

	gt.Equal(t, len(got), 2)
	gt.Equal(t, got[0].Quality, "1080p")
	gt.Equal(t, got[0].Format, "WEBM")
	gt.Equal(t, got[0].Size, "")
	gt.Equal(t, got[1].Quality, "720p")
	gt.Equal(t, got[1].Format, "MP4")
	gt.Equal(t, got[1].Note, "720p")
	gt.Equal(t, got[1].Size, " (50 MB)")
}

func TestBuildFormats_SkipsAudioAndMissingHeight(t *testing.T) {
	formats := []models.RawFormat{
		{VCodec: codec("none"), Height: height(480), Ext: "m4a"},
		{VCodec: codec("avc1"), Ext: "mp4"},
		{VCodec: codec("avc1"), Height: height(0), Ext: "mp4"},
		{VCodec: codec("vp9"), Height: height(360), Ext: "webm"},
	}

	got := catalog.BuildFormats(formats)

	gt.Equal(t, len(got), 1)
	gt.Equal(t, got[0].Quality, "360p")
	gt.Equal(t, got[0].Height, 360)
}

func TestBuildFormats_Empty(t *testing.T) {
	got := catalog.BuildFormats(nil)
	gt.True(t, got != nil)
	gt.Equal(t, len(got), 0)
}

func TestBuildFormats_UniqueDescendingAndCapped(t *testing.T) {
	heights := []int{144, 1080, 240, 1440, 360, 720, 480, 240, 1080, 2160, 720, 144, 4320, 360}
	var formats []models.RawFormat
	for _, h := range heights {
		formats = append(formats, models.RawFormat{Height: height(h), Ext: "mp4"})
	}

	got := catalog.BuildFormats(formats)

	gt.Equal(t, len(got), 6)
	seen := map[int]bool{}
	for i, o := range got {
		gt.True(t, o.Height <= catalog.MaxHeight)
		gt.True(t, !seen[o.Height])
		seen[o.Height] = true
		if i > 0 {
			gt.True(t, got[i-1].Height > o.Height)
		}
	}
}

func TestQualities(t *testing.T) {
	options := catalog.BuildFormats([]models.RawFormat{
		{Height: height(480), Ext: "mp4"},
		{Height: height(1080), Ext: "mp4"},
	})

	gt.Equal(t, catalog.Qualities(options), []string{"best", "1080p", "480p"})
	gt.Equal(t, catalog.Qualities(nil), []string{"best"})
}

func TestSelector(t *testing.T) {
	tests := []struct {
		name    string
		quality string
		want    string
		wantErr bool
	}{
		{
			name:    "best is capped at 1080",
			quality: "best",
			want:    "bestvideo[height<=1080]+bestaudio/best[height<=1080]",
		},
		{
			name:    "empty means best",
			quality: "",
			want:    "bestvideo[height<=1080]+bestaudio/best[height<=1080]",
		},
		{
			name:    "explicit height",
			quality: "720p",
			want:    "bestvideo[height<=720]+bestaudio/best[height<=720]",
		},
		{
			name:    "missing suffix",
			quality: "720",
			wantErr: true,
		},
		{
			name:    "garbage",
			quality: "hd]+evil",
			wantErr: true,
		},
		{
			name:    "zero height",
			quality: "0p",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := catalog.Selector(tt.quality)
			if tt.wantErr {
				gt.Error(t, err)
				gt.True(t, errors.Is(err, catalog.ErrInvalidQuality))
				return
			}
			gt.NoError(t, err)
			gt.Equal(t, got, tt.want)
		})
	}
}

func TestNormalizeExt(t *testing.T) {
	tests := map[string]string{
		"downloads/clip.webm":       "downloads/clip.mp4",
		"downloads/clip.mkv":        "downloads/clip.mp4",
		"downloads/clip.mp4":        "downloads/clip.mp4",
		"downloads/a.webm.part.m4a": "downloads/a.webm.part.m4a",
	}
	for in, want := range tests {
		gt.Equal(t, catalog.NormalizeExt(in), want)
	}
}
