package storage_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"mp4grab/internal/models"
	"mp4grab/internal/storage"
)

func sampleItem(id string, status models.HistoryStatus) models.HistoryItem {
	return models.HistoryItem{
		Id:      id,
		URL:     "https://video.example/watch?v=" + id,
		Title:   "Video " + id,
		Quality: "720p",
		Path:    "downloads/Video " + id + ".mp4",
		Size:    1024000,
		Status:  status,
		AddedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Format(time.RFC3339),
	}
}

func backends(t *testing.T) map[string]func(dir string) storage.History {
	return map[string]func(dir string) storage.History{
		"json": func(dir string) storage.History {
			s, err := storage.Open("json", dir)
			gt.NoError(t, err)
			return s
		},
		"sqlite": func(dir string) storage.History {
			s, err := storage.Open("sqlite", dir)
			gt.NoError(t, err)
			return s
		},
	}
}

func TestHistory_AddListRemoveClear(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			h := open(t.TempDir())
			defer h.Close()

			items, err := h.List()
			gt.NoError(t, err)
			gt.Equal(t, len(items), 0)

			gt.NoError(t, h.Add(sampleItem("a", models.HistoryCompleted)))
			failed := sampleItem("b", models.HistoryFailed)
			failed.Error = "HTTP Error 403"
			failed.Path = ""
			gt.NoError(t, h.Add(failed))

			items, err = h.List()
			gt.NoError(t, err)
			gt.Equal(t, len(items), 2)
			gt.Equal(t, items[0], failed)
			gt.Equal(t, items[1], sampleItem("a", models.HistoryCompleted))

			removed, err := h.Remove("a")
			gt.NoError(t, err)
			gt.True(t, removed)

			removed, err = h.Remove("a")
			gt.NoError(t, err)
			gt.True(t, !removed)

			gt.NoError(t, h.Clear())
			items, err = h.List()
			gt.NoError(t, err)
			gt.Equal(t, len(items), 0)
		})
	}
}

func TestHistory_PersistsAcrossReopen(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()

			h := open(dir)
			gt.NoError(t, h.Add(sampleItem("a", models.HistoryCompleted)))
			gt.NoError(t, h.Close())

			h = open(dir)
			defer h.Close()
			items, err := h.List()
			gt.NoError(t, err)
			gt.Equal(t, len(items), 1)
			gt.Equal(t, items[0].Id, "a")
		})
	}
}

func TestStorage_CorruptFileStartsFresh(t *testing.T) {
	dir := t.TempDir()
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "history.json"), []byte("{not json"), 0o644))

	s, err := storage.New(dir)
	gt.NoError(t, err)
	items, err := s.List()
	gt.NoError(t, err)
	gt.Equal(t, len(items), 0)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := storage.Open("redis", t.TempDir())
	gt.Error(t, err)
}

func TestStorage_FailedSaveKeepsItems(t *testing.T) {
	dir := t.TempDir()
	s, err := storage.New(dir)
	gt.NoError(t, err)
	gt.NoError(t, s.Add(sampleItem("a", models.HistoryCompleted)))
	gt.NoError(t, s.Add(sampleItem("b", models.HistoryCompleted)))

	// a directory in place of the temp file makes every write fail
	blocker := filepath.Join(dir, "history.json.tmp")
	gt.NoError(t, os.Mkdir(blocker, 0o755))

	gt.Error(t, s.Add(sampleItem("c", models.HistoryCompleted)))
	deleted, err := s.Remove("a")
	gt.Error(t, err)
	gt.True(t, !deleted)
	gt.Error(t, s.Clear())

	items, err := s.List()
	gt.NoError(t, err)
	gt.Equal(t, len(items), 2)
	gt.Equal(t, items[0].Id, "b")
	gt.Equal(t, items[1].Id, "a")

	gt.NoError(t, os.Remove(blocker))
	deleted, err = s.Remove("a")
	gt.NoError(t, err)
	gt.True(t, deleted)

	reopened, err := storage.New(dir)
	gt.NoError(t, err)
	items, err = reopened.List()
	gt.NoError(t, err)
	gt.Equal(t, len(items), 1)
	gt.Equal(t, items[0].Id, "b")
}
