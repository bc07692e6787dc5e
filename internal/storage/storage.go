package storage

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"mp4grab/internal/models"
)

// History records finished downloads, newest first.
type History interface {
	Add(item models.HistoryItem) error
	List() ([]models.HistoryItem, error)
	Remove(id string) (bool, error)
	Clear() error
	Close() error
}

// Open returns the history backend named by backend ("json" or "sqlite").
func Open(backend, dataDir string) (History, error) {
	switch backend {
	case "", "json":
		return New(dataDir)
	case "sqlite":
		return NewSQLite(filepath.Join(dataDir, "history.db"))
	default:
		return nil, goerr.New("unknown history backend", goerr.V("backend", backend))
	}
}

type historyFile struct {
	Items []models.HistoryItem `json:"items"`
}

// Storage keeps the history in a JSON file under the data directory.
type Storage struct {
	mu       sync.RWMutex
	filePath string
	items    []models.HistoryItem
}

func New(dataDir string) (*Storage, error) {
	if err := os.MkdirAll(dataDir, os.ModePerm); err != nil {
		return nil, goerr.Wrap(err, "failed to create data dir", goerr.V("dir", dataDir))
	}

	store := &Storage{filePath: filepath.Join(dataDir, "history.json")}
	items, err := store.load()
	if err != nil {
		slog.Warn("Could not load existing history, starting fresh", "error", err)
		items = []models.HistoryItem{}
	}
	store.items = items
	return store, nil
}

func (s *Storage) load() ([]models.HistoryItem, error) {
	file, err := os.Open(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return []models.HistoryItem{}, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open history", goerr.V("path", s.filePath))
	}
	defer file.Close()

	var data historyFile
	if err := json.NewDecoder(file).Decode(&data); err != nil {
		return nil, goerr.Wrap(err, "failed to decode history", goerr.V("path", s.filePath))
	}
	if data.Items == nil {
		data.Items = []models.HistoryItem{}
	}
	return data.Items, nil
}

// save writes items through a temp file so a crash never leaves it truncated,
// then makes them the in-memory state. On error s.items is left untouched.
// Callers hold s.mu.
func (s *Storage) save(items []models.HistoryItem) error {
	tmp := s.filePath + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return goerr.Wrap(err, "failed to create history file", goerr.V("path", tmp))
	}

	if err := json.NewEncoder(file).Encode(historyFile{Items: items}); err != nil {
		file.Close()
		return goerr.Wrap(err, "failed to encode history")
	}
	if err := file.Close(); err != nil {
		return goerr.Wrap(err, "failed to close history file")
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		return goerr.Wrap(err, "failed to replace history file", goerr.V("path", s.filePath))
	}
	s.items = items
	return nil
}

func (s *Storage) Add(item models.HistoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(append([]models.HistoryItem{item}, s.items...))
}

func (s *Storage) List() ([]models.HistoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items), nil
}

func (s *Storage) Remove(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.items, func(item models.HistoryItem) bool { return item.Id == id })
	if i < 0 {
		return false, nil
	}
	if err := s.save(slices.Delete(slices.Clone(s.items), i, i+1)); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Storage) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save([]models.HistoryItem{})
}

func (s *Storage) Close() error { return nil }
