package storage

import (
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite"

	"mp4grab/internal/models"
)

// SQLite keeps the history in a single-file SQLite database.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return nil, goerr.Wrap(err, "failed to create data dir", goerr.V("path", path))
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open database", goerr.V("path", path))
	}
	// modernc sqlite serializes writers anyway; one connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	store := &SQLite{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLite) migrate() error {
	slog.Debug("Running history migrations")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS downloads (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			url TEXT NOT NULL,
			title TEXT,
			quality TEXT NOT NULL,
			path TEXT,
			size_bytes INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			error TEXT,
			added_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_downloads_added_at ON downloads(added_at)`,
	}

	for i, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return goerr.Wrap(err, "migration failed", goerr.V("index", i))
		}
	}
	return nil
}

func (s *SQLite) Add(item models.HistoryItem) error {
	query := `
		INSERT INTO downloads (id, url, title, quality, path, size_bytes, status, error, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		item.Id,
		item.URL,
		item.Title,
		item.Quality,
		item.Path,
		item.Size,
		string(item.Status),
		item.Error,
		item.AddedAt,
	)
	if err != nil {
		return goerr.Wrap(err, "failed to record download", goerr.V("id", item.Id))
	}
	return nil
}

func (s *SQLite) List() ([]models.HistoryItem, error) {
	rows, err := s.db.Query(`
		SELECT id, url, title, quality, path, size_bytes, status, error, added_at
		FROM downloads
		ORDER BY seq DESC
	`)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list downloads")
	}
	defer rows.Close()

	items := []models.HistoryItem{}
	for rows.Next() {
		var (
			item                models.HistoryItem
			title, path, errMsg sql.NullString
			status              string
		)
		if err := rows.Scan(&item.Id, &item.URL, &title, &item.Quality, &path, &item.Size, &status, &errMsg, &item.AddedAt); err != nil {
			return nil, goerr.Wrap(err, "failed to scan download")
		}
		item.Title = title.String
		item.Path = path.String
		item.Error = errMsg.String
		item.Status = models.HistoryStatus(status)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *SQLite) Remove(id string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM downloads WHERE id = ?`, id)
	if err != nil {
		return false, goerr.Wrap(err, "failed to delete download", goerr.V("id", id))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, goerr.Wrap(err, "failed to count deleted rows")
	}
	return n > 0, nil
}

func (s *SQLite) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM downloads`); err != nil {
		return goerr.Wrap(err, "failed to clear downloads")
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
