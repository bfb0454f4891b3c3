// Package storage provides the SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/smriti-ai/smriti/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL UNIQUE,
		title TEXT,
		embedding BLOB,
		timestamp TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pages_timestamp ON pages(timestamp);
	`
	_, err := db.Exec(schema)
	return err
}

// Upsert inserts or updates the page for url in a single statement, so a
// record is never visible with a partially written embedding.
func (s *SQLiteStorage) Upsert(ctx context.Context, url, title string, embedding []float32) (*models.Page, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pages (url, title, embedding, timestamp) VALUES (?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET
			title = excluded.title,
			embedding = excluded.embedding,
			timestamp = excluded.timestamp`,
		url, title, EncodeEmbedding(embedding), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert page: %w", err)
	}
	page, err := s.GetByURL(ctx, url)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, fmt.Errorf("page missing after upsert: %s", url)
	}
	return page, nil
}

// GetByURL returns the page for url, or nil when no row exists.
func (s *SQLiteStorage) GetByURL(ctx context.Context, url string) (*models.Page, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, url, title, embedding, timestamp FROM pages WHERE url = ?`, url)
	page, err := scanPage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page by url: %w", err)
	}
	return page, nil
}

// GetAll returns every page ordered by ID.
func (s *SQLiteStorage) GetAll(ctx context.Context) ([]*models.Page, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, title, embedding, timestamp FROM pages ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()
	return collectPages(rows)
}

// GetByIDs returns the pages matching ids. Unknown IDs are omitted.
func (s *SQLiteStorage) GetByIDs(ctx context.Context, ids []int64) ([]*models.Page, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, title, embedding, timestamp FROM pages WHERE id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get pages by ids: %w", err)
	}
	defer rows.Close()
	return collectPages(rows)
}

// DeleteAll removes every page.
func (s *SQLiteStorage) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pages`); err != nil {
		return fmt.Errorf("failed to delete pages: %w", err)
	}
	return nil
}

// Count returns the total number of pages.
func (s *SQLiteStorage) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pages`).Scan(&count)
	return count, err
}

// DatabaseSizeBytes returns the on-disk size of the database file, 0 when the
// file cannot be measured.
func (s *SQLiteStorage) DatabaseSizeBytes() int64 {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPage(row rowScanner) (*models.Page, error) {
	var (
		page      models.Page
		title     sql.NullString
		blob      []byte
		timestamp string
	)
	if err := row.Scan(&page.ID, &page.URL, &title, &blob, &timestamp); err != nil {
		return nil, err
	}
	page.Title = title.String
	page.Embedding = DecodeEmbedding(blob)
	ts, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		// Legacy rows may carry second precision.
		ts, err = time.Parse(time.RFC3339, timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp %q: %w", timestamp, err)
		}
	}
	page.Timestamp = ts
	return &page, nil
}

func collectPages(rows *sql.Rows) ([]*models.Page, error) {
	var pages []*models.Page
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}
