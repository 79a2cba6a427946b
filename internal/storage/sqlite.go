package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/framelens/framelens/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS analyses (
	id TEXT PRIMARY KEY,
	video_url TEXT NOT NULL,
	target_item TEXT NOT NULL,
	class_counts TEXT NOT NULL,
	narration TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at);
`

// SQLiteStore is the default local history store.
type SQLiteStore struct {
	conn *sql.DB
}

// NewSQLiteStore opens (and if needed creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			return nil, fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	if _, err := conn.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{conn: conn}, nil
}

// Record stores one analysis summary.
func (s *SQLiteStore) Record(ctx context.Context, summary models.Summary, narration string) error {
	rec := NewRecord(summary, narration)

	counts, err := json.Marshal(rec.ClassCounts)
	if err != nil {
		return fmt.Errorf("marshal class counts: %w", err)
	}

	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO analyses (id, video_url, target_item, class_counts, narration, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.VideoURL, rec.TargetItem, string(counts), rec.Narration,
		rec.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert analysis record: %w", err)
	}
	return nil
}

// Recent returns the newest records.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, video_url, target_item, class_counts, narration, created_at
		 FROM analyses ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var counts, createdAt string
		if err := rows.Scan(&rec.ID, &rec.VideoURL, &rec.TargetItem, &counts, &rec.Narration, &createdAt); err != nil {
			return nil, fmt.Errorf("scan analysis record: %w", err)
		}
		if err := json.Unmarshal([]byte(counts), &rec.ClassCounts); err != nil {
			return nil, fmt.Errorf("unmarshal class counts: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			rec.CreatedAt = t
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}
