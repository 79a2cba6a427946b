// Package storage records finished analysis summaries. Recording is
// additive history: an analysis succeeds even when its summary cannot
// be recorded.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/framelens/framelens/internal/models"
)

const batchSize = 10 // Number of records to batch write

// Record is one stored analysis summary.
type Record struct {
	ID          string         `json:"id"`
	VideoURL    string         `json:"video_url"`
	TargetItem  string         `json:"target_item"`
	ClassCounts map[string]int `json:"results"`
	Narration   string         `json:"narration,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Store is the interface the API layer records through.
type Store interface {
	// Record stores one analysis summary.
	Record(ctx context.Context, summary models.Summary, narration string) error

	// Recent returns the most recent records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)

	// Close flushes pending writes and releases resources.
	Close() error
}

// SimilaritySearcher is the optional capability of stores that can rank
// history records by object-mix similarity. Asserted at the call site;
// only the Postgres store implements it.
type SimilaritySearcher interface {
	SearchSimilar(ctx context.Context, classCounts map[string]int, limit int) ([]SimilarAnalysis, error)
}

// NewRecord builds a Record from a summary.
func NewRecord(summary models.Summary, narration string) Record {
	return Record{
		ID:          uuid.NewString(),
		VideoURL:    summary.VideoURL,
		TargetItem:  summary.TargetItem,
		ClassCounts: summary.ClassCounts,
		Narration:   narration,
		CreatedAt:   time.Now().UTC(),
	}
}

// FileStore appends records to a JSON file, batching writes.
type FileStore struct {
	mu      sync.Mutex
	pending []Record
	path    string
}

// NewFileStore creates a JSON-file backed store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Record adds a record to the batch and flushes when the batch is full.
func (s *FileStore) Record(ctx context.Context, summary models.Summary, narration string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append(s.pending, NewRecord(summary, narration))
	if len(s.pending) >= batchSize {
		return s.flush()
	}
	return nil
}

// Recent returns the newest records, including any still pending.
func (s *FileStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.read()
	if err != nil {
		return nil, err
	}
	all := append(existing, s.pending...)

	// Newest first.
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Close flushes any pending records.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush()
}

func (s *FileStore) read() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history file: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("unmarshal history file: %w", err)
	}
	return records, nil
}

func (s *FileStore) flush() error {
	if len(s.pending) == 0 {
		return nil
	}

	existing, err := s.read()
	if err != nil {
		return err
	}
	all := append(existing, s.pending...)

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create history directory: %w", err)
		}
	}

	file, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("create history file: %w", err)
	}
	defer file.Close()

	if err := json.NewEncoder(file).Encode(all); err != nil {
		return fmt.Errorf("encode history file: %w", err)
	}

	s.pending = nil
	return nil
}
