package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/framelens/framelens/internal/embeddings"
	"github.com/framelens/framelens/internal/models"
)

// SimilarAnalysis is a history record found through vector search.
type SimilarAnalysis struct {
	Record
	Similarity float64 `json:"similarity"`
}

// PostgresStore records analyses in PostgreSQL. Each summary is stored
// with its class-histogram embedding so analyses of videos with a
// similar object mix can be found with SearchSimilar.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ SimilaritySearcher = (*PostgresStore)(nil)

// NewPostgresStore connects to PostgreSQL with the given DSN.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Record stores one analysis summary with its embedding.
func (s *PostgresStore) Record(ctx context.Context, summary models.Summary, narration string) error {
	rec := NewRecord(summary, narration)

	counts, err := json.Marshal(rec.ClassCounts)
	if err != nil {
		return fmt.Errorf("marshal class counts: %w", err)
	}

	embedding := embeddings.Embed(rec.ClassCounts)

	_, err = s.pool.Exec(ctx,
		`INSERT INTO analyses
		 (id, video_url, target_item, class_counts, narration, embedding, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.VideoURL, rec.TargetItem, string(counts), rec.Narration,
		pgvector.NewVector(embedding), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store analysis: %w", err)
	}
	return nil
}

// Recent returns the newest records.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, video_url, target_item, class_counts, narration, created_at
		 FROM analyses ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// SearchSimilar finds stored analyses whose object mix is closest to
// the given class counts.
func (s *PostgresStore) SearchSimilar(ctx context.Context, classCounts map[string]int, limit int) ([]SimilarAnalysis, error) {
	query := embeddings.Embed(classCounts)

	rows, err := s.pool.Query(ctx,
		`SELECT id, video_url, target_item, class_counts, narration, created_at,
		 1 - (embedding <=> $1) AS similarity
		 FROM analyses
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		pgvector.NewVector(query), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar analyses: %w", err)
	}
	defer rows.Close()

	var results []SimilarAnalysis
	for rows.Next() {
		var sa SimilarAnalysis
		var counts string
		var createdAt time.Time
		if err := rows.Scan(&sa.ID, &sa.VideoURL, &sa.TargetItem, &counts,
			&sa.Narration, &createdAt, &sa.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan search results: %w", err)
		}
		if err := json.Unmarshal([]byte(counts), &sa.ClassCounts); err != nil {
			return nil, fmt.Errorf("unmarshal class counts: %w", err)
		}
		sa.CreatedAt = createdAt
		results = append(results, sa)
	}
	return results, rows.Err()
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var rec Record
		var counts string
		var createdAt time.Time
		if err := rows.Scan(&rec.ID, &rec.VideoURL, &rec.TargetItem, &counts,
			&rec.Narration, &createdAt); err != nil {
			return nil, fmt.Errorf("scan analysis record: %w", err)
		}
		if err := json.Unmarshal([]byte(counts), &rec.ClassCounts); err != nil {
			return nil, fmt.Errorf("unmarshal class counts: %w", err)
		}
		rec.CreatedAt = createdAt
		records = append(records, rec)
	}
	return records, rows.Err()
}

// InitSchema creates the PostgreSQL schema if it doesn't exist.
func InitSchema(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS analyses (
			id UUID PRIMARY KEY,
			video_url TEXT NOT NULL,
			target_item TEXT NOT NULL,
			class_counts JSONB NOT NULL,
			narration TEXT NOT NULL DEFAULT '',
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at);
	`, embeddings.Dimension())

	if _, err := conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create database schema: %w", err)
	}

	return nil
}
