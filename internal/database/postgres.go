package database

import (
	"context"
	"fmt"

	"swim-rules-rag/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const chunkColumns = `id, content, rule_id, rule_number, rule_title, category,
            stroke_type, section, chunk_type, source, page`

// DB is the pgvector-backed store of embedded rule chunks
type DB struct {
	Pool       *pgxpool.Pool
	Dimensions int
}

// NewDB creates a new database connection
func NewDB(ctx context.Context, connStr string, dimensions int) (*DB, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool, Dimensions: dimensions}, nil
}

// Initialize sets up the vector extension, the chunk table and its indices
func (db *DB) Initialize(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	_, err := db.Pool.Exec(ctx, fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS rule_chunks (
            id TEXT PRIMARY KEY,
            content TEXT NOT NULL,
            rule_id TEXT NOT NULL,
            rule_number TEXT NOT NULL,
            rule_title TEXT,
            category TEXT,
            stroke_type TEXT,
            section TEXT,
            chunk_type TEXT,
            source TEXT,
            page INTEGER NOT NULL,
            embedding vector(%d) NOT NULL
        )
    `, db.Dimensions))
	if err != nil {
		return fmt.Errorf("failed to create rule_chunks table: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS rule_chunks_embedding_idx ON rule_chunks
		USING hnsw (embedding vector_cosine_ops)
	`)
	if err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS rule_chunks_rule_number_idx ON rule_chunks (rule_number);
		CREATE INDEX IF NOT EXISTS rule_chunks_category_idx ON rule_chunks (category);
	`)
	if err != nil {
		return fmt.Errorf("failed to create additional indices: %w", err)
	}

	return nil
}

// Reset drops the chunk table and recreates it empty
func (db *DB) Reset(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, `DROP TABLE IF EXISTS rule_chunks`); err != nil {
		return fmt.Errorf("failed to drop rule_chunks table: %w", err)
	}
	return db.Initialize(ctx)
}

// StoreChunks upserts embedded chunks by ID in a single batch
func (db *DB) StoreChunks(ctx context.Context, chunks []models.TextChunk) error {
	batch := &pgx.Batch{}
	for _, chunk := range chunks {
		if len(chunk.Embedding) != db.Dimensions {
			return fmt.Errorf("chunk %s has %d dimensions, store expects %d",
				chunk.ID, len(chunk.Embedding), db.Dimensions)
		}

		m := chunk.Metadata
		batch.Queue(`
            INSERT INTO rule_chunks (
                id, content, rule_id, rule_number, rule_title, category,
                stroke_type, section, chunk_type, source, page, embedding
            )
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
            ON CONFLICT (id) DO UPDATE SET
                content = EXCLUDED.content,
                rule_id = EXCLUDED.rule_id,
                rule_number = EXCLUDED.rule_number,
                rule_title = EXCLUDED.rule_title,
                category = EXCLUDED.category,
                stroke_type = EXCLUDED.stroke_type,
                section = EXCLUDED.section,
                chunk_type = EXCLUDED.chunk_type,
                source = EXCLUDED.source,
                page = EXCLUDED.page,
                embedding = EXCLUDED.embedding
        `,
			chunk.ID, chunk.Content, m.RuleID, m.RuleNumber, m.RuleTitle, m.Category,
			m.StrokeType, m.Section, m.ChunkType, m.Source, m.Page,
			ToVector(chunk.Embedding))
	}

	if err := db.Pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}
	return nil
}

// QuerySimilar finds the chunks nearest to the query embedding by cosine distance
func (db *DB) QuerySimilar(ctx context.Context, embedding []float64, limit int) ([]models.RetrievedRule, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+chunkColumns+`, embedding <=> $1 AS distance
		FROM rule_chunks
		ORDER BY distance
		LIMIT $2
	`, ToVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query similar chunks: %w", err)
	}
	return collectRetrieved(rows)
}

// QueryByRuleNumber returns every chunk tagged with a rule number
func (db *DB) QueryByRuleNumber(ctx context.Context, ruleNumber string) ([]models.RetrievedRule, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+chunkColumns+`, 0::float8 AS distance
		FROM rule_chunks
		WHERE rule_number = $1
		ORDER BY page, id
	`, ruleNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule chunks: %w", err)
	}
	return collectRetrieved(rows)
}

// Count returns the number of stored chunks
func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.Pool.QueryRow(ctx, `SELECT count(*) FROM rule_chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// Categories retrieves the distinct categories present in the store
func (db *DB) Categories(ctx context.Context) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT DISTINCT category FROM rule_chunks WHERE category != '' ORDER BY category
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}

	categories, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan categories: %w", err)
	}
	return categories, nil
}

// Close closes the database connection
func (db *DB) Close() {
	db.Pool.Close()
}

func collectRetrieved(rows pgx.Rows) ([]models.RetrievedRule, error) {
	defer rows.Close()

	var results []models.RetrievedRule
	for rows.Next() {
		var (
			id       string
			r        models.RetrievedRule
			distance float64
		)

		m := &r.Metadata
		if err := rows.Scan(
			&id,
			&r.Content,
			&m.RuleID,
			&m.RuleNumber,
			&m.RuleTitle,
			&m.Category,
			&m.StrokeType,
			&m.Section,
			&m.ChunkType,
			&m.Source,
			&m.Page,
			&distance); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.Distance = distance
		r.RelevanceScore = Similarity(distance)
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return results, nil
}

// ToVector converts an embedding to the pgvector parameter type
func ToVector(embedding []float64) pgvector.Vector {
	v := make([]float32, len(embedding))
	for i, x := range embedding {
		v[i] = float32(x)
	}
	return pgvector.NewVector(v)
}

// Similarity turns a cosine distance into a relevance score
func Similarity(distance float64) float64 {
	return 1.0 - distance
}
