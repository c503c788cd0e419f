package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/kart-io/docrag/internal/docrag/model"
)

// maxListIDs bounds ListIDs, matching the Milvus query window.
const maxListIDs = 16384

// undefinedTable is the SQLSTATE for a missing relation.
const undefinedTable = "42P01"

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// isUndefinedTable reports whether err means the table was never created.
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == undefinedTable
}

// PGVectorStore keeps chunks in a PostgreSQL table with a pgvector column.
// Distances are L2 (the <-> operator).
type PGVectorStore struct {
	db    *gorm.DB
	table string
}

var _ VectorStore = (*PGVectorStore)(nil)

// NewPGVectorStore creates a store over table. The name must be a plain
// lower-case SQL identifier because it is interpolated into DDL.
func NewPGVectorStore(db *gorm.DB, table string) (*PGVectorStore, error) {
	if table == "" {
		table = DefaultCollection
	}
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PGVectorStore{db: db, table: table}, nil
}

func (s *PGVectorStore) Name() string { return BackendPGVector }

func (s *PGVectorStore) EnsureCollection(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("invalid vector dimension %d", dim)
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	content TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	page INTEGER NOT NULL DEFAULT 0,
	chunk_index INTEGER NOT NULL DEFAULT 0,
	content_type TEXT NOT NULL DEFAULT '',
	ocr_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	embedding vector(%d) NOT NULL
)`, s.table, dim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_document_id_idx ON %s (document_id)`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_l2_ops)`, s.table, s.table),
	}
	db := s.db.WithContext(ctx)
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to ensure table %s: %w", s.table, err)
		}
	}
	return nil
}

func (s *PGVectorStore) Upsert(ctx context.Context, documentID string, ids []string, vectors [][]float32, texts []string, metas []model.ChunkMetadata) error {
	if err := checkUpsert(ids, vectors, texts, metas); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	stmt := fmt.Sprintf(`INSERT INTO %s (id, document_id, content, source, page, chunk_index, content_type, ocr_confidence, embedding)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET document_id = EXCLUDED.document_id, content = EXCLUDED.content,
source = EXCLUDED.source, page = EXCLUDED.page, chunk_index = EXCLUDED.chunk_index,
content_type = EXCLUDED.content_type, ocr_confidence = EXCLUDED.ocr_confidence, embedding = EXCLUDED.embedding`, s.table)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, id := range ids {
			m := metas[i]
			err := tx.Exec(stmt, id, documentID, texts[i], m.Source, m.Page, m.ChunkIndex,
				string(m.ContentType), m.OCRConfidence, pgvector.NewVector(vectors[i])).Error
			if err != nil {
				return fmt.Errorf("failed to upsert %s: %w", id, err)
			}
		}
		return nil
	})
}

type pgHit struct {
	ID            string
	DocumentID    string
	Content       string
	Source        string
	Page          int
	ChunkIndex    int
	ContentType   string
	OCRConfidence float64
	Distance      float64
}

func (s *PGVectorStore) Query(ctx context.Context, vector []float32, documentID string, topK int) (*model.SearchResults, error) {
	query := fmt.Sprintf(`SELECT id, document_id, content, source, page, chunk_index, content_type, ocr_confidence, embedding <-> ? AS distance FROM %s`, s.table)
	args := []any{pgvector.NewVector(vector)}
	if documentID != "" {
		query += ` WHERE document_id = ?`
		args = append(args, documentID)
	}
	query += ` ORDER BY distance LIMIT ?`
	args = append(args, topK)

	var hits []pgHit
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&hits).Error; err != nil {
		if isUndefinedTable(err) {
			return model.EmptySearchResults(), nil
		}
		return nil, fmt.Errorf("failed to search %s: %w", s.table, err)
	}

	out := model.EmptySearchResults()
	for _, h := range hits {
		out.IDs = append(out.IDs, h.ID)
		out.Documents = append(out.Documents, h.Content)
		out.Distances = append(out.Distances, float32(h.Distance))
		out.Metadatas = append(out.Metadatas, &model.ChunkMetadata{
			Source:        h.Source,
			Page:          h.Page,
			ChunkIndex:    h.ChunkIndex,
			ContentType:   model.ContentType(h.ContentType),
			OCRConfidence: h.OCRConfidence,
			DocumentID:    h.DocumentID,
		})
	}
	return out, nil
}

func (s *PGVectorStore) ListIDs(ctx context.Context) ([]string, error) {
	ids := []string{}
	err := s.db.WithContext(ctx).
		Raw(fmt.Sprintf(`SELECT id FROM %s ORDER BY id LIMIT ?`, s.table), maxListIDs).
		Scan(&ids).Error
	if isUndefinedTable(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list ids: %w", err)
	}
	return ids, nil
}

func (s *PGVectorStore) DeleteAll(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Exec(fmt.Sprintf(`DELETE FROM %s WHERE id IN ?`, s.table), ids).Error
	if err != nil {
		return fmt.Errorf("failed to delete ids: %w", err)
	}
	return nil
}

func (s *PGVectorStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Raw(fmt.Sprintf(`SELECT count(*) FROM %s`, s.table)).Scan(&n).Error
	if isUndefinedTable(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", s.table, err)
	}
	return n, nil
}

func (s *PGVectorStore) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *PGVectorStore) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
