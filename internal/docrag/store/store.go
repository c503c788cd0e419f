// Package store persists chunk vectors and answers nearest-neighbour queries.
package store

import (
	"context"
	"fmt"

	"github.com/kart-io/docrag/internal/docrag/model"
)

// Backend names accepted by the store.backend option.
const (
	BackendMilvus   = "milvus"
	BackendPGVector = "pgvector"
)

// DefaultCollection is the collection (or table) that holds every document's chunks.
const DefaultCollection = "pdf_chunks"

// VectorStore is a single collection of chunk vectors shared by all documents.
// Distances returned by Query are smaller-is-closer.
type VectorStore interface {
	// EnsureCollection creates the collection for vectors of dim if it is missing.
	EnsureCollection(ctx context.Context, dim int) error

	// Upsert writes chunks of documentID. All slices must have the same length.
	Upsert(ctx context.Context, documentID string, ids []string, vectors [][]float32, texts []string, metas []model.ChunkMetadata) error

	// Query returns the topK nearest chunks. An empty documentID searches every document.
	Query(ctx context.Context, vector []float32, documentID string, topK int) (*model.SearchResults, error)

	// ListIDs returns the ids stored in the collection.
	ListIDs(ctx context.Context) ([]string, error)

	// DeleteAll removes the given ids.
	DeleteAll(ctx context.Context, ids []string) error

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int64, error)

	// Health reports whether the backend answers.
	Health(ctx context.Context) error

	// Name returns the backend name.
	Name() string

	Close(ctx context.Context) error
}

// Metadata field names stored next to every vector.
const (
	FieldDocumentID    = "document_id"
	FieldText          = "text"
	FieldSource        = "source"
	FieldPage          = "page"
	FieldChunkIndex    = "chunk_index"
	FieldContentType   = "content_type"
	FieldOCRConfidence = "ocr_confidence"
)

func checkUpsert(ids []string, vectors [][]float32, texts []string, metas []model.ChunkMetadata) error {
	n := len(ids)
	if len(vectors) != n || len(texts) != n || len(metas) != n {
		return fmt.Errorf("upsert length mismatch: ids=%d vectors=%d texts=%d metas=%d",
			n, len(vectors), len(texts), len(metas))
	}
	return nil
}
