package store

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/kart-io/docrag/internal/docrag/model"
	"github.com/kart-io/docrag/pkg/component/milvus"
)

// milvusClient is the part of the Milvus component the store uses.
type milvusClient interface {
	EnsureCollection(ctx context.Context, schema *milvus.CollectionSchema) error
	HasCollection(ctx context.Context, collectionName string) (bool, error)
	Upsert(ctx context.Context, collectionName string, data *milvus.UpsertData) error
	Search(ctx context.Context, collectionName string, vector []float32, topK int, filter string, outputFields []string) ([]milvus.SearchResult, error)
	QueryIDs(ctx context.Context, collectionName, filter string) ([]string, error)
	DeleteByIDs(ctx context.Context, collectionName string, ids []string) error
	Count(ctx context.Context, collectionName string) (int64, error)
	Health(ctx context.Context) error
	Close(ctx context.Context) error
}

var _ milvusClient = (*milvus.Client)(nil)

var milvusOutputFields = []string{
	FieldDocumentID, FieldText, FieldSource, FieldPage,
	FieldChunkIndex, FieldContentType, FieldOCRConfidence,
}

// MilvusStore keeps chunks in one Milvus collection.
type MilvusStore struct {
	client     milvusClient
	collection string
}

var _ VectorStore = (*MilvusStore)(nil)

// NewMilvusStore creates a store over collection.
func NewMilvusStore(client milvusClient, collection string) *MilvusStore {
	if collection == "" {
		collection = DefaultCollection
	}
	return &MilvusStore{client: client, collection: collection}
}

func (s *MilvusStore) Name() string { return BackendMilvus }

func (s *MilvusStore) EnsureCollection(ctx context.Context, dim int) error {
	return s.client.EnsureCollection(ctx, &milvus.CollectionSchema{
		Name:        s.collection,
		Description: "PDF document chunks",
		Dimension:   dim,
		MetaFields: []milvus.MetaField{
			{Name: FieldDocumentID, DataType: entity.FieldTypeVarChar, MaxLen: 256},
			{Name: FieldText, DataType: entity.FieldTypeVarChar, MaxLen: 65535},
			{Name: FieldSource, DataType: entity.FieldTypeVarChar, MaxLen: 2048},
			{Name: FieldPage, DataType: entity.FieldTypeInt64},
			{Name: FieldChunkIndex, DataType: entity.FieldTypeInt64},
			{Name: FieldContentType, DataType: entity.FieldTypeVarChar, MaxLen: 16},
			{Name: FieldOCRConfidence, DataType: entity.FieldTypeDouble},
		},
	})
}

func (s *MilvusStore) Upsert(ctx context.Context, documentID string, ids []string, vectors [][]float32, texts []string, metas []model.ChunkMetadata) error {
	if err := checkUpsert(ids, vectors, texts, metas); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	return s.client.Upsert(ctx, s.collection, toUpsertData(documentID, ids, vectors, texts, metas))
}

func toUpsertData(documentID string, ids []string, vectors [][]float32, texts []string, metas []model.ChunkMetadata) *milvus.UpsertData {
	n := len(ids)
	cols := map[string][]any{}
	for _, f := range milvusOutputFields {
		cols[f] = make([]any, n)
	}
	for i, m := range metas {
		cols[FieldDocumentID][i] = documentID
		cols[FieldText][i] = texts[i]
		cols[FieldSource][i] = m.Source
		cols[FieldPage][i] = int64(m.Page)
		cols[FieldChunkIndex][i] = int64(m.ChunkIndex)
		cols[FieldContentType][i] = string(m.ContentType)
		cols[FieldOCRConfidence][i] = m.OCRConfidence
	}
	return &milvus.UpsertData{IDs: ids, Embeddings: vectors, Metadata: cols}
}

// Query returns empty results when nothing has been ingested yet.
func (s *MilvusStore) Query(ctx context.Context, vector []float32, documentID string, topK int) (*model.SearchResults, error) {
	exists, err := s.client.HasCollection(ctx, s.collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return model.EmptySearchResults(), nil
	}

	filter := ""
	if documentID != "" {
		filter = fmt.Sprintf("%s == %q", FieldDocumentID, documentID)
	}
	hits, err := s.client.Search(ctx, s.collection, vector, topK, filter, milvusOutputFields)
	if err != nil {
		return nil, err
	}
	return fromSearchResults(hits), nil
}

func fromSearchResults(hits []milvus.SearchResult) *model.SearchResults {
	out := model.EmptySearchResults()
	for _, h := range hits {
		text, _ := h.Metadata[FieldText].(string)
		out.IDs = append(out.IDs, h.ID)
		out.Documents = append(out.Documents, text)
		out.Distances = append(out.Distances, h.Score)
		out.Metadatas = append(out.Metadatas, metadataFromFields(h.Metadata))
	}
	return out
}

// metadataFromFields returns nil when no metadata field came back.
func metadataFromFields(fields map[string]any) *model.ChunkMetadata {
	var m model.ChunkMetadata
	found := false
	if v, ok := fields[FieldSource].(string); ok {
		m.Source, found = v, true
	}
	if v, ok := fields[FieldPage].(int64); ok {
		m.Page, found = int(v), true
	}
	if v, ok := fields[FieldChunkIndex].(int64); ok {
		m.ChunkIndex, found = int(v), true
	}
	if v, ok := fields[FieldContentType].(string); ok {
		m.ContentType, found = model.ContentType(v), true
	}
	switch v := fields[FieldOCRConfidence].(type) {
	case float64:
		m.OCRConfidence, found = v, true
	case float32:
		m.OCRConfidence, found = float64(v), true
	}
	if v, ok := fields[FieldDocumentID].(string); ok {
		m.DocumentID, found = v, true
	}
	if !found {
		return nil
	}
	return &m
}

func (s *MilvusStore) ListIDs(ctx context.Context) ([]string, error) {
	exists, err := s.client.HasCollection(ctx, s.collection)
	if err != nil || !exists {
		return []string{}, err
	}
	return s.client.QueryIDs(ctx, s.collection, "")
}

func (s *MilvusStore) DeleteAll(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.client.DeleteByIDs(ctx, s.collection, ids)
}

func (s *MilvusStore) Count(ctx context.Context) (int64, error) {
	exists, err := s.client.HasCollection(ctx, s.collection)
	if err != nil || !exists {
		return 0, err
	}
	return s.client.Count(ctx, s.collection)
}

func (s *MilvusStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *MilvusStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}
