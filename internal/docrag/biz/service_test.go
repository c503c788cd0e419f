package biz

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docrag/internal/docrag/chunk"
	"github.com/kart-io/docrag/internal/docrag/metrics"
	"github.com/kart-io/docrag/internal/docrag/model"
	"github.com/kart-io/docrag/internal/docrag/store"
	"github.com/kart-io/docrag/pkg/component/milvus"
	"github.com/kart-io/docrag/pkg/llm"
	"github.com/kart-io/docrag/pkg/utils/errors"
	"github.com/kart-io/docrag/pkg/utils/id"
	"github.com/kart-io/docrag/pkg/utils/validator"
)

type serviceFixture struct {
	svc   *DocService
	store *fakeStore
	chat  *fakeChat
	m     *metrics.Metrics
}

func newServiceFixture(t *testing.T, ex Extractor, chat *fakeChat) *serviceFixture {
	t.Helper()
	splitter, err := chunk.NewSplitter(100, 10)
	require.NoError(t, err)

	st := &fakeStore{}
	m := metrics.New()
	emb := &fakeEmbedder{}
	retriever := NewRetriever(emb, st, m)
	deps := ServiceDeps{
		Extractor: ex,
		Chunker:   chunk.NewChunker(splitter),
		Indexer:   NewIndexer(emb, st, &IndexerConfig{BatchSize: 10}, nil, m),
		Retriever: retriever,
		Store:     st,
		Validator: validator.New(),
		Metrics:   m,
	}
	if chat != nil {
		deps.Generator = NewGenerator(chat, nil)
		deps.Agent = NewAgent(chat, retriever, deps.Validator, nil, m)
	}
	return &serviceFixture{
		svc:   NewDocService(deps, DefaultServiceConfig()),
		store: st,
		chat:  chat,
		m:     m,
	}
}

func writePDF(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(p, []byte("%PDF-1.4"), 0o600))
	return p
}

func TestIngest(t *testing.T) {
	f := newServiceFixture(t, fakeExtractor{pages: []model.PageRecord{
		{Content: "First page text.", Page: 1, ContentType: model.ContentText, Source: "doc.pdf"},
		{Content: "Scanned second page.", Page: 2, ContentType: model.ContentOCR, OCRConfidence: 88, Source: "doc.pdf"},
	}}, nil)

	res, err := f.svc.Ingest(context.Background(), "doc-1", writePDF(t))
	require.NoError(t, err)
	assert.Equal(t, "doc-1", res.DocumentID)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 2, res.Chunks)
	_, err = id.ParseULID(res.RunID)
	assert.NoError(t, err)

	assert.Equal(t, []string{"doc-1-chunk_0", "doc-1-chunk_1"}, f.store.ids)
	assert.Equal(t, model.ContentOCR, f.store.metas[1].ContentType)
	assert.Equal(t, 88.0, f.store.metas[1].OCRConfidence)

	snap := f.m.Snapshot()
	assert.Equal(t, uint64(1), snap.Ingestions)
	assert.Equal(t, uint64(2), snap.ChunksIndexed)
}

func TestIngestErrors(t *testing.T) {
	f := newServiceFixture(t, fakeExtractor{}, nil)
	ctx := context.Background()

	_, err := f.svc.Ingest(ctx, "bad id", writePDF(t))
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = f.svc.Ingest(ctx, "doc", filepath.Join(t.TempDir(), "missing.pdf"))
	assert.True(t, errors.Is(err, errors.ErrDocumentNotFound))

	_, err = f.svc.Ingest(ctx, "doc", writePDF(t))
	assert.True(t, errors.Is(err, errors.ErrNoContent), "zero chunks is fatal")

	f = newServiceFixture(t, fakeExtractor{err: errors.ErrExtraction.WithCause(errBoom)}, nil)
	_, err = f.svc.Ingest(ctx, "doc", writePDF(t))
	assert.True(t, errors.Is(err, errors.ErrExtraction))
	assert.Equal(t, uint64(1), f.m.Snapshot().IngestErrors)
}

func TestQueryEmptyContext(t *testing.T) {
	chat := &fakeChat{responses: []*llm.ChatResponse{{Content: "unused"}}}
	f := newServiceFixture(t, fakeExtractor{}, chat)
	f.store.results = &model.SearchResults{
		Documents: []string{"far away"},
		Distances: []float32{1.9},
	}

	resp, err := f.svc.Query(context.Background(), "doc", "anything?")
	require.NoError(t, err)
	assert.Equal(t, NoContextAnswer, resp.Answer)
	assert.Zero(t, resp.Confidence)
	assert.Zero(t, resp.ContextUsed)
	assert.Empty(t, resp.ChunksAnalyzed)
	assert.NotNil(t, resp.Sources)
	assert.Empty(t, chat.requests, "model is not called without context")
	assert.Equal(t, uint64(1), f.m.Snapshot().EmptyContexts)
}

func TestQueryGeneratesAnswer(t *testing.T) {
	chat := &fakeChat{responses: []*llm.ChatResponse{{Content: "It is 500 INR.", Usage: llm.TokenUsage{TotalTokens: 9}}}}
	f := newServiceFixture(t, fakeExtractor{}, chat)
	f.store.results = &model.SearchResults{
		Documents: []string{"less relevant", "total: 500"},
		Distances: []float32{0.9, 0.1},
		Metadatas: []*model.ChunkMetadata{{ChunkIndex: 4}, {ChunkIndex: 7}},
	}

	resp, err := f.svc.Query(context.Background(), "doc", "What is the total?")
	require.NoError(t, err)
	assert.Equal(t, "It is 500 INR.", resp.Answer)
	assert.Equal(t, 2, resp.ContextUsed)
	assert.Equal(t, 7, resp.ChunksAnalyzed[0].ChunkIndex)
	assert.Equal(t, "What is the total?", resp.Query)
	assert.Equal(t, 5, f.store.lastTopK)

	require.Len(t, chat.requests, 1)
	req := chat.requests[0]
	assert.Empty(t, req.Tools)
	require.NotNil(t, req.Temperature)
	assert.Equal(t, 0.7, *req.Temperature)
	assert.Equal(t, 1000, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "--- Context 1 (Relevance: 0.90) ---\ntotal: 500")
	assert.Equal(t, "What is the total?", req.Messages[1].Content)
}

func TestQueryErrors(t *testing.T) {
	f := newServiceFixture(t, fakeExtractor{}, nil)
	_, err := f.svc.Query(context.Background(), "doc", "q")
	assert.True(t, errors.Is(err, errors.ErrConfiguration))

	f = newServiceFixture(t, fakeExtractor{}, &fakeChat{err: errBoom})
	f.store.results = &model.SearchResults{Documents: []string{"x"}, Distances: []float32{0.1}}
	_, err = f.svc.Query(context.Background(), "doc", "q")
	assert.True(t, errors.Is(err, errors.ErrLLM))

	f.store.queryErr = errBoom
	_, err = f.svc.Query(context.Background(), "doc", "q")
	assert.True(t, errors.Is(err, errors.ErrVectorStore))

	_, err = f.svc.Query(context.Background(), "doc", "  ")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
	assert.Equal(t, uint64(3), f.m.Snapshot().QueryErrors)
}

func TestSearchDefaultsTopK(t *testing.T) {
	f := newServiceFixture(t, fakeExtractor{}, nil)
	_, err := f.svc.Search(context.Background(), "doc", "q", 0)
	require.NoError(t, err)
	assert.Equal(t, 5, f.store.lastTopK)

	_, err = f.svc.Search(context.Background(), "doc", "q", 12)
	require.NoError(t, err)
	assert.Equal(t, 12, f.store.lastTopK)
}

func TestListAndDeleteAll(t *testing.T) {
	f := newServiceFixture(t, fakeExtractor{}, nil)
	ctx := context.Background()

	n, err := f.svc.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Nil(t, f.store.deleted, "nothing deleted from an empty collection")

	f.store.ids = []string{"a-chunk_0", "a-chunk_1"}
	ids, err := f.svc.ListIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	n, err = f.svc.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, f.store.ids, f.store.deleted)
}

func TestAgenticQueryRequiresChat(t *testing.T) {
	f := newServiceFixture(t, fakeExtractor{}, nil)
	_, err := f.svc.AgenticQuery(context.Background(), "doc", "q")
	assert.True(t, errors.Is(err, errors.ErrConfiguration))

	f = newServiceFixture(t, fakeExtractor{}, &fakeChat{responses: []*llm.ChatResponse{{Content: "hi"}}})
	res, err := f.svc.AgenticQuery(context.Background(), "doc", "q")
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Text)
}

// unreachableMilvus has no collection; any data call fails the test.
type unreachableMilvus struct{ t *testing.T }

func (u unreachableMilvus) EnsureCollection(context.Context, *milvus.CollectionSchema) error {
	u.t.Fatal("EnsureCollection called")
	return nil
}

func (u unreachableMilvus) HasCollection(context.Context, string) (bool, error) { return false, nil }

func (u unreachableMilvus) Upsert(context.Context, string, *milvus.UpsertData) error {
	u.t.Fatal("Upsert called")
	return nil
}

func (u unreachableMilvus) Search(context.Context, string, []float32, int, string, []string) ([]milvus.SearchResult, error) {
	u.t.Fatal("Search called")
	return nil, nil
}

func (u unreachableMilvus) QueryIDs(context.Context, string, string) ([]string, error) {
	u.t.Fatal("QueryIDs called")
	return nil, nil
}

func (u unreachableMilvus) DeleteByIDs(context.Context, string, []string) error {
	u.t.Fatal("DeleteByIDs called")
	return nil
}

func (u unreachableMilvus) Count(context.Context, string) (int64, error) { return 0, nil }
func (u unreachableMilvus) Health(context.Context) error                { return nil }
func (u unreachableMilvus) Close(context.Context) error                 { return nil }

func TestOperationsBeforeFirstIngest(t *testing.T) {
	chat := &fakeChat{responses: []*llm.ChatResponse{{Content: "unused"}}}
	st := store.NewMilvusStore(unreachableMilvus{t: t}, "")
	m := metrics.New()
	emb := &fakeEmbedder{}
	retriever := NewRetriever(emb, st, m)
	v := validator.New()
	svc := NewDocService(ServiceDeps{
		Extractor: fakeExtractor{},
		Retriever: retriever,
		Store:     st,
		Validator: v,
		Metrics:   m,
		Generator: NewGenerator(chat, nil),
		Agent:     NewAgent(chat, retriever, v, nil, m),
	}, DefaultServiceConfig())
	ctx := context.Background()

	resp, err := svc.Query(ctx, "doc", "what is the total?")
	require.NoError(t, err)
	assert.Equal(t, NoContextAnswer, resp.Answer)
	assert.Zero(t, resp.Confidence)
	assert.Zero(t, resp.ContextUsed)
	assert.Empty(t, chat.requests)

	res, err := svc.Search(ctx, "doc", "total", 3)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Len())

	ids, err := svc.ListIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	n, err := svc.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
