package biz

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/kart-io/docrag/internal/docrag/model"
	"github.com/kart-io/docrag/internal/docrag/store"
	"github.com/kart-io/docrag/pkg/llm"
)

type fakeEmbedder struct {
	mu      sync.Mutex
	batches [][]string
	short   bool
	err     error
}

func (f *fakeEmbedder) Name() string { return "fake" }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batches = append(f.batches, texts)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	n := len(texts)
	if f.short {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

type fakeStore struct {
	dim        int
	documentID string
	ids        []string
	vectors    [][]float32
	texts      []string
	metas      []model.ChunkMetadata
	results    *model.SearchResults
	queryErr   error
	lastTopK   int
	lastDocID  string
	deleted    []string
	queryCalls int
}

var _ store.VectorStore = (*fakeStore)(nil)

func (f *fakeStore) EnsureCollection(_ context.Context, dim int) error {
	f.dim = dim
	return nil
}

func (f *fakeStore) Upsert(_ context.Context, documentID string, ids []string, vectors [][]float32, texts []string, metas []model.ChunkMetadata) error {
	f.documentID = documentID
	f.ids, f.vectors, f.texts, f.metas = ids, vectors, texts, metas
	return nil
}

func (f *fakeStore) Query(_ context.Context, _ []float32, documentID string, topK int) (*model.SearchResults, error) {
	f.queryCalls++
	f.lastDocID, f.lastTopK = documentID, topK
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.results == nil {
		return model.EmptySearchResults(), nil
	}
	return f.results, nil
}

func (f *fakeStore) ListIDs(context.Context) ([]string, error) { return f.ids, nil }

func (f *fakeStore) DeleteAll(_ context.Context, ids []string) error {
	f.deleted = ids
	return nil
}

func (f *fakeStore) Count(context.Context) (int64, error) { return int64(len(f.ids)), nil }
func (f *fakeStore) Health(context.Context) error         { return nil }
func (f *fakeStore) Name() string                         { return "fake" }
func (f *fakeStore) Close(context.Context) error          { return nil }

// fakeChat replays responses in order; once exhausted it repeats the last one.
type fakeChat struct {
	responses []*llm.ChatResponse
	err       error
	requests  []*llm.ChatRequest
}

func (f *fakeChat) Name() string { return "fake-chat" }

func (f *fakeChat) Complete(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	cp := *req
	cp.Messages = append([]llm.Message(nil), req.Messages...)
	f.requests = append(f.requests, &cp)
	if f.err != nil {
		return nil, f.err
	}
	i := min(len(f.requests)-1, len(f.responses)-1)
	return f.responses[i], nil
}

type fakeExtractor struct {
	pages []model.PageRecord
	err   error
}

func (f fakeExtractor) Extract(context.Context, string) ([]model.PageRecord, error) {
	return f.pages, f.err
}

var errBoom = stderrors.New("boom")
