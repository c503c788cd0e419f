package biz

import (
	"context"

	"github.com/kart-io/docrag/internal/docrag/metrics"
	"github.com/kart-io/docrag/internal/docrag/model"
	"github.com/kart-io/docrag/internal/docrag/store"
	"github.com/kart-io/docrag/pkg/infra/tracing"
	"github.com/kart-io/docrag/pkg/llm"
	"github.com/kart-io/docrag/pkg/utils/errors"
)

// Retriever 负责查询向量化与向量检索。
type Retriever struct {
	embedder llm.EmbeddingProvider
	store    store.VectorStore
	metrics  *metrics.Metrics
}

// NewRetriever 创建检索器实例。
func NewRetriever(embedder llm.EmbeddingProvider, vectorStore store.VectorStore, m *metrics.Metrics) *Retriever {
	return &Retriever{embedder: embedder, store: vectorStore, metrics: m}
}

// Search 返回文档内与 query 最相近的 topK 个原始结果，不做相关性过滤。
func (r *Retriever) Search(ctx context.Context, documentID, query string, topK int) (res *model.SearchResults, err error) {
	ctx, span := tracing.StartSpan(ctx, "biz.Retriever.Search",
		tracing.AttrDocumentID.String(documentID),
		tracing.AttrTopK.Int(topK),
	)
	defer func() {
		tracing.RecordError(span, err)
		span.End()
	}()

	vec, err := r.embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, wrapExternal(errors.ErrEmbedding, err)
	}

	res, err = r.store.Query(ctx, vec, documentID, topK)
	if err != nil {
		return nil, wrapExternal(errors.ErrVectorStore, err)
	}
	r.metrics.RecordSearch()
	return res, nil
}
