package biz

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docrag/internal/docrag/metrics"
	"github.com/kart-io/docrag/internal/docrag/model"
	"github.com/kart-io/docrag/internal/docrag/store"
	"github.com/kart-io/docrag/pkg/infra/pool"
	"github.com/kart-io/docrag/pkg/llm"
	"github.com/kart-io/docrag/pkg/utils/errors"
)

// IndexerConfig 索引器配置。
type IndexerConfig struct {
	// BatchSize 每批向量化的文本块数量。
	BatchSize int
	// BatchPause 相邻两批之间的间隔。
	BatchPause time.Duration
	// Dimension 期望的向量维度，0 表示以第一条向量为准。
	Dimension int
}

// DefaultIndexerConfig 返回默认索引配置。
func DefaultIndexerConfig() *IndexerConfig {
	return &IndexerConfig{
		BatchSize:  10,
		BatchPause: 100 * time.Millisecond,
	}
}

// Indexer 负责文本块的向量化与入库。
type Indexer struct {
	embedder llm.EmbeddingProvider
	store    store.VectorStore
	config   *IndexerConfig
	// pool 非空时批次并发提交到工作池，结果按批次顺序合并。
	pool    *pool.Pool
	metrics *metrics.Metrics
}

// NewIndexer 创建索引器实例。workers 为 nil 时顺序处理批次。
func NewIndexer(embedder llm.EmbeddingProvider, vectorStore store.VectorStore, config *IndexerConfig, workers *pool.Pool, m *metrics.Metrics) *Indexer {
	if config == nil {
		config = DefaultIndexerConfig()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	return &Indexer{
		embedder: embedder,
		store:    vectorStore,
		config:   config,
		pool:     workers,
		metrics:  m,
	}
}

// Index 向量化并写入文档的全部文本块，返回写入数量。
func (i *Indexer) Index(ctx context.Context, documentID string, chunks []model.DocumentChunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for idx, c := range chunks {
		texts[idx] = c.Content
	}

	vectors, err := i.embedAll(ctx, texts)
	if err != nil {
		return 0, err
	}

	dim := len(vectors[0])
	if i.config.Dimension > 0 && dim != i.config.Dimension {
		return 0, errors.ErrConfiguration.WithMessagef(
			"embedding dimension %d does not match configured dimension %d", dim, i.config.Dimension)
	}
	if err := i.store.EnsureCollection(ctx, dim); err != nil {
		return 0, wrapExternal(errors.ErrVectorStore, err)
	}

	ids := make([]string, len(chunks))
	metas := make([]model.ChunkMetadata, len(chunks))
	for idx, c := range chunks {
		ids[idx] = model.StoreID(documentID, c.Metadata.ChunkIndex)
		metas[idx] = c.Metadata
		metas[idx].DocumentID = documentID
	}
	if err := i.store.Upsert(ctx, documentID, ids, vectors, texts, metas); err != nil {
		return 0, wrapExternal(errors.ErrVectorStore, err)
	}

	logger.Infow("chunks indexed", "document_id", documentID, "chunks", len(ids), "dimension", dim)
	return len(ids), nil
}

// embedAll 分批向量化，返回与 texts 一一对应的向量。
func (i *Indexer) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	size := i.config.BatchSize
	batches := (len(texts) + size - 1) / size

	embedBatch := func(ctx context.Context, b int) ([][]float32, error) {
		start := b * size
		end := min(start+size, len(texts))
		vecs, err := i.embedder.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, wrapExternal(errors.ErrEmbedding, err)
		}
		if len(vecs) != end-start {
			return nil, errors.ErrEmbedding.WithCause(
				fmt.Errorf("batch %d: got %d embeddings for %d texts", b, len(vecs), end-start))
		}
		i.metrics.RecordEmbedBatch()
		logger.Debugw("embedded batch", "batch", b+1, "of", batches, "size", end-start)
		return vecs, nil
	}

	var results [][][]float32
	if i.pool != nil && i.pool.Cap() > 1 && batches > 1 {
		var err error
		results, err = pool.Ordered(ctx, i.pool, batches, i.config.BatchPause, embedBatch)
		if err != nil {
			return nil, wrapExternal(errors.ErrEmbedding, err)
		}
	} else {
		results = make([][][]float32, batches)
		for b := 0; b < batches; b++ {
			if b > 0 && i.config.BatchPause > 0 {
				if err := sleep(ctx, i.config.BatchPause); err != nil {
					return nil, wrapExternal(errors.ErrEmbedding, err)
				}
			}
			vecs, err := embedBatch(ctx, b)
			if err != nil {
				return nil, err
			}
			results[b] = vecs
		}
	}

	vectors := make([][]float32, 0, len(texts))
	for _, r := range results {
		vectors = append(vectors, r...)
	}
	return vectors, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
