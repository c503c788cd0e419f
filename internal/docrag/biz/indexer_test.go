package biz

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docrag/internal/docrag/metrics"
	"github.com/kart-io/docrag/internal/docrag/model"
	"github.com/kart-io/docrag/pkg/infra/pool"
	"github.com/kart-io/docrag/pkg/utils/errors"
)

func makeChunks(n int) []model.DocumentChunk {
	chunks := make([]model.DocumentChunk, n)
	for i := range chunks {
		chunks[i] = model.DocumentChunk{
			ID:      model.ChunkID(i),
			Content: fmt.Sprintf("chunk-%0*d", i+1, i),
			Metadata: model.ChunkMetadata{
				Source: "a.pdf", Page: 1 + i/5, ChunkIndex: i, ContentType: model.ContentText,
			},
		}
	}
	return chunks
}

func TestIndexerBatchesAndUpserts(t *testing.T) {
	emb := &fakeEmbedder{}
	st := &fakeStore{}
	m := metrics.New()
	idx := NewIndexer(emb, st, &IndexerConfig{BatchSize: 10, BatchPause: time.Millisecond}, nil, m)

	chunks := makeChunks(23)
	n, err := idx.Index(context.Background(), "doc", chunks)
	require.NoError(t, err)
	assert.Equal(t, 23, n)

	require.Len(t, emb.batches, 3)
	assert.Len(t, emb.batches[0], 10)
	assert.Len(t, emb.batches[2], 3)
	assert.Equal(t, uint64(3), m.Snapshot().EmbedBatches)

	assert.Equal(t, 2, st.dim)
	assert.Equal(t, "doc", st.documentID)
	assert.Equal(t, "doc-chunk_0", st.ids[0])
	assert.Equal(t, "doc-chunk_22", st.ids[22])
	assert.Equal(t, chunks[22].Content, st.texts[22])
	assert.Equal(t, "doc", st.metas[5].DocumentID)
	for i, v := range st.vectors {
		assert.Equal(t, float32(len(chunks[i].Content)), v[0], "vector %d out of order", i)
	}
}

func TestIndexerConcurrentKeepsOrder(t *testing.T) {
	p, err := pool.NewPool("embed-test", pool.DefaultConfig(4))
	require.NoError(t, err)
	defer p.Release()

	emb := &fakeEmbedder{}
	st := &fakeStore{}
	idx := NewIndexer(emb, st, &IndexerConfig{BatchSize: 2}, p, nil)

	chunks := makeChunks(11)
	_, err = idx.Index(context.Background(), "doc", chunks)
	require.NoError(t, err)

	assert.Len(t, emb.batches, 6)
	require.Len(t, st.vectors, 11)
	for i, v := range st.vectors {
		assert.Equal(t, float32(len(chunks[i].Content)), v[0], "vector %d out of order", i)
	}
}

func TestIndexerLengthMismatch(t *testing.T) {
	st := &fakeStore{}
	idx := NewIndexer(&fakeEmbedder{short: true}, st, nil, nil, nil)

	_, err := idx.Index(context.Background(), "doc", makeChunks(3))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrEmbedding))
	assert.Nil(t, st.ids, "nothing is written")
}

func TestIndexerEmbeddingFailure(t *testing.T) {
	idx := NewIndexer(&fakeEmbedder{err: errBoom}, &fakeStore{}, nil, nil, nil)
	_, err := idx.Index(context.Background(), "doc", makeChunks(2))
	assert.True(t, errors.Is(err, errors.ErrEmbedding))
	assert.ErrorIs(t, err, errBoom)
}

func TestIndexerDimensionMismatch(t *testing.T) {
	idx := NewIndexer(&fakeEmbedder{}, &fakeStore{}, &IndexerConfig{BatchSize: 10, Dimension: 768}, nil, nil)
	_, err := idx.Index(context.Background(), "doc", makeChunks(1))
	assert.True(t, errors.Is(err, errors.ErrConfiguration))
}

func TestIndexerCancelledDuringPause(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	emb := &fakeEmbedder{}
	idx := NewIndexer(emb, &fakeStore{}, &IndexerConfig{BatchSize: 1, BatchPause: time.Hour}, nil, nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := idx.Index(ctx, "doc", makeChunks(3))
	assert.True(t, errors.Is(err, errors.ErrCancelled))
	assert.Len(t, emb.batches, 1)
}
