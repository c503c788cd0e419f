package huggingface

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, body string) *Provider {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pipeline/feature-extraction/sentence-transformers/all-mpnet-base-v2", r.URL.Path)
		assert.Equal(t, "Bearer hf-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.APIKey = "hf-key"
	cfg.MaxRetries = 0
	cfg.Timeout = 5 * time.Second
	return NewProviderWithConfig(cfg)
}

func TestEmbedSentenceVectorsNormalized(t *testing.T) {
	p := newTestProvider(t, `[[3,4],[0,2]]`)

	vecs, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, vecs[0], 1e-6)
	assert.InDeltaSlice(t, []float32{0, 1}, vecs[1], 1e-6)
}

func TestEmbedTokenVectorsMeanPooled(t *testing.T) {
	// 两个 token 的均值为 [2,0]，归一化后为 [1,0]
	p := newTestProvider(t, `[[[1,0],[3,0]]]`)

	vec, err := p.EmbedSingle(context.Background(), "a")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{1, 0}, vec, 1e-6)
}

func TestEmbedCountMismatch(t *testing.T) {
	p := newTestProvider(t, `[[1,0]]`)
	_, err := p.Embed(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestNewProviderRequiresKey(t *testing.T) {
	_, err := NewProvider(map[string]any{})
	assert.Error(t, err)

	p, err := NewProvider(map[string]any{"api_key": "k", "embed_model": "m"})
	require.NoError(t, err)
	assert.Equal(t, ProviderName, p.Name())
}
