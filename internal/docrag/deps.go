package app

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docrag/internal/docrag/biz"
	"github.com/kart-io/docrag/internal/docrag/chunk"
	"github.com/kart-io/docrag/internal/docrag/extract"
	"github.com/kart-io/docrag/internal/docrag/metrics"
	"github.com/kart-io/docrag/internal/docrag/store"
	"github.com/kart-io/docrag/pkg/component/milvus"
	"github.com/kart-io/docrag/pkg/component/postgres"
	"github.com/kart-io/docrag/pkg/component/redis"
	"github.com/kart-io/docrag/pkg/component/storage"
	"github.com/kart-io/docrag/pkg/infra/pool"
	"github.com/kart-io/docrag/pkg/infra/tracing"
	"github.com/kart-io/docrag/pkg/llm"
	"github.com/kart-io/docrag/pkg/llm/resilience"
	llmopts "github.com/kart-io/docrag/pkg/options/llm"
	"github.com/kart-io/docrag/pkg/utils/errors"
	"github.com/kart-io/docrag/pkg/utils/validator"

	// 导入 LLM 供应商以自动注册
	_ "github.com/kart-io/docrag/pkg/llm/huggingface"
	_ "github.com/kart-io/docrag/pkg/llm/ollama"
	_ "github.com/kart-io/docrag/pkg/llm/openai"
)

// Deps holds every long-lived component of one docrag process.
type Deps struct {
	Service biz.Service
	Metrics *metrics.Metrics
	Storage *storage.Manager

	tracer  *tracing.Provider
	workers *pool.Pool
}

// storeClient lets the storage manager ping and close a vector store.
type storeClient struct {
	store store.VectorStore
}

func (c storeClient) Name() string                   { return c.store.Name() }
func (c storeClient) Ping(ctx context.Context) error { return c.store.Health(ctx) }
func (c storeClient) Close() error                   { return c.store.Close(context.Background()) }

// NewDeps connects the backends and assembles the service. withChat builds
// the chat provider, generator and agent; it requires an API key for
// providers that need one.
func NewDeps(ctx context.Context, opts *Options, withChat bool) (_ *Deps, err error) {
	deps := &Deps{
		Metrics: metrics.New(),
		Storage: storage.NewManager(),
	}
	defer func() {
		if err != nil {
			deps.Close()
		}
	}()

	// 1. 初始化 Tracing
	deps.tracer, err = tracing.NewProvider(ctx, opts.Tracing)
	if err != nil {
		return nil, errors.ErrConfiguration.WithCause(err)
	}

	// 2. 初始化向量库
	vectorStore, err := deps.openStore(ctx, opts)
	if err != nil {
		return nil, err
	}

	// 3. 初始化 Embedding 供应商
	embedder, err := newEmbedder(opts)
	if err != nil {
		return nil, err
	}
	queryEmbedder, err := deps.withCache(ctx, opts, embedder)
	if err != nil {
		return nil, err
	}

	// 4. 初始化工作池
	if opts.Embedding.Concurrency > 1 {
		deps.workers, err = pool.NewPool("embed", pool.DefaultConfig(opts.Embedding.Concurrency))
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding pool: %w", err)
		}
	}

	// 5. 初始化 Biz 层
	splitter, err := chunk.NewSplitter(opts.RAG.ChunkSize, opts.RAG.ChunkOverlap)
	if err != nil {
		return nil, errors.ErrConfiguration.WithCause(err)
	}

	retriever := biz.NewRetriever(queryEmbedder, vectorStore, deps.Metrics)
	v := validator.Global()

	serviceDeps := biz.ServiceDeps{
		Extractor: newExtractor(opts.Extract, deps.Metrics),
		Chunker:   chunk.NewChunker(splitter),
		Indexer: biz.NewIndexer(embedder, vectorStore, &biz.IndexerConfig{
			BatchSize:  opts.Embedding.BatchSize,
			BatchPause: opts.Embedding.BatchPause,
			Dimension:  opts.Embedding.Dim,
		}, deps.workers, deps.Metrics),
		Retriever: retriever,
		Store:     vectorStore,
		Validator: v,
		Metrics:   deps.Metrics,
	}

	if withChat {
		chat, err := newChat(opts)
		if err != nil {
			return nil, err
		}
		serviceDeps.Generator = biz.NewGenerator(chat, &biz.GeneratorConfig{
			Model:       opts.Chat.Model,
			Temperature: opts.Chat.Temperature,
			MaxTokens:   opts.Chat.MaxTokens,
		})
		serviceDeps.Agent = biz.NewAgent(chat, retriever, v, &biz.AgentConfig{
			Model:       opts.Agent.Model,
			MaxSteps:    opts.Agent.MaxSteps,
			ToolTimeout: opts.Agent.ToolTimeout,
			Timeout:     opts.Agent.Timeout,
			DefaultTopK: opts.Agent.DefaultTopK,
		}, deps.Metrics)
		logger.Infow("Chat provider initialized",
			"provider", opts.Chat.Provider,
			"model", opts.Chat.Model,
			"agent.model", opts.Agent.Model,
		)
	}

	deps.Service = biz.NewDocService(serviceDeps, &biz.ServiceConfig{
		TopK:               opts.RAG.TopK,
		RelevanceThreshold: opts.RAG.RelevanceThreshold,
		QueryTimeout:       opts.RAG.QueryTimeout,
		IngestTimeout:      opts.RAG.IngestTimeout,
	})
	logger.Infow("Doc service initialized",
		"store.backend", vectorStore.Name(),
		"collection", opts.RAG.Collection,
		"embedding.concurrency", opts.Embedding.Concurrency,
		"cache.enabled", opts.Cache.Enabled,
	)
	return deps, nil
}

func (d *Deps) openStore(ctx context.Context, opts *Options) (store.VectorStore, error) {
	switch opts.Store.Backend {
	case store.BackendPGVector:
		client, err := postgres.New(ctx, opts.Postgres)
		if err != nil {
			return nil, errors.ErrVectorStore.WithCause(err)
		}
		if err := d.Storage.Register(client.Name(), client); err != nil {
			_ = client.Close()
			return nil, err
		}
		s, err := store.NewPGVectorStore(client.DB(), opts.RAG.Collection)
		if err != nil {
			return nil, errors.ErrConfiguration.WithCause(err)
		}
		logger.Infow("PostgreSQL client initialized", "postgres", opts.Postgres.String(), "table", opts.RAG.Collection)
		return s, nil

	case store.BackendMilvus:
		client, err := milvus.New(ctx, opts.Milvus)
		if err != nil {
			return nil, errors.ErrVectorStore.WithCause(err)
		}
		s := store.NewMilvusStore(client, opts.RAG.Collection)
		if err := d.Storage.Register(s.Name(), storeClient{store: s}); err != nil {
			_ = client.Close(context.Background())
			return nil, err
		}
		logger.Infow("Milvus client initialized", "address", opts.Milvus.Address, "collection", opts.RAG.Collection)
		return s, nil

	default:
		return nil, errors.ErrConfiguration.WithMessagef("unknown store backend %q", opts.Store.Backend)
	}
}

// wrappedConfig leaves retries to the resilience wrapper, so the provider's
// HTTP client makes a single attempt per call.
func wrappedConfig(cfg map[string]any) map[string]any {
	cfg["max_retries"] = 0
	return cfg
}

func retryConfig(maxRetries int) *resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = maxRetries + 1
	return cfg
}

func newEmbedder(opts *Options) (llm.EmbeddingProvider, error) {
	p, err := llm.NewEmbeddingProvider(opts.Embedding.Provider, wrappedConfig(opts.Embedding.ToConfigMap()))
	if err != nil {
		return nil, errors.ErrConfiguration.WithCause(fmt.Errorf("failed to initialize embedding provider: %w", err))
	}
	logger.Infow("Embedding provider initialized",
		"provider", opts.Embedding.Provider,
		"model", opts.Embedding.Model,
		"dim", opts.Embedding.Dim,
	)
	return resilience.WrapEmbedding(p, retryConfig(opts.Embedding.MaxRetries), resilience.DefaultCircuitBreakerConfig()), nil
}

// withCache returns the embedder used for queries. A Redis outage at
// startup disables the cache instead of failing.
func (d *Deps) withCache(ctx context.Context, opts *Options, embedder llm.EmbeddingProvider) (llm.EmbeddingProvider, error) {
	if !opts.Cache.Enabled {
		logger.Info("Cache is disabled")
		return embedder, nil
	}

	client, err := redis.New(ctx, opts.Redis)
	if err != nil {
		logger.Warnw("failed to connect to redis, cache will be disabled", "redis", opts.Redis.String(), "error", err.Error())
		return embedder, nil
	}
	if err := d.Storage.Register(client.Name(), client); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Infow("Redis cache initialized", "addr", opts.Redis.Addr(), "ttl", opts.Cache.TTL)
	return llm.NewCachedEmbeddingProvider(embedder, client.Client(), &llm.EmbeddingCacheConfig{
		Enabled:   true,
		TTL:       opts.Cache.TTL,
		KeyPrefix: opts.Cache.KeyPrefix,
	}), nil
}

func newChat(opts *Options) (llm.ChatProvider, error) {
	if opts.Chat.APIKey == "" && opts.Chat.Provider != "ollama" {
		return nil, errors.ErrConfiguration.WithMessagef("chat API key is missing: set chat.api-key or $%s", llmopts.ChatAPIKeyEnv)
	}
	p, err := llm.NewChatProvider(opts.Chat.Provider, wrappedConfig(opts.Chat.ToConfigMap()))
	if err != nil {
		return nil, errors.ErrConfiguration.WithCause(fmt.Errorf("failed to initialize chat provider: %w", err))
	}
	return resilience.WrapChat(p, retryConfig(opts.Chat.MaxRetries), resilience.DefaultCircuitBreakerConfig()), nil
}

func newExtractor(opts *ExtractOptions, m *metrics.Metrics) *extract.FusionExtractor {
	var text extract.TextSource = extract.FitzDocument{}
	if opts.TextEngine == TextEnginePDF {
		text = extract.PlainTextSource{}
	}

	extractorOpts := []extract.Option{extract.WithMetrics(m)}
	if opts.Preprocess {
		extractorOpts = append(extractorOpts, extract.WithPreprocessor(extract.ImagingPreprocessor{}))
	}

	return extract.NewFusionExtractor(text, extract.FitzDocument{}, extract.TesseractFactory(opts.OCRLanguages...), extract.Config{
		DPI:        opts.DPI,
		ScratchDir: opts.ScratchDir,
	}, extractorOpts...)
}

// Close releases every backend. It is safe to call on partially built deps.
func (d *Deps) Close() {
	if d == nil {
		return
	}
	if d.workers != nil {
		d.workers.Release()
	}
	if d.Storage != nil {
		if err := d.Storage.CloseAll(); err != nil {
			logger.Warnw("failed to close storage clients", "error", err.Error())
		}
	}
	if d.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.tracer.Shutdown(ctx); err != nil {
			logger.Warnw("failed to shutdown tracer", "error", err.Error())
		}
	}
}
