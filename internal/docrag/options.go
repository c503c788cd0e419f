// Package app provides the docrag application.
package app

import (
	"fmt"
	"path/filepath"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/docrag/internal/docrag/store"
	"github.com/kart-io/docrag/pkg/app/cliflag"
	llmopts "github.com/kart-io/docrag/pkg/options/llm"
	logopts "github.com/kart-io/docrag/pkg/options/logger"
	milvusopts "github.com/kart-io/docrag/pkg/options/milvus"
	pgopts "github.com/kart-io/docrag/pkg/options/postgres"
	redisopts "github.com/kart-io/docrag/pkg/options/redis"
	tracingopts "github.com/kart-io/docrag/pkg/options/tracing"
)

// Text engines for extract.text-engine.
const (
	TextEngineFitz = "fitz"
	TextEnginePDF  = "pdf"
)

// Options contains all docrag options.
type Options struct {
	// Log contains logger configuration.
	Log *logopts.Options `json:"log" mapstructure:"log"`

	// Store selects the vector store backend.
	Store *StoreOptions `json:"store" mapstructure:"store"`

	// Milvus contains Milvus configuration, used when store.backend=milvus.
	Milvus *milvusopts.Options `json:"milvus" mapstructure:"milvus"`

	// Postgres contains PostgreSQL configuration, used when store.backend=pgvector.
	Postgres *pgopts.Options `json:"postgres" mapstructure:"postgres"`

	// Embedding contains embedding provider configuration.
	Embedding *llmopts.EmbeddingOptions `json:"embedding" mapstructure:"embedding"`

	// Chat contains chat provider configuration.
	Chat *llmopts.ChatOptions `json:"chat" mapstructure:"chat"`

	// Agent contains agent loop configuration.
	Agent *AgentOptions `json:"agent" mapstructure:"agent"`

	// RAG contains retrieval and chunking configuration.
	RAG *RAGOptions `json:"rag" mapstructure:"rag"`

	// Extract contains PDF extraction configuration.
	Extract *ExtractOptions `json:"extract" mapstructure:"extract"`

	// Cache contains query embedding cache configuration.
	Cache *CacheOptions `json:"cache" mapstructure:"cache"`

	// Redis backs the cache.
	Redis *redisopts.Options `json:"redis" mapstructure:"redis"`

	// Tracing contains OpenTelemetry configuration.
	Tracing *tracingopts.Options `json:"tracing" mapstructure:"tracing"`

	// Server contains the HTTP server configuration of `docrag serve`.
	Server *ServerOptions `json:"server" mapstructure:"server"`
}

// StoreOptions selects the vector store.
type StoreOptions struct {
	// Backend is milvus or pgvector.
	Backend string `json:"backend" mapstructure:"backend"`
}

// AgentOptions 智能体配置。
type AgentOptions struct {
	// Model 智能体使用的模型，为空时沿用 chat.model。
	Model string `json:"model" mapstructure:"model"`

	// MaxSteps 模型调用次数上限。
	MaxSteps int `json:"max-steps" mapstructure:"max-steps"`

	// ToolTimeout 单次工具调用超时。
	ToolTimeout time.Duration `json:"tool-timeout" mapstructure:"tool-timeout"`

	// Timeout 整个智能体运行超时。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// DefaultTopK 模型未指定 topK 时的默认值。
	DefaultTopK int `json:"default-top-k" mapstructure:"default-top-k"`
}

// RAGOptions contains retrieval and chunking configuration.
type RAGOptions struct {
	// Collection is the Milvus collection or Postgres table name.
	Collection string `json:"collection" mapstructure:"collection"`

	// TopK is the number of chunks retrieved for a non-agentic query.
	TopK int `json:"top-k" mapstructure:"top-k"`

	// RelevanceThreshold drops hits whose distance exceeds it.
	RelevanceThreshold float64 `json:"relevance-threshold" mapstructure:"relevance-threshold"`

	ChunkSize    int `json:"chunk-size" mapstructure:"chunk-size"`
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`

	QueryTimeout  time.Duration `json:"query-timeout" mapstructure:"query-timeout"`
	IngestTimeout time.Duration `json:"ingest-timeout" mapstructure:"ingest-timeout"`
}

// ExtractOptions contains PDF extraction configuration.
type ExtractOptions struct {
	// DPI is the page rendering resolution for OCR.
	DPI float64 `json:"dpi" mapstructure:"dpi"`

	// TextEngine is fitz (MuPDF) or pdf (pure Go).
	TextEngine string `json:"text-engine" mapstructure:"text-engine"`

	// Preprocess enables grayscale, normalisation and thresholding before OCR.
	Preprocess bool `json:"preprocess" mapstructure:"preprocess"`

	// OCRLanguages are tesseract language codes.
	OCRLanguages []string `json:"ocr-languages" mapstructure:"ocr-languages"`

	// ScratchDir holds rendered page images; empty means the OS temp dir.
	ScratchDir string `json:"scratch-dir" mapstructure:"scratch-dir"`

	// IngestRoot confines the paths `serve` ingests; empty means the working
	// directory.
	IngestRoot string `json:"ingest-root" mapstructure:"ingest-root"`
}

// CacheOptions 查询向量缓存配置。
type CacheOptions struct {
	// Enabled 是否启用缓存。
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// TTL 缓存过期时间。
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`

	// KeyPrefix 缓存键前缀。
	KeyPrefix string `json:"key-prefix" mapstructure:"key-prefix"`
}

// ServerOptions contains HTTP server configuration.
type ServerOptions struct {
	Addr            string        `json:"addr" mapstructure:"addr"`
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
	RequestTimeout  time.Duration `json:"request-timeout" mapstructure:"request-timeout"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Log:       logopts.NewOptions(),
		Store:     &StoreOptions{Backend: store.BackendMilvus},
		Milvus:    milvusopts.NewOptions(),
		Postgres:  pgopts.NewOptions(),
		Embedding: llmopts.NewEmbeddingOptions(),
		Chat:      llmopts.NewChatOptions(),
		Agent: &AgentOptions{
			MaxSteps:    5,
			ToolTimeout: 30 * time.Second,
			Timeout:     2 * time.Minute,
			DefaultTopK: 5,
		},
		RAG: &RAGOptions{
			Collection:         store.DefaultCollection,
			TopK:               5,
			RelevanceThreshold: 1.5,
			ChunkSize:          1000,
			ChunkOverlap:       200,
			QueryTimeout:       2 * time.Minute,
			IngestTimeout:      30 * time.Minute,
		},
		Extract: &ExtractOptions{
			DPI:          300,
			TextEngine:   TextEngineFitz,
			Preprocess:   true,
			OCRLanguages: []string{"eng"},
		},
		Cache: &CacheOptions{
			Enabled:   false,
			TTL:       24 * time.Hour,
			KeyPrefix: "docrag:emb:",
		},
		Redis:   redisopts.NewOptions(),
		Tracing: tracingopts.NewOptions(),
		Server: &ServerOptions{
			Addr:            ":8082",
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  10 * time.Minute,
		},
	}
}

// Flags returns flags grouped by section.
func (o *Options) Flags() (fss cliflag.NamedFlagSets) {
	o.Log.AddFlags(fss.FlagSet("log"))

	fs := fss.FlagSet("store")
	fs.StringVar(&o.Store.Backend, "store.backend", o.Store.Backend, "Vector store backend (milvus, pgvector).")

	o.Milvus.AddFlags(fss.FlagSet("milvus"))
	o.Postgres.AddFlags(fss.FlagSet("postgres"))
	o.Embedding.AddFlags(fss.FlagSet("embedding"))
	o.Chat.AddFlags(fss.FlagSet("chat"))

	fs = fss.FlagSet("agent")
	fs.StringVar(&o.Agent.Model, "agent.model", o.Agent.Model, "Model used by the agent; empty uses chat.model.")
	fs.IntVar(&o.Agent.MaxSteps, "agent.max-steps", o.Agent.MaxSteps, "Maximum model invocations per agentic query.")
	fs.DurationVar(&o.Agent.ToolTimeout, "agent.tool-timeout", o.Agent.ToolTimeout, "Timeout of a single tool call.")
	fs.DurationVar(&o.Agent.Timeout, "agent.timeout", o.Agent.Timeout, "Timeout of a whole agentic query.")
	fs.IntVar(&o.Agent.DefaultTopK, "agent.default-top-k", o.Agent.DefaultTopK, "topK used when the model omits it.")

	fs = fss.FlagSet("rag")
	fs.StringVar(&o.RAG.Collection, "rag.collection", o.RAG.Collection, "Collection (Milvus) or table (pgvector) name.")
	fs.IntVar(&o.RAG.TopK, "rag.top-k", o.RAG.TopK, "Chunks retrieved per query.")
	fs.Float64Var(&o.RAG.RelevanceThreshold, "rag.relevance-threshold", o.RAG.RelevanceThreshold, "Maximum distance of a chunk kept as context.")
	fs.IntVar(&o.RAG.ChunkSize, "rag.chunk-size", o.RAG.ChunkSize, "Chunk size in characters.")
	fs.IntVar(&o.RAG.ChunkOverlap, "rag.chunk-overlap", o.RAG.ChunkOverlap, "Overlap between consecutive chunks in characters.")
	fs.DurationVar(&o.RAG.QueryTimeout, "rag.query-timeout", o.RAG.QueryTimeout, "Timeout of a non-agentic query.")
	fs.DurationVar(&o.RAG.IngestTimeout, "rag.ingest-timeout", o.RAG.IngestTimeout, "Timeout of one ingestion run.")

	fs = fss.FlagSet("extract")
	fs.Float64Var(&o.Extract.DPI, "extract.dpi", o.Extract.DPI, "Page rendering resolution for OCR.")
	fs.StringVar(&o.Extract.TextEngine, "extract.text-engine", o.Extract.TextEngine, "Text layer engine (fitz, pdf).")
	fs.BoolVar(&o.Extract.Preprocess, "extract.preprocess", o.Extract.Preprocess, "Preprocess page images before OCR.")
	fs.StringSliceVar(&o.Extract.OCRLanguages, "extract.ocr-languages", o.Extract.OCRLanguages, "Tesseract languages.")
	fs.StringVar(&o.Extract.ScratchDir, "extract.scratch-dir", o.Extract.ScratchDir, "Directory for rendered page images.")
	fs.StringVar(&o.Extract.IngestRoot, "extract.ingest-root", o.Extract.IngestRoot, "Directory the HTTP ingest endpoint may read PDFs from.")

	fs = fss.FlagSet("cache")
	fs.BoolVar(&o.Cache.Enabled, "cache.enabled", o.Cache.Enabled, "Cache query embeddings in Redis.")
	fs.DurationVar(&o.Cache.TTL, "cache.ttl", o.Cache.TTL, "Cache TTL duration.")
	fs.StringVar(&o.Cache.KeyPrefix, "cache.key-prefix", o.Cache.KeyPrefix, "Cache key prefix.")

	o.Redis.AddFlags(fss.FlagSet("redis"))
	o.Tracing.AddFlags(fss.FlagSet("tracing"))

	fs = fss.FlagSet("server")
	fs.StringVar(&o.Server.Addr, "server.addr", o.Server.Addr, "HTTP listen address of `serve`.")
	fs.DurationVar(&o.Server.ShutdownTimeout, "server.shutdown-timeout", o.Server.ShutdownTimeout, "Graceful shutdown timeout.")
	fs.DurationVar(&o.Server.RequestTimeout, "server.request-timeout", o.Server.RequestTimeout, "Per-request timeout; 0 disables it.")

	return fss
}

// Complete completes the options.
func (o *Options) Complete() error {
	if err := o.Chat.Complete(); err != nil {
		return err
	}
	if o.Agent.Model == "" {
		o.Agent.Model = o.Chat.Model
	}
	if o.Tracing.ServiceName == "" {
		o.Tracing.ServiceName = appName
	}
	root, err := filepath.Abs(o.Extract.IngestRoot)
	if err != nil {
		return fmt.Errorf("extract.ingest-root: %w", err)
	}
	o.Extract.IngestRoot = root
	return nil
}

// Validate validates the options.
func (o *Options) Validate() error {
	var errs []error
	errs = append(errs, o.Log.Validate()...)

	switch o.Store.Backend {
	case store.BackendMilvus:
		errs = append(errs, o.Milvus.Validate()...)
	case store.BackendPGVector:
		errs = append(errs, o.Postgres.Validate()...)
	default:
		errs = append(errs, fmt.Errorf("store.backend must be %q or %q, got %q", store.BackendMilvus, store.BackendPGVector, o.Store.Backend))
	}

	errs = append(errs, o.Embedding.Validate()...)
	errs = append(errs, o.Chat.Validate()...)

	if o.Agent.MaxSteps <= 0 {
		errs = append(errs, fmt.Errorf("agent.max-steps must be positive, got %d", o.Agent.MaxSteps))
	}
	if o.Agent.ToolTimeout <= 0 {
		errs = append(errs, fmt.Errorf("agent.tool-timeout must be positive"))
	}
	if o.Agent.DefaultTopK <= 0 {
		errs = append(errs, fmt.Errorf("agent.default-top-k must be positive, got %d", o.Agent.DefaultTopK))
	}

	if o.RAG.Collection == "" {
		errs = append(errs, fmt.Errorf("rag.collection is required"))
	}
	if o.RAG.TopK <= 0 {
		errs = append(errs, fmt.Errorf("rag.top-k must be positive, got %d", o.RAG.TopK))
	}
	if o.RAG.RelevanceThreshold <= 0 {
		errs = append(errs, fmt.Errorf("rag.relevance-threshold must be positive"))
	}
	if o.RAG.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("rag.chunk-size must be positive, got %d", o.RAG.ChunkSize))
	}
	if o.RAG.ChunkOverlap < 0 || o.RAG.ChunkOverlap >= o.RAG.ChunkSize {
		errs = append(errs, fmt.Errorf("rag.chunk-overlap must be in [0, chunk-size), got %d", o.RAG.ChunkOverlap))
	}

	if o.Extract.DPI <= 0 {
		errs = append(errs, fmt.Errorf("extract.dpi must be positive"))
	}
	if o.Extract.TextEngine != TextEngineFitz && o.Extract.TextEngine != TextEnginePDF {
		errs = append(errs, fmt.Errorf("extract.text-engine must be %q or %q, got %q", TextEngineFitz, TextEnginePDF, o.Extract.TextEngine))
	}
	if len(o.Extract.OCRLanguages) == 0 {
		errs = append(errs, fmt.Errorf("extract.ocr-languages must not be empty"))
	}

	if o.Cache.Enabled {
		if o.Cache.TTL <= 0 {
			errs = append(errs, fmt.Errorf("cache.ttl must be positive"))
		}
		errs = append(errs, o.Redis.Validate()...)
	}

	errs = append(errs, o.Tracing.Validate()...)

	if o.Server.Addr == "" {
		errs = append(errs, fmt.Errorf("server.addr is required"))
	}
	if o.Server.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.request-timeout must not be negative"))
	}

	return utilerrors.NewAggregate(errs)
}
