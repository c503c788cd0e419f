package biz

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docrag/internal/docrag/chunk"
	"github.com/kart-io/docrag/internal/docrag/metrics"
	"github.com/kart-io/docrag/internal/docrag/model"
	"github.com/kart-io/docrag/internal/docrag/store"
	"github.com/kart-io/docrag/pkg/infra/tracing"
	"github.com/kart-io/docrag/pkg/utils/errors"
	"github.com/kart-io/docrag/pkg/utils/id"
	"github.com/kart-io/docrag/pkg/utils/validator"
)

// Extractor 将 PDF 提取为融合后的页面记录。
type Extractor interface {
	Extract(ctx context.Context, pdfPath string) ([]model.PageRecord, error)
}

// Service 定义 docrag 对外提供的全部操作。
type Service interface {
	// Ingest 提取、分块、向量化并写入一个 PDF 文档。
	Ingest(ctx context.Context, documentID, pdfPath string) (*model.IngestResult, error)
	// Search 返回文档内的原始 topK 检索结果。
	Search(ctx context.Context, documentID, query string, topK int) (*model.SearchResults, error)
	// Query 执行非智能体 RAG 查询。
	Query(ctx context.Context, documentID, question string) (*model.RAGResponse, error)
	// AgenticQuery 执行带工具调用的智能体查询。
	AgenticQuery(ctx context.Context, documentID, query string) (*model.AgentResult, error)
	// ListIDs 列出集合中的全部 id。
	ListIDs(ctx context.Context) ([]string, error)
	// DeleteAll 删除集合中的全部数据，返回删除数量。
	DeleteAll(ctx context.Context) (int, error)
}

// ServiceConfig 服务配置。
type ServiceConfig struct {
	// TopK 非智能体查询的检索数量。
	TopK int
	// RelevanceThreshold 相关性距离阈值。
	RelevanceThreshold float64
	// QueryTimeout 单次查询超时，0 表示不限制。
	QueryTimeout time.Duration
	// IngestTimeout 单次摄取超时，0 表示不限制。
	IngestTimeout time.Duration
}

// DefaultServiceConfig 返回默认服务配置。
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		TopK:               5,
		RelevanceThreshold: DefaultRelevanceThreshold,
		QueryTimeout:       2 * time.Minute,
		IngestTimeout:      30 * time.Minute,
	}
}

// DocService 组合提取、分块、索引、检索与生成组件。
type DocService struct {
	extractor Extractor
	chunker   *chunk.Chunker
	indexer   *Indexer
	retriever *Retriever
	// generator 与 agent 依赖 Chat 供应商，未配置时为 nil。
	generator *Generator
	agent     *Agent
	store     store.VectorStore
	validate  *validator.Validator
	config    *ServiceConfig
	metrics   *metrics.Metrics
}

var _ Service = (*DocService)(nil)

// ServiceDeps DocService 的依赖集合。
type ServiceDeps struct {
	Extractor Extractor
	Chunker   *chunk.Chunker
	Indexer   *Indexer
	Retriever *Retriever
	Generator *Generator
	Agent     *Agent
	Store     store.VectorStore
	Validator *validator.Validator
	Metrics   *metrics.Metrics
}

// NewDocService 创建文档服务实例。
func NewDocService(deps ServiceDeps, config *ServiceConfig) *DocService {
	if config == nil {
		config = DefaultServiceConfig()
	}
	if deps.Validator == nil {
		deps.Validator = validator.Global()
	}
	return &DocService{
		extractor: deps.Extractor,
		chunker:   deps.Chunker,
		indexer:   deps.Indexer,
		retriever: deps.Retriever,
		generator: deps.Generator,
		agent:     deps.Agent,
		store:     deps.Store,
		validate:  deps.Validator,
		config:    config,
		metrics:   deps.Metrics,
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func checkDocumentID(documentID string) error {
	if !validator.IsDocID(documentID) {
		return errors.ErrInvalidRequest.WithMessagef("invalid document id %q", documentID)
	}
	return nil
}

func checkText(field, s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.ErrInvalidRequest.WithMessagef("%s must not be empty", field)
	}
	return nil
}

// Ingest 提取、分块、向量化并写入一个 PDF 文档。
func (s *DocService) Ingest(ctx context.Context, documentID, pdfPath string) (result *model.IngestResult, err error) {
	runID := id.NewULID()
	ctx, cancel := withTimeout(ctx, s.config.IngestTimeout)
	defer cancel()
	ctx, span := tracing.StartSpan(ctx, "biz.DocService.Ingest", tracing.AttrDocumentID.String(documentID))
	pages, chunks := 0, 0
	defer func() {
		err = wrapExternal(errors.ErrInternal, err)
		s.metrics.RecordIngest(pages, chunks, err)
		span.SetAttributes(tracing.AttrPages.Int(pages), tracing.AttrChunks.Int(chunks))
		tracing.RecordError(span, err)
		span.End()
	}()

	if err := checkDocumentID(documentID); err != nil {
		return nil, err
	}
	info, statErr := os.Stat(pdfPath)
	if statErr != nil || info.IsDir() {
		return nil, errors.ErrDocumentNotFound.WithMessagef("pdf file not found: %s", pdfPath)
	}

	logger.Infow("ingestion started", "run_id", runID, "document_id", documentID, "path", pdfPath)

	records, err := s.extractor.Extract(ctx, pdfPath)
	if err != nil {
		return nil, err
	}
	pages = len(records)

	docChunks, err := s.chunker.Chunk(documentID, records)
	if err != nil {
		return nil, err
	}
	logger.Infof("Created %d chunks from %d pages", len(docChunks), pages)

	chunks, err = s.indexer.Index(ctx, documentID, docChunks)
	if err != nil {
		return nil, err
	}

	logger.Infow("ingestion finished", "run_id", runID, "document_id", documentID, "pages", pages, "chunks", chunks)
	return &model.IngestResult{
		DocumentID: documentID,
		Pages:      pages,
		Chunks:     chunks,
		RunID:      runID,
	}, nil
}

// Search 返回文档内的原始 topK 检索结果。
func (s *DocService) Search(ctx context.Context, documentID, query string, topK int) (*model.SearchResults, error) {
	if err := checkDocumentID(documentID); err != nil {
		return nil, err
	}
	if err := checkText("query", query); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = s.config.TopK
	}
	ctx, cancel := withTimeout(ctx, s.config.QueryTimeout)
	defer cancel()
	return s.retriever.Search(ctx, documentID, query, topK)
}

// Query 执行非智能体 RAG 查询。上下文为空时返回固定回答而非错误。
func (s *DocService) Query(ctx context.Context, documentID, question string) (resp *model.RAGResponse, err error) {
	emptyContext := false
	defer func() {
		s.metrics.RecordQuery(emptyContext, err)
	}()

	if err := checkDocumentID(documentID); err != nil {
		return nil, err
	}
	if err := checkText("question", question); err != nil {
		return nil, err
	}
	if s.generator == nil {
		return nil, errors.ErrConfiguration.WithMessage("chat provider is not configured")
	}

	ctx, cancel := withTimeout(ctx, s.config.QueryTimeout)
	defer cancel()
	ctx, span := tracing.StartSpan(ctx, "biz.DocService.Query", tracing.AttrDocumentID.String(documentID))
	defer func() {
		tracing.RecordError(span, err)
		span.End()
	}()

	logger.Infof("Searching for relevant documents for query: %s", question)
	results, err := s.retriever.Search(ctx, documentID, question, s.config.TopK)
	if err != nil {
		return nil, err
	}

	chunks := BuildContext(results, s.config.RelevanceThreshold)
	if len(chunks) == 0 {
		emptyContext = true
		logger.Infow("no relevant context", "document_id", documentID, "candidates", results.Len())
		return &model.RAGResponse{
			Answer:         NoContextAnswer,
			Query:          question,
			Sources:        []string{},
			Confidence:     0.0,
			ContextUsed:    0,
			ChunksAnalyzed: []model.ContextChunk{},
		}, nil
	}

	prompt := AssemblePrompt(question, chunks)
	answer, usage, err := s.generator.Generate(ctx, question, prompt)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordUsage(usage)

	return &model.RAGResponse{
		Answer:         answer,
		Query:          question,
		Sources:        []string{},
		Confidence:     0.0,
		ContextUsed:    len(chunks),
		ChunksAnalyzed: chunks,
	}, nil
}

// AgenticQuery 执行带工具调用的智能体查询。
func (s *DocService) AgenticQuery(ctx context.Context, documentID, query string) (*model.AgentResult, error) {
	if err := checkDocumentID(documentID); err != nil {
		return nil, err
	}
	if err := checkText("query", query); err != nil {
		return nil, err
	}
	if s.agent == nil {
		return nil, errors.ErrConfiguration.WithMessage("chat provider is not configured")
	}
	return s.agent.Run(ctx, documentID, query)
}

// ListIDs 列出集合中的全部 id。
func (s *DocService) ListIDs(ctx context.Context) ([]string, error) {
	ids, err := s.store.ListIDs(ctx)
	if err != nil {
		return nil, wrapExternal(errors.ErrVectorStore, err)
	}
	return ids, nil
}

// DeleteAll 删除集合中的全部数据，返回删除数量。
func (s *DocService) DeleteAll(ctx context.Context) (int, error) {
	ids, err := s.ListIDs(ctx)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		logger.Info("collection is already empty")
		return 0, nil
	}
	if err := s.store.DeleteAll(ctx, ids); err != nil {
		return 0, wrapExternal(errors.ErrVectorStore, err)
	}
	logger.Infow("deleted all chunks", "count", len(ids))
	return len(ids), nil
}
