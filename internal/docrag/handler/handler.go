// Package handler provides HTTP handlers for the docrag service.
package handler

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docrag/internal/docrag/biz"
	"github.com/kart-io/docrag/internal/docrag/metrics"
	"github.com/kart-io/docrag/pkg/component/storage"
	"github.com/kart-io/docrag/pkg/utils/errors"
	"github.com/kart-io/docrag/pkg/utils/response"
	"github.com/kart-io/docrag/pkg/utils/validator"
)

// MetricsNamespace prefixes every exported metric name.
const MetricsNamespace = "docrag"

// DocHandler handles docrag HTTP requests.
type DocHandler struct {
	service  biz.Service
	metrics  *metrics.Metrics
	storage  *storage.Manager
	validate *validator.Validator

	// ingestRoot confines ingest paths; empty allows any path.
	ingestRoot string
}

// NewDocHandler creates a new DocHandler. m and mgr may be nil.
func NewDocHandler(service biz.Service, m *metrics.Metrics, mgr *storage.Manager, v *validator.Validator) *DocHandler {
	if v == nil {
		v = validator.Global()
	}
	return &DocHandler{
		service:  service,
		metrics:  m,
		storage:  mgr,
		validate: v,
	}
}

// WithIngestRoot confines ingest requests to files under root. Relative
// request paths are resolved against root.
func (h *DocHandler) WithIngestRoot(root string) *DocHandler {
	h.ingestRoot = root
	return h
}

// resolvePath joins p onto the ingest root and rejects paths that leave it,
// including through symlinks.
func (h *DocHandler) resolvePath(p string) (string, error) {
	if h.ingestRoot == "" {
		return p, nil
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(h.ingestRoot, p)
	}
	p = filepath.Clean(p)

	rel, err := filepath.Rel(realPath(h.ingestRoot), realPath(p))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.ErrInvalidRequest.WithMessagef("path %q is outside the ingest root", p)
	}
	return p, nil
}

// realPath resolves symlinks in p. For a missing file only the parent
// directory is resolved.
func realPath(p string) string {
	if r, err := filepath.EvalSymlinks(p); err == nil {
		return r
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(p)); err == nil {
		return filepath.Join(dir, filepath.Base(p))
	}
	return filepath.Clean(p)
}

// IngestRequest represents an ingest request.
type IngestRequest struct {
	Path string `json:"path" validate:"required,pdfpath"`
}

// SearchRequest represents a raw similarity search request.
type SearchRequest struct {
	Query string `json:"query" validate:"required"`
	TopK  int    `json:"top_k" validate:"min=0,max=50"`
}

// QueryRequest represents a RAG query request.
type QueryRequest struct {
	Question string `json:"question" validate:"required"`
}

// AgenticQueryRequest represents an agentic query request.
type AgenticQueryRequest struct {
	Query string `json:"query" validate:"required"`
}

// DeleteAllResult reports how many ids were removed.
type DeleteAllResult struct {
	Deleted int `json:"deleted"`
}

// IDsResult lists stored ids.
type IDsResult struct {
	IDs   []string `json:"ids"`
	Count int      `json:"count"`
}

// bind decodes the JSON body into req and validates it. On failure the
// error response has already been written.
func (h *DocHandler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Fail(c, errors.ErrInvalidRequest.WithCause(err))
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		response.Fail(c, errors.ErrInvalidRequest.WithCause(err))
		return false
	}
	return true
}

// Ingest extracts and indexes a PDF for the document in the path.
func (h *DocHandler) Ingest(c *gin.Context) {
	var req IngestRequest
	if !h.bind(c, &req) {
		return
	}

	path, err := h.resolvePath(req.Path)
	if err != nil {
		logger.Warnw("Rejected ingest path", "document_id", c.Param("id"), "path", req.Path)
		response.Fail(c, err)
		return
	}

	result, err := h.service.Ingest(c.Request.Context(), c.Param("id"), path)
	if err != nil {
		logger.Errorw("Ingest failed", "document_id", c.Param("id"), "path", path, "error", err.Error())
		response.Fail(c, err)
		return
	}
	response.OK(c, result)
}

// Search returns the raw nearest chunks of a document.
func (h *DocHandler) Search(c *gin.Context) {
	var req SearchRequest
	if !h.bind(c, &req) {
		return
	}

	result, err := h.service.Search(c.Request.Context(), c.Param("id"), req.Query, req.TopK)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, result)
}

// Query answers a question from the document's retrieved context.
func (h *DocHandler) Query(c *gin.Context) {
	var req QueryRequest
	if !h.bind(c, &req) {
		return
	}

	result, err := h.service.Query(c.Request.Context(), c.Param("id"), req.Question)
	if err != nil {
		logger.Errorw("Query failed", "document_id", c.Param("id"), "error", err.Error())
		response.Fail(c, err)
		return
	}
	response.OK(c, result)
}

// AgenticQuery answers a query with the tool-calling agent.
func (h *DocHandler) AgenticQuery(c *gin.Context) {
	var req AgenticQueryRequest
	if !h.bind(c, &req) {
		return
	}

	result, err := h.service.AgenticQuery(c.Request.Context(), c.Param("id"), req.Query)
	if err != nil {
		logger.Errorw("Agentic query failed", "document_id", c.Param("id"), "error", err.Error())
		response.Fail(c, err)
		return
	}
	response.OK(c, result)
}

// ListIDs lists every stored chunk id.
func (h *DocHandler) ListIDs(c *gin.Context) {
	ids, err := h.service.ListIDs(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	response.OK(c, IDsResult{IDs: ids, Count: len(ids)})
}

// DeleteAll removes every stored chunk.
func (h *DocHandler) DeleteAll(c *gin.Context) {
	n, err := h.service.DeleteAll(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}
	logger.Infow("Deleted all chunks", "count", n)
	response.OK(c, DeleteAllResult{Deleted: n})
}

// Health pings every registered backend.
func (h *DocHandler) Health(c *gin.Context) {
	if h.storage == nil {
		response.OK(c, gin.H{"status": "ok"})
		return
	}

	statuses := h.storage.HealthCheckAll(c.Request.Context())
	if storage.AllHealthy(statuses) {
		response.OK(c, gin.H{"status": "ok", "backends": statuses})
		return
	}

	c.JSON(http.StatusServiceUnavailable, &response.Response{
		Code:      errors.ErrVectorStore.Code,
		Message:   "unhealthy",
		Data:      gin.H{"status": "unhealthy", "backends": statuses},
		RequestID: c.GetString(response.RequestIDKey),
	})
}

// Metrics renders the counters in Prometheus text format.
func (h *DocHandler) Metrics(c *gin.Context) {
	c.Data(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", []byte(h.metrics.Export(MetricsNamespace)))
}
