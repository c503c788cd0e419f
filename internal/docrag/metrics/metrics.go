// Package metrics 提供 docrag 的业务指标收集与 Prometheus 文本导出。
package metrics

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kart-io/docrag/pkg/llm"
)

// Metrics docrag 业务指标。由 NewDeps 创建一次并注入各组件，nil 接收者上的调用为空操作。
type Metrics struct {
	// 摄取指标
	ingestions     atomic.Uint64 // 成功摄取的文档数
	ingestErrors   atomic.Uint64 // 摄取失败次数
	pagesExtracted atomic.Uint64 // 融合后保留的页数
	ocrFailures    atomic.Uint64 // OCR 失败（已降级）次数
	chunksIndexed  atomic.Uint64 // 已写入的分块数
	embedBatches   atomic.Uint64 // 向量化批次数

	// 查询指标
	queries       atomic.Uint64 // 非 agent 查询次数
	queryErrors   atomic.Uint64 // 查询失败次数
	emptyContexts atomic.Uint64 // 上下文为空返回固定回答的次数
	searches      atomic.Uint64 // 原始检索次数

	// Agent 指标
	agentRuns       atomic.Uint64 // agent 运行次数
	agentSteps      atomic.Uint64 // 模型调用步数
	agentStepLimits atomic.Uint64 // 达到步数上限的次数
	toolCalls       atomic.Uint64 // 工具调用次数
	toolErrors      atomic.Uint64 // 工具错误次数

	// LLM Token
	promptTokens     atomic.Uint64
	completionTokens atomic.Uint64

	startTime time.Time
}

// New 创建指标实例。
func New() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordIngest 记录一次摄取结果。
func (m *Metrics) RecordIngest(pages, chunks int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ingestErrors.Add(1)
		return
	}
	m.ingestions.Add(1)
	m.pagesExtracted.Add(uint64(pages))
	m.chunksIndexed.Add(uint64(chunks))
}

// RecordOCRFailure 记录一次被降级处理的 OCR 失败。
func (m *Metrics) RecordOCRFailure() {
	if m == nil {
		return
	}
	m.ocrFailures.Add(1)
}

// RecordEmbedBatch 记录一个向量化批次。
func (m *Metrics) RecordEmbedBatch() {
	if m == nil {
		return
	}
	m.embedBatches.Add(1)
}

// RecordSearch 记录一次原始检索。
func (m *Metrics) RecordSearch() {
	if m == nil {
		return
	}
	m.searches.Add(1)
}

// RecordQuery 记录一次查询，emptyContext 表示返回了固定回答。
func (m *Metrics) RecordQuery(emptyContext bool, err error) {
	if m == nil {
		return
	}
	m.queries.Add(1)
	if err != nil {
		m.queryErrors.Add(1)
		return
	}
	if emptyContext {
		m.emptyContexts.Add(1)
	}
}

// RecordAgentRun 记录一次 agent 运行。
func (m *Metrics) RecordAgentRun(steps int, stepLimitReached bool) {
	if m == nil {
		return
	}
	m.agentRuns.Add(1)
	m.agentSteps.Add(uint64(steps))
	if stepLimitReached {
		m.agentStepLimits.Add(1)
	}
}

// RecordToolCall 记录一次工具调用。
func (m *Metrics) RecordToolCall(err error) {
	if m == nil {
		return
	}
	m.toolCalls.Add(1)
	if err != nil {
		m.toolErrors.Add(1)
	}
}

// RecordUsage 累加 LLM token 用量。
func (m *Metrics) RecordUsage(u llm.TokenUsage) {
	if m == nil {
		return
	}
	if u.PromptTokens > 0 {
		m.promptTokens.Add(uint64(u.PromptTokens))
	}
	if u.CompletionTokens > 0 {
		m.completionTokens.Add(uint64(u.CompletionTokens))
	}
}

// Snapshot 当前计数的只读副本。
type Snapshot struct {
	Ingestions       uint64 `json:"ingestions"`
	IngestErrors     uint64 `json:"ingest_errors"`
	PagesExtracted   uint64 `json:"pages_extracted"`
	OCRFailures      uint64 `json:"ocr_failures"`
	ChunksIndexed    uint64 `json:"chunks_indexed"`
	EmbedBatches     uint64 `json:"embed_batches"`
	Queries          uint64 `json:"queries"`
	QueryErrors      uint64 `json:"query_errors"`
	EmptyContexts    uint64 `json:"empty_contexts"`
	Searches         uint64 `json:"searches"`
	AgentRuns        uint64 `json:"agent_runs"`
	AgentSteps       uint64 `json:"agent_steps"`
	AgentStepLimits  uint64 `json:"agent_step_limits"`
	ToolCalls        uint64 `json:"tool_calls"`
	ToolErrors       uint64 `json:"tool_errors"`
	PromptTokens     uint64 `json:"prompt_tokens"`
	CompletionTokens uint64 `json:"completion_tokens"`
}

// Snapshot 返回当前计数。
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		Ingestions:       m.ingestions.Load(),
		IngestErrors:     m.ingestErrors.Load(),
		PagesExtracted:   m.pagesExtracted.Load(),
		OCRFailures:      m.ocrFailures.Load(),
		ChunksIndexed:    m.chunksIndexed.Load(),
		EmbedBatches:     m.embedBatches.Load(),
		Queries:          m.queries.Load(),
		QueryErrors:      m.queryErrors.Load(),
		EmptyContexts:    m.emptyContexts.Load(),
		Searches:         m.searches.Load(),
		AgentRuns:        m.agentRuns.Load(),
		AgentSteps:       m.agentSteps.Load(),
		AgentStepLimits:  m.agentStepLimits.Load(),
		ToolCalls:        m.toolCalls.Load(),
		ToolErrors:       m.toolErrors.Load(),
		PromptTokens:     m.promptTokens.Load(),
		CompletionTokens: m.completionTokens.Load(),
	}
}

type series struct {
	name  string
	help  string
	kind  string
	value string
}

// Export 导出 Prometheus 文本格式指标，名称前缀为 namespace。
func (m *Metrics) Export(namespace string) string {
	s := m.Snapshot()
	uptime := 0.0
	if m != nil {
		uptime = time.Since(m.startTime).Seconds()
	}

	counter := func(name, help string, v uint64) series {
		return series{name: name, help: help, kind: "counter", value: fmt.Sprintf("%d", v)}
	}

	all := []series{
		counter("documents_ingested_total", "Documents ingested successfully.", s.Ingestions),
		counter("ingest_errors_total", "Failed ingestion runs.", s.IngestErrors),
		counter("pages_extracted_total", "Pages kept after text and OCR fusion.", s.PagesExtracted),
		counter("ocr_failures_total", "OCR failures degraded to empty text.", s.OCRFailures),
		counter("chunks_indexed_total", "Chunks written to the vector store.", s.ChunksIndexed),
		counter("embed_batches_total", "Embedding batches sent.", s.EmbedBatches),
		counter("queries_total", "Non-agentic queries.", s.Queries),
		counter("query_errors_total", "Failed non-agentic queries.", s.QueryErrors),
		counter("empty_contexts_total", "Queries answered with the no-context response.", s.EmptyContexts),
		counter("searches_total", "Raw similarity searches.", s.Searches),
		counter("agent_runs_total", "Agentic query runs.", s.AgentRuns),
		counter("agent_steps_total", "Model invocations made by the agent loop.", s.AgentSteps),
		counter("agent_step_limit_total", "Agent runs that hit the step limit.", s.AgentStepLimits),
		counter("tool_calls_total", "Tool calls executed by the agent.", s.ToolCalls),
		counter("tool_errors_total", "Tool calls that returned an error to the model.", s.ToolErrors),
		counter("llm_tokens_prompt_total", "Prompt tokens reported by the chat provider.", s.PromptTokens),
		counter("llm_tokens_completion_total", "Completion tokens reported by the chat provider.", s.CompletionTokens),
		{name: "uptime_seconds", help: "Process uptime in seconds.", kind: "gauge", value: fmt.Sprintf("%.2f", uptime)},
	}

	var sb strings.Builder
	for _, x := range all {
		full := namespace + "_" + x.name
		fmt.Fprintf(&sb, "# HELP %s %s\n", full, x.help)
		fmt.Fprintf(&sb, "# TYPE %s %s\n", full, x.kind)
		fmt.Fprintf(&sb, "%s %s\n\n", full, x.value)
	}
	return sb.String()
}
