package model

import (
	"math"

	"github.com/kart-io/docrag/pkg/llm"
)

// SearchResults is the raw vector store answer as parallel arrays.
// A nil Metadatas entry means metadata is missing; a Distances index past
// the end, or a NaN value, means the distance is missing.
type SearchResults struct {
	IDs       []string         `json:"ids"`
	Documents []string         `json:"documents"`
	Distances []float32        `json:"distances"`
	Metadatas []*ChunkMetadata `json:"metadatas"`
}

// Len returns the number of documents in the result.
func (r *SearchResults) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Documents)
}

// Distance returns the i-th distance and whether it is present.
func (r *SearchResults) Distance(i int) (float64, bool) {
	if r == nil || i < 0 || i >= len(r.Distances) {
		return 0, false
	}
	d := float64(r.Distances[i])
	if math.IsNaN(d) {
		return 0, false
	}
	return d, true
}

// Metadata returns the i-th metadata, or nil when it is missing.
func (r *SearchResults) Metadata(i int) *ChunkMetadata {
	if r == nil || i < 0 || i >= len(r.Metadatas) {
		return nil
	}
	return r.Metadatas[i]
}

// EmptySearchResults returns a result with non-nil empty slices so it
// serialises as empty arrays.
func EmptySearchResults() *SearchResults {
	return &SearchResults{
		IDs:       []string{},
		Documents: []string{},
		Distances: []float32{},
		Metadatas: []*ChunkMetadata{},
	}
}

// ContextChunk is a retrieved chunk that passed the relevance threshold.
type ContextChunk struct {
	Content        string  `json:"content"`
	Source         string  `json:"source"`
	Page           int     `json:"page"`
	ChunkIndex     int     `json:"chunk_index"`
	Distance       float64 `json:"distance"`
	RelevanceScore float64 `json:"relevance_score"`
}

// RAGResponse is the answer to a non-agentic query.
type RAGResponse struct {
	Answer         string         `json:"answer"`
	Query          string         `json:"query"`
	Sources        []string       `json:"sources"`
	Confidence     float64        `json:"confidence"`
	ContextUsed    int            `json:"context_used"`
	ChunksAnalyzed []ContextChunk `json:"chunks_analyzed"`
}

// IngestResult summarises one ingestion run.
type IngestResult struct {
	DocumentID string `json:"document_id"`
	Pages      int    `json:"pages"`
	Chunks     int    `json:"chunks"`
	RunID      string `json:"run_id"`
}

// StepKind distinguishes tool-call steps from text steps.
type StepKind string

const (
	StepToolCall StepKind = "tool_call"
	StepText     StepKind = "text"
)

// AgentStep records one model invocation or one tool call within it. All
// tool calls of one invocation share the same Index.
type AgentStep struct {
	Index      int      `json:"index"`
	Kind       StepKind `json:"kind"`
	ToolName   string   `json:"tool_name,omitempty"`
	Arguments  string   `json:"arguments,omitempty"`
	ToolResult string   `json:"tool_result,omitempty"`
	ToolError  string   `json:"tool_error,omitempty"`
	Text       string   `json:"text,omitempty"`
}

// AgentResult is the outcome of an agentic query.
type AgentResult struct {
	Text             string         `json:"text"`
	Steps            []AgentStep    `json:"steps"`
	StepCount        int            `json:"step_count"`
	Usage            llm.TokenUsage `json:"usage"`
	StepLimitReached bool           `json:"step_limit_reached"`
}
