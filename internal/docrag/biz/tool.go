package biz

import (
	"fmt"
	"math"

	"github.com/kart-io/docrag/internal/docrag/model"
	"github.com/kart-io/docrag/pkg/llm"
	"github.com/kart-io/docrag/pkg/utils/errors"
	"github.com/kart-io/docrag/pkg/utils/json"
	"github.com/kart-io/docrag/pkg/utils/validator"
)

// GetInformationToolName 检索工具名称。
const GetInformationToolName = "getInformation"

// DefaultToolTopK 模型未给出 topK 时的默认值。
const DefaultToolTopK = 5

// Tool 是智能体可调用工具的封闭集合，仅本包内的类型可以实现。
type Tool interface {
	Name() string
	sealed()
}

// GetInformationInput 检索工具的参数。
type GetInformationInput struct {
	DocumentID string `json:"documentId" validate:"required,docid"`
	Query      string `json:"query" validate:"required"`
	TopK       int    `json:"topK" validate:"min=1,max=50"`
}

// GetInformationOutput 检索工具的结果，即未经相关性过滤的原始 topK。
type GetInformationOutput struct {
	IDs       []string               `json:"ids"`
	Documents []string               `json:"documents"`
	Distances []float32              `json:"distances"`
	Metadatas []*model.ChunkMetadata `json:"metadatas"`
}

// GetInformationTool 在指定文档内检索与查询相关的内容。
type GetInformationTool struct {
	Input GetInformationInput
}

func (GetInformationTool) Name() string { return GetInformationToolName }
func (GetInformationTool) sealed()      {}

// ToolDefinitions 返回提供给模型的工具定义。
func ToolDefinitions() []llm.ToolDefinition {
	return []llm.ToolDefinition{{
		Name:        GetInformationToolName,
		Description: "Use this tool to search for relevant information to answer the user query.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"documentId": map[string]any{
					"type":        "string",
					"description": "The unique document id",
				},
				"query": map[string]any{
					"type":        "string",
					"description": "The search query",
				},
				"topK": map[string]any{
					"type":        "integer",
					"description": "The number of results to return",
					"minimum":     1,
					"maximum":     50,
				},
			},
			"required": []string{"documentId", "query", "topK"},
		},
	}}
}

// rawGetInformationArgs 兼容 uniqueDocumentId 别名，topK 可能以浮点数给出。
type rawGetInformationArgs struct {
	DocumentID       string   `json:"documentId"`
	UniqueDocumentID string   `json:"uniqueDocumentId"`
	Query            string   `json:"query"`
	TopK             *float64 `json:"topK"`
}

// ResolveTool 按名称解析一次工具调用并校验参数。未知工具返回错误而非 panic。
func ResolveTool(name, arguments string, v *validator.Validator, defaultTopK int) (Tool, error) {
	switch name {
	case GetInformationToolName:
		in, err := decodeGetInformationInput(arguments, v, defaultTopK)
		if err != nil {
			return nil, err
		}
		return GetInformationTool{Input: in}, nil
	default:
		return nil, errors.ErrInvalidToolArgs.WithMessagef("unknown tool %q", name)
	}
}

func decodeGetInformationInput(arguments string, v *validator.Validator, defaultTopK int) (GetInformationInput, error) {
	if defaultTopK <= 0 {
		defaultTopK = DefaultToolTopK
	}

	var raw rawGetInformationArgs
	if arguments != "" {
		if err := json.UnmarshalString(arguments, &raw); err != nil {
			return GetInformationInput{}, errors.ErrInvalidToolArgs.WithCause(fmt.Errorf("decode arguments: %w", err))
		}
	}

	in := GetInformationInput{
		DocumentID: raw.DocumentID,
		Query:      raw.Query,
		TopK:       defaultTopK,
	}
	if in.DocumentID == "" {
		in.DocumentID = raw.UniqueDocumentID
	}
	if raw.TopK != nil && *raw.TopK != 0 {
		k := *raw.TopK
		if k != math.Trunc(k) || math.Abs(k) > math.MaxInt32 {
			return GetInformationInput{}, errors.ErrInvalidToolArgs.WithMessagef("topK must be an integer, got %v", k)
		}
		in.TopK = int(k)
	}

	if err := v.Struct(in); err != nil {
		return GetInformationInput{}, errors.ErrInvalidToolArgs.WithCause(err)
	}
	return in, nil
}

func newGetInformationOutput(res *model.SearchResults) GetInformationOutput {
	if res == nil {
		res = model.EmptySearchResults()
	}
	return GetInformationOutput{
		IDs:       res.IDs,
		Documents: res.Documents,
		Distances: res.Distances,
		Metadatas: res.Metadatas,
	}
}
