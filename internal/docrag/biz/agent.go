package biz

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docrag/internal/docrag/metrics"
	"github.com/kart-io/docrag/internal/docrag/model"
	"github.com/kart-io/docrag/pkg/infra/tracing"
	"github.com/kart-io/docrag/pkg/llm"
	"github.com/kart-io/docrag/pkg/utils/errors"
	"github.com/kart-io/docrag/pkg/utils/json"
	"github.com/kart-io/docrag/pkg/utils/validator"
)

// AgentConfig 智能体配置。
type AgentConfig struct {
	// Model 为空时使用供应商默认模型。
	Model string
	// MaxSteps 模型调用次数上限。
	MaxSteps int
	// ToolTimeout 单次工具调用超时。
	ToolTimeout time.Duration
	// Timeout 整个智能体运行的超时，0 表示不限制。
	Timeout time.Duration
	// DefaultTopK 模型未给出 topK 时使用。
	DefaultTopK int
}

// DefaultAgentConfig 返回默认智能体配置。
func DefaultAgentConfig() *AgentConfig {
	return &AgentConfig{
		MaxSteps:    5,
		ToolTimeout: 30 * time.Second,
		Timeout:     2 * time.Minute,
		DefaultTopK: DefaultToolTopK,
	}
}

// AgentSystemPrompt 返回限定在单个文档内检索作答的系统提示词。
func AgentSystemPrompt(documentID string) string {
	return fmt.Sprintf(`You are an assistant that answers questions about a single document.
The document id is %q.
Before answering, call the %s tool with documentId %q and a focused search query to retrieve relevant passages. You may call it again with a different query if the first results are not enough.
Answer ONLY from the retrieved content. If it does not contain the answer, say so clearly.`,
		documentID, GetInformationToolName, documentID)
}

// Agent 驱动有步数上限的工具调用循环。
type Agent struct {
	chat      llm.ChatProvider
	retriever *Retriever
	validate  *validator.Validator
	config    *AgentConfig
	metrics   *metrics.Metrics
}

// NewAgent 创建智能体实例。
func NewAgent(chat llm.ChatProvider, retriever *Retriever, v *validator.Validator, config *AgentConfig, m *metrics.Metrics) *Agent {
	if config == nil {
		config = DefaultAgentConfig()
	}
	if config.MaxSteps <= 0 {
		config.MaxSteps = 5
	}
	if v == nil {
		v = validator.Global()
	}
	return &Agent{chat: chat, retriever: retriever, validate: v, config: config, metrics: m}
}

// Run 执行一次智能体查询。
// 模型不再请求工具时返回其文本；达到步数上限时返回最后一次文本并标记 StepLimitReached。
// 工具失败以 {"error": ...} 形式回传给模型，模型调用失败则直接返回错误。
func (a *Agent) Run(ctx context.Context, documentID, query string) (result *model.AgentResult, err error) {
	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}
	ctx, span := tracing.StartSpan(ctx, "biz.Agent.Run", tracing.AttrDocumentID.String(documentID))
	defer func() {
		tracing.RecordError(span, err)
		span.End()
	}()

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: AgentSystemPrompt(documentID)},
		{Role: llm.RoleUser, Content: query},
	}
	tools := ToolDefinitions()
	result = &model.AgentResult{Steps: []model.AgentStep{}}

	for step := 0; step < a.config.MaxSteps; step++ {
		resp, err := a.chat.Complete(ctx, &llm.ChatRequest{
			Model:    a.config.Model,
			Messages: messages,
			Tools:    tools,
		})
		if err != nil {
			logger.Errorw("agent model call failed", "step", step, "error", err)
			return nil, wrapExternal(errors.ErrLLM, err)
		}
		result.StepCount++
		result.Usage.Add(resp.Usage)
		result.Text = resp.Content

		if len(resp.ToolCalls) == 0 {
			result.Steps = append(result.Steps, model.AgentStep{Index: step, Kind: model.StepText, Text: resp.Content})
			a.finish(result)
			return result, nil
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			payload, toolErr := a.invoke(ctx, step, call)
			rec := model.AgentStep{
				Index:     step,
				Kind:      model.StepToolCall,
				ToolName:  call.Name,
				Arguments: call.Arguments,
				Text:      resp.Content,
			}
			if toolErr != nil {
				rec.ToolError = toolErr.Error()
			} else {
				rec.ToolResult = payload
			}
			result.Steps = append(result.Steps, rec)
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: call.ID,
				Name:       call.Name,
				Content:    payload,
			})
		}
	}

	logger.Warnw("agent step limit reached", "document_id", documentID, "max_steps", a.config.MaxSteps)
	result.StepLimitReached = true
	a.finish(result)
	return result, nil
}

func (a *Agent) finish(result *model.AgentResult) {
	a.metrics.RecordAgentRun(result.StepCount, result.StepLimitReached)
	a.metrics.RecordUsage(result.Usage)
	logger.Infow("agent finished",
		"steps", result.StepCount,
		"step_limit_reached", result.StepLimitReached,
		"prompt_tokens", result.Usage.PromptTokens,
		"completion_tokens", result.Usage.CompletionTokens,
	)
}

// invoke 执行一次工具调用，返回写入 tool 消息的内容。失败时内容为 {"error": ...}。
func (a *Agent) invoke(ctx context.Context, step int, call llm.ToolCall) (payload string, err error) {
	ctx, span := tracing.StartSpan(ctx, "biz.Agent.tool",
		tracing.AttrTool.String(call.Name),
		tracing.AttrStep.Int(step),
	)
	defer func() {
		tracing.RecordError(span, err)
		span.End()
		a.metrics.RecordToolCall(err)
	}()

	tool, err := ResolveTool(call.Name, call.Arguments, a.validate, a.config.DefaultTopK)
	if err != nil {
		logger.Warnw("tool call rejected", "tool", call.Name, "error", err)
		return toolErrorPayload(err), err
	}

	if a.config.ToolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.ToolTimeout)
		defer cancel()
	}

	var out any
	switch t := tool.(type) {
	case GetInformationTool:
		logger.Infow("tool call", "tool", t.Name(), "document_id", t.Input.DocumentID, "query", t.Input.Query, "top_k", t.Input.TopK)
		res, serr := a.retriever.Search(ctx, t.Input.DocumentID, t.Input.Query, t.Input.TopK)
		if serr != nil {
			err = serr
			break
		}
		out = newGetInformationOutput(res)
	default:
		err = errors.ErrInvalidToolArgs.WithMessagef("unsupported tool %q", tool.Name())
	}
	if err != nil {
		logger.Warnw("tool call failed", "tool", call.Name, "error", err)
		return toolErrorPayload(err), err
	}

	payload, err = json.MarshalString(out)
	if err != nil {
		return toolErrorPayload(err), err
	}
	return payload, nil
}

func toolErrorPayload(err error) string {
	s, mErr := json.MarshalString(map[string]string{"error": err.Error()})
	if mErr != nil {
		return `{"error":"tool failed"}`
	}
	return s
}
