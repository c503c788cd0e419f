package biz

import (
	"context"

	"github.com/kart-io/logger"

	"github.com/kart-io/docrag/pkg/llm"
	"github.com/kart-io/docrag/pkg/utils/errors"
)

// NoContextAnswer 检索不到相关上下文时的固定回答。
const NoContextAnswer = "I couldn't find relevant information to answer your question."

// GeneratorConfig 生成器配置。
type GeneratorConfig struct {
	// Model 为空时使用供应商默认模型。
	Model string
	// Temperature 采样温度。
	Temperature float64
	// MaxTokens 最大生成 Token 数。
	MaxTokens int
}

// DefaultGeneratorConfig 返回默认生成参数。
func DefaultGeneratorConfig() *GeneratorConfig {
	return &GeneratorConfig{
		Temperature: 0.7,
		MaxTokens:   1000,
	}
}

// Generator 负责答案生成。
type Generator struct {
	chat   llm.ChatProvider
	config *GeneratorConfig
}

// NewGenerator 创建生成器实例。
func NewGenerator(chat llm.ChatProvider, config *GeneratorConfig) *Generator {
	if config == nil {
		config = DefaultGeneratorConfig()
	}
	return &Generator{chat: chat, config: config}
}

// Generate 以 prompt 作为系统消息、question 作为用户消息调用模型，不携带工具。
func (g *Generator) Generate(ctx context.Context, question, prompt string) (string, llm.TokenUsage, error) {
	req := &llm.ChatRequest{
		Model: g.config.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: prompt},
			{Role: llm.RoleUser, Content: question},
		},
		Temperature: llm.Float64(g.config.Temperature),
		MaxTokens:   g.config.MaxTokens,
	}

	resp, err := g.chat.Complete(ctx, req)
	if err != nil {
		logger.Errorw("LLM generation failed", "provider", g.chat.Name(), "error", err)
		return "", llm.TokenUsage{}, wrapExternal(errors.ErrLLM, err)
	}

	logger.Infof("LLM answer generated (length: %d, tokens: %d)", len(resp.Content), resp.Usage.TotalTokens)
	return resp.Content, resp.Usage, nil
}
