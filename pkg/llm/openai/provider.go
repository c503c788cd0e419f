// Package openai 提供兼容 OpenAI Chat Completions / Embeddings API 的供应商实现。
// 默认指向 OpenRouter，也可用于 OpenAI 官方、Azure OpenAI、LocalAI 等兼容服务。
//
// 基本用法示例：
//
//	import _ "github.com/kart-io/docrag/pkg/llm/openai"
//
//	provider, err := llm.NewChatProvider("openai", map[string]any{
//	    "api_key":    os.Getenv("CHAT_WITH_DOCUMENT_LLM_KEY"),
//	    "chat_model": "anthropic/claude-3.5-sonnet",
//	})
//
//	resp, err := provider.Complete(ctx, &llm.ChatRequest{
//	    Messages: []llm.Message{{Role: llm.RoleUser, Content: "你好"}},
//	})
package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kart-io/docrag/pkg/llm"
	"github.com/kart-io/docrag/pkg/utils/httpclient"
)

// ProviderName 是 OpenAI 兼容供应商的名称标识符
const ProviderName = "openai"

func init() {
	llm.RegisterProvider(ProviderName, NewProvider)
}

// Config OpenAI 兼容供应商配置。
type Config struct {
	// BaseURL API 基础地址。
	BaseURL string `json:"base_url" mapstructure:"base_url"`

	// APIKey API 密钥。
	APIKey string `json:"-" mapstructure:"api_key"`

	// EmbedModel 用于生成嵌入的模型。
	EmbedModel string `json:"embed_model" mapstructure:"embed_model"`

	// ChatModel 用于对话的默认模型，请求中指定 Model 时被覆盖。
	ChatModel string `json:"chat_model" mapstructure:"chat_model"`

	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max_retries" mapstructure:"max_retries"`

	// Organization 组织 ID（可选）。
	Organization string `json:"organization" mapstructure:"organization"`

	// Referer 与 Title 对应 OpenRouter 的可选归属头 HTTP-Referer / X-Title。
	Referer string `json:"referer" mapstructure:"referer"`
	Title   string `json:"title" mapstructure:"title"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "https://openrouter.ai/api/v1",
		EmbedModel: "text-embedding-3-small",
		ChatModel:  "anthropic/claude-3.5-sonnet",
		Timeout:    120 * time.Second,
		MaxRetries: 3,
	}
}

// Provider OpenAI 兼容供应商实现。
type Provider struct {
	config *Config
	client *httpclient.Client
}

var _ llm.Provider = (*Provider)(nil)

// NewProvider 从配置 map 创建供应商。
func NewProvider(configMap map[string]any) (llm.Provider, error) {
	cfg := DefaultConfig()

	for key, dst := range map[string]*string{
		"base_url":     &cfg.BaseURL,
		"api_key":      &cfg.APIKey,
		"embed_model":  &cfg.EmbedModel,
		"chat_model":   &cfg.ChatModel,
		"organization": &cfg.Organization,
		"referer":      &cfg.Referer,
		"title":        &cfg.Title,
	} {
		if v, ok := configMap[key].(string); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := configMap["timeout"].(time.Duration); ok && v > 0 {
		cfg.Timeout = v
	}
	if v, ok := configMap["max_retries"].(int); ok && v >= 0 {
		cfg.MaxRetries = v
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api_key 是必需的")
	}

	return NewProviderWithConfig(cfg), nil
}

// NewProviderWithConfig 使用结构化配置创建供应商。
func NewProviderWithConfig(cfg *Config) *Provider {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Provider{
		config: cfg,
		client: httpclient.NewClient(cfg.Timeout, cfg.MaxRetries),
	}
}

// Name 返回供应商名称。
func (p *Provider) Name() string {
	return ProviderName
}

func (p *Provider) headers() map[string]string {
	return map[string]string{
		"Authorization":       "Bearer " + p.config.APIKey,
		"OpenAI-Organization": p.config.Organization,
		"HTTP-Referer":        p.config.Referer,
		"X-Title":             p.config.Title,
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed 为多个文本生成向量嵌入。
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp embeddingResponse
	if err := p.client.PostJSON(ctx, p.config.BaseURL+"/embeddings", p.headers(),
		embeddingRequest{Model: p.config.EmbedModel, Input: texts}, &resp); err != nil {
		return nil, err
	}

	// 按 index 回填，确保与输入顺序一致
	embeddings := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(embeddings) {
			embeddings[d.Index] = d.Embedding
		}
	}
	for i, e := range embeddings {
		if e == nil {
			return nil, fmt.Errorf("openai: missing embedding for input %d", i)
		}
	}
	return embeddings, nil
}

// EmbedSingle 为单个文本生成向量嵌入。
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// Complete 执行一次对话补全，支持工具调用。
func (p *Provider) Complete(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	body := toWireRequest(req, p.config.ChatModel)

	var resp chatResponse
	if err := p.client.PostJSON(ctx, p.config.BaseURL+"/chat/completions", p.headers(), body, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("openai: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: 未返回响应内容")
	}

	return fromWireResponse(&resp), nil
}
