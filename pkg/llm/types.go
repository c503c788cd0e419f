package llm

// Role 定义消息角色。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message 表示对话中的一条消息。
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCalls 是 assistant 消息中模型请求的工具调用。
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID 将 tool 消息关联到对应的调用。
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Name 是 tool 消息对应的工具名称。
	Name string `json:"name,omitempty"`
}

// ToolDefinition 描述一个可供模型调用的工具，Parameters 为 JSON Schema。
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall 是模型发出的一次工具调用，Arguments 为原始 JSON 文本。
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatRequest 一次补全请求。
type ChatRequest struct {
	// Model 为空时使用供应商配置的默认模型。
	Model    string           `json:"model,omitempty"`
	Messages []Message        `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`

	// Temperature 为 nil 时不下发，使用 API 默认值。
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}

// ChatResponse 一次补全的结果。
type ChatResponse struct {
	Content      string     `json:"content"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason,omitempty"`
	Model        string     `json:"model,omitempty"`
	Usage        TokenUsage `json:"usage"`
}

// TokenUsage Token 用量统计。
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add 累加另一份用量。
func (u *TokenUsage) Add(o TokenUsage) {
	u.PromptTokens += o.PromptTokens
	u.CompletionTokens += o.CompletionTokens
	u.TotalTokens += o.TotalTokens
}

// Float64 returns a pointer to v, for ChatRequest.Temperature.
func Float64(v float64) *float64 {
	return &v
}
