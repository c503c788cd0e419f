package openai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docrag/pkg/llm"
	"github.com/kart-io/docrag/pkg/utils/json"
)

const testAPIKey = "test-key"

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL + "/"
	cfg.APIKey = testAPIKey
	cfg.Title = "Chat With Document"
	cfg.MaxRetries = 0
	cfg.Timeout = 5 * time.Second
	return NewProviderWithConfig(cfg)
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name      string
		config    map[string]any
		wantError bool
	}{
		{name: "valid config", config: map[string]any{"api_key": testAPIKey}},
		{name: "custom config", config: map[string]any{
			"api_key":    testAPIKey,
			"base_url":   "https://api.openai.com/v1",
			"chat_model": "gpt-4o",
			"timeout":    10 * time.Second,
		}},
		{name: "missing api_key", config: map[string]any{}, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(tt.config)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, ProviderName, provider.Name())
		})
	}
}

func TestCompleteSendsToolsAndParsesToolCalls(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer "+testAPIKey, r.Header.Get("Authorization"))
		assert.Equal(t, "Chat With Document", r.Header.Get("X-Title"))
		assert.Empty(t, r.Header.Get("HTTP-Referer"))

		raw, _ := io.ReadAll(r.Body)
		var req chatRequest
		require.NoError(t, json.Unmarshal(raw, &req))
		assert.Equal(t, "deepseek/deepseek-chat-v3.1", req.Model)
		require.Len(t, req.Tools, 1)
		assert.Equal(t, "function", req.Tools[0].Type)
		assert.Equal(t, "getInformation", req.Tools[0].Function.Name)
		require.NotNil(t, req.Temperature)
		assert.InDelta(t, 0.2, *req.Temperature, 1e-9)
		require.Len(t, req.Messages, 3)
		assert.Equal(t, "tool", req.Messages[2].Role)
		assert.Equal(t, "call_0", req.Messages[2].ToolCallID)
		assert.Equal(t, "call_0", req.Messages[1].ToolCalls[0].ID)

		_, _ = w.Write([]byte(`{
			"model": "deepseek/deepseek-chat-v3.1",
			"choices": [{"index": 0, "finish_reason": "tool_calls", "message": {
				"role": "assistant", "content": "",
				"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "getInformation", "arguments": "{\"documentId\":\"d1\",\"query\":\"q\",\"topK\":3}"}}]
			}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	})

	resp, err := p.Complete(context.Background(), &llm.ChatRequest{
		Model: "deepseek/deepseek-chat-v3.1",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "what is the total?"},
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "call_0", Name: "getInformation", Arguments: "{}"}}},
			{Role: llm.RoleTool, ToolCallID: "call_0", Name: "getInformation", Content: `{"error":"x"}`},
		},
		Tools: []llm.ToolDefinition{{Name: "getInformation", Description: "search", Parameters: map[string]any{"type": "object"}}},
		Temperature: llm.Float64(0.2),
	})
	require.NoError(t, err)
	assert.Equal(t, "tool_calls", resp.FinishReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "getInformation", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"documentId":"d1","query":"q","topK":3}`, resp.ToolCalls[0].Arguments)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestCompleteUsesDefaultModelAndOmitsTemperature(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var m map[string]any
		require.NoError(t, json.Unmarshal(raw, &m))
		assert.Equal(t, "anthropic/claude-3.5-sonnet", m["model"])
		_, hasTemp := m["temperature"]
		assert.False(t, hasTemp)
		_, hasTools := m["tools"]
		assert.False(t, hasTools)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"answer"},"finish_reason":"stop"}]}`))
	})

	resp, err := p.Complete(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "answer", resp.Content)
	assert.Empty(t, resp.ToolCalls)
}

func TestCompleteErrors(t *testing.T) {
	t.Run("no choices", func(t *testing.T) {
		p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		})
		_, err := p.Complete(context.Background(), &llm.ChatRequest{})
		assert.Error(t, err)
	})

	t.Run("api error body", func(t *testing.T) {
		p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"error":{"message":"model not found"}}`))
		})
		_, err := p.Complete(context.Background(), &llm.ChatRequest{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "model not found")
	})

	t.Run("http status", func(t *testing.T) {
		p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		_, err := p.Complete(context.Background(), &llm.ChatRequest{})
		assert.Error(t, err)
	})
}

func TestEmbedOrdersByIndex(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[2,2]},{"index":0,"embedding":[1,1]}]}`))
	})

	vecs, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1}, {2, 2}}, vecs)

	empty, err := p.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestEmbedMissingIndex(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1]}]}`))
	})
	_, err := p.Embed(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}
