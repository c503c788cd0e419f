package llm

import (
	"context"
	"testing"
)

// mockProvider 模拟供应商实现，用于测试。
type mockProvider struct {
	name  string
	calls int
}

func (m *mockProvider) Name() string {
	return m.name
}

func (m *mockProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.calls++
	result := make([][]float32, len(texts))
	for i, text := range texts {
		result[i] = []float32{float32(len(text)), 0.2, 0.3}
	}
	return result, nil
}

func (m *mockProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	out, err := m.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (m *mockProvider) Complete(_ context.Context, req *ChatRequest) (*ChatResponse, error) {
	return &ChatResponse{Content: "mock response", Model: req.Model}, nil
}

func TestRegisterAndNewChatProvider(t *testing.T) {
	RegisterProvider("test-provider", func(config map[string]any) (Provider, error) {
		name := "test-provider"
		if n, ok := config["name"].(string); ok {
			name = n
		}
		return &mockProvider{name: name}, nil
	})

	provider, err := NewChatProvider("test-provider", map[string]any{"name": "custom-name"})
	if err != nil {
		t.Fatalf("NewChatProvider failed: %v", err)
	}
	if provider.Name() != "custom-name" {
		t.Errorf("expected name 'custom-name', got '%s'", provider.Name())
	}

	resp, err := provider.Complete(context.Background(), &ChatRequest{Model: "m"})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Content != "mock response" || resp.Model != "m" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestNewChatProviderUnknown(t *testing.T) {
	if _, err := NewChatProvider("unknown-provider", nil); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := NewEmbeddingProvider("unknown-provider", nil); err == nil {
		t.Error("expected error for unknown embedding provider")
	}
}

func TestNewEmbeddingProvider(t *testing.T) {
	RegisterEmbeddingProvider("embed-only", func(_ map[string]any) (EmbeddingProvider, error) {
		return &mockProvider{name: "embed-only"}, nil
	})
	RegisterProvider("full", func(_ map[string]any) (Provider, error) {
		return &mockProvider{name: "full"}, nil
	})

	provider, err := NewEmbeddingProvider("embed-only", nil)
	if err != nil {
		t.Fatalf("NewEmbeddingProvider failed: %v", err)
	}
	if provider.Name() != "embed-only" {
		t.Errorf("expected name 'embed-only', got '%s'", provider.Name())
	}

	// 回退到完整供应商
	provider2, err := NewEmbeddingProvider("full", nil)
	if err != nil {
		t.Fatalf("NewEmbeddingProvider fallback failed: %v", err)
	}
	if provider2.Name() != "full" {
		t.Errorf("expected name 'full', got '%s'", provider2.Name())
	}

	// 仅 Embedding 的供应商不能用于 Chat
	if _, err := NewChatProvider("embed-only", nil); err == nil {
		t.Error("expected error creating chat provider from embedding-only factory")
	}
}

func TestListProvidersSorted(t *testing.T) {
	RegisterProvider("zz-provider", func(_ map[string]any) (Provider, error) {
		return &mockProvider{name: "zz"}, nil
	})
	RegisterEmbeddingProvider("aa-provider", func(_ map[string]any) (EmbeddingProvider, error) {
		return &mockProvider{name: "aa"}, nil
	})

	providers := ListProviders()
	for i := 1; i < len(providers); i++ {
		if providers[i-1] > providers[i] {
			t.Fatalf("providers not sorted: %v", providers)
		}
	}

	found := map[string]bool{}
	for _, p := range providers {
		found[p] = true
	}
	if !found["zz-provider"] || !found["aa-provider"] {
		t.Errorf("expected both providers in list, got %v", providers)
	}
}

func TestTokenUsageAdd(t *testing.T) {
	var u TokenUsage
	u.Add(TokenUsage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3})
	u.Add(TokenUsage{PromptTokens: 4, CompletionTokens: 5, TotalTokens: 9})
	if u.PromptTokens != 5 || u.CompletionTokens != 7 || u.TotalTokens != 12 {
		t.Errorf("unexpected usage: %+v", u)
	}
}
