package anyllm

import (
	"strings"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/voxloop/voxloop/pkg/provider/llm"
)

// ── constructors ─────────────────────────────────────────────────────────────

func TestNew_EmptyProviderName(t *testing.T) {
	_, err := New("", "deepseek-chat")
	if err == nil {
		t.Fatal("expected error for empty provider name, got nil")
	}
}

func TestNew_EmptyModel(t *testing.T) {
	_, err := New("deepseek", "")
	if err == nil {
		t.Fatal("expected error for empty model, got nil")
	}
}

func TestNew_UnsupportedProvider(t *testing.T) {
	_, err := New("carrier-pigeon", "some-model")
	if err == nil {
		t.Fatal("expected error for unsupported provider, got nil")
	}
	if !strings.Contains(err.Error(), "carrier-pigeon") {
		t.Errorf("error should name the provider: %v", err)
	}
}

func TestNew_DeepSeek_WithAPIKey(t *testing.T) {
	p, err := New("deepseek", "deepseek-chat", anyllmlib.WithAPIKey("sk-test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}

func TestNew_Ollama_NoAPIKey(t *testing.T) {
	// Ollama is a local backend and needs no key.
	p, err := NewOllama("qwen2.5:7b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}

// ── buildParams ──────────────────────────────────────────────────────────────

func TestBuildParams_SystemPromptFirst(t *testing.T) {
	p := &Provider{model: "deepseek-chat"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "Отвечай кратко.",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "привет"},
		},
	})
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("first message role = %q, want system", params.Messages[0].Role)
	}
	if params.Messages[1].Role != llm.RoleUser {
		t.Errorf("second message role = %q, want user", params.Messages[1].Role)
	}
	if params.Model != "deepseek-chat" {
		t.Errorf("model = %q, want deepseek-chat", params.Model)
	}
}

func TestBuildParams_TemperatureOmittedWhenZero(t *testing.T) {
	p := &Provider{model: "m"}
	params := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}},
	})
	if params.Temperature != nil {
		t.Errorf("expected nil temperature, got %v", *params.Temperature)
	}
	if params.MaxTokens != nil {
		t.Errorf("expected nil max tokens, got %v", *params.MaxTokens)
	}
}

func TestBuildParams_TemperatureAndMaxTokens(t *testing.T) {
	p := &Provider{model: "m"}
	params := p.buildParams(llm.CompletionRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: "x"}},
		Temperature: 0.4,
		MaxTokens:   220,
	})
	if params.Temperature == nil || *params.Temperature != 0.4 {
		t.Errorf("temperature = %v, want 0.4", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 220 {
		t.Errorf("max tokens = %v, want 220", params.MaxTokens)
	}
}
