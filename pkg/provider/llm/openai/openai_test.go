package openai

import (
	"testing"
	"time"

	"github.com/voxloop/voxloop/pkg/provider/llm"
)

func TestNew_MissingAPIKey(t *testing.T) {
	_, err := New("", "deepseek-chat")
	if err == nil {
		t.Fatal("expected error for empty API key, got nil")
	}
}

func TestNew_MissingModel(t *testing.T) {
	_, err := New("sk-test", "")
	if err == nil {
		t.Fatal("expected error for empty model, got nil")
	}
}

func TestNew_Options(t *testing.T) {
	p, err := New("sk-test", "deepseek-chat",
		WithBaseURL("https://api.deepseek.com"),
		WithTimeout(10*time.Second),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}

// TestBuildParams_SystemPromptFirst checks that the system prompt becomes the
// leading system message.
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
	if params.Messages[0].OfSystem == nil {
		t.Error("expected first message to be system")
	}
	if params.Messages[1].OfUser == nil {
		t.Error("expected second message to be user")
	}
}

// TestBuildParams_RoleMapping checks user/assistant/system role conversion.
func TestBuildParams_RoleMapping(t *testing.T) {
	p := &Provider{model: "deepseek-chat"}
	params := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "s"},
			{Role: llm.RoleUser, Content: "u"},
			{Role: llm.RoleAssistant, Content: "a"},
		},
	})
	if len(params.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("expected system message")
	}
	if params.Messages[1].OfUser == nil {
		t.Error("expected user message")
	}
	if params.Messages[2].OfAssistant == nil {
		t.Error("expected assistant message")
	}
}

// TestBuildParams_UnknownRoleFallsBackToUser keeps odd roles from being
// dropped from the history.
func TestBuildParams_UnknownRoleFallsBackToUser(t *testing.T) {
	p := &Provider{model: "deepseek-chat"}
	params := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: "narrator", Content: "x"}},
	})
	if len(params.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(params.Messages))
	}
	if params.Messages[0].OfUser == nil {
		t.Error("expected unknown role to map to user")
	}
}

func TestBuildParams_ModelSet(t *testing.T) {
	p := &Provider{model: "deepseek-chat"}
	params := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}},
	})
	if string(params.Model) != "deepseek-chat" {
		t.Errorf("model = %q, want deepseek-chat", params.Model)
	}
}
