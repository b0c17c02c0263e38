package config_test

import (
	"testing"

	"github.com/voxloop/voxloop/internal/config"
)

func baseConfig() *config.Config {
	cfg := config.Default()
	cfg.Agents = []config.AgentConfig{
		{
			ID:           "assistant",
			SystemPrompt: "Отвечай кратко.",
			Model:        "deepseek-chat",
			Temperature:  0.4,
			MaxTokens:    220,
			Voice:        config.VoiceConfig{Voice: "eugene", Speed: 1.05},
		},
	}
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()

	d := config.Diff(old, new)
	if d.AgentsChanged || d.LogLevelChanged {
		t.Errorf("expected no changes, got %+v", d)
	}
	if len(d.AgentChanges) != 0 {
		t.Errorf("expected no agent changes, got %d", len(d.AgentChanges))
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Fatal("expected LogLevelChanged")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel: got %q, want debug", d.NewLogLevel)
	}
	if d.AgentsChanged {
		t.Error("agents should be unchanged")
	}
}

func TestDiff_SystemPromptChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Agents[0].SystemPrompt = "Отвечай развёрнуто."

	d := config.Diff(old, new)
	if !d.AgentsChanged {
		t.Fatal("expected AgentsChanged")
	}
	if len(d.AgentChanges) != 1 {
		t.Fatalf("expected 1 agent change, got %d", len(d.AgentChanges))
	}
	ad := d.AgentChanges[0]
	if ad.ID != "assistant" || !ad.SystemPromptChanged {
		t.Errorf("unexpected diff: %+v", ad)
	}
	if ad.VoiceChanged || ad.ModelChanged || ad.Added || ad.Removed {
		t.Errorf("unrelated flags set: %+v", ad)
	}
}

func TestDiff_VoiceChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Agents[0].Voice.Voice = "xenia"

	d := config.Diff(old, new)
	if !d.AgentsChanged || len(d.AgentChanges) != 1 {
		t.Fatalf("expected 1 agent change, got %+v", d)
	}
	if !d.AgentChanges[0].VoiceChanged {
		t.Error("expected VoiceChanged")
	}
}

func TestDiff_ModelChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Agents[0].MaxTokens = 400

	d := config.Diff(old, new)
	if !d.AgentsChanged || len(d.AgentChanges) != 1 {
		t.Fatalf("expected 1 agent change, got %+v", d)
	}
	if !d.AgentChanges[0].ModelChanged {
		t.Error("expected ModelChanged for max_tokens change")
	}
}

func TestDiff_AgentAdded(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Agents = append(new.Agents, config.AgentConfig{ID: "support"})

	d := config.Diff(old, new)
	if !d.AgentsChanged {
		t.Fatal("expected AgentsChanged")
	}
	found := false
	for _, ad := range d.AgentChanges {
		if ad.ID == "support" && ad.Added {
			found = true
		}
	}
	if !found {
		t.Errorf("expected Added diff for support, got %+v", d.AgentChanges)
	}
}

func TestDiff_AgentRemoved(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Agents = nil

	d := config.Diff(old, new)
	if !d.AgentsChanged {
		t.Fatal("expected AgentsChanged")
	}
	if len(d.AgentChanges) != 1 || !d.AgentChanges[0].Removed {
		t.Errorf("expected Removed diff, got %+v", d.AgentChanges)
	}
}

func TestDiff_MultipleChanges(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Server.LogLevel = config.LogWarn
	new.Agents[0].SystemPrompt = "Новый промпт."
	new.Agents = append(new.Agents, config.AgentConfig{ID: "sales"})

	d := config.Diff(old, new)
	if !d.LogLevelChanged || !d.AgentsChanged {
		t.Fatalf("expected both change classes, got %+v", d)
	}
	if len(d.AgentChanges) != 2 {
		t.Errorf("expected 2 agent changes, got %d", len(d.AgentChanges))
	}
}
