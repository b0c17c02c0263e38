package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	AgentsChanged   bool        // true if any agent profile changed
	AgentChanges    []AgentDiff // per-agent diffs
	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// AgentDiff describes what changed for a single agent between two configs.
type AgentDiff struct {
	ID                  string
	SystemPromptChanged bool
	VoiceChanged        bool
	ModelChanged        bool
	Added               bool
	Removed             bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart: running
// sessions keep the profile they started with, new sessions pick up the
// reloaded one.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldAgents := make(map[string]*AgentConfig, len(old.Agents))
	for i := range old.Agents {
		oldAgents[old.Agents[i].ID] = &old.Agents[i]
	}
	newAgents := make(map[string]*AgentConfig, len(new.Agents))
	for i := range new.Agents {
		newAgents[new.Agents[i].ID] = &new.Agents[i]
	}

	// Modified and removed agents.
	for id, oldAgent := range oldAgents {
		newAgent, exists := newAgents[id]
		if !exists {
			d.AgentChanges = append(d.AgentChanges, AgentDiff{
				ID:      id,
				Removed: true,
			})
			d.AgentsChanged = true
			continue
		}
		ad := diffAgent(id, oldAgent, newAgent)
		if ad.SystemPromptChanged || ad.VoiceChanged || ad.ModelChanged {
			d.AgentChanges = append(d.AgentChanges, ad)
			d.AgentsChanged = true
		}
	}

	// Added agents.
	for id := range newAgents {
		if _, exists := oldAgents[id]; !exists {
			d.AgentChanges = append(d.AgentChanges, AgentDiff{
				ID:    id,
				Added: true,
			})
			d.AgentsChanged = true
		}
	}

	return d
}

// diffAgent compares two agent profiles with the same ID.
func diffAgent(id string, old, new *AgentConfig) AgentDiff {
	ad := AgentDiff{ID: id}

	if old.SystemPrompt != new.SystemPrompt {
		ad.SystemPromptChanged = true
	}
	if old.Voice != new.Voice {
		ad.VoiceChanged = true
	}
	if old.Model != new.Model || old.Temperature != new.Temperature || old.MaxTokens != new.MaxTokens {
		ad.ModelChanged = true
	}

	return ad
}
