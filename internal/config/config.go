// Package config provides the configuration schema, loader, and provider
// registry for the voxloop voice orchestrator.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then environment variables. The environment always wins so that container
// deployments can override a mounted config file per instance.
package config

// LogLevel controls log verbosity for the voxloop server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// AudioOutput selects the codec for binary audio frames sent to clients.
type AudioOutput string

const (
	// OutputWAV sends each synthesized chunk as a complete WAV container.
	OutputWAV AudioOutput = "wav"

	// OutputOpus re-encodes synthesized audio to Opus before sending.
	OutputOpus AudioOutput = "opus"
)

// IsValid reports whether o is a recognised output codec.
func (o AudioOutput) IsValid() bool {
	return o == OutputWAV || o == OutputOpus
}

// ArchiveBackend selects the transcript archive storage engine.
type ArchiveBackend string

const (
	// ArchiveNone disables transcript archiving.
	ArchiveNone ArchiveBackend = ""

	// ArchivePostgres stores transcripts in PostgreSQL with pgvector search.
	ArchivePostgres ArchiveBackend = "postgres"

	// ArchiveBadger stores transcripts in an embedded Badger database.
	ArchiveBadger ArchiveBackend = "badger"
)

// IsValid reports whether b is a recognised archive backend.
func (b ArchiveBackend) IsValid() bool {
	switch b {
	case ArchiveNone, ArchivePostgres, ArchiveBadger:
		return true
	}
	return false
}

// Config is the root configuration structure for voxloop.
// It is typically produced by [Load] or [LoadDefault].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Audio     AudioConfig     `yaml:"audio"`
	Endpoint  EndpointConfig  `yaml:"endpoint"`
	BargeIn   BargeInConfig   `yaml:"barge_in"`
	Providers ProvidersConfig `yaml:"providers"`
	Agents    []AgentConfig   `yaml:"agents"`
	Dialog    DialogConfig    `yaml:"dialog"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Notify    NotifyConfig    `yaml:"notify"`
	MCP       MCPConfig       `yaml:"mcp"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the WebSocket server listens on.
	ListenAddr string `yaml:"listen_addr"`

	// OpsAddr is the TCP address of the operational HTTP server
	// (health, summaries, transcripts, metrics, MCP).
	OpsAddr string `yaml:"ops_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// AllowedOrigins lists Origin header values accepted during the
	// WebSocket handshake. Empty means any origin is accepted.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// MaxMessageBytes caps the size of a single WebSocket message.
	MaxMessageBytes int64 `yaml:"max_message_bytes"`

	// TLS configures TLS for both listeners. When nil, plain TCP is used.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS/WSS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// AuthConfig holds JWT session authentication settings.
type AuthConfig struct {
	// JWTSecret is the HMAC secret for verifying session tokens.
	JWTSecret string `yaml:"jwt_secret"`

	// Audience is the required "aud" claim.
	Audience string `yaml:"audience"`

	// Issuer is the required "iss" claim.
	Issuer string `yaml:"issuer"`

	// LocalMode skips token verification and assigns a generated local
	// session. Intended for development only.
	LocalMode bool `yaml:"local_mode"`

	// DisableAuth skips token verification entirely. Like LocalMode but
	// spelled the way ops scripts expect.
	DisableAuth bool `yaml:"disable_auth"`
}

// AudioConfig holds the input/output audio parameters.
type AudioConfig struct {
	// SampleRate is the PCM sample rate in Hz. The server supports 16000 only.
	SampleRate int `yaml:"sample_rate"`

	// FrameMs is the duration of one PCM frame in milliseconds (10, 20 or 30).
	FrameMs int `yaml:"frame_ms"`

	// VADMode is the voice activity detector aggressiveness (0..3).
	VADMode int `yaml:"vad_mode"`

	// WarmupMs is how long recognition stays buffered after assistant
	// playback ends, to absorb acoustic echo tails.
	WarmupMs int `yaml:"warmup_ms"`

	// Output selects the codec for audio sent to clients.
	Output AudioOutput `yaml:"output"`

	// DecodeInWorker routes recognition decode through a process-wide
	// bounded worker pool instead of the connection's receive goroutine.
	DecodeInWorker bool `yaml:"decode_in_worker"`
}

// EndpointConfig tunes the adaptive end-of-utterance detector.
type EndpointConfig struct {
	// PartialRateLimitMs throttles partial transcript events to the client.
	PartialRateLimitMs int `yaml:"partial_rate_limit_ms"`

	// MinWordsEarly is the minimum word count before a pause may be
	// reported as tentative.
	MinWordsEarly int `yaml:"min_words_early"`

	// MinCharsEarly is the minimum rune count before a pause may be
	// reported as tentative.
	MinCharsEarly int `yaml:"min_chars_early"`

	// RestartDebounceMs suppresses generation restarts fired closer
	// together than this.
	RestartDebounceMs int `yaml:"restart_debounce_ms"`

	// PauseEmaAlpha is the smoothing factor for the inter-utterance pause
	// average.
	PauseEmaAlpha float64 `yaml:"pause_ema_alpha"`

	// WpsEmaAlpha is the smoothing factor for the speech-rate average.
	WpsEmaAlpha float64 `yaml:"wps_ema_alpha"`

	// MaxPauseSampleMs caps which silence gaps feed the pause average;
	// longer gaps are deliberate pauses, not speech rhythm.
	MaxPauseSampleMs int `yaml:"max_pause_sample_ms"`

	// EarlyPauseMs, FinalPauseMs and StableMs are the static thresholds
	// announced to clients in the ready event. The adaptive detector may
	// use different effective values per utterance.
	EarlyPauseMs int `yaml:"early_pause_ms"`
	FinalPauseMs int `yaml:"final_pause_ms"`
	StableMs     int `yaml:"stable_ms"`
}

// BargeInConfig tunes user interruption of assistant playback.
type BargeInConfig struct {
	// Enabled turns barge-in handling on.
	Enabled bool `yaml:"enabled"`

	// MinVoiceMs is the sustained voice duration that triggers an abort.
	MinVoiceMs int `yaml:"min_voice_ms"`

	// CooldownMs ignores further barge-ins for this long after one fires.
	CooldownMs int `yaml:"cooldown_ms"`

	// IgnoreAfterTTSMs treats voice frames this soon after an assistant
	// audio chunk as echo.
	IgnoreAfterTTSMs int `yaml:"ignore_after_tts_ms"`

	// ArmSilenceMs is the silence duration required before barge-in arms.
	ArmSilenceMs int `yaml:"arm_silence_ms"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	ASR        ProviderEntry `yaml:"asr"`
	VAD        ProviderEntry `yaml:"vad"`
	LLM        ProviderEntry `yaml:"llm"`
	TTS        ProviderEntry `yaml:"tts"`
	Embeddings ProviderEntry `yaml:"embeddings"`

	// LLMFallbacks lists chat backends tried in order when the primary LLM
	// fails or its circuit breaker is open.
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`

	// TTSFallbacks lists synthesis backends tried in order when the primary
	// TTS fails or its circuit breaker is open.
	TTSFallbacks []ProviderEntry `yaml:"tts_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "deepseek",
	// "whisper", "silero").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint. For local model
	// backends (whisper) this is the model file path.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// AgentConfig describes one conversational agent profile.
type AgentConfig struct {
	// ID is the agent identifier carried in session tokens.
	ID string `yaml:"id"`

	// SystemPrompt is injected as the first LLM message of every request.
	SystemPrompt string `yaml:"system_prompt"`

	// Model overrides the LLM provider's default model for this agent.
	Model string `yaml:"model"`

	// Temperature is the LLM sampling temperature.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps the LLM response length.
	MaxTokens int `yaml:"max_tokens"`

	// HistoryTurns is how many recent dialog turns accompany each request.
	HistoryTurns int `yaml:"history_turns"`

	// Ack plays a short cached acknowledgement phrase while the first
	// response is being generated.
	Ack bool `yaml:"ack"`

	// SpellNumbers rewrites digits to words through the LLM before
	// synthesis. Off by default; adds one completion round trip per
	// digit-bearing chunk.
	SpellNumbers bool `yaml:"spell_numbers"`

	// Glossary lists proper nouns and domain terms the recognizer tends to
	// mishear. Recognized finals are aligned against it before the turn is
	// committed. Empty disables correction.
	Glossary []string `yaml:"glossary"`

	// GlossaryLLM enables the second, model-assisted correction stage for
	// low-confidence words the phonetic pass left unchanged. Adds one
	// completion round trip to affected finals.
	GlossaryLLM bool `yaml:"glossary_llm"`

	// Voice configures the TTS voice for this agent.
	Voice VoiceConfig `yaml:"voice"`
}

// VoiceConfig specifies the TTS voice parameters for an agent.
type VoiceConfig struct {
	// Voice is the provider-specific voice identifier.
	Voice string `yaml:"voice"`

	// Speed adjusts speaking rate in the range [0.5, 2.0]. 0 means default.
	Speed float64 `yaml:"speed"`

	// Emotion selects the synthesis emotion preset where supported.
	Emotion string `yaml:"emotion"`

	// PauseBetweenSentences is the inter-sentence pause in seconds.
	PauseBetweenSentences float64 `yaml:"pause_between_sentences"`
}

// DialogConfig holds settings for pushing dialog events to the control plane.
type DialogConfig struct {
	// ControlURL is the base URL of the control-plane service. Empty
	// disables dialog event pushes.
	ControlURL string `yaml:"control_url"`

	// InternalKey authenticates pushes to the control plane.
	InternalKey string `yaml:"internal_key"`

	// TimeoutMs bounds each push request.
	TimeoutMs int `yaml:"timeout_ms"`
}

// ArchiveConfig holds settings for the transcript archive.
type ArchiveConfig struct {
	// Backend selects the storage engine. Empty disables archiving.
	Backend ArchiveBackend `yaml:"backend"`

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string `yaml:"postgres_dsn"`

	// BadgerPath is the data directory for the badger backend.
	BadgerPath string `yaml:"badger_path"`

	// EmbeddingDimensions is the vector dimension for semantic search.
	// Must match the model configured in Providers.Embeddings.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`
}

// NotifyConfig holds settings for session summary notifications.
type NotifyConfig struct {
	// DiscordToken is the bot token. Empty disables Discord notifications.
	DiscordToken string `yaml:"discord_token"`

	// DiscordChannel is the channel ID that receives session summaries.
	DiscordChannel string `yaml:"discord_channel"`
}

// MCPConfig toggles the Model Context Protocol tool server.
type MCPConfig struct {
	// Enabled serves MCP tools (session listing, transcripts, termination)
	// on the operational HTTP listener.
	Enabled bool `yaml:"enabled"`
}

// DefaultSystemPrompt is the built-in assistant persona used when no agent
// profile is configured.
const DefaultSystemPrompt = "Ты топ 1 в мире ИИ-ассистент WindexsAI. Ты отлично разбираешься во всех темах. Отвечай кратко и по делу. 1-2 предложения. Без рассуждений."

// Default returns a Config populated with built-in defaults. The result is
// usable as-is for a local deployment with LOCAL_MODE set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":2700",
			OpsAddr:         ":8081",
			LogLevel:        LogInfo,
			MaxMessageBytes: 4 << 20,
		},
		Auth: AuthConfig{
			Audience: "voice-ws",
			Issuer:   "voice-control",
		},
		Audio: AudioConfig{
			SampleRate:     16000,
			FrameMs:        20,
			VADMode:        2,
			WarmupMs:       200,
			Output:         OutputWAV,
			DecodeInWorker: true,
		},
		Endpoint: EndpointConfig{
			PartialRateLimitMs: 150,
			MinWordsEarly:      1,
			MinCharsEarly:      3,
			RestartDebounceMs:  200,
			PauseEmaAlpha:      0.15,
			WpsEmaAlpha:        0.2,
			MaxPauseSampleMs:   800,
			EarlyPauseMs:       300,
			FinalPauseMs:       800,
			StableMs:           250,
		},
		BargeIn: BargeInConfig{
			Enabled:          true,
			MinVoiceMs:       1000,
			CooldownMs:       2000,
			IgnoreAfterTTSMs: 500,
			ArmSilenceMs:     1000,
		},
		Providers: ProvidersConfig{
			ASR: ProviderEntry{Name: "whisper"},
			VAD: ProviderEntry{Name: "energy"},
			LLM: ProviderEntry{Name: "deepseek", Model: "deepseek-chat"},
			TTS: ProviderEntry{Name: "silero"},
		},
		Dialog: DialogConfig{
			TimeoutMs: 2000,
		},
	}
}

// DefaultAgentID is the built-in agent profile assigned when no token names
// one.
const DefaultAgentID = "assistant"

// DefaultAgent returns the built-in assistant profile used when a session's
// agent has no configured entry.
func DefaultAgent() AgentConfig {
	return AgentConfig{
		ID:           DefaultAgentID,
		SystemPrompt: DefaultSystemPrompt,
		Model:        "deepseek-chat",
		Temperature:  0.4,
		MaxTokens:    220,
		HistoryTurns: 12,
		Ack:          true,
		Voice: VoiceConfig{
			Voice:                 "eugene",
			Speed:                 1.05,
			Emotion:               "neutral",
			PauseBetweenSentences: 0.12,
		},
	}
}

// Agent returns the profile for id, or the built-in assistant profile when
// id is "assistant" and no explicit entry exists. The second return value
// reports whether a profile was found.
func (c *Config) Agent(id string) (AgentConfig, bool) {
	for _, a := range c.Agents {
		if a.ID == id {
			return a, true
		}
	}
	if id == DefaultAgentID {
		return DefaultAgent(), true
	}
	return AgentConfig{}, false
}
