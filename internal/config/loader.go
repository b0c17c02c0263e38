package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "deepseek", "anthropic", "gemini", "ollama", "mistral", "groq", "llamacpp", "llamafile"},
	"asr":        {"whisper"},
	"vad":        {"energy"},
	"tts":        {"silero", "elevenlabs", "coqui", "openai"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path, applies environment
// overrides, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault returns the built-in defaults with environment overrides
// applied and validated. Used when no config file is given.
func LoadDefault() (*Config, error) {
	cfg := Default()
	ApplyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over the built-in defaults,
// applies environment overrides, and validates the result. Useful in tests
// where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overwrites cfg fields from environment variables. Unset variables
// leave the corresponding field untouched; unparseable values are logged and
// skipped.
func ApplyEnv(cfg *Config) {
	if port, ok := envInt("PORT"); ok {
		cfg.Server.ListenAddr = ":" + strconv.Itoa(port)
	}
	if port, ok := envInt("HEALTH_PORT"); ok {
		cfg.Server.OpsAddr = ":" + strconv.Itoa(port)
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		cfg.Server.LogLevel = LogLevel(strings.ToLower(v))
	}
	if v, ok := os.LookupEnv("ALLOWED_ORIGINS"); ok {
		cfg.Server.AllowedOrigins = splitList(v)
	}

	if v, ok := os.LookupEnv("VOICE_JWT_SECRET"); ok {
		cfg.Auth.JWTSecret = v
	}
	if b, ok := envBool("LOCAL_MODE"); ok {
		cfg.Auth.LocalMode = b
	}
	if b, ok := envBool("DISABLE_AUTH"); ok {
		cfg.Auth.DisableAuth = b
	}

	if n, ok := envInt("FRAME_MS"); ok {
		cfg.Audio.FrameMs = n
	}
	if n, ok := envInt("VAD_MODE"); ok {
		cfg.Audio.VADMode = n
	}
	if n, ok := envInt("ASR_WARMUP_MS"); ok {
		cfg.Audio.WarmupMs = n
	}
	if v, ok := os.LookupEnv("AUDIO_OUTPUT"); ok {
		cfg.Audio.Output = AudioOutput(strings.ToLower(v))
	}

	if n, ok := envInt("PARTIAL_RATE_LIMIT_MS"); ok {
		cfg.Endpoint.PartialRateLimitMs = n
	}
	if n, ok := envInt("MIN_WORDS_EARLY"); ok {
		cfg.Endpoint.MinWordsEarly = n
	}
	if n, ok := envInt("MIN_CHARS_EARLY"); ok {
		cfg.Endpoint.MinCharsEarly = n
	}
	if n, ok := envInt("RESTART_DEBOUNCE_MS"); ok {
		cfg.Endpoint.RestartDebounceMs = n
	}
	if f, ok := envFloat("PAUSE_EMA_ALPHA"); ok {
		cfg.Endpoint.PauseEmaAlpha = f
	}

	if b, ok := envBool("BARGE_IN_ENABLED"); ok {
		cfg.BargeIn.Enabled = b
	}
	if n, ok := envInt("BARGE_IN_MIN_VOICE_MS"); ok {
		cfg.BargeIn.MinVoiceMs = n
	}
	if n, ok := envInt("BARGE_IN_COOLDOWN_MS"); ok {
		cfg.BargeIn.CooldownMs = n
	}
	if n, ok := envInt("BARGE_IN_IGNORE_AFTER_TTS_MS"); ok {
		cfg.BargeIn.IgnoreAfterTTSMs = n
	}
	if n, ok := envInt("BARGE_IN_ARM_SILENCE_MS"); ok {
		cfg.BargeIn.ArmSilenceMs = n
	}

	applyProviderEnv(&cfg.Providers.LLM, "LLM")
	applyProviderEnv(&cfg.Providers.ASR, "ASR")
	applyProviderEnv(&cfg.Providers.VAD, "VAD")
	applyProviderEnv(&cfg.Providers.TTS, "TTS")
	applyProviderEnv(&cfg.Providers.Embeddings, "EMBEDDINGS")
	// Historical aliases kept for the original deployment scripts.
	if v, ok := os.LookupEnv("TTS_URL"); ok {
		cfg.Providers.TTS.BaseURL = v
	}
	if v, ok := os.LookupEnv("ASR_MODEL_PATH"); ok {
		cfg.Providers.ASR.BaseURL = v
	}

	if v, ok := os.LookupEnv("VOICE_CONTROL_URL"); ok {
		cfg.Dialog.ControlURL = v
	}
	if v, ok := os.LookupEnv("VOICE_INTERNAL_KEY"); ok {
		cfg.Dialog.InternalKey = v
	}

	if v, ok := os.LookupEnv("ARCHIVE_BACKEND"); ok {
		cfg.Archive.Backend = ArchiveBackend(strings.ToLower(v))
	}
	if v, ok := os.LookupEnv("POSTGRES_DSN"); ok {
		cfg.Archive.PostgresDSN = v
	}
	if v, ok := os.LookupEnv("BADGER_PATH"); ok {
		cfg.Archive.BadgerPath = v
	}

	if v, ok := os.LookupEnv("DISCORD_TOKEN"); ok {
		cfg.Notify.DiscordToken = v
	}
	if v, ok := os.LookupEnv("DISCORD_CHANNEL"); ok {
		cfg.Notify.DiscordChannel = v
	}

	if b, ok := envBool("MCP_ENABLED"); ok {
		cfg.MCP.Enabled = b
	}
}

// applyProviderEnv applies {PREFIX}_PROVIDER, {PREFIX}_API_KEY,
// {PREFIX}_BASE_URL and {PREFIX}_MODEL to entry.
func applyProviderEnv(entry *ProviderEntry, prefix string) {
	if v, ok := os.LookupEnv(prefix + "_PROVIDER"); ok {
		entry.Name = v
	}
	if v, ok := os.LookupEnv(prefix + "_API_KEY"); ok {
		entry.APIKey = v
	}
	if v, ok := os.LookupEnv(prefix + "_BASE_URL"); ok {
		entry.BaseURL = v
	}
	if v, ok := os.LookupEnv(prefix + "_MODEL"); ok {
		entry.Model = v
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxMessageBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_message_bytes %d must not be negative", cfg.Server.MaxMessageBytes))
	}

	// Audio
	if cfg.Audio.SampleRate != 16000 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is unsupported; the server supports 16000 only", cfg.Audio.SampleRate))
	}
	switch cfg.Audio.FrameMs {
	case 10, 20, 30:
	default:
		errs = append(errs, fmt.Errorf("audio.frame_ms %d is invalid; valid values: 10, 20, 30", cfg.Audio.FrameMs))
	}
	if cfg.Audio.VADMode < 0 || cfg.Audio.VADMode > 3 {
		errs = append(errs, fmt.Errorf("audio.vad_mode %d is out of range [0, 3]", cfg.Audio.VADMode))
	}
	if cfg.Audio.WarmupMs < 0 {
		errs = append(errs, fmt.Errorf("audio.warmup_ms %d must not be negative", cfg.Audio.WarmupMs))
	}
	if cfg.Audio.Output != "" && !cfg.Audio.Output.IsValid() {
		errs = append(errs, fmt.Errorf("audio.output %q is invalid; valid values: wav, opus", cfg.Audio.Output))
	}

	// Endpointing
	if a := cfg.Endpoint.PauseEmaAlpha; a <= 0 || a > 1 {
		errs = append(errs, fmt.Errorf("endpoint.pause_ema_alpha %.3f is out of range (0, 1]", a))
	}
	if a := cfg.Endpoint.WpsEmaAlpha; a <= 0 || a > 1 {
		errs = append(errs, fmt.Errorf("endpoint.wps_ema_alpha %.3f is out of range (0, 1]", a))
	}

	// Barge-in
	if cfg.BargeIn.MinVoiceMs < 0 || cfg.BargeIn.CooldownMs < 0 || cfg.BargeIn.IgnoreAfterTTSMs < 0 || cfg.BargeIn.ArmSilenceMs < 0 {
		errs = append(errs, errors.New("barge_in durations must not be negative"))
	}

	// Provider name validation, warn for unknown names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("asr", cfg.Providers.ASR.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; sessions will not generate responses")
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("no TTS provider configured; sessions will run without assistant audio")
	}

	// Auth
	if cfg.Auth.JWTSecret == "" && !cfg.Auth.LocalMode && !cfg.Auth.DisableAuth {
		errs = append(errs, errors.New("auth.jwt_secret is required unless local_mode or disable_auth is set"))
	}

	// Agents
	agentIDsSeen := make(map[string]int, len(cfg.Agents))
	for i, agent := range cfg.Agents {
		prefix := fmt.Sprintf("agents[%d]", i)
		if agent.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else {
			if prev, ok := agentIDsSeen[agent.ID]; ok {
				errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of agents[%d]", prefix, agent.ID, prev))
			}
			agentIDsSeen[agent.ID] = i
		}
		if agent.Temperature < 0 || agent.Temperature > 2 {
			errs = append(errs, fmt.Errorf("%s.temperature %.2f is out of range [0, 2]", prefix, agent.Temperature))
		}
		if agent.MaxTokens < 0 {
			errs = append(errs, fmt.Errorf("%s.max_tokens %d must not be negative", prefix, agent.MaxTokens))
		}
		if agent.HistoryTurns < 0 {
			errs = append(errs, fmt.Errorf("%s.history_turns %d must not be negative", prefix, agent.HistoryTurns))
		}
		if agent.Voice.Speed != 0 {
			if agent.Voice.Speed < 0.5 || agent.Voice.Speed > 2.0 {
				errs = append(errs, fmt.Errorf("%s.voice.speed %.2f is out of range [0.5, 2.0]", prefix, agent.Voice.Speed))
			}
		}
	}
	if len(cfg.Agents) == 0 {
		slog.Warn("no agent profiles configured; falling back to the built-in assistant profile")
	}

	// Dialog push
	if cfg.Dialog.ControlURL != "" && cfg.Dialog.InternalKey == "" {
		slog.Warn("dialog.control_url is set but dialog.internal_key is empty; dialog events will be skipped")
	}
	if cfg.Dialog.TimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("dialog.timeout_ms %d must not be negative", cfg.Dialog.TimeoutMs))
	}

	// Archive
	if !cfg.Archive.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("archive.backend %q is invalid; valid values: postgres, badger", cfg.Archive.Backend))
	}
	if cfg.Archive.Backend == ArchivePostgres && cfg.Archive.PostgresDSN == "" {
		errs = append(errs, errors.New("archive.postgres_dsn is required when archive.backend is postgres"))
	}
	if cfg.Archive.Backend == ArchiveBadger && cfg.Archive.BadgerPath == "" {
		errs = append(errs, errors.New("archive.badger_path is required when archive.backend is badger"))
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.Archive.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but archive.embedding_dimensions is not set; defaulting to 1536")
	}

	// Notify
	if cfg.Notify.DiscordToken != "" && cfg.Notify.DiscordChannel == "" {
		errs = append(errs, errors.New("notify.discord_channel is required when notify.discord_token is set"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// splitList splits a comma-separated env value, trimming whitespace and
// dropping empty elements.
func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(name string) (int, bool) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring unparseable integer env var", "name", name, "value", v)
		return 0, false
	}
	return n, true
}

func envBool(name string) (bool, bool) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return false, false
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	slog.Warn("ignoring unparseable boolean env var", "name", name, "value", v)
	return false, false
}

func envFloat(name string) (float64, bool) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("ignoring unparseable float env var", "name", name, "value", v)
		return 0, false
	}
	return f, true
}
