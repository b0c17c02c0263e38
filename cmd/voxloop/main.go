// Command voxloop is the realtime voice conversation server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/voxloop/voxloop/internal/app"
	"github.com/voxloop/voxloop/internal/config"
	"github.com/voxloop/voxloop/internal/observe"
	"github.com/voxloop/voxloop/internal/resilience"
	"github.com/voxloop/voxloop/pkg/provider/asr"
	"github.com/voxloop/voxloop/pkg/provider/asr/whisper"
	"github.com/voxloop/voxloop/pkg/provider/embeddings"
	ollamaembed "github.com/voxloop/voxloop/pkg/provider/embeddings/ollama"
	oaembed "github.com/voxloop/voxloop/pkg/provider/embeddings/openai"
	"github.com/voxloop/voxloop/pkg/provider/llm"
	"github.com/voxloop/voxloop/pkg/provider/llm/anyllm"
	oallm "github.com/voxloop/voxloop/pkg/provider/llm/openai"
	"github.com/voxloop/voxloop/pkg/provider/tts"
	"github.com/voxloop/voxloop/pkg/provider/tts/coqui"
	"github.com/voxloop/voxloop/pkg/provider/tts/elevenlabs"
	oatts "github.com/voxloop/voxloop/pkg/provider/tts/openai"
	"github.com/voxloop/voxloop/pkg/provider/tts/silero"
	"github.com/voxloop/voxloop/pkg/provider/vad"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxloop: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxloop: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voxloop starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"ops_addr", cfg.Server.OpsAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "voxloop",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyLLMBackends lists the hosted and local backends served through the
// any-llm bridge. "openai" is registered separately on the native client.
var anyLLMBackends = []string{
	"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range anyLLMBackends {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── ASR ───────────────────────────────────────────────────────────────────
	reg.RegisterASR("whisper", func(entry config.ProviderEntry) (asr.Engine, error) {
		modelPath := entry.BaseURL
		if modelPath == "" {
			modelPath = entry.Model
		}
		var opts []whisper.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if ms := optInt(entry.Options, "partial_interval_ms"); ms > 0 {
			opts = append(opts, whisper.WithPartialIntervalMs(ms))
		}
		return whisper.New(modelPath, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────
	reg.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) {
		return vad.NewEnergyEngine(), nil
	})

	// ── TTS ───────────────────────────────────────────────────────────────────
	reg.RegisterTTS("silero", func(entry config.ProviderEntry) (tts.Provider, error) {
		return silero.New(entry.BaseURL)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oatts.Option
		if entry.Model != "" {
			opts = append(opts, oatts.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oatts.WithBaseURL(entry.BaseURL))
		}
		return oatts.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if rate := optInt(entry.Options, "output_sample_rate"); rate > 0 {
			opts = append(opts, coqui.WithOutputSampleRate(rate))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────
	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		return ollamaembed.New(entry.BaseURL, entry.Model)
	})
}

// buildProviders instantiates the providers named in cfg using the registry
// and returns them in an [app.Providers] struct.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	p, err := reg.CreateASR(cfg.Providers.ASR)
	if err != nil {
		return nil, fmt.Errorf("create asr provider %q: %w", cfg.Providers.ASR.Name, err)
	}
	ps.ASR = p
	slog.Info("provider created", "kind", "asr", "name", cfg.Providers.ASR.Name)

	v, err := reg.CreateVAD(cfg.Providers.VAD)
	if err != nil {
		return nil, fmt.Errorf("create vad provider %q: %w", cfg.Providers.VAD.Name, err)
	}
	ps.VAD = v
	slog.Info("provider created", "kind", "vad", "name", cfg.Providers.VAD.Name)

	l, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	ps.LLM = l
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name, "model", cfg.Providers.LLM.Model)

	if entries := cfg.Providers.LLMFallbacks; len(entries) > 0 {
		chain := resilience.NewLLMFallback(l, cfg.Providers.LLM.Name, resilience.FallbackConfig{})
		for _, entry := range entries {
			fb, err := reg.CreateLLM(entry)
			if err != nil {
				return nil, fmt.Errorf("create llm fallback %q: %w", entry.Name, err)
			}
			chain.AddFallback(entry.Name, fb)
			slog.Info("fallback registered", "kind", "llm", "name", entry.Name, "model", entry.Model)
		}
		ps.LLM = chain
	}

	t, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	ps.TTS = t
	slog.Info("provider created", "kind", "tts", "name", cfg.Providers.TTS.Name)

	if entries := cfg.Providers.TTSFallbacks; len(entries) > 0 {
		chain := resilience.NewTTSFallback(t, cfg.Providers.TTS.Name, resilience.FallbackConfig{})
		for _, entry := range entries {
			fb, err := reg.CreateTTS(entry)
			if err != nil {
				return nil, fmt.Errorf("create tts fallback %q: %w", entry.Name, err)
			}
			chain.AddFallback(entry.Name, fb)
			slog.Info("fallback registered", "kind", "tts", "name", entry.Name)
		}
		ps.TTS = chain
	}

	// Embeddings only feed archive search; missing is fine.
	if name := cfg.Providers.Embeddings.Name; name != "" {
		e, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		}
		ps.Embeddings = e
		slog.Info("provider created", "kind", "embeddings", "name", name, "model", cfg.Providers.Embeddings.Model)
	}

	return ps, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// optInt extracts an int value from a provider Options map. YAML decodes
// numbers as int; anything else yields zero.
func optInt(opts map[string]any, key string) int {
	if opts == nil {
		return 0
	}
	v, ok := opts[key]
	if !ok {
		return 0
	}
	n, ok := v.(int)
	if !ok {
		return 0
	}
	return n
}
