// Package app wires all voxloop subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects the
// subsystems from config, Run serves the voice WebSocket listener and the
// operational HTTP listener until the context is cancelled, and Shutdown
// tears everything down in reverse order.
//
// For testing, inject doubles via functional options (WithArchive,
// WithNotifier, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/voxloop/voxloop/internal/archive"
	archivebadger "github.com/voxloop/voxloop/internal/archive/badger"
	archivepg "github.com/voxloop/voxloop/internal/archive/postgres"
	"github.com/voxloop/voxloop/internal/auth"
	"github.com/voxloop/voxloop/internal/config"
	"github.com/voxloop/voxloop/internal/dialoglog"
	"github.com/voxloop/voxloop/internal/health"
	"github.com/voxloop/voxloop/internal/mcp"
	"github.com/voxloop/voxloop/internal/notify"
	"github.com/voxloop/voxloop/internal/observe"
	"github.com/voxloop/voxloop/internal/session"
	"github.com/voxloop/voxloop/internal/ws"
	"github.com/voxloop/voxloop/pkg/provider/asr"
	"github.com/voxloop/voxloop/pkg/provider/embeddings"
	"github.com/voxloop/voxloop/pkg/provider/llm"
	"github.com/voxloop/voxloop/pkg/provider/tts"
	"github.com/voxloop/voxloop/pkg/provider/vad"
)

// shutdownGrace bounds the HTTP listener drain when the run context ends.
const shutdownGrace = 15 * time.Second

// sweepInterval is how often ended sessions are collected from the registry.
const sweepInterval = time.Minute

// Providers holds one interface value per provider slot. ASR, VAD, LLM and
// TTS are required; Embeddings is optional and only feeds archive search.
// Populated by main.go via the config registry.
type Providers struct {
	ASR        asr.Engine
	VAD        vad.Engine
	LLM        llm.Provider
	TTS        tts.Provider
	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	registry   *session.Registry
	verifier   *auth.Verifier
	metrics    *observe.Metrics
	summariser session.Summariser
	store      archive.Store
	dialog     *dialoglog.Pusher
	notifier   notify.Notifier
	acks       *tts.AckCache
	decode     *semaphore.Weighted

	voice http.Handler
	ops   http.Handler

	// closers run in reverse order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithArchive injects a transcript archive instead of creating one from
// config.
func WithArchive(s archive.Store) Option {
	return func(a *App) { a.store = s }
}

// WithNotifier injects a session notifier instead of creating one from
// config.
func WithNotifier(n notify.Notifier) Option {
	return func(a *App) { a.notifier = n }
}

// WithSummariser injects a summariser instead of the LLM-backed default.
func WithSummariser(s session.Summariser) Option {
	return func(a *App) { a.summariser = s }
}

// WithRegistry injects a session registry. Used by tests that pre-seed
// sessions.
func WithRegistry(r *session.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithMetrics injects a metrics set bound to a test meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go, populated via the config registry.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if providers == nil || providers.ASR == nil || providers.VAD == nil ||
		providers.LLM == nil || providers.TTS == nil {
		return nil, errors.New("app: asr, vad, llm and tts providers are required")
	}

	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}

	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.registry == nil {
		a.registry = session.NewRegistry()
	}
	if a.summariser == nil {
		a.summariser = session.NewLLMSummariser(providers.LLM)
	}

	a.verifier = auth.NewVerifier(cfg.Auth, func(id string) bool {
		_, ok := cfg.Agent(id)
		return ok
	})

	if err := a.initArchive(ctx); err != nil {
		return nil, fmt.Errorf("app: init archive: %w", err)
	}
	if err := a.initNotifier(); err != nil {
		return nil, fmt.Errorf("app: init notifier: %w", err)
	}

	a.dialog = dialoglog.New(cfg.Dialog)
	a.acks = tts.NewAckCache()

	if cfg.Audio.DecodeInWorker {
		a.decode = semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0)))
	}

	if err := a.initVoice(); err != nil {
		return nil, fmt.Errorf("app: init voice endpoint: %w", err)
	}
	a.initOps()

	return a, nil
}

// initArchive opens the configured transcript archive backend.
func (a *App) initArchive(ctx context.Context) error {
	if a.store != nil {
		return nil // injected
	}

	switch a.cfg.Archive.Backend {
	case config.ArchiveNone:
		return nil

	case config.ArchivePostgres:
		dims := a.cfg.Archive.EmbeddingDimensions
		store, err := archivepg.NewStore(ctx, a.cfg.Archive.PostgresDSN, dims, a.providers.Embeddings)
		if err != nil {
			return err
		}
		a.store = store
		a.closers = append(a.closers, store.Close)

	case config.ArchiveBadger:
		store, err := archivebadger.NewStore(a.cfg.Archive.BadgerPath)
		if err != nil {
			return err
		}
		a.store = store
		a.closers = append(a.closers, store.Close)

	default:
		return fmt.Errorf("unknown archive backend %q", a.cfg.Archive.Backend)
	}

	slog.Info("transcript archive ready", "backend", a.cfg.Archive.Backend)
	return nil
}

// initNotifier connects the Discord notifier when a token is configured.
func (a *App) initNotifier() error {
	if a.notifier != nil || a.cfg.Notify.DiscordToken == "" {
		return nil
	}
	d, err := notify.NewDiscord(a.cfg.Notify.DiscordToken, a.cfg.Notify.DiscordChannel)
	if err != nil {
		return err
	}
	a.notifier = d
	a.closers = append(a.closers, d.Close)
	slog.Info("discord notifier connected", "channel", a.cfg.Notify.DiscordChannel)
	return nil
}

// initVoice builds the WebSocket endpoint handler.
func (a *App) initVoice() error {
	srv, err := ws.NewServer(ws.Deps{
		Config:     a.cfg,
		Verifier:   a.verifier,
		Registry:   a.registry,
		ASR:        a.providers.ASR,
		VAD:        a.providers.VAD,
		LLM:        a.providers.LLM,
		TTS:        a.providers.TTS,
		Acks:       a.acks,
		Summariser: a.summariser,
		Dialog:     a.dialog,
		Archive:    a.store,
		Notifier:   a.notifier,
		Metrics:    a.metrics,
		Decode:     a.decode,
	})
	if err != nil {
		return err
	}
	a.voice = srv
	return nil
}

// initOps builds the operational HTTP handler: health and session endpoints,
// Prometheus metrics, and optionally the MCP tool server.
func (a *App) initOps() {
	mux := http.NewServeMux()

	opts := []health.Option{}
	if a.store != nil {
		opts = append(opts, health.WithArchive(a.store))
	}
	if a.notifier != nil {
		n := a.notifier
		opts = append(opts, health.WithEndHook(func(s *session.Session, summary string) {
			n.SessionEnded(s.ID, s.AgentID, summary)
		}))
	}
	health.New(a.registry, a.summariser, opts...).Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())

	if a.cfg.MCP.Enabled {
		mux.Handle("/mcp", mcp.NewServer(a.registry, a.summariser, a.store).Handler())
	}

	a.ops = observe.Middleware(a.metrics)(mux)
}

// OpsHandler exposes the operational HTTP handler. Used by tests.
func (a *App) OpsHandler() http.Handler { return a.ops }

// VoiceHandler exposes the WebSocket handler. Used by tests.
func (a *App) VoiceHandler() http.Handler { return a.voice }

// Registry exposes the session registry.
func (a *App) Registry() *session.Registry { return a.registry }

// Run serves both listeners and sweeps the session registry until ctx is
// cancelled, then drains the listeners and returns.
func (a *App) Run(ctx context.Context) error {
	// Render the acknowledgement phrases in the background so the first
	// turn of the first session does not pay the warmup.
	if agent, ok := a.cfg.Agent(config.DefaultAgentID); ok && agent.Ack {
		go a.acks.Warm(ctx, a.providers.TTS, tts.Params{
			Voice:                 agent.Voice.Voice,
			Speed:                 agent.Voice.Speed,
			Emotion:               agent.Voice.Emotion,
			PauseBetweenSentences: agent.Voice.PauseBetweenSentences,
		})
	}

	voiceSrv := &http.Server{
		Addr:        a.cfg.Server.ListenAddr,
		Handler:     a.voice,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	opsSrv := &http.Server{
		Addr:    a.cfg.Server.OpsAddr,
		Handler: a.ops,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return serve(voiceSrv, a.cfg.Server.TLS) })
	g.Go(func() error { return serve(opsSrv, a.cfg.Server.TLS) })

	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case now := <-ticker.C:
				if removed := a.registry.Sweep(now); removed > 0 {
					a.metrics.ActiveSessions.Add(gctx, int64(-removed))
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := voiceSrv.Shutdown(drainCtx); err != nil {
			slog.Warn("voice listener drain failed", "error", err)
		}
		if err := opsSrv.Shutdown(drainCtx); err != nil {
			slog.Warn("ops listener drain failed", "error", err)
		}
		return nil
	})

	slog.Info("voxloop serving",
		"listen_addr", a.cfg.Server.ListenAddr,
		"ops_addr", a.cfg.Server.OpsAddr,
		"archive", a.cfg.Archive.Backend,
		"mcp", a.cfg.MCP.Enabled,
	)

	err := g.Wait()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// serve runs one HTTP listener with or without TLS, mapping the ordinary
// close into a nil error.
func serve(srv *http.Server, tlsCfg *config.TLSConfig) error {
	var err error
	if tlsCfg != nil {
		err = srv.ListenAndServeTLS(tlsCfg.CertFile, tlsCfg.KeyFile)
	} else {
		err = srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown waits out in-flight dialog pushes and tears down subsystems in
// reverse-init order. It respects the context deadline: if ctx expires,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		a.dialog.Wait()

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "error", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
