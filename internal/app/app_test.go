package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/voxloop/voxloop/internal/config"
	asrmock "github.com/voxloop/voxloop/pkg/provider/asr/mock"
	llmmock "github.com/voxloop/voxloop/pkg/provider/llm/mock"
	ttsmock "github.com/voxloop/voxloop/pkg/provider/tts/mock"
	vadmock "github.com/voxloop/voxloop/pkg/provider/vad/mock"
)

func testProviders() *Providers {
	return &Providers{
		ASR: &asrmock.Engine{},
		VAD: &vadmock.Engine{},
		LLM: &llmmock.Provider{},
		TTS: &ttsmock.Provider{},
	}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Auth.DisableAuth = true
	cfg.Server.ListenAddr = "127.0.0.1:0"
	cfg.Server.OpsAddr = "127.0.0.1:0"
	return cfg
}

func TestNewRequiresProviders(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	if _, err := New(ctx, testConfig(), nil); err == nil {
		t.Error("nil providers accepted")
	}

	p := testProviders()
	p.TTS = nil
	if _, err := New(ctx, testConfig(), p); err == nil {
		t.Error("missing tts provider accepted")
	}

	if _, err := New(ctx, nil, testProviders()); err == nil {
		t.Error("nil config accepted")
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	a, err := New(context.Background(), testConfig(), testProviders())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	srv := httptest.NewServer(a.OpsHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" {
		t.Errorf("body = %q", body)
	}
}

func TestMetricsEndpointExposed(t *testing.T) {
	t.Parallel()
	a, err := New(context.Background(), testConfig(), testProviders())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	srv := httptest.NewServer(a.OpsHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestMCPMountedWhenEnabled(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.MCP.Enabled = true
	a, err := New(context.Background(), cfg, testProviders())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	srv := httptest.NewServer(a.OpsHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/mcp")
	if err != nil {
		t.Fatalf("get mcp: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		t.Error("mcp endpoint not mounted")
	}
}

func TestBadgerArchiveWiring(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Archive.Backend = config.ArchiveBadger
	cfg.Archive.BadgerPath = t.TempDir()

	a, err := New(context.Background(), cfg, testProviders())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.store == nil {
		t.Fatal("badger archive not wired")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestUnknownArchiveBackendRejected(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Archive.Backend = "tape"

	if _, err := New(context.Background(), cfg, testProviders()); err == nil {
		t.Error("unknown archive backend accepted")
	}
	if _, err := New(context.Background(), cfg, testProviders()); err != nil &&
		!strings.Contains(err.Error(), "tape") {
		t.Errorf("error does not name the backend: %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	a, err := New(context.Background(), testConfig(), testProviders())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestShutdownIdempotent(t *testing.T) {
	t.Parallel()
	a, err := New(context.Background(), testConfig(), testProviders())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := a.Shutdown(ctx); err != nil {
		t.Errorf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}
