package silero

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/voxloop/voxloop/pkg/audio"
	"github.com/voxloop/voxloop/pkg/provider/tts"
)

// mustNew is a test helper that calls New and fails the test on error.
func mustNew(t *testing.T, serverURL string, opts ...Option) *Provider {
	t.Helper()
	p, err := New(serverURL, opts...)
	if err != nil {
		t.Fatalf("New(%q): unexpected error: %v", serverURL, err)
	}
	return p
}

func testWAV() []byte {
	return audio.BuildWAV(make([]byte, 640), 48000, 1)
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p := mustNew(t, "http://localhost:8010")
		if p.serverURL != "http://localhost:8010" {
			t.Errorf("serverURL = %q, want %q", p.serverURL, "http://localhost:8010")
		}
		if p.httpClient.Timeout != defaultTimeout {
			t.Errorf("timeout = %v, want %v", p.httpClient.Timeout, defaultTimeout)
		}
	})

	t.Run("trims trailing slash", func(t *testing.T) {
		p := mustNew(t, "http://localhost:8010/")
		if p.serverURL != "http://localhost:8010" {
			t.Errorf("serverURL = %q, want trailing slash stripped", p.serverURL)
		}
	})

	t.Run("empty URL", func(t *testing.T) {
		if _, err := New(""); err == nil {
			t.Fatal("expected error for empty server URL")
		}
	})

	t.Run("timeout option", func(t *testing.T) {
		p := mustNew(t, "http://localhost:8010", WithTimeout(5*time.Second))
		if p.httpClient.Timeout != 5*time.Second {
			t.Errorf("timeout = %v, want 5s", p.httpClient.Timeout)
		}
	})
}

func TestSynthesize(t *testing.T) {
	t.Run("sends full request body", func(t *testing.T) {
		var got ttsRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/tts_wav" {
				t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			}
			body, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(body, &got); err != nil {
				t.Errorf("bad request body: %v", err)
			}
			w.Header().Set("Content-Type", "audio/wav")
			w.Write(testWAV())
		}))
		defer srv.Close()

		p := mustNew(t, srv.URL)
		wav, err := p.Synthesize(context.Background(), "Привет, мир!", tts.Params{
			Model:                 "v4_ru",
			Voice:                 "eugene",
			Speed:                 1.05,
			Emotion:               "neutral",
			PauseBetweenSentences: 0.12,
		})
		if err != nil {
			t.Fatalf("Synthesize: %v", err)
		}
		if len(wav) == 0 || string(wav[:4]) != "RIFF" {
			t.Error("expected WAV bytes back")
		}
		if got.Text != "Привет, мир!" {
			t.Errorf("text = %q", got.Text)
		}
		if got.Voice != "eugene" || got.Speed != 1.05 || got.Emotion != "neutral" {
			t.Errorf("params not forwarded: %+v", got)
		}
		if got.PauseBetweenSentences != 0.12 {
			t.Errorf("pause = %v, want 0.12", got.PauseBetweenSentences)
		}
	})

	t.Run("empty text", func(t *testing.T) {
		p := mustNew(t, "http://localhost:8010")
		if _, err := p.Synthesize(context.Background(), "   ", tts.Params{}); err == nil {
			t.Fatal("expected error for blank text")
		}
	})

	t.Run("server error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusInternalServerError)
		}))
		defer srv.Close()

		p := mustNew(t, srv.URL)
		if _, err := p.Synthesize(context.Background(), "текст", tts.Params{}); err == nil {
			t.Fatal("expected error for HTTP 500")
		}
	})

	t.Run("non-WAV response rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"detail":"oops"}`))
		}))
		defer srv.Close()

		p := mustNew(t, srv.URL)
		if _, err := p.Synthesize(context.Background(), "текст", tts.Params{}); err == nil {
			t.Fatal("expected error for non-RIFF body")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		block := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-block
		}))
		defer srv.Close()
		defer close(block)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()

		p := mustNew(t, srv.URL)
		if _, err := p.Synthesize(ctx, "текст", tts.Params{}); err == nil {
			t.Fatal("expected error for cancelled context")
		}
	})
}
