package elevenlabs

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/voxloop/voxloop/pkg/provider/tts"
)

func mustNew(t *testing.T, apiKey string, opts ...Option) *Provider {
	t.Helper()
	p, err := New(apiKey, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p := mustNew(t, "key")
		if p.model != "eleven_flash_v2_5" {
			t.Errorf("expected default model eleven_flash_v2_5, got %q", p.model)
		}
		if p.outputFormat != "pcm_16000" {
			t.Errorf("expected default output format pcm_16000, got %q", p.outputFormat)
		}
		if p.baseURL != "https://api.elevenlabs.io" {
			t.Errorf("unexpected base URL %q", p.baseURL)
		}
	})

	t.Run("empty api key", func(t *testing.T) {
		if _, err := New(""); err == nil {
			t.Fatal("expected error for empty api key")
		}
	})

	t.Run("base url trailing slash trimmed", func(t *testing.T) {
		p := mustNew(t, "key", WithBaseURL("http://localhost:9999/"))
		if p.baseURL != "http://localhost:9999" {
			t.Errorf("expected trimmed base URL, got %q", p.baseURL)
		}
	})
}

func TestPCMRate(t *testing.T) {
	tests := []struct {
		format  string
		want    int
		wantErr bool
	}{
		{"pcm_16000", 16000, false},
		{"pcm_24000", 24000, false},
		{"mp3_44100_128", 0, true},
		{"pcm_", 0, true},
		{"pcm_-5", 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.format, func(t *testing.T) {
			got, err := pcmRate(tc.format)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.format)
				}
				return
			}
			if err != nil {
				t.Fatalf("pcmRate(%q): %v", tc.format, err)
			}
			if got != tc.want {
				t.Errorf("pcmRate(%q) = %d, want %d", tc.format, got, tc.want)
			}
		})
	}
}

func TestSynthesize(t *testing.T) {
	t.Run("sends request and wraps PCM in WAV", func(t *testing.T) {
		pcm := make([]byte, 640)
		for i := range pcm {
			pcm[i] = byte(i)
		}

		var gotPath, gotQuery, gotKey string
		var gotBody synthesisRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotQuery = r.URL.RawQuery
			gotKey = r.Header.Get("xi-api-key")
			if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
				t.Errorf("decode body: %v", err)
			}
			w.Write(pcm)
		}))
		defer srv.Close()

		p := mustNew(t, "secret", WithBaseURL(srv.URL))
		wav, err := p.Synthesize(context.Background(), "Привет, мир!", tts.Params{Voice: "rachel"})
		if err != nil {
			t.Fatalf("Synthesize: %v", err)
		}

		if gotPath != "/v1/text-to-speech/rachel" {
			t.Errorf("unexpected path %q", gotPath)
		}
		if !strings.Contains(gotQuery, "output_format=pcm_16000") {
			t.Errorf("expected output_format in query, got %q", gotQuery)
		}
		if gotKey != "secret" {
			t.Errorf("expected xi-api-key header, got %q", gotKey)
		}
		if gotBody.Text != "Привет, мир!" {
			t.Errorf("unexpected text %q", gotBody.Text)
		}
		if gotBody.ModelID != "eleven_flash_v2_5" {
			t.Errorf("unexpected model %q", gotBody.ModelID)
		}
		if gotBody.VoiceSettings == nil || gotBody.VoiceSettings.Stability != 0.5 || gotBody.VoiceSettings.SimilarityBoost != 0.75 {
			t.Errorf("unexpected voice settings %+v", gotBody.VoiceSettings)
		}

		if string(wav[:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
			t.Fatal("expected WAV container in response")
		}
		rate := binary.LittleEndian.Uint32(wav[24:28])
		if rate != 16000 {
			t.Errorf("expected 16000 Hz WAV, got %d", rate)
		}
		if len(wav) != 44+len(pcm) {
			t.Errorf("expected %d byte WAV, got %d", 44+len(pcm), len(wav))
		}
	})

	t.Run("params model overrides default", func(t *testing.T) {
		var gotBody synthesisRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
				t.Errorf("decode body: %v", err)
			}
			w.Write(make([]byte, 320))
		}))
		defer srv.Close()

		p := mustNew(t, "key", WithBaseURL(srv.URL))
		if _, err := p.Synthesize(context.Background(), "hi", tts.Params{Voice: "v", Model: "eleven_turbo_v2"}); err != nil {
			t.Fatalf("Synthesize: %v", err)
		}
		if gotBody.ModelID != "eleven_turbo_v2" {
			t.Errorf("expected model override, got %q", gotBody.ModelID)
		}
	})

	t.Run("empty text", func(t *testing.T) {
		p := mustNew(t, "key")
		if _, err := p.Synthesize(context.Background(), "   ", tts.Params{Voice: "v"}); err == nil {
			t.Fatal("expected error for empty text")
		}
	})

	t.Run("missing voice", func(t *testing.T) {
		p := mustNew(t, "key")
		if _, err := p.Synthesize(context.Background(), "hi", tts.Params{}); err == nil {
			t.Fatal("expected error for missing voice")
		}
	})

	t.Run("server error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.Copy(io.Discard, r.Body)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}))
		defer srv.Close()

		p := mustNew(t, "bad", WithBaseURL(srv.URL))
		if _, err := p.Synthesize(context.Background(), "hi", tts.Params{Voice: "v"}); err == nil {
			t.Fatal("expected error for non-200 status")
		}
	})

	t.Run("empty audio response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		p := mustNew(t, "key", WithBaseURL(srv.URL))
		if _, err := p.Synthesize(context.Background(), "hi", tts.Params{Voice: "v"}); err == nil {
			t.Fatal("expected error for empty body")
		}
	})

	t.Run("unsupported output format", func(t *testing.T) {
		p := mustNew(t, "key", WithOutputFormat("mp3_44100_128"))
		if _, err := p.Synthesize(context.Background(), "hi", tts.Params{Voice: "v"}); err == nil {
			t.Fatal("expected error for non-PCM format")
		}
	})
}
