package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/golang-jwt/jwt/v5"

	"github.com/voxloop/voxloop/internal/auth"
	"github.com/voxloop/voxloop/internal/config"
	"github.com/voxloop/voxloop/internal/session"
	asrmock "github.com/voxloop/voxloop/pkg/provider/asr/mock"
	"github.com/voxloop/voxloop/pkg/provider/llm"
	llmmock "github.com/voxloop/voxloop/pkg/provider/llm/mock"
	ttsmock "github.com/voxloop/voxloop/pkg/provider/tts/mock"
	vadmock "github.com/voxloop/voxloop/pkg/provider/vad/mock"
)

const testSecret = "test-secret"

type testEnv struct {
	srv      *httptest.Server
	registry *session.Registry
	llm      *llmmock.Provider
	rec      *asrmock.Recognizer
}

// newTestEnv builds a running server over mock providers. mutate may adjust
// the config before the verifier and server are built.
func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Auth.DisableAuth = true
	cfg.Auth.JWTSecret = testSecret
	if mutate != nil {
		mutate(cfg)
	}

	rec := &asrmock.Recognizer{}
	env := &testEnv{
		registry: session.NewRegistry(),
		llm: &llmmock.Provider{StreamChunks: []llm.Chunk{
			{Text: "Привет!"},
			{FinishReason: "stop"},
		}},
		rec: rec,
	}

	verifier := auth.NewVerifier(cfg.Auth, func(id string) bool {
		_, ok := cfg.Agent(id)
		return ok
	})

	server, err := NewServer(Deps{
		Config:   cfg,
		Verifier: verifier,
		Registry: env.registry,
		ASR:      &asrmock.Engine{Recognizer: rec},
		VAD:      &vadmock.Engine{Session: &vadmock.Session{}},
		LLM:      env.llm,
		TTS:      &ttsmock.Provider{},
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	env.srv = httptest.NewServer(server)
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) dial(t *testing.T, ctx context.Context, opts *websocket.DialOptions) *websocket.Conn {
	t.Helper()
	url := strings.Replace(e.srv.URL, "http", "ws", 1)
	conn, _, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

// readEvent reads one JSON message and returns it as a generic map.
func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn) map[string]any {
	t.Helper()
	var m map[string]any
	if err := wsjson.Read(ctx, conn, &m); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return m
}

// readUntil drains events until one matches the given type or event name.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, kind string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		m := readEvent(t, ctx, conn)
		if m["type"] == kind || m["event"] == kind {
			return m
		}
	}
	t.Fatalf("no %q event before deadline", kind)
	return nil
}

func signToken(t *testing.T, sub, agent string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"agent": agent,
		"aud":   "voice-ws",
		"iss":   "voice-control",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestAcceptSendsReady(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	env := newTestEnv(t, nil)
	conn := env.dial(t, ctx, nil)

	ready := readEvent(t, ctx, conn)
	if ready["event"] != "ready" {
		t.Fatalf("first event = %v, want ready", ready)
	}
	if ready["sample_rate"] != float64(16000) {
		t.Errorf("sample_rate = %v", ready["sample_rate"])
	}
	// The initial ready carries the static endpointing defaults.
	if _, ok := ready["final_pause_ms"]; !ok {
		t.Error("initial ready missing final_pause_ms")
	}
}

func TestAuthRejectedWithoutToken(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Auth.DisableAuth = false
	})
	conn := env.dial(t, ctx, nil)

	_, _, err := conn.Read(ctx)
	if err == nil {
		t.Fatal("read succeeded on unauthenticated connection")
	}
	if got := websocket.CloseStatus(err); got != 4001 {
		t.Errorf("close status = %d, want 4001", got)
	}
}

func TestUnknownAgentRejected(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Auth.DisableAuth = false
	})
	conn := env.dial(t, ctx, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": {"Bearer " + signToken(t, "sess-ghost", "ghost")},
		},
	})

	_, _, err := conn.Read(ctx)
	if err == nil {
		t.Fatal("read succeeded for unknown agent")
	}
	if got := websocket.CloseStatus(err); got != websocket.StatusPolicyViolation {
		t.Errorf("close status = %d, want 1008", got)
	}
}

func TestOriginAllowList(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Server.AllowedOrigins = []string{"https://app.example.com"}
	})

	t.Run("disallowed origin closed with 1008", func(t *testing.T) {
		conn := env.dial(t, ctx, &websocket.DialOptions{
			HTTPHeader: http.Header{"Origin": {"https://evil.example.net"}},
		})
		_, _, err := conn.Read(ctx)
		if err == nil {
			t.Fatal("read succeeded from disallowed origin")
		}
		if got := websocket.CloseStatus(err); got != websocket.StatusPolicyViolation {
			t.Errorf("close status = %d, want 1008", got)
		}
	})

	t.Run("allowed origin serves ready", func(t *testing.T) {
		conn := env.dial(t, ctx, &websocket.DialOptions{
			HTTPHeader: http.Header{"Origin": {"https://app.example.com"}},
		})
		readUntil(t, ctx, conn, "ready")
	})
}

func TestOriginAllowed(t *testing.T) {
	t.Parallel()
	patterns := []string{"https://app.example.com", "*.voxloop.dev"}
	tests := []struct {
		origin string
		want   bool
	}{
		{"https://app.example.com", true},
		{"https://APP.EXAMPLE.COM", true},
		{"https://console.voxloop.dev", true},
		{"https://evil.example.net", false},
		{"https://app.example.com.evil.net", false},
	}
	for _, tc := range tests {
		if got := originAllowed(tc.origin, patterns); got != tc.want {
			t.Errorf("originAllowed(%q) = %v, want %v", tc.origin, got, tc.want)
		}
	}
}

func TestValidTokenBindsSession(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Auth.DisableAuth = false
	})
	conn := env.dial(t, ctx, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": {"Bearer " + signToken(t, "sess-42", "assistant")},
		},
	})

	readUntil(t, ctx, conn, "ready")
	if env.registry.Get("sess-42") == nil {
		t.Error("session sess-42 not registered")
	}
}

func TestPingPongOverWire(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	env := newTestEnv(t, nil)
	conn := env.dial(t, ctx, nil)
	readUntil(t, ctx, conn, "ready")

	if err := wsjson.Write(ctx, conn, map[string]any{"ping": 123}); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	var pong map[string]json.RawMessage
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if err := wsjson.Read(ctx, conn, &pong); err != nil {
			t.Fatalf("read: %v", err)
		}
		if raw, ok := pong["pong"]; ok {
			if string(raw) != "123" {
				t.Errorf("pong = %s, want 123", raw)
			}
			return
		}
	}
	t.Fatal("no pong before deadline")
}

func TestConfigHandshakeOverWire(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	env := newTestEnv(t, nil)
	conn := env.dial(t, ctx, nil)
	readUntil(t, ctx, conn, "ready")

	msg := map[string]any{"config": map[string]any{"sample_rate": 16000, "words": true}}
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		t.Fatalf("write config: %v", err)
	}

	ready := readUntil(t, ctx, conn, "ready")
	// The post-config ready omits the static thresholds.
	if _, ok := ready["final_pause_ms"]; ok {
		t.Error("post-config ready carries final_pause_ms")
	}
}

func TestChatOverWire(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	env := newTestEnv(t, nil)
	conn := env.dial(t, ctx, nil)
	readUntil(t, ctx, conn, "ready")

	if err := wsjson.Write(ctx, conn, map[string]any{"chat": "какая погода"}); err != nil {
		t.Fatalf("write chat: %v", err)
	}

	start := readUntil(t, ctx, conn, "chat_start")
	if start["question"] != "какая погода" {
		t.Errorf("question = %v", start["question"])
	}
	readUntil(t, ctx, conn, "llm_start")
	readUntil(t, ctx, conn, "llm_end")
}

func TestEOFClosesNormally(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	env := newTestEnv(t, nil)
	conn := env.dial(t, ctx, nil)
	readUntil(t, ctx, conn, "ready")

	if err := wsjson.Write(ctx, conn, map[string]any{"eof": 1}); err != nil {
		t.Fatalf("write eof: %v", err)
	}

	for {
		_, _, err := conn.Read(ctx)
		if err != nil {
			if got := websocket.CloseStatus(err); got != websocket.StatusNormalClosure {
				t.Errorf("close status = %d, want 1000", got)
			}
			return
		}
	}
}

func TestEndSessionOverWire(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	env := newTestEnv(t, nil)
	conn := env.dial(t, ctx, nil)
	readUntil(t, ctx, conn, "ready")

	if err := wsjson.Write(ctx, conn, map[string]any{"type": "end_session"}); err != nil {
		t.Fatalf("write end_session: %v", err)
	}

	summary := readUntil(t, ctx, conn, "session_summary")
	if summary["summary"] != "Сессия пуста или не найдена" {
		t.Errorf("summary = %v", summary["summary"])
	}
	readUntil(t, ctx, conn, "session_end")

	for {
		_, _, err := conn.Read(ctx)
		if err != nil {
			if got := websocket.CloseStatus(err); got != websocket.StatusNormalClosure {
				t.Errorf("close status = %d, want 1000", got)
			}
			break
		}
	}

	sessions := env.registry.List()
	if len(sessions) != 1 {
		t.Fatalf("registry holds %d sessions", len(sessions))
	}
	if ended, _ := sessions[0].Ended(); !ended {
		t.Error("session not marked ended")
	}
}

func TestInjectedFinalStartsGeneration(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	env := newTestEnv(t, nil)
	conn := env.dial(t, ctx, nil)
	readUntil(t, ctx, conn, "ready")

	if err := wsjson.Write(ctx, conn, map[string]any{"type": "final", "text": "привет мир"}); err != nil {
		t.Fatalf("write final: %v", err)
	}

	start := readUntil(t, ctx, conn, "llm_start")
	if start["text"] != "привет мир" {
		t.Errorf("llm_start text = %v", start["text"])
	}
	readUntil(t, ctx, conn, "nlu_start")
}
