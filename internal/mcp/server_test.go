package mcp

import (
	"context"
	"strings"
	"testing"

	badgerstore "github.com/voxloop/voxloop/internal/archive/badger"
	"github.com/voxloop/voxloop/internal/session"
)

func TestListSessions(t *testing.T) {
	t.Parallel()
	registry := session.NewRegistry()
	s1, _ := registry.GetOrCreate("sess-1", "assistant")
	s1.AddTurn(session.RoleUser, "привет", 0)
	s2, _ := registry.GetOrCreate("sess-2", "support")
	s2.End()

	srv := NewServer(registry, nil, nil)
	_, out, err := srv.listSessions(context.Background(), nil, ListSessionsInput{})
	if err != nil {
		t.Fatalf("list_sessions: %v", err)
	}
	if len(out.Sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(out.Sessions))
	}
	byID := map[string]SessionInfo{}
	for _, info := range out.Sessions {
		byID[info.SessionID] = info
	}
	if byID["sess-1"].Turns != 1 || byID["sess-1"].Ended {
		t.Errorf("sess-1 = %+v", byID["sess-1"])
	}
	if !byID["sess-2"].Ended {
		t.Errorf("sess-2 = %+v", byID["sess-2"])
	}
}

func TestGetTranscript(t *testing.T) {
	t.Parallel()
	registry := session.NewRegistry()
	sess, _ := registry.GetOrCreate("sess-1", "assistant")
	sess.AddTurn(session.RoleUser, "вопрос", 0)
	sess.AddTurn(session.RoleAssistant, "ответ", 1)

	srv := NewServer(registry, nil, nil)
	_, out, err := srv.getTranscript(context.Background(), nil, TranscriptInput{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("get_transcript: %v", err)
	}
	if len(out.Turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(out.Turns))
	}
	if out.Turns[1].Role != "assistant" || out.Turns[1].Text != "ответ" {
		t.Errorf("turns = %+v", out.Turns)
	}

	if _, _, err := srv.getTranscript(context.Background(), nil, TranscriptInput{SessionID: "no-such"}); err == nil {
		t.Error("unknown session should error")
	}
}

func TestEndSession(t *testing.T) {
	t.Parallel()
	registry := session.NewRegistry()
	sess, _ := registry.GetOrCreate("sess-1", "assistant")
	sess.AddTurn(session.RoleUser, "спасибо за помощь", 0)

	store, err := badgerstore.NewInMemory()
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	srv := NewServer(registry, nil, store)
	_, out, err := srv.endSession(context.Background(), nil, EndSessionInput{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("end_session: %v", err)
	}
	if !strings.Contains(out.Summary, "Краткое резюме сессии:") {
		t.Errorf("summary = %q", out.Summary)
	}
	if ended, _ := sess.Ended(); !ended {
		t.Error("session not marked ended")
	}
}

func TestHandlerNotNil(t *testing.T) {
	t.Parallel()
	srv := NewServer(session.NewRegistry(), nil, nil)
	if srv.Handler() == nil {
		t.Fatal("Handler returned nil")
	}
}
