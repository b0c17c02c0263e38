package badger

import (
	"context"
	"testing"

	"github.com/voxloop/voxloop/internal/archive"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewInMemory()
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTranscriptOrder(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	turns := []archive.TurnRecord{
		{SessionID: "sess-1", AgentID: "assistant", Role: "user", Text: "привет", TS: 100},
		{SessionID: "sess-1", AgentID: "assistant", Role: "assistant", Text: "здравствуйте", UtteranceID: 1, TS: 200},
		{SessionID: "sess-1", AgentID: "assistant", Role: "user", Text: "как дела", TS: 300},
		{SessionID: "sess-2", AgentID: "assistant", Role: "user", Text: "другая сессия", TS: 150},
	}
	// Out of order on purpose; the key layout must restore chronology.
	for _, i := range []int{2, 0, 3, 1} {
		if err := s.SaveTurn(ctx, turns[i]); err != nil {
			t.Fatalf("save turn: %v", err)
		}
	}

	got, err := s.Transcript(ctx, "sess-1")
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("turns = %d, want 3", len(got))
	}
	for i, want := range []string{"привет", "здравствуйте", "как дела"} {
		if got[i].Text != want {
			t.Errorf("turn %d = %q, want %q", i, got[i].Text, want)
		}
	}
	if got[0].ID == "" {
		t.Error("record id not assigned")
	}
	if got[1].UtteranceID != 1 {
		t.Errorf("utterance id = %d, want 1", got[1].UtteranceID)
	}
}

func TestTranscriptUnknownSession(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	got, err := s.Transcript(context.Background(), "no-such")
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("turns = %d, want 0", len(got))
	}
}

func TestSearch(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	records := []archive.TurnRecord{
		{SessionID: "sess-1", Role: "user", Text: "расскажи про погоду", TS: 100},
		{SessionID: "sess-2", Role: "user", Text: "какая Погода в Москве", TS: 300},
		{SessionID: "sess-1", Role: "assistant", Text: "сегодня солнечно", TS: 200},
	}
	for _, r := range records {
		if err := s.SaveTurn(ctx, r); err != nil {
			t.Fatalf("save turn: %v", err)
		}
	}

	hits, err := s.Search(ctx, "погода", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2", len(hits))
	}
	// Newest first.
	if hits[0].SessionID != "sess-2" || hits[1].SessionID != "sess-1" {
		t.Errorf("hit order: %s, %s", hits[0].SessionID, hits[1].SessionID)
	}

	hits, err = s.Search(ctx, "погода", 1)
	if err != nil {
		t.Fatalf("search with limit: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("limited hits = %d, want 1", len(hits))
	}

	hits, err = s.Search(ctx, "   ", 10)
	if err != nil {
		t.Fatalf("blank search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("blank query hits = %d, want 0", len(hits))
	}
}

func TestSaveSummary(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveSummary(ctx, "sess-1", "assistant", "первое резюме"); err != nil {
		t.Fatalf("save summary: %v", err)
	}
	// Replacement is silent.
	if err := s.SaveSummary(ctx, "sess-1", "assistant", "второе резюме"); err != nil {
		t.Fatalf("replace summary: %v", err)
	}
}
