package whisper

import (
	"testing"
	"time"
)

func TestNew_EmptyPath_ReturnsError(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Fatal("expected error for empty model path, got nil")
	}
}

func TestNew_InvalidPath_ReturnsError(t *testing.T) {
	_, err := New("/nonexistent/path/to/model.bin")
	if err == nil {
		t.Fatal("expected error for invalid model path, got nil")
	}
}

func TestInterpolateWords_Empty(t *testing.T) {
	if got := interpolateWords("   ", 0, time.Second); got != nil {
		t.Fatalf("expected nil for blank text, got %v", got)
	}
}

func TestInterpolateWords_EvenSpread(t *testing.T) {
	words := interpolateWords("раз два три", 1*time.Second, 4*time.Second)
	if len(words) != 3 {
		t.Fatalf("expected 3 words, got %d", len(words))
	}
	wantStarts := []float64{1, 2, 3}
	for i, w := range words {
		if w.Start != wantStarts[i] {
			t.Errorf("word %d start = %v, want %v", i, w.Start, wantStarts[i])
		}
		if w.End != wantStarts[i]+1 {
			t.Errorf("word %d end = %v, want %v", i, w.End, wantStarts[i]+1)
		}
		if w.Conf != 1 {
			t.Errorf("word %d conf = %v, want 1", i, w.Conf)
		}
	}
	if words[0].Word != "раз" || words[2].Word != "три" {
		t.Errorf("unexpected word texts: %v", words)
	}
}

func TestInterpolateWords_NegativeSpan(t *testing.T) {
	words := interpolateWords("слово", 2*time.Second, 1*time.Second)
	if len(words) != 1 {
		t.Fatalf("expected 1 word, got %d", len(words))
	}
	if words[0].Start != 2 || words[0].End != 2 {
		t.Errorf("expected zero-width word at segment start, got %+v", words[0])
	}
}
