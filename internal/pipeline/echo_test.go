package pipeline

import "testing"

func TestIsEchoLike(t *testing.T) {
	t.Parallel()
	assistant := "Сегодня в Москве солнечно, около двадцати градусов."

	cases := []struct {
		name  string
		final string
		want  bool
	}{
		{"exact playback", "Сегодня в Москве солнечно, около двадцати градусов.", true},
		{"partial playback", "в москве солнечно около", false}, // punctuation differs, not a substring
		{"clean substring", "сегодня в москве солнечно,", true},
		{"near identical", "Сегодня в Москве солнечно, около двадцати градусов", true},
		{"short final", "да", false},
		{"real question", "а какая погода будет завтра вечером", false},
	}
	for _, c := range cases {
		if got := isEchoLike(c.final, assistant); got != c.want {
			t.Errorf("%s: isEchoLike(%q) = %v, want %v", c.name, c.final, got, c.want)
		}
	}
}

func TestIsEchoLikeNoAssistantHistory(t *testing.T) {
	t.Parallel()
	if isEchoLike("любой достаточно длинный текст", "") {
		t.Error("echo reported with no assistant turn to echo")
	}
}

func TestNormText(t *testing.T) {
	t.Parallel()
	if got := normText("  Привет,   МИР  "); got != "привет, мир" {
		t.Errorf("normText = %q", got)
	}
}
