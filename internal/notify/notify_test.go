package notify

import (
	"errors"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
)

type fakeSender struct {
	channelID string
	content   string
	err       error
}

func (f *fakeSender) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.channelID = channelID
	f.content = content
	return &discordgo.Message{}, f.err
}

func TestSessionEnded(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	d := &Discord{sender: sender, channelID: "chan-1"}

	d.SessionEnded("sess-1", "assistant", "Краткое резюме сессии: тест")

	if sender.channelID != "chan-1" {
		t.Errorf("channel = %q, want chan-1", sender.channelID)
	}
	for _, want := range []string{"sess-1", "assistant", "Краткое резюме сессии: тест"} {
		if !strings.Contains(sender.content, want) {
			t.Errorf("message missing %q: %q", want, sender.content)
		}
	}
}

func TestSessionEndedSwallowsErrors(t *testing.T) {
	t.Parallel()
	d := &Discord{sender: &fakeSender{err: errors.New("gateway down")}, channelID: "chan-1"}
	// Must not panic or propagate.
	d.SessionEnded("sess-1", "assistant", "резюме")
}

func TestCloseWithoutSession(t *testing.T) {
	t.Parallel()
	d := &Discord{}
	if err := d.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
