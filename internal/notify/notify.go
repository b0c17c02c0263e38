// Package notify delivers session summary notifications to operators.
//
// The only production implementation posts to a Discord channel; the
// [Notifier] interface keeps the pipeline and ops API decoupled from the
// transport so tests can capture notifications in memory.
package notify

import (
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// Notifier receives end-of-session events. Implementations must not block
// for long; callers treat notification as fire-and-forget.
type Notifier interface {
	// SessionEnded reports a finished session together with its summary.
	SessionEnded(sessionID, agentID, summary string)
}

// messageSender is the slice of discordgo.Session the notifier needs.
type messageSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts session summaries to a fixed channel.
type Discord struct {
	sender    messageSender
	channelID string
	closer    func() error
}

// NewDiscord connects a bot session and returns a notifier posting to
// channelID.
func NewDiscord(token, channelID string) (*Discord, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("notify: create discord session: %w", err)
	}
	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("notify: open discord session: %w", err)
	}
	return &Discord{
		sender:    session,
		channelID: channelID,
		closer:    session.Close,
	}, nil
}

// SessionEnded implements [Notifier]. Send failures are logged, never
// propagated.
func (d *Discord) SessionEnded(sessionID, agentID, summary string) {
	msg := fmt.Sprintf("Сессия `%s` (агент `%s`) завершена.\n%s", sessionID, agentID, summary)
	if _, err := d.sender.ChannelMessageSend(d.channelID, msg); err != nil {
		slog.Warn("discord notification failed", "session_id", sessionID, "error", err)
	}
}

// Close shuts down the gateway connection.
func (d *Discord) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer()
}
