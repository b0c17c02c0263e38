// Package dialoglog pushes finished dialog turns to the control plane.
//
// Pushes are fire-and-forget: a failed or slow push never blocks the voice
// pipeline, it is logged and dropped. The control plane keeps its own durable
// record; the authoritative transcript lives in the archive.
package dialoglog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/voxloop/voxloop/internal/config"
)

// Event is one dialog turn as the control plane expects it.
type Event struct {
	Role        string  `json:"role"`
	Text        string  `json:"text"`
	UtteranceID *uint32 `json:"utterance_id"`
	TS          int64   `json:"ts"`
}

// Pusher sends dialog events to the control plane. The zero value and a nil
// *Pusher are both safe no-ops, so callers never need to branch on whether
// dialog pushes are configured.
type Pusher struct {
	baseURL     string
	internalKey string
	client      *http.Client
	wg          sync.WaitGroup
}

// New builds a pusher from the dialog config. Returns nil when the control
// URL or internal key is empty, which disables pushing.
func New(cfg config.DialogConfig) *Pusher {
	if cfg.ControlURL == "" || cfg.InternalKey == "" {
		return nil
	}
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Pusher{
		baseURL:     strings.TrimRight(cfg.ControlURL, "/"),
		internalKey: cfg.InternalKey,
		client:      &http.Client{Timeout: timeout},
	}
}

// PushTurn normalizes and asynchronously delivers one turn. Blank text and
// unknown roles are dropped before any network activity.
func (p *Pusher) PushTurn(sessionID, role, text string) {
	if p == nil {
		return
	}
	text = strings.TrimSpace(text)
	if text == "" || (role != "user" && role != "assistant") {
		return
	}
	ev := Event{Role: role, Text: text, TS: time.Now().UnixMilli()}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.send(sessionID, ev); err != nil {
			slog.Warn("dialog push failed", "session_id", sessionID, "role", role, "error", err)
			return
		}
		slog.Debug("dialog event pushed", "session_id", sessionID, "role", role, "chars", len([]rune(text)))
	}()
}

// Wait blocks until all in-flight pushes finish. Called during shutdown.
func (p *Pusher) Wait() {
	if p == nil {
		return
	}
	p.wg.Wait()
}

func (p *Pusher) send(sessionID string, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	url := fmt.Sprintf("%s/v1/internal/voice/sessions/%s/events", p.baseURL, sessionID)
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Key", p.internalKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("control plane returned %d", resp.StatusCode)
	}
	return nil
}
