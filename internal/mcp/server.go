// Package mcp exposes voxloop session operations as Model Context Protocol
// tools, served over streamable HTTP on the operational listener. An agent
// connected to this endpoint can inspect live sessions, fetch transcripts
// and force-end a session.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/voxloop/voxloop/internal/archive"
	"github.com/voxloop/voxloop/internal/session"
)

// Server wires the session registry and archive into MCP tools.
type Server struct {
	registry   *session.Registry
	summariser session.Summariser
	store      archive.Store

	srv *mcpsdk.Server
}

// ListSessionsInput is the (empty) input of the list_sessions tool.
type ListSessionsInput struct{}

// SessionInfo is one entry in the list_sessions output.
type SessionInfo struct {
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id"`
	Turns     int    `json:"turns"`
	Ended     bool   `json:"ended"`
}

// ListSessionsOutput is the output of the list_sessions tool.
type ListSessionsOutput struct {
	Sessions []SessionInfo `json:"sessions"`
}

// TranscriptInput selects the session for get_transcript.
type TranscriptInput struct {
	SessionID string `json:"session_id" jsonschema:"id of the session to fetch"`
}

// TranscriptOutput is the output of the get_transcript tool.
type TranscriptOutput struct {
	SessionID string               `json:"session_id"`
	Turns     []archive.TurnRecord `json:"turns"`
}

// EndSessionInput selects the session for end_session.
type EndSessionInput struct {
	SessionID string `json:"session_id" jsonschema:"id of the session to end"`
}

// EndSessionOutput is the output of the end_session tool.
type EndSessionOutput struct {
	SessionID string `json:"session_id"`
	Summary   string `json:"summary"`
}

// NewServer creates the MCP tool server. summariser may be nil (heuristic
// summaries); store may be nil (transcripts come from in-memory state only).
func NewServer(registry *session.Registry, summariser session.Summariser, store archive.Store) *Server {
	if summariser == nil {
		summariser = session.HeuristicSummariser{}
	}
	s := &Server{
		registry:   registry,
		summariser: summariser,
		store:      store,
	}

	s.srv = mcpsdk.NewServer(
		&mcpsdk.Implementation{Name: "voxloop-ops", Version: "1.0.0"},
		nil,
	)
	mcpsdk.AddTool(s.srv, &mcpsdk.Tool{
		Name:        "list_sessions",
		Description: "List voice sessions known to this server with turn counts and state.",
	}, s.listSessions)
	mcpsdk.AddTool(s.srv, &mcpsdk.Tool{
		Name:        "get_transcript",
		Description: "Fetch the full turn-by-turn transcript of a voice session.",
	}, s.getTranscript)
	mcpsdk.AddTool(s.srv, &mcpsdk.Tool{
		Name:        "end_session",
		Description: "End a voice session, producing and returning its summary.",
	}, s.endSession)

	return s
}

// Handler returns the streamable HTTP handler, mounted by the ops server
// under /mcp.
func (s *Server) Handler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(
		func(*http.Request) *mcpsdk.Server { return s.srv },
		nil,
	)
}

func (s *Server) listSessions(_ context.Context, _ *mcpsdk.CallToolRequest, _ ListSessionsInput) (*mcpsdk.CallToolResult, ListSessionsOutput, error) {
	out := ListSessionsOutput{Sessions: []SessionInfo{}}
	for _, sess := range s.registry.List() {
		ended, _ := sess.Ended()
		out.Sessions = append(out.Sessions, SessionInfo{
			SessionID: sess.ID,
			AgentID:   sess.AgentID,
			Turns:     sess.TurnCount(),
			Ended:     ended,
		})
	}
	return nil, out, nil
}

func (s *Server) getTranscript(ctx context.Context, _ *mcpsdk.CallToolRequest, in TranscriptInput) (*mcpsdk.CallToolResult, TranscriptOutput, error) {
	out := TranscriptOutput{SessionID: in.SessionID, Turns: []archive.TurnRecord{}}

	if s.store != nil {
		turns, err := s.store.Transcript(ctx, in.SessionID)
		if err == nil && len(turns) > 0 {
			out.Turns = turns
			return nil, out, nil
		}
		if err != nil {
			slog.Warn("mcp transcript archive read failed", "session_id", in.SessionID, "error", err)
		}
	}

	sess := s.registry.Get(in.SessionID)
	if sess == nil {
		return nil, TranscriptOutput{}, fmt.Errorf("unknown session %q", in.SessionID)
	}
	for _, t := range sess.Turns() {
		out.Turns = append(out.Turns, archive.TurnRecord{
			SessionID:   sess.ID,
			AgentID:     sess.AgentID,
			Role:        t.Role,
			Text:        t.Text,
			UtteranceID: t.UtteranceID,
			TS:          t.TS,
		})
	}
	return nil, out, nil
}

func (s *Server) endSession(ctx context.Context, _ *mcpsdk.CallToolRequest, in EndSessionInput) (*mcpsdk.CallToolResult, EndSessionOutput, error) {
	sess := s.registry.Get(in.SessionID)
	if sess == nil {
		return nil, EndSessionOutput{}, fmt.Errorf("unknown session %q", in.SessionID)
	}

	summary := sess.Summary()
	if summary == "" && sess.TurnCount() > 0 {
		var err error
		summary, err = s.summariser.Summarise(ctx, sess)
		if err != nil {
			summary = "summary_error: " + err.Error()
		}
		sess.SetSummary(summary)
	}
	sess.End()
	slog.Info("session ended via mcp tool", "session_id", in.SessionID)

	if s.store != nil && summary != "" {
		if err := s.store.SaveSummary(ctx, in.SessionID, sess.AgentID, summary); err != nil {
			slog.Warn("archive summary write failed", "session_id", in.SessionID, "error", err)
		}
	}

	return nil, EndSessionOutput{SessionID: in.SessionID, Summary: summary}, nil
}
