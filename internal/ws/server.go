// Package ws serves the realtime voice WebSocket endpoint. It authenticates
// the handshake, binds the connection to a session from the registry, builds
// a per-connection pipeline and runs the read loop that feeds it.
//
// Binary frames carry PCM16 audio; text frames carry one JSON control object
// each. All server output goes through a serialized sender so JSON events and
// the binary audio frames they announce stay adjacent on the wire.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/coder/websocket"
	"golang.org/x/sync/semaphore"

	"github.com/voxloop/voxloop/internal/archive"
	"github.com/voxloop/voxloop/internal/auth"
	"github.com/voxloop/voxloop/internal/config"
	"github.com/voxloop/voxloop/internal/dialoglog"
	"github.com/voxloop/voxloop/internal/notify"
	"github.com/voxloop/voxloop/internal/observe"
	"github.com/voxloop/voxloop/internal/pipeline"
	"github.com/voxloop/voxloop/internal/session"
	"github.com/voxloop/voxloop/internal/transcript"
	"github.com/voxloop/voxloop/internal/transcript/llmcorrect"
	"github.com/voxloop/voxloop/pkg/protocol"
	"github.com/voxloop/voxloop/pkg/provider/asr"
	"github.com/voxloop/voxloop/pkg/provider/llm"
	"github.com/voxloop/voxloop/pkg/provider/tts"
	"github.com/voxloop/voxloop/pkg/provider/vad"
)

// Deps carries everything the server needs to serve connections. Config,
// Verifier, Registry and the four pipeline providers are required.
type Deps struct {
	Config   *config.Config
	Verifier *auth.Verifier
	Registry *session.Registry

	ASR asr.Engine
	VAD vad.Engine
	LLM llm.Provider
	TTS tts.Provider

	// Acks serves pre-rendered acknowledgement audio. May be nil.
	Acks *tts.AckCache

	// Summariser builds end-of-session summaries. Nil uses the heuristic one.
	Summariser session.Summariser

	// Dialog pushes committed turns to the control plane. May be nil.
	Dialog *dialoglog.Pusher

	// Archive persists turns and summaries. May be nil.
	Archive archive.Store

	// Notifier receives end-of-session summaries. May be nil.
	Notifier notify.Notifier

	// Metrics records server instrumentation. Nil uses the default set.
	Metrics *observe.Metrics

	// Decode bounds concurrent recognition decode across connections. May be
	// nil.
	Decode *semaphore.Weighted
}

// Server is the WebSocket voice endpoint. It implements http.Handler; one
// ServeHTTP call owns one connection for its whole lifetime.
type Server struct {
	deps Deps
}

// NewServer validates deps and builds the endpoint handler.
func NewServer(d Deps) (*Server, error) {
	switch {
	case d.Config == nil:
		return nil, errors.New("ws: nil config")
	case d.Verifier == nil:
		return nil, errors.New("ws: nil verifier")
	case d.Registry == nil:
		return nil, errors.New("ws: nil registry")
	case d.ASR == nil, d.VAD == nil, d.LLM == nil, d.TTS == nil:
		return nil, errors.New("ws: missing provider")
	}
	if d.Metrics == nil {
		d.Metrics = observe.DefaultMetrics()
	}
	return &Server{deps: d}, nil
}

// ServeHTTP upgrades the request and serves the voice protocol until the
// client disconnects or the session ends.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Origin is checked after the upgrade so a browser from a disallowed
	// origin sees a policy close code instead of a failed handshake.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		slog.Debug("websocket accept rejected", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close(protocol.CloseInternalError, "server error")

	if allowed := s.deps.Config.Server.AllowedOrigins; len(allowed) > 0 {
		if origin := r.Header.Get("Origin"); origin != "" && !originAllowed(origin, allowed) {
			slog.Info("origin rejected", "remote", r.RemoteAddr, "origin", origin)
			conn.Close(protocol.ClosePolicy, "origin not allowed")
			return
		}
	}

	if max := s.deps.Config.Server.MaxMessageBytes; max > 0 {
		conn.SetReadLimit(max)
	}

	id, err := s.deps.Verifier.Authenticate(r)
	if err != nil {
		code := websocket.StatusCode(protocol.CloseAuthFailed)
		if errors.Is(err, auth.ErrUnknownAgent) {
			code = protocol.ClosePolicy
		}
		slog.Info("handshake rejected", "remote", r.RemoteAddr, "error", err)
		conn.Close(code, "unauthorized")
		return
	}

	agentCfg, ok := s.deps.Config.Agent(id.AgentID)
	if !ok {
		conn.Close(protocol.ClosePolicy, "unknown agent")
		return
	}

	ctx := r.Context()

	sess, resumed := s.deps.Registry.GetOrCreate(id.SessionID, id.AgentID)
	if !resumed {
		s.deps.Metrics.ActiveSessions.Add(ctx, 1)
	}
	s.deps.Metrics.ActiveConnections.Add(ctx, 1)
	defer s.deps.Metrics.ActiveConnections.Add(context.WithoutCancel(ctx), -1)

	slog.Info("voice connection open",
		"session_id", sess.ID,
		"agent", id.AgentID,
		"resumed", resumed,
		"local", id.Local,
	)

	p, err := pipeline.New(pipeline.Deps{
		Sender:     newSender(conn),
		Session:    sess,
		Agent:      agentCfg,
		Config:     s.deps.Config,
		ASR:        s.deps.ASR,
		VAD:        s.deps.VAD,
		LLM:        s.deps.LLM,
		TTS:        s.deps.TTS,
		Acks:       s.deps.Acks,
		Corrector:  s.correctorFor(agentCfg),
		Summariser: s.deps.Summariser,
		Dialog:     s.deps.Dialog,
		Archive:    s.deps.Archive,
		Notifier:   s.deps.Notifier,
		Metrics:    s.deps.Metrics,
		Decode:     s.deps.Decode,
	})
	if err != nil {
		slog.Error("pipeline init failed", "session_id", sess.ID, "error", err)
		conn.Close(protocol.CloseInternalError, "init failed")
		return
	}
	defer p.Close()
	p.Start(ctx)

	p.SendReady(ctx, true)

	code, reason := s.readLoop(ctx, conn, p, sess)
	if code != 0 {
		conn.Close(code, reason)
	}
	slog.Info("voice connection closed", "session_id", sess.ID, "reason", reason)
}

// originAllowed reports whether the Origin header value matches one of the
// configured patterns. Patterns match the origin host case-insensitively and
// may use path.Match wildcards ("*.example.com").
func originAllowed(origin string, patterns []string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Host)
	for _, pat := range patterns {
		pat = strings.ToLower(pat)
		if pu, err := url.Parse(pat); err == nil && pu.Host != "" {
			pat = pu.Host
		}
		if ok, err := path.Match(pat, host); err == nil && ok {
			return true
		}
	}
	return false
}

// correctorFor builds the glossary corrector for an agent profile, or nil
// when the profile carries no glossary.
func (s *Server) correctorFor(agent config.AgentConfig) *transcript.Corrector {
	if len(agent.Glossary) == 0 {
		return nil
	}
	var opts []transcript.Option
	if agent.GlossaryLLM {
		opts = append(opts, transcript.WithLLM(llmcorrect.New(s.deps.LLM)))
	}
	return transcript.New(agent.Glossary, opts...)
}

// readLoop pumps client messages into the pipeline. It returns the close code
// and reason to finish with, or code 0 when the peer already dropped.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, p *pipeline.Pipeline, sess *session.Session) (websocket.StatusCode, string) {
	for {
		if ended, _ := sess.Ended(); ended {
			// Ended through the ops API while the socket was still up.
			return protocol.CloseNormal, "session_ended"
		}

		typ, data, err := conn.Read(ctx)
		if err != nil {
			return 0, "client disconnect"
		}

		switch typ {
		case websocket.MessageBinary:
			p.ProcessPCM(ctx, data)

		case websocket.MessageText:
			done, code, reason := s.dispatch(ctx, p, data)
			if done {
				return code, reason
			}
		}
	}
}

// dispatch handles one JSON control message. It returns done=true when the
// message terminates the connection.
func (s *Server) dispatch(ctx context.Context, p *pipeline.Pipeline, data []byte) (done bool, code websocket.StatusCode, reason string) {
	var msg protocol.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Warn("unparseable client message", "error", err)
		return false, 0, ""
	}

	switch {
	case msg.Config != nil:
		if err := p.Configure(ctx, *msg.Config); err != nil {
			slog.Error("config apply failed", "error", err)
			return true, protocol.CloseInternalError, "config failed"
		}

	case msg.Ping != nil:
		p.Ping(ctx, *msg.Ping)

	case msg.Chat != nil:
		p.Chat(ctx, *msg.Chat)

	case msg.Reset != 0:
		p.Reset(ctx)

	case msg.EOF != 0:
		p.EOF(ctx)
		return true, protocol.CloseNormal, "eof"

	case msg.Type == "end_session":
		p.EndSession(ctx)
		return true, protocol.CloseNormal, "client_end"

	case msg.Type == "partial":
		p.InjectPartial(ctx, msg.Partial)

	case msg.Type == "final":
		p.InjectFinal(ctx, msg.Text)

	default:
		slog.Debug("ignoring unknown client message")
	}
	return false, 0, ""
}
