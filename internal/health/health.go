// Package health serves the operational HTTP API next to the WebSocket
// listener: liveness, session summaries, forced session termination,
// transcripts, and transcript search.
//
// All JSON responses carry a top-level "ok" field. Unknown session ids yield
// 404 with {"ok":false,"error":"unknown_session"}.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/voxloop/voxloop/internal/archive"
	"github.com/voxloop/voxloop/internal/session"
)

// endTimeout bounds the summary build triggered by a forced end.
const endTimeout = 15 * time.Second

// Handler serves the operational API. All fields are set at construction
// time; it is safe for concurrent use.
type Handler struct {
	registry   *session.Registry
	summariser session.Summariser
	store      archive.Store

	// onEnd, when non-nil, runs after a session is ended via the API.
	onEnd func(s *session.Session, summary string)
}

// Option configures a [Handler].
type Option func(*Handler)

// WithArchive attaches the transcript archive. Without it, transcripts come
// from in-memory session state and search is unavailable.
func WithArchive(store archive.Store) Option {
	return func(h *Handler) { h.store = store }
}

// WithEndHook registers a callback invoked after a session is ended through
// the API, with the summary that was produced.
func WithEndHook(fn func(s *session.Session, summary string)) Option {
	return func(h *Handler) { h.onEnd = fn }
}

// New creates a [Handler] over the session registry. summariser produces
// summaries for sessions ended through the API; nil uses the heuristic one.
func New(registry *session.Registry, summariser session.Summariser, opts ...Option) *Handler {
	h := &Handler{registry: registry, summariser: summariser}
	if h.summariser == nil {
		h.summariser = session.HeuristicSummariser{}
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register adds all operational routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /v1/voice/sessions/{id}/summary", h.Summary)
	mux.HandleFunc("POST /v1/voice/sessions/{id}/end", h.End)
	mux.HandleFunc("GET /v1/voice/sessions/{id}/transcript", h.Transcript)
	mux.HandleFunc("GET /v1/voice/search", h.Search)
}

// Health is the liveness probe. Plain "ok" so the dumbest possible checker
// can consume it.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Summary returns the stored summary for a session. Empty until the session
// ends.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess := h.registry.Get(id)
	if sess == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "unknown_session"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"session_id": id,
		"summary":    sess.Summary(),
	})
}

// End force-ends a session: builds a summary if one is missing, marks the
// session ended and returns the summary. The WebSocket side notices the
// ended flag on its next message.
func (h *Handler) End(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess := h.registry.Get(id)
	if sess == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "unknown_session"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), endTimeout)
	defer cancel()

	summary := sess.Summary()
	if summary == "" && sess.TurnCount() > 0 {
		var err error
		summary, err = h.summariser.Summarise(ctx, sess)
		if err != nil {
			summary = "summary_error: " + err.Error()
		}
		sess.SetSummary(summary)
	}
	sess.End()
	slog.Info("session ended via ops api", "session_id", id)

	if h.store != nil && summary != "" {
		if err := h.store.SaveSummary(ctx, id, sess.AgentID, summary); err != nil {
			slog.Warn("archive summary write failed", "session_id", id, "error", err)
		}
	}
	if h.onEnd != nil {
		h.onEnd(sess, summary)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"session_id": id,
		"summary":    summary,
	})
}

// Transcript returns the full turn history of a session, preferring the
// archive so ended-and-collected sessions stay readable.
func (h *Handler) Transcript(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if h.store != nil {
		turns, err := h.store.Transcript(r.Context(), id)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		if len(turns) > 0 {
			writeJSON(w, http.StatusOK, map[string]any{
				"ok":         true,
				"session_id": id,
				"turns":      turns,
			})
			return
		}
	}

	sess := h.registry.Get(id)
	if sess == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "unknown_session"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"session_id": id,
		"turns":      sess.Turns(),
	})
}

// Search queries the archive across all sessions. ?q= is required; ?limit=
// caps results (default 10).
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]any{"ok": false, "error": "archive_disabled"})
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "missing_query"})
		return
	}
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	hits, err := h.store.Search(r.Context(), q, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "hits": hits})
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"ok":false}`, http.StatusInternalServerError)
	}
}
