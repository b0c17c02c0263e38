package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Defaults for ended-session retention.
const (
	defaultTTL           = 10 * time.Minute
	defaultSweepInterval = time.Minute
)

// Registry keeps live sessions by id so a reconnect with the same token
// resumes its history, and the operational API can reach sessions that no
// longer have a socket attached.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
}

// NewRegistry creates a registry with the default ended-session TTL.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		ttl:      defaultTTL,
	}
}

// GetOrCreate returns the session for id, creating it if missing. The second
// return value reports whether an existing session was resumed.
func (r *Registry) GetOrCreate(id, agentID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s, true
	}
	s := New(id, agentID)
	r.sessions[id] = s
	return s, false
}

// Get returns the session for id, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// List returns all known sessions in unspecified order.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of known sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SetTTL overrides the ended-session retention period. Used by tests.
func (r *Registry) SetTTL(ttl time.Duration) {
	r.mu.Lock()
	r.ttl = ttl
	r.mu.Unlock()
}

// Sweep removes sessions that ended longer than the TTL ago and returns how
// many were collected. Live sessions are never removed.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	cutoff := now.Add(-r.ttl).UnixMilli()
	for id, s := range r.sessions {
		ended, endedAt := s.Ended()
		if ended && endedAt <= cutoff {
			delete(r.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("session registry swept", "removed", removed, "remaining", len(r.sessions))
	}
	return removed
}

// Run sweeps periodically until the context is cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(defaultSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}
