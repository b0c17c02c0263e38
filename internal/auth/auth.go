// Package auth verifies the JWT handed to the voice WebSocket endpoint and
// resolves it to a session identity.
//
// Tokens are HS256-signed by the control plane with "sub" carrying the
// session id and "agent" naming the agent profile. Clients send the token in
// the Authorization header; browser clients that cannot set headers on a
// WebSocket handshake fall back to a query parameter.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/voxloop/voxloop/internal/config"
)

// Sentinel errors returned by Authenticate. The WebSocket handler maps all of
// them to close code 4001.
var (
	ErrMissingToken = errors.New("auth: missing token")
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrUnknownAgent = errors.New("auth: unknown agent")
)

// Identity is the result of a successful handshake authentication.
type Identity struct {
	// SessionID is the stable session id ("sub" claim, or a generated
	// local id when auth is disabled).
	SessionID string

	// AgentID names the agent profile serving the session.
	AgentID string

	// Local is true when the identity was produced without a token.
	Local bool
}

// claims is the token payload the control plane issues for voice sessions.
type claims struct {
	Agent string `json:"agent"`
	jwt.RegisteredClaims
}

// Verifier authenticates WebSocket handshakes.
type Verifier struct {
	secret     []byte
	audience   string
	issuer     string
	skipVerify bool
	agentKnown func(id string) bool
}

// NewVerifier builds a verifier from the auth config. agentKnown reports
// whether an agent profile exists; nil accepts every agent id.
func NewVerifier(cfg config.AuthConfig, agentKnown func(id string) bool) *Verifier {
	return &Verifier{
		secret:     []byte(cfg.JWTSecret),
		audience:   cfg.Audience,
		issuer:     cfg.Issuer,
		skipVerify: cfg.LocalMode || cfg.DisableAuth,
		agentKnown: agentKnown,
	}
}

// Authenticate resolves the handshake request to an identity. Without a valid
// token it fails, unless verification is disabled, in which case it mints a
// local session bound to the default agent.
func (v *Verifier) Authenticate(r *http.Request) (Identity, error) {
	if v.skipVerify {
		return Identity{
			SessionID: fmt.Sprintf("local-%d", time.Now().UnixMilli()),
			AgentID:   config.DefaultAgentID,
			Local:     true,
		}, nil
	}

	token := TokenFromRequest(r)
	if token == "" {
		return Identity{}, ErrMissingToken
	}

	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	},
		jwt.WithAudience(v.audience),
		jwt.WithIssuer(v.issuer),
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if c.Agent == "" || (v.agentKnown != nil && !v.agentKnown(c.Agent)) {
		return Identity{}, fmt.Errorf("%w: %q", ErrUnknownAgent, c.Agent)
	}
	if c.Subject == "" {
		return Identity{}, fmt.Errorf("%w: empty sub", ErrInvalidToken)
	}

	return Identity{SessionID: c.Subject, AgentID: c.Agent}, nil
}

// TokenFromRequest extracts the bearer token from the Authorization header,
// falling back to the token, access_token and jwt query parameters in that
// order. Returns "" when none is present.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok := strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")); tok != h && tok != "" {
			return tok
		}
	}
	q := r.URL.Query()
	for _, key := range []string{"token", "access_token", "jwt"} {
		if tok := q.Get(key); tok != "" {
			return tok
		}
	}
	return ""
}
