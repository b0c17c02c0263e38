// Package silero provides a tts.Provider backed by a Silero TTS HTTP server.
// It implements the tts.Provider interface.
//
// The server exposes a single batch endpoint, POST /tts_wav, which accepts a
// JSON request and responds with a complete WAV file. One HTTP call is made
// per Synthesize invocation.
//
// Typical usage:
//
//	p, err := silero.New("http://localhost:8010",
//	    silero.WithTimeout(15*time.Second),
//	)
//	wav, err := p.Synthesize(ctx, "Привет!", tts.Params{Voice: "eugene", Speed: 1.05})
package silero

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voxloop/voxloop/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	ttsEndpoint    = "/tts_wav"
	defaultTimeout = 30 * time.Second

	// maxResponseBytes caps how much audio a single synthesis may return.
	// A minute of 48 kHz mono PCM is under 6 MiB; 32 MiB is far beyond any
	// sane chunk.
	maxResponseBytes = 32 << 20
)

// Option is a functional option for configuring a silero Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s. Ignored
// when WithHTTPClient is also given.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithHTTPClient supplies the HTTP client used for all requests. This is how
// the caller controls connection pooling for sustained chunk-by-chunk load.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = hc
	}
}

// Provider implements tts.Provider backed by a Silero TTS server. It is safe
// for concurrent use; multiple Synthesize calls may run in parallel.
type Provider struct {
	serverURL  string
	httpClient *http.Client
}

// New creates a Provider that targets the Silero server at serverURL
// (e.g., "http://localhost:8010"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("silero: serverURL must not be empty")
	}
	p := &Provider{
		serverURL: strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ttsRequest is the JSON body sent to POST /tts_wav.
type ttsRequest struct {
	Text                  string  `json:"text"`
	Model                 string  `json:"model,omitempty"`
	Voice                 string  `json:"voice,omitempty"`
	Speed                 float64 `json:"speed,omitempty"`
	Emotion               string  `json:"emotion,omitempty"`
	PauseBetweenSentences float64 `json:"pause_between_sentences,omitempty"`
}

// Synthesize performs a single POST /tts_wav call and returns the WAV bytes
// as served. The response is sanity-checked for a RIFF header so that server
// error pages are not forwarded as audio.
func (p *Provider) Synthesize(ctx context.Context, text string, params tts.Params) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("silero: text must not be empty")
	}

	body := ttsRequest{
		Text:                  text,
		Model:                 params.Model,
		Voice:                 params.Voice,
		Speed:                 params.Speed,
		Emotion:               params.Emotion,
		PauseBetweenSentences: params.PauseBetweenSentences,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("silero: marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("silero: create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("silero: POST %s: %w", ttsEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("silero: POST %s: %w", ttsEndpoint, &tts.StatusError{Code: resp.StatusCode})
	}

	wav, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("silero: read WAV response: %w", err)
	}
	if len(wav) > maxResponseBytes {
		return nil, fmt.Errorf("silero: WAV response exceeds %d bytes", maxResponseBytes)
	}
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" {
		return nil, errors.New("silero: response is not a RIFF/WAVE file")
	}
	return wav, nil
}
