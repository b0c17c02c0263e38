// Package coqui provides a tts.Provider backed by a Coqui TTS server.
//
// Two server flavours are supported. The standard Coqui server answers
// GET /api/tts with WAV audio; an XTTS v2 server answers POST /tts_to_audio/
// with a JSON body. Both operate in batch mode, one HTTP call per utterance,
// which matches the one-call-per-chunk contract of tts.Provider.
//
// Coqui models commonly emit 22.05 or 24 kHz audio. WithOutputSampleRate
// resamples every response so downstream consumers see one fixed rate.
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/voxloop/voxloop/pkg/audio"
	"github.com/voxloop/voxloop/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// APIMode selects which Coqui server flavour to speak.
type APIMode string

const (
	// ModeStandard targets the stock Coqui TTS server (GET /api/tts).
	ModeStandard APIMode = "standard"

	// ModeXTTS targets a Coqui XTTS v2 server (POST /tts_to_audio/).
	ModeXTTS APIMode = "xtts"
)

const (
	defaultTimeout = 30 * time.Second

	// maxResponseBytes caps how much audio one synthesis may return.
	maxResponseBytes = 32 << 20
)

// Option is a functional option for configuring a coqui Provider.
type Option func(*Provider)

// WithLanguage sets the synthesis language passed to multilingual models
// (e.g., "ru"). Empty lets the server default apply.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s. Ignored
// when WithHTTPClient is also given.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithHTTPClient supplies the HTTP client used for all requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = hc
	}
}

// WithAPIMode selects the server flavour. Defaults to ModeStandard.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.mode = mode
	}
}

// WithOutputSampleRate resamples every response to the given mono rate.
// Zero returns the server's native audio unchanged.
func WithOutputSampleRate(rate int) Option {
	return func(p *Provider) {
		p.outputRate = rate
	}
}

// Provider implements tts.Provider backed by a Coqui server. It is safe for
// concurrent use; multiple Synthesize calls may run in parallel.
type Provider struct {
	serverURL  string
	httpClient *http.Client
	mode       APIMode
	language   string
	outputRate int
}

// New creates a Provider that targets the Coqui server at serverURL
// (e.g., "http://localhost:5002"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL: strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		mode: ModeStandard,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// xttsRequest is the JSON body sent to POST /tts_to_audio/.
type xttsRequest struct {
	Text      string `json:"text"`
	SpeakerID string `json:"speaker_id,omitempty"`
	Language  string `json:"language,omitempty"`
}

// Synthesize performs one synthesis request and returns WAV bytes, resampled
// to the configured output rate when one was set. The response is
// sanity-checked for a RIFF header so that server error pages are not
// forwarded as audio.
func (p *Provider) Synthesize(ctx context.Context, text string, params tts.Params) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("coqui: text must not be empty")
	}

	var (
		wav []byte
		err error
	)
	switch p.mode {
	case ModeXTTS:
		wav, err = p.synthesizeXTTS(ctx, text, params)
	default:
		wav, err = p.synthesizeStandard(ctx, text, params)
	}
	if err != nil {
		return nil, err
	}

	if len(wav) < 12 || string(wav[0:4]) != "RIFF" {
		return nil, errors.New("coqui: response is not a RIFF/WAVE file")
	}
	if p.outputRate == 0 {
		return wav, nil
	}
	return p.resample(wav)
}

// synthesizeStandard calls GET /api/tts on a stock Coqui server.
func (p *Provider) synthesizeStandard(ctx context.Context, text string, params tts.Params) ([]byte, error) {
	q := url.Values{}
	q.Set("text", text)
	if params.Voice != "" {
		q.Set("speaker_id", params.Voice)
	}
	if p.language != "" {
		q.Set("language_id", p.language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.serverURL+"/api/tts?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")
	return p.do(req)
}

// synthesizeXTTS calls POST /tts_to_audio/ on an XTTS v2 server.
func (p *Provider) synthesizeXTTS(ctx context.Context, text string, params tts.Params) ([]byte, error) {
	body := xttsRequest{
		Text:      text,
		SpeakerID: params.Voice,
		Language:  p.language,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("coqui: marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.serverURL+"/tts_to_audio/", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")
	return p.do(req)
}

func (p *Provider) do(req *http.Request) ([]byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, &tts.StatusError{Code: resp.StatusCode})
	}

	wav, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	if len(wav) > maxResponseBytes {
		return nil, fmt.Errorf("coqui: WAV response exceeds %d bytes", maxResponseBytes)
	}
	return wav, nil
}

// resample converts the response to mono at the configured output rate.
func (p *Provider) resample(wav []byte) ([]byte, error) {
	info, err := audio.ParseWAV(wav)
	if err != nil {
		return nil, fmt.Errorf("coqui: parse response: %w", err)
	}
	pcm := info.Data
	if info.Channels == 2 {
		pcm = audio.StereoToMono(pcm)
	}
	if info.SampleRate != p.outputRate {
		pcm = audio.ResampleMono16(pcm, info.SampleRate, p.outputRate)
	}
	return audio.BuildWAV(pcm, p.outputRate, 1), nil
}
