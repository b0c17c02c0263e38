// Package openai provides an OpenAI-backed tts.Provider using the audio
// speech API (POST /v1/audio/speech).
//
// The provider requests raw PCM output (24kHz, 16-bit, mono) and wraps it in
// a WAV container, so callers see the same audio shape as from local
// backends. Emotion and inter-sentence pauses are not supported by this API
// and are ignored.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/voxloop/voxloop/pkg/audio"
	"github.com/voxloop/voxloop/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	defaultModel   = "gpt-4o-mini-tts"
	defaultVoice   = "alloy"
	defaultTimeout = 30 * time.Second

	// pcmRate is the sample rate of the API's pcm response format.
	pcmRate = 24000
)

// config holds optional configuration for the provider.
type config struct {
	model      string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// Option is a functional option for the OpenAI Provider.
type Option func(*config)

// WithModel sets the speech model (e.g., "tts-1", "gpt-4o-mini-tts").
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithBaseURL overrides the default API base URL. Use it to target an
// OpenAI-compatible synthesis endpoint.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout. Ignored when WithHTTPClient
// is also given.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithHTTPClient supplies the HTTP client used for all requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

// Provider implements tts.Provider backed by the OpenAI audio speech API.
type Provider struct {
	client oai.Client
	model  string
}

// New creates a new OpenAI Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	cfg := config{
		model:   defaultModel,
		timeout: defaultTimeout,
	}
	for _, o := range opts {
		o(&cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	} else {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Provider{
		client: oai.NewClient(reqOpts...),
		model:  cfg.model,
	}, nil
}

// Synthesize performs one speech API call and returns the PCM response
// wrapped in a WAV container at 24kHz.
func (p *Provider) Synthesize(ctx context.Context, text string, params tts.Params) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("openai tts: text must not be empty")
	}

	model := p.model
	if params.Model != "" {
		model = params.Model
	}
	voice := params.Voice
	if voice == "" {
		voice = defaultVoice
	}

	body := oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(model),
		Input:          text,
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if params.Speed > 0 && params.Speed != 1.0 {
		body.Speed = oai.Float(params.Speed)
	}

	resp, err := p.client.Audio.Speech.New(ctx, body)
	if err != nil {
		var apiErr *oai.Error
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("openai tts: speech: %w", &tts.StatusError{Code: apiErr.StatusCode})
		}
		return nil, fmt.Errorf("openai tts: speech: %w", err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai tts: read audio response: %w", err)
	}
	if len(pcm) == 0 {
		return nil, errors.New("openai tts: empty audio response")
	}
	return audio.BuildWAV(pcm, pcmRate, 1), nil
}
