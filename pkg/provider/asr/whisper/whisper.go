// Package whisper provides an asr.Engine backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// whisper.cpp is a batch engine, so the recognizer simulates streaming: it
// buffers incoming PCM, applies an energy-based silence detector to find
// utterance boundaries, and re-infers the buffered audio on a fixed cadence
// to refresh the partial hypothesis. The model is loaded once and shared
// across all recognizers; each inference uses a fresh whisper context because
// contexts are not thread-safe.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/voxloop/voxloop/pkg/audio"
	"github.com/voxloop/voxloop/pkg/provider/asr"
)

const (
	// rmsThreshold is the energy level (in 16-bit PCM units) below which a
	// chunk counts as silence. 300 is near-silence out of 32 767.
	rmsThreshold = 300.0

	defaultLanguage            = "ru"
	defaultSilenceThresholdMs  = 500
	defaultMaxBufferDurationMs = 10_000
	defaultPartialIntervalMs   = 500
)

// Compile-time assertions.
var (
	_ asr.Engine     = (*Engine)(nil)
	_ asr.Recognizer = (*recognizer)(nil)
)

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithLanguage sets the language code passed to whisper.cpp (e.g., "ru",
// "en"). Defaults to "ru".
func WithLanguage(lang string) Option {
	return func(e *Engine) { e.language = lang }
}

// WithSilenceThresholdMs sets the consecutive-silence duration (ms) after
// speech that commits an utterance boundary. Defaults to 500 ms.
func WithSilenceThresholdMs(ms int) Option {
	return func(e *Engine) { e.silenceThresholdMs = ms }
}

// WithMaxBufferDurationMs sets the maximum buffered audio duration (ms)
// before a boundary is forced regardless of silence. Defaults to 10 000 ms.
func WithMaxBufferDurationMs(ms int) Option {
	return func(e *Engine) { e.maxBufferDurationMs = ms }
}

// WithPartialIntervalMs sets how much new speech audio (ms) must accumulate
// before the partial hypothesis is re-inferred. Defaults to 500 ms.
func WithPartialIntervalMs(ms int) Option {
	return func(e *Engine) { e.partialIntervalMs = ms }
}

// Engine implements asr.Engine using whisper.cpp Go bindings. The model is
// loaded once at startup and shared across all recognizers.
type Engine struct {
	model    whisperlib.Model
	language string

	silenceThresholdMs  int
	maxBufferDurationMs int
	partialIntervalMs   int
}

// New creates an Engine that loads the whisper.cpp model from the given file
// path. The caller must call Close when the engine is no longer needed.
func New(modelPath string, opts ...Option) (*Engine, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	e := &Engine{
		model:               model,
		language:            defaultLanguage,
		silenceThresholdMs:  defaultSilenceThresholdMs,
		maxBufferDurationMs: defaultMaxBufferDurationMs,
		partialIntervalMs:   defaultPartialIntervalMs,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// NewRecognizer implements asr.Engine. The phrase list is accepted for
// interface compatibility; whisper.cpp has no vocabulary biasing, so it is
// ignored.
func (e *Engine) NewRecognizer(cfg asr.Config) (asr.Recognizer, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("whisper: invalid sample rate %d", cfg.SampleRate)
	}
	return &recognizer{
		model:               e.model,
		language:            e.language,
		cfg:                 cfg,
		silenceThresholdMs:  e.silenceThresholdMs,
		maxBufferDurationMs: e.maxBufferDurationMs,
		partialIntervalMs:   e.partialIntervalMs,
	}, nil
}

// Close releases the whisper model.
func (e *Engine) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}

// recognizer buffers PCM between utterance boundaries. Not safe for
// concurrent use; the caller serialises access.
type recognizer struct {
	model    whisperlib.Model
	language string
	cfg      asr.Config

	silenceThresholdMs  int
	maxBufferDurationMs int
	partialIntervalMs   int

	buffer         []byte
	hadSpeech      bool
	silenceMs      int
	sincePartialMs int

	partial    asr.Partial
	pending    asr.Result
	hasPending bool
	closed     bool
}

// AcceptWaveform implements asr.Recognizer.
func (r *recognizer) AcceptWaveform(ctx context.Context, pcm []byte) (bool, error) {
	if r.closed {
		return false, errors.New("whisper: recognizer is closed")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	rms := audio.RMS(pcm)
	chunkMs := audio.DurationMs(pcm, r.cfg.SampleRate)

	if rms < rmsThreshold {
		// Leading silence before any speech is discarded.
		if !r.hadSpeech {
			return false, nil
		}
		r.silenceMs += chunkMs
		r.buffer = append(r.buffer, pcm...)
		if r.silenceMs >= r.silenceThresholdMs {
			if err := r.commit(ctx); err != nil {
				return false, err
			}
			return true, nil
		}
		return false, nil
	}

	r.hadSpeech = true
	r.silenceMs = 0
	r.buffer = append(r.buffer, pcm...)
	r.sincePartialMs += chunkMs

	maxBufferBytes := r.maxBufferDurationMs * r.cfg.SampleRate * 2 / 1000
	if maxBufferBytes > 0 && len(r.buffer) >= maxBufferBytes {
		if err := r.commit(ctx); err != nil {
			return false, err
		}
		return true, nil
	}

	if r.sincePartialMs >= r.partialIntervalMs {
		r.sincePartialMs = 0
		text, words, err := r.infer(r.buffer)
		if err != nil {
			return false, fmt.Errorf("whisper: partial inference: %w", err)
		}
		r.partial = asr.Partial{Partial: text, Words: words}
	}
	return false, nil
}

// PartialResult implements asr.Recognizer.
func (r *recognizer) PartialResult() asr.Partial { return r.partial }

// Result implements asr.Recognizer.
func (r *recognizer) Result() asr.Result {
	res := r.pending
	r.pending = asr.Result{}
	r.hasPending = false
	return res
}

// FinalResult implements asr.Recognizer.
func (r *recognizer) FinalResult() asr.Result {
	if r.hasPending {
		return r.Result()
	}
	if len(r.buffer) == 0 || !r.hadSpeech {
		r.reset()
		return asr.Result{}
	}
	text, words, err := r.infer(r.buffer)
	r.reset()
	if err != nil {
		slog.Error("whisper final inference failed", "error", err)
		return asr.Result{}
	}
	return asr.Result{Text: text, Words: words}
}

// Reset implements asr.Recognizer.
func (r *recognizer) Reset() { r.reset() }

// Close implements asr.Recognizer. The shared model stays open.
func (r *recognizer) Close() error {
	r.closed = true
	r.reset()
	return nil
}

// commit infers the buffered utterance and stages it for Result.
func (r *recognizer) commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pcm := r.buffer
	r.reset()
	text, words, err := r.infer(pcm)
	if err != nil {
		return fmt.Errorf("whisper: inference: %w", err)
	}
	r.pending = asr.Result{Text: text, Words: words}
	r.hasPending = true
	return nil
}

func (r *recognizer) reset() {
	r.buffer = nil
	r.hadSpeech = false
	r.silenceMs = 0
	r.sincePartialMs = 0
	r.partial = asr.Partial{}
}

// infer runs whisper.cpp on pcm using a fresh context and returns the joined
// segment text. Word entries carry timings interpolated inside each segment
// span, since whisper reports segment-level timestamps only; confidence is
// reported as 1.
func (r *recognizer) infer(pcm []byte) (string, []asr.Word, error) {
	samples := audio.PCM16ToFloat32(pcm)

	wctx, err := r.model.NewContext()
	if err != nil {
		return "", nil, fmt.Errorf("create context: %w", err)
	}
	if err := wctx.SetLanguage(r.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", r.language, "error", err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", nil, fmt.Errorf("process audio: %w", err)
	}

	var (
		parts []string
		words []asr.Word
	)
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		if r.cfg.Words {
			words = append(words, interpolateWords(text, segment.Start, segment.End)...)
		}
	}
	return strings.Join(parts, " "), words, nil
}

// interpolateWords spreads the words of one segment evenly across its span.
func interpolateWords(text string, start, end time.Duration) []asr.Word {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	span := (end - start).Seconds()
	if span < 0 {
		span = 0
	}
	per := span / float64(len(fields))
	words := make([]asr.Word, 0, len(fields))
	for i, f := range fields {
		ws := start.Seconds() + per*float64(i)
		words = append(words, asr.Word{Word: f, Start: ws, End: ws + per, Conf: 1})
	}
	return words
}
