// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to return controlled WAV payloads to consumers and to verify
// which text fragments and Params reached the TTS backend.
//
// Example:
//
//	p := &mock.Provider{WAV: testWAV}
//	data, _ := p.Synthesize(ctx, "Привет", tts.Params{Voice: "eugene"})
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/voxloop/voxloop/pkg/audio"
	"github.com/voxloop/voxloop/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Text is the text passed to Synthesize.
	Text string
	// Params is the Params value passed to Synthesize.
	Params tts.Params
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// WAV is the payload returned from Synthesize. When nil, a small valid
	// WAV container (20 ms of silence at 16 kHz) is returned instead.
	WAV []byte

	// SynthesizeErr, if non-nil, is returned from every Synthesize call.
	SynthesizeErr error

	// FailFirst makes the first N Synthesize calls return FailErr (or
	// SynthesizeErr when FailErr is nil). Used to exercise retry paths.
	FailFirst int

	// FailErr is the error returned while FailFirst is still positive.
	FailErr error

	// Delay, when non-zero, makes Synthesize sleep before returning. The
	// sleep respects ctx cancellation and returns ctx.Err() if cancelled.
	Delay time.Duration

	// --- Call records ---

	// SynthesizeCalls records all invocations of Synthesize.
	SynthesizeCalls []SynthesizeCall
}

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// Synthesize returns WAV (or a default small container) after recording the
// call, honoring FailFirst, SynthesizeErr and Delay.
func (p *Provider) Synthesize(ctx context.Context, text string, params tts.Params) ([]byte, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Text: text, Params: params})
	var fail error
	if p.FailFirst > 0 {
		p.FailFirst--
		fail = p.FailErr
		if fail == nil {
			fail = p.SynthesizeErr
		}
	} else {
		fail = p.SynthesizeErr
	}
	wav := p.WAV
	delay := p.Delay
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fail != nil {
		return nil, fail
	}
	if wav == nil {
		wav = audio.BuildWAV(make([]byte, audio.FrameBytes(16000, 20)), 16000, 1)
	}
	out := make([]byte, len(wav))
	copy(out, wav)
	return out, nil
}

// SynthesizeCallCount returns how many times Synthesize was invoked.
func (p *Provider) SynthesizeCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}

// LastSynthesizeCall returns the most recent call, or nil if none were made.
func (p *Provider) LastSynthesizeCall() *SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.SynthesizeCalls) == 0 {
		return nil
	}
	c := p.SynthesizeCalls[len(p.SynthesizeCalls)-1]
	return &c
}

// Reset clears all recorded calls and configured behavior.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.WAV = nil
	p.SynthesizeErr = nil
	p.FailFirst = 0
	p.FailErr = nil
	p.Delay = 0
	p.SynthesizeCalls = nil
}
