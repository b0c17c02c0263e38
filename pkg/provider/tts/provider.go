// Package tts defines the Provider interface for speech synthesis backends.
//
// Synthesis is one blocking call per text chunk. The caller splits assistant
// text into speakable chunks and requests them one at a time, which keeps
// cancellation trivial: abandoning playback is cancelling the context and
// dropping the result. Providers return a complete WAV container per call.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with the given parameters and returns a WAV
	// container (16-bit PCM). Backends that produce raw PCM wrap it in a
	// WAV header before returning.
	//
	// An empty text returns an error rather than silent audio.
	Synthesize(ctx context.Context, text string, params Params) ([]byte, error)
}
