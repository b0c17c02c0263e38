// Package vad defines the Engine interface for Voice Activity Detection and
// ships an energy-based implementation.
//
// A VAD session classifies fixed-size PCM frames as speech or silence. It is
// synchronous: ProcessFrame returns immediately, making it suitable for the
// low-latency gate in front of the recognizer.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle is owned by one stream and is not goroutine safe.
package vad

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the PCM frames
	// passed to ProcessFrame.
	SampleRate int

	// FrameSizeMs is the duration of each frame in milliseconds. ProcessFrame
	// returns an error when a frame of a different size is supplied.
	FrameSizeMs int

	// Mode is the aggressiveness, 0 (least) to 3 (most). Higher modes demand
	// more energy over the noise floor before classifying a frame as speech.
	Mode int
}

// SessionHandle is an active VAD session for a single audio stream.
type SessionHandle interface {
	// ProcessFrame analyses one frame and returns the detection result.
	// The frame must be raw little-endian PCM16 at the configured rate and
	// frame size; anything else is an error.
	ProcessFrame(frame []byte) (Event, error)

	// Reset clears accumulated detection state (noise floor, hangover)
	// without closing the session.
	Reset()

	// Close releases the session. Calling Close more than once is safe.
	Close() error
}

// Engine is the factory for VAD sessions.
type Engine interface {
	NewSession(cfg Config) (SessionHandle, error)
}
