// Package asr defines the recognizer interface for streaming speech
// recognition backends.
//
// Unlike a channel-based transcript stream, the Recognizer is a synchronous
// per-frame API: the caller feeds PCM frames and immediately observes the
// current hypothesis. That shape is what adaptive endpointing needs, since
// pause tracking and partial-stability clocks are driven frame by frame.
//
// A Recognizer is NOT safe for concurrent use; the caller owns serialisation.
// An Engine may be shared and must be safe for concurrent NewRecognizer calls.
package asr

import "context"

// Config describes the audio format and recognition hints for a new
// Recognizer.
type Config struct {
	// SampleRate is the PCM sample rate in Hz. Audio is 16-bit signed
	// little-endian mono.
	SampleRate int

	// Words requests per-word metadata in Result and Partial values.
	// Backends that cannot produce word alignment may leave Words empty.
	Words bool

	// PhraseList biases recognition toward the given phrases. Backends
	// without vocabulary biasing ignore it.
	PhraseList []string
}

// Word is one recognised word with timing and confidence.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Conf  float64 `json:"conf"`
}

// Partial is the current in-progress hypothesis for the active utterance.
type Partial struct {
	Partial string `json:"partial"`
	Words   []Word `json:"partial_result,omitempty"`
}

// Result is a committed recognition result for one utterance.
type Result struct {
	Text  string `json:"text"`
	Words []Word `json:"result,omitempty"`
}

// Recognizer is an open recognition stream for a single audio source.
//
// The caller feeds audio with AcceptWaveform. A true return value means the
// backend committed an utterance boundary; the committed text is then
// available from Result. Between boundaries, PartialResult reflects the
// backend's best running hypothesis.
type Recognizer interface {
	// AcceptWaveform feeds one PCM chunk. It returns true when the backend
	// has committed an utterance ending inside the fed audio, in which case
	// Result returns the committed text.
	AcceptWaveform(ctx context.Context, pcm []byte) (bool, error)

	// PartialResult returns the current hypothesis for audio fed since the
	// last committed result. It never blocks on inference already in flight.
	PartialResult() Partial

	// Result returns the most recently committed utterance and clears it.
	Result() Result

	// FinalResult commits whatever audio is still buffered, returns the
	// resulting text, and leaves the recognizer ready for a new utterance.
	FinalResult() Result

	// Reset discards all buffered audio and hypotheses without inference.
	Reset()

	// Close releases per-stream resources. The Recognizer must not be used
	// afterwards.
	Close() error
}

// Engine creates recognizers. Implementations hold whatever heavy shared
// state the backend needs, such as a loaded model.
type Engine interface {
	// NewRecognizer opens a recognition stream with the given configuration.
	NewRecognizer(cfg Config) (Recognizer, error)

	// Close releases shared backend resources. Recognizers created earlier
	// must be closed first.
	Close() error
}
