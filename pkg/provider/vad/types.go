package vad

// Event is the detection result for a single audio frame.
type Event struct {
	// Type is the detection result.
	Type EventType

	// Probability is the speech probability score (0.0 to 1.0).
	Probability float64
}

// Voice reports whether the frame carries speech.
func (e Event) Voice() bool {
	return e.Type == SpeechStart || e.Type == SpeechContinue
}

// EventType enumerates VAD detection states.
type EventType int

const (
	// SpeechStart indicates speech has just begun.
	SpeechStart EventType = iota

	// SpeechContinue indicates ongoing speech.
	SpeechContinue

	// SpeechEnd indicates speech has just ended.
	SpeechEnd

	// Silence indicates no speech detected.
	Silence
)
