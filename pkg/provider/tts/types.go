package tts

import "fmt"

// StatusError reports a non-200 response from an HTTP synthesis backend.
// Callers use it to tell client errors (not worth retrying) from transient
// server failures.
type StatusError struct {
	// Code is the HTTP status code.
	Code int
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("tts backend returned status %d", e.Code)
}

// ClientError reports whether the status is in the 4xx range.
func (e *StatusError) ClientError() bool {
	return e.Code >= 400 && e.Code < 500
}

// Params describes one synthesis request. Zero values mean provider defaults.
type Params struct {
	// Model is the provider-specific model identifier (e.g., "v4_ru").
	Model string

	// Voice is the speaker name (e.g., "eugene").
	Voice string

	// Speed adjusts speaking rate (1.0 = default).
	Speed float64

	// Emotion selects the emotional colouring for backends that support it
	// (e.g., "neutral", "good").
	Emotion string

	// PauseBetweenSentences is the inserted inter-sentence pause in seconds.
	PauseBetweenSentences float64
}
