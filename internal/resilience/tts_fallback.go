package resilience

import (
	"context"
	"errors"

	"github.com/voxloop/voxloop/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across
// multiple synthesis backends. Each backend has its own circuit breaker.
//
// Each Synthesize call retries the current backend once with backoff before
// moving to the next entry. Client errors (4xx) fail straight through: the
// same text will be rejected again no matter how often it is sent.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
	retry RetryConfig
}

// Compile-time interface assertion.
var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred
// backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
		retry: RetryConfig{Retryable: retryableSynthesis},
	}
}

// AddFallback registers an additional synthesis provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Synthesize renders text via the first healthy provider.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, params tts.Params) ([]byte, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]byte, error) {
		var wav []byte
		err := Retry(ctx, f.retry, "tts synthesize", func() error {
			var synthErr error
			wav, synthErr = p.Synthesize(ctx, text, params)
			return synthErr
		})
		return wav, err
	})
}

// retryableSynthesis rejects 4xx backend responses.
func retryableSynthesis(err error) bool {
	var se *tts.StatusError
	if errors.As(err, &se) {
		return !se.ClientError()
	}
	return true
}
