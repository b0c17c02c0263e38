package vad

import (
	"errors"
	"fmt"

	"github.com/voxloop/voxloop/pkg/audio"
)

// Compile-time assertions.
var (
	_ Engine        = (*EnergyEngine)(nil)
	_ SessionHandle = (*energySession)(nil)
)

// Aggressiveness tuning. Each mode multiplies the tracked noise floor to form
// the speech threshold; higher modes need proportionally more energy.
var modeMultiplier = [4]float64{1.3, 1.6, 2.0, 2.6}

const (
	// minThreshold keeps the detector from firing on quantisation noise in
	// dead-silent rooms, in 16-bit PCM RMS units.
	minThreshold = 260.0

	// floorFallAlpha is the EMA weight for noise-floor updates on quiet
	// frames. floorRiseAlpha applies on loud frames so that a steady hum is
	// eventually absorbed into the floor while modulated speech, with its
	// inter-word dips, keeps the floor low.
	floorFallAlpha = 0.05
	floorRiseAlpha = 0.008

	// hangoverFrames bridges short intra-word energy dips.
	hangoverFrames = 3
)

// EnergyEngine detects speech from short-term RMS energy against an adaptive
// noise floor. It has no model to load; NewSession never fails on resources.
type EnergyEngine struct{}

// NewEnergyEngine returns a ready-to-use engine.
func NewEnergyEngine() *EnergyEngine { return &EnergyEngine{} }

// NewSession implements Engine.
func (e *EnergyEngine) NewSession(cfg Config) (SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("vad: invalid sample rate %d", cfg.SampleRate)
	}
	if cfg.FrameSizeMs <= 0 {
		return nil, fmt.Errorf("vad: invalid frame size %d ms", cfg.FrameSizeMs)
	}
	if cfg.Mode < 0 || cfg.Mode > 3 {
		return nil, fmt.Errorf("vad: mode %d out of range 0..3", cfg.Mode)
	}
	return &energySession{
		cfg:        cfg,
		frameBytes: audio.FrameBytes(cfg.SampleRate, cfg.FrameSizeMs),
		noiseFloor: minThreshold,
	}, nil
}

type energySession struct {
	cfg        Config
	frameBytes int

	noiseFloor float64
	inSpeech   bool
	hangover   int
	closed     bool
}

// ProcessFrame implements SessionHandle.
func (s *energySession) ProcessFrame(frame []byte) (Event, error) {
	if s.closed {
		return Event{Type: Silence}, errors.New("vad: session is closed")
	}
	if len(frame) != s.frameBytes {
		return Event{Type: Silence}, fmt.Errorf("vad: frame is %d bytes, want %d", len(frame), s.frameBytes)
	}

	rms := audio.RMS(frame)
	threshold := s.noiseFloor * modeMultiplier[s.cfg.Mode]
	if threshold < minThreshold {
		threshold = minThreshold
	}

	voiced := rms >= threshold
	if !voiced && s.hangover > 0 {
		s.hangover--
		voiced = true
	}

	alpha := floorRiseAlpha
	if rms < threshold {
		alpha = floorFallAlpha
	}
	s.noiseFloor = s.noiseFloor*(1-alpha) + rms*alpha
	if s.noiseFloor < 1 {
		s.noiseFloor = 1
	}

	p := rms / (threshold * 2)
	if p > 1 {
		p = 1
	}

	ev := Event{Probability: p}
	switch {
	case voiced && !s.inSpeech:
		ev.Type = SpeechStart
	case voiced && s.inSpeech:
		ev.Type = SpeechContinue
	case !voiced && s.inSpeech:
		ev.Type = SpeechEnd
	default:
		ev.Type = Silence
	}

	if voiced && rms >= threshold {
		s.hangover = hangoverFrames
	}
	s.inSpeech = voiced
	return ev, nil
}

// Reset implements SessionHandle.
func (s *energySession) Reset() {
	s.noiseFloor = minThreshold
	s.inSpeech = false
	s.hangover = 0
}

// Close implements SessionHandle.
func (s *energySession) Close() error {
	s.closed = true
	return nil
}
