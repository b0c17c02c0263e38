package pipeline

import "github.com/voxloop/voxloop/internal/config"

// Seeds for the adaptive statistics. The pause seed matches a typical
// intra-sentence hesitation; the rate seed matches unhurried Russian speech.
const (
	pauseEmaSeedMs = 350.0
	wpsEmaSeed     = 2.2
)

// speechStats tracks two exponential moving averages that drive the adaptive
// endpointing thresholds: the typical intra-sentence pause and the speaker's
// word rate.
type speechStats struct {
	pauseEmaMs       float64
	pauseAlpha       float64
	maxPauseSampleMs int64

	wpsEma   float64
	wpsAlpha float64

	prevWC     int
	prevWCTsMs int64

	silenceStartMs int64
	wasVoicePrev   bool
}

func newSpeechStats(cfg config.EndpointConfig) *speechStats {
	pauseAlpha := cfg.PauseEmaAlpha
	if pauseAlpha <= 0 {
		pauseAlpha = 0.15
	}
	wpsAlpha := cfg.WpsEmaAlpha
	if wpsAlpha <= 0 {
		wpsAlpha = 0.2
	}
	maxSample := int64(cfg.MaxPauseSampleMs)
	if maxSample <= 0 {
		maxSample = 800
	}
	return &speechStats{
		pauseEmaMs:       pauseEmaSeedMs,
		pauseAlpha:       pauseAlpha,
		maxPauseSampleMs: maxSample,
		wpsEma:           wpsEmaSeed,
		wpsAlpha:         wpsAlpha,
	}
}

// observeFrame folds voice/silence transitions into the pause average. Only
// short gaps count: anything longer than the sample cap is a deliberate pause
// between utterances, not speech rhythm.
func (s *speechStats) observeFrame(isVoice bool, nowMs int64) {
	if s.wasVoicePrev && !isVoice {
		s.silenceStartMs = nowMs
	}
	if !s.wasVoicePrev && isVoice && s.silenceStartMs != 0 {
		pause := nowMs - s.silenceStartMs
		if pause <= s.maxPauseSampleMs {
			s.pauseEmaMs = s.pauseEmaMs*(1-s.pauseAlpha) + float64(pause)*s.pauseAlpha
		}
		s.silenceStartMs = 0
	}
	s.wasVoicePrev = isVoice
}

// observeWords updates the word-rate average when the partial hypothesis grew.
func (s *speechStats) observeWords(wc int, nowMs int64) {
	if s.prevWCTsMs > 0 && wc > s.prevWC {
		dt := nowMs - s.prevWCTsMs
		if dt > 0 {
			inst := float64(wc-s.prevWC) * 1000.0 / float64(dt)
			if inst > 0 {
				s.wpsEma = s.wpsEma*(1-s.wpsAlpha) + inst*s.wpsAlpha
			}
		}
	}
	s.prevWC = wc
	s.prevWCTsMs = nowMs
}

// resetTurn re-seeds the word-rate tracker for a new user utterance. The
// pause average deliberately survives; it models the speaker, not the turn.
func (s *speechStats) resetTurn() {
	s.wpsEma = wpsEmaSeed
	s.prevWC = 0
	s.prevWCTsMs = 0
}
