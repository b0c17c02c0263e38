package pipeline

// epState is the endpointing detector state. It advances on sustained silence
// over a stable partial and falls back to listening the moment the hypothesis
// changes or voice returns.
type epState int

const (
	epListening epState = iota
	epTentative
	epConfirmed
	epFinal
)

func (s epState) String() string {
	switch s {
	case epListening:
		return "listening"
	case epTentative:
		return "tentative"
	case epConfirmed:
		return "confirmed"
	case epFinal:
		return "final"
	}
	return "unknown"
}

// thresholds holds the silence durations gating each endpointer transition,
// in milliseconds.
type thresholds struct {
	TentMs int
	ConfMs int
	FinMs  int
}

// defaultThresholds applies before the first partial arrives, when there is
// no text to adapt to.
var defaultThresholds = thresholds{TentMs: 350, ConfMs: 1100, FinMs: 1600}

// Minimum stability requirements for entering tentative and confirmed.
const (
	tentativeStableMs = 300
	confirmStableMs   = 500
)

// adaptiveThresholds derives the per-tick thresholds from the current partial
// text, the speaker's word rate and their typical intra-sentence pause.
//
// Base values scale off the pause average; corrections then push the confirm
// point out for short phrases, unfinished-sounding endings, fast speakers and
// explicit continuation words. The final threshold is anchored to the base
// confirm so one correction does not compound into another.
func adaptiveThresholds(text string, wps, pauseEmaMs float64) thresholds {
	wc := wordCount(text)

	tent := max(int(pauseEmaMs*1.2), 300)
	conf := max(int(pauseEmaMs*2.5), 900)
	fin := conf + 500

	if wc < 4 {
		conf += 200
		fin += 300
	}
	if !isGoodEnd(text) {
		conf += 300
	}
	if wps > 2.5 {
		conf += 100
	}
	conf += continuationPenaltyMs(text)

	return thresholds{TentMs: tent, ConfMs: conf, FinMs: fin}
}
