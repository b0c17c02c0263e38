// Package mock provides test doubles for the asr package interfaces.
//
// Use Engine to verify that recognizers are created with the expected Config
// (for example after a mid-session reconfiguration). Use Recognizer's Script
// to drive the per-frame hypothesis sequence a test needs: each AcceptWaveform
// call consumes one Step, whose fields become the boundary flag, the current
// partial, and the staged result.
//
// Example:
//
//	rec := &mock.Recognizer{Script: []mock.Step{
//	    {Partial: "привет"},
//	    {Partial: "привет мир"},
//	    {Boundary: true, Text: "привет мир"},
//	}}
//	eng := &mock.Engine{Recognizer: rec}
package mock

import (
	"context"
	"sync"

	"github.com/voxloop/voxloop/pkg/provider/asr"
)

// NewRecognizerCall records a single invocation of Engine.NewRecognizer.
type NewRecognizerCall struct {
	// Cfg is the Config passed to NewRecognizer.
	Cfg asr.Config
}

// Engine is a mock implementation of asr.Engine.
type Engine struct {
	mu sync.Mutex

	// Recognizer is returned by NewRecognizer. If nil, NewRecognizer returns
	// a new default Recognizer.
	Recognizer asr.Recognizer

	// NewRecognizerErr, if non-nil, is returned as the error from
	// NewRecognizer.
	NewRecognizerErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// NewRecognizerCalls records every call to NewRecognizer in order.
	NewRecognizerCalls []NewRecognizerCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// NewRecognizer records the call and returns Recognizer, NewRecognizerErr.
func (e *Engine) NewRecognizer(cfg asr.Config) (asr.Recognizer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewRecognizerCalls = append(e.NewRecognizerCalls, NewRecognizerCall{Cfg: cfg})
	if e.NewRecognizerErr != nil {
		return nil, e.NewRecognizerErr
	}
	if e.Recognizer != nil {
		return e.Recognizer, nil
	}
	return &Recognizer{}, nil
}

// Close records the call and returns CloseErr.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CloseCallCount++
	return e.CloseErr
}

// NewRecognizerCallCount returns the number of NewRecognizer calls.
// Thread-safe.
func (e *Engine) NewRecognizerCallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.NewRecognizerCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewRecognizerCalls = nil
	e.CloseCallCount = 0
}

// Ensure Engine implements asr.Engine at compile time.
var _ asr.Engine = (*Engine)(nil)

// Step is one pre-programmed AcceptWaveform outcome.
type Step struct {
	// Boundary is the value AcceptWaveform returns.
	Boundary bool

	// Partial, if non-empty, replaces the current partial hypothesis.
	Partial string

	// PartialWords accompanies Partial in PartialResult.
	PartialWords []asr.Word

	// Text, if non-empty, is staged as the committed result that the next
	// Result call returns. Normally paired with Boundary.
	Text string

	// Words accompanies Text in the staged result.
	Words []asr.Word

	// Err, if non-nil, is returned by AcceptWaveform for this step.
	Err error
}

// AcceptWaveformCall records a single invocation of Recognizer.AcceptWaveform.
type AcceptWaveformCall struct {
	// PCM is a copy of the audio bytes passed to AcceptWaveform.
	PCM []byte
}

// Recognizer is a mock implementation of asr.Recognizer. AcceptWaveform
// consumes Script one Step per call; once the script is exhausted it returns
// false with no state change.
type Recognizer struct {
	mu sync.Mutex

	// Script is the sequence of outcomes consumed by AcceptWaveform.
	Script []Step
	pos    int

	// FinalText, if non-empty, is returned by FinalResult when no committed
	// result is staged.
	FinalText string

	// FinalWords accompanies FinalText.
	FinalWords []asr.Word

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	partial    asr.Partial
	pending    asr.Result
	hasPending bool

	// --- Call records ---

	// AcceptWaveformCalls records every call to AcceptWaveform in order.
	AcceptWaveformCalls []AcceptWaveformCall

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Push appends steps to the recognizer's script. Thread-safe.
func (r *Recognizer) Push(steps ...Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Script = append(r.Script, steps...)
}

// AcceptWaveform records the call and applies the next scripted step.
func (r *Recognizer) AcceptWaveform(_ context.Context, pcm []byte) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	r.AcceptWaveformCalls = append(r.AcceptWaveformCalls, AcceptWaveformCall{PCM: cp})

	if r.pos >= len(r.Script) {
		return false, nil
	}
	step := r.Script[r.pos]
	r.pos++
	if step.Err != nil {
		return false, step.Err
	}
	if step.Partial != "" {
		r.partial = asr.Partial{Partial: step.Partial, Words: step.PartialWords}
	}
	if step.Text != "" {
		r.pending = asr.Result{Text: step.Text, Words: step.Words}
		r.hasPending = true
		r.partial = asr.Partial{}
	}
	return step.Boundary, nil
}

// PartialResult returns the current scripted partial.
func (r *Recognizer) PartialResult() asr.Partial {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.partial
}

// Result returns the staged committed result and clears it.
func (r *Recognizer) Result() asr.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := r.pending
	r.pending = asr.Result{}
	r.hasPending = false
	return res
}

// FinalResult returns the staged result if one exists, otherwise FinalText.
// The current partial is cleared either way.
func (r *Recognizer) FinalResult() asr.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.partial = asr.Partial{}
	if r.hasPending {
		res := r.pending
		r.pending = asr.Result{}
		r.hasPending = false
		return res
	}
	res := asr.Result{Text: r.FinalText, Words: r.FinalWords}
	r.FinalText = ""
	r.FinalWords = nil
	return res
}

// Reset records the call and clears partial and pending state. The script
// position is kept so tests can interleave resets with scripted frames.
func (r *Recognizer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ResetCallCount++
	r.partial = asr.Partial{}
	r.pending = asr.Result{}
	r.hasPending = false
}

// Close records the call and returns CloseErr.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CloseCallCount++
	return r.CloseErr
}

// ResetCalls clears all recorded call history and rewinds the script.
// Thread-safe.
func (r *Recognizer) ResetCalls() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.AcceptWaveformCalls = nil
	r.ResetCallCount = 0
	r.CloseCallCount = 0
	r.pos = 0
}

// Ensure Recognizer implements asr.Recognizer at compile time.
var _ asr.Recognizer = (*Recognizer)(nil)
