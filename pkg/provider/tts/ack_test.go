package tts_test

import (
	"context"
	"errors"
	"testing"

	"github.com/voxloop/voxloop/pkg/provider/tts"
	ttsmock "github.com/voxloop/voxloop/pkg/provider/tts/mock"
)

func TestAckCacheWarm(t *testing.T) {
	t.Parallel()
	p := &ttsmock.Provider{WAV: []byte("RIFFxxxx")}
	cache := tts.NewAckCache()

	cache.Warm(context.Background(), p, tts.Params{Voice: "eugene"})

	if cache.Size() != p.SynthesizeCallCount() {
		t.Errorf("cached = %d, synthesized = %d", cache.Size(), p.SynthesizeCallCount())
	}
	if cache.Size() == 0 {
		t.Fatal("nothing cached")
	}
	if call := p.LastSynthesizeCall(); call.Params.Voice != "eugene" {
		t.Errorf("params = %+v", call.Params)
	}

	text, wav := cache.Random()
	if text == "" {
		t.Error("empty phrase")
	}
	if string(wav) != "RIFFxxxx" {
		t.Errorf("wav = %q", wav)
	}
}

func TestAckCacheWarmSkipsFailures(t *testing.T) {
	t.Parallel()
	p := &ttsmock.Provider{FailFirst: 3, FailErr: errors.New("backend down"), WAV: []byte("RIFF")}
	cache := tts.NewAckCache()

	cache.Warm(context.Background(), p, tts.Params{})

	if cache.Size() != p.SynthesizeCallCount()-3 {
		t.Errorf("cached = %d of %d calls, want 3 skipped", cache.Size(), p.SynthesizeCallCount())
	}
}

func TestAckCacheColdRandom(t *testing.T) {
	t.Parallel()
	cache := tts.NewAckCache()
	text, wav := cache.Random()
	if text == "" {
		t.Error("cold cache must still return a phrase")
	}
	if wav != nil {
		t.Errorf("cold cache returned audio: %q", wav)
	}
}
