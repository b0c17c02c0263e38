package protocol

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestEncodeDecodeFrame(t *testing.T) {
	t.Parallel()

	payload := []byte{0x52, 0x49, 0x46, 0x46, 0x00, 0x01}
	frame := EncodeFrame(7, MimeWAV, payload)

	if len(frame) != FrameHeaderSize+len(payload) {
		t.Fatalf("frame length = %d, want %d", len(frame), FrameHeaderSize+len(payload))
	}
	if string(frame[0:4]) != FrameMagic {
		t.Fatalf("magic = %q, want %q", frame[0:4], FrameMagic)
	}

	u, mime, got, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if u != 7 {
		t.Errorf("utterance id = %d, want 7", u)
	}
	if mime != MimeWAV {
		t.Errorf("mime = %d, want %d", mime, MimeWAV)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload = %v, want %v", got, payload)
	}
}

func TestDecodeFrameErrors(t *testing.T) {
	t.Parallel()

	t.Run("too short", func(t *testing.T) {
		t.Parallel()
		if _, _, _, err := DecodeFrame([]byte("AUD0")); err == nil {
			t.Fatal("expected error for truncated frame")
		}
	})

	t.Run("bad magic", func(t *testing.T) {
		t.Parallel()
		frame := EncodeFrame(1, MimeWAV, []byte{1, 2})
		frame[0] = 'X'
		if _, _, _, err := DecodeFrame(frame); err == nil {
			t.Fatal("expected error for bad magic")
		}
	})

	t.Run("length mismatch", func(t *testing.T) {
		t.Parallel()
		frame := EncodeFrame(1, MimeWAV, []byte{1, 2, 3, 4})
		if _, _, _, err := DecodeFrame(frame[:len(frame)-1]); err == nil {
			t.Fatal("expected error for truncated payload")
		}
	})
}

func TestMimeString(t *testing.T) {
	t.Parallel()

	if got := MimeWAV.String(); got != "audio/wav" {
		t.Errorf("MimeWAV.String() = %q, want audio/wav", got)
	}
	if got := MimeOpus.String(); got != "audio/opus" {
		t.Errorf("MimeOpus.String() = %q, want audio/opus", got)
	}
}

// Ping handling distinguishes a missing ping field from one that is present
// with any value, including null or 0.
func TestClientMessagePingPresence(t *testing.T) {
	t.Parallel()

	var absent ClientMessage
	if err := json.Unmarshal([]byte(`{"reset":1}`), &absent); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if absent.Ping != nil {
		t.Error("ping should be nil when absent")
	}

	var present ClientMessage
	if err := json.Unmarshal([]byte(`{"ping":0}`), &present); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if present.Ping == nil {
		t.Fatal("ping should be non-nil when present")
	}
	if string(*present.Ping) != "0" {
		t.Errorf("ping raw = %q, want 0", string(*present.Ping))
	}
}
