package protocol

import (
	"encoding/binary"
	"fmt"
)

// Binary audio frames carry a fixed 14-byte little-endian header followed by
// the encoded payload:
//
//	offset 0  4 bytes  magic "AUD0"
//	offset 4  4 bytes  uint32 utterance id
//	offset 8  2 bytes  uint16 mime code
//	offset 10 4 bytes  uint32 payload length
const (
	FrameMagic      = "AUD0"
	FrameHeaderSize = 14
)

// Mime identifies the codec of a binary audio frame.
type Mime uint16

const (
	MimeWAV  Mime = 1
	MimeOpus Mime = 2
)

// String returns the MIME type string carried in tts_start / tts_audio events.
func (m Mime) String() string {
	switch m {
	case MimeWAV:
		return "audio/wav"
	case MimeOpus:
		return "audio/opus"
	default:
		return fmt.Sprintf("unknown(%d)", uint16(m))
	}
}

// EncodeFrame prepends the binary header to payload.
func EncodeFrame(utteranceID uint32, mime Mime, payload []byte) []byte {
	buf := make([]byte, FrameHeaderSize+len(payload))
	copy(buf[0:4], FrameMagic)
	binary.LittleEndian.PutUint32(buf[4:8], utteranceID)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(mime))
	binary.LittleEndian.PutUint32(buf[10:14], uint32(len(payload)))
	copy(buf[FrameHeaderSize:], payload)
	return buf
}

// DecodeFrame splits a binary frame into its header fields and payload.
// The payload slice aliases frame; callers must copy it if they retain it.
func DecodeFrame(frame []byte) (utteranceID uint32, mime Mime, payload []byte, err error) {
	if len(frame) < FrameHeaderSize {
		return 0, 0, nil, fmt.Errorf("protocol: frame too short: %d bytes", len(frame))
	}
	if string(frame[0:4]) != FrameMagic {
		return 0, 0, nil, fmt.Errorf("protocol: bad frame magic %q", frame[0:4])
	}
	utteranceID = binary.LittleEndian.Uint32(frame[4:8])
	mime = Mime(binary.LittleEndian.Uint16(frame[8:10]))
	n := binary.LittleEndian.Uint32(frame[10:14])
	if int(n) != len(frame)-FrameHeaderSize {
		return 0, 0, nil, fmt.Errorf("protocol: frame length mismatch: header says %d, have %d", n, len(frame)-FrameHeaderSize)
	}
	return utteranceID, mime, frame[FrameHeaderSize:], nil
}
