package audio

import (
	"fmt"

	"layeh.com/gopus"
)

// The Opus output path uses 48 kHz mono at 20 ms packet size.
const (
	opusSampleRate  = 48000
	opusChannels    = 1
	opusFrameSizeMs = 20
	// opusFrameSize is the number of samples per channel per 20 ms packet.
	opusFrameSize = opusSampleRate * opusFrameSizeMs / 1000 // 960
	// opusMaxPacket bounds the encoded size of a single packet.
	opusMaxPacket = 4000
)

// OpusEncoder converts synthesized PCM into a sequence of Opus packets.
// It resamples input to 48 kHz mono internally. Not safe for concurrent use;
// create one per connection.
type OpusEncoder struct {
	enc *gopus.Encoder
}

// NewOpusEncoder creates an encoder for the voice output stream.
func NewOpusEncoder() (*OpusEncoder, error) {
	enc, err := gopus.NewEncoder(opusSampleRate, opusChannels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus encoder: %w", err)
	}
	return &OpusEncoder{enc: enc}, nil
}

// EncodePCM encodes mono 16-bit PCM at srcRate into 20 ms Opus packets.
// The final partial packet is zero padded to a full frame.
func (e *OpusEncoder) EncodePCM(pcm []byte, srcRate int) ([][]byte, error) {
	pcm = ResampleMono16(pcm, srcRate, opusSampleRate)
	samples := PCM16ToInt16(pcm)

	var packets [][]byte
	for off := 0; off < len(samples); off += opusFrameSize {
		end := off + opusFrameSize
		frame := samples[off:min(end, len(samples))]
		if len(frame) < opusFrameSize {
			padded := make([]int16, opusFrameSize)
			copy(padded, frame)
			frame = padded
		}
		pkt, err := e.enc.Encode(frame, opusFrameSize, opusMaxPacket)
		if err != nil {
			return nil, fmt.Errorf("audio: opus encode: %w", err)
		}
		packets = append(packets, pkt)
	}
	return packets, nil
}
