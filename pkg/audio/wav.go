// Package audio holds the small PCM toolbox the voice pipeline needs: WAV
// container build/parse, 16-bit PCM helpers, linear resampling, and an Opus
// packet encoder for the optional compressed output path.
//
// All PCM in this package is 16-bit signed little-endian.
package audio

import (
	"encoding/binary"
	"fmt"
)

const bitsPerSample = 16

// WAVInfo describes a parsed WAV payload. Data aliases the input buffer.
type WAVInfo struct {
	Format        uint16 // 1 = PCM
	Channels      int
	SampleRate    int
	BitsPerSample int
	Data          []byte
}

// BuildWAV wraps raw 16-bit PCM in a standard RIFF/WAV container.
func BuildWAV(pcm []byte, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bitsPerSample))

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// ParseWAV walks the RIFF chunk list of b and returns the format description
// plus the raw sample data. It tolerates extra chunks (LIST, fact, cue)
// between fmt and data, which synthesis backends routinely emit.
func ParseWAV(b []byte) (*WAVInfo, error) {
	if len(b) < 12 {
		return nil, fmt.Errorf("audio: wav too short: %d bytes", len(b))
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return nil, fmt.Errorf("audio: not a RIFF/WAVE payload")
	}

	info := &WAVInfo{}
	sawFmt := false
	pos := 12
	for pos+8 <= len(b) {
		id := string(b[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(b[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(b) {
			return nil, fmt.Errorf("audio: wav chunk %q overruns payload", id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("audio: fmt chunk too short: %d bytes", size)
			}
			info.Format = binary.LittleEndian.Uint16(b[body : body+2])
			info.Channels = int(binary.LittleEndian.Uint16(b[body+2 : body+4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(b[body+4 : body+8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(b[body+14 : body+16]))
			sawFmt = true
		case "data":
			if !sawFmt {
				return nil, fmt.Errorf("audio: data chunk before fmt chunk")
			}
			info.Data = b[body : body+size]
			return info, nil
		}

		// Chunks are word aligned; odd sizes carry a pad byte.
		pos = body + size
		if size%2 == 1 {
			pos++
		}
	}

	if !sawFmt {
		return nil, fmt.Errorf("audio: no fmt chunk found")
	}
	return nil, fmt.Errorf("audio: no data chunk found")
}
