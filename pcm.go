package transcoder

import (
	"encoding/binary"
	"time"
)

// pcm16 is a view of interleaved signed 16-bit samples.
type pcm16 []int16

func decodePCM16(data []byte) pcm16 {
	out := make(pcm16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

func (p pcm16) bytes() []byte {
	out := make([]byte, len(p)*2)
	for i, s := range p {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func clamp16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// newAudioSamples builds an S16 buffer from interleaved samples.
func newAudioSamples(p pcm16, sampleRate, channels int, ts time.Duration) *AudioSamples {
	return &AudioSamples{
		Data:        p.bytes(),
		SampleRate:  sampleRate,
		Channels:    channels,
		SampleCount: len(p) / channels,
		Format:      AudioFormatS16,
		Timestamp:   ts,
	}
}
