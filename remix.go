package transcoder

import "fmt"

// remix converts interleaved S16 audio between channel counts. Mono is
// duplicated to every output channel; multichannel input is averaged down
// to mono.
func remix(in *AudioSamples, channels int) (*AudioSamples, error) {
	if in.Channels == channels {
		return in, nil
	}
	src := decodePCM16(in.Data)
	n := in.SampleCount
	out := make(pcm16, n*channels)

	switch {
	case in.Channels == 1:
		for i := 0; i < n; i++ {
			for c := 0; c < channels; c++ {
				out[i*channels+c] = src[i]
			}
		}
	case channels == 1:
		for i := 0; i < n; i++ {
			var sum int32
			for c := 0; c < in.Channels; c++ {
				sum += int32(src[i*in.Channels+c])
			}
			out[i] = clamp16(sum / int32(in.Channels))
		}
	default:
		return nil, fmt.Errorf("%w: cannot remix %d channels to %d", ErrUnsupportedFormat, in.Channels, channels)
	}
	return newAudioSamples(out, in.SampleRate, channels, in.Timestamp), nil
}
