package transcoder

import (
	"fmt"
	"math"
)

// AudioResampler converts PCM between sample rates. Downsampling is the
// expected case. Upsampling works but cannot add detail that the input lacks.
type AudioResampler interface {
	// NewStream returns a converter for one track. Streams carry the
	// fractional position across buffers so consecutive outputs are gapless.
	NewStream(inRate, outRate, channels int) (ResampleStream, error)
}

// ResampleStream converts consecutive buffers of one track.
type ResampleStream interface {
	Resample(in *AudioSamples) (*AudioSamples, error)
}

// DefaultAudioResampler resamples with linear interpolation. Equal rates
// pass through untouched.
type DefaultAudioResampler struct{}

// NewStream implements AudioResampler.
func (DefaultAudioResampler) NewStream(inRate, outRate, channels int) (ResampleStream, error) {
	if inRate <= 0 || outRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: resample %d Hz -> %d Hz x %d", ErrConfiguration, inRate, outRate, channels)
	}
	if inRate == outRate {
		return passThroughStream{rate: inRate}, nil
	}
	return &linearStream{
		inRate:   inRate,
		outRate:  outRate,
		channels: channels,
		step:     float64(inRate) / float64(outRate),
	}, nil
}

// PassThroughAudioResampler only accepts equal input and output rates.
type PassThroughAudioResampler struct{}

// NewStream implements AudioResampler.
func (PassThroughAudioResampler) NewStream(inRate, outRate, _ int) (ResampleStream, error) {
	if inRate != outRate {
		return nil, fmt.Errorf("%w: pass-through resampler cannot convert %d Hz to %d Hz",
			ErrConfiguration, inRate, outRate)
	}
	return passThroughStream{rate: inRate}, nil
}

type passThroughStream struct{ rate int }

func (s passThroughStream) Resample(in *AudioSamples) (*AudioSamples, error) {
	if in.SampleRate != s.rate {
		return nil, fmt.Errorf("%w: buffer at %d Hz, stream at %d Hz", ErrProtocolViolation, in.SampleRate, s.rate)
	}
	return in, nil
}

type linearStream struct {
	inRate   int
	outRate  int
	channels int
	step     float64

	pos  float64 // next output position in input frames; -1 addresses prev
	prev []int16
}

func (s *linearStream) Resample(in *AudioSamples) (*AudioSamples, error) {
	if in.SampleRate != s.inRate || in.Channels != s.channels {
		return nil, fmt.Errorf("%w: buffer %d Hz x %d, stream %d Hz x %d", ErrProtocolViolation,
			in.SampleRate, in.Channels, s.inRate, s.channels)
	}
	src := decodePCM16(in.Data)
	ch := s.channels
	n := in.SampleCount

	frame := func(i int) []int16 {
		if i < 0 {
			return s.prev
		}
		return src[i*ch : (i+1)*ch]
	}

	out := make(pcm16, 0, int(math.Ceil(float64(n)/s.step)+1)*ch)
	for n > 0 && s.pos <= float64(n-1) {
		i0 := int(math.Floor(s.pos))
		frac := s.pos - float64(i0)
		a := frame(i0)
		if frac == 0 {
			out = append(out, a...)
		} else {
			b := frame(i0 + 1)
			for c := 0; c < ch; c++ {
				v := float64(a[c]) + (float64(b[c])-float64(a[c]))*frac
				out = append(out, clamp16(int32(math.Round(v))))
			}
		}
		s.pos += s.step
	}
	if n > 0 {
		s.pos -= float64(n)
		s.prev = append(s.prev[:0], src[(n-1)*ch:n*ch]...)
	}
	return newAudioSamples(out, s.outRate, ch, in.Timestamp), nil
}
