// Raw frame types exchanged between decoders, the compositor and encoders.
package transcoder

import "time"

// PixelFormat represents video pixel formats.
type PixelFormat int

const (
	PixelFormatI420 PixelFormat = iota // YUV 4:2:0 planar (Y + U + V)
	PixelFormatNV12                    // YUV 4:2:0 semi-planar (Y + interleaved UV)
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatI420:
		return "I420"
	case PixelFormatNV12:
		return "NV12"
	default:
		return "Unknown"
	}
}

// PlaneCount returns the number of planes for this pixel format.
func (p PixelFormat) PlaneCount() int {
	switch p {
	case PixelFormatI420:
		return 3 // Y, U, V
	case PixelFormatNV12:
		return 2 // Y, UV
	default:
		return 0
	}
}

// AudioFormat represents audio sample formats.
type AudioFormat int

const (
	AudioFormatS16 AudioFormat = iota // Signed 16-bit PCM, little endian, interleaved
)

func (a AudioFormat) String() string {
	switch a {
	case AudioFormatS16:
		return "S16"
	default:
		return "Unknown"
	}
}

// BytesPerSample returns the number of bytes per sample for this format.
func (a AudioFormat) BytesPerSample() int {
	switch a {
	case AudioFormatS16:
		return 2
	default:
		return 0
	}
}

// VideoFrame represents a raw video frame.
// The Data slices may point to codec-owned memory; callers that keep a frame
// past the call that produced it must Clone it.
type VideoFrame struct {
	Data      [][]byte      // Plane data (1-3 planes depending on format)
	Stride    []int         // Stride for each plane in bytes
	Width     int           // Frame width in pixels
	Height    int           // Frame height in pixels
	Format    PixelFormat   // Pixel format
	Timestamp time.Duration // Presentation timestamp
}

// NewI420Frame allocates a zeroed I420 frame with tight strides.
func NewI420Frame(width, height int) *VideoFrame {
	uvW, uvH := (width+1)/2, (height+1)/2
	return &VideoFrame{
		Data: [][]byte{
			make([]byte, width*height),
			make([]byte, uvW*uvH),
			make([]byte, uvW*uvH),
		},
		Stride: []int{width, uvW, uvW},
		Width:  width,
		Height: height,
		Format: PixelFormatI420,
	}
}

// Clone creates a deep copy of the video frame.
func (f *VideoFrame) Clone() *VideoFrame {
	clone := &VideoFrame{
		Data:      make([][]byte, len(f.Data)),
		Stride:    make([]int, len(f.Stride)),
		Width:     f.Width,
		Height:    f.Height,
		Format:    f.Format,
		Timestamp: f.Timestamp,
	}
	copy(clone.Stride, f.Stride)
	for i, plane := range f.Data {
		if plane != nil {
			clone.Data[i] = make([]byte, len(plane))
			copy(clone.Data[i], plane)
		}
	}
	return clone
}

// I420Size returns the total buffer size needed for an I420 frame.
func I420Size(width, height int) int {
	ySize := width * height
	uvSize := ((width + 1) / 2) * ((height + 1) / 2)
	return ySize + uvSize*2
}

// AudioSamples represents raw interleaved audio samples.
type AudioSamples struct {
	Data        []byte        // Sample data
	SampleRate  int           // Sample rate (e.g., 48000)
	Channels    int           // Number of channels (1 = mono, 2 = stereo)
	SampleCount int           // Number of samples per channel
	Format      AudioFormat   // Sample format
	Timestamp   time.Duration // Presentation timestamp of the first sample
}

// Duration returns the playback duration of the buffer.
func (s *AudioSamples) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return samplesToDuration(s.SampleCount, s.SampleRate)
}

// Clone creates a deep copy of the audio samples.
func (s *AudioSamples) Clone() *AudioSamples {
	clone := &AudioSamples{
		SampleRate:  s.SampleRate,
		Channels:    s.Channels,
		SampleCount: s.SampleCount,
		Format:      s.Format,
		Timestamp:   s.Timestamp,
	}
	if s.Data != nil {
		clone.Data = make([]byte, len(s.Data))
		copy(clone.Data, s.Data)
	}
	return clone
}

func samplesToDuration(samples, sampleRate int) time.Duration {
	return time.Duration(int64(samples) * int64(time.Second) / int64(sampleRate))
}

func durationToSamples(d time.Duration, sampleRate int) int {
	return int((int64(d)*int64(sampleRate) + int64(time.Second)/2) / int64(time.Second))
}
