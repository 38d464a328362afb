package transcoder

import (
	"fmt"
	"math"
)

// Size is a frame size in pixels.
type Size struct {
	Width  int
	Height int
}

// Major returns the longer edge.
func (s Size) Major() int { return max(s.Width, s.Height) }

// Minor returns the shorter edge.
func (s Size) Minor() int { return min(s.Width, s.Height) }

// Portrait reports whether the frame is taller than wide.
func (s Size) Portrait() bool { return s.Height > s.Width }

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

// Resizer computes an output size from an input size.
type Resizer interface {
	Resize(in Size) (Size, error)
}

// PassThroughResizer returns the input size.
type PassThroughResizer struct{}

// Resize implements Resizer.
func (PassThroughResizer) Resize(in Size) (Size, error) { return in, nil }

// AtMostResizer shrinks the input, preserving its aspect ratio, until the
// short edge is at most Minor and the long edge at most Major. Zero limits
// are ignored. It never upscales.
type AtMostResizer struct {
	Minor int
	Major int
}

// Resize implements Resizer.
func (r AtMostResizer) Resize(in Size) (Size, error) {
	scale := 1.0
	if r.Minor > 0 && in.Minor() > r.Minor {
		scale = math.Min(scale, float64(r.Minor)/float64(in.Minor()))
	}
	if r.Major > 0 && in.Major() > r.Major {
		scale = math.Min(scale, float64(r.Major)/float64(in.Major()))
	}
	if scale == 1 {
		return in, nil
	}
	return Size{
		Width:  int(math.Round(float64(in.Width) * scale)),
		Height: int(math.Round(float64(in.Height) * scale)),
	}, nil
}

// ExactResizer returns a fixed size, flipped to match the input orientation.
type ExactResizer struct {
	Size Size
}

// Resize implements Resizer.
func (r ExactResizer) Resize(in Size) (Size, error) {
	out := r.Size
	if out.Portrait() != in.Portrait() && out.Width != out.Height && in.Width != in.Height {
		out.Width, out.Height = out.Height, out.Width
	}
	return out, nil
}

// FractionResizer scales both edges by Fraction, in (0, 1].
type FractionResizer struct {
	Fraction float64
}

// Resize implements Resizer.
func (r FractionResizer) Resize(in Size) (Size, error) {
	if r.Fraction <= 0 || r.Fraction > 1 {
		return Size{}, fmt.Errorf("%w: fraction %v not in (0, 1]", ErrConfiguration, r.Fraction)
	}
	return Size{
		Width:  int(math.Round(float64(in.Width) * r.Fraction)),
		Height: int(math.Round(float64(in.Height) * r.Fraction)),
	}, nil
}

// AspectRatioResizer crops the input to Ratio (long edge over short edge),
// keeping the input orientation. The center-crop scale policy then removes
// the overflow.
type AspectRatioResizer struct {
	Ratio float64
}

// Resize implements Resizer.
func (r AspectRatioResizer) Resize(in Size) (Size, error) {
	if r.Ratio < 1 {
		return Size{}, fmt.Errorf("%w: aspect ratio %v must be >= 1", ErrConfiguration, r.Ratio)
	}
	major, minor := float64(in.Major()), float64(in.Minor())
	current := major / minor
	switch {
	case current > r.Ratio:
		major = minor * r.Ratio
	case current < r.Ratio:
		minor = major / r.Ratio
	default:
		return in, nil
	}
	if in.Portrait() {
		return Size{Width: int(math.Round(minor)), Height: int(math.Round(major))}, nil
	}
	return Size{Width: int(math.Round(major)), Height: int(math.Round(minor))}, nil
}

// AlignResizer rounds both edges down to a multiple of Multiple.
type AlignResizer struct {
	Multiple int
}

// Resize implements Resizer.
func (r AlignResizer) Resize(in Size) (Size, error) {
	if r.Multiple <= 0 {
		return Size{}, fmt.Errorf("%w: align multiple %d", ErrConfiguration, r.Multiple)
	}
	out := Size{
		Width:  in.Width / r.Multiple * r.Multiple,
		Height: in.Height / r.Multiple * r.Multiple,
	}
	if out.Width == 0 || out.Height == 0 {
		return Size{}, fmt.Errorf("%w: %s cannot be aligned to %d", ErrUnsupportedFormat, in, r.Multiple)
	}
	return out, nil
}

// MultiResizer applies resizers in order.
type MultiResizer []Resizer

// Resize implements Resizer.
func (m MultiResizer) Resize(in Size) (Size, error) {
	out := in
	for _, r := range m {
		var err error
		if out, err = r.Resize(out); err != nil {
			return Size{}, err
		}
	}
	return out, nil
}
