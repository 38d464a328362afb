package transcoder

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Renderer draws a latched input frame into an output frame using a texture
// matrix (see TextureTransform.Matrix). Texture coordinates outside the unit
// square render black.
type Renderer interface {
	Render(dst, src *VideoFrame, m Mat4) error
	Release() error
}

// SoftwareRenderer renders on the CPU with golang.org/x/image/draw.
type SoftwareRenderer struct {
	interp draw.Interpolator

	mu       sync.Mutex
	canvas   *image.NRGBA
	released bool
}

// NewSoftwareRenderer creates a renderer. A nil interpolator selects
// draw.ApproxBiLinear.
func NewSoftwareRenderer(interp draw.Interpolator) *SoftwareRenderer {
	if interp == nil {
		interp = draw.ApproxBiLinear
	}
	return &SoftwareRenderer{interp: interp}
}

// Render implements Renderer.
func (r *SoftwareRenderer) Render(dst, src *VideoFrame, m Mat4) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.released {
		return ErrReleased
	}
	if src.Format != PixelFormatI420 || dst.Format != PixelFormatI420 {
		return fmt.Errorf("%w: renderer needs I420, got %s -> %s", ErrUnsupportedFormat, src.Format, dst.Format)
	}

	s2d, err := sourceToDest(src.Width, src.Height, dst.Width, dst.Height, m)
	if err != nil {
		return err
	}

	if r.canvas == nil || r.canvas.Rect.Dx() != dst.Width || r.canvas.Rect.Dy() != dst.Height {
		r.canvas = imaging.New(dst.Width, dst.Height, color.NRGBA{A: 255})
	} else {
		draw.Draw(r.canvas, r.canvas.Rect, image.NewUniform(color.NRGBA{A: 255}), image.Point{}, draw.Src)
	}

	img := FrameImage(src)
	r.interp.Transform(r.canvas, s2d, img, img.Bounds(), draw.Src, nil)
	writeI420(dst, r.canvas)
	return nil
}

// Release implements Renderer.
func (r *SoftwareRenderer) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = true
	r.canvas = nil
	return nil
}

// sourceToDest converts a texture matrix into a pixel-space affine transform
// from source pixels to destination pixels.
func sourceToDest(srcW, srcH, dstW, dstH int, m Mat4) (f64.Aff3, error) {
	sw, sh := float64(srcW), float64(srcH)
	dw, dh := float64(dstW), float64(dstH)

	// Destination pixel -> source pixel.
	a := sw * float64(m[0]) / dw
	b := sw * float64(m[4]) / dh
	c := sw * float64(m[12])
	d := sh * float64(m[1]) / dw
	e := sh * float64(m[5]) / dh
	f := sh * float64(m[13])

	det := a*e - b*d
	if det == 0 {
		return f64.Aff3{}, fmt.Errorf("%w: singular texture matrix", ErrConfiguration)
	}
	return f64.Aff3{
		e / det, -b / det, (b*f - c*e) / det,
		-d / det, a / det, (c*d - a*f) / det,
	}, nil
}

// FrameImage wraps an I420 frame as an image.YCbCr without copying.
func FrameImage(f *VideoFrame) *image.YCbCr {
	return &image.YCbCr{
		Y:              f.Data[0],
		Cb:             f.Data[1],
		Cr:             f.Data[2],
		YStride:        f.Stride[0],
		CStride:        f.Stride[1],
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, f.Width, f.Height),
	}
}

// FrameFromImage converts any image into a newly allocated I420 frame.
func FrameFromImage(img image.Image) *VideoFrame {
	b := img.Bounds()
	frame := NewI420Frame(b.Dx(), b.Dy())
	writeI420(frame, imaging.Clone(img))
	return frame
}

// writeI420 converts an NRGBA canvas into the I420 planes of dst, averaging
// chroma over 2x2 blocks.
func writeI420(dst *VideoFrame, src *image.NRGBA) {
	w, h := dst.Width, dst.Height
	yPlane, uPlane, vPlane := dst.Data[0], dst.Data[1], dst.Data[2]
	yStride, uvStride := dst.Stride[0], dst.Stride[1]

	for y := 0; y < h; y += 2 {
		for x := 0; x < w; x += 2 {
			var sumCb, sumCr, n int
			for dy := 0; dy < 2 && y+dy < h; dy++ {
				for dx := 0; dx < 2 && x+dx < w; dx++ {
					i := src.PixOffset(x+dx, y+dy)
					yy, cb, cr := color.RGBToYCbCr(src.Pix[i], src.Pix[i+1], src.Pix[i+2])
					yPlane[(y+dy)*yStride+x+dx] = yy
					sumCb += int(cb)
					sumCr += int(cr)
					n++
				}
			}
			ci := (y/2)*uvStride + x/2
			uPlane[ci] = uint8(sumCb / n)
			vPlane[ci] = uint8(sumCr / n)
		}
	}
}
