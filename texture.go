package transcoder

import "math"

// Mat4 is a column-major 4x4 matrix as consumed by GL-style texture programs.
// Element (row r, column c) lives at index c*4+r.
type Mat4 [16]float32

// Identity returns the identity matrix.
func Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Mul returns m * n.
func (m Mat4) Mul(n Mat4) Mat4 {
	var out Mat4
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += m[k*4+r] * n[c*4+k]
			}
			out[c*4+r] = sum
		}
	}
	return out
}

// Translate post-multiplies m by a translation.
func (m Mat4) Translate(x, y, z float32) Mat4 {
	t := Identity()
	t[12], t[13], t[14] = x, y, z
	return m.Mul(t)
}

// Scale post-multiplies m by a scale.
func (m Mat4) Scale(x, y, z float32) Mat4 {
	s := Identity()
	s[0], s[5], s[10] = x, y, z
	return m.Mul(s)
}

// RotateZ post-multiplies m by a counter-clockwise rotation of deg degrees
// around the z axis.
func (m Mat4) RotateZ(deg float32) Mat4 {
	rad := float64(deg) * math.Pi / 180
	cos, sin := float32(math.Cos(rad)), float32(math.Sin(rad))
	// Exact values for the quarter turns the compositor uses.
	switch normalizeRotation(int(deg)) {
	case 0:
		cos, sin = 1, 0
	case 90:
		cos, sin = 0, 1
	case 180:
		cos, sin = -1, 0
	case 270:
		cos, sin = 0, -1
	}
	r := Identity()
	r[0], r[1] = cos, sin
	r[4], r[5] = -sin, cos
	return m.Mul(r)
}

// Apply transforms the point (x, y) with z=0, w=1.
func (m Mat4) Apply(x, y float32) (float32, float32) {
	return m[0]*x + m[4]*y + m[12], m[1]*x + m[5]*y + m[13]
}

// TextureTransform describes how a decoded frame is placed in the output.
type TextureTransform struct {
	ScaleX   float32 // >1 crops, <1 letterboxes
	ScaleY   float32
	Rotation int // clockwise presentation rotation
	FlipY    bool
}

// Matrix builds the texture matrix mapping output coordinates to input
// texture coordinates. Texture space has its origin at the top-left corner.
//
// The operations are composed in this order: translate by the scale policy
// offset, scale, translate to the center, rotate by the negated rotation,
// optional flip, translate back.
func (t TextureTransform) Matrix() Mat4 {
	sx, sy := t.ScaleX, t.ScaleY
	if sx == 0 {
		sx = 1
	}
	if sy == 0 {
		sy = 1
	}
	glScaleX := 1 / sx
	glScaleY := 1 / sy
	m := Identity().
		Translate((1-glScaleX)/2, (1-glScaleY)/2, 0).
		Scale(glScaleX, glScaleY, 1).
		Translate(0.5, 0.5, 0).
		RotateZ(float32(-t.Rotation))
	if t.FlipY {
		m = m.Scale(1, -1, 1)
	}
	return m.Translate(-0.5, -0.5, 0)
}

// ScalePolicy decides how input frames fill an output of a different aspect.
type ScalePolicy int

const (
	ScaleCenterCrop ScalePolicy = iota // fill the output, crop the overflow
	ScaleFit                           // fit inside the output, letterbox
)

// DefaultScalePolicy is used when a format does not name one.
const DefaultScalePolicy = ScaleCenterCrop

func (p ScalePolicy) String() string {
	switch p {
	case ScaleCenterCrop:
		return "center_crop"
	case ScaleFit:
		return "fit"
	default:
		return "unknown"
	}
}

// ParseScalePolicy parses the names produced by String.
// Unknown names yield DefaultScalePolicy and false.
func ParseScalePolicy(s string) (ScalePolicy, bool) {
	switch s {
	case "center_crop":
		return ScaleCenterCrop, true
	case "fit":
		return ScaleFit, true
	default:
		return DefaultScalePolicy, false
	}
}

// computeTransform derives scale factors for drawing an input of inW x inH,
// rotated by rotation, into an output of outW x outH.
func computeTransform(inW, inH, outW, outH, rotation int, policy ScalePolicy, flipY bool) TextureTransform {
	// Compare aspect ratios in presentation space.
	rw, rh := inW, inH
	if rotation%180 != 0 {
		rw, rh = inH, inW
	}
	inRatio := float64(rw) / float64(rh)
	outRatio := float64(outW) / float64(outH)

	scaleX, scaleY := float32(1), float32(1)
	switch policy {
	case ScaleFit:
		if inRatio > outRatio {
			scaleY = float32(outRatio / inRatio)
		} else if inRatio < outRatio {
			scaleX = float32(inRatio / outRatio)
		}
	default: // ScaleCenterCrop
		if inRatio > outRatio {
			scaleX = float32(inRatio / outRatio)
		} else if inRatio < outRatio {
			scaleY = float32(outRatio / inRatio)
		}
	}

	// Scale acts on texture axes, which quarter turns swap.
	if rotation%180 != 0 {
		scaleX, scaleY = scaleY, scaleX
	}
	return TextureTransform{ScaleX: scaleX, ScaleY: scaleY, Rotation: rotation, FlipY: flipY}
}
