package transcoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func assertPoint(t *testing.T, m Mat4, x, y, wantX, wantY float32) {
	t.Helper()
	gotX, gotY := m.Apply(x, y)
	assert.InDelta(t, wantX, gotX, 1e-6, "x of (%v, %v)", x, y)
	assert.InDelta(t, wantY, gotY, 1e-6, "y of (%v, %v)", x, y)
}

func TestTextureMatrixIdentity(t *testing.T) {
	m := TextureTransform{ScaleX: 1, ScaleY: 1}.Matrix()
	for i, v := range Identity() {
		assert.InDelta(t, v, m[i], 1e-6)
	}
}

func TestTextureMatrixRotation(t *testing.T) {
	// Output corners map to the input corners of a clockwise rotation.
	tests := []struct {
		rotation int
		// input texture coordinates of the output top-left and top-right
		topLeft, topRight [2]float32
	}{
		{0, [2]float32{0, 0}, [2]float32{1, 0}},
		{90, [2]float32{0, 1}, [2]float32{0, 0}},
		{180, [2]float32{1, 1}, [2]float32{0, 1}},
		{270, [2]float32{1, 0}, [2]float32{1, 1}},
	}

	for _, tt := range tests {
		m := TextureTransform{ScaleX: 1, ScaleY: 1, Rotation: tt.rotation}.Matrix()
		assertPoint(t, m, 0, 0, tt.topLeft[0], tt.topLeft[1])
		assertPoint(t, m, 1, 0, tt.topRight[0], tt.topRight[1])
		assertPoint(t, m, 0.5, 0.5, 0.5, 0.5)
	}
}

func TestTextureMatrixFlip(t *testing.T) {
	m := TextureTransform{ScaleX: 1, ScaleY: 1, FlipY: true}.Matrix()
	assertPoint(t, m, 0, 0, 0, 1)
	assertPoint(t, m, 1, 1, 1, 0)
}

func TestTextureMatrixScale(t *testing.T) {
	// Crop by 2 horizontally: the output spans the middle half of the input.
	m := TextureTransform{ScaleX: 2, ScaleY: 1}.Matrix()
	assertPoint(t, m, 0, 0, 0.25, 0)
	assertPoint(t, m, 1, 1, 0.75, 1)

	// Letterbox by 2 vertically: the input occupies the middle half.
	m = TextureTransform{ScaleX: 1, ScaleY: 0.5}.Matrix()
	assertPoint(t, m, 0, 0.25, 0, 0)
	assertPoint(t, m, 1, 0.75, 1, 1)
}

func TestComputeTransform(t *testing.T) {
	tests := []struct {
		name               string
		inW, inH           int
		outW, outH         int
		rotation           int
		policy             ScalePolicy
		wantScaleX, wantSY float32
	}{
		{"same aspect", 1280, 720, 640, 360, 0, ScaleCenterCrop, 1, 1},
		{"crop wide into square", 1280, 720, 720, 720, 0, ScaleCenterCrop, 1280.0 / 720, 1},
		{"fit wide into square", 1280, 720, 720, 720, 0, ScaleFit, 1, 720.0 / 1280},
		{"rotated to portrait", 1280, 720, 720, 1280, 90, ScaleCenterCrop, 1, 1},
		{"rotated crop into square", 1280, 720, 720, 720, 90, ScaleCenterCrop, 1280.0 / 720, 1},
		{"rotated fit into square", 1280, 720, 720, 720, 270, ScaleFit, 1, 720.0 / 1280},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := computeTransform(tt.inW, tt.inH, tt.outW, tt.outH, tt.rotation, tt.policy, false)
			assert.InDelta(t, tt.wantScaleX, tr.ScaleX, 1e-5)
			assert.InDelta(t, tt.wantSY, tr.ScaleY, 1e-5)
			assert.Equal(t, tt.rotation, tr.Rotation)
		})
	}
}

func TestParseScalePolicy(t *testing.T) {
	for _, p := range []ScalePolicy{ScaleCenterCrop, ScaleFit} {
		got, ok := ParseScalePolicy(p.String())
		assert.True(t, ok)
		assert.Equal(t, p, got)
	}
	got, ok := ParseScalePolicy("stretch")
	assert.False(t, ok)
	assert.Equal(t, DefaultScalePolicy, got)
}
