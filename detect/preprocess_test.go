package detect

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"FaceValServer/pool"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestPrepare_SolidColorNormalization(t *testing.T) {
	buffers := pool.New(5)
	img := solidImage(1, 1, color.NRGBA{R: 200, G: 100, B: 50, A: 255})

	buf, err := Prepare(img, 8, 8, buffers)
	require.NoError(t, err)
	require.Len(t, buf, 8*8*3)

	channelSize := 8 * 8
	for i := 0; i < channelSize; i++ {
		assert.InDelta(t, 200.0/255.0, buf[i], 1e-6)
		assert.InDelta(t, 100.0/255.0, buf[channelSize+i], 1e-6)
		assert.InDelta(t, 50.0/255.0, buf[2*channelSize+i], 1e-6)
	}
}

func TestPrepare_RejectsZeroSizedImage(t *testing.T) {
	buffers := pool.New(5)
	img := image.NewNRGBA(image.Rect(0, 0, 0, 0))

	_, err := Prepare(img, 8, 8, buffers)
	assert.Error(t, err)
	assert.Equal(t, KindImageLoad, KindOf(err))
}

func TestPrepare_ChannelMajorLayout(t *testing.T) {
	buffers := pool.New(5)
	// Target size equals source size, so resize is identity.
	img := solidImage(4, 4, color.NRGBA{R: 255, G: 0, B: 0, A: 255})

	buf, err := Prepare(img, 4, 4, buffers)
	require.NoError(t, err)

	channelSize := 4 * 4
	for i := 0; i < channelSize; i++ {
		assert.Equal(t, float32(1.0), buf[i])
		assert.Equal(t, float32(0.0), buf[channelSize+i])
		assert.Equal(t, float32(0.0), buf[2*channelSize+i])
	}
}

func TestNormalizeRow_VectorMatchesScalarExactly(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, width := range []int{1, 7, 8, 15, 16, 33, 640} {
		row := make([]byte, width*4)
		for i := range row {
			row[i] = byte(rng.Intn(256))
		}

		sr := make([]float32, width)
		sg := make([]float32, width)
		sb := make([]float32, width)
		normalizeRowScalar(sr, sg, sb, row)

		vr := make([]float32, width)
		vg := make([]float32, width)
		vb := make([]float32, width)
		normalizeRowVector(vr, vg, vb, row)

		// Both paths must be bit-for-bit equivalent.
		assert.Equal(t, sr, vr, "width %d", width)
		assert.Equal(t, sg, vg, "width %d", width)
		assert.Equal(t, sb, vb, "width %d", width)
	}
}

func TestPrepare_BufferComesBackFromPool(t *testing.T) {
	buffers := pool.New(5)
	img := solidImage(2, 2, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	first, err := Prepare(img, 8, 8, buffers)
	require.NoError(t, err)
	buffers.Release(len(first), first)

	second, err := Prepare(img, 8, 8, buffers)
	require.NoError(t, err)
	assert.Same(t, &first[0], &second[0])
}
