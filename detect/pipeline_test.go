package detect

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"FaceValServer/pool"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu       sync.Mutex
	calls    int
	failures int // fail this many calls before succeeding
	pred     []float32
	block    chan struct{} // when set, Run blocks until closed
}

func (f *fakeRunner) Run(input []float32) ([]float32, error) {
	if f.block != nil {
		<-f.block
		return nil, errors.New("aborted")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("transient engine fault")
	}
	return f.pred, nil
}

func (f *fakeRunner) Destroy() {}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testPipeline() *Pipeline {
	p := New(pool.New(5))
	p.InputWidth = 16
	p.InputHeight = 16
	p.Candidates = 8
	p.Timeout = time.Second
	p.Backoff = time.Millisecond
	return p
}

func testImage(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
		}
	}
	return img
}

func TestRun_SingleFace(t *testing.T) {
	p := testPipeline()
	runner := &fakeRunner{
		pred: rawTensor(8, [5]float32{0.5, 0.5, 0.25, 0.25, 0.9}),
	}

	boxes, err := p.Run(context.Background(), testImage(64, 64), runner)
	require.NoError(t, err)
	assert.Len(t, boxes, 1)
	assert.Equal(t, 1, runner.callCount())
}

func TestRun_RetriesTransientFailure(t *testing.T) {
	p := testPipeline()
	runner := &fakeRunner{
		failures: 2,
		pred:     rawTensor(8, [5]float32{0.5, 0.5, 0.25, 0.25, 0.9}),
	}

	boxes, err := p.Run(context.Background(), testImage(64, 64), runner)
	require.NoError(t, err)
	assert.Len(t, boxes, 1)
	assert.Equal(t, 3, runner.callCount())
}

func TestRun_ExhaustsRetriesAndReturnsLastError(t *testing.T) {
	p := testPipeline()
	runner := &fakeRunner{failures: 100}

	_, err := p.Run(context.Background(), testImage(64, 64), runner)
	require.Error(t, err)
	assert.Equal(t, KindInference, KindOf(err))
	assert.Equal(t, p.Attempts, runner.callCount())
}

func TestRun_HangingAttemptTimesOut(t *testing.T) {
	p := testPipeline()
	p.Timeout = 30 * time.Millisecond
	p.Attempts = 2

	block := make(chan struct{})
	defer close(block)
	runner := &fakeRunner{block: block}

	start := time.Now()
	_, err := p.Run(context.Background(), testImage(64, 64), runner)
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
	// Two bounded attempts, not a hang.
	assert.Less(t, time.Since(start), time.Second)
}

func TestRun_CancelledContext(t *testing.T) {
	p := testPipeline()
	runner := &fakeRunner{pred: make([]float32, 5*8)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Run(ctx, testImage(64, 64), runner)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_NoFaces(t *testing.T) {
	p := testPipeline()
	runner := &fakeRunner{pred: make([]float32, 5*8)}

	boxes, err := p.Run(context.Background(), testImage(64, 64), runner)
	require.NoError(t, err)
	assert.Empty(t, boxes)
}

func TestRun_TwoSeparatedFaces(t *testing.T) {
	p := testPipeline()
	runner := &fakeRunner{
		pred: rawTensor(8,
			[5]float32{0.2, 0.2, 0.2, 0.2, 0.9},
			[5]float32{0.8, 0.8, 0.2, 0.2, 0.85},
		),
	}

	boxes, err := p.Run(context.Background(), testImage(640, 640), runner)
	require.NoError(t, err)
	assert.Len(t, boxes, 2)
}
