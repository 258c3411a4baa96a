package detect

import (
	"context"
	"image"
	"time"

	"FaceValServer/cluster"
	"FaceValServer/engine"
	"FaceValServer/logger"
	"FaceValServer/pool"

	"go.uber.org/zap"
)

// Pipeline runs the preprocess -> infer -> decode -> cluster chain for
// one image under a hard wall-clock timeout, retrying transient
// failures with a linearly increasing delay.
type Pipeline struct {
	InputWidth    int
	InputHeight   int
	Candidates    int
	ConfThreshold float32

	Timeout  time.Duration
	Attempts int
	Backoff  time.Duration

	Buffers *pool.BufferPool
}

// New returns a Pipeline with the default tunables bound to buffers.
func New(buffers *pool.BufferPool) *Pipeline {
	return &Pipeline{
		InputWidth:    InputWidth,
		InputHeight:   InputHeight,
		Candidates:    Candidates,
		ConfThreshold: ConfThreshold,
		Timeout:       ProcessingTimeout,
		Attempts:      RetryAttempts,
		Backoff:       RetryDelay,
		Buffers:       buffers,
	}
}

type attemptResult struct {
	boxes [][4]int32
	err   error
}

// Run executes the chain for img against sess. Each attempt runs on its
// own goroutine so a hang inside the chain cannot block timeout
// detection; a timed-out attempt is abandoned and counted as a
// retryable failure. Exhausting the attempt bound returns the last
// observed error. Failed processing always surfaces an error, never an
// empty box list.
func (p *Pipeline) Run(ctx context.Context, img image.Image, sess engine.Runner) ([][4]int32, error) {
	var lastErr error

	for attempt := 1; attempt <= p.Attempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		done := make(chan attemptResult, 1)
		go func() {
			boxes, err := p.process(img, sess)
			done <- attemptResult{boxes: boxes, err: err}
		}()

		timer := time.NewTimer(p.Timeout)
		select {
		case res := <-done:
			timer.Stop()
			if res.err == nil {
				return res.boxes, nil
			}
			lastErr = res.err
			logger.Log().Warn("processing attempt failed",
				zap.Int("attempt", attempt),
				zap.String("kind", KindOf(res.err).String()),
				zap.Error(res.err))
		case <-timer.C:
			lastErr = ErrTimeout
			logger.Log().Warn("processing attempt timed out", zap.Int("attempt", attempt))
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}

		if attempt < p.Attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * p.Backoff):
			}
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, internalErr("processing failed with no recorded error", nil)
}

// process is one synchronous pass over the chain.
func (p *Pipeline) process(img image.Image, sess engine.Runner) ([][4]int32, error) {
	input, err := Prepare(img, p.InputWidth, p.InputHeight, p.Buffers)
	if err != nil {
		return nil, err
	}

	raw, err := sess.Run(input)
	p.Buffers.Release(len(input), input)
	if err != nil {
		return nil, inferenceErr(err)
	}

	detections, err := Decode(raw, p.Candidates, p.ConfThreshold,
		p.InputWidth, p.InputHeight, img.Bounds().Dx(), img.Bounds().Dy())
	if err != nil {
		return nil, err
	}

	boxes := make([][4]int32, len(detections))
	for i, det := range detections {
		boxes[i] = det.BBox
	}
	return cluster.Boxes(boxes), nil
}
