package detect

import (
	"math"
	"runtime"
	"sort"
	"sync"
)

// Detection is one candidate face box in original-image pixel
// coordinates, corner format, clamped to the image bounds.
type Detection struct {
	BBox       [4]int32
	Confidence float32
}

// Decode turns the engine's raw (1,5,candidates) output into candidate
// detections for an origWidth x origHeight image. Columns of the
// logical (candidates,5) view are x_center, y_center, width, height,
// confidence, all normalized to the model input resolution. Rows below
// the confidence threshold are dropped; the rest are converted to
// corner boxes, scaled per axis, and sorted confidence-descending
// (equal scores in unspecified order).
func Decode(predictions []float32, candidates int, threshold float32, inputWidth, inputHeight, origWidth, origHeight int) ([]Detection, error) {
	if len(predictions) != 5*candidates {
		return nil, internalErr("unexpected prediction tensor length", nil)
	}

	const chunkSize = 512
	numWorkers := runtime.NumCPU()
	jobs := make(chan int, numWorkers)
	results := make(chan []Detection, numWorkers)

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]Detection, 0, 64)
			for start := range jobs {
				end := start + chunkSize
				if end > candidates {
					end = candidates
				}
				for i := start; i < end; i++ {
					confidence := predictions[4*candidates+i]
					if confidence < threshold {
						continue
					}
					bbox := calculateBBox(
						predictions[i],
						predictions[candidates+i],
						predictions[2*candidates+i],
						predictions[3*candidates+i],
						inputWidth, inputHeight,
						origWidth, origHeight,
					)
					local = append(local, Detection{BBox: bbox, Confidence: confidence})
				}
			}
			if len(local) > 0 {
				results <- local
			}
		}()
	}

	go func() {
		for i := 0; i < candidates; i += chunkSize {
			jobs <- i
		}
		close(jobs)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	detections := make([]Detection, 0, 100)
	for chunk := range results {
		detections = append(detections, chunk...)
	}

	if len(detections) > 0 {
		sort.Slice(detections, func(i, j int) bool {
			return detections[i].Confidence > detections[j].Confidence
		})
	}
	return detections, nil
}

// calculateBBox converts a normalized center/size row into corner
// coordinates at input resolution, scales each axis independently to
// the original image, and clamps to its bounds.
func calculateBBox(cx, cy, w, h float32, inputWidth, inputHeight, origWidth, origHeight int) [4]int32 {
	absCX := float64(cx) * float64(inputWidth)
	absCY := float64(cy) * float64(inputHeight)
	absW := float64(w) * float64(inputWidth)
	absH := float64(h) * float64(inputHeight)

	x1 := math.Round(absCX - absW/2)
	y1 := math.Round(absCY - absH/2)
	x2 := math.Round(absCX + absW/2)
	y2 := math.Round(absCY + absH/2)

	scaleX := float64(origWidth) / float64(inputWidth)
	scaleY := float64(origHeight) / float64(inputHeight)

	return [4]int32{
		clamp(math.Round(x1*scaleX), 0, float64(origWidth)),
		clamp(math.Round(y1*scaleY), 0, float64(origHeight)),
		clamp(math.Round(x2*scaleX), 0, float64(origWidth)),
		clamp(math.Round(y2*scaleY), 0, float64(origHeight)),
	}
}

func clamp(v, lo, hi float64) int32 {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return int32(v)
}
