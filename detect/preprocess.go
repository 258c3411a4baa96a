package detect

import (
	"image"
	"runtime"
	"sync"

	"FaceValServer/pool"

	"github.com/disintegration/imaging"
)

// Prepare resizes img to width x height and fills a channel-major
// normalized tensor: for each of R, G, B, every pixel in row-major
// order as value/255. The buffer comes from buffers keyed by element
// count; the caller owns it until it releases it back.
func Prepare(img image.Image, width, height int, buffers *pool.BufferPool) ([]float32, error) {
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, imageLoadErr("image has zero-sized dimensions", nil)
	}

	resized := imaging.Resize(img, width, height, imaging.Linear)

	size := width * height * 3
	buf := buffers.Acquire(size)
	normalize(resized, buf, width, height)
	return buf, nil
}

// normalize fills buf from resized pixel data, splitting rows across
// workers. Row output slices are disjoint, so no synchronization beyond
// the join is needed.
func normalize(resized *image.NRGBA, buf []float32, width, height int) {
	channelSize := width * height
	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > height {
		numWorkers = height
	}
	rowsPerWorker := height / numWorkers

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		startRow := w * rowsPerWorker
		endRow := startRow + rowsPerWorker
		if w == numWorkers-1 {
			endRow = height
		}
		go func(start, end int) {
			defer wg.Done()
			for y := start; y < end; y++ {
				row := resized.Pix[y*resized.Stride : y*resized.Stride+width*4]
				offset := y * width
				normalizeRow(
					buf[offset:offset+width],
					buf[channelSize+offset:channelSize+offset+width],
					buf[2*channelSize+offset:2*channelSize+offset+width],
					row,
				)
			}
		}(startRow, endRow)
	}
	wg.Wait()
}

// normalizeRowScalar is the reference conversion of one NRGBA pixel row
// into three channel slices. Straight division by 255, no fused
// rounding, so the vector path can be held to bit-identical output.
func normalizeRowScalar(dstR, dstG, dstB []float32, row []byte) {
	for x := 0; x < len(dstR); x++ {
		dstR[x] = float32(row[x*4]) / 255.0
		dstG[x] = float32(row[x*4+1]) / 255.0
		dstB[x] = float32(row[x*4+2]) / 255.0
	}
}
