// Package cluster collapses the many overlapping boxes a detector emits
// for one physical face into a single box per face. The neighborhood
// radius adapts to the median face size in the image instead of a fixed
// pixel threshold.
package cluster

import (
	"math"
	"sort"
)

const (
	// DefaultMinSize floors the adaptive cluster size so tiny median
	// faces do not collapse the radius to nothing.
	DefaultMinSize = 50.0
	// IouThreshold is the overlap above which a noise box is attached
	// to an existing cluster.
	IouThreshold = 0.45
)

const noiseID = -1

// Boxes deduplicates corner-format detection boxes into final face
// boxes. Density clustering runs with eps derived from the median box
// size; if every point comes back as noise the pass is retried once
// with a 1.5x wider radius. Leftover noise points either join a
// cluster they overlap with or stand alone.
func Boxes(boxes [][4]int32) [][4]int32 {
	if len(boxes) == 0 {
		return nil
	}

	points := make([][4]float64, len(boxes))
	for i, b := range boxes {
		points[i] = [4]float64{float64(b[0]), float64(b[1]), float64(b[2]), float64(b[3])}
	}

	eps := math.Max(medianSize(boxes), DefaultMinSize) * 0.5
	minPoints := 1
	if len(boxes) > 3 {
		minPoints = 2
	}

	ids := dbscan(points, eps, minPoints)
	if allNoise(ids) {
		// Faces far apart can leave no pair within eps. One widening
		// pass, not iterative escalation.
		ids = dbscan(points, eps*1.5, minPoints)
	}

	return assemble(boxes, ids)
}

// medianSize is the median of sqrt(w*h) across boxes, with NaN sorted
// greatest so a degenerate size cannot become the median by accident.
func medianSize(boxes [][4]int32) float64 {
	sizes := make([]float64, len(boxes))
	for i, b := range boxes {
		width := float64(b[2] - b[0])
		height := float64(b[3] - b[1])
		sizes[i] = math.Sqrt(width * height)
	}
	sort.Slice(sizes, func(i, j int) bool {
		a, b := sizes[i], sizes[j]
		switch {
		case math.IsNaN(a):
			return false
		case math.IsNaN(b):
			return true
		default:
			return a < b
		}
	})
	return sizes[len(sizes)/2]
}

// assemble groups clustered boxes, folds noise points in, merges each
// group to its union box, and falls back to the deduplicated input when
// grouping produced nothing at all.
func assemble(boxes [][4]int32, ids []int) [][4]int32 {
	groups := make(map[int][][4]int32)
	var final [][4]int32

	for i, id := range ids {
		if id != noiseID {
			groups[id] = append(groups[id], boxes[i])
			continue
		}
		merged := false
		for gid, members := range groups {
			if anyOverlaps(members, boxes[i]) {
				groups[gid] = append(members, boxes[i])
				merged = true
				break
			}
		}
		if !merged {
			final = append(final, boxes[i])
		}
	}

	for _, members := range groups {
		if len(members) > 0 {
			final = append(final, MergeBoxes(members))
		}
	}

	if len(final) == 0 {
		seen := make(map[[4]int32]struct{}, len(boxes))
		for _, b := range boxes {
			if _, ok := seen[b]; ok {
				continue
			}
			seen[b] = struct{}{}
			final = append(final, b)
		}
	}

	return final
}

func anyOverlaps(members [][4]int32, box [4]int32) bool {
	for _, m := range members {
		iou := IoU(box, m)
		if !math.IsInf(iou, 0) && !math.IsNaN(iou) && iou > IouThreshold {
			return true
		}
	}
	return false
}

// MergeBoxes returns the axis-aligned union of boxes: elementwise min
// of the top-left corners and max of the bottom-right corners. A union
// rather than an average, so an outlier member never shrinks coverage
// of the face.
func MergeBoxes(boxes [][4]int32) [4]int32 {
	if len(boxes) == 0 {
		return [4]int32{}
	}
	result := boxes[0]
	for _, b := range boxes[1:] {
		result[0] = min(result[0], b[0])
		result[1] = min(result[1], b[1])
		result[2] = max(result[2], b[2])
		result[3] = max(result[3], b[3])
	}
	return result
}

// IoU computes intersection-over-union of two corner-format boxes.
// Returns 0 when the boxes do not overlap on either axis.
func IoU(a, b [4]int32) float64 {
	x1 := math.Max(float64(a[0]), float64(b[0]))
	y1 := math.Max(float64(a[1]), float64(b[1]))
	x2 := math.Min(float64(a[2]), float64(b[2]))
	y2 := math.Min(float64(a[3]), float64(b[3]))

	if x2 <= x1 || y2 <= y1 {
		return 0.0
	}

	intersection := (x2 - x1) * (y2 - y1)
	area1 := float64(a[2]-a[0]) * float64(a[3]-a[1])
	area2 := float64(b[2]-b[0]) * float64(b[3]-b[1])
	union := area1 + area2 - intersection

	return intersection / union
}

func allNoise(ids []int) bool {
	for _, id := range ids {
		if id != noiseID {
			return false
		}
	}
	return true
}

// dbscan assigns each point a cluster id or noiseID. A point is core
// when at least minPoints other points lie within eps (Euclidean in
// 4-D corner space); points reachable from a core point join its
// cluster without expanding it further.
func dbscan(points [][4]float64, eps float64, minPoints int) []int {
	n := len(points)
	ids := make([]int, n)
	for i := range ids {
		ids[i] = noiseID
	}
	visited := make([]bool, n)

	current := 0
	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		visited[i] = true

		seeds := neighbors(points, i, eps)
		if len(seeds) < minPoints {
			continue
		}

		ids[i] = current
		for k := 0; k < len(seeds); k++ {
			j := seeds[k]
			if ids[j] == noiseID {
				ids[j] = current
			}
			if visited[j] {
				continue
			}
			visited[j] = true
			reach := neighbors(points, j, eps)
			if len(reach) >= minPoints {
				seeds = append(seeds, reach...)
			}
		}
		current++
	}

	return ids
}

// neighbors lists points other than idx within eps of it.
func neighbors(points [][4]float64, idx int, eps float64) []int {
	var out []int
	for i := range points {
		if i == idx {
			continue
		}
		if distance(points[idx], points[i]) <= eps {
			out = append(out, i)
		}
	}
	return out
}

func distance(a, b [4]float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
