package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoxes_Empty(t *testing.T) {
	assert.Empty(t, Boxes(nil))
	assert.Empty(t, Boxes([][4]int32{}))
}

func TestBoxes_SingleDetectionUnchanged(t *testing.T) {
	in := [][4]int32{{10, 20, 110, 140}}
	out := Boxes(in)
	assert.Equal(t, [][4]int32{{10, 20, 110, 140}}, out)
}

func TestBoxes_OverlappingPairMergesToUnion(t *testing.T) {
	// IoU 0.68, corner distance 20 against eps 50: one cluster.
	in := [][4]int32{
		{0, 0, 100, 100},
		{10, 10, 110, 110},
	}
	out := Boxes(in)
	assert.Len(t, out, 1)
	assert.Equal(t, [4]int32{0, 0, 110, 110}, out[0])
}

func TestBoxes_DistantPairStaysSeparate(t *testing.T) {
	in := [][4]int32{
		{0, 0, 50, 50},
		{500, 500, 560, 560},
	}
	out := Boxes(in)
	assert.Len(t, out, 2)
	assert.ElementsMatch(t, [][4]int32{{0, 0, 50, 50}, {500, 500, 560, 560}}, out)
}

func TestBoxes_AllNoiseWidensRadiusOnce(t *testing.T) {
	// Corner distance ~56.6 misses eps 50 but lands inside 75 after
	// the single widening pass, so the pair still merges.
	in := [][4]int32{
		{0, 0, 100, 100},
		{40, 0, 140, 100},
	}
	out := Boxes(in)
	assert.Len(t, out, 1)
	assert.Equal(t, [4]int32{0, 0, 140, 100}, out[0])
}

func TestBoxes_NoiseAttachesToOverlappingCluster(t *testing.T) {
	// A and B cluster; C is outside eps of both (distance ~523 vs eps
	// 500) but overlaps A with IoU ~0.46, so it joins their group.
	in := [][4]int32{
		{0, 0, 1000, 1000},
		{5, 5, 1005, 1005},
		{370, 0, 1370, 1000},
	}
	out := Boxes(in)
	assert.Len(t, out, 1)
	assert.Equal(t, [4]int32{0, 0, 1370, 1005}, out[0])
}

func TestBoxes_ThreeFacesThreeBoxes(t *testing.T) {
	// Three tight stacks of detections, one per face.
	in := [][4]int32{
		{100, 100, 200, 200},
		{102, 98, 203, 201},
		{98, 103, 199, 202},
		{600, 100, 700, 200},
		{601, 101, 702, 199},
		{599, 99, 701, 198},
		{100, 600, 200, 700},
		{99, 598, 201, 703},
		{101, 601, 199, 699},
	}
	out := Boxes(in)
	assert.Len(t, out, 3)
}

func TestMergeBoxes(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, [4]int32{}, MergeBoxes(nil))
	})
	t.Run("union", func(t *testing.T) {
		got := MergeBoxes([][4]int32{
			{10, 20, 100, 200},
			{5, 30, 120, 150},
			{15, 10, 90, 220},
		})
		assert.Equal(t, [4]int32{5, 10, 120, 220}, got)
	})
}

func TestIoU(t *testing.T) {
	t.Run("identical", func(t *testing.T) {
		assert.InDelta(t, 1.0, IoU([4]int32{0, 0, 10, 10}, [4]int32{0, 0, 10, 10}), 1e-9)
	})
	t.Run("disjoint", func(t *testing.T) {
		assert.Equal(t, 0.0, IoU([4]int32{0, 0, 10, 10}, [4]int32{20, 20, 30, 30}))
	})
	t.Run("touching edges", func(t *testing.T) {
		assert.Equal(t, 0.0, IoU([4]int32{0, 0, 10, 10}, [4]int32{10, 0, 20, 10}))
	})
	t.Run("half overlap", func(t *testing.T) {
		// 5x10 intersection over 10x10 + 10x10 - 50 union.
		assert.InDelta(t, 50.0/150.0, IoU([4]int32{0, 0, 10, 10}, [4]int32{5, 0, 15, 10}), 1e-9)
	})
}

func TestMedianSizeOddAndEven(t *testing.T) {
	odd := [][4]int32{
		{0, 0, 10, 10},
		{0, 0, 20, 20},
		{0, 0, 30, 30},
	}
	assert.InDelta(t, 20.0, medianSize(odd), 1e-9)

	even := [][4]int32{
		{0, 0, 10, 10},
		{0, 0, 20, 20},
	}
	// Upper median for even counts.
	assert.InDelta(t, 20.0, medianSize(even), 1e-9)
}
