//go:build !amd64

package detect

// On non-amd64 platforms the vectorized variant is the scalar loop, so
// equivalence tests compile everywhere.
func normalizeRowVector(dstR, dstG, dstB []float32, row []byte) {
	normalizeRowScalar(dstR, dstG, dstB, row)
}
