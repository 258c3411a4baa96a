//go:build amd64

package detect

import "golang.org/x/sys/cpu"

func init() {
	if cpu.X86.HasAVX2 || cpu.X86.HasSSE41 {
		normalizeRow = normalizeRowVector
	}
}

// normalizeRowVector processes 8 pixels per iteration. The loop body is
// straight-line loads and divisions over a fixed-stride row, which the
// compiler turns into packed converts on SSE4.1/AVX2 hardware. The
// remainder falls through to the scalar loop.
func normalizeRowVector(dstR, dstG, dstB []float32, row []byte) {
	width := len(dstR)
	x := 0
	for ; x+8 <= width; x += 8 {
		r := row[x*4 : x*4+32 : x*4+32]
		dr := dstR[x : x+8 : x+8]
		dg := dstG[x : x+8 : x+8]
		db := dstB[x : x+8 : x+8]

		dr[0], dg[0], db[0] = float32(r[0])/255.0, float32(r[1])/255.0, float32(r[2])/255.0
		dr[1], dg[1], db[1] = float32(r[4])/255.0, float32(r[5])/255.0, float32(r[6])/255.0
		dr[2], dg[2], db[2] = float32(r[8])/255.0, float32(r[9])/255.0, float32(r[10])/255.0
		dr[3], dg[3], db[3] = float32(r[12])/255.0, float32(r[13])/255.0, float32(r[14])/255.0
		dr[4], dg[4], db[4] = float32(r[16])/255.0, float32(r[17])/255.0, float32(r[18])/255.0
		dr[5], dg[5], db[5] = float32(r[20])/255.0, float32(r[21])/255.0, float32(r[22])/255.0
		dr[6], dg[6], db[6] = float32(r[24])/255.0, float32(r[25])/255.0, float32(r[26])/255.0
		dr[7], dg[7], db[7] = float32(r[28])/255.0, float32(r[29])/255.0, float32(r[30])/255.0
	}
	for ; x < width; x++ {
		dstR[x] = float32(row[x*4]) / 255.0
		dstG[x] = float32(row[x*4+1]) / 255.0
		dstB[x] = float32(row[x*4+2]) / 255.0
	}
}
