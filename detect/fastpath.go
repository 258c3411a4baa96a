package detect

// normalizeRow converts one pixel row into the three channel slices.
// Rebound once at startup to the vectorized variant when the CPU
// supports it; both variants produce bit-identical output.
var normalizeRow = normalizeRowScalar
