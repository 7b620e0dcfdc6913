package world

import "math"

// GeoPos is a flat 3D coordinate in centimetres. Spec.md's source mixes
// "great-circle" naming with 3D Euclidean distance; this normalizes to plain
// Euclidean distance in a flat cm space (§9 Open Questions).
type GeoPos struct {
	XCm int64 `cbor:"x_cm"`
	YCm int64 `cbor:"y_cm"`
	ZCm int64 `cbor:"z_cm"`
}

// DistanceCm returns the Euclidean distance between two positions in
// centimetres, rounded to the nearest integer.
func (p GeoPos) DistanceCm(other GeoPos) int64 {
	dx := float64(p.XCm - other.XCm)
	dy := float64(p.YCm - other.YCm)
	dz := float64(p.ZCm - other.ZCm)
	d := math.Sqrt(dx*dx + dy*dy + dz*dz)
	return int64(math.Round(d))
}

// ChunkCoord identifies a chunk in the 3D chunk grid.
type ChunkCoord struct {
	X int32 `cbor:"x"`
	Y int32 `cbor:"y"`
	Z int32 `cbor:"z"`
}
