package database

import "math"

// MaxDistance is returned for inputs that cannot be compared.
const MaxDistance = 4.0

// EuclideanDistance computes the L2 distance between two face encodings.
// dlib-style 128-dim encodings compare with Euclidean distance; the usual
// same-person threshold is 0.6.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return MaxDistance // incomparable input
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
