package camera

import (
	"image"
	"math/bits"

	"golang.org/x/image/draw"
)

const (
	hashWidth  = 9
	hashHeight = 8

	// dedupeThreshold is the maximum number of differing hash bits for
	// two frames to count as the same scene. Kept tight so any real
	// movement in front of the camera still gets processed.
	dedupeThreshold = 4
)

// frameHash computes a 64-bit difference hash of the frame. The image is
// reduced to a 9x8 grayscale thumbnail and each pixel is compared against
// its right neighbor, one bit per comparison.
func frameHash(img image.Image) uint64 {
	thumb := image.NewRGBA(image.Rect(0, 0, hashWidth, hashHeight))
	draw.BiLinear.Scale(thumb, thumb.Bounds(), img, img.Bounds(), draw.Over, nil)

	var hash uint64
	var bit uint
	for y := 0; y < hashHeight; y++ {
		for x := 0; x < hashWidth-1; x++ {
			if grayAt(thumb, x, y) > grayAt(thumb, x+1, y) {
				hash |= 1 << bit
			}
			bit++
		}
	}
	return hash
}

// grayAt returns the BT.601 luma of the pixel.
func grayAt(img image.Image, x, y int) float64 {
	r, g, b, _ := img.At(x, y).RGBA()
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}

func hammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// similarFrames reports whether two frame hashes differ by at most
// dedupeThreshold bits.
func similarFrames(a, b uint64) bool {
	return hammingDistance(a, b) <= dedupeThreshold
}
