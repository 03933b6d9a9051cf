package recognize

import (
	"image"

	"golang.org/x/image/draw"
)

// downscale shrinks the image so its longest edge is at most maxEdge,
// keeping the aspect ratio. It returns the scaled image and the factor
// that maps coordinates in it back to the original frame. Images already
// small enough pass through untouched with factor 1.
func downscale(img image.Image, maxEdge int) (image.Image, float64) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if maxEdge <= 0 || (width <= maxEdge && height <= maxEdge) {
		return img, 1
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxEdge
		newHeight = height * maxEdge / width
	} else {
		newHeight = maxEdge
		newWidth = width * maxEdge / height
	}
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
	return resized, float64(width) / float64(newWidth)
}
