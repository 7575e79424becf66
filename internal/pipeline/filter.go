package pipeline

import (
	"image"

	"github.com/anthonynsimon/bild/effect"
)

// Median applies a size×size median filter, removing isolated hot pixels.
// Sizes below 3 return img unchanged; even sizes are rounded up.
func Median(img image.Image, size int) image.Image {
	if img == nil || size < 3 {
		return img
	}
	if size%2 == 0 {
		size++
	}
	return effect.Median(img, float64(size-1)/2)
}
