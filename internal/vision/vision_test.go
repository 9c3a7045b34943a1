package vision_test

import (
	"image"
	"image/color"
)

// gradient returns a w x h image whose brightness rises left to right, or
// right to left when reversed.
func gradient(w, h int, reversed bool) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(x * 255 / (w - 1))
			if reversed {
				v = 255 - v
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

// square returns a black 64x64 frame with a white 16x16 square at (x, y).
func square(x, y int) image.Image {
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for yy := y; yy < y+16; yy++ {
		for xx := x; xx < x+16; xx++ {
			img.SetGray(xx, yy, color.Gray{Y: 255})
		}
	}
	return img
}
