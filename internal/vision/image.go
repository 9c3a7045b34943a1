package vision

import (
	"bytes"
	"image"
	"image/jpeg"

	"github.com/nfnt/resize"
)

// toCHW resizes img to w x h and lays it out as normalized float32 planes,
// pixel = (pixel - mean) / std.
func toCHW(img image.Image, w, h int, mean, std float32) []float32 {
	resized := resize.Resize(uint(w), uint(h), img, resize.Bilinear)
	b := resized.Bounds()
	plane := w * h
	data := make([]float32, 3*plane)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := resized.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := y*w + x
			data[i] = (float32(r>>8) - mean) / std
			data[plane+i] = (float32(g>>8) - mean) / std
			data[2*plane+i] = (float32(bl>>8) - mean) / std
		}
	}
	return data
}

// cropPadded cuts bbox out of img with 10% padding on each side, clamped to
// the image. It returns nil for an empty box.
func cropPadded(img image.Image, bbox [4]float32) image.Image {
	b := img.Bounds()
	r := image.Rect(int(bbox[0]), int(bbox[1]), int(bbox[2]), int(bbox[3])).Intersect(b)
	if r.Empty() {
		return nil
	}
	padW, padH := r.Dx()/10, r.Dy()/10
	r = image.Rect(r.Min.X-padW, r.Min.Y-padH, r.Max.X+padW, r.Max.Y+padH).Intersect(b)

	crop := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			crop.Set(x-r.Min.X, y-r.Min.Y, img.At(x, y))
		}
	}
	return crop
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeThumbnail renders a frame as JPEG for audit storage.
func EncodeThumbnail(img image.Image) ([]byte, error) {
	return encodeJPEG(img, 80)
}
