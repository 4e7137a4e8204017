package recognition

import (
	"bytes"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// SampleSize is the side of the square gray crops used for enrollment and
// recognition.
const SampleSize = 200

// JPEGQuality is used for crops handed to dlib and written to disk.
const JPEGQuality = 92

// FaceCrop cuts box out of frame, converts it to gray and scales it to
// SampleSize x SampleSize. It returns nil if box does not overlap frame.
func FaceCrop(frame image.Image, box image.Rectangle) *image.Gray {
	if frame == nil {
		return nil
	}
	box = box.Intersect(frame.Bounds())
	if box.Empty() {
		return nil
	}
	dst := image.NewGray(image.Rect(0, 0, SampleSize, SampleSize))
	draw.BiLinear.Scale(dst, dst.Bounds(), frame, box, draw.Src, nil)
	return dst
}

// EncodeJPEG encodes img for go-face and for storage.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
