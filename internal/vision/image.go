package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var ErrEmptyRegion = errors.New("face region is empty")

// Box is a face bounding box in source pixel coordinates.
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Decode reads a JPEG, PNG or WebP image.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Crop cuts box out of img, clamped to the image bounds.
func Crop(img image.Image, box Box) (image.Image, error) {
	b := img.Bounds()
	r := image.Rect(b.Min.X+box.X, b.Min.Y+box.Y, b.Min.X+box.X+box.W, b.Min.Y+box.Y+box.H).Intersect(b)
	if r.Empty() {
		return nil, ErrEmptyRegion
	}

	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst, nil
}

func resizeImage(img image.Image, targetW, targetH int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// imageToFloat32CHW converts an image to CHW float32 format with normalization:
//
//	pixel = (pixel - mean) / std
func imageToFloat32CHW(img image.Image, targetW, targetH int, mean, std [3]float32) []float32 {
	resized := resizeImage(img, targetW, targetH)
	w, h := targetW, targetH
	data := make([]float32, 3*h*w)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := resized.PixOffset(x, y)
			idx := y*w + x
			data[0*h*w+idx] = (float32(resized.Pix[off]) - mean[0]) / std[0]
			data[1*h*w+idx] = (float32(resized.Pix[off+1]) - mean[1]) / std[1]
			data[2*h*w+idx] = (float32(resized.Pix[off+2]) - mean[2]) / std[2]
		}
	}
	return data
}
