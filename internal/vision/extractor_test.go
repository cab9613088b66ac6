package vision

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/your-org/punchclock/internal/matcher"
)

func gradient(w, h int, shift uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x*255/w + int(shift)) % 256)
			img.Set(x, y, color.RGBA{R: v, G: v, B: uint8(y * 255 / h), A: 255})
		}
	}
	return img
}

func TestHistogramExtractorShape(t *testing.T) {
	ex := NewHistogramExtractor()
	vec, err := ex.Extract(gradient(200, 160, 0))
	gt.NoError(t, err)
	gt.Equal(t, len(vec), 128)
	gt.Equal(t, ex.Dim(), 128)

	var histSum float64
	for _, v := range vec[:histBins] {
		histSum += float64(v)
	}
	gt.True(t, math.Abs(histSum-1) < 1e-4)
	for _, v := range vec[histBins:] {
		gt.True(t, v >= 0 && v <= 1)
	}
}

func TestHistogramExtractorDeterministic(t *testing.T) {
	ex := NewHistogramExtractor()
	a, err := ex.Extract(gradient(128, 128, 0))
	gt.NoError(t, err)
	b, err := ex.Extract(gradient(128, 128, 0))
	gt.NoError(t, err)
	gt.Equal(t, matcher.EuclideanDistance(a, b), 0.0)

	c, err := ex.Extract(gradient(128, 128, 90))
	gt.NoError(t, err)
	gt.True(t, matcher.EuclideanDistance(a, c) > 0)
}

func TestHistogramExtractorUniformImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	vec, err := NewHistogramExtractor().Extract(img)
	gt.NoError(t, err)
	// a single populated bin
	var nonZero int
	for _, v := range vec[:histBins] {
		if v > 0 {
			nonZero++
		}
	}
	gt.Equal(t, nonZero, 1)
}

func TestHistogramExtractorEmpty(t *testing.T) {
	_, err := NewHistogramExtractor().Extract(image.NewRGBA(image.Rect(0, 0, 0, 0)))
	gt.Error(t, err)
	_, err = NewHistogramExtractor().Extract(nil)
	gt.Error(t, err)
}

func TestEqualize(t *testing.T) {
	out := equalize([]uint8{10, 10, 20, 30})
	gt.Equal(t, out, []uint8{0, 0, 128, 255})

	same := []uint8{7, 7, 7}
	gt.Equal(t, equalize(same), same)
}

func TestDecodeAndCrop(t *testing.T) {
	var buf bytes.Buffer
	gt.NoError(t, png.Encode(&buf, gradient(100, 80, 0)))

	img, err := Decode(buf.Bytes())
	gt.NoError(t, err)
	gt.Equal(t, img.Bounds().Dx(), 100)

	face, err := Crop(img, Box{X: 90, Y: 10, W: 40, H: 20})
	gt.NoError(t, err)
	gt.Equal(t, face.Bounds().Dx(), 10) // clamped at the right edge
	gt.Equal(t, face.Bounds().Dy(), 20)

	_, err = Crop(img, Box{X: 200, Y: 200, W: 10, H: 10})
	gt.Error(t, err)

	_, err = Decode([]byte("not an image"))
	gt.Error(t, err)
}

func TestImageToFloat32CHW(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 255, 0, 128, 255
	}
	data := imageToFloat32CHW(img, 2, 2, [3]float32{127.5, 127.5, 127.5}, [3]float32{127.5, 127.5, 127.5})
	gt.Equal(t, len(data), 12)
	gt.True(t, math.Abs(float64(data[0]-1)) < 1e-6)
	gt.True(t, math.Abs(float64(data[4]+1)) < 1e-6)
}
