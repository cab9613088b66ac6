// Package vision turns face images into feature vectors.
package vision

import (
	"image"
	"math"
)

// Extractor produces a fixed-length feature vector from a face crop. The
// same extractor must be used for registration and matching.
type Extractor interface {
	Name() string
	Dim() int
	Extract(face image.Image) ([]float32, error)
}

const (
	histSize  = 128
	histBins  = 64
	gridCells = 8
)

// HistogramExtractor builds a 128-value vector from an equalized grayscale
// crop: a normalized 64-bin intensity histogram followed by the mean
// brightness of an 8x8 grid. It needs no model files.
type HistogramExtractor struct{}

func NewHistogramExtractor() *HistogramExtractor { return &HistogramExtractor{} }

func (*HistogramExtractor) Name() string { return "histogram" }
func (*HistogramExtractor) Dim() int     { return histBins + gridCells*gridCells }

func (h *HistogramExtractor) Extract(face image.Image) ([]float32, error) {
	if face == nil || face.Bounds().Empty() {
		return nil, ErrEmptyRegion
	}
	gray := equalize(grayscale(resizeImage(face, histSize, histSize)))

	out := make([]float32, 0, h.Dim())

	var hist [histBins]float64
	for _, v := range gray {
		hist[int(v)*histBins/256]++
	}
	total := float64(len(gray))
	for _, c := range hist {
		out = append(out, float32(c/total))
	}

	cell := histSize / gridCells
	for gy := 0; gy < gridCells; gy++ {
		for gx := 0; gx < gridCells; gx++ {
			var sum float64
			for y := gy * cell; y < (gy+1)*cell; y++ {
				for x := gx * cell; x < (gx+1)*cell; x++ {
					sum += float64(gray[y*histSize+x])
				}
			}
			out = append(out, float32(sum/float64(cell*cell)/255))
		}
	}
	return out, nil
}

// grayscale uses BT.601 luma weights.
func grayscale(img *image.RGBA) []uint8 {
	b := img.Bounds()
	out := make([]uint8, 0, b.Dx()*b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			off := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			r, g, bl := float64(img.Pix[off]), float64(img.Pix[off+1]), float64(img.Pix[off+2])
			out = append(out, uint8(math.Round(0.299*r+0.587*g+0.114*bl)))
		}
	}
	return out
}

// equalize spreads the cumulative histogram over the full 0..255 range.
// A uniform image is returned unchanged.
func equalize(px []uint8) []uint8 {
	var hist [256]int
	for _, v := range px {
		hist[v]++
	}
	var cdf [256]int
	run, cdfMin := 0, 0
	for i, c := range hist {
		run += c
		cdf[i] = run
		if cdfMin == 0 && run > 0 {
			cdfMin = run
		}
	}
	total := len(px)
	if total == cdfMin {
		return px
	}

	var lut [256]uint8
	for i := range lut {
		v := math.Round(float64(cdf[i]-cdfMin) * 255 / float64(total-cdfMin))
		lut[i] = uint8(math.Max(0, math.Min(255, v)))
	}
	out := make([]uint8, len(px))
	for i, v := range px {
		out[i] = lut[v]
	}
	return out
}
