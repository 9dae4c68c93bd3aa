package transform

import (
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// ResampledSize returns the buffer size produced by resampling an image with
// bounds b by ratio. Neither side goes below one pixel.
func ResampledSize(b image.Rectangle, ratio float64) image.Point {
	return image.Pt(
		max(1, int(math.Round(float64(b.Dx())*ratio))),
		max(1, int(math.Round(float64(b.Dy())*ratio))),
	)
}

// Resample resizes src by ratio. A reduced resolution uses nearest-neighbor
// sampling so the lost detail shows as hard pixel blocks. The full ratio
// keeps the size, where smooth sampling is a plain copy.
func Resample(src *image.NRGBA, ratio float64) (*image.NRGBA, error) {
	if err := ValidateRatio(ratio); err != nil {
		return nil, err
	}

	sr := src.Bounds()
	size := ResampledSize(sr, ratio)
	if size == sr.Size() {
		return cloneNRGBA(src), nil
	}
	return nearestNeighbor(src, size), nil
}

// nearestNeighbor copies, for every destination pixel, the 4 bytes of the
// source pixel under its center. Working on Pix directly keeps straight
// alpha intact, so channel values stay exactly those of the source.
func nearestNeighbor(src *image.NRGBA, size image.Point) *image.NRGBA {
	sr := src.Bounds()
	sw, sh := sr.Dx(), sr.Dy()

	dst := image.NewNRGBA(image.Rectangle{Max: size})
	for dy := range size.Y {
		sy := (2*dy + 1) * sh / (2 * size.Y)
		row := dst.Pix[dy*dst.Stride : dy*dst.Stride+size.X*4]
		for dx := range size.X {
			sx := (2*dx + 1) * sw / (2 * size.X)
			si := src.PixOffset(sr.Min.X+sx, sr.Min.Y+sy)
			copy(row[dx*4:dx*4+4], src.Pix[si:si+4])
		}
	}
	return dst
}

// Filter names the smooth interpolation used to fit a buffer to the display
// width.
type Filter string

const (
	FilterBilinear   Filter = "bilinear"
	FilterCatmullRom Filter = "catmullrom"
	FilterLanczos    Filter = "lanczos"

	DefaultFilter = FilterBilinear
)

func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return DefaultFilter, nil
	case FilterBilinear, FilterCatmullRom, FilterLanczos:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported display filter: %q", s)
	}
}

func (f Filter) scale(src *image.NRGBA, size image.Point) *image.NRGBA {
	if f == FilterLanczos {
		return imaging.Resize(src, size.X, size.Y, imaging.Lanczos)
	}

	var interp draw.Interpolator = draw.BiLinear
	if f == FilterCatmullRom {
		interp = draw.CatmullRom
	}

	dst := image.NewNRGBA(image.Rectangle{Max: size})
	interp.Scale(dst, dst.Rect, src, src.Bounds(), draw.Src, nil)
	return dst
}

// DisplaySize returns the size of a buffer with bounds b once fitted to
// width, keeping its aspect ratio. The height is truncated, never below one.
func DisplaySize(b image.Rectangle, width int) image.Point {
	ratio := float64(b.Dx()) / float64(b.Dy())
	return image.Pt(width, max(1, int(float64(width)/ratio)))
}

// ScaleToWidth fits src to width with the given smooth filter, whatever
// sampling produced src.
func ScaleToWidth(src *image.NRGBA, width int, filter Filter) (*image.NRGBA, error) {
	if width < 1 {
		return nil, fmt.Errorf("invalid display width: %d", width)
	}
	if _, err := ParseFilter(string(filter)); err != nil {
		return nil, err
	}
	if filter == "" {
		filter = DefaultFilter
	}

	return filter.scale(src, DisplaySize(src.Bounds(), width)), nil
}
