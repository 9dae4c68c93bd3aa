package transform

import (
	"image"
	"math"

	"imgxform/parallel"
)

// Quantizer snaps the R, G and B channels of a pixel buffer to a reduced
// number of evenly spaced levels. Alpha is left alone.
type Quantizer struct {
	bits   int
	levels int
	lut    [256]uint8
}

func NewQuantizer(bits int) (*Quantizer, error) {
	if err := ValidateColorBits(bits); err != nil {
		return nil, err
	}

	q := &Quantizer{
		bits:   bits,
		levels: Levels(bits),
	}

	// levels >= 2 for any valid depth, so step is never zero.
	step := float64(q.levels - 1)
	for v := range q.lut {
		index := math.Round(float64(v) / 255 * step)
		q.lut[v] = uint8(math.Round(index * (255 / step)))
	}
	return q, nil
}

func (q *Quantizer) Bits() int {
	return q.bits
}

func (q *Quantizer) Levels() int {
	return q.levels
}

// Identity reports whether the quantizer leaves channel values unchanged.
// Full 24 bit depth is declared a no-op rather than derived from the table.
func (q *Quantizer) Identity() bool {
	return q.bits == MaxColorBits
}

// Value returns the quantized value of a single channel value.
func (q *Quantizer) Value(v uint8) uint8 {
	if q.Identity() {
		return v
	}
	return q.lut[v]
}

// Quantize returns a new buffer with the same bounds as src. src is never
// modified.
func (q *Quantizer) Quantize(src *image.NRGBA, workers int) *image.NRGBA {
	dst := cloneNRGBA(src)
	if q.Identity() {
		return dst
	}

	w, h := dst.Rect.Dx(), dst.Rect.Dy()
	parallel.Rows(workers, h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			row := dst.Pix[y*dst.Stride : y*dst.Stride+w*4]
			for i := 0; i < len(row); i += 4 {
				row[i+0] = q.lut[row[i+0]]
				row[i+1] = q.lut[row[i+1]]
				row[i+2] = q.lut[row[i+2]]
			}
		}
	})
	return dst
}

// cloneNRGBA copies src into a fresh buffer anchored at the origin.
func cloneNRGBA(src *image.NRGBA) *image.NRGBA {
	r := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	n := r.Dx() * 4
	for y := 0; y < r.Dy(); y++ {
		si := src.PixOffset(r.Min.X, r.Min.Y+y)
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+n], src.Pix[si:si+n])
	}
	return dst
}
