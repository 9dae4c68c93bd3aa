package transform

import (
	"errors"
	"fmt"
	"math"
)

const (
	MinColorBits     = 3
	MaxColorBits     = 24
	ColorBitsStep    = 3
	DefaultColorBits = MaxColorBits

	MinPercent     = 1
	MaxPercent     = 100
	DefaultPercent = MaxPercent
	DefaultRatio   = 1.0
)

var (
	ErrInvalidColorBits = errors.New("invalid color bits")
	ErrInvalidRatio     = errors.New("invalid resolution ratio")
)

// Params are the two knobs of the preview: color depth in bits per pixel
// (split evenly over R, G and B) and the resolution ratio applied before
// display.
type Params struct {
	ColorBits int
	Ratio     float64
}

func DefaultParams() Params {
	return Params{
		ColorBits: DefaultColorBits,
		Ratio:     DefaultRatio,
	}
}

func (p Params) Validate() error {
	if err := ValidateColorBits(p.ColorBits); err != nil {
		return err
	}
	return ValidateRatio(p.Ratio)
}

// Percent returns the ratio as the integer percentage shown on the slider.
func (p Params) Percent() int {
	return int(math.Round(p.Ratio * 100))
}

// IsDefault reports whether p leaves the image untouched.
func (p Params) IsDefault() bool {
	return p.ColorBits == DefaultColorBits && p.Ratio == DefaultRatio
}

func ValidateColorBits(bits int) error {
	if bits < MinColorBits || bits > MaxColorBits || bits%ColorBitsStep != 0 {
		return fmt.Errorf("%w: %d, expected a multiple of %d in [%d, %d]",
			ErrInvalidColorBits, bits, ColorBitsStep, MinColorBits, MaxColorBits)
	}
	return nil
}

func ValidateRatio(ratio float64) error {
	if math.IsNaN(ratio) || ratio <= 0 || ratio > 1 {
		return fmt.Errorf("%w: %v, expected (0, 1]", ErrInvalidRatio, ratio)
	}
	return nil
}

// RatioFromPercent converts a slider percentage into a resolution ratio.
func RatioFromPercent(percent int) (float64, error) {
	if percent < MinPercent || percent > MaxPercent {
		return 0, fmt.Errorf("%w: %d%%, expected [%d, %d]", ErrInvalidRatio, percent, MinPercent, MaxPercent)
	}
	return float64(percent) / 100, nil
}

// Levels returns the number of values each color channel may take for the
// given color depth. Callers must validate bits first.
func Levels(bits int) int {
	return 1 << (bits / ColorBitsStep)
}
