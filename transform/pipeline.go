// Package transform implements the preview pipeline: color depth
// quantization, resolution resampling and the final fit to the display
// width. Every stage allocates a new buffer; sources are never modified.
package transform

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
)

const DefaultDisplayWidth = 500

var ErrEmptyImage = errors.New("empty image")

// Pipeline holds the display settings shared by every render. It keeps no
// state between calls.
type Pipeline struct {
	DisplayWidth int
	Filter       Filter
	// Workers bounds the goroutines used for per-row work. Values below one
	// mean GOMAXPROCS.
	Workers int
	Logger  *slog.Logger
}

func NewPipeline() *Pipeline {
	return &Pipeline{
		DisplayWidth: DefaultDisplayWidth,
		Filter:       DefaultFilter,
		Workers:      1,
	}
}

// Result keeps the output of each stage of a render.
type Result struct {
	Params    Params
	Quantized *image.NRGBA
	Resampled *image.NRGBA
	Display   *image.NRGBA
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Pipeline) displayWidth() int {
	if p.DisplayWidth > 0 {
		return p.DisplayWidth
	}
	return DefaultDisplayWidth
}

// Run recomputes every stage from src.
func (p *Pipeline) Run(src *image.NRGBA, params Params) (*Result, error) {
	if src == nil || src.Rect.Empty() {
		return nil, ErrEmptyImage
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	q, err := NewQuantizer(params.ColorBits)
	if err != nil {
		return nil, err
	}

	res := &Result{Params: params}
	res.Quantized = q.Quantize(src, p.Workers)

	if res.Resampled, err = Resample(res.Quantized, params.Ratio); err != nil {
		return nil, fmt.Errorf("could not resample: %w", err)
	}

	if res.Display, err = ScaleToWidth(res.Resampled, p.displayWidth(), p.Filter); err != nil {
		return nil, fmt.Errorf("could not scale to display: %w", err)
	}

	p.logger().Debug("rendered",
		"colorBits", params.ColorBits, "levels", q.Levels(), "ratio", params.Ratio,
		"source", src.Rect.Size(), "resampled", res.Resampled.Rect.Size(), "display", res.Display.Rect.Size())
	return res, nil
}

// Render returns only the display buffer of Run.
func (p *Pipeline) Render(src *image.NRGBA, params Params) (*image.NRGBA, error) {
	res, err := p.Run(src, params)
	if err != nil {
		return nil, err
	}
	return res.Display, nil
}

// Original fits the untouched source to the display width.
func (p *Pipeline) Original(src *image.NRGBA) (*image.NRGBA, error) {
	if src == nil || src.Rect.Empty() {
		return nil, ErrEmptyImage
	}
	return ScaleToWidth(src, p.displayWidth(), p.Filter)
}
