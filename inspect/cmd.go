package inspect

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/alecthomas/kong"

	"imgxform/session"
	"imgxform/transform"
)

type CLICmd struct {
	File      string `arg:"" help:"Image file to inspect" type:"path"`
	ColorBits int    `help:"Color depth in bits per pixel (3-24, step 3)" default:"24"`
	Res       int    `name:"resolution" help:"Resolution in percent (1-100)" default:"100"`
}

func (c *CLICmd) Validate(kctx *kong.Context) error {
	path, err := session.ResolvePath(c.File)
	if err != nil {
		return err
	}
	c.File = path

	if err := transform.ValidateColorBits(c.ColorBits); err != nil {
		return err
	}
	if _, err := transform.RatioFromPercent(c.Res); err != nil {
		return err
	}
	return nil
}

// Stats summarizes one render.
type Stats struct {
	Source    image.Point
	Quantized image.Point
	Resampled image.Point
	Display   image.Point
	Levels    int
	Colors    int
}

func (c *CLICmd) Run(pipeline *transform.Pipeline, logger *slog.Logger) error {
	logger = logger.With("file", c.File)

	sess := session.New(pipeline, logger)
	if err := sess.SetColorBits(c.ColorBits); err != nil {
		return err
	}
	if err := sess.SetResolution(c.Res); err != nil {
		return err
	}

	stats, err := Inspect(sess, c.File)
	if err != nil {
		return err
	}

	logger.Info("stats",
		"source", stats.Source, "quantized", stats.Quantized, "resampled", stats.Resampled,
		"display", stats.Display, "levels", stats.Levels, "colors", stats.Colors)
	return nil
}

// Inspect loads path into sess and renders it with the session parameters.
func Inspect(sess *session.Session, path string) (Stats, error) {
	info, err := sess.LoadFile(path)
	if err != nil {
		return Stats{}, err
	}

	res, ok, err := sess.Run()
	if err != nil {
		return Stats{}, err
	} else if !ok {
		return Stats{}, fmt.Errorf("no image loaded from %q", path)
	}

	return Stats{
		Source:    image.Pt(info.Width, info.Height),
		Quantized: res.Quantized.Rect.Size(),
		Resampled: res.Resampled.Rect.Size(),
		Display:   res.Display.Rect.Size(),
		Levels:    transform.Levels(res.Params.ColorBits),
		Colors:    countColors(res.Quantized),
	}, nil
}

func countColors(img *image.NRGBA) int {
	colors := make(map[[3]uint8]struct{})
	w, h := img.Rect.Dx(), img.Rect.Dy()
	for y := range h {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for i := 0; i < len(row); i += 4 {
			colors[[3]uint8{row[i], row[i+1], row[i+2]}] = struct{}{}
		}
	}
	return len(colors)
}
