package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"imgxform/inspect"
	"imgxform/preview"
	"imgxform/transform"
)

type cli struct {
	LogLevel     string `help:"Log level" enum:"debug,info,warn,error" default:"info" env:"IMGXFORM_LOG_LEVEL"`
	LogFormat    string `help:"Log output format" enum:"text,json" default:"text" env:"IMGXFORM_LOG_FORMAT"`
	DisplayWidth int    `help:"Width all previews are scaled to" default:"500" env:"IMGXFORM_DISPLAY_WIDTH"`
	Filter       string `help:"Interpolation used to fit previews to the display width" enum:"bilinear,catmullrom,lanczos" default:"bilinear"`
	Workers      int    `help:"Goroutines used per render, 0 for one per CPU" default:"0"`

	Serve   preview.CLICmd `cmd:"" help:"Serve the interactive preview page"`
	Inspect inspect.CLICmd `cmd:"" help:"Render one image and log the size of each stage"`
}

func (c *cli) Validate() error {
	if c.DisplayWidth < 1 {
		return fmt.Errorf("invalid display width: %d", c.DisplayWidth)
	}
	if c.Workers < 0 {
		return fmt.Errorf("invalid number of workers: %d", c.Workers)
	}
	return nil
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("imgxform"),
		kong.Description("Preview color depth and resolution loss on an image."),
		kong.UsageOnError(),
	)

	logger, err := newLogger(c.LogLevel, c.LogFormat)
	kctx.FatalIfErrorf(err)
	slog.SetDefault(logger)

	filter, err := transform.ParseFilter(c.Filter)
	kctx.FatalIfErrorf(err)

	pipeline := &transform.Pipeline{
		DisplayWidth: c.DisplayWidth,
		Filter:       filter,
		Workers:      c.Workers,
		Logger:       logger.With("component", "pipeline"),
	}

	slog.Debug("running", "command", kctx.Command(), "displayWidth", c.DisplayWidth, "filter", filter)
	kctx.FatalIfErrorf(kctx.Run(pipeline, logger))
}
