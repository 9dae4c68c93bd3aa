package preview

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"imgxform/session"
	"imgxform/transform"
)

const shutdownTimeout = 5 * time.Second

type CLICmd struct {
	Listen      string   `help:"Address to serve the preview page on" default:"127.0.0.1:8080" env:"IMGXFORM_LISTEN"`
	Open        string   `help:"Image file to load at startup" type:"path"`
	MaxUpload   int64    `help:"Largest accepted image file in bytes" default:"33554432" env:"IMGXFORM_MAX_UPLOAD"`
	MaxPixels   int64    `help:"Largest accepted image in pixels (width*height)" default:"67108864" env:"IMGXFORM_MAX_PIXELS"`
	AllowOrigin []string `help:"Extra origins allowed to call the API from other pages" env:"IMGXFORM_ALLOW_ORIGIN"`
	ColorBits   int      `help:"Initial color depth in bits per pixel (3-24, step 3)" default:"24"`
	Res         int      `name:"resolution" help:"Initial resolution in percent (1-100)" default:"100"`
}

func (c *CLICmd) Validate(kctx *kong.Context) error {
	if c.Open != "" {
		path, err := session.ResolvePath(c.Open)
		if err != nil {
			return err
		}
		c.Open = path
	}

	if c.MaxUpload <= 0 {
		return fmt.Errorf("invalid upload limit: %d", c.MaxUpload)
	}
	if c.MaxPixels <= 0 {
		return fmt.Errorf("invalid pixel limit: %d", c.MaxPixels)
	}
	if err := transform.ValidateColorBits(c.ColorBits); err != nil {
		return err
	}
	if _, err := transform.RatioFromPercent(c.Res); err != nil {
		return err
	}
	return nil
}

func (c *CLICmd) Run(pipeline *transform.Pipeline, logger *slog.Logger) error {
	sess := session.New(pipeline, logger.With("component", "session"))
	sess.MaxBytes = c.MaxUpload
	sess.MaxPixels = c.MaxPixels

	if err := sess.SetColorBits(c.ColorBits); err != nil {
		return err
	}
	if err := sess.SetResolution(c.Res); err != nil {
		return err
	}

	if c.Open != "" {
		if _, err := sess.LoadFile(c.Open); err != nil {
			return err
		}
	}

	// Leave room for the multipart envelope around the file.
	srv := NewServer(sess, logger.With("component", "preview"), Options{
		BodyLimit:    int(c.MaxUpload) + (1 << 20),
		AllowOrigins: c.AllowOrigin,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Listen(c.Listen)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("preview server stopped: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down preview server")
	if err := srv.App().ShutdownWithTimeout(shutdownTimeout); err != nil {
		return fmt.Errorf("could not shut down preview server: %w", err)
	}
	if err := <-errc; err != nil {
		logger.Debug("listener closed", "error", err)
	}
	return nil
}
