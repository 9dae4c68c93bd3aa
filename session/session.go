// Package session holds the state of one preview: the loaded source image
// and the current transformation parameters. Every render is recomputed
// from the source.
package session

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"sync"

	"imgxform/transform"
)

const (
	DefaultMaxBytes  = 32 << 20
	DefaultMaxPixels = 64 << 20
)

var (
	ErrInvalidInputFile = errors.New("please select an image file")
	ErrDecode           = errors.New("could not decode image")
	ErrTooLarge         = errors.New("image file too large")
)

// Source is a decoded image. Its pixels are never modified once loaded.
type Source struct {
	Image  *image.NRGBA
	Format string
}

func (s *Source) Width() int {
	return s.Image.Rect.Dx()
}

func (s *Source) Height() int {
	return s.Image.Rect.Dy()
}

// Info describes the loaded source.
type Info struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
}

type Session struct {
	mu       sync.Mutex
	pipeline *transform.Pipeline
	logger   *slog.Logger
	source   *Source
	params   transform.Params

	// MaxBytes caps the size of an encoded upload.
	MaxBytes int64
	// MaxPixels caps width*height of a decoded upload.
	MaxPixels int64
}

func New(pipeline *transform.Pipeline, logger *slog.Logger) *Session {
	if pipeline == nil {
		pipeline = transform.NewPipeline()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		pipeline:  pipeline,
		logger:    logger,
		params:    transform.DefaultParams(),
		MaxBytes:  DefaultMaxBytes,
		MaxPixels: DefaultMaxPixels,
	}
}

// Load decodes an uploaded image and makes it the new source. Content that
// is not an image is rejected before decoding; an empty contentType is
// sniffed from the data. On any error the previous source is kept.
func (s *Session) Load(r io.Reader, contentType string) (Info, error) {
	limit := s.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}

	data, err := readAll(r, limit)
	if err != nil {
		return Info{}, err
	}

	if contentType == "" {
		contentType = sniff(data)
	}
	if !IsImageType(contentType) {
		s.logger.Warn("rejected upload", "contentType", contentType)
		return Info{}, fmt.Errorf("%w: got %s", ErrInvalidInputFile, contentType)
	}

	maxPixels := s.MaxPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	src, err := decode(data, maxPixels)
	if err != nil {
		return Info{}, err
	}

	s.mu.Lock()
	s.source = src
	s.mu.Unlock()

	info := Info{Width: src.Width(), Height: src.Height(), Format: src.Format}
	s.logger.Info("loaded image", "width", info.Width, "height", info.Height, "format", info.Format,
		"bytes", len(data))
	return info, nil
}

// LoadFile loads the image stored at path.
func (s *Session) LoadFile(path string) (Info, error) {
	if _, err := checkFile(path); err != nil {
		return Info{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("could not open image file %q: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			s.logger.Error("could not close image file", "name", path, "error", closeErr)
		}
	}()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Info{}, fmt.Errorf("could not read image file %q: %w", path, err)
	}
	head = head[:n]

	info, err := s.Load(io.MultiReader(bytes.NewReader(head), f), fileContentType(path, head))
	if err != nil {
		return Info{}, fmt.Errorf("could not load %q: %w", path, err)
	}
	return info, nil
}

// Loaded reports whether a source image is ready.
func (s *Session) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source != nil
}

func (s *Session) Info() (Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return Info{}, false
	}
	return Info{Width: s.source.Width(), Height: s.source.Height(), Format: s.source.Format}, true
}

func (s *Session) Params() transform.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// Update applies fn to a copy of the current parameters and stores the
// result if fn succeeds and the result is valid. The whole read-modify-write
// happens under the session lock, so concurrent partial updates never lose
// each other.
func (s *Session) Update(fn func(p *transform.Params) error) (transform.Params, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.params
	if err := fn(&p); err != nil {
		return s.params, err
	}
	if err := p.Validate(); err != nil {
		return s.params, err
	}
	s.params = p
	return p, nil
}

// SetParams replaces both parameters. Invalid values leave the current ones
// in place.
func (s *Session) SetParams(p transform.Params) error {
	_, err := s.Update(func(cur *transform.Params) error {
		*cur = p
		return nil
	})
	return err
}

func (s *Session) SetColorBits(bits int) error {
	_, err := s.Update(func(p *transform.Params) error {
		p.ColorBits = bits
		return nil
	})
	return err
}

// SetResolution sets the resolution ratio from a slider percentage.
func (s *Session) SetResolution(percent int) error {
	ratio, err := transform.RatioFromPercent(percent)
	if err != nil {
		return err
	}

	_, err = s.Update(func(p *transform.Params) error {
		p.Ratio = ratio
		return nil
	})
	return err
}

// Reset restores the default parameters.
func (s *Session) Reset() transform.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = transform.DefaultParams()
	return s.params
}

// Render runs the pipeline over the source with the current parameters.
// Without a source it does nothing and reports false.
func (s *Session) Render() (*image.NRGBA, bool, error) {
	res, ok, err := s.Run()
	if !ok || err != nil {
		return nil, ok, err
	}
	return res.Display, true, nil
}

// Run is Render keeping every intermediate stage.
func (s *Session) Run() (*transform.Result, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source == nil {
		return nil, false, nil
	}

	res, err := s.pipeline.Run(s.source.Image, s.params)
	if err != nil {
		return nil, true, fmt.Errorf("could not render: %w", err)
	}
	return res, true, nil
}

// Original returns the untouched source fitted to the display width.
func (s *Session) Original() (*image.NRGBA, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source == nil {
		return nil, false, nil
	}

	img, err := s.pipeline.Original(s.source.Image)
	if err != nil {
		return nil, true, fmt.Errorf("could not scale original: %w", err)
	}
	return img, true, nil
}
