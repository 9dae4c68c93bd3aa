package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgxform/transform"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y * 5), B: uint8(x ^ y), A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestIsImageType(t *testing.T) {
	assert.True(t, IsImageType("image/png"))
	assert.True(t, IsImageType("IMAGE/JPEG"))
	assert.True(t, IsImageType("image/webp; q=1"))
	assert.False(t, IsImageType("text/plain; charset=utf-8"))
	assert.False(t, IsImageType("application/octet-stream"))
	assert.False(t, IsImageType(""))
}

func TestRenderWithoutSourceIsNoop(t *testing.T) {
	s := New(nil, nil)
	assert.False(t, s.Loaded())

	img, ok, err := s.Render()
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, img)

	img, ok, err = s.Original()
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, img)

	_, ok = s.Info()
	assert.False(t, ok)
}

func TestLoadAndRender(t *testing.T) {
	s := New(nil, nil)

	info, err := s.Load(bytes.NewReader(encodePNG(t, 100, 50)), "image/png")
	require.NoError(t, err)
	assert.Equal(t, Info{Width: 100, Height: 50, Format: "png"}, info)
	assert.True(t, s.Loaded())

	img, ok, err := s.Render()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, image.Pt(transform.DefaultDisplayWidth, 250), img.Rect.Size())
}

func TestLoadSniffsContentType(t *testing.T) {
	s := New(nil, nil)
	info, err := s.Load(bytes.NewReader(encodePNG(t, 8, 8)), "")
	require.NoError(t, err)
	assert.Equal(t, "png", info.Format)
}

func TestLoadRejectsNonImage(t *testing.T) {
	s := New(nil, nil)
	_, err := s.Load(bytes.NewReader(encodePNG(t, 10, 10)), "image/png")
	require.NoError(t, err)

	_, err = s.Load(strings.NewReader("just some text"), "text/plain")
	assert.ErrorIs(t, err, ErrInvalidInputFile)

	_, err = s.Load(strings.NewReader("just some text"), "")
	assert.ErrorIs(t, err, ErrInvalidInputFile)

	info, ok := s.Info()
	require.True(t, ok)
	assert.Equal(t, 10, info.Width)
}

func TestLoadDecodeError(t *testing.T) {
	s := New(nil, nil)
	_, err := s.Load(strings.NewReader("not really a png"), "image/png")
	assert.ErrorIs(t, err, ErrDecode)
	assert.False(t, s.Loaded())
}

func TestLoadTooLarge(t *testing.T) {
	s := New(nil, nil)
	s.MaxBytes = 16
	_, err := s.Load(bytes.NewReader(encodePNG(t, 10, 10)), "image/png")
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestParams(t *testing.T) {
	s := New(nil, nil)
	assert.Equal(t, transform.DefaultParams(), s.Params())

	require.NoError(t, s.SetColorBits(9))
	require.NoError(t, s.SetResolution(50))
	assert.Equal(t, transform.Params{ColorBits: 9, Ratio: 0.5}, s.Params())

	assert.ErrorIs(t, s.SetColorBits(7), transform.ErrInvalidColorBits)
	assert.ErrorIs(t, s.SetResolution(0), transform.ErrInvalidRatio)
	assert.ErrorIs(t, s.SetParams(transform.Params{ColorBits: 30, Ratio: 1}), transform.ErrInvalidColorBits)
	assert.Equal(t, transform.Params{ColorBits: 9, Ratio: 0.5}, s.Params())

	assert.Equal(t, transform.DefaultParams(), s.Reset())
	assert.Equal(t, transform.DefaultParams(), s.Params())
}

func TestParamsSurviveNewUpload(t *testing.T) {
	s := New(nil, nil)
	require.NoError(t, s.SetParams(transform.Params{ColorBits: 6, Ratio: 0.25}))

	_, err := s.Load(bytes.NewReader(encodePNG(t, 40, 40)), "image/png")
	require.NoError(t, err)
	_, err = s.Load(bytes.NewReader(encodePNG(t, 80, 20)), "image/png")
	require.NoError(t, err)

	assert.Equal(t, transform.Params{ColorBits: 6, Ratio: 0.25}, s.Params())

	res, ok, err := s.Run()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, image.Pt(20, 5), res.Resampled.Rect.Size())
}

func TestResetRendersLikeInitial(t *testing.T) {
	s := New(nil, nil)
	_, err := s.Load(bytes.NewReader(encodePNG(t, 120, 90)), "image/png")
	require.NoError(t, err)

	initial, ok, err := s.Render()
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.SetColorBits(3))
	require.NoError(t, s.SetResolution(7))
	changed, _, err := s.Render()
	require.NoError(t, err)
	assert.NotEqual(t, initial.Pix, changed.Pix)

	s.Reset()
	again, _, err := s.Render()
	require.NoError(t, err)
	assert.Equal(t, initial.Pix, again.Pix)
}

func TestRenderKeepsSource(t *testing.T) {
	s := New(nil, nil)
	_, err := s.Load(bytes.NewReader(encodePNG(t, 30, 30)), "image/png")
	require.NoError(t, err)

	before := append([]uint8(nil), s.source.Image.Pix...)
	require.NoError(t, s.SetParams(transform.Params{ColorBits: 3, Ratio: 0.1}))
	_, _, err = s.Render()
	require.NoError(t, err)
	assert.Equal(t, before, s.source.Image.Pix)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	imgPath := filepath.Join(dir, "pic.png")
	require.NoError(t, os.WriteFile(imgPath, encodePNG(t, 64, 32), 0o644))

	txtPath := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("hello"), 0o644))

	noExt := filepath.Join(dir, "noext")
	require.NoError(t, os.WriteFile(noExt, encodePNG(t, 4, 4), 0o644))

	s := New(nil, nil)

	info, err := s.LoadFile(imgPath)
	require.NoError(t, err)
	assert.Equal(t, Info{Width: 64, Height: 32, Format: "png"}, info)

	_, err = s.LoadFile(txtPath)
	assert.ErrorIs(t, err, ErrInvalidInputFile)

	info, err = s.LoadFile(noExt)
	require.NoError(t, err)
	assert.Equal(t, 4, info.Width)

	_, err = s.LoadFile(dir)
	assert.Error(t, err)

	_, err = s.LoadFile(filepath.Join(dir, "missing.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// withPNGSize rewrites the IHDR dimensions of an encoded PNG, leaving the
// pixel data alone, and fixes up the chunk checksum.
func withPNGSize(t *testing.T, data []byte, w, h uint32) []byte {
	t.Helper()

	out := append([]byte(nil), data...)
	require.Equal(t, "IHDR", string(out[12:16]))
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func TestLoadTooManyPixels(t *testing.T) {
	s := New(nil, nil)
	_, err := s.Load(bytes.NewReader(encodePNG(t, 8, 8)), "image/png")
	require.NoError(t, err)

	huge := withPNGSize(t, encodePNG(t, 8, 8), 30000, 30000)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(huge))
	require.NoError(t, err)
	require.Equal(t, 30000, cfg.Width)

	_, err = s.Load(bytes.NewReader(huge), "image/png")
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.ErrorContains(t, err, "30000x30000")

	info, ok := s.Info()
	require.True(t, ok)
	assert.Equal(t, Info{Width: 8, Height: 8, Format: "png"}, info)

	s.MaxPixels = 20 * 20
	_, err = s.Load(bytes.NewReader(encodePNG(t, 20, 21)), "image/png")
	assert.ErrorIs(t, err, ErrTooLarge)
	_, err = s.Load(bytes.NewReader(encodePNG(t, 20, 20)), "image/png")
	assert.NoError(t, err)
}

func TestUpdate(t *testing.T) {
	s := New(nil, nil)
	require.NoError(t, s.SetParams(transform.Params{ColorBits: 9, Ratio: 0.5}))

	boom := errors.New("boom")
	p, err := s.Update(func(p *transform.Params) error {
		p.ColorBits = 3
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, transform.Params{ColorBits: 9, Ratio: 0.5}, p)

	_, err = s.Update(func(p *transform.Params) error {
		p.ColorBits = 3
		p.Ratio = 2
		return nil
	})
	assert.ErrorIs(t, err, transform.ErrInvalidRatio)
	assert.Equal(t, transform.Params{ColorBits: 9, Ratio: 0.5}, s.Params())

	p, err = s.Update(func(p *transform.Params) error {
		p.ColorBits = 3
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, transform.Params{ColorBits: 3, Ratio: 0.5}, p)
}

func TestConcurrentPartialUpdates(t *testing.T) {
	s := New(nil, nil)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.SetColorBits(12))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, s.SetResolution(25))
		}()
	}
	wg.Wait()

	assert.Equal(t, transform.Params{ColorBits: 12, Ratio: 0.25}, s.Params())
}

func TestResolvePath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "pic.png")
	require.NoError(t, os.WriteFile(file, encodePNG(t, 2, 2), 0o644))

	got, err := ResolvePath(file)
	require.NoError(t, err)
	assert.Equal(t, file, got)

	t.Chdir(dir)
	got, err = ResolvePath("pic.png")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
	assert.Equal(t, "pic.png", filepath.Base(got))

	_, err = ResolvePath(dir)
	assert.ErrorContains(t, err, "is a directory")

	_, err = ResolvePath(filepath.Join(dir, "missing.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
