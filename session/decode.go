package session

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const sniffLen = 512

func init() {
	for ext, typ := range map[string]string{
		".bmp":  "image/bmp",
		".tif":  "image/tiff",
		".tiff": "image/tiff",
		".webp": "image/webp",
	} {
		if mime.TypeByExtension(ext) == "" {
			_ = mime.AddExtensionType(ext, typ)
		}
	}
}

// IsImageType reports whether a MIME content type names an image.
func IsImageType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mediaType)), "image/")
}

func sniff(data []byte) string {
	return http.DetectContentType(data[:min(len(data), sniffLen)])
}

func readAll(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("could not read image: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	return data, nil
}

// decode turns encoded bytes into a source buffer, applying any EXIF
// orientation the way browsers do when drawing an image.
// The header is checked against maxPixels before any pixel is allocated.
func decode(data []byte, maxPixels int64) (*Source, error) {
	conf, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if conf.Width <= 0 || conf.Height <= 0 {
		return nil, fmt.Errorf("%w: empty %s image", ErrDecode, format)
	}
	if pixels := int64(conf.Width) * int64(conf.Height); pixels > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d %s image has more than %d pixels",
			ErrTooLarge, conf.Width, conf.Height, format, maxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	return &Source{
		Image:  imaging.Clone(img),
		Format: format,
	}, nil
}

// fileContentType guesses the content type of a file from its extension,
// falling back to the first bytes of its content.
func fileContentType(path string, head []byte) string {
	if typ := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); typ != "" {
		return typ
	}
	return sniff(head)
}

// ResolvePath turns path into an absolute path naming an existing entry
// that is not a directory. Commands use it to check image arguments before
// running.
func ResolvePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	var info os.FileInfo
	if err == nil {
		if info, err = os.Stat(abs); err == nil && info.IsDir() {
			err = fmt.Errorf("is a directory")
		}
	}
	if err != nil {
		return "", fmt.Errorf("invalid image path %q: %w", path, err)
	}
	return abs, nil
}

func checkFile(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot stat image file %q: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("cannot load non-regular file %q: %s", info.Name(), info.Mode().String())
	}
	return info, nil
}
