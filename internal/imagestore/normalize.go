package imagestore

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	// registered decoders
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/fieldscan/fieldscan/internal/errors"
)

// JPEGQuality is the quality stored photos are encoded with.
const JPEGQuality = 90

// MaxPixels bounds decoded image size.
const MaxPixels = 100_000_000

// Normalize decodes a JPEG, PNG, GIF, WebP, BMP or TIFF image and re-encodes
// it as JPEG, dropping any alpha channel. Empty input is a validation error,
// anything else that does not decode is an image-decode error.
func Normalize(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.New(fmt.Errorf("imagestore: read upload: %w", err)).
			Component("imagestore").
			Category(errors.CategoryFileIO).
			Build()
	}

	if len(data) == 0 {
		return nil, errors.Newf("imagestore: empty upload").
			Component("imagestore").
			Category(errors.CategoryValidation).
			Build()
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, decodeError(err, len(data))
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > MaxPixels {
		return nil, errors.Newf("imagestore: unsupported image dimensions %dx%d", cfg.Width, cfg.Height).
			Component("imagestore").
			Category(errors.CategoryValidation).
			Context("format", format).
			Build()
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, decodeError(err, len(data))
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, errors.New(fmt.Errorf("imagestore: encode jpeg: %w", err)).
			Component("imagestore").
			Category(errors.CategoryImageDecode).
			Context("format", format).
			Build()
	}
	return buf.Bytes(), nil
}

func decodeError(err error, size int) error {
	return errors.New(fmt.Errorf("imagestore: not a supported image: %w", err)).
		Component("imagestore").
		Category(errors.CategoryImageDecode).
		Context("size", size).
		Build()
}
