// Package imaging turns encoded scan bytes into the float tensor the
// classifier consumes.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Limits on the dimensions an image header may declare. Decoders allocate
// the full pixel buffer up front, so these are checked before decoding.
const (
	MaxSide   = 16384
	MaxPixels = 64 << 20
)

var (
	// ErrDecode marks bytes that are not a supported, intact image.
	ErrDecode = errors.New("cannot decode image")
	// ErrPreprocess marks a decoded image that cannot be turned into a
	// tensor, such as one with zero width or height.
	ErrPreprocess = errors.New("cannot preprocess image")
)

// Decode decodes JPEG, PNG, GIF, BMP, TIFF or WebP bytes. It returns the
// image and the detected format name.
func Decode(data []byte) (img image.Image, format string, err error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty input", ErrDecode)
	}

	// Some codecs panic on crafted input instead of returning an error.
	defer func() {
		if r := recover(); r != nil {
			img, format = nil, ""
			err = fmt.Errorf("%w: decoder panic: %v", ErrDecode, r)
		}
	}()

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if err := checkDimensions(cfg.Width, cfg.Height); err != nil {
		return nil, "", err
	}

	img, format, err = image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return img, format, nil
}

func checkDimensions(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: image declares zero size %dx%d", ErrDecode, width, height)
	}
	if width > MaxSide || height > MaxSide || width*height > MaxPixels {
		return fmt.Errorf("%w: image declares %dx%d, limit is %dx%d and %d pixels",
			ErrDecode, width, height, MaxSide, MaxSide, MaxPixels)
	}
	return nil
}
