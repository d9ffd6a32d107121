// Package imaging compresses crop photos for upload.
package imaging

import (
	"bytes"
	"fmt"
	"image"

	imglib "github.com/disintegration/imaging"

	"github.com/jbctechsolutions/cropcare/internal/domain/capture"
	domainerrors "github.com/jbctechsolutions/cropcare/internal/domain/errors"
)

const (
	DefaultQuality = 90
	MinQuality     = 40
	QualityStep    = 10
	// ScaleFactor shrinks both dimensions once every quality step is exhausted.
	ScaleFactor  = 0.75
	MinDimension = 64

	ThumbnailQuality = 80
	FormatJPEG       = "jpeg"
)

// Compress re-encodes data as a JPEG within opts. It first fits the image
// inside MaxDimension, then walks the quality down and finally the dimensions
// down until the encoded size is at most MaxSizeMB. Output is deterministic
// for the same input and options.
func Compress(data []byte, opts capture.CompressOptions) (*capture.Image, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	src, err := decode(data)
	if err != nil {
		return nil, err
	}

	start := opts.Quality
	if start == 0 {
		start = DefaultQuality
	}
	limit := opts.MaxBytes()

	img := fit(src, opts.MaxDimension)
	for {
		for q := start; ; q -= QualityStep {
			if q < MinQuality {
				q = MinQuality
			}
			out, err := encodeJPEG(img, q)
			if err != nil {
				return nil, err
			}
			if len(out) <= limit {
				b := img.Bounds()
				return &capture.Image{Data: out, Width: b.Dx(), Height: b.Dy(), Format: FormatJPEG}, nil
			}
			if q == MinQuality {
				break
			}
		}

		b := img.Bounds()
		w := int(float64(b.Dx()) * ScaleFactor)
		h := int(float64(b.Dy()) * ScaleFactor)
		if w < MinDimension || h < MinDimension {
			return nil, domainerrors.Validation("image cannot be compressed below %.2f MB", opts.MaxSizeMB)
		}
		img = imglib.Resize(img, w, h, imglib.Lanczos)
	}
}

// Thumbnail returns a square JPEG preview of data with the given edge length.
func Thumbnail(data []byte, size int) (*capture.Image, error) {
	if size <= 0 {
		return nil, domainerrors.Validation("thumbnail size must be positive, got %d", size)
	}
	src, err := decode(data)
	if err != nil {
		return nil, err
	}
	thumb := imglib.Thumbnail(src, size, size, imglib.Lanczos)
	out, err := encodeJPEG(thumb, ThumbnailQuality)
	if err != nil {
		return nil, err
	}
	return &capture.Image{Data: out, Width: size, Height: size, Format: FormatJPEG}, nil
}

// Dimensions reports the pixel size of an encoded image without decoding it fully.
func Dimensions(data []byte) (int, int, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, "", domainerrors.NewError(domainerrors.CodeValidation, "unrecognized image data", err)
	}
	return cfg.Width, cfg.Height, format, nil
}

func decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, domainerrors.Validation("image is empty")
	}
	img, err := imglib.Decode(bytes.NewReader(data), imglib.AutoOrientation(true))
	if err != nil {
		return nil, domainerrors.NewError(domainerrors.CodeValidation, "unrecognized image data", err)
	}
	return img, nil
}

func fit(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	if b.Dx() <= maxDim && b.Dy() <= maxDim {
		return img
	}
	return imglib.Fit(img, maxDim, maxDim, imglib.Lanczos)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imglib.Encode(&buf, img, imglib.JPEG, imglib.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
