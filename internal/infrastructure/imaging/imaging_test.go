package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"

	"github.com/jbctechsolutions/cropcare/internal/domain/capture"
	domainerrors "github.com/jbctechsolutions/cropcare/internal/domain/errors"
)

// noisePNG builds an incompressible image so the size loop has work to do.
func noisePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(42))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func solidPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 40, G: 160, B: 60, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func TestCompress_LargeNoisyPhoto(t *testing.T) {
	if testing.Short() {
		t.Skip("large image")
	}
	data := noisePNG(t, 3000, 2000)
	opts := capture.CompressOptions{MaxSizeMB: 1, MaxDimension: 1920}

	got, err := Compress(data, opts)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if got.Size() > opts.MaxBytes() {
		t.Errorf("size = %d, want <= %d", got.Size(), opts.MaxBytes())
	}
	if got.Width > 1920 || got.Height > 1920 {
		t.Errorf("dimensions = %dx%d, want within 1920", got.Width, got.Height)
	}
	if got.Format != FormatJPEG {
		t.Errorf("Format = %q", got.Format)
	}

	w, h, format, err := Dimensions(got.Data)
	if err != nil || w != got.Width || h != got.Height || format != "jpeg" {
		t.Errorf("Dimensions() = %d, %d, %q, %v", w, h, format, err)
	}

	again, err := Compress(data, opts)
	if err != nil {
		t.Fatalf("second Compress() error = %v", err)
	}
	if !bytes.Equal(got.Data, again.Data) {
		t.Error("Compress() should be deterministic")
	}
}

func TestCompress_SmallImageKeepsSize(t *testing.T) {
	got, err := Compress(solidPNG(t, 320, 200), capture.CompressOptions{MaxSizeMB: 1, MaxDimension: 1920})
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if got.Width != 320 || got.Height != 200 {
		t.Errorf("dimensions = %dx%d, want 320x200 (no upscaling)", got.Width, got.Height)
	}
}

func TestCompress_FitsAspectRatio(t *testing.T) {
	got, err := Compress(solidPNG(t, 800, 400), capture.CompressOptions{MaxSizeMB: 1, MaxDimension: 200})
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if got.Width != 200 || got.Height != 100 {
		t.Errorf("dimensions = %dx%d, want 200x100", got.Width, got.Height)
	}
}

func TestCompress_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		opts capture.CompressOptions
	}{
		{"empty", nil, capture.CompressOptions{MaxSizeMB: 1, MaxDimension: 100}},
		{"garbage", []byte("not an image"), capture.CompressOptions{MaxSizeMB: 1, MaxDimension: 100}},
		{"zero size bound", []byte("x"), capture.CompressOptions{MaxDimension: 100}},
		{"zero dimension", []byte("x"), capture.CompressOptions{MaxSizeMB: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compress(tt.data, tt.opts)
			if !errors.Is(err, domainerrors.ErrValidation) {
				t.Errorf("Compress() error = %v, want validation", err)
			}
		})
	}
}

func TestThumbnail(t *testing.T) {
	got, err := Thumbnail(solidPNG(t, 640, 480), 64)
	if err != nil {
		t.Fatalf("Thumbnail() error = %v", err)
	}
	w, h, _, err := Dimensions(got.Data)
	if err != nil || w != 64 || h != 64 {
		t.Errorf("thumbnail = %dx%d, %v, want 64x64", w, h, err)
	}

	if _, err := Thumbnail([]byte("nope"), 64); err == nil {
		t.Error("Thumbnail() of garbage should fail")
	}
}
