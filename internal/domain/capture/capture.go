// Package capture provides domain types for acquiring and preparing crop photos.
package capture

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"

	domainerrors "github.com/jbctechsolutions/cropcare/internal/domain/errors"
)

// CameraErrorKind classifies why a frame could not be acquired.
type CameraErrorKind string

const (
	PermissionDenied CameraErrorKind = "permission_denied"
	NotFound         CameraErrorKind = "not_found"
	Busy             CameraErrorKind = "busy"
	Unknown          CameraErrorKind = "unknown"
)

// CameraError is returned by camera adapters.
type CameraError struct {
	Kind  CameraErrorKind
	Cause error
}

func (e *CameraError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("camera %s: %v", e.Kind, e.Cause)
	}
	return "camera " + string(e.Kind)
}

func (e *CameraError) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, domainerrors.ErrCamera) match any camera failure.
func (e *CameraError) Is(target error) bool {
	return target == domainerrors.ErrCamera
}

// NewCameraError maps an acquisition error to a CameraError kind.
func NewCameraError(err error) *CameraError {
	var ce *CameraError
	if errors.As(err, &ce) {
		return ce
	}
	kind := Unknown
	switch {
	case errors.Is(err, fs.ErrPermission):
		kind = PermissionDenied
	case errors.Is(err, fs.ErrNotExist):
		kind = NotFound
	case errors.Is(err, syscall.EBUSY), errors.Is(err, syscall.EAGAIN), errors.Is(err, os.ErrDeadlineExceeded):
		kind = Busy
	}
	return &CameraError{Kind: kind, Cause: err}
}

// KindOf returns the camera error kind in err's chain, or "" if none.
func KindOf(err error) CameraErrorKind {
	var ce *CameraError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// CompressOptions bounds the output of image compression.
type CompressOptions struct {
	MaxSizeMB    float64
	MaxDimension int
	// Quality is the starting JPEG quality; 0 means the package default.
	Quality int
}

// MaxBytes returns the size bound in bytes.
func (o CompressOptions) MaxBytes() int {
	return int(o.MaxSizeMB * 1024 * 1024)
}

// Validate checks the bounds are usable.
func (o CompressOptions) Validate() error {
	if o.MaxSizeMB <= 0 {
		return domainerrors.Validation("max size must be positive, got %v", o.MaxSizeMB)
	}
	if o.MaxDimension <= 0 {
		return domainerrors.Validation("max dimension must be positive, got %d", o.MaxDimension)
	}
	if o.Quality < 0 || o.Quality > 100 {
		return domainerrors.Validation("quality must be within 0-100, got %d", o.Quality)
	}
	return nil
}

// Image is an encoded photo ready for upload.
type Image struct {
	Data   []byte
	Width  int
	Height int
	Format string
}

// Size returns the encoded size in bytes.
func (i *Image) Size() int { return len(i.Data) }

// UploadResult locates a stored image.
type UploadResult struct {
	URL           string `json:"url"`
	Path          string `json:"path"`
	ThumbnailPath string `json:"thumbnail_path,omitempty"`
}
