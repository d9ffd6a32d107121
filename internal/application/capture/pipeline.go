// Package capture acquires, compresses and uploads crop photos.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jbctechsolutions/cropcare/internal/application/ports"
	"github.com/jbctechsolutions/cropcare/internal/domain/capture"
	domainerrors "github.com/jbctechsolutions/cropcare/internal/domain/errors"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/imaging"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/logging"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/tracing"
)

// Defaults for Config fields left zero.
const (
	DefaultSignedURLTTL  = time.Hour
	DefaultThumbnailSize = 256
)

// Config bounds processing and locates uploads.
type Config struct {
	Compress      capture.CompressOptions
	SignedURLTTL  time.Duration
	ThumbnailSize int // 0 disables thumbnails
}

// Pipeline turns raw frames into stored images.
type Pipeline struct {
	camera  ports.CameraPort
	storage ports.ObjectStoragePort
	config  Config
	logger  *logging.Logger
	tracer  *tracing.Tracer
	now     func() time.Time
}

// NewPipeline creates a pipeline. camera may be nil when only uploads are needed.
func NewPipeline(camera ports.CameraPort, storage ports.ObjectStoragePort, cfg Config, logger *logging.Logger, tracer *tracing.Tracer) *Pipeline {
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = DefaultSignedURLTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	if tracer == nil {
		tracer = tracing.Default()
	}
	return &Pipeline{camera: camera, storage: storage, config: cfg, logger: logger, tracer: tracer, now: time.Now}
}

// Capture acquires one frame from the camera.
func (p *Pipeline) Capture(ctx context.Context) ([]byte, error) {
	if p.camera == nil {
		return nil, &capture.CameraError{Kind: capture.NotFound}
	}
	data, err := p.camera.Capture(ctx)
	if err != nil {
		return nil, capture.NewCameraError(err)
	}
	return data, nil
}

// frameWaiter is implemented by cameras that can block for the next frame.
type frameWaiter interface {
	WaitForFrame(ctx context.Context) ([]byte, error)
}

// AwaitCapture blocks for the next new frame when the camera supports it and
// captures the current frame otherwise.
func (p *Pipeline) AwaitCapture(ctx context.Context) ([]byte, error) {
	w, ok := p.camera.(frameWaiter)
	if !ok {
		return p.Capture(ctx)
	}
	data, err := w.WaitForFrame(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, capture.NewCameraError(err)
	}
	return data, nil
}

// Process compresses raw image bytes to the configured bounds.
func (p *Pipeline) Process(_ context.Context, raw []byte) (*capture.Image, error) {
	return imaging.Compress(raw, p.config.Compress)
}

// CaptureAndProcess acquires a frame and compresses it.
func (p *Pipeline) CaptureAndProcess(ctx context.Context) (*capture.Image, error) {
	raw, err := p.Capture(ctx)
	if err != nil {
		return nil, err
	}
	return p.Process(ctx, raw)
}

// ObjectPath returns a fresh storage path for a user's image. The millisecond
// prefix keeps listings chronological; the ULID makes collisions impossible.
func (p *Pipeline) ObjectPath(userID string) string {
	return fmt.Sprintf("%s/%d_%s.jpg", userID, p.now().UnixMilli(), ulid.Make().String())
}

// Upload stores img under a new path in bucket and returns a signed URL.
// Existing objects are never overwritten. A thumbnail is stored alongside
// when enabled; thumbnail failures are logged and ignored.
func (p *Pipeline) Upload(ctx context.Context, img *capture.Image, bucket, userID string) (*capture.UploadResult, error) {
	if img == nil || img.Size() == 0 {
		return nil, domainerrors.Validation("image is empty")
	}
	if userID == "" {
		return nil, domainerrors.NewError(domainerrors.CodeAuth, "upload requires a signed-in user", domainerrors.ErrUnauthorized)
	}

	ctx, span := p.tracer.StartUploadSpan(ctx, bucket, img.Size())
	res, err := p.upload(ctx, img, bucket, userID)
	span.Finish(err)
	return res, err
}

func (p *Pipeline) upload(ctx context.Context, img *capture.Image, bucket, userID string) (*capture.UploadResult, error) {
	path := p.ObjectPath(userID)
	if err := p.storage.Upload(ctx, bucket, path, img.Data, "image/jpeg"); err != nil {
		return nil, uploadError("store image", err)
	}

	url, err := p.storage.CreateSignedURL(ctx, bucket, path, p.config.SignedURLTTL)
	if err != nil {
		return nil, uploadError("sign image url", err)
	}

	res := &capture.UploadResult{URL: url, Path: path}
	if p.config.ThumbnailSize > 0 {
		thumb, err := p.thumbnail(ctx, img, bucket, userID, path)
		if err != nil {
			p.logger.WarnContext(ctx, "thumbnail skipped", "path", path, "error", err)
		} else {
			res.ThumbnailPath = thumb
		}
	}

	p.logger.InfoContext(ctx, "image uploaded", "bucket", bucket, "path", path, "bytes", img.Size())
	return res, nil
}

func (p *Pipeline) thumbnail(ctx context.Context, img *capture.Image, bucket, userID, path string) (string, error) {
	thumb, err := imaging.Thumbnail(img.Data, p.config.ThumbnailSize)
	if err != nil {
		return "", err
	}
	thumbPath := userID + "/thumbs/" + strings.TrimPrefix(path, userID+"/")
	if err := p.storage.Upload(ctx, bucket, thumbPath, thumb.Data, "image/jpeg"); err != nil {
		return "", err
	}
	return thumbPath, nil
}

// uploadError marks a storage failure as an upload error. The cause stays in
// the chain so callers can still detect network loss.
func uploadError(step string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domainerrors.NewError(domainerrors.CodeUpload, step, err)
}
