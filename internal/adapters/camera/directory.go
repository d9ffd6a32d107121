// Package camera provides frame sources for the capture pipeline.
package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jbctechsolutions/cropcare/internal/application/ports"
	"github.com/jbctechsolutions/cropcare/internal/domain/capture"
)

// DefaultSettle is how long a frame file must stay unmodified before it is
// considered completely written.
const DefaultSettle = 200 * time.Millisecond

var (
	errNoFrame    = fmt.Errorf("no frame available: %w", fs.ErrNotExist)
	errIncomplete = errors.New("frame is still being written")
	jpegEOI       = []byte{0xFF, 0xD9}
)

// Directory is a camera whose frames are image files dropped into a
// directory by an external capture tool (a phone sync folder, a USB camera
// daemon, a scanner).
type Directory struct {
	dir    string
	settle time.Duration
	now    func() time.Time
}

var _ ports.CameraPort = (*Directory)(nil)

// NewDirectory creates a directory camera. settle <= 0 uses DefaultSettle.
func NewDirectory(dir string, settle time.Duration) *Directory {
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &Directory{dir: dir, settle: settle, now: time.Now}
}

// Dir returns the watched directory.
func (d *Directory) Dir() string { return d.dir }

// Capture returns the newest complete frame in the directory.
func (d *Directory) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, modTime, err := d.latest()
	if err != nil {
		return nil, capture.NewCameraError(err)
	}
	if d.now().Sub(modTime) < d.settle {
		return nil, &capture.CameraError{Kind: capture.Busy, Cause: errIncomplete}
	}
	return d.read(path)
}

func (d *Directory) read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, capture.NewCameraError(err)
	}
	if !complete(path, data) {
		return nil, &capture.CameraError{Kind: capture.Busy, Cause: errIncomplete}
	}
	return data, nil
}

// latest finds the most recently modified frame file.
func (d *Directory) latest() (string, time.Time, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return "", time.Time{}, err
	}

	var (
		best     string
		bestTime time.Time
	)
	for _, e := range entries {
		if e.IsDir() || !isFrame(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		mt := info.ModTime()
		if best == "" || mt.After(bestTime) || (mt.Equal(bestTime) && e.Name() > filepath.Base(best)) {
			best = filepath.Join(d.dir, e.Name())
			bestTime = mt
		}
	}
	if best == "" {
		return "", time.Time{}, errNoFrame
	}
	return best, bestTime, nil
}

// Watch reports the path of every new frame once it has settled. The
// channel closes when ctx is done.
func (d *Directory) Watch(ctx context.Context) (<-chan string, error) {
	if _, err := os.Stat(d.dir); err != nil {
		return nil, capture.NewCameraError(err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, capture.NewCameraError(err)
	}
	if err := w.Add(d.dir); err != nil {
		w.Close()
		return nil, capture.NewCameraError(err)
	}

	out := make(chan string, 8)
	var (
		mu      sync.Mutex
		pending = map[string]time.Time{}
		wg      sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !isFrame(ev.Name) || (!ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write)) {
					continue
				}
				mu.Lock()
				pending[ev.Name] = time.Now()
				mu.Unlock()
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(d.settle / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mu.Lock()
				var stable []string
				for path, at := range pending {
					if time.Since(at) >= d.settle {
						stable = append(stable, path)
						delete(pending, path)
					}
				}
				mu.Unlock()
				for _, path := range stable {
					select {
					case out <- path:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	go func() {
		wg.Wait()
		w.Close()
		close(out)
	}()
	return out, nil
}

// WaitForFrame blocks until a new frame lands in the directory and returns it.
func (d *Directory) WaitForFrame(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames, err := d.Watch(ctx)
	if err != nil {
		return nil, err
	}
	for path := range frames {
		data, err := d.read(path)
		if capture.KindOf(err) == capture.Busy || capture.KindOf(err) == capture.NotFound {
			continue
		}
		return data, err
	}
	return nil, ctx.Err()
}

func isFrame(name string) bool {
	if strings.HasPrefix(filepath.Base(name), ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

// complete rejects truncated JPEGs. Other formats are trusted once settled.
func complete(path string, data []byte) bool {
	if len(data) == 0 {
		return false
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return bytes.HasSuffix(bytes.TrimRight(data, "\x00"), jpegEOI)
	}
	return true
}
