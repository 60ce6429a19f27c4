package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ScreenshotTimeLayout is the timestamp suffix of screenshot files.
const ScreenshotTimeLayout = "20060102_150405"

// Screenshotter is the part of a driver the recorder needs.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// ScreenshotRecorder writes named screenshots to <dir>/<name>_<timestamp>.png.
// A failed capture is logged and never fails the caller's step.
type ScreenshotRecorder struct {
	dir    string
	src    Screenshotter
	logger *zap.Logger
	now    func() time.Time
}

// NewScreenshotRecorder creates a recorder writing into dir.
func NewScreenshotRecorder(dir string, src Screenshotter, logger *zap.Logger) *ScreenshotRecorder {
	return &ScreenshotRecorder{dir: dir, src: src, logger: logger.Named("screenshots"), now: time.Now}
}

// WithClock replaces the timestamp source.
func (r *ScreenshotRecorder) WithClock(now func() time.Time) *ScreenshotRecorder {
	r.now = now
	return r
}

// Capture saves a screenshot and returns its path, or "" if it could not be taken.
func (r *ScreenshotRecorder) Capture(ctx context.Context, name string) string {
	path, err := r.capture(ctx, name)
	if err != nil {
		r.logger.Warn("Failed to take screenshot", zap.String("name", name), zap.Error(err))
		return ""
	}
	r.logger.Info("Screenshot saved", zap.String("path", path))
	return path
}

func (r *ScreenshotRecorder) capture(ctx context.Context, name string) (string, error) {
	buf, err := r.src.Screenshot(ctx)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating screenshot dir: %w", err)
	}
	path := filepath.Join(r.dir, fmt.Sprintf("%s_%s.png", sanitizeName(name), r.now().Format(ScreenshotTimeLayout)))
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return "", fmt.Errorf("writing screenshot: %w", err)
	}
	return path, nil
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return "screenshot"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, name)
}
