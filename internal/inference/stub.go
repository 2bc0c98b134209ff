package inference

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/SystemGuard-official/docparse/internal/models"
)

// DefaultDetect is the placeholder detection callable wired by default: it
// treats the whole decoded image as a single region. The real detector
// (PaddleOCR-equivalent) is the opaque external model callable excluded by
// the Non-goals — callers that have a real detector inject it via
// worker.Config/OCRAdapter instead of this default.
func DefaultDetect(_ context.Context, payload []byte) ([]DetectedRegion, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(payload))
	if err != nil {
		return nil, &InvalidImageError{Msg: err.Error()}
	}
	return []DetectedRegion{{
		BBox:   models.BoundingBox{X1: 0, Y1: 0, X2: cfg.Width, Y2: cfg.Height},
		Width:  cfg.Width,
		Height: cfg.Height,
	}}, nil
}

// DefaultRecognize is the placeholder recognition callable wired by default:
// it returns no text for the region. The real recognizer (TrOCR-equivalent)
// is injected the same way DefaultDetect's real counterpart would be.
func DefaultRecognize(_ context.Context, _ []byte, _ DetectedRegion) (string, error) {
	return "", nil
}
