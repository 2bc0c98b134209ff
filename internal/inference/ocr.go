package inference

import (
	"context"
	"fmt"
	"time"

	"github.com/SystemGuard-official/docparse/internal/common"
	"github.com/SystemGuard-official/docparse/internal/interfaces"
	"github.com/SystemGuard-official/docparse/internal/models"
)

// DetectedRegion is one region surfaced by the detection stage, before text
// recognition has run on it — mirrors schemas/core.py's DetectedTextRegion.
type DetectedRegion struct {
	BBox   models.BoundingBox
	Width  int
	Height int
}

// DetectFunc performs text-region detection (e.g. a PaddleOCR-style detector)
// over the source image. The actual model call is the opaque external
// callable this package orchestrates around, per §1's Non-goals.
type DetectFunc func(ctx context.Context, payload []byte) ([]DetectedRegion, error)

// RecognizeFunc performs text recognition (e.g. a TrOCR-style recognizer)
// over one detected region's cropped bytes.
type RecognizeFunc func(ctx context.Context, payload []byte, region DetectedRegion) (string, error)

// OCRAdapter orchestrates detect-then-recognize over every region, reporting
// progress per region, grounded on ocr_pipeline_service.py's full_ocr_logic.
type OCRAdapter struct {
	Detect    DetectFunc
	Recognize RecognizeFunc
	logger    *common.Logger
}

// NewOCRAdapter builds an OCRAdapter around injectable detect/recognize
// callables — tests substitute deterministic stubs here.
func NewOCRAdapter(detect DetectFunc, recognize RecognizeFunc, logger *common.Logger) *OCRAdapter {
	return &OCRAdapter{Detect: detect, Recognize: recognize, logger: logger}
}

// Run implements interfaces.InferenceAdapter for kind=ocr.
func (a *OCRAdapter) Run(ctx context.Context, desc *models.JobDescriptor, onProgress func(pct int)) (any, error) {
	if len(desc.Payload) == 0 {
		return nil, &InvalidImageError{Msg: "empty image payload"}
	}

	detectStart := time.Now()
	regions, err := a.Detect(ctx, desc.Payload)
	if err != nil {
		return nil, &InferenceFailedError{Msg: fmt.Sprintf("detection: %v", err)}
	}
	detectDuration := time.Since(detectStart).Seconds()

	if onProgress != nil {
		onProgress(1)
	}

	total := len(regions)
	detections := make([]models.TextDetection, 0, total)
	for i, region := range regions {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		text, err := a.Recognize(ctx, desc.Payload, region)
		if err != nil {
			return nil, &InferenceFailedError{Msg: fmt.Sprintf("recognition region %d: %v", i, err)}
		}

		detections = append(detections, models.TextDetection{
			BBox:   region.BBox,
			Width:  region.Width,
			Height: region.Height,
			Text:   text,
		})

		if onProgress != nil && total > 0 {
			onProgress(100 * (i + 1) / total)
		}
	}

	return &models.OCRResult{
		Filename:              desc.Filename,
		Metadata:              map[string]any{"regions_detected": total},
		TextDetectionDuration: detectDuration,
		OverallProcessingTime: time.Since(detectStart).Seconds(),
		Detections:            detections,
		TotalDetections:       total,
	}, nil
}

var _ interfaces.InferenceAdapter = (*OCRAdapter)(nil)
