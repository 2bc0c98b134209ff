package inference

import (
	"context"
	"errors"
	"testing"

	"github.com/SystemGuard-official/docparse/internal/common"
	"github.com/SystemGuard-official/docparse/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOCRAdapter_EmptyPayloadIsInvalidImage(t *testing.T) {
	a := NewOCRAdapter(nil, nil, common.NewSilentLogger())
	_, err := a.Run(context.Background(), &models.JobDescriptor{Payload: nil}, nil)
	var invalid *InvalidImageError
	assert.ErrorAs(t, err, &invalid)
}

func TestOCRAdapter_ReportsProgressPerRegion(t *testing.T) {
	regions := []DetectedRegion{{Width: 10, Height: 10}, {Width: 20, Height: 20}}
	detect := func(ctx context.Context, payload []byte) ([]DetectedRegion, error) { return regions, nil }
	recognize := func(ctx context.Context, payload []byte, r DetectedRegion) (string, error) { return "text", nil }

	a := NewOCRAdapter(detect, recognize, common.NewSilentLogger())

	var progress []int
	result, err := a.Run(context.Background(), &models.JobDescriptor{Payload: []byte{0xff}, Filename: "a.png"}, func(pct int) {
		progress = append(progress, pct)
	})
	require.NoError(t, err)

	ocrResult, ok := result.(*models.OCRResult)
	require.True(t, ok)
	assert.Equal(t, 2, ocrResult.TotalDetections)
	assert.Equal(t, []int{1, 50, 100}, progress)
}

func TestOCRAdapter_RecognitionFailureWrapsAsInferenceFailed(t *testing.T) {
	regions := []DetectedRegion{{}}
	detect := func(ctx context.Context, payload []byte) ([]DetectedRegion, error) { return regions, nil }
	recognize := func(ctx context.Context, payload []byte, r DetectedRegion) (string, error) {
		return "", errors.New("boom")
	}

	a := NewOCRAdapter(detect, recognize, common.NewSilentLogger())
	_, err := a.Run(context.Background(), &models.JobDescriptor{Payload: []byte{0xff}}, nil)

	var failed *InferenceFailedError
	assert.ErrorAs(t, err, &failed)
}

func TestOCRAdapter_DetectionFailureWrapsAsInferenceFailed(t *testing.T) {
	detect := func(ctx context.Context, payload []byte) ([]DetectedRegion, error) {
		return nil, errors.New("detector down")
	}
	a := NewOCRAdapter(detect, nil, common.NewSilentLogger())
	_, err := a.Run(context.Background(), &models.JobDescriptor{Payload: []byte{0xff}}, nil)

	var failed *InferenceFailedError
	assert.ErrorAs(t, err, &failed)
}
