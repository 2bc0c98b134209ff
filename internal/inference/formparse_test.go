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

type stubVLMClient struct {
	response   string
	err        error
	lastPrompt string
}

func (s *stubVLMClient) GenerateWithImage(ctx context.Context, prompt string, imageBytes []byte, mimeType string) (string, error) {
	s.lastPrompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func TestFormParseAdapter_EmptyPayloadIsInvalidImage(t *testing.T) {
	a := NewFormParseAdapter(&stubVLMClient{}, "default prompt", common.NewSilentLogger())
	_, err := a.Run(context.Background(), &models.JobDescriptor{}, nil)
	var invalid *InvalidImageError
	assert.ErrorAs(t, err, &invalid)
}

func TestFormParseAdapter_BlankPromptUsesDefault(t *testing.T) {
	client := &stubVLMClient{response: `{"ok": "true"}`}
	a := NewFormParseAdapter(client, "extract all fields", common.NewSilentLogger())

	_, err := a.Run(context.Background(), &models.JobDescriptor{Payload: []byte{1}, Filename: "x.png"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "extract all fields", client.lastPrompt)
}

func TestFormParseAdapter_CustomPromptIsWhitespaceCollapsed(t *testing.T) {
	client := &stubVLMClient{response: `{}`}
	a := NewFormParseAdapter(client, "default", common.NewSilentLogger())

	prompt := "  Extract the invoice\n\n  total and date.  \n"
	_, err := a.Run(context.Background(), &models.JobDescriptor{Payload: []byte{1}, Prompt: prompt}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Extract the invoice total and date.", client.lastPrompt)
}

func TestFormParseAdapter_ClientErrorWrapsAsInferenceFailed(t *testing.T) {
	client := &stubVLMClient{err: errors.New("upstream down")}
	a := NewFormParseAdapter(client, "default", common.NewSilentLogger())

	_, err := a.Run(context.Background(), &models.JobDescriptor{Payload: []byte{1}}, nil)
	var failed *InferenceFailedError
	assert.ErrorAs(t, err, &failed)
}

func TestFormParseAdapter_RepairsResponseIntoData(t *testing.T) {
	client := &stubVLMClient{response: "```json\n{\"total\": \"100.00\"}\n```"}
	a := NewFormParseAdapter(client, "default", common.NewSilentLogger())

	result, err := a.Run(context.Background(), &models.JobDescriptor{Payload: []byte{1}}, nil)
	require.NoError(t, err)

	fp, ok := result.(*models.FormParseResult)
	require.True(t, ok)
	m, ok := fp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "100.00", m["total"])
}
