package inference

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/SystemGuard-official/docparse/internal/common"
	"github.com/SystemGuard-official/docparse/internal/interfaces"
	"github.com/SystemGuard-official/docparse/internal/models"
)

// VisionLanguageClient is the subset of the Gemini client the form-parse
// adapter depends on — narrowed so tests can substitute a stub without
// constructing a real genai.Client.
type VisionLanguageClient interface {
	GenerateWithImage(ctx context.Context, prompt string, imageBytes []byte, mimeType string) (string, error)
}

// FormParseAdapter drives a vision-language model over (image, prompt) pairs
// and repairs its text response into structured data, grounded on
// forms_queue.py + response_parser.py.
type FormParseAdapter struct {
	client        VisionLanguageClient
	defaultPrompt string
	logger        *common.Logger
}

// NewFormParseAdapter builds a FormParseAdapter. defaultPrompt is substituted
// whenever a job's prompt is blank, mirroring form_parsing.py's
// `if not llm_prompt: llm_prompt = settings.DEFAULT_LLM_PROMPT`. A nil client
// is replaced by unavailableClient so a misconfigured deployment (no API key)
// fails jobs with ModelUnavailableError instead of panicking.
func NewFormParseAdapter(client VisionLanguageClient, defaultPrompt string, logger *common.Logger) *FormParseAdapter {
	if client == nil {
		client = unavailableClient{}
	}
	return &FormParseAdapter{client: client, defaultPrompt: defaultPrompt, logger: logger}
}

// unavailableClient is the VisionLanguageClient used when no real
// vision-language model client is configured (e.g. missing API key);
// it surfaces ModelUnavailableError per §4.E's error taxonomy instead of
// dereferencing a nil client.
type unavailableClient struct{}

func (unavailableClient) GenerateWithImage(context.Context, string, []byte, string) (string, error) {
	return "", &ModelUnavailableError{Msg: "form-parse vision-language client not configured"}
}

// Run implements interfaces.InferenceAdapter for kind=form_parse.
func (a *FormParseAdapter) Run(ctx context.Context, desc *models.JobDescriptor, onProgress func(pct int)) (any, error) {
	if len(desc.Payload) == 0 {
		return nil, &InvalidImageError{Msg: "empty image payload"}
	}

	prompt := desc.Prompt
	if strings.TrimSpace(prompt) == "" {
		prompt = a.defaultPrompt
	} else {
		prompt = collapseWhitespace(prompt)
	}

	if onProgress != nil {
		onProgress(1)
	}

	start := time.Now()
	raw, err := a.client.GenerateWithImage(ctx, prompt, desc.Payload, mimeTypeFor(desc.Filename))
	if err != nil {
		var unavailable *ModelUnavailableError
		if errors.As(err, &unavailable) {
			return nil, unavailable
		}
		return nil, &InferenceFailedError{Msg: err.Error()}
	}

	if onProgress != nil {
		onProgress(100)
	}

	return &models.FormParseResult{
		Filename:      desc.Filename,
		Metadata:      map[string]any{},
		ExecutionTime: time.Since(start).Seconds(),
		Data:          Repair(raw),
	}, nil
}

// collapseWhitespace collapses a multi-line custom prompt into a single
// space-joined line, dropping blank lines — ported from form_parsing.py's
// `" ".join(line.strip() for line in llm_prompt.splitlines() if line.strip())`.
func collapseWhitespace(prompt string) string {
	lines := strings.Split(prompt, "\n")
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, " ")
}

func mimeTypeFor(filename string) string {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".bmp"):
		return "image/bmp"
	case strings.HasSuffix(lower, ".tiff") || strings.HasSuffix(lower, ".tif"):
		return "image/tiff"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

var _ interfaces.InferenceAdapter = (*FormParseAdapter)(nil)
