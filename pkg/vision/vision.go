// Package vision extracts item position hints from catalog page images
package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/amaan667/servio-fusion/pkg/models"
	"github.com/amaan667/servio-fusion/pkg/tracing"
)

// VisionError is a transient failure talking to the vision model. The
// pipeline retries these with backoff.
type VisionError struct {
	PageIndex int
	Err       error
}

func (e *VisionError) Error() string {
	return fmt.Sprintf("vision extraction for page %d: %v", e.PageIndex, e.Err)
}

func (e *VisionError) Unwrap() error {
	return e.Err
}

// HintExtractor produces position hints for one page image. A page yielding
// zero hints is a valid outcome, not an error.
type HintExtractor interface {
	ExtractHints(ctx context.Context, page models.PageImage, pageIndex int) ([]models.PositionHint, error)
}

const hintPrompt = `You are given one page of a product catalog as an image.
Identify every distinct item name printed on the page. For each item return
its name exactly as printed and the position of its label as percentages of
the page width and height, measured from the top-left corner.

Respond with ONLY a JSON array, no prose:
[{"name": "...", "x_percent": 0-100, "y_percent": 0-100, "confidence": 0-1}]`

// GeminiExtractor extracts hints with a Gemini multimodal model
type GeminiExtractor struct {
	client  *genai.Client
	logger  ectologger.Logger
	model   string
	timeout time.Duration
}

// NewGeminiExtractor creates a new GeminiExtractor
func NewGeminiExtractor(ctx context.Context, apiKey, model string, timeout time.Duration, logger ectologger.Logger) (*GeminiExtractor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiExtractor{
		client:  client,
		logger:  logger,
		model:   model,
		timeout: timeout,
	}, nil
}

// Close releases the underlying client
func (g *GeminiExtractor) Close() error {
	return g.client.Close()
}

// rawHint is the wire shape the model is prompted to return
type rawHint struct {
	Name       string  `json:"name"`
	XPercent   float64 `json:"x_percent"`
	YPercent   float64 `json:"y_percent"`
	Confidence float64 `json:"confidence"`
}

// ExtractHints sends one page image to the model and parses the returned
// hint list. Coordinates are clamped to the 0-100 scale and confidence to
// 0-1; hints with empty names are discarded.
func (g *GeminiExtractor) ExtractHints(ctx context.Context, page models.PageImage, pageIndex int) ([]models.PositionHint, error) {
	ctx, span := tracing.StartSpan(ctx, "vision.GeminiExtractor.ExtractHints")
	defer span.End()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	log := g.logger.WithContext(ctx).WithField("page_index", pageIndex)

	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(0)

	format := strings.TrimPrefix(page.MIMEType, "image/")
	resp, err := model.GenerateContent(ctx,
		genai.ImageData(format, page.Data),
		genai.Text(hintPrompt),
	)
	if err != nil {
		log.WithError(err).Errorf("Hint extraction failed for page %d", pageIndex)
		return nil, &VisionError{PageIndex: pageIndex, Err: err}
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, &VisionError{PageIndex: pageIndex, Err: fmt.Errorf("empty response from model")}
	}

	txt, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return nil, &VisionError{PageIndex: pageIndex, Err: fmt.Errorf("unexpected response part type")}
	}

	hints, err := parseHints(string(txt), pageIndex)
	if err != nil {
		return nil, &VisionError{PageIndex: pageIndex, Err: err}
	}

	log.WithField("hint_count", len(hints)).Debug("Page hints extracted")
	return hints, nil
}

// parseHints decodes the model output, tolerating a markdown code fence
// around the JSON array.
func parseHints(text string, pageIndex int) ([]models.PositionHint, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var raw []rawHint
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("decoding hint payload: %w", err)
	}

	hints := make([]models.PositionHint, 0, len(raw))
	for _, r := range raw {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			continue
		}
		hints = append(hints, models.PositionHint{
			RawName:    name,
			PageIndex:  pageIndex,
			XPercent:   clamp(r.XPercent, 0, 100),
			YPercent:   clamp(r.YPercent, 0, 100),
			Confidence: clamp(r.Confidence, 0, 1),
		})
	}
	return hints, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
