package coaching

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Model tier selectors. Daily tasks run on the cheap tier; weekly plan
// generation uses the higher-reasoning tier.
const (
	TierCheap     = "cheap"
	TierReasoning = "reasoning"
)

// GenerateRequest is one fully-assembled prompt ready for the backend.
type GenerateRequest struct {
	Tier            string
	Prompt          string
	Temperature     float32
	MaxOutputTokens int32
}

// GenerateResponse carries the raw text plus token accounting.
type GenerateResponse struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Backend is the model invocation boundary. The production
// implementation talks to Gemini; tests substitute a mock.
type Backend interface {
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
}

// modelPricing is USD per million tokens.
type modelPricing struct {
	inputUSD  float64
	outputUSD float64
}

var pricing = map[string]modelPricing{
	"gemini-2.0-flash": {inputUSD: 0.10, outputUSD: 0.40},
	"gemini-1.5-pro":   {inputUSD: 1.25, outputUSD: 5.00},
}

// CostUSD estimates the dollar cost of an invocation from token counts.
// Unknown models price as the most expensive known one.
func CostUSD(model string, inputTokens, outputTokens int) float64 {
	p, ok := pricing[model]
	if !ok {
		p = pricing["gemini-1.5-pro"]
	}
	return float64(inputTokens)*p.inputUSD/1e6 + float64(outputTokens)*p.outputUSD/1e6
}

// GeminiBackend generates content using Google Gemini.
type GeminiBackend struct {
	APIKey         string
	CheapModel     string
	ReasoningModel string
}

func NewGeminiBackend(apiKey string) *GeminiBackend {
	return &GeminiBackend{
		APIKey:         apiKey,
		CheapModel:     "gemini-2.0-flash",
		ReasoningModel: "gemini-1.5-pro",
	}
}

func (b *GeminiBackend) modelFor(tier string) string {
	if tier == TierReasoning {
		return b.ReasoningModel
	}
	return b.CheapModel
}

func (b *GeminiBackend) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(b.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	defer client.Close()

	modelName := b.modelFor(req.Tier)
	model := client.GenerativeModel(modelName)
	model.SetTemperature(req.Temperature)
	model.SetTopP(0.9)
	if req.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(req.MaxOutputTokens)
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return nil, classifyBackendError(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no content generated")
	}

	out := &GenerateResponse{Model: modelName}
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out.Text += string(text)
		}
	}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	} else {
		out.InputTokens = EstimateTokens(req.Prompt)
		out.OutputTokens = EstimateTokens(out.Text)
	}
	return out, nil
}

// classifyBackendError wraps rate limits, timeouts, and server errors as
// transient so the invoker retries them. Everything else fails fast.
func classifyBackendError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case 429, 500, 502, 503, 504:
			return &TransientBackendError{Err: err}
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransientBackendError{Err: err}
	}
	return err
}
