package vision

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/mbachu/receiptlens/internal/progress"
)

const (
	defaultPrimaryModel   = "gemini-2.5-flash"
	defaultFallbackModel  = "gemini-2.5-pro"
	defaultCurrencySymbol = "₦"

	agentName = "vision"
)

// generator is the slice of *genai.GenerativeModel that Analyze needs.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Gemini implements the Analyzer interface using Google Gemini. The active
// model handle is replaceable: when the primary model is unavailable to the
// caller's credential it is swapped for the fallback model and the request
// retried once.
type Gemini struct {
	client   *genai.Client
	models   func(name string) generator
	active   generator
	primary  string
	fallback string
	currency string
}

// NewGemini creates a new Gemini Analyzer instance. The API key is
// required; model names and the default currency symbol may be empty to
// accept the defaults.
func NewGemini(apiKey, primaryModel, fallbackModel, currency string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if primaryModel == "" {
		primaryModel = defaultPrimaryModel
	}
	if fallbackModel == "" {
		fallbackModel = defaultFallbackModel
	}
	if currency == "" {
		currency = defaultCurrencySymbol
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	g := &Gemini{
		client:   client,
		primary:  primaryModel,
		fallback: fallbackModel,
		currency: currency,
	}
	g.models = func(name string) generator {
		return client.GenerativeModel(name)
	}
	g.active = g.models(primaryModel)

	return g, nil
}

// Analyze extracts structured receipt data via Gemini Vision. It never
// returns an error: any failure is logged and folded into a default record
// so a downstream pipeline is not blocked by an OCR failure.
func (g *Gemini) Analyze(ctx context.Context, imageData []byte, contentType string, reporter ProgressReporter) ExtractionResult {
	if reporter != nil {
		reporter.Emit(ctx, agentName, "ocr_started", "Gemini Vision analyzing receipt structure...", 10, nil)
	}

	result, err := g.extract(ctx, imageData, contentType)
	if err != nil {
		slog.Error("gemini vision extraction failed", "error", err)
		return failureResult(g.currency, err.Error())
	}

	if reporter != nil {
		reporter.Emit(ctx, agentName, "ocr_complete",
			fmt.Sprintf("Extracted: %s - %s%v", result.MerchantName, result.Currency, result.TotalAmount), 30,
			progress.Map{
				"merchant":   progress.String(result.MerchantName),
				"amount":     progress.Float(result.TotalAmount),
				"confidence": progress.Int(result.Confidence),
			})
	}

	slog.Info("gemini extraction complete", "merchant", result.MerchantName, "amount", result.TotalAmount)
	return result
}

func (g *Gemini) extract(ctx context.Context, imageData []byte, contentType string) (ExtractionResult, error) {
	pngData, err := normalizeImage(imageData, contentType)
	if err != nil {
		return ExtractionResult{}, err
	}

	// genai.ImageData expects just the format suffix, and normalizeImage
	// always hands back PNG
	parts := []genai.Part{
		genai.ImageData("png", pngData),
		genai.Text(extractionPrompt),
	}

	resp, err := g.active.GenerateContent(ctx, parts...)
	if err != nil {
		if !isModelNotFound(err) {
			return ExtractionResult{}, fmt.Errorf("generating content: %w", err)
		}
		slog.Warn("primary gemini model unavailable, trying fallback", "model", g.primary, "fallback", g.fallback)
		g.active = g.models(g.fallback)
		resp, err = g.active.GenerateContent(ctx, parts...)
		if err != nil {
			return ExtractionResult{}, fmt.Errorf("gemini api unavailable, verify the api key has model access: %w", err)
		}
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ExtractionResult{}, fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	return decodeExtraction(responseText.String(), g.currency)
}

// isModelNotFound reports whether an error means the model is unavailable
// to this credential, the only class of failure worth a fallback retry.
func isModelNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "404") || strings.Contains(msg, "not found")
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
