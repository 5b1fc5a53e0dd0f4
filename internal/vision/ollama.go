package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mbachu/receiptlens/internal/progress"
)

// Ollama implements the Analyzer interface against a locally hosted Ollama
// server. There is no model fallback here; any failure folds into the
// default record like every other extraction failure.
//
// Recommended vision models: llava:1.6, llava:latest, qwen2-vl:7b, bakllava.
type Ollama struct {
	baseURL  string
	model    string
	currency string
	client   *http.Client
}

// NewOllama creates a new Ollama Analyzer instance
func NewOllama(baseURL, modelName, currency string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}
	if currency == "" {
		currency = defaultCurrencySymbol
	}

	return &Ollama{
		baseURL:  baseURL,
		model:    modelName,
		currency: currency,
		client: &http.Client{
			Timeout: 120 * time.Second, // vision models on local hardware are slow
		},
	}, nil
}

// ollamaChatRequest represents the request body for Ollama's chat API
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Images   []string        `json:"images,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Analyze extracts structured receipt data via the Ollama chat API. Like
// the Gemini backend it never returns an error to the caller.
func (o *Ollama) Analyze(ctx context.Context, imageData []byte, contentType string, reporter ProgressReporter) ExtractionResult {
	if reporter != nil {
		reporter.Emit(ctx, agentName, "ocr_started", "Ollama analyzing receipt structure...", 10, nil)
	}

	result, err := o.extract(ctx, imageData, contentType)
	if err != nil {
		slog.Error("ollama extraction failed", "model", o.model, "error", err)
		return failureResult(o.currency, err.Error())
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

	slog.Info("ollama extraction complete", "merchant", result.MerchantName, "amount", result.TotalAmount)
	return result
}

func (o *Ollama) extract(ctx context.Context, imageData []byte, contentType string) (ExtractionResult, error) {
	pngData, err := normalizeImage(imageData, contentType)
	if err != nil {
		return ExtractionResult{}, err
	}

	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an expert at reading and extracting information from payment receipts. You must carefully read all text in images and extract accurate information.",
			},
			{
				Role:    "user",
				Content: extractionPrompt,
			},
		},
		Images: []string{base64.StdEncoding.EncodeToString(pngData)},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return ExtractionResult{}, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return ExtractionResult{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return ExtractionResult{}, fmt.Errorf("calling ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return ExtractionResult{}, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return ExtractionResult{}, fmt.Errorf("decoding response: %w", err)
	}

	return decodeExtraction(chatResp.Message.Content, o.currency)
}

// Close closes the Ollama client (no-op for HTTP client)
func (o *Ollama) Close() error {
	return nil
}
