package vision

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// defaultConfidence is assumed when the model omits a confidence score.
const defaultConfidence = 85

// rawExtraction mirrors the JSON object the model is asked to return.
// TotalAmount is left loose because models sometimes return formatted
// strings ("₦1,500.75") instead of numbers.
type rawExtraction struct {
	MerchantName    string   `json:"merchant_name"`
	TotalAmount     any      `json:"total_amount"`
	Currency        string   `json:"currency"`
	Date            string   `json:"date"`
	TransactionID   string   `json:"transaction_id"`
	OCRText         string   `json:"ocr_text"`
	Confidence      *float64 `json:"confidence"`
	VisualAnomalies []string `json:"visual_anomalies"`
}

// decodeExtraction parses the model's text response into an ExtractionResult
func decodeExtraction(text string, defaultCurrency string) (ExtractionResult, error) {
	text = strings.TrimSpace(text)

	// Remove markdown code blocks if present
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return ExtractionResult{}, fmt.Errorf("no JSON object found in response")
	}

	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return ExtractionResult{}, fmt.Errorf("invalid JSON object in response")
	}

	text = text[startIdx : endIdx+1]

	var raw rawExtraction
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return ExtractionResult{}, fmt.Errorf("unmarshaling json: %w", err)
	}

	result := ExtractionResult{
		MerchantName:  strings.TrimSpace(raw.MerchantName),
		TotalAmount:   sanitizeAmount(raw.TotalAmount),
		Currency:      strings.TrimSpace(raw.Currency),
		Date:          strings.TrimSpace(raw.Date),
		TransactionID: strings.TrimSpace(raw.TransactionID),
		OCRText:       raw.OCRText,
	}

	if result.MerchantName == "" {
		result.MerchantName = "Unknown Merchant"
	}
	if result.Currency == "" {
		result.Currency = defaultCurrency
	}

	if raw.Confidence != nil {
		result.Confidence = clampConfidence(int(*raw.Confidence))
	} else {
		result.Confidence = defaultConfidence
	}

	result.VisualAnomalies = raw.VisualAnomalies
	if result.VisualAnomalies == nil {
		result.VisualAnomalies = []string{}
	}

	return result, nil
}

// sanitizeAmount normalizes an amount value from the model into a
// non-negative float. String amounts keep only digits and the decimal
// point before parsing, so "₦1,500.75" becomes 1500.75. Applying it to an
// already-clean number is a no-op.
func sanitizeAmount(v any) float64 {
	switch amount := v.(type) {
	case float64:
		if amount < 0 {
			return 0.0
		}
		return amount
	case string:
		var clean strings.Builder
		for _, r := range amount {
			if (r >= '0' && r <= '9') || r == '.' {
				clean.WriteRune(r)
			}
		}
		if clean.Len() == 0 {
			return 0.0
		}
		parsed, err := strconv.ParseFloat(clean.String(), 64)
		if err != nil {
			return 0.0
		}
		return parsed
	default:
		return 0.0
	}
}

func clampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}
