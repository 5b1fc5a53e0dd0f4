package vision

import (
	"context"

	"github.com/mbachu/receiptlens/internal/progress"
)

// ExtractionResult contains the structured data pulled from one receipt image.
// Every field is always populated; a failed extraction is signalled by
// Confidence == 0 and a non-empty Error, never by a missing field.
type ExtractionResult struct {
	MerchantName    string   `json:"merchant_name"`
	TotalAmount     float64  `json:"total_amount"`
	Currency        string   `json:"currency"`
	Date            string   `json:"date"` // ISO 8601 format, empty if unknown
	TransactionID   string   `json:"transaction_id"`
	OCRText         string   `json:"ocr_text"`
	Confidence      int      `json:"confidence"` // 0-100
	VisualAnomalies []string `json:"visual_anomalies"`
	Error           string   `json:"error,omitempty"`
}

// ProgressReporter receives status updates while an analysis is in flight.
// A nil reporter disables reporting. Implementations must not fail the
// caller; progress.Channel satisfies this interface.
type ProgressReporter interface {
	Emit(ctx context.Context, agent, stage, message string, percent int, details progress.Value)
}

// Analyzer defines the interface for receipt analysis backends.
type Analyzer interface {
	// Analyze extracts structured data from a receipt image. It always
	// returns a complete ExtractionResult; failures are folded into the
	// record rather than returned.
	Analyze(ctx context.Context, imageData []byte, contentType string, reporter ProgressReporter) ExtractionResult
	// Close closes the backend and releases resources
	Close() error
}

// failureResult builds the record returned when extraction fails for any
// reason, so downstream stages always receive a well-formed structure.
func failureResult(currency string, cause string) ExtractionResult {
	return ExtractionResult{
		MerchantName:    "Unknown Merchant",
		TotalAmount:     0.0,
		Currency:        currency,
		Date:            "",
		TransactionID:   "",
		OCRText:         "OCR extraction unavailable - vision model error",
		Confidence:      0,
		VisualAnomalies: []string{},
		Error:           cause,
	}
}
