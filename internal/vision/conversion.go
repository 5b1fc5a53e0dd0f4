package vision

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// extractionPrompt is the shared prompt used by all vision backends. The
// model is asked for a strict JSON object so the response can be decoded
// without any conversational cleanup beyond fence stripping.
const extractionPrompt = `Analyze this image. It is likely a payment receipt.
Extract the following information in strict JSON format:
1. merchant_name (string): The name of the business/person.
2. total_amount (number): The final total amount paid (remove currency symbols, handle 'k' or 'm' notation if present).
3. currency (string): The currency symbol (e.g., ₦, $, £).
4. date (string): The transaction date (ISO format YYYY-MM-DD if possible).
5. transaction_id (string): Any reference number, session ID, or transaction hash.
6. ocr_text (string): A raw transcription of all visible text.
7. confidence (number): Your confidence score (0-100) in this extraction.
8. visual_anomalies (array): List of any suspicious patterns (font differences, color inconsistencies, overlays).

Return ONLY the JSON object. Do not include Markdown formatting like ` + "```json" + `.`

// normalizeImage converts whatever the caller hands us (PDF, HEIC, JPEG,
// GIF, PNG) into PNG bytes suitable for a multimodal submission. The
// returned data is always PNG.
func normalizeImage(imageData []byte, contentType string) ([]byte, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if mimeType == "" {
		mimeType = "image/jpeg" // default for bare phone uploads
	}

	if mimeType == "application/pdf" {
		pngData, err := renderPDF(imageData)
		if err != nil {
			return nil, fmt.Errorf("converting PDF to image: %w", err)
		}
		return pngData, nil
	}

	if mimeType == "image/png" && !isHEIC(imageData, mimeType) {
		return imageData, nil
	}

	var img image.Image
	var err error
	if isHEIC(imageData, mimeType) {
		// Go's standard image package doesn't decode HEIC/HEIF
		img, err = heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	}

	return encodePNG(img)
}

// renderPDF rasterizes the first page of a PDF. Receipts are almost always
// single page.
func renderPDF(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}

	return encodePNG(img)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEIC detects HEIC/HEIF content via the ftyp box brand or the MIME type.
func isHEIC(data []byte, mimeType string) bool {
	if strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif") {
		return true
	}
	if len(data) >= 12 && string(data[4:8]) == "ftyp" {
		switch string(data[8:12]) {
		case "heic", "heif", "mif1", "msf1":
			return true
		}
	}
	return false
}
