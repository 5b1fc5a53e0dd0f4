package vision

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/google/generative-ai-go/genai"

	"github.com/mbachu/receiptlens/internal/progress"
)

// mockGenerator is a mock implementation of the generator interface
type mockGenerator struct {
	resp  *genai.GenerateContentResponse
	err   error
	calls int
}

func (m *mockGenerator) GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []genai.Part{genai.Text(text)}}},
		},
	}
}

// recordedEmit captures one reporter call
type recordedEmit struct {
	agent   string
	stage   string
	message string
	percent int
	details progress.Value
}

// mockReporter is a mock implementation of ProgressReporter
type mockReporter struct {
	emits []recordedEmit
}

func (m *mockReporter) Emit(ctx context.Context, agent, stage, message string, percent int, details progress.Value) {
	m.emits = append(m.emits, recordedEmit{agent: agent, stage: stage, message: message, percent: percent, details: details})
}

var _ = Describe("NewGemini", func() {
	When("the api key is empty", func() {
		It("should fail immediately with a configuration error", func() {
			g, err := NewGemini("", "", "", "")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("api key"))
			Expect(g).To(BeNil())
		})
	})
})

var _ = Describe("Gemini.Analyze", func() {
	var (
		primary     *mockGenerator
		fallback    *mockGenerator
		extractor   *Gemini
		reporter    *mockReporter
		rep         ProgressReporter
		imageData   []byte
		contentType string
		result      ExtractionResult
	)

	BeforeEach(func() {
		primary = &mockGenerator{}
		fallback = &mockGenerator{}
		reporter = &mockReporter{}
		rep = reporter
		// normalizeImage passes PNG content through untouched
		imageData = []byte("png bytes")
		contentType = "image/png"

		extractor = &Gemini{
			primary:  "gemini-2.5-flash",
			fallback: "gemini-2.5-pro",
			currency: "₦",
		}
		extractor.models = func(name string) generator {
			return fallback
		}
		extractor.active = primary
	})

	JustBeforeEach(func() {
		result = extractor.Analyze(context.Background(), imageData, contentType, rep)
	})

	When("the primary model returns a well-formed response", func() {
		BeforeEach(func() {
			primary.resp = textResponse(`{"merchant_name":"Acme Store","total_amount":"2,500","currency":"$","confidence":92}`)
		})

		It("should return the extracted record", func() {
			Expect(result.MerchantName).To(Equal("Acme Store"))
			Expect(result.TotalAmount).To(Equal(2500.0))
			Expect(result.Currency).To(Equal("$"))
			Expect(result.Confidence).To(Equal(92))
			Expect(result.Error).To(BeEmpty())
		})

		It("should not touch the fallback model", func() {
			Expect(primary.calls).To(Equal(1))
			Expect(fallback.calls).To(Equal(0))
		})

		It("should emit start and completion progress events", func() {
			Expect(reporter.emits).To(HaveLen(2))
			Expect(reporter.emits[0].agent).To(Equal("vision"))
			Expect(reporter.emits[0].stage).To(Equal("ocr_started"))
			Expect(reporter.emits[0].percent).To(Equal(10))
			Expect(reporter.emits[1].stage).To(Equal("ocr_complete"))
			Expect(reporter.emits[1].percent).To(Equal(30))
		})

		It("should attach merchant, amount and confidence details to the completion event", func() {
			details, ok := reporter.emits[1].details.(progress.Map)
			Expect(ok).To(BeTrue())
			Expect(details["merchant"]).To(Equal(progress.String("Acme Store")))
			Expect(details["amount"]).To(Equal(progress.Float(2500.0)))
			Expect(details["confidence"]).To(Equal(progress.Int(92)))
		})
	})

	When("the response omits confidence", func() {
		BeforeEach(func() {
			primary.resp = textResponse(`{"merchant_name":"Acme Store","total_amount":10}`)
		})

		It("should default confidence to 85", func() {
			Expect(result.Confidence).To(Equal(85))
		})
	})

	When("the primary model is unavailable and the fallback succeeds", func() {
		BeforeEach(func() {
			primary.err = errors.New("googleapi: Error 404: model not found")
			fallback.resp = textResponse(`{"merchant_name":"Acme Store","total_amount":10,"confidence":70}`)
		})

		It("should retry once against the fallback model", func() {
			Expect(primary.calls).To(Equal(1))
			Expect(fallback.calls).To(Equal(1))
		})

		It("should return the fallback's extraction", func() {
			Expect(result.MerchantName).To(Equal("Acme Store"))
			Expect(result.Confidence).To(Equal(70))
			Expect(result.Error).To(BeEmpty())
		})
	})

	When("both models are unavailable", func() {
		BeforeEach(func() {
			primary.err = errors.New("model not found")
			fallback.err = errors.New("model not found")
		})

		It("should fold the failure into a default record", func() {
			Expect(result.MerchantName).To(Equal("Unknown Merchant"))
			Expect(result.TotalAmount).To(Equal(0.0))
			Expect(result.Currency).To(Equal("₦"))
			Expect(result.Confidence).To(Equal(0))
			Expect(result.VisualAnomalies).To(BeEmpty())
		})

		It("should name the credential as the likely cause", func() {
			Expect(result.Error).To(ContainSubstring("api key"))
		})

		It("should only emit the start event", func() {
			Expect(reporter.emits).To(HaveLen(1))
			Expect(reporter.emits[0].percent).To(Equal(10))
		})
	})

	When("the primary model fails with a non-retryable error", func() {
		BeforeEach(func() {
			primary.err = errors.New("deadline exceeded")
		})

		It("should not try the fallback model", func() {
			Expect(primary.calls).To(Equal(1))
			Expect(fallback.calls).To(Equal(0))
		})

		It("should fold the failure into a default record", func() {
			Expect(result.Confidence).To(Equal(0))
			Expect(result.Error).NotTo(BeEmpty())
		})
	})

	When("the response is not parseable JSON", func() {
		BeforeEach(func() {
			primary.resp = textResponse("this receipt is unreadable")
		})

		It("should fold the failure into a default record", func() {
			Expect(result.MerchantName).To(Equal("Unknown Merchant"))
			Expect(result.Confidence).To(Equal(0))
			Expect(result.OCRText).To(ContainSubstring("unavailable"))
			Expect(result.Error).NotTo(BeEmpty())
		})
	})

	When("the response has no candidates", func() {
		BeforeEach(func() {
			primary.resp = &genai.GenerateContentResponse{}
		})

		It("should fold the failure into a default record", func() {
			Expect(result.Confidence).To(Equal(0))
			Expect(result.Error).NotTo(BeEmpty())
		})
	})

	When("the image cannot be decoded", func() {
		BeforeEach(func() {
			imageData = []byte("not an image at all")
			contentType = "image/jpeg"
		})

		It("should fold the failure into a default record without a remote call", func() {
			Expect(primary.calls).To(Equal(0))
			Expect(result.Confidence).To(Equal(0))
			Expect(result.Error).NotTo(BeEmpty())
		})
	})

	When("no reporter is supplied", func() {
		BeforeEach(func() {
			primary.resp = textResponse(`{"merchant_name":"Acme Store","total_amount":10}`)
			rep = nil
		})

		It("should behave the same without emitting", func() {
			Expect(result.MerchantName).To(Equal("Acme Store"))
			Expect(reporter.emits).To(BeEmpty())
		})
	})
})
