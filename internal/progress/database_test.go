package progress

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BoltStore", func() {
	var (
		tempDir string
		store   *BoltStore
		err     error
	)

	BeforeEach(func() {
		tempDir, err = os.MkdirTemp("", "receiptlens-test-*")
		Expect(err).NotTo(HaveOccurred())

		store, err = NewBoltStore(filepath.Join(tempDir, "test.db"), "receipts")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if store != nil {
			store.Close()
		}
		if tempDir != "" {
			os.RemoveAll(tempDir)
		}
	})

	Describe("MergeFields", func() {
		It("should create the document on first write", func() {
			err = store.MergeFields(context.Background(), "r1", map[string]any{"progress_stage": "ocr_started"})
			Expect(err).NotTo(HaveOccurred())

			doc, err := store.Document("r1")
			Expect(err).NotTo(HaveOccurred())
			Expect(doc["progress_stage"]).To(Equal("ocr_started"))
		})

		It("should merge new fields and keep existing ones", func() {
			err = store.MergeFields(context.Background(), "r1", map[string]any{
				"progress_stage":      "ocr_started",
				"progress_percentage": 10,
			})
			Expect(err).NotTo(HaveOccurred())

			err = store.MergeFields(context.Background(), "r1", map[string]any{
				"progress_stage":           "ocr_complete",
				"progress_percentage":      30,
				"progress_detail_merchant": "Acme Store",
			})
			Expect(err).NotTo(HaveOccurred())

			doc, err := store.Document("r1")
			Expect(err).NotTo(HaveOccurred())
			// numbers round-trip through JSON as float64
			Expect(doc["progress_stage"]).To(Equal("ocr_complete"))
			Expect(doc["progress_percentage"]).To(BeNumerically("==", 30))
			Expect(doc["progress_detail_merchant"]).To(Equal("Acme Store"))
		})

		It("should keep documents for different receipts independent", func() {
			Expect(store.MergeFields(context.Background(), "r1", map[string]any{"progress_agent": "vision"})).To(Succeed())
			Expect(store.MergeFields(context.Background(), "r2", map[string]any{"progress_agent": "forensic"})).To(Succeed())

			doc, err := store.Document("r1")
			Expect(err).NotTo(HaveOccurred())
			Expect(doc["progress_agent"]).To(Equal("vision"))

			doc, err = store.Document("r2")
			Expect(err).NotTo(HaveOccurred())
			Expect(doc["progress_agent"]).To(Equal("forensic"))
		})
	})

	Describe("Document", func() {
		It("should return an error for an unknown receipt", func() {
			_, err := store.Document("missing")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("NewBoltStore", func() {
		It("should default the collection name", func() {
			other, err := NewBoltStore(filepath.Join(tempDir, "other.db"), "")
			Expect(err).NotTo(HaveOccurred())
			defer other.Close()

			Expect(other.MergeFields(context.Background(), "r1", map[string]any{"a": 1})).To(Succeed())
		})
	})
})
