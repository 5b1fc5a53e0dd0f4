package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/mbachu/receiptlens/internal/progress"
	"github.com/mbachu/receiptlens/internal/vision"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("receiptlens")
	var (
		dbPath        = fs.StringLong("db", "receiptlens.db", "Progress document store file path")
		collection    = fs.StringLong("collection", "receipts", "Document collection for progress updates")
		backend       = fs.StringLong("backend", "gemini", "Vision backend: 'gemini' or 'ollama'")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-flash", "Primary Gemini model name")
		geminiBackup  = fs.StringLong("gemini-fallback-model", "gemini-2.5-pro", "Fallback Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, qwen2-vl)")
		currency      = fs.StringLong("currency", "₦", "Default currency symbol for extraction results")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPTLENS"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	images := fs.GetArgs()
	if len(images) == 0 {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintln(os.Stderr, "error: at least one receipt image path is required")
		os.Exit(1)
	}

	// Initialize document store
	slog.Info("Opening document store...", "path", *dbPath, "collection", *collection)
	store, err := progress.NewBoltStore(*dbPath, *collection)
	if err != nil {
		slog.Error("Failed to open document store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Initialize vision backend
	var analyzer vision.Analyzer
	switch *backend {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini backend...", "model", *geminiModel, "fallback", *geminiBackup)
		analyzer, err = vision.NewGemini(apiKey, *geminiModel, *geminiBackup, *currency)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama backend...", "url", *ollamaURL, "model", *ollamaModel)
		analyzer, err = vision.NewOllama(*ollamaURL, *ollamaModel, *currency)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid backend", "backend", *backend, "valid", "gemini or ollama")
		os.Exit(1)
	}
	defer analyzer.Close()

	ctx := context.Background()
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	for _, path := range images {
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Error("Failed to read image", "path", path, "error", err)
			os.Exit(1)
		}

		receiptID := fmt.Sprintf("%d", time.Now().UnixNano())
		channel := progress.NewChannel(store, receiptID)

		result := analyzer.Analyze(ctx, data, http.DetectContentType(data), channel)

		doc, _ := store.Document(receiptID)
		if err := enc.Encode(map[string]any{
			"receipt_id": receiptID,
			"result":     result,
			"progress":   doc,
		}); err != nil {
			slog.Error("Failed to write result", "error", err)
			os.Exit(1)
		}
	}
}
