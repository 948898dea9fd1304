package app

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/private-doc-vault/docvault-ocr-service/internal/classify"
	"github.com/private-doc-vault/docvault-ocr-service/internal/config"
	"github.com/private-doc-vault/docvault-ocr-service/internal/pipeline"
	"github.com/private-doc-vault/docvault-ocr-service/internal/platform/imaging"
	"github.com/private-doc-vault/docvault-ocr-service/internal/platform/tesseract"
)

// ErrNoEngine is returned when the binary was built without the recognition
// engine.
var ErrNoEngine = errors.New("recognition engine not compiled in, rebuild with -tags tesseract")

// NewProcessor builds the recognition pipeline from the image converter, the
// recognition engine and the default classification tables.
func NewProcessor(cfg *config.Config, logger *slog.Logger) (*pipeline.Pipeline, error) {
	if !tesseract.Available() {
		return nil, ErrNoEngine
	}
	return newPipeline(cfg, tesseract.New(tesseract.Config{DPI: cfg.OCR.DPI}, logger), logger), nil
}

func newPipeline(cfg *config.Config, rec pipeline.Recognizer, logger *slog.Logger) *pipeline.Pipeline {
	registry := classify.DefaultRegistry()
	return pipeline.New(
		imaging.NewConverter(imaging.WithLogger(logger)),
		rec,
		classify.NewExtractor(registry),
		classify.NewCategorizer(registry),
		pipeline.WithPageConcurrency(cfg.Worker.PageConcurrency),
		pipeline.WithDefaultLanguages(normalizeLanguages(cfg.OCR.Languages)),
		pipeline.WithLogger(logger),
	)
}

// AcceptedLanguages lists the language hints admission accepts: every
// language with classification tables plus the configured OCR languages.
func AcceptedLanguages(cfg *config.Config) []string {
	codes := classify.DefaultRegistry().Codes()
	seen := make(map[string]bool, len(codes))
	for _, c := range codes {
		seen[c] = true
	}
	for _, l := range normalizeLanguages(cfg.OCR.Languages) {
		if !seen[l] {
			seen[l] = true
			codes = append(codes, l)
		}
	}
	return codes
}

func normalizeLanguages(langs []string) []string {
	out := make([]string, 0, len(langs))
	for _, l := range langs {
		if l = strings.ToLower(strings.TrimSpace(l)); l != "" {
			out = append(out, l)
		}
	}
	return out
}
