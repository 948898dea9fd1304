// Package tesseract implements pipeline.Recognizer on the Tesseract engine.
//
// The engine binding needs cgo and the tesseract libraries, so it is only
// compiled with the "tesseract" build tag. Without the tag, Recognize fails
// permanently with ErrUnavailable and Available reports false.
package tesseract

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/private-doc-vault/docvault-ocr-service/internal/pipeline"
)

// ErrUnavailable is returned when the binary was built without the engine.
var ErrUnavailable = errors.New("tesseract engine not compiled in")

// languageCodes maps service language codes to tesseract traineddata names.
var languageCodes = map[string]string{
	"en": "eng",
	"pl": "pol",
	"de": "deu",
	"fr": "fra",
	"es": "spa",
	"it": "ita",
}

// Config configures the engine.
type Config struct {
	// DPI is passed as user_defined_dpi when positive.
	DPI int
}

// Recognizer implements pipeline.Recognizer.
type Recognizer struct {
	cfg    Config
	logger *slog.Logger
}

var _ pipeline.Recognizer = (*Recognizer)(nil)

// New creates a Recognizer.
func New(cfg Config, logger *slog.Logger) *Recognizer {
	return &Recognizer{cfg: cfg, logger: logger.With("component", "tesseract")}
}

// Languages converts language hints into tesseract language names,
// dropping duplicates. Unknown codes are passed through unchanged so
// installed traineddata can be named directly.
func Languages(hints []string) []string {
	out := make([]string, 0, len(hints))
	seen := make(map[string]bool, len(hints))
	for _, h := range hints {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		name, ok := languageCodes[h]
		if !ok {
			name = h
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}
