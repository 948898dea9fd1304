//go:build !tesseract

package tesseract

import (
	"context"

	"github.com/private-doc-vault/docvault-ocr-service/internal/domain"
	"github.com/private-doc-vault/docvault-ocr-service/internal/pipeline"
)

// Available reports whether the engine is compiled in.
func Available() bool { return false }

// Recognize always fails with ErrUnavailable.
func (r *Recognizer) Recognize(context.Context, []byte, []string) (pipeline.Recognition, error) {
	return pipeline.Recognition{}, domain.Permanent(ErrUnavailable)
}
