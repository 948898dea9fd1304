//go:build tesseract

package tesseract

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/private-doc-vault/docvault-ocr-service/internal/domain"
	"github.com/private-doc-vault/docvault-ocr-service/internal/pipeline"
)

// Available reports whether the engine is compiled in.
func Available() bool { return true }

// Recognize runs the engine on one page image. Confidence is the mean word
// confidence scaled to 0..1.
func (r *Recognizer) Recognize(ctx context.Context, image []byte, languages []string) (pipeline.Recognition, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.Recognition{}, err
	}

	c := gosseract.NewClient()
	defer func() { _ = c.Close() }()

	if err := c.SetImageFromBytes(image); err != nil {
		return pipeline.Recognition{}, domain.Permanent(fmt.Errorf("set image: %w", err))
	}
	if langs := Languages(languages); len(langs) > 0 {
		if err := c.SetLanguage(langs...); err != nil {
			return pipeline.Recognition{}, domain.Permanent(fmt.Errorf("set languages %v: %w", langs, err))
		}
	}
	if r.cfg.DPI > 0 {
		dpi := strconv.Itoa(r.cfg.DPI)
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), dpi); err != nil {
			return pipeline.Recognition{}, fmt.Errorf("set dpi: %w", err)
		}
	}

	text, err := c.Text()
	if err != nil {
		return pipeline.Recognition{}, domain.Transient(fmt.Errorf("recognize text: %w", err))
	}

	return pipeline.Recognition{
		Text:       strings.TrimSpace(text),
		Confidence: meanWordConfidence(c),
	}, nil
}

func meanWordConfidence(c *gosseract.Client) float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence / 100.0
	}
	return sum / float64(len(boxes))
}
