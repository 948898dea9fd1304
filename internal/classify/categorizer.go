package classify

import (
	"context"
	"strings"

	"github.com/private-doc-vault/docvault-ocr-service/internal/pipeline"
)

// Scoring weights. A category's score is the capped keyword part plus the
// capped pattern part, capped again at 1.
const (
	KeywordWeight = 0.15
	KeywordCap    = 0.6
	PatternWeight = 0.2
	PatternCap    = 0.7

	// minTextLength is the trimmed length below which text is not scored.
	minTextLength = 3
)

// Categorizer scores text against the categories of a language.
type Categorizer struct {
	registry *Registry
}

var _ pipeline.Categorizer = (*Categorizer)(nil)

// NewCategorizer creates a Categorizer over the tables in r.
func NewCategorizer(r *Registry) *Categorizer {
	return &Categorizer{registry: r}
}

// Categorize returns the score of every category of language. Text shorter
// than three characters yields no scores.
func (c *Categorizer) Categorize(ctx context.Context, text, language string) (map[string]float64, error) {
	lang, err := c.registry.Lookup(language)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(text)) < minTextLength {
		return map[string]float64{}, nil
	}

	lower := strings.ToLower(text)
	scores := make(map[string]float64, len(lang.Categories))
	for _, cat := range lang.Categories {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scores[cat.Name] = score(text, lower, cat)
	}
	return scores, nil
}

func score(text, lower string, cat Category) float64 {
	keywordHits := 0
	for _, kw := range cat.Keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			keywordHits++
		}
	}

	patternHits := 0
	for _, re := range cat.Patterns {
		if re.MatchString(text) {
			patternHits++
		}
	}

	s := min(float64(keywordHits)*KeywordWeight, KeywordCap) +
		min(float64(patternHits)*PatternWeight, PatternCap)
	return min(s, 1.0)
}
