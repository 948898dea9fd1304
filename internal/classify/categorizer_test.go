package classify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/private-doc-vault/docvault-ocr-service/internal/pipeline"
)

const englishInvoice = `INVOICE
Invoice Number: INV-2026-001
Invoice Date: 2026-01-15
Bill To: Acme Corp
Amount Due: $1,500.00
Payment Terms: Net 30 days`

const polishLetter = `Szanowny Panie,
zwracam się z prośbą o informację w sprawie umowy.
Z poważaniem
Jan Kowalski`

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(&Language{
		Code: "xx",
		Categories: []Category{{
			Name:     "alpha",
			Keywords: []string{"k1", "k2", "k3", "k4", "k5"},
			Patterns: categoryPatterns(`p1`, `p2`, `p3`, `p4`),
		}},
	})
	require.NoError(t, err)
	return r
}

func TestCategorize_Weights(t *testing.T) {
	c := NewCategorizer(testRegistry(t))
	ctx := context.Background()

	tests := []struct {
		text string
		want float64
	}{
		{text: "nothing relevant", want: 0},
		{text: "k1 only", want: 0.15},
		{text: "P1 only", want: 0.2},
		{text: "k1 and p1", want: 0.35},
		{text: "k1 k2 k3 k4 k5", want: 0.6},
		{text: "p1 p2 p3 p4", want: 0.7},
		{text: "k1 k2 k3 k4 k5 p1 p2 p3 p4", want: 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			scores, err := c.Categorize(ctx, tt.text, "xx")
			require.NoError(t, err)
			assert.InDelta(t, tt.want, scores["alpha"], 1e-9)
		})
	}
}

func TestCategorize_EnglishInvoice(t *testing.T) {
	c := NewCategorizer(DefaultRegistry())

	scores, err := c.Categorize(context.Background(), englishInvoice, "en")
	require.NoError(t, err)

	assert.InDelta(t, 1.0, scores["invoice"], 1e-9)
	for name, s := range scores {
		if name != "invoice" {
			assert.Less(t, s, scores["invoice"], name)
		}
	}
}

func TestCategorize_PolishLetter(t *testing.T) {
	c := NewCategorizer(DefaultRegistry())

	scores, err := c.Categorize(context.Background(), polishLetter, "pl")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, scores["letter"], 1e-9)
	assert.Less(t, scores["invoice"], scores["letter"])
}

func TestCategorize_ShortText(t *testing.T) {
	c := NewCategorizer(DefaultRegistry())

	scores, err := c.Categorize(context.Background(), "  ab ", "en")
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestCategorize_UnknownLanguage(t *testing.T) {
	c := NewCategorizer(DefaultRegistry())

	_, err := c.Categorize(context.Background(), englishInvoice, "de")
	assert.ErrorIs(t, err, pipeline.ErrUnknownLanguage)
}

func TestCategorize_WithPipeline(t *testing.T) {
	reg := DefaultRegistry()
	p := pipeline.New(nil, nil, NewExtractor(reg), NewCategorizer(reg))

	result, err := p.Categorize(context.Background(), englishInvoice, []string{"pl", "en"})
	require.NoError(t, err)
	assert.Equal(t, "invoice", result.Category)
	assert.Equal(t, "en", result.Language)
	assert.InDelta(t, 1.0, result.Confidence, 1e-9)
}
