// Package pipeline defines the stages a worker runs a document through and
// combines their outputs into a domain.Result.
//
// The stage implementations live elsewhere (imaging, tesseract, classify);
// this package only fixes their contracts and the merge rules: per-page
// recognition with optional page concurrency, metadata union across
// languages and max-score category selection.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/private-doc-vault/docvault-ocr-service/internal/domain"
)

// MinCategoryScore is the best score below which a document is reported as
// domain.CategoryUnknown.
const MinCategoryScore = 0.25

// ErrUnknownLanguage is returned by language-aware stages for a language
// they have no tables for.
var ErrUnknownLanguage = errors.New("unknown language")

// Page is one page image produced by a Converter.
type Page struct {
	Number int
	Image  []byte
}

// Recognition is the text recognized on one page.
type Recognition struct {
	Text       string
	Confidence float64
}

// Converter turns a source document into page images. Unsupported or corrupt
// input must be reported with domain.Permanent.
type Converter interface {
	Convert(ctx context.Context, filename string, data []byte) ([]Page, error)
}

// Recognizer runs text recognition on a page image.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte, languages []string) (Recognition, error)
}

// MetadataExtractor extracts structured fields from text using one
// language's patterns.
type MetadataExtractor interface {
	ExtractMetadata(ctx context.Context, text, language string) (domain.Metadata, error)
}

// Categorizer scores text against one language's category patterns. Scores
// are in 0..1.
type Categorizer interface {
	Categorize(ctx context.Context, text, language string) (map[string]float64, error)
}

// Pipeline combines the stage implementations.
type Pipeline struct {
	converter       Converter
	recognizer      Recognizer
	extractor       MetadataExtractor
	categorizer     Categorizer
	pageConcurrency int
	languages       []string
	logger          *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPageConcurrency recognizes up to n pages of a task at once.
func WithPageConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.pageConcurrency = n
		}
	}
}

// WithDefaultLanguages sets the languages used when a task has no hints.
func WithDefaultLanguages(langs []string) Option {
	return func(p *Pipeline) {
		if len(langs) > 0 {
			p.languages = append([]string(nil), langs...)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l.With("component", "pipeline") }
}

// New creates a Pipeline.
func New(c Converter, r Recognizer, e MetadataExtractor, cat Categorizer, opts ...Option) *Pipeline {
	p := &Pipeline{
		converter:       c,
		recognizer:      r,
		extractor:       e,
		categorizer:     cat,
		pageConcurrency: 1,
		languages:       []string{"en"},
		logger:          slog.Default().With("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Languages returns hints, or the default languages when hints is empty.
func (p *Pipeline) Languages(hints []string) []string {
	if len(hints) > 0 {
		return hints
	}
	return p.languages
}

// Convert produces the page images of a document. A document without pages
// is a permanent failure.
func (p *Pipeline) Convert(ctx context.Context, filename string, data []byte) ([]Page, error) {
	pages, err := p.converter.Convert(ctx, filename, data)
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", filename, err)
	}
	if len(pages) == 0 {
		return nil, domain.Permanent(fmt.Errorf("convert %s: document has no pages", filename))
	}
	return pages, nil
}

// RecognizePages recognizes every page, in page order in the result.
// onPage is called after each page with the number of pages done so far;
// calls are serialized and done only increases.
func (p *Pipeline) RecognizePages(
	ctx context.Context,
	pages []Page,
	languages []string,
	onPage func(done, total int),
) ([]domain.PageResult, error) {
	results := make([]domain.PageResult, len(pages))

	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.pageConcurrency)

	for i, page := range pages {
		i, page := i, page
		g.Go(func() error {
			rec, err := p.recognizer.Recognize(gctx, page.Image, languages)
			if err != nil {
				return fmt.Errorf("recognize page %d: %w", page.Number, err)
			}
			results[i] = domain.PageResult{
				Page:       page.Number,
				Text:       rec.Text,
				Confidence: rec.Confidence,
			}

			mu.Lock()
			done++
			if onPage != nil {
				onPage(done, len(pages))
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// MergePages joins page texts with blank lines and averages the confidence
// of pages that produced text.
func MergePages(pages []domain.PageResult) (string, float64) {
	texts := make([]string, 0, len(pages))
	var sum float64
	var n int
	for _, pg := range pages {
		text := strings.TrimSpace(pg.Text)
		if text == "" {
			continue
		}
		texts = append(texts, text)
		sum += pg.Confidence
		n++
	}
	if n == 0 {
		return "", 0
	}
	return strings.Join(texts, "\n\n"), sum / float64(n)
}

// ExtractMetadata runs the extractor once per language and unions the
// results. Languages without tables are skipped.
func (p *Pipeline) ExtractMetadata(ctx context.Context, text string, languages []string) (domain.Metadata, error) {
	merged := domain.Metadata{}
	for _, lang := range languages {
		md, err := p.extractor.ExtractMetadata(ctx, text, lang)
		if errors.Is(err, ErrUnknownLanguage) {
			p.logger.Debug("no metadata patterns for language", "language", lang)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("extract metadata (%s): %w", lang, err)
		}
		merged.Merge(md)
	}
	return merged, nil
}

// Categorize scores text under every language and selects the single
// (language, category) pair with the highest score. Every score is kept in
// the result. When no language is known the failure is permanent.
func (p *Pipeline) Categorize(ctx context.Context, text string, languages []string) (domain.Categorization, error) {
	var scores []domain.CategoryScore
	known := 0

	for _, lang := range languages {
		byCategory, err := p.categorizer.Categorize(ctx, text, lang)
		if errors.Is(err, ErrUnknownLanguage) {
			p.logger.Debug("no category patterns for language", "language", lang)
			continue
		}
		if err != nil {
			return domain.Categorization{}, fmt.Errorf("categorize (%s): %w", lang, err)
		}
		known++

		categories := make([]string, 0, len(byCategory))
		for c := range byCategory {
			categories = append(categories, c)
		}
		sort.Strings(categories)
		for _, c := range categories {
			scores = append(scores, domain.CategoryScore{Language: lang, Category: c, Score: byCategory[c]})
		}
	}

	if known == 0 {
		return domain.Categorization{}, domain.Permanent(
			fmt.Errorf("categorize: %w: none of %v", ErrUnknownLanguage, languages))
	}

	result := domain.Categorization{Category: domain.CategoryUnknown, Scores: scores}
	best := -1
	for i, s := range scores {
		if best < 0 || s.Score > scores[best].Score {
			best = i
		}
	}
	if best >= 0 {
		result.Language = scores[best].Language
		result.Confidence = scores[best].Score
		if scores[best].Score >= MinCategoryScore {
			result.Category = scores[best].Category
		}
	}
	return result, nil
}
