// Package classify holds the per-language keyword and pattern tables and the
// categorizer and metadata extractor that evaluate them.
//
// Tables are plain values collected in a Registry that is built once and
// passed to NewCategorizer and NewExtractor. Nothing is registered globally.
package classify

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/private-doc-vault/docvault-ocr-service/internal/pipeline"
)

// Category is one document category of a language.
type Category struct {
	Name        string
	Description string
	// Keywords are matched as lowercase substrings.
	Keywords []string
	// Patterns are matched case-insensitively in multi-line mode.
	Patterns []*regexp.Regexp
}

// Language is the pattern table for one language.
type Language struct {
	Code       string
	Name       string
	Categories []Category

	// DayFirst reads numeric dates as DD/MM/YYYY.
	DayFirst           bool
	MonthNames         []string
	MonthAbbreviations []string
	CurrencySymbols    []string

	PhonePatterns      []*regexp.Regexp
	PostalCodePatterns []*regexp.Regexp
	// Invoice, PO and tax id patterns report their first capture group.
	InvoicePatterns []*regexp.Regexp
	POPatterns      []*regexp.Regexp
	TaxIDPatterns   []*regexp.Regexp
}

// Validate checks that the table is usable.
func (l *Language) Validate() error {
	if l.Code == "" {
		return fmt.Errorf("language code is required")
	}
	if len(l.Categories) == 0 {
		return fmt.Errorf("language %s has no categories", l.Code)
	}
	seen := make(map[string]bool, len(l.Categories))
	for _, c := range l.Categories {
		if c.Name == "" {
			return fmt.Errorf("language %s has a category without a name", l.Code)
		}
		if seen[c.Name] {
			return fmt.Errorf("language %s defines category %s twice", l.Code, c.Name)
		}
		seen[c.Name] = true
	}
	if len(l.MonthNames) != 0 && len(l.MonthNames) != 12 {
		return fmt.Errorf("language %s lists %d month names", l.Code, len(l.MonthNames))
	}
	if len(l.MonthAbbreviations) != 0 && len(l.MonthAbbreviations) != 12 {
		return fmt.Errorf("language %s lists %d month abbreviations", l.Code, len(l.MonthAbbreviations))
	}
	return nil
}

// Registry maps language codes to tables.
type Registry struct {
	languages map[string]*Language
}

// NewRegistry creates a Registry holding langs.
func NewRegistry(langs ...*Language) (*Registry, error) {
	r := &Registry{languages: make(map[string]*Language, len(langs))}
	for _, l := range langs {
		if err := r.Register(l); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultRegistry returns a Registry with the built-in English and Polish
// tables.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(English(), Polish())
	if err != nil {
		panic(err)
	}
	return r
}

// Register validates and adds l, replacing a table with the same code.
func (r *Registry) Register(l *Language) error {
	if l == nil {
		return fmt.Errorf("nil language")
	}
	if err := l.Validate(); err != nil {
		return err
	}
	r.languages[strings.ToLower(l.Code)] = l
	return nil
}

// Lookup returns the table for code or pipeline.ErrUnknownLanguage.
func (r *Registry) Lookup(code string) (*Language, error) {
	l, ok := r.languages[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", pipeline.ErrUnknownLanguage, code)
	}
	return l, nil
}

// Codes returns the registered language codes in sorted order.
func (r *Registry) Codes() []string {
	codes := make([]string, 0, len(r.languages))
	for c := range r.languages {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// Supports reports whether code has a table.
func (r *Registry) Supports(code string) bool {
	_, err := r.Lookup(code)
	return err == nil
}

func categoryPatterns(exprs ...string) []*regexp.Regexp {
	return compileAll("(?im)", exprs)
}

func fieldPatterns(exprs ...string) []*regexp.Regexp {
	return compileAll("(?i)", exprs)
}

func exactPatterns(exprs ...string) []*regexp.Regexp {
	return compileAll("", exprs)
}

func compileAll(flags string, exprs []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(flags + e)
	}
	return out
}
