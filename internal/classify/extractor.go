package classify

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/private-doc-vault/docvault-ocr-service/internal/domain"
	"github.com/private-doc-vault/docvault-ocr-service/internal/pipeline"
)

// Metadata field names.
const (
	FieldDates          = "dates"
	FieldAmounts        = "amounts"
	FieldEmails         = "emails"
	FieldPhones         = "phones"
	FieldPostalCodes    = "postal_codes"
	FieldInvoiceNumbers = "invoice_numbers"
	FieldPONumbers      = "po_numbers"
	FieldTaxIDs         = "tax_ids"
)

const (
	minYear   = 1900
	maxYear   = 2100
	maxAmount = 1e9
)

var (
	emailPattern   = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	isoDatePattern = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	numDatePattern = regexp.MustCompile(`\b(\d{1,2})[/.-](\d{1,2})[/.-](\d{4})\b`)
	digitPattern   = regexp.MustCompile(`\d`)
)

// Extractor pulls structured fields out of recognized text using one
// language's patterns. Dates are reported as YYYY-MM-DD and amounts with two
// decimals.
type Extractor struct {
	registry *Registry

	mu    sync.Mutex
	built map[*Language]*derivedPatterns
}

var _ pipeline.MetadataExtractor = (*Extractor)(nil)

// derivedPatterns are built from a language's month names and currencies.
type derivedPatterns struct {
	dayMonthYear *regexp.Regexp
	monthDayYear *regexp.Regexp
	months       map[string]time.Month
	amounts      []*regexp.Regexp
}

// NewExtractor creates an Extractor over the tables in r.
func NewExtractor(r *Registry) *Extractor {
	return &Extractor{registry: r, built: make(map[*Language]*derivedPatterns)}
}

// ExtractMetadata returns the fields found in text. Fields without values
// are omitted.
func (e *Extractor) ExtractMetadata(ctx context.Context, text, language string) (domain.Metadata, error) {
	lang, err := e.registry.Lookup(language)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d := e.derived(lang)
	md := domain.Metadata{}

	md.Add(FieldDates, extractDates(text, lang.DayFirst, d)...)
	md.Add(FieldAmounts, extractAmounts(text, d.amounts)...)
	md.Add(FieldEmails, emailPattern.FindAllString(text, -1)...)
	md.Add(FieldPhones, findAll(text, lang.PhonePatterns, false)...)
	md.Add(FieldPostalCodes, findAll(text, lang.PostalCodePatterns, false)...)
	md.Add(FieldInvoiceNumbers, findAll(text, lang.InvoicePatterns, true)...)
	md.Add(FieldPONumbers, findAll(text, lang.POPatterns, true)...)
	md.Add(FieldTaxIDs, findAll(text, lang.TaxIDPatterns, false)...)

	return md, nil
}

func (e *Extractor) derived(lang *Language) *derivedPatterns {
	e.mu.Lock()
	defer e.mu.Unlock()

	if d, ok := e.built[lang]; ok {
		return d
	}
	d := buildDerived(lang)
	e.built[lang] = d
	return d
}

func buildDerived(lang *Language) *derivedPatterns {
	d := &derivedPatterns{months: make(map[string]time.Month)}

	var words []string
	for _, list := range [][]string{lang.MonthNames, lang.MonthAbbreviations} {
		for i, w := range list {
			d.months[strings.ToLower(w)] = time.Month(i + 1)
			words = append(words, regexp.QuoteMeta(w))
		}
	}
	if len(words) > 0 {
		// Longest first so a full name wins over its abbreviation.
		sort.SliceStable(words, func(i, j int) bool { return len(words[i]) > len(words[j]) })
		months := strings.Join(words, "|")
		d.dayMonthYear = regexp.MustCompile(`(?i)\b(\d{1,2})\s+(` + months + `)\.?\s+(\d{4})\b`)
		d.monthDayYear = regexp.MustCompile(`(?i)\b(` + months + `)\.?\s+(\d{1,2}),?\s+(\d{4})\b`)
	}

	if len(lang.CurrencySymbols) > 0 {
		symbols := make([]string, len(lang.CurrencySymbols))
		for i, s := range lang.CurrencySymbols {
			symbols[i] = regexp.QuoteMeta(s)
		}
		currency := strings.Join(symbols, "|")
		number := `(\d{1,3}(?:[,. ]\d{3})*(?:[,.]\d{2})?)`
		d.amounts = []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:` + currency + `)\s*` + number),
			regexp.MustCompile(`(?i)` + number + `\s*(?:` + currency + `)`),
		}
	}
	return d
}

func extractDates(text string, dayFirst bool, d *derivedPatterns) []string {
	var dates []string
	add := func(y, m, day int) {
		if s, ok := formatDate(y, m, day); ok {
			dates = append(dates, s)
		}
	}

	for _, g := range isoDatePattern.FindAllStringSubmatch(text, -1) {
		add(atoi(g[1]), atoi(g[2]), atoi(g[3]))
	}

	for _, g := range numDatePattern.FindAllStringSubmatch(text, -1) {
		a, b, y := atoi(g[1]), atoi(g[2]), atoi(g[3])
		day, month := b, a
		if dayFirst {
			day, month = a, b
		}
		if month > 12 {
			day, month = month, day
		}
		add(y, month, day)
	}

	if d.dayMonthYear != nil {
		for _, g := range d.dayMonthYear.FindAllStringSubmatch(text, -1) {
			add(atoi(g[3]), int(d.months[strings.ToLower(g[2])]), atoi(g[1]))
		}
		for _, g := range d.monthDayYear.FindAllStringSubmatch(text, -1) {
			add(atoi(g[3]), int(d.months[strings.ToLower(g[1])]), atoi(g[2]))
		}
	}
	return dates
}

func formatDate(year, month, day int) (string, bool) {
	if year < minYear || year > maxYear || month < 1 || month > 12 || day < 1 {
		return "", false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return "", false
	}
	return t.Format(time.DateOnly), true
}

func extractAmounts(text string, patterns []*regexp.Regexp) []string {
	var amounts []string
	for _, re := range patterns {
		for _, g := range re.FindAllStringSubmatch(text, -1) {
			v, err := parseAmount(g[1])
			if err != nil || v <= 0 || v >= maxAmount {
				continue
			}
			amounts = append(amounts, strconv.FormatFloat(v, 'f', 2, 64))
		}
	}
	return amounts
}

// parseAmount reads both 1,500.00 and 1.500,00 style numbers. A single comma
// followed by exactly two digits is a decimal comma.
func parseAmount(s string) (float64, error) {
	s = strings.ReplaceAll(s, " ", "")

	dot := strings.LastIndex(s, ".")
	comma := strings.LastIndex(s, ",")
	switch {
	case dot >= 0 && comma >= 0:
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case comma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-comma-1 == 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case strings.Count(s, ".") > 1 || (dot >= 0 && len(s)-dot-1 == 3):
		s = strings.ReplaceAll(s, ".", "")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return v, nil
}

// findAll returns every match of patterns, preferring the first capture
// group when a pattern has one. With needDigit, values without a digit are
// dropped.
func findAll(text string, patterns []*regexp.Regexp, needDigit bool) []string {
	var out []string
	for _, re := range patterns {
		for _, g := range re.FindAllStringSubmatch(text, -1) {
			v := g[0]
			if len(g) > 1 {
				v = g[1]
			}
			v = strings.TrimSpace(v)
			if needDigit && !digitPattern.MatchString(v) {
				continue
			}
			out = append(out, v)
		}
	}
	return out
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
