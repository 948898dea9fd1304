package domain

import (
	"sort"
	"time"
)

// CategoryUnknown is reported when no category scores above the threshold.
const CategoryUnknown = "unknown"

// PageResult is the recognized text of a single page.
type PageResult struct {
	Page       int     `json:"page"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Metadata maps a field name (dates, amounts, tax_ids ...) to its distinct
// values in first-seen order.
type Metadata map[string][]string

// Add appends values to field, skipping duplicates and empty strings.
func (m Metadata) Add(field string, values ...string) {
	for _, v := range values {
		if v == "" || contains(m[field], v) {
			continue
		}
		m[field] = append(m[field], v)
	}
}

// Merge unions other into m.
func (m Metadata) Merge(other Metadata) {
	fields := make([]string, 0, len(other))
	for f := range other {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		m.Add(f, other[f]...)
	}
}

func contains(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}

// CategoryScore is the score of one category under one language's patterns.
type CategoryScore struct {
	Language string  `json:"language"`
	Category string  `json:"category"`
	Score    float64 `json:"score"`
}

// Categorization is the outcome of the categorize stage. Category and
// Language name the highest scoring pair; Scores keeps every candidate.
type Categorization struct {
	Category   string          `json:"category"`
	Language   string          `json:"language,omitempty"`
	Confidence float64         `json:"confidence"`
	Scores     []CategoryScore `json:"scores,omitempty"`
}

// Result is the output of a successfully completed task. It is written once
// and expires after the configured TTL.
type Result struct {
	TaskID           string         `json:"task_id"`
	Text             string         `json:"text"`
	Confidence       float64        `json:"confidence"`
	Pages            []PageResult   `json:"pages"`
	Categorization   Categorization `json:"categorization"`
	Metadata         Metadata       `json:"metadata"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
	CreatedAt        time.Time      `json:"created_at"`
}

// ResultSummary is the subset of a Result carried in lifecycle events.
type ResultSummary struct {
	Category         string   `json:"category"`
	Confidence       float64  `json:"confidence"`
	PageCount        int      `json:"page_count"`
	TextLength       int      `json:"text_length"`
	ProcessingTimeMs int64    `json:"processing_time_ms"`
	Metadata         Metadata `json:"metadata,omitempty"`
}

// Summary returns the event-sized view of r.
func (r *Result) Summary() *ResultSummary {
	return &ResultSummary{
		Category:         r.Categorization.Category,
		Confidence:       r.Confidence,
		PageCount:        len(r.Pages),
		TextLength:       len(r.Text),
		ProcessingTimeMs: r.ProcessingTimeMs,
		Metadata:         r.Metadata,
	}
}

// BatchStatus is derived from the member tasks of a batch.
type BatchStatus struct {
	BatchID  string         `json:"batch_id"`
	Total    int            `json:"total"`
	Counts   map[Status]int `json:"counts"`
	Progress int            `json:"progress"`
	Done     bool           `json:"done"`
	Tasks    []*Task        `json:"tasks"`
}

// NewBatchStatus aggregates member tasks. Progress is the mean task progress,
// counting terminal tasks as 100.
func NewBatchStatus(batchID string, tasks []*Task) *BatchStatus {
	bs := &BatchStatus{
		BatchID: batchID,
		Total:   len(tasks),
		Counts:  make(map[Status]int),
		Done:    true,
		Tasks:   tasks,
	}
	if len(tasks) == 0 {
		return bs
	}

	sum := 0
	for _, t := range tasks {
		bs.Counts[t.Status]++
		if t.Status.IsTerminal() {
			sum += 100
		} else {
			sum += t.Progress
			bs.Done = false
		}
	}
	bs.Progress = sum / len(tasks)
	return bs
}
