package task

import (
	"context"
	"time"

	"github.com/private-doc-vault/docvault-ocr-service/internal/domain"
	"github.com/private-doc-vault/docvault-ocr-service/internal/events"
	"github.com/private-doc-vault/docvault-ocr-service/internal/metrics"
	"github.com/private-doc-vault/docvault-ocr-service/internal/pipeline"
	"github.com/private-doc-vault/docvault-ocr-service/internal/store"
)

// Processor is the classification pipeline as the worker drives it.
// *pipeline.Pipeline implements it.
type Processor interface {
	Languages(hints []string) []string
	Convert(ctx context.Context, filename string, data []byte) ([]pipeline.Page, error)
	RecognizePages(
		ctx context.Context,
		pages []pipeline.Page,
		languages []string,
		onPage func(done, total int),
	) ([]domain.PageResult, error)
	ExtractMetadata(ctx context.Context, text string, languages []string) (domain.Metadata, error)
	Categorize(ctx context.Context, text string, languages []string) (domain.Categorization, error)
}

var _ Processor = (*pipeline.Pipeline)(nil)

// FileStore reads the document a task points at and removes it once the
// task completed.
type FileStore interface {
	Open(ctx context.Context, path string) ([]byte, error)
	Cleanup(ctx context.Context, path string) error
}

// Dependencies are the collaborators shared by the Service, workers and
// watchdogs. Events and Metrics may be nil.
type Dependencies struct {
	Store     store.TaskStore
	Queue     store.PriorityQueue
	Processor Processor
	Files     FileStore
	Events    events.EventEmitter
	Metrics   *metrics.Metrics
}

// requeueAttempts bounds the retries of a queue write that must not be lost,
// such as putting a task back after a transient failure.
const requeueAttempts = 5

// requeueBackoff is the first delay between those retries; it doubles.
const requeueBackoff = 50 * time.Millisecond
