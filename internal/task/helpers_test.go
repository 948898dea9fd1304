package task

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/private-doc-vault/docvault-ocr-service/internal/classify"
	"github.com/private-doc-vault/docvault-ocr-service/internal/domain"
	"github.com/private-doc-vault/docvault-ocr-service/internal/events"
	"github.com/private-doc-vault/docvault-ocr-service/internal/metrics"
	"github.com/private-doc-vault/docvault-ocr-service/internal/pipeline"
	"github.com/private-doc-vault/docvault-ocr-service/internal/platform/logger"
	redisstore "github.com/private-doc-vault/docvault-ocr-service/internal/platform/redis"
	"github.com/private-doc-vault/docvault-ocr-service/internal/store"
)

const invoiceText = `INVOICE
Invoice Number: INV-2026-001
Invoice Date: 2026-01-15
Bill To: Acme Corp
Amount Due: $1,500.00
Payment Terms: Net 30 days`

var errEngineBusy = errors.New("engine busy")

// fakeFiles serves documents from memory.
type fakeFiles struct {
	mu      sync.Mutex
	docs    map[string][]byte
	cleaned []string
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{docs: make(map[string][]byte)}
}

func (f *fakeFiles) put(path, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[path] = []byte(content)
}

func (f *fakeFiles) Open(_ context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.docs[path]
	if !ok {
		return nil, domain.Permanent(fmt.Errorf("%w: %s", domain.ErrNotFound, path))
	}
	return data, nil
}

func (f *fakeFiles) Cleanup(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleaned = append(f.cleaned, path)
	return nil
}

func (f *fakeFiles) Cleaned() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cleaned...)
}

// pageConverter splits documents into pages on form feeds. Documents
// starting with "corrupt" cannot be decoded.
type pageConverter struct{}

func (pageConverter) Convert(_ context.Context, filename string, data []byte) ([]pipeline.Page, error) {
	if bytes.HasPrefix(data, []byte("corrupt")) {
		return nil, domain.Permanent(fmt.Errorf("corrupt document %s", filename))
	}
	parts := bytes.Split(data, []byte("\f"))
	pages := make([]pipeline.Page, len(parts))
	for i, p := range parts {
		pages[i] = pipeline.Page{Number: i + 1, Image: p}
	}
	return pages, nil
}

// scriptedRecognizer returns the page image as text. failures[i] is
// returned by the i-th call when set. With a gate, every call announces
// itself on entered and waits for the gate to close.
type scriptedRecognizer struct {
	mu       sync.Mutex
	calls    int
	seen     []string
	failures []error
	gate     chan struct{}
	entered  chan struct{}
}

func (r *scriptedRecognizer) Recognize(_ context.Context, image []byte, _ []string) (pipeline.Recognition, error) {
	r.mu.Lock()
	call := r.calls
	r.calls++
	r.seen = append(r.seen, string(image))
	var err error
	if call < len(r.failures) {
		err = r.failures[call]
	}
	gate, entered := r.gate, r.entered
	r.mu.Unlock()

	if gate != nil {
		entered <- struct{}{}
		<-gate
	}
	if err != nil {
		return pipeline.Recognition{}, err
	}
	return pipeline.Recognition{Text: string(image), Confidence: 0.9}, nil
}

func (r *scriptedRecognizer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *scriptedRecognizer) Seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

// hold makes every later call block until the returned release is called.
func (r *scriptedRecognizer) hold() (entered <-chan struct{}, release func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gate = make(chan struct{})
	r.entered = make(chan struct{}, 16)
	gate := r.gate
	var once sync.Once
	return r.entered, func() { once.Do(func() { close(gate) }) }
}

// checkpointStore runs onProgress once, right after the progress entry at
// the given percentage has been recorded.
type checkpointStore struct {
	store.TaskStore
	at         int
	onProgress func()
	once       sync.Once
}

func (s *checkpointStore) RecordProgress(ctx context.Context, id string, entry domain.ProgressEntry) error {
	err := s.TaskStore.RecordProgress(ctx, id, entry)
	if entry.Progress == s.at {
		s.once.Do(s.onProgress)
	}
	return err
}

type harness struct {
	mr         *miniredis.Miniredis
	store      *redisstore.TaskStore
	queue      *redisstore.Queue
	files      *fakeFiles
	recognizer *scriptedRecognizer
	events     *events.Recorder
	deps       Dependencies
	svc        *Service
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	maxRetries int
	maxDepth   int64
}

func withMaxRetries(n int) harnessOption {
	return func(c *harnessConfig) { c.maxRetries = n }
}

func withMaxDepth(n int64) harnessOption {
	return func(c *harnessConfig) { c.maxDepth = n }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{maxRetries: 2}
	for _, opt := range opts {
		opt(&cfg)
	}

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := logger.Discard()
	registry := classify.DefaultRegistry()

	h := &harness{
		mr:         mr,
		store:      redisstore.NewTaskStore(rdb, log),
		queue:      redisstore.NewQueue(rdb, cfg.maxDepth, log),
		files:      newFakeFiles(),
		recognizer: &scriptedRecognizer{},
		events:     &events.Recorder{},
	}

	emitter := events.NewInMemoryEventEmitter(log)
	emitter.RegisterHandler(h.events)

	h.deps = Dependencies{
		Store: h.store,
		Queue: h.queue,
		Processor: pipeline.New(
			pageConverter{},
			h.recognizer,
			classify.NewExtractor(registry),
			classify.NewCategorizer(registry),
			pipeline.WithLogger(log),
		),
		Files:   h.files,
		Events:  emitter,
		Metrics: metrics.New(),
	}
	h.svc = NewService(h.deps, ServiceConfig{
		MaxRetries: cfg.maxRetries,
		Languages:  registry.Codes(),
	}, log)
	return h
}

func testWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval:    5 * time.Millisecond,
		MaxTaskDuration: time.Minute,
		ResultTTL:       time.Hour,
	}
}

func (h *harness) worker() *Worker {
	return NewWorker("test-1", h.deps, testWorkerConfig(), logger.Discard())
}

// submit stores content under a path derived from name and submits it.
func (h *harness) submit(t *testing.T, name, content string, priority domain.Priority) *domain.Task {
	t.Helper()
	path := "/docs/" + name
	h.files.put(path, content)
	task, err := h.svc.Submit(context.Background(), domain.TaskSpec{
		DocumentID: name,
		FilePath:   path,
		Priority:   priority,
	})
	require.NoError(t, err)
	return task
}

// drain processes tasks until the queue is empty.
func (h *harness) drain(t *testing.T, w *Worker) int {
	t.Helper()
	n := 0
	for {
		processed, err := w.RunOnce(context.Background())
		require.NoError(t, err)
		if !processed {
			return n
		}
		n++
		require.Less(t, n, 100, "queue never drained")
	}
}

func (h *harness) status(t *testing.T, id string) *domain.Task {
	t.Helper()
	task, err := h.svc.Status(context.Background(), id)
	require.NoError(t, err)
	return task
}

// claim dequeues the next task and claims it as a worker would.
func (h *harness) claim(t *testing.T) *domain.Task {
	t.Helper()
	ctx := context.Background()
	entry, ok, err := h.queue.Dequeue(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	task, err := h.store.Update(ctx, entry.TaskID, domain.ClaimUpdate("stale-token"))
	require.NoError(t, err)
	return task
}

func countType(types []events.EventType, want events.EventType) int {
	n := 0
	for _, typ := range types {
		if typ == want {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the recognizer")
	}
}
