package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	apiMiddleware "github.com/private-doc-vault/docvault-ocr-service/internal/api/middleware"
	"github.com/private-doc-vault/docvault-ocr-service/internal/domain"
	"github.com/private-doc-vault/docvault-ocr-service/internal/events"
	"github.com/private-doc-vault/docvault-ocr-service/internal/metrics"
	"github.com/private-doc-vault/docvault-ocr-service/internal/platform/filestore"
	"github.com/private-doc-vault/docvault-ocr-service/internal/platform/logger"
	redisstore "github.com/private-doc-vault/docvault-ocr-service/internal/platform/redis"
	"github.com/private-doc-vault/docvault-ocr-service/internal/task"
)

const testMaxUploadBytes = 1 << 16

type apiHarness struct {
	mr     *miniredis.Miniredis
	rdb    *goredis.Client
	store  *redisstore.TaskStore
	queue  *redisstore.Queue
	files  *filestore.Local
	svc    *task.Service
	events *events.Recorder
	router http.Handler
}

type apiOption func(*apiConfig)

type apiConfig struct {
	maxDepth    int64
	rateLimiter *apiMiddleware.RateLimiter
}

func withQueueDepth(n int64) apiOption {
	return func(c *apiConfig) { c.maxDepth = n }
}

func withRateLimit(perSecond float64, burst int) apiOption {
	return func(c *apiConfig) { c.rateLimiter = apiMiddleware.NewRateLimiter(perSecond, burst, logger.Discard()) }
}

func newAPIHarness(t *testing.T, opts ...apiOption) *apiHarness {
	t.Helper()
	var cfg apiConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := logger.Discard()
	files, err := filestore.NewLocal(t.TempDir(), log)
	require.NoError(t, err)

	h := &apiHarness{
		mr:     mr,
		rdb:    rdb,
		store:  redisstore.NewTaskStore(rdb, log),
		queue:  redisstore.NewQueue(rdb, cfg.maxDepth, log),
		files:  files,
		events: &events.Recorder{},
	}

	emitter := events.NewInMemoryEventEmitter(log)
	emitter.RegisterHandler(h.events)

	h.svc = task.NewService(task.Dependencies{
		Store:   h.store,
		Queue:   h.queue,
		Files:   files,
		Events:  emitter,
		Metrics: metrics.New(),
	}, task.ServiceConfig{MaxRetries: 2, Languages: []string{"en", "pl"}}, log)

	h.router = NewRouter(RouterConfig{
		Tasks:       NewTaskHandler(h.svc, files, testMaxUploadBytes, log),
		Health:      func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		RateLimiter: cfg.rateLimiter,
		Logger:      log,
	})
	return h
}

func (h *apiHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, ok := body.(string)
		if !ok {
			data, err := json.Marshal(body)
			require.NoError(t, err)
			raw = string(data)
		}
		r = bytes.NewBufferString(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *apiHarness) upload(t *testing.T, filename string, content []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *apiHarness) submit(t *testing.T, path string) *domain.Task {
	t.Helper()
	created, err := h.svc.Submit(context.Background(), domain.TaskSpec{FilePath: path})
	require.NoError(t, err)
	return created
}

// complete drives a queued task to COMPLETED with a stored result.
func (h *apiHarness) complete(t *testing.T, id string) *domain.Result {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.queue.RemoveIfQueued(ctx, id))
	_, err := h.store.Update(ctx, id, domain.ClaimUpdate("tok"))
	require.NoError(t, err)

	result := &domain.Result{
		TaskID:     id,
		Text:       "Invoice INV-2026-001",
		Confidence: 91.5,
		Pages:      []domain.PageResult{{Page: 1, Text: "Invoice INV-2026-001", Confidence: 91.5}},
		Categorization: domain.Categorization{
			Category: "invoice", Language: "en", Confidence: 0.65,
		},
		Metadata:  domain.Metadata{"invoice_numbers": {"INV-2026-001"}},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, h.store.PutResult(ctx, id, result, time.Hour))
	_, err = h.store.Update(ctx, id, domain.CompleteUpdate("tok"))
	require.NoError(t, err)
	return result
}

// fail drives a queued task to FAILED and dead-letters it.
func (h *apiHarness) fail(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.queue.RemoveIfQueued(ctx, id))
	_, err := h.store.Update(ctx, id, domain.ClaimUpdate("tok"))
	require.NoError(t, err)
	_, err = h.store.Update(ctx, id, domain.FailUpdate("tok", 2, "engine unavailable"))
	require.NoError(t, err)
	require.NoError(t, h.queue.DeadLetter(ctx, id, "engine unavailable"))
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}
