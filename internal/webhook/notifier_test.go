package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/private-doc-vault/docvault-ocr-service/internal/config"
	"github.com/private-doc-vault/docvault-ocr-service/internal/domain"
	"github.com/private-doc-vault/docvault-ocr-service/internal/events"
	"github.com/private-doc-vault/docvault-ocr-service/internal/platform/logger"
)

const testSecret = "s3cret"

func testConfig(url string) config.WebhookConfig {
	return config.WebhookConfig{
		URL:        url,
		Secret:     testSecret,
		MaxRetries: 3,
		Backoff:    []time.Duration{time.Millisecond, 2 * time.Millisecond},
		Timeout:    time.Second,
		Workers:    2,
		Buffer:     8,
	}
}

func testEvent() *events.TaskEvent {
	return events.NewTaskEvent(events.EventCompleted, &domain.Task{
		ID:         "task-1",
		DocumentID: "doc-1",
		Status:     domain.StatusCompleted,
		Progress:   100,
	})
}

type capturedRequest struct {
	header http.Header
	body   []byte
}

// callbackServer answers with the given status codes in order, repeating the
// last one.
func callbackServer(t *testing.T, codes ...int) (*httptest.Server, func() []capturedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []capturedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, capturedRequest{header: r.Header.Clone(), body: body})
		code := codes[min(len(reqs)-1, len(codes)-1)]
		mu.Unlock()
		w.WriteHeader(code)
	}))
	t.Cleanup(srv.Close)

	return srv, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), reqs...)
	}
}

func TestSignAndVerify(t *testing.T) {
	body := []byte(`{"task_id":"task-1"}`)
	sig := Sign(testSecret, 1700000000, body)

	assert.Len(t, sig, 64)
	assert.True(t, Verify(testSecret, 1700000000, body, sig))
	assert.False(t, Verify("other", 1700000000, body, sig))
	assert.False(t, Verify(testSecret, 1700000001, body, sig))
	assert.False(t, Verify(testSecret, 1700000000, []byte(`{}`), sig))
	assert.False(t, Verify(testSecret, 1700000000, body, "not-hex"))
}

func TestNewNotifierRequiresSecret(t *testing.T) {
	cfg := testConfig("http://example.test")
	cfg.Secret = ""
	_, err := NewNotifier(cfg, logger.Discard())
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestDeliver_SignedPayload(t *testing.T) {
	srv, requests := callbackServer(t, http.StatusOK)
	n, err := NewNotifier(testConfig(srv.URL), logger.Discard())
	require.NoError(t, err)

	event := testEvent()
	event.Result = &domain.ResultSummary{Category: "invoice", Confidence: 0.8}
	require.NoError(t, n.Deliver(context.Background(), event))

	reqs := requests()
	require.Len(t, reqs, 1)
	req := reqs[0]

	assert.Equal(t, "application/json", req.header.Get("Content-Type"))
	assert.Equal(t, event.ID.String(), req.header.Get(HeaderEventID))
	ts, err := strconv.ParseInt(req.header.Get(HeaderTimestamp), 10, 64)
	require.NoError(t, err)
	assert.True(t, Verify(testSecret, ts, req.body, req.header.Get(HeaderSignature)))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.body, &payload))
	assert.Equal(t, "task-1", payload["task_id"])
	assert.Equal(t, "doc-1", payload["document_id"])
	assert.Equal(t, "completed", payload["status"])
	assert.Contains(t, payload, "result")
	assert.Contains(t, payload, "timestamp")
}

func TestDeliver_RetriesServerErrors(t *testing.T) {
	srv, requests := callbackServer(t, http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusOK)
	n, err := NewNotifier(testConfig(srv.URL), logger.Discard())
	require.NoError(t, err)

	require.NoError(t, n.Deliver(context.Background(), testEvent()))
	assert.Len(t, requests(), 3)
}

func TestDeliver_GivesUpAfterMaxRetries(t *testing.T) {
	srv, requests := callbackServer(t, http.StatusInternalServerError)
	cfg := testConfig(srv.URL)
	cfg.MaxRetries = 2
	n, err := NewNotifier(cfg, logger.Discard())
	require.NoError(t, err)

	err = n.Deliver(context.Background(), testEvent())
	assert.Error(t, err)
	assert.Len(t, requests(), 3, "one attempt plus two retries")
}

func TestDeliver_ClientErrorsAreNotRetried(t *testing.T) {
	srv, requests := callbackServer(t, http.StatusBadRequest)
	n, err := NewNotifier(testConfig(srv.URL), logger.Discard())
	require.NoError(t, err)

	assert.Error(t, n.Deliver(context.Background(), testEvent()))
	assert.Len(t, requests(), 1)
}

func TestDeliver_TooManyRequestsIsRetried(t *testing.T) {
	srv, requests := callbackServer(t, http.StatusTooManyRequests, http.StatusNoContent)
	n, err := NewNotifier(testConfig(srv.URL), logger.Discard())
	require.NoError(t, err)

	require.NoError(t, n.Deliver(context.Background(), testEvent()))
	assert.Len(t, requests(), 2)
}

func TestDeliver_CallbackOverride(t *testing.T) {
	defaultSrv, defaultReqs := callbackServer(t, http.StatusOK)
	overrideSrv, overrideReqs := callbackServer(t, http.StatusOK)
	n, err := NewNotifier(testConfig(defaultSrv.URL), logger.Discard())
	require.NoError(t, err)

	event := testEvent()
	event.CallbackURL = overrideSrv.URL
	require.NoError(t, n.Deliver(context.Background(), event))

	assert.Empty(t, defaultReqs())
	assert.Len(t, overrideReqs(), 1)
}

func TestHandleEvent_AsyncDeliveryAndDrain(t *testing.T) {
	srv, requests := callbackServer(t, http.StatusOK)
	n, err := NewNotifier(testConfig(srv.URL), logger.Discard())
	require.NoError(t, err)
	n.Start()

	for i := 0; i < 5; i++ {
		require.NoError(t, n.HandleEvent(context.Background(), testEvent()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, n.Close(ctx))
	assert.Len(t, requests(), 5)

	assert.ErrorIs(t, n.HandleEvent(context.Background(), testEvent()), ErrClosed)
}

func TestHandleEvent_DoesNotBlockWhenFull(t *testing.T) {
	release := make(chan struct{})
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	cfg := testConfig(srv.URL)
	cfg.Workers = 1
	cfg.Buffer = 1
	n, err := NewNotifier(cfg, logger.Discard())
	require.NoError(t, err)
	n.Start()

	// First event occupies the only sender, second fills the buffer.
	require.NoError(t, n.HandleEvent(context.Background(), testEvent()))
	require.Eventually(t, func() bool { return received.Load() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, n.HandleEvent(context.Background(), testEvent()))

	start := time.Now()
	err = n.HandleEvent(context.Background(), testEvent())
	assert.ErrorIs(t, err, ErrBufferFull)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestHandleEvent_NoTargetIsIgnored(t *testing.T) {
	n, err := NewNotifier(testConfig(""), logger.Discard())
	require.NoError(t, err)

	assert.NoError(t, n.HandleEvent(context.Background(), testEvent()))
	assert.NoError(t, n.Deliver(context.Background(), testEvent()))
}
