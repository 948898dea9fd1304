package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/private-doc-vault/docvault-ocr-service/internal/config"
	"github.com/private-doc-vault/docvault-ocr-service/internal/events"
	"github.com/private-doc-vault/docvault-ocr-service/internal/metrics"
)

var (
	// ErrBufferFull is returned by HandleEvent when the delivery buffer is
	// full and the event was dropped.
	ErrBufferFull = errors.New("webhook buffer full")

	// ErrClosed is returned by HandleEvent after Close.
	ErrClosed = errors.New("webhook notifier closed")

	// ErrNoSecret is returned by NewNotifier without a signing secret.
	ErrNoSecret = errors.New("webhook secret is required")
)

// Notifier delivers events to the task's callback URL or the configured
// default URL. It implements events.EventHandler.
type Notifier struct {
	cfg     config.WebhookConfig
	client  *http.Client
	logger  *slog.Logger
	metrics *metrics.Metrics

	queue     chan *events.TaskEvent
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	startOnce sync.Once
	now       func() time.Time
}

var _ events.EventHandler = (*Notifier)(nil)

// Option configures a Notifier.
type Option func(*Notifier)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) { n.client = c }
}

// WithMetrics records delivery outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Notifier) { n.metrics = m }
}

// NewNotifier creates a Notifier. Call Start before emitting events.
func NewNotifier(cfg config.WebhookConfig, logger *slog.Logger, opts ...Option) (*Notifier, error) {
	if cfg.Secret == "" {
		return nil, ErrNoSecret
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Buffer < 1 {
		cfg.Buffer = 1
	}

	n := &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With("component", "webhook_notifier"),
		queue:  make(chan *events.TaskEvent, cfg.Buffer),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Start launches the sender goroutines. Calling it more than once has no
// further effect.
func (n *Notifier) Start() {
	n.startOnce.Do(func() {
		n.logger.Info("starting webhook senders", "workers", n.cfg.Workers, "buffer", n.cfg.Buffer)
		for i := 0; i < n.cfg.Workers; i++ {
			n.wg.Add(1)
			go n.sender(i)
		}
	})
}

// HandleEvent hands event to the senders without waiting for delivery.
// When the buffer is full the event is dropped.
func (n *Notifier) HandleEvent(_ context.Context, event *events.TaskEvent) error {
	if n.targetURL(event) == "" {
		return nil
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return ErrClosed
	}

	select {
	case n.queue <- event:
		return nil
	default:
		n.metrics.WebhookDelivery(metrics.WebhookDropped)
		n.logger.Warn("webhook buffer full, dropping event",
			"event_id", event.ID,
			"event_type", event.Type,
			"task_id", event.TaskID)
		return ErrBufferFull
	}
}

// Close stops accepting events and waits for the senders to drain the
// buffer or for ctx to end.
func (n *Notifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		n.logger.Info("webhook senders stopped")
		return nil
	case <-ctx.Done():
		n.logger.Warn("webhook drain interrupted", "pending", len(n.queue))
		return ctx.Err()
	}
}

func (n *Notifier) sender(id int) {
	defer n.wg.Done()
	for event := range n.queue {
		// Deliveries outlive the caller's context; Close bounds the drain.
		if err := n.Deliver(context.Background(), event); err != nil {
			n.logger.Error("webhook delivery failed, dropping event",
				"sender", id,
				"event_id", event.ID,
				"event_type", event.Type,
				"task_id", event.TaskID,
				"error", err)
		}
	}
}

// Deliver sends event synchronously, retrying per the configured schedule.
func (n *Notifier) Deliver(ctx context.Context, event *events.TaskEvent) error {
	url := n.targetURL(event)
	if url == "" {
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	attempt := 0
	err = retry.Do(ctx, n.backoff(), func(ctx context.Context) error {
		attempt++
		return n.post(ctx, url, event, body)
	})
	if err != nil {
		n.metrics.WebhookDelivery(metrics.WebhookFailed)
		return fmt.Errorf("deliver %s after %d attempt(s): %w", event.Type, attempt, err)
	}

	n.metrics.WebhookDelivery(metrics.WebhookDelivered)
	n.logger.Debug("webhook delivered",
		"event_id", event.ID,
		"event_type", event.Type,
		"task_id", event.TaskID,
		"attempts", attempt)
	return nil
}

func (n *Notifier) post(ctx context.Context, url string, event *events.TaskEvent, body []byte) error {
	ts := n.now().Unix()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderSignature, Sign(n.cfg.Secret, ts, body))
	req.Header.Set(HeaderEventID, event.ID.String())

	resp, err := n.client.Do(req)
	if err != nil {
		return retry.RetryableError(fmt.Errorf("request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return retry.RetryableError(fmt.Errorf("callback returned %d", resp.StatusCode))
	default:
		return fmt.Errorf("callback rejected event with %d", resp.StatusCode)
	}
}

// backoff walks the configured schedule, repeating its last step, and stops
// after MaxRetries retries.
func (n *Notifier) backoff() retry.Backoff {
	schedule := n.cfg.Backoff
	i := 0
	next := retry.BackoffFunc(func() (time.Duration, bool) {
		if len(schedule) == 0 {
			return 0, false
		}
		d := schedule[min(i, len(schedule)-1)]
		i++
		return d, false
	})
	return retry.WithMaxRetries(uint64(n.cfg.MaxRetries), next)
}

func (n *Notifier) targetURL(event *events.TaskEvent) string {
	if event.CallbackURL != "" {
		return event.CallbackURL
	}
	return n.cfg.URL
}
