package app

import (
	"context"
	"log/slog"

	"github.com/private-doc-vault/docvault-ocr-service/internal/config"
	"github.com/private-doc-vault/docvault-ocr-service/internal/events"
	"github.com/private-doc-vault/docvault-ocr-service/internal/metrics"
	"github.com/private-doc-vault/docvault-ocr-service/internal/webhook"
)

// Events is the process-wide event emitter and its optional webhook
// notifier.
type Events struct {
	Emitter  *events.InMemoryEventEmitter
	notifier *webhook.Notifier
}

// NewEvents creates the emitter. When a webhook secret is configured the
// notifier is started and registered; without one, callbacks are disabled.
func NewEvents(cfg config.WebhookConfig, m *metrics.Metrics, logger *slog.Logger) (*Events, error) {
	e := &Events{Emitter: events.NewInMemoryEventEmitter(logger)}
	if cfg.Secret == "" {
		logger.Info("webhook secret not configured, callbacks disabled")
		return e, nil
	}

	n, err := webhook.NewNotifier(cfg, logger, webhook.WithMetrics(m))
	if err != nil {
		return nil, err
	}
	n.Start()
	e.Emitter.RegisterHandler(n)
	e.notifier = n
	return e, nil
}

// Close drains pending webhook deliveries until ctx ends.
func (e *Events) Close(ctx context.Context) error {
	if e.notifier == nil {
		return nil
	}
	return e.notifier.Close(ctx)
}
