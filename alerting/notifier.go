// Package alerting tells operators about problems that need a human,
// such as an invalid or exhausted generation API key.
package alerting

import (
	"context"
	"log/slog"
)

// Alert is a single operator notification.
type Alert struct {
	Subject string
	Body    string
}

// Notifier is the adapter interface for alert channels.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log. It is the fallback
// when no email channel is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, alert Alert) error {
	slog.ErrorContext(ctx, "OPERATOR ALERT", "subject", alert.Subject, "body", alert.Body)
	return nil
}
