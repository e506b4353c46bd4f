// Package email renders account notification templates and delivers them
// over SMTP, or to the log in development.
package email

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type DeliveryReceipt struct {
	MessageID string
	To        string
	Kind      TemplateKind
	SentAt    time.Time
}

type Sender interface {
	Send(ctx context.Context, to string, kind TemplateKind, params map[string]string) (*DeliveryReceipt, error)
}

// LogSender renders messages and writes them to the log instead of sending.
type LogSender struct {
	renderer *Renderer
}

func NewLogSender(renderer *Renderer) *LogSender {
	return &LogSender{renderer: renderer}
}

func (s *LogSender) Send(ctx context.Context, to string, kind TemplateKind, params map[string]string) (*DeliveryReceipt, error) {
	msg, err := s.renderer.Render(to, kind, params)
	if err != nil {
		return nil, err
	}
	receipt := &DeliveryReceipt{
		MessageID: uuid.NewString(),
		To:        to,
		Kind:      kind,
		SentAt:    time.Now().UTC(),
	}
	slog.InfoContext(ctx, "email not sent (log delivery)",
		"message_id", receipt.MessageID,
		"to", to,
		"kind", string(kind),
		"subject", msg.Subject,
		"body", msg.Text,
	)
	return receipt, nil
}
