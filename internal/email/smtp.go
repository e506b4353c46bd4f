package email

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"
)

const smtpTimeout = 15 * time.Second

// SMTPSender delivers multipart text+html messages through one SMTP relay.
type SMTPSender struct {
	renderer *Renderer
	host     string
	from     string
	send     func(ctx context.Context, msg *mail.Msg) error
}

func NewSMTPSender(renderer *Renderer, host, port, user, password, from string) (*SMTPSender, error) {
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP port %q: %w", port, err)
	}

	opts := []mail.Option{
		mail.WithPort(portNum),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(smtpTimeout),
	}
	if portNum == 465 {
		opts = append(opts, mail.WithSSL())
	}
	if user != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(user),
			mail.WithPassword(password),
		)
	}
	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}

	return &SMTPSender{
		renderer: renderer,
		host:     host,
		from:     from,
		send: func(ctx context.Context, msg *mail.Msg) error {
			return client.DialAndSendWithContext(ctx, msg)
		},
	}, nil
}

func (s *SMTPSender) Send(ctx context.Context, to string, kind TemplateKind, params map[string]string) (*DeliveryReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rendered, err := s.renderer.Render(to, kind, params)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	messageID := uuid.NewString()
	msg, err := s.buildMessage(to, messageID, now, rendered)
	if err != nil {
		return nil, err
	}
	if err := s.send(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to send %s email: %w", kind, err)
	}
	return &DeliveryReceipt{MessageID: messageID, To: to, Kind: kind, SentAt: now}, nil
}

func (s *SMTPSender) buildMessage(to, messageID string, date time.Time, rendered *Message) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(rendered.Subject)
	msg.SetDateWithValue(date)
	msg.SetMessageIDWithValue(messageID + "@" + s.host)
	msg.SetBodyString(mail.TypeTextPlain, rendered.Text)
	msg.AddAlternativeString(mail.TypeTextHTML, rendered.HTML)
	return msg, nil
}
