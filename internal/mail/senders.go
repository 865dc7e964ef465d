package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/gitrueng/user-management-app/pkg/httpclient"
	pkgkafka "github.com/gitrueng/user-management-app/pkg/kafka"
)

// TopicEmailRequested is consumed by the notification service, which owns
// SMTP delivery.
const TopicEmailRequested = "notification.email.requested"

const (
	aggregateTypeEmail = "email"
	sourceName         = "user-management"
)

// KafkaSender publishes each message as an email request event.
type KafkaSender struct {
	publisher pkgkafka.Publisher
}

func NewKafkaSender(publisher pkgkafka.Publisher) *KafkaSender {
	return &KafkaSender{publisher: publisher}
}

func (s *KafkaSender) Name() string { return "kafka" }

func (s *KafkaSender) Send(ctx context.Context, msg *Message) error {
	evt, err := pkgkafka.NewEvent(ctx, TopicEmailRequested, msg.ID, aggregateTypeEmail, sourceName, msg)
	if err != nil {
		return fmt.Errorf("create email event: %w", err)
	}
	evt.WithMetadata("template", msg.Template)

	if err := s.publisher.Publish(ctx, TopicEmailRequested, evt); err != nil {
		return fmt.Errorf("publish email event: %w", err)
	}
	return nil
}

// RelaySender POSTs each message as JSON to an HTTP mail relay.
type RelaySender struct {
	client *httpclient.CircuitBreakerClient
	url    string
}

func NewRelaySender(client *httpclient.CircuitBreakerClient, url string) *RelaySender {
	return &RelaySender{client: client, url: url}
}

func (s *RelaySender) Name() string { return "relay" }

func (s *RelaySender) Send(ctx context.Context, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	resp, err := s.client.Post(ctx, s.url, "application/json", body)
	if err != nil {
		return fmt.Errorf("post email to relay: %w", err)
	}
	return httpclient.CheckResponse(resp, "mail-relay")
}

// LogSender logs messages instead of delivering them. The body is omitted
// because it carries a live token.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Name() string { return "log" }

func (s *LogSender) Send(ctx context.Context, msg *Message) error {
	s.logger.InfoContext(ctx, "email not delivered, log sender configured",
		slog.String("message_id", msg.ID),
		slog.String("template", msg.Template),
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}
