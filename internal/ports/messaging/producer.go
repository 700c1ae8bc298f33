package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Producer publishes email events through a MessageSender.
type Producer struct {
	sender        MessageSender
	emailQueueURL string
}

func NewProducer(sender MessageSender, emailQueueURL string) *Producer {
	return &Producer{
		sender:        sender,
		emailQueueURL: emailQueueURL,
	}
}

// NewSQSProducer creates a Producer backed by an AWS SQS sender.
func NewSQSProducer(client SQSClient, emailQueueURL string) *Producer {
	return NewProducer(&SQSSender{client: client}, emailQueueURL)
}

func (p *Producer) PublishEmail(ctx context.Context, event EmailEvent) error {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal email event: %w", err)
	}

	// Enrich the current span with the employee id
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(attribute.String("app.employeeId", strconv.FormatInt(event.EmployeeID, 10)))
	}

	if err := p.sender.SendMessage(ctx, p.emailQueueURL, b); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}
