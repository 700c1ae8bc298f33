package messaging

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// CommandPublisher is the output port for server-to-device commands.
// Publishing is fire-and-forget; correlation happens via the enroll tracker
// plus the device's own terminal response event.
type CommandPublisher interface {
	SendCommand(ctx context.Context, deviceID, cmd string, slotID *int) error
}

// EmailProducer is the output port for publishing email events.
type EmailProducer interface {
	PublishEmail(ctx context.Context, event EmailEvent) error
}

// MessageSender defines the interface for sending raw messages to a messaging system.
type MessageSender interface {
	SendMessage(ctx context.Context, destination string, body []byte) error
}

// SQSClient defines the interface for the AWS SQS client.
type SQSClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}
