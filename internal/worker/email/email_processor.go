package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"access.service/internal/core"
	"access.service/internal/ports/messaging"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// EmailProcessor sends attendance summary mails for check-out events. The
// email provider sits behind a circuit breaker so a provider outage degrades
// to queued retries instead of hammering a failing dependency.
type EmailProcessor struct {
	emailService core.EmailService
	cb           *gobreaker.CircuitBreaker
}

// NewProcessor sets up a processor for the email queue.
func NewProcessor(emailService core.EmailService) *EmailProcessor {
	settings := gobreaker.Settings{
		Name:        "SES-Email",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Trip if failure rate exceeds 50% after at least 10 requests
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.5
		},
	}

	return &EmailProcessor{
		emailService: emailService,
		cb:           gobreaker.NewCircuitBreaker(settings),
	}
}

// Process handles one message from the email queue. Send failures are retried
// with exponential backoff via the message visibility timeout.
func (p *EmailProcessor) Process(ctx context.Context, msg types.Message) (bool, int32, error) {
	var event messaging.EmailEvent
	if err := json.Unmarshal([]byte(*msg.Body), &event); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to unmarshal email event")
		return false, 0, err // Do not retry on malformed message
	}

	// Employee mail addresses live in the HR system; the worker derives them
	// from the employee id the same way the rest of the company tooling does.
	to := fmt.Sprintf("employee-%d@factory.com", event.EmployeeID)

	_, err := p.cb.Execute(func() (interface{}, error) {
		return nil, p.emailService.SendCheckOutSummary(ctx, to, event.WorkDate, event.SessionMinutes)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			log.Ctx(ctx).Warn().Msg("Circuit breaker is OPEN; skipping email send")
		}

		retries := approxReceiveCount(msg)
		return true, calculateBackoff(retries), err
	}

	return false, 0, nil
}

// approxReceiveCount reads the SQS redelivery counter so the backoff grows
// across retries without any state of our own.
func approxReceiveCount(msg types.Message) int {
	if v, ok := msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return 1
}

// calculateBackoff determines how long to wait before retrying a failed job.
// It increases the delay exponentially with each retry.
func calculateBackoff(retryCount int) int32 {
	backoff := int32(math.Pow(2, float64(retryCount)) * 10)
	if backoff > 3600 {
		return 3600 // max at 1 hour
	}
	return backoff
}
