package nats

import (
	"context"
	"errors"
	"slices"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/document-chat-assistant/internal/infrastructure/resilience"
)

// transientPublishErrors clear up once the client reconnects.
var transientPublishErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrDisconnected,
	nats.ErrConnectionReconnecting,
	nats.ErrNoResponders,
}

// classifyPublishError decides whether a failed publish is retried. A
// cancelled caller is never counted against the breaker.
func classifyPublishError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	transient := slices.ContainsFunc(transientPublishErrors, func(target error) bool {
		return errors.Is(err, target)
	})
	return resilience.ErrorClassification{Retryable: transient, RecordFailure: true}
}
