package enums

// OutboxEventType is the event_type column of outbox_events.
type OutboxEventType string

// EventProcessorWebhookReceived carries a Mangopay notification waiting to be
// recorded on the platform.
const EventProcessorWebhookReceived OutboxEventType = "processor_webhook_received"

var outboxEventTypes = []OutboxEventType{EventProcessorWebhookReceived}

func (e OutboxEventType) IsValid() bool { return member(outboxEventTypes, e) }

func ParseOutboxEventType(raw string) (OutboxEventType, error) {
	return parse(outboxEventTypes, raw, "outbox event type")
}

// OutboxDLQErrorReason records why a row left the outbox for the DLQ.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var dlqReasons = []OutboxDLQErrorReason{OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable}

func (r OutboxDLQErrorReason) IsValid() bool { return member(dlqReasons, r) }

func ParseOutboxDLQErrorReason(raw string) (OutboxDLQErrorReason, error) {
	return parse(dlqReasons, raw, "dlq error reason")
}
