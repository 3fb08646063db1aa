package enums

import "fmt"

// WebhookEventType is the closed set of supplier callback events the
// reconciler understands. Anything else is acknowledged and logged.
type WebhookEventType string

const (
	WebhookEventOrderCreated          WebhookEventType = "order.created"
	WebhookEventOrderCreationFailed   WebhookEventType = "order.creation_failed"
	WebhookEventOrderUpdated          WebhookEventType = "order.updated"
	WebhookEventOrderAirlineChange    WebhookEventType = "order.airline_initiated_change"
	WebhookEventCancellationCreated   WebhookEventType = "cancellation.created"
	WebhookEventCancellationConfirmed WebhookEventType = "cancellation.confirmed"
)

var validWebhookEventTypes = []WebhookEventType{
	WebhookEventOrderCreated,
	WebhookEventOrderCreationFailed,
	WebhookEventOrderUpdated,
	WebhookEventOrderAirlineChange,
	WebhookEventCancellationCreated,
	WebhookEventCancellationConfirmed,
}

// IsValid reports whether the value matches the canonical webhook event type enum.
func (w WebhookEventType) IsValid() bool {
	for _, candidate := range validWebhookEventTypes {
		if candidate == w {
			return true
		}
	}
	return false
}

// ParseWebhookEventType converts the raw string to WebhookEventType.
func ParseWebhookEventType(value string) (WebhookEventType, error) {
	for _, candidate := range validWebhookEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid webhook event type %q", value)
}
