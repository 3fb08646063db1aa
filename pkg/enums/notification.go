package enums

import "fmt"

// NotificationKind names the email side effects the engine can request.
type NotificationKind string

const (
	NotificationBookingConfirmation NotificationKind = "booking_confirmation"
	NotificationBookingCancellation NotificationKind = "booking_cancellation"
)

var validNotificationKinds = []NotificationKind{
	NotificationBookingConfirmation,
	NotificationBookingCancellation,
}

// IsValid reports whether the value matches the canonical notification kind enum.
func (n NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationKind converts the raw string to NotificationKind.
func ParseNotificationKind(value string) (NotificationKind, error) {
	for _, candidate := range validNotificationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification kind %q", value)
}

// NotificationStatus tracks best-effort delivery of a requested email.
type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "pending"
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
)

// IsValid reports whether the value matches the canonical notification status enum.
func (n NotificationStatus) IsValid() bool {
	switch n {
	case NotificationStatusPending, NotificationStatusSent, NotificationStatusFailed:
		return true
	default:
		return false
	}
}
