package enums

import "fmt"

// BookingStatus is the lifecycle state of a booking aggregate.
type BookingStatus string

const (
	BookingStatusPending        BookingStatus = "pending"
	BookingStatusPaymentPending BookingStatus = "payment_pending"
	BookingStatusConfirmed      BookingStatus = "confirmed"
	BookingStatusCancelled      BookingStatus = "cancelled"
	BookingStatusFailed         BookingStatus = "failed"
	BookingStatusRefunded       BookingStatus = "refunded"
)

var validBookingStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusPaymentPending,
	BookingStatusConfirmed,
	BookingStatusCancelled,
	BookingStatusFailed,
	BookingStatusRefunded,
}

// IsValid reports whether the value matches the canonical booking status enum.
func (b BookingStatus) IsValid() bool {
	for _, candidate := range validBookingStatuses {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBookingStatus converts the raw string to BookingStatus.
func ParseBookingStatus(value string) (BookingStatus, error) {
	for _, candidate := range validBookingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid booking status %q", value)
}
