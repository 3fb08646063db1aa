package bookings

import (
	"fmt"

	"github.com/nomadair/nomadair-backend/pkg/enums"
)

// allowedTransitions is the complete edge set of the booking lifecycle. Every
// status write in the repository is validated against it; REFUNDED is
// terminal.
var allowedTransitions = map[enums.BookingStatus][]enums.BookingStatus{
	enums.BookingStatusPending: {
		enums.BookingStatusPaymentPending,
		enums.BookingStatusCancelled,
		enums.BookingStatusFailed,
	},
	enums.BookingStatusPaymentPending: {
		enums.BookingStatusConfirmed,
		enums.BookingStatusFailed,
	},
	enums.BookingStatusConfirmed: {
		enums.BookingStatusCancelled,
		enums.BookingStatusRefunded,
	},
	enums.BookingStatusCancelled: {
		enums.BookingStatusRefunded,
	},
	enums.BookingStatusFailed: {
		enums.BookingStatusPending,
	},
	enums.BookingStatusRefunded: {},
}

// CanTransition reports whether the status machine allows moving a booking
// from one status to another. Unknown statuses never transition.
func CanTransition(from, to enums.BookingStatus) bool {
	targets, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	for _, candidate := range targets {
		if candidate == to {
			return true
		}
	}
	return false
}

// StatusFromPaymentState derives the booking status implied by the payment
// processor's reported state. CONFIRMED is only the settlement-implied
// target; the repository defers it until a supplier order is linked.
func StatusFromPaymentState(payment enums.PaymentStatus) (enums.BookingStatus, error) {
	switch payment {
	case enums.PaymentStatusCompleted:
		return enums.BookingStatusConfirmed, nil
	case enums.PaymentStatusFailed:
		return enums.BookingStatusFailed, nil
	case enums.PaymentStatusPending, enums.PaymentStatusProcessing:
		return enums.BookingStatusPaymentPending, nil
	case enums.PaymentStatusRefunded, enums.PaymentStatusPartiallyRefunded:
		return enums.BookingStatusRefunded, nil
	default:
		return "", fmt.Errorf("no booking status for payment state %q", payment)
	}
}
