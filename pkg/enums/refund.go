package enums

import "fmt"

// RefundStatus tracks the refund owed on a cancelled booking.
type RefundStatus string

const (
	RefundStatusNone      RefundStatus = "none"
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusCompleted RefundStatus = "completed"
)

var validRefundStatuses = []RefundStatus{
	RefundStatusNone,
	RefundStatusPending,
	RefundStatusCompleted,
}

// IsValid reports whether the value matches the canonical refund status enum.
func (r RefundStatus) IsValid() bool {
	for _, candidate := range validRefundStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRefundStatus converts the raw string to RefundStatus.
func ParseRefundStatus(value string) (RefundStatus, error) {
	for _, candidate := range validRefundStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid refund status %q", value)
}

// RefundRoute classifies where a supplier refund lands after cancellation.
// Cash refunds route to the internal balance and still require a manual payout
// through the payment processor; airline credits never move money through us.
type RefundRoute string

const (
	RefundRouteCash           RefundRoute = "cash"
	RefundRouteAirlineCredits RefundRoute = "airline_credits"
	RefundRouteNone           RefundRoute = "none"
)

var validRefundRoutes = []RefundRoute{
	RefundRouteCash,
	RefundRouteAirlineCredits,
	RefundRouteNone,
}

// IsValid reports whether the value matches the canonical refund route enum.
func (r RefundRoute) IsValid() bool {
	for _, candidate := range validRefundRoutes {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRefundRoute converts the raw string to RefundRoute.
func ParseRefundRoute(value string) (RefundRoute, error) {
	for _, candidate := range validRefundRoutes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid refund route %q", value)
}
