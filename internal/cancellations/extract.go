package cancellations

import (
	"time"

	"github.com/nomadair/nomadair-backend/pkg/db/models"
)

// fareRefundability is three-valued on purpose: absence of fare conditions is
// not proof of non-refundability.
type fareRefundability int

const (
	fareUnknown fareRefundability = iota
	fareRefundable
	fareNonRefundable
)

var departureTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// departureTime digs the departure (or hotel check-in) instant out of the
// richest available source: the confirmed supplier order first, then the
// offer snapshot taken at booking time, then the raw trip data.
func departureTime(booking *models.Booking) *time.Time {
	sources := []map[string]any{}
	if order, ok := booking.ProviderData["order_response"].(map[string]any); ok {
		sources = append(sources, order)
	}
	if snapshot, ok := booking.ProviderData["offer_snapshot"].(map[string]any); ok {
		sources = append(sources, snapshot)
	}
	sources = append(sources, booking.BookingData)

	for _, source := range sources {
		if ts := departureFromSource(source); ts != nil {
			return ts
		}
	}
	return nil
}

func departureFromSource(source map[string]any) *time.Time {
	if source == nil {
		return nil
	}
	// Flight payloads: first segment of the first slice.
	if slices, ok := source["slices"].([]any); ok && len(slices) > 0 {
		if slice, ok := slices[0].(map[string]any); ok {
			if segments, ok := slice["segments"].([]any); ok && len(segments) > 0 {
				if segment, ok := segments[0].(map[string]any); ok {
					if ts := parseTime(segment["departing_at"]); ts != nil {
						return ts
					}
				}
			}
			if ts := parseTime(slice["departing_at"]); ts != nil {
				return ts
			}
		}
	}
	for _, key := range []string{"departing_at", "departure_time", "departure_date", "check_in_date", "checkIn"} {
		if ts := parseTime(source[key]); ts != nil {
			return ts
		}
	}
	return nil
}

func parseTime(value any) *time.Time {
	raw, ok := value.(string)
	if !ok || raw == "" {
		return nil
	}
	for _, layout := range departureTimeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return &ts
		}
	}
	return nil
}

// refundability reads the stored fare conditions. Only an explicit negative
// counts as non-refundable.
func refundability(booking *models.Booking) fareRefundability {
	if order, ok := booking.ProviderData["order_response"].(map[string]any); ok {
		if state := refundabilityFromConditions(order); state != fareUnknown {
			return state
		}
	}
	if snapshot, ok := booking.ProviderData["offer_snapshot"].(map[string]any); ok {
		if state := refundabilityFromConditions(snapshot); state != fareUnknown {
			return state
		}
	}
	if conditions, ok := booking.BookingData["fare_conditions"].(map[string]any); ok {
		if refundable, ok := conditions["refundable"].(bool); ok {
			if refundable {
				return fareRefundable
			}
			return fareNonRefundable
		}
	}
	return fareUnknown
}

func refundabilityFromConditions(source map[string]any) fareRefundability {
	conditions, ok := source["conditions"].(map[string]any)
	if !ok {
		return fareUnknown
	}
	refund, ok := conditions["refund_before_departure"].(map[string]any)
	if !ok {
		return fareUnknown
	}
	allowed, ok := refund["allowed"].(bool)
	if !ok {
		return fareUnknown
	}
	if allowed {
		return fareRefundable
	}
	return fareNonRefundable
}
