package enums

import "fmt"

// CancelledBy records which actor initiated a cancellation.
type CancelledBy string

const (
	CancelledByUser     CancelledBy = "user"
	CancelledByAdmin    CancelledBy = "admin"
	CancelledBySupplier CancelledBy = "supplier"
)

var validCancelledBy = []CancelledBy{
	CancelledByUser,
	CancelledByAdmin,
	CancelledBySupplier,
}

// IsValid reports whether the value matches the canonical cancelled-by enum.
func (c CancelledBy) IsValid() bool {
	for _, candidate := range validCancelledBy {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCancelledBy converts the raw string to CancelledBy.
func ParseCancelledBy(value string) (CancelledBy, error) {
	for _, candidate := range validCancelledBy {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cancelled by %q", value)
}
