package enums

import "fmt"

// Provider identifies the external supplier that fulfills a booking.
type Provider string

const (
	ProviderDuffel    Provider = "duffel"
	ProviderHotelbeds Provider = "hotelbeds"
)

var validProviders = []Provider{
	ProviderDuffel,
	ProviderHotelbeds,
}

// IsValid reports whether the value matches the canonical provider enum.
func (p Provider) IsValid() bool {
	for _, candidate := range validProviders {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProvider converts the raw string to Provider.
func ParseProvider(value string) (Provider, error) {
	for _, candidate := range validProviders {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid provider %q", value)
}
