package enums

import "fmt"

// ProductType identifies the travel product a booking resells.
type ProductType string

const (
	ProductTypeFlightInternational ProductType = "flight-international"
	ProductTypeFlightDomestic      ProductType = "flight-domestic"
	ProductTypeHotel               ProductType = "hotel"
	ProductTypeCarRental           ProductType = "car-rental"
)

var validProductTypes = []ProductType{
	ProductTypeFlightInternational,
	ProductTypeFlightDomestic,
	ProductTypeHotel,
	ProductTypeCarRental,
}

// IsValid reports whether the value matches the canonical product type enum.
func (p ProductType) IsValid() bool {
	for _, candidate := range validProductTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsFlight reports whether the product is fulfilled by the flights supplier.
func (p ProductType) IsFlight() bool {
	return p == ProductTypeFlightInternational || p == ProductTypeFlightDomestic
}

// ParseProductType converts the raw string to ProductType.
func ParseProductType(value string) (ProductType, error) {
	for _, candidate := range validProductTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid product type %q", value)
}
