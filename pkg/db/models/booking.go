package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nomadair/nomadair-backend/pkg/enums"
	"github.com/nomadair/nomadair-backend/pkg/types"
)

// Booking is the aggregate root the engine reconciles supplier state against.
// The pricing snapshot is immutable after creation; ProviderData is an
// append-only audit log that only ever grows through merges.
type Booking struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Reference   string              `gorm:"column:reference;not null;uniqueIndex"`
	UserID      uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	ProductType enums.ProductType   `gorm:"column:product_type;type:text;not null"`
	Status      enums.BookingStatus `gorm:"column:status;type:text;not null;default:'pending'"`

	Provider          enums.Provider `gorm:"column:provider;type:text;not null"`
	ProviderBookingID *string        `gorm:"column:provider_booking_id;uniqueIndex"`
	ProviderData      types.JSONMap  `gorm:"column:provider_data;type:jsonb;serializer:json"`

	BasePrice     decimal.Decimal `gorm:"column:base_price;type:numeric(12,2);not null"`
	MarkupAmount  decimal.Decimal `gorm:"column:markup_amount;type:numeric(12,2);not null"`
	ServiceFee    decimal.Decimal `gorm:"column:service_fee;type:numeric(12,2);not null"`
	ConversionFee decimal.Decimal `gorm:"column:conversion_fee;type:numeric(12,2);not null;default:0"`
	TotalAmount   decimal.Decimal `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Currency      string          `gorm:"column:currency;type:text;not null"`

	BookingData   types.JSONMap `gorm:"column:booking_data;type:jsonb;serializer:json"`
	PassengerInfo types.JSONMap `gorm:"column:passenger_info;type:jsonb;serializer:json"`

	PaymentStatus    enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	PaymentReference *string             `gorm:"column:payment_reference;index"`

	CancelledAt       *time.Time         `gorm:"column:cancelled_at"`
	CancelledBy       *enums.CancelledBy `gorm:"column:cancelled_by;type:text"`
	RefundAmount      *decimal.Decimal   `gorm:"column:refund_amount;type:numeric(12,2)"`
	RefundStatus      enums.RefundStatus `gorm:"column:refund_status;type:text;not null;default:'none'"`
	RefundRoute       *enums.RefundRoute `gorm:"column:refund_route;type:text"`
	HasAirlineCredits bool               `gorm:"column:has_airline_credits;not null;default:false"`

	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
}
