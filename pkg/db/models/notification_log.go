package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nomadair/nomadair-backend/pkg/enums"
	"github.com/nomadair/nomadair-backend/pkg/types"
)

// NotificationLog is the durable trail of best-effort email requests. Delivery
// failures land here as status=failed and never propagate to the caller.
type NotificationLog struct {
	ID        uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Kind      enums.NotificationKind   `gorm:"column:kind;type:text;not null"`
	BookingID uuid.UUID                `gorm:"column:booking_id;type:uuid;not null;index"`
	Recipient string                   `gorm:"column:recipient;not null"`
	Payload   types.JSONMap            `gorm:"column:payload;type:jsonb;serializer:json"`
	Status    enums.NotificationStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	Error     *string                  `gorm:"column:error"`
	SentAt    *time.Time               `gorm:"column:sent_at"`
	CreatedAt time.Time                `gorm:"column:created_at;autoCreateTime"`
}
