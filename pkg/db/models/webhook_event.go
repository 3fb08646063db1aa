package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nomadair/nomadair-backend/pkg/enums"
)

// SupplierWebhookEvent records every supplier callback delivery, matched or
// not, so reconciliation is forensically reconstructable.
type SupplierWebhookEvent struct {
	ID        uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Provider  enums.Provider         `gorm:"column:provider;type:text;not null"`
	EventID   string                 `gorm:"column:event_id;not null;uniqueIndex"`
	EventType enums.WebhookEventType `gorm:"column:event_type;type:text;not null"`
	Payload   json.RawMessage        `gorm:"column:payload;type:jsonb"`
	BookingID *uuid.UUID             `gorm:"column:booking_id;type:uuid;index"`
	Result    string                 `gorm:"column:result;not null"`
	CreatedAt time.Time              `gorm:"column:created_at;autoCreateTime"`
}
