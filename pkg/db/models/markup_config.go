package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nomadair/nomadair-backend/pkg/enums"
)

// MarkupConfig is one operator-managed pricing rule. At most one config may be
// active for a (product type, currency) pair at any instant; the effective
// interval is half-open [EffectiveFrom, EffectiveTo).
type MarkupConfig struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductType      enums.ProductType `gorm:"column:product_type;type:text;not null;index:idx_markup_lookup"`
	Currency         string            `gorm:"column:currency;type:text;not null;index:idx_markup_lookup"`
	MarkupPercentage decimal.Decimal   `gorm:"column:markup_percentage;type:numeric(6,3);not null"`
	ServiceFeeAmount decimal.Decimal   `gorm:"column:service_fee_amount;type:numeric(12,2);not null"`
	IsActive         bool              `gorm:"column:is_active;not null;default:true"`
	EffectiveFrom    time.Time         `gorm:"column:effective_from;not null"`
	EffectiveTo      *time.Time        `gorm:"column:effective_to"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// CoversInstant reports whether the config is effective at the given time.
func (m MarkupConfig) CoversInstant(at time.Time) bool {
	if at.Before(m.EffectiveFrom) {
		return false
	}
	if m.EffectiveTo != nil && !at.Before(*m.EffectiveTo) {
		return false
	}
	return true
}
