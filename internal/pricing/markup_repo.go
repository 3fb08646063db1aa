package pricing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nomadair/nomadair-backend/pkg/db/models"
	"github.com/nomadair/nomadair-backend/pkg/enums"
	pkgerrors "github.com/nomadair/nomadair-backend/pkg/errors"
)

// MarkupUpdate carries the operator-editable fields. Nil means unchanged.
type MarkupUpdate struct {
	MarkupPercentage *decimal.Decimal
	ServiceFeeAmount *decimal.Decimal
	EffectiveFrom    *time.Time
	EffectiveTo      *time.Time
}

// MarkupRepository manages operator pricing rules and serves the read path.
type MarkupRepository interface {
	MarkupLookup
	Create(ctx context.Context, cfg *models.MarkupConfig) (*models.MarkupConfig, error)
	Update(ctx context.Context, id uuid.UUID, update MarkupUpdate) (*models.MarkupConfig, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, productType *enums.ProductType) ([]models.MarkupConfig, error)
}

type markupRepository struct {
	db *gorm.DB
}

func NewMarkupRepository(db *gorm.DB) MarkupRepository {
	return &markupRepository{db: db}
}

func (r *markupRepository) ActiveConfig(ctx context.Context, productType enums.ProductType, currency string, at time.Time) (*models.MarkupConfig, error) {
	var cfg models.MarkupConfig
	err := r.db.WithContext(ctx).
		Where("product_type = ? AND currency = ? AND is_active = ?", productType, currency, true).
		Where("effective_from <= ?", at).
		Where("(effective_to IS NULL OR effective_to > ?)", at).
		Order("effective_from DESC").
		First(&cfg).Error
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *markupRepository) Create(ctx context.Context, cfg *models.MarkupConfig) (*models.MarkupConfig, error) {
	if err := validateInterval(cfg.EffectiveFrom, cfg.EffectiveTo); err != nil {
		return nil, err
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		overlapping, err := r.overlapExists(ctx, tx, cfg, uuid.Nil)
		if err != nil {
			return err
		}
		if overlapping {
			return pkgerrors.New(pkgerrors.CodeConflict,
				"an active markup config already covers this product/currency interval")
		}
		return tx.Create(cfg).Error
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (r *markupRepository) Update(ctx context.Context, id uuid.UUID, update MarkupUpdate) (*models.MarkupConfig, error) {
	var updated models.MarkupConfig
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cfg models.MarkupConfig
		if err := tx.Where("id = ?", id).First(&cfg).Error; err != nil {
			return err
		}

		if update.MarkupPercentage != nil {
			cfg.MarkupPercentage = *update.MarkupPercentage
		}
		if update.ServiceFeeAmount != nil {
			cfg.ServiceFeeAmount = *update.ServiceFeeAmount
		}
		if update.EffectiveFrom != nil {
			cfg.EffectiveFrom = *update.EffectiveFrom
		}
		if update.EffectiveTo != nil {
			cfg.EffectiveTo = update.EffectiveTo
		}
		if err := validateInterval(cfg.EffectiveFrom, cfg.EffectiveTo); err != nil {
			return err
		}

		overlapping, err := r.overlapExists(ctx, tx, &cfg, id)
		if err != nil {
			return err
		}
		if overlapping {
			return pkgerrors.New(pkgerrors.CodeConflict,
				"an active markup config already covers this product/currency interval")
		}

		if err := tx.Save(&cfg).Error; err != nil {
			return err
		}
		updated = cfg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *markupRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&models.MarkupConfig{}).
		Where("id = ? AND is_active = ?", id, true).
		Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *markupRepository) List(ctx context.Context, productType *enums.ProductType) ([]models.MarkupConfig, error) {
	query := r.db.WithContext(ctx).Model(&models.MarkupConfig{})
	if productType != nil {
		query = query.Where("product_type = ?", *productType)
	}
	var rows []models.MarkupConfig
	if err := query.Order("product_type, currency, effective_from").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// overlapExists checks the half-open interval [EffectiveFrom, EffectiveTo)
// against every other active config for the same product/currency pair.
func (r *markupRepository) overlapExists(ctx context.Context, tx *gorm.DB, cfg *models.MarkupConfig, excludeID uuid.UUID) (bool, error) {
	query := tx.WithContext(ctx).Model(&models.MarkupConfig{}).
		Where("product_type = ? AND currency = ? AND is_active = ?", cfg.ProductType, cfg.Currency, true)
	if excludeID != uuid.Nil {
		query = query.Where("id <> ?", excludeID)
	}
	query = query.Where("(effective_to IS NULL OR effective_to > ?)", cfg.EffectiveFrom)
	if cfg.EffectiveTo != nil {
		query = query.Where("effective_from < ?", *cfg.EffectiveTo)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func validateInterval(from time.Time, to *time.Time) error {
	if from.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "effectiveFrom is required")
	}
	if to != nil && !to.After(from) {
		return pkgerrors.New(pkgerrors.CodeValidation, "effectiveTo must be after effectiveFrom")
	}
	return nil
}
