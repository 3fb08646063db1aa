package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nomadair/nomadair-backend/api/responses"
	"github.com/nomadair/nomadair-backend/api/validators"
	"github.com/nomadair/nomadair-backend/internal/pricing"
	"github.com/nomadair/nomadair-backend/pkg/db/models"
	"github.com/nomadair/nomadair-backend/pkg/enums"
	pkgerrors "github.com/nomadair/nomadair-backend/pkg/errors"
	"github.com/nomadair/nomadair-backend/pkg/logger"
)

type createMarkupRequest struct {
	ProductType      string          `json:"productType" validate:"required,oneof=flight-international flight-domestic hotel car-rental"`
	Currency         string          `json:"currency" validate:"required,len=3"`
	MarkupPercentage decimal.Decimal `json:"markupPercentage" validate:"required"`
	ServiceFeeAmount decimal.Decimal `json:"serviceFeeAmount"`
	EffectiveFrom    time.Time       `json:"effectiveFrom" validate:"required"`
	EffectiveTo      *time.Time      `json:"effectiveTo"`
}

type updateMarkupRequest struct {
	MarkupPercentage *decimal.Decimal `json:"markupPercentage"`
	ServiceFeeAmount *decimal.Decimal `json:"serviceFeeAmount"`
	EffectiveFrom    *time.Time       `json:"effectiveFrom"`
	EffectiveTo      *time.Time       `json:"effectiveTo"`
}

// CreateMarkupConfig registers a pricing rule for a product/currency window.
func CreateMarkupConfig(repo pricing.MarkupRepository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "markup repository unavailable"))
			return
		}

		var req createMarkupRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		productType, err := enums.ParseProductType(req.ProductType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product type"))
			return
		}

		created, err := repo.Create(r.Context(), &models.MarkupConfig{
			ProductType:      productType,
			Currency:         strings.ToUpper(req.Currency),
			MarkupPercentage: req.MarkupPercentage,
			ServiceFeeAmount: req.ServiceFeeAmount,
			IsActive:         true,
			EffectiveFrom:    req.EffectiveFrom,
			EffectiveTo:      req.EffectiveTo,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

// ListMarkupConfigs returns pricing rules, optionally narrowed by product type.
func ListMarkupConfigs(repo pricing.MarkupRepository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "markup repository unavailable"))
			return
		}

		var filter *enums.ProductType
		if raw := strings.TrimSpace(r.URL.Query().Get("productType")); raw != "" {
			productType, err := enums.ParseProductType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product type filter"))
				return
			}
			filter = &productType
		}

		configs, err := repo.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list markup configs"))
			return
		}
		responses.WriteSuccess(w, configs)
	}
}

// UpdateMarkupConfig adjusts a rule; overlap validation happens in the repo.
func UpdateMarkupConfig(repo pricing.MarkupRepository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "markup repository unavailable"))
			return
		}

		configID, err := parseMarkupID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateMarkupRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := repo.Update(r.Context(), configID, pricing.MarkupUpdate{
			MarkupPercentage: req.MarkupPercentage,
			ServiceFeeAmount: req.ServiceFeeAmount,
			EffectiveFrom:    req.EffectiveFrom,
			EffectiveTo:      req.EffectiveTo,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

// DeactivateMarkupConfig retires a rule without deleting its audit trail.
func DeactivateMarkupConfig(repo pricing.MarkupRepository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "markup repository unavailable"))
			return
		}

		configID, err := parseMarkupID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := repo.Deactivate(r.Context(), configID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

func parseMarkupID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "configID"))
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid markup config id")
	}
	return id, nil
}
