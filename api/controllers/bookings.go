package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nomadair/nomadair-backend/api/middleware"
	"github.com/nomadair/nomadair-backend/api/responses"
	"github.com/nomadair/nomadair-backend/api/validators"
	"github.com/nomadair/nomadair-backend/internal/bookings"
	"github.com/nomadair/nomadair-backend/internal/cancellations"
	internalorders "github.com/nomadair/nomadair-backend/internal/orders"
	"github.com/nomadair/nomadair-backend/internal/pricing"
	"github.com/nomadair/nomadair-backend/pkg/db/models"
	"github.com/nomadair/nomadair-backend/pkg/enums"
	pkgerrors "github.com/nomadair/nomadair-backend/pkg/errors"
	"github.com/nomadair/nomadair-backend/pkg/logger"
	"github.com/nomadair/nomadair-backend/pkg/pagination"
	"github.com/nomadair/nomadair-backend/pkg/types"
)

const roleAdmin = "admin"

// OrderPlacer runs the idempotent supplier order flow.
type OrderPlacer interface {
	CreateSupplierOrder(ctx context.Context, bookingID uuid.UUID) (*internalorders.Result, error)
}

// Canceller runs the cancellation eligibility and supplier protocol.
type Canceller interface {
	Cancel(ctx context.Context, input cancellations.CancelInput) (*cancellations.Result, error)
	CompleteRefund(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error)
}

type createBookingRequest struct {
	ProductType    string          `json:"productType" validate:"required,oneof=flight-international flight-domestic hotel car-rental"`
	Provider       string          `json:"provider" validate:"required"`
	BasePrice      decimal.Decimal `json:"basePrice" validate:"required"`
	BaseCurrency   string          `json:"baseCurrency" validate:"required,len=3"`
	TargetCurrency string          `json:"targetCurrency" validate:"required,len=3"`
	FinalPrice     bool            `json:"finalPrice"`
	BookingData    types.JSONMap   `json:"bookingData" validate:"required"`
	PassengerInfo  types.JSONMap   `json:"passengerInfo" validate:"required"`
}

// CreateBooking prices the request and persists the booking with its
// immutable pricing snapshot. The supplier order is placed later, after
// payment.
func CreateBooking(repo bookings.Repository, quotes QuoteService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil || quotes == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}

		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createBookingRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		productType, err := enums.ParseProductType(req.ProductType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product type"))
			return
		}
		provider, err := enums.ParseProvider(req.Provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid provider"))
			return
		}

		quote, err := quotes.Quote(r.Context(), pricing.QuoteInput{
			BasePrice:      req.BasePrice,
			BaseCurrency:   req.BaseCurrency,
			TargetCurrency: req.TargetCurrency,
			ProductType:    productType,
			FinalPrice:     req.FinalPrice,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		booking := &models.Booking{
			UserID:        userID,
			ProductType:   productType,
			Provider:      provider,
			Status:        enums.BookingStatusPending,
			BasePrice:     quote.ConvertedAmount,
			MarkupAmount:  quote.MarkupAmount,
			ServiceFee:    quote.ServiceFee,
			ConversionFee: quote.ConversionFee,
			TotalAmount:   quote.TotalAmount,
			Currency:      quote.Currency,
			BookingData:   req.BookingData,
			PassengerInfo: req.PassengerInfo,
			PaymentStatus: enums.PaymentStatusPending,
		}

		created, err := repo.Create(r.Context(), booking)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

// ListBookings pages the caller's bookings; admins see every user's.
func ListBookings(repo bookings.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings repository unavailable"))
			return
		}

		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		filters := bookings.ListFilters{}
		if middleware.RoleFromContext(r.Context()) != roleAdmin {
			filters.UserID = &userID
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseBookingStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filters.Status = &status
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("productType")); raw != "" {
			productType, err := enums.ParseProductType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product type filter"))
				return
			}
			filters.ProductType = &productType
		}

		list, err := repo.List(r.Context(), params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bookings"))
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// GetBooking returns one booking after an ownership check.
func GetBooking(repo bookings.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		booking, err := loadOwnedBooking(r, repo)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}

// PlaceOrder triggers the idempotent supplier order flow for a paid booking.
func PlaceOrder(repo bookings.Repository, placer OrderPlacer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if placer == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		booking, err := loadOwnedBooking(r, repo)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := placer.CreateSupplierOrder(r.Context(), booking.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusCreated
		if result.AlreadyCreated {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, result.Booking)
	}
}

type cancelResponse struct {
	Booking           *models.Booking  `json:"booking"`
	RefundRoute       string           `json:"refundRoute"`
	RefundAmount      *decimal.Decimal `json:"refundAmount,omitempty"`
	HasAirlineCredits bool             `json:"hasAirlineCredits"`
}

// CancelBooking runs eligibility checks and the two-phase supplier protocol.
func CancelBooking(repo bookings.Repository, canceller Canceller, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if canceller == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cancellation service unavailable"))
			return
		}

		booking, err := loadOwnedBooking(r, repo)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		requestedBy := enums.CancelledByUser
		if middleware.RoleFromContext(r.Context()) == roleAdmin {
			requestedBy = enums.CancelledByAdmin
		}

		result, err := canceller.Cancel(r.Context(), cancellations.CancelInput{
			BookingID:   booking.ID,
			RequestedBy: requestedBy,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cancelResponse{
			Booking:           result.Booking,
			RefundRoute:       string(result.RefundRoute),
			RefundAmount:      result.RefundAmount,
			HasAirlineCredits: result.HasAirlineCredits,
		})
	}
}

// CompleteRefund marks a pending cash refund as paid out. Admin only; the
// route enforces the role.
func CompleteRefund(canceller Canceller, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if canceller == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cancellation service unavailable"))
			return
		}

		bookingID, err := parseBookingID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		booking, err := canceller.CompleteRefund(r.Context(), bookingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}

// DeleteBooking soft-deletes a booking record. Admin only.
func DeleteBooking(repo bookings.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings repository unavailable"))
			return
		}

		bookingID, err := parseBookingID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := repo.SoftDelete(r.Context(), bookingID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

func parseBookingID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "bookingID")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid booking id")
	}
	return id, nil
}

func callerID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing caller identity")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid caller identity")
	}
	return id, nil
}

func loadOwnedBooking(r *http.Request, repo bookings.Repository) (*models.Booking, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "bookings repository unavailable")
	}

	bookingID, err := parseBookingID(r)
	if err != nil {
		return nil, err
	}
	userID, err := callerID(r)
	if err != nil {
		return nil, err
	}

	booking, err := repo.FindByID(r.Context(), bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		return nil, err
	}

	if booking.UserID != userID && middleware.RoleFromContext(r.Context()) != roleAdmin {
		// 404 rather than 403 so ids are not probeable.
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
	}
	return booking, nil
}
